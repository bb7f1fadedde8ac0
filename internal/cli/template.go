package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewTemplateCmd создаёт группу команд для управления шаблонами.
func NewTemplateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage workflow templates",
	}

	cmd.AddCommand(
		newTemplateListCmd(clientFn, outputFn),
		newTemplateCreateCmd(clientFn, outputFn),
		newTemplateShowCmd(clientFn, outputFn),
		newTemplateDeleteCmd(clientFn, outputFn),
		newTemplateVersionsCmd(clientFn, outputFn),
		newTemplatePublishCmd(clientFn, outputFn),
	)

	return cmd
}

func templateRow(t TemplateResponse) []string {
	return []string{t.ID, t.Name, t.Category, strconv.Itoa(t.Version), t.CreatedAt}
}

var templateHeaders = []string{"ID", "NAME", "CATEGORY", "VERSION", "CREATED"}

func newTemplateListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates (latest versions)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			templates, err := client.ListTemplates(category)
			if err != nil {
				return err
			}

			rows := make([][]string, len(templates))
			for i, t := range templates {
				rows[i] = templateRow(t)
			}

			out.Print(templateHeaders, rows, templates)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Filter by category")

	return cmd
}

func newTemplateCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a template from a JSON definition file",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read definition file: %w", err)
			}
			if !json.Valid(data) {
				return fmt.Errorf("definition file is not valid JSON")
			}

			tpl, err := client.CreateTemplate(json.RawMessage(data))
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Template created: %s", tpl.ID))
			out.Print(templateHeaders, [][]string{templateRow(*tpl)}, tpl)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to template definition JSON (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newTemplateShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show the latest version of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tpl, err := client.GetTemplate(args[0])
			if err != nil {
				return err
			}

			out.Print(templateHeaders, [][]string{templateRow(*tpl)}, tpl)
			return nil
		},
	}
}

func newTemplateDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a template with all versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteTemplate(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Template deleted: %s", args[0]))
			return nil
		},
	}
}

func newTemplateVersionsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "versions TEMPLATE_ID",
		Short: "List template versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			versions, err := client.ListVersions(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "VERSION", "NAME", "CREATED"}
			rows := make([][]string, len(versions))
			for i, v := range versions {
				rows[i] = []string{v.ID, strconv.Itoa(v.Version), v.Name, v.CreatedAt}
			}

			out.Print(headers, rows, versions)
			return nil
		},
	}
}

func newTemplatePublishCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "publish TEMPLATE_ID",
		Short: "Publish a new template version from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read definition file: %w", err)
			}
			if !json.Valid(data) {
				return fmt.Errorf("definition file is not valid JSON")
			}

			tpl, err := client.PublishVersion(args[0], json.RawMessage(data))
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Version %d published for template %s", tpl.Version, tpl.ID))
			out.Print(templateHeaders, [][]string{templateRow(*tpl)}, tpl)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to version definition JSON (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}
