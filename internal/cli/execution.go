package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для управления executions.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execution",
		Short: "Manage workflow executions",
	}

	cmd.AddCommand(
		newExecutionListCmd(clientFn, outputFn),
		newExecutionStartCmd(clientFn, outputFn),
		newExecutionShowCmd(clientFn, outputFn),
		newExecutionPauseCmd(clientFn, outputFn),
		newExecutionResumeCmd(clientFn, outputFn),
		newExecutionCancelCmd(clientFn, outputFn),
		newExecutionStepsCmd(clientFn, outputFn),
		newExecutionWorkItemsCmd(clientFn, outputFn),
	)

	return cmd
}

func executionRow(e ExecutionResponse) []string {
	return []string{
		e.ID, e.TemplateID, strconv.Itoa(e.TemplateVersion),
		e.Status, strconv.Itoa(e.Progress) + "%", e.CurrentStepID, e.CreatedAt,
	}
}

var executionHeaders = []string{"ID", "TEMPLATE", "VER", "STATUS", "PROGRESS", "STEP", "CREATED"}

func newExecutionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListExecutionsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			execs, err := client.ListExecutions(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(execs))
			for i, e := range execs {
				rows[i] = executionRow(e)
			}

			out.Print(executionHeaders, rows, execs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.TemplateID, "template", "", "Filter by template ID")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Max results")

	return cmd
}

func newExecutionStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		version       int
		variablesJSON string
		variablesFile string
		orgID         string
		assignee      string
	)

	cmd := &cobra.Command{
		Use:   "start TEMPLATE_ID",
		Short: "Start an execution of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			variables, err := loadVariables(variablesJSON, variablesFile)
			if err != nil {
				return err
			}

			req := StartExecutionRequest{
				Version:    version,
				Variables:  variables,
				Context:    map[string]any{"organization_id": orgID},
				AssignedTo: assignee,
			}

			exec, err := client.StartExecution(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution started: %s", exec.ID))
			out.Print(executionHeaders, [][]string{executionRow(*exec)}, exec)
			return nil
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Template version (0 = latest)")
	cmd.Flags().StringVar(&variablesJSON, "variables", "", "Variables as inline JSON object")
	cmd.Flags().StringVar(&variablesFile, "variables-file", "", "Path to variables JSON file")
	cmd.Flags().StringVar(&orgID, "org", "", "Organization ID (required)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "Execution assignee")
	cmd.MarkFlagRequired("org")

	return cmd
}

func newExecutionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show execution details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			exec, err := client.GetExecution(args[0])
			if err != nil {
				return err
			}

			out.Print(executionHeaders, [][]string{executionRow(*exec)}, exec)
			return nil
		},
	}
}

func newExecutionPauseCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "pause ID",
		Short: "Pause a running execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			exec, err := client.PauseExecution(args[0], reason)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution paused: %s", exec.ID))
			out.Print(executionHeaders, [][]string{executionRow(*exec)}, exec)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Pause reason")

	return cmd
}

func newExecutionResumeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "resume ID",
		Short: "Resume a paused execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			exec, err := client.ResumeExecution(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution resumed: %s", exec.ID))
			out.Print(executionHeaders, [][]string{executionRow(*exec)}, exec)
			return nil
		},
	}
}

func newExecutionCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			exec, err := client.CancelExecution(args[0], reason)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution cancelled: %s", exec.ID))
			out.Print(executionHeaders, [][]string{executionRow(*exec)}, exec)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Cancellation reason")

	return cmd
}

func newExecutionStepsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "steps EXECUTION_ID",
		Short: "List step records of an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			steps, err := client.ListSteps(args[0])
			if err != nil {
				return err
			}

			headers := []string{"STEP", "NAME", "TYPE", "STATUS", "RETRIES", "ASSIGNEE", "FINISHED"}
			rows := make([][]string, len(steps))
			for i, s := range steps {
				rows[i] = []string{
					s.StepID, s.Name, s.Type, s.Status,
					strconv.Itoa(s.RetryCount), s.AssignedTo, s.FinishedAt,
				}
			}

			out.Print(headers, rows, steps)
			return nil
		},
	}
}

func newExecutionWorkItemsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "workitems EXECUTION_ID",
		Short: "List work items created by an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			items, err := client.ListExecutionWorkItems(args[0])
			if err != nil {
				return err
			}

			rows := make([][]string, len(items))
			for i, w := range items {
				rows[i] = workItemRow(w)
			}

			out.Print(workItemHeaders, rows, items)
			return nil
		},
	}
}

// loadVariables читает переменные из inline JSON или файла.
func loadVariables(inline, file string) (map[string]any, error) {
	if inline != "" && file != "" {
		return nil, fmt.Errorf("--variables and --variables-file are mutually exclusive")
	}

	var data []byte
	switch {
	case inline != "":
		data = []byte(inline)
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read variables file: %w", err)
		}
		data = b
	default:
		return nil, nil
	}

	var vars map[string]any
	if err := json.Unmarshal(data, &vars); err != nil {
		return nil, fmt.Errorf("invalid variables JSON: %w", err)
	}
	return vars, nil
}
