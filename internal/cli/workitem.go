package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewWorkItemCmd создаёт группу команд для рабочих заданий.
func NewWorkItemCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workitem",
		Short: "Manage work items",
	}

	cmd.AddCommand(
		newWorkItemListCmd(clientFn, outputFn),
		newWorkItemShowCmd(clientFn, outputFn),
		newWorkItemCompleteCmd(clientFn, outputFn),
	)

	return cmd
}

func workItemRow(w WorkItemResponse) []string {
	return []string{w.ID, w.StepID, w.Title, w.AssignedTo, w.Status, w.DueAt}
}

var workItemHeaders = []string{"ID", "STEP", "TITLE", "ASSIGNEE", "STATUS", "DUE"}

func newWorkItemListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var assignee string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open work items of an assignee",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			items, err := client.ListWorkItems(assignee)
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

	cmd.Flags().StringVar(&assignee, "assignee", "", "Assignee (required)")
	cmd.MarkFlagRequired("assignee")

	return cmd
}

func newWorkItemShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show work item details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			item, err := client.GetWorkItem(args[0])
			if err != nil {
				return err
			}

			out.Print(workItemHeaders, [][]string{workItemRow(*item)}, item)
			return nil
		},
	}
}

func newWorkItemCompleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "complete ID",
		Short: "Mark a work item as done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			item, err := client.CompleteWorkItem(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Work item completed: %s", item.ID))
			out.Print(workItemHeaders, [][]string{workItemRow(*item)}, item)
			return nil
		},
	}
}
