package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"docflow/internal/ipc"
)

// Step edits apply to the global defaults unless --file names a document.
func newStepsCommand(ctx *commandContext) *cobra.Command {
	var fileID string
	stepsCmd := &cobra.Command{
		Use:   "steps",
		Short: "Configure pipeline steps, budgets and assignments (admin only)",
	}
	stepsCmd.PersistentFlags().StringVar(&fileID, "file", "", "Edit this document instead of the global defaults")

	stepsCmd.AddCommand(newStepsShowCommand(ctx, &fileID))
	stepsCmd.AddCommand(newStepsAddCommand(ctx, &fileID))
	stepsCmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.editSteps(cmd, func(client *ipc.Client) (*ipc.StepsResponse, error) {
				return client.StepRemove(ipc.StepRemoveRequest{User: ctx.actor(), FileID: fileID, Name: args[0]})
			})
		},
	})
	stepsCmd.AddCommand(&cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a step, carrying its history, budget and assignment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.editSteps(cmd, func(client *ipc.Client) (*ipc.StepsResponse, error) {
				return client.StepRename(ipc.StepRenameRequest{User: ctx.actor(), FileID: fileID, Name: args[0], NewName: args[1]})
			})
		},
	})
	stepsCmd.AddCommand(&cobra.Command{
		Use:   "reorder <step>...",
		Short: "Replace the step order with a permutation of the existing steps",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.editSteps(cmd, func(client *ipc.Client) (*ipc.StepsResponse, error) {
				return client.StepReorder(ipc.StepReorderRequest{User: ctx.actor(), FileID: fileID, Order: args})
			})
		},
	})
	stepsCmd.AddCommand(&cobra.Command{
		Use:   "budget <step> <minutes>",
		Short: "Set a step's time budget in minutes (0 disables overdue tracking)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("minutes must be an integer: %w", err)
			}
			return ctx.editSteps(cmd, func(client *ipc.Client) (*ipc.StepsResponse, error) {
				return client.SetBudget(ipc.SetBudgetRequest{User: ctx.actor(), FileID: fileID, Step: args[0], Minutes: minutes})
			})
		},
	})
	stepsCmd.AddCommand(newStepsAssignCommand(ctx, &fileID))
	return stepsCmd
}

func newStepsShowCommand(ctx *commandContext, fileID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the default steps, or a document's steps with --file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if *fileID != "" {
					resp, err := client.FileShow(*fileID)
					if err != nil {
						return err
					}
					return ctx.emit(cmd, resp.Document, func(w io.Writer) error {
						renderDocument(w, resp.Document)
						return nil
					})
				}
				status, err := client.Status()
				if err != nil {
					return err
				}
				resp := &ipc.StepsResponse{DefaultSteps: status.Stats.DefaultSteps}
				return ctx.emit(cmd, resp, func(w io.Writer) error {
					renderSteps(w, resp)
					return nil
				})
			})
		},
	}
}

func newStepsAddCommand(ctx *commandContext, fileID *string) *cobra.Command {
	var position int
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.editSteps(cmd, func(client *ipc.Client) (*ipc.StepsResponse, error) {
				return client.StepAdd(ipc.StepAddRequest{User: ctx.actor(), FileID: *fileID, Name: args[0], Position: position})
			})
		},
	}
	cmd.Flags().IntVar(&position, "position", -1, "Zero-based insert position (appends when negative)")
	return cmd
}

func newStepsAssignCommand(ctx *commandContext, fileID *string) *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "assign <step> [user...]",
		Short: "Assign users to a step; no users blocks everyone, --clear restores role-based access",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if clear && len(args) > 1 {
				return errors.New("--clear does not take users")
			}
			return ctx.editSteps(cmd, func(client *ipc.Client) (*ipc.StepsResponse, error) {
				return client.SetAssignment(ipc.SetAssignmentRequest{
					User:   ctx.actor(),
					FileID: *fileID,
					Step:   args[0],
					Users:  args[1:],
					Clear:  clear,
				})
			})
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "Remove the explicit assignment")
	return cmd
}

func (c *commandContext) editSteps(cmd *cobra.Command, fn func(*ipc.Client) (*ipc.StepsResponse, error)) error {
	return c.withClient(func(client *ipc.Client) error {
		resp, err := fn(client)
		if err != nil {
			return err
		}
		return c.emit(cmd, resp, func(w io.Writer) error {
			renderSteps(w, resp)
			return nil
		})
	})
}

func renderSteps(w io.Writer, resp *ipc.StepsResponse) {
	if resp.Document != nil {
		renderDocument(w, *resp.Document)
		return
	}
	rows := make([][]string, 0, len(resp.DefaultSteps))
	for i, step := range resp.DefaultSteps {
		rows = append(rows, []string{strconv.Itoa(i), step})
	}
	fmt.Fprintln(w, renderTable([]string{"#", "Default step"}, rows, []columnAlignment{alignRight, alignLeft}))
}
