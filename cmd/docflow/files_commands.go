package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"docflow/internal/api"
	"docflow/internal/ipc"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	filesCmd := &cobra.Command{
		Use:     "files",
		Aliases: []string{"file"},
		Short:   "Inspect and update documents",
	}
	filesCmd.AddCommand(newFilesListCommand(ctx))
	filesCmd.AddCommand(newFilesShowCommand(ctx))
	filesCmd.AddCommand(newFilesAddCommand(ctx))
	filesCmd.AddCommand(newFilesImportCommand(ctx))
	filesCmd.AddCommand(newFilesUploadCommand(ctx))
	filesCmd.AddCommand(newFilesStatusCommand(ctx))
	filesCmd.AddCommand(newFilesDeleteCommand(ctx))
	return filesCmd
}

func newFilesListCommand(ctx *commandContext) *cobra.Command {
	var step string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents, optionally filtered by current step",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.FileList(strings.TrimSpace(step))
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func(w io.Writer) error {
					if len(resp.Documents) == 0 {
						fmt.Fprintln(w, "No documents")
						return nil
					}
					rows := make([][]string, 0, len(resp.Documents))
					for _, doc := range resp.Documents {
						state := "open"
						if doc.Completed {
							state = "completed"
						}
						rows = append(rows, []string{
							doc.ID,
							orDash(doc.Supplier),
							doc.OriginalFilename,
							doc.CurrentStep,
							highlight(w, state, doc.Overdue),
							yesNo(doc.Overdue),
						})
					}
					fmt.Fprintln(w, renderTable([]string{"ID", "Supplier", "File", "Step", "State", "Overdue"}, rows, nil))
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&step, "step", "", "Only list documents whose current step matches")
	return cmd
}

func newFilesShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a document's steps and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.FileShow(args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp.Document, func(w io.Writer) error {
					renderDocument(w, resp.Document)
					return nil
				})
			})
		},
	}
}

func renderDocument(w io.Writer, doc api.Document) {
	fmt.Fprintf(w, "ID:        %s\n", doc.ID)
	fmt.Fprintf(w, "Supplier:  %s\n", orDash(doc.Supplier))
	fmt.Fprintf(w, "File:      %s\n", doc.OriginalFilename)
	fmt.Fprintf(w, "Created:   %s\n", orDash(doc.CreatedAt))
	fmt.Fprintf(w, "Current:   %s (completed: %s)\n", doc.CurrentStep, yesNo(doc.Completed))

	rows := make([][]string, 0, len(doc.Steps))
	for _, step := range doc.Steps {
		name := step.Name
		if step.Current {
			name = "> " + name
		}
		budget := "-"
		if step.BudgetMinutes > 0 {
			budget = fmt.Sprintf("%d", step.BudgetMinutes)
		}
		rows = append(rows, []string{
			name,
			highlight(w, step.Status, step.Overdue),
			budget,
			formatMinutes(step.WorkedMinutes),
			joinOrDash(step.Assigned),
			orDash(step.LastUser),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Step", "Status", "Budget", "Worked", "Assigned", "Last user"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	))

	if len(doc.History) == 0 {
		return
	}
	fmt.Fprintln(w, "History:")
	for _, entry := range doc.History {
		what := entry.Status
		if entry.Artifact != "" {
			what = "uploaded " + entry.Artifact
		}
		line := fmt.Sprintf("  %s  %-12s %-10s %s", entry.Timestamp, entry.Step, entry.User, what)
		if entry.Comment != "" {
			line += " (" + entry.Comment + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func newFilesAddCommand(ctx *commandContext) *cobra.Command {
	var req api.CreateDocumentRequest
	cmd := &cobra.Command{
		Use:   "add <filename>",
		Short: "Upload a new document, or a revision when --id names an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.OriginalFilename = args[0]
			if strings.TrimSpace(req.Artifact) == "" {
				req.Artifact = args[0]
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.FileCreate(ipc.FileCreateRequest{User: ctx.actor(), File: req})
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp.Document, func(w io.Writer) error {
					fmt.Fprintf(w, "Document %s at step %s\n", resp.Document.ID, resp.Document.CurrentStep)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.ID, "id", "", "Existing document ID to upload a revision to")
	cmd.Flags().StringVar(&req.Supplier, "supplier", "", "Supplier name")
	cmd.Flags().StringVar(&req.Artifact, "artifact", "", "Stored artifact reference (defaults to the filename)")
	cmd.Flags().StringVar(&req.Step, "step", "", "Step the upload belongs to (defaults to the current step)")
	cmd.Flags().StringVar(&req.Comment, "comment", "", "Comment recorded with the upload")
	return cmd
}

func newFilesImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <manifest.yaml>",
		Short: "Upload every document listed in a YAML manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := loadManifest(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				imported := make([]api.Document, 0, len(manifest.Files))
				var failures []error
				for _, file := range manifest.Files {
					resp, err := client.FileCreate(ipc.FileCreateRequest{User: ctx.actor(), File: file})
					if err != nil {
						failures = append(failures, fmt.Errorf("%s: %w", file.OriginalFilename, err))
						continue
					}
					imported = append(imported, resp.Document)
				}
				renderErr := ctx.emit(cmd, api.DocumentListResponse{Documents: imported}, func(w io.Writer) error {
					for _, doc := range imported {
						fmt.Fprintf(w, "Imported %s as %s\n", doc.OriginalFilename, doc.ID)
					}
					fmt.Fprintf(w, "%d of %d documents imported\n", len(imported), len(manifest.Files))
					return nil
				})
				return errors.Join(append(failures, renderErr)...)
			})
		},
	}
}

func newFilesUploadCommand(ctx *commandContext) *cobra.Command {
	var step, comment string
	cmd := &cobra.Command{
		Use:   "upload <id> <artifact>",
		Short: "Record a revised artifact for a step of an existing document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if strings.TrimSpace(step) == "" {
					shown, err := client.FileShow(args[0])
					if err != nil {
						return err
					}
					step = shown.Document.CurrentStep
				}
				artifact := args[1]
				resp, err := client.HistoryAppend(ipc.HistoryAppendRequest{
					User:  ctx.actor(),
					ID:    args[0],
					Entry: api.HistoryRequest{Step: step, Artifact: &artifact, Comment: comment},
				})
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp.Document, func(w io.Writer) error {
					fmt.Fprintf(w, "Uploaded %s to %s/%s\n", artifact, resp.Document.ID, step)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&step, "step", "", "Step the artifact belongs to (defaults to the current step)")
	cmd.Flags().StringVar(&comment, "comment", "", "Comment recorded with the upload")
	return cmd
}

func newFilesStatusCommand(ctx *commandContext) *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "status <id> <step> <status>",
		Short: "Declare a step status, e.g. \"Completed\" to advance the document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StatusUpdate(ipc.StatusUpdateRequest{
					User:    ctx.actor(),
					ID:      args[0],
					Step:    args[1],
					Status:  args[2],
					Comment: comment,
				})
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp.Document, func(w io.Writer) error {
					fmt.Fprintf(w, "Document %s now at step %s\n", resp.Document.ID, resp.Document.CurrentStep)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "Comment recorded with the status")
	return cmd
}

func newFilesDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.FileDelete(ctx.actor(), args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func(w io.Writer) error {
					fmt.Fprintf(w, "Deleted %s\n", args[0])
					return nil
				})
			})
		},
	}
}
