package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"docflow/internal/ipc"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run the notification scanner immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Reconcile()
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func(w io.Writer) error {
					fmt.Fprintf(w, "Created %d, removed %d notifications\n", resp.Created, resp.Removed)
					if len(resp.FailedUsers) > 0 {
						fmt.Fprintf(w, "Skipped users: %s\n", joinOrDash(resp.FailedUsers))
					}
					return nil
				})
			})
		},
	}
}

func newBackupCommand(ctx *commandContext) *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Save pending changes and copy the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Backup()
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func(w io.Writer) error {
					fmt.Fprintf(w, "Backup written to %s\n", resp.Path)
					return nil
				})
			})
		},
	}
	backupCmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check database integrity and row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.DatabaseHealth()
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func(w io.Writer) error {
					fmt.Fprintf(w, "Database:      %s\n", resp.Path)
					fmt.Fprintf(w, "Schema:        v%d\n", resp.SchemaVersion)
					fmt.Fprintf(w, "Integrity:     %s\n", resp.Integrity)
					fmt.Fprintf(w, "Documents:     %d\n", resp.Documents)
					fmt.Fprintf(w, "Users:         %d\n", resp.Users)
					fmt.Fprintf(w, "Notifications: %d\n", resp.Notifications)
					return nil
				})
			})
		},
	})
	return backupCmd
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test push notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("missing notification response")
				}
				switch {
				case resp.Message != "":
					fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				case resp.Sent:
					fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
				default:
					fmt.Fprintln(cmd.OutOrStdout(), "Notification not sent")
				}
				return nil
			})
		},
	}
}
