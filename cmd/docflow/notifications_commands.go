package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"docflow/internal/ipc"
)

func newNotificationsCommand(ctx *commandContext) *cobra.Command {
	notesCmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"alerts"},
		Short:   "Read the acting user's alerts",
	}

	var unreadOnly bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Notifications(ctx.actor(), unreadOnly)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func(w io.Writer) error {
					if len(resp.Notifications) == 0 {
						fmt.Fprintln(w, "No notifications")
						return nil
					}
					rows := make([][]string, 0, len(resp.Notifications))
					for _, n := range resp.Notifications {
						marker := "*"
						if n.Read {
							marker = ""
						}
						rows = append(rows, []string{marker, n.ID, n.CreatedAt, n.Title, n.Message})
					}
					fmt.Fprintln(w, renderTable([]string{"", "ID", "Created", "Title", "Message"}, rows, nil))
					fmt.Fprintf(w, "%d unread\n", resp.UnreadCount)
					return nil
				})
			})
		},
	}
	listCmd.Flags().BoolVar(&unreadOnly, "unread", false, "Only show unread alerts")

	readCmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark one alert as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.MarkRead(ctx.actor(), args[0])
				if err != nil {
					return err
				}
				return ctx.emitMarked(cmd, resp)
			})
		},
	}

	readAllCmd := &cobra.Command{
		Use:   "read-all",
		Short: "Mark every alert as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.MarkAllRead(ctx.actor())
				if err != nil {
					return err
				}
				return ctx.emitMarked(cmd, resp)
			})
		},
	}

	notesCmd.AddCommand(listCmd, readCmd, readAllCmd)
	return notesCmd
}

func (c *commandContext) emitMarked(cmd *cobra.Command, resp *ipc.MarkReadResponse) error {
	return c.emit(cmd, resp, func(w io.Writer) error {
		fmt.Fprintf(w, "Marked %d as read, %d unread\n", resp.Marked, resp.UnreadCount)
		return nil
	})
}
