package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"docflow/internal/ipc"
)

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:     "users",
		Aliases: []string{"user"},
		Short:   "Manage accounts",
	}
	usersCmd.AddCommand(newUsersListCommand(ctx))
	usersCmd.AddCommand(newUsersSetCommand(ctx))
	usersCmd.AddCommand(newUsersDeleteCommand(ctx))
	return usersCmd
}

func newUsersListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts and their roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.UserList()
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func(w io.Writer) error {
					rows := make([][]string, 0, len(resp.Users))
					for _, u := range resp.Users {
						rows = append(rows, []string{u.Username, yesNo(u.IsAdmin), joinOrDash(u.Roles), joinOrDash(u.CustomSteps)})
					}
					fmt.Fprintln(w, renderTable([]string{"User", "Admin", "Roles", "Custom steps"}, rows, nil))
					return nil
				})
			})
		},
	}
}

func newUsersSetCommand(ctx *commandContext) *cobra.Command {
	req := ipc.UserSetRequest{}
	cmd := &cobra.Command{
		Use:   "set <username>",
		Short: "Create or replace an account (admin only)",
		Long: "Create or replace an account. Roles grant access to the steps of the same name;\n" +
			"custom steps grant access to steps outside the default pipeline.\n" +
			"Omit --password to keep the existing password.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.User = ctx.actor()
			req.Username = args[0]
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.UserSet(req)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp.User, func(w io.Writer) error {
					fmt.Fprintf(w, "Saved user %s (admin: %s, roles: %s)\n", resp.User.Username, yesNo(resp.User.IsAdmin), joinOrDash(resp.User.Roles))
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.Password, "password", "", "Login password for the HTTP API")
	cmd.Flags().BoolVar(&req.IsAdmin, "admin", false, "Grant administrator rights")
	cmd.Flags().StringSliceVar(&req.Roles, "role", nil, "Step role (repeatable)")
	cmd.Flags().StringSliceVar(&req.CustomSteps, "custom-step", nil, "Extra step the user may act on (repeatable)")
	return cmd
}

func newUsersDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete an account (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.UserDelete(ctx.actor(), args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func(w io.Writer) error {
					fmt.Fprintf(w, "Deleted user %s\n", args[0])
					return nil
				})
			})
		},
	}
}
