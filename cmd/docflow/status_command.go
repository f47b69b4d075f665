package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"docflow/internal/api"
	"docflow/internal/ipc"
	"docflow/internal/preflight"
)

type statusOutput struct {
	Daemon    *api.DaemonStatus `json:"daemon,omitempty"`
	Preflight []preflightRow    `json:"preflight"`
}

type preflightRow struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, workflow and environment status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out statusOutput
			for _, r := range preflight.RunAll(cmd.Context(), ctx.configValue()) {
				out.Preflight = append(out.Preflight, preflightRow{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
			}
			err := ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				out.Daemon = status
				return nil
			})
			if err != nil && !ctx.jsonOutput() {
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon: not reachable (%v)\n", err)
			}
			return ctx.emit(cmd, out, func(w io.Writer) error {
				renderStatus(w, out)
				return nil
			})
		},
	}
}

func renderStatus(w io.Writer, out statusOutput) {
	if d := out.Daemon; d != nil {
		fmt.Fprintf(w, "Daemon:    running=%s pid=%d\n", yesNo(d.Running), d.PID)
		fmt.Fprintf(w, "Database:  %s\n", d.DatabasePath)
		if d.APIBind != "" {
			fmt.Fprintf(w, "HTTP API:  %s\n", d.APIBind)
		}
		fmt.Fprintf(w, "Workflow:  running=%s last reconcile=%s last save=%s\n",
			yesNo(d.Workflow.Running), orDash(d.Workflow.LastReconcile), orDash(d.Workflow.LastSave))
		if d.Workflow.LastError != "" {
			fmt.Fprintf(w, "Last error: %s\n", d.Workflow.LastError)
		}
		fmt.Fprintf(w, "Documents: %d total, %d completed, %d overdue\n", d.Stats.Documents, d.Stats.Completed, d.Stats.Overdue)
		fmt.Fprintf(w, "Alerts:    %d total, %d unread across %d users\n", d.Stats.Notifications, d.Stats.Unread, d.Stats.Users)

		rows := make([][]string, 0, len(d.Stats.ByStep))
		for _, step := range orderedSteps(d.Stats.DefaultSteps, d.Stats.ByStep) {
			rows = append(rows, []string{step, strconv.Itoa(d.Stats.ByStep[step])})
		}
		if len(rows) > 0 {
			fmt.Fprintln(w, renderTable([]string{"Step", "Documents"}, rows, []columnAlignment{alignLeft, alignRight}))
		}
	}
	if len(out.Preflight) > 0 {
		fmt.Fprintln(w, "Preflight:")
		for _, r := range out.Preflight {
			mark := "ok"
			if !r.Passed {
				mark = "FAIL"
			}
			fmt.Fprintf(w, "  [%s] %s: %s\n", mark, r.Name, r.Detail)
		}
	}
}

// orderedSteps lists the default steps first, then any other step that
// currently holds documents.
func orderedSteps(defaults []string, counts map[string]int) []string {
	seen := make(map[string]bool, len(defaults))
	out := make([]string, 0, len(counts))
	for _, step := range defaults {
		seen[step] = true
		out = append(out, step)
	}
	var extra []string
	for step := range counts {
		if !seen[step] {
			extra = append(extra, step)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
