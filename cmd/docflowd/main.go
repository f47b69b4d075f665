// Command docflowd runs the docflow daemon: the HTTP API, the IPC socket and
// the background reconcile and autosave loops.
package main

import (
	"log"

	"github.com/spf13/cobra"

	"docflow/internal/config"
	"docflow/internal/daemonrun"
)

func main() {
	var configPath string
	var logLevel string

	cmd := &cobra.Command{
		Use:           "docflowd",
		Short:         "docflow daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	if err := cmd.Execute(); err != nil {
		log.Fatalf("docflowd: %v", err)
	}
}
