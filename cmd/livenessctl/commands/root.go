// Package commands implements the livenessctl command tree.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"liveness/internal/platform/logger"
)

var (
	logLevel string
	log      *slog.Logger
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "livenessctl",
		Short:        "Run or exercise the liveness orchestration service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log = logger.NewWithWriter(cmd.ErrOrStderr(), logLevel)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd(), simulateCmd())
	return root
}
