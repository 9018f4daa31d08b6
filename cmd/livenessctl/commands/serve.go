package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"liveness/internal/app"
	"liveness/internal/platform/config"
	"liveness/internal/platform/logger"
)

func serveCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and outcome relays",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				if err := os.Setenv(config.EnvConfigFile, configFile); err != nil {
					return err
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("log-level") {
				log = logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Server.LogLevel)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, cfg, log)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML config file (overrides "+config.EnvConfigFile+")")
	return cmd
}
