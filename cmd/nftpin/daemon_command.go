package main

import (
	"github.com/spf13/cobra"

	"nftpin/internal/daemonrun"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var diagnostic bool
	var logLevel string
	var development bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the nftpin daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg.Paths.SocketPath = ctx.socketPath()
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
				Diagnostic:  diagnostic,
			})
		},
	}
	cmd.Flags().BoolVar(&diagnostic, "diagnostic", false, "Enable diagnostic mode with separate DEBUG logs")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log records")
	return cmd
}
