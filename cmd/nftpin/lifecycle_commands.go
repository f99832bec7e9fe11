package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nftpin/internal/daemonctl"
)

// lifecycleTimeout bounds both waiting for the socket after launch and
// waiting for exit after SIGTERM.
const lifecycleTimeout = 10 * time.Second

func newLifecycleCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newStartCommand(ctx),
		newStopCommand(ctx),
		newRestartCommand(ctx),
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var diagnostic bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the pinning daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, ctx.launchOptions(diagnostic), lifecycleTimeout)
			if err != nil {
				return err
			}
			state := "started"
			if result.AlreadyRunning {
				state = "already running"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon %s (pid %d)\n", state, result.PID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&diagnostic, "diagnostic", false, "Also write DEBUG logs under log_dir/debug")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the pinning daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), cfg, lifecycleTimeout)
			switch {
			case errors.Is(err, daemonctl.ErrDaemonNotRunning):
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			case err != nil:
				return err
			case result.ForcedKill:
				fmt.Fprintf(out, "Daemon (pid %d) ignored SIGTERM and was killed\n", result.PID)
			default:
				fmt.Fprintln(out, "Daemon stopped")
			}
			return nil
		},
	}
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	var diagnostic bool
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop the pinning daemon if running, then start it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.Restart(ctx.socketPath(), cfg, exe, ctx.launchOptions(diagnostic), lifecycleTimeout, lifecycleTimeout)
			if err != nil {
				return err
			}
			if result.WasRunning {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon restarted (pid %d)\n", result.Start.PID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&diagnostic, "diagnostic", false, "Also write DEBUG logs under log_dir/debug")
	return cmd
}

// launchOptions forwards the caller's --socket and --config to the child daemon.
func (c *commandContext) launchOptions(diagnostic bool) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		Diagnostic: diagnostic,
		SocketPath: flagValue(c.socketFlag),
		ConfigPath: flagValue(c.configFlag),
	}
}

func flagValue(flag *string) string {
	if flag == nil {
		return ""
	}
	return strings.TrimSpace(*flag)
}
