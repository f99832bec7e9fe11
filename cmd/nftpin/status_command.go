package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"nftpin/internal/daemonctl"
	"nftpin/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, auto-pin, and pin status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}
			renderStatus(cmd.OutOrStdout(), status, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit status as JSON")
	return cmd
}

func renderStatus(out io.Writer, status *ipc.StatusResponse, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
		autoKind, autoText := statusWarn, "Disabled"
		if status.AutoPinEnabled {
			autoKind, autoText = statusOK, "Enabled"
		}
		fmt.Fprintln(out, renderStatusLine("Auto-pin", autoKind, autoText, colorize))
		fmt.Fprintln(out, renderStatusLine("Known tokens", statusInfo, fmt.Sprintf("%d", status.KnownTokens), colorize))
		if status.Restoring {
			fmt.Fprintln(out, renderStatusLine("Reconciliation", statusWarn, "Reading inventory", colorize))
		}
		current := status.Current
		if current == "" {
			current = "Idle"
		}
		fmt.Fprintln(out, renderStatusLine("Current", statusInfo, current, colorize))
		fmt.Fprintln(out, renderStatusLine("Queued", statusInfo, fmt.Sprintf("%d (retries pending: %d)", len(status.Queue), status.PendingRetries), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "Not running", colorize))
	}
	fmt.Fprintln(out)

	if len(status.Preflight) > 0 {
		for _, line := range renderSectionHeader("Checks", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, check := range status.Preflight {
			kind := statusOK
			if !check.Passed {
				kind = statusError
			}
			fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
		}
		fmt.Fprintln(out)
	}

	for _, line := range renderSectionHeader("Pins", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := buildStatusCountRows(status.StatusCounts, colorize)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No pin records")
		return
	}
	fmt.Fprintln(out, renderTable(statusCountColumns, rows))
}
