package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nftpin/internal/daemonctl"
	"nftpin/internal/ipc"
	"nftpin/internal/pinstore"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pin records",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := ctx.listRecords(cmd, statuses)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, records)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No pin records")
				return nil
			}
			fmt.Fprintln(out, renderTable(recordColumns, buildRecordRows(records, shouldColorize(out))))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only show records with these statuses")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit records as JSON")
	return cmd
}

func (c *commandContext) listRecords(cmd *cobra.Command, statuses []string) ([]ipc.Record, error) {
	var records []ipc.Record
	err := c.withClient(func(client *ipc.Client) error {
		resp, err := client.List(statuses)
		if err != nil {
			return err
		}
		records = resp.Records
		return nil
	})
	if err == nil || !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		return records, err
	}

	wanted := make(map[pinstore.PinStatus]struct{}, len(statuses))
	for _, value := range statuses {
		status, err := ipc.ParseStatus(value)
		if err != nil {
			return nil, err
		}
		wanted[status] = struct{}{}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	entries, err := daemonctl.ListOffline(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if _, ok := wanted[entry.Record.EffectiveStatus()]; len(wanted) > 0 && !ok {
			continue
		}
		records = append(records, ipc.RecordFromEntry(entry))
	}
	return records, nil
}

func buildRecordRows(records []ipc.Record, colorize bool) [][]string {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		lastValidated := record.LastValidated
		if lastValidated == "" {
			lastValidated = "-"
		}
		errText := "-"
		if record.ErrorCode != "" {
			errText = strings.TrimSpace(record.ErrorCode + ": " + record.ErrorMessage)
		}
		rows = append(rows, []string{
			record.Path,
			paintedStatus(record.Status, colorize),
			strconv.Itoa(len(record.CIDs)),
			lastValidated,
			errText,
		})
	}
	return rows
}
