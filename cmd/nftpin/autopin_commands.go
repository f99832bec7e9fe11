package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nftpin/internal/ipc"
)

func newAutoPinCommand(ctx *commandContext) *cobra.Command {
	autoCmd := &cobra.Command{
		Use:   "autopin",
		Short: "Control automatic pinning of wallet NFTs",
	}

	autoCmd.AddCommand(&cobra.Command{
		Use:   "enable",
		Short: "Enable auto-pin and reconcile the inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.setAutoPin(cmd, true)
		},
	})
	autoCmd.AddCommand(&cobra.Command{
		Use:   "disable",
		Short: "Disable auto-pin and drop queued work",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.setAutoPin(cmd, false)
		},
	})
	autoCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether auto-pin is enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.AutoPinStatus()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Auto-pin enabled: %s\n", yesNo(resp.Enabled))
				return nil
			})
		},
	})
	return autoCmd
}

func (c *commandContext) setAutoPin(cmd *cobra.Command, enabled bool) error {
	return c.withClient(func(client *ipc.Client) error {
		resp, err := client.SetAutoPin(enabled)
		if err != nil {
			return err
		}
		if resp.Enabled {
			fmt.Fprintln(cmd.OutOrStdout(), "Auto-pin enabled")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Auto-pin disabled")
		}
		return nil
	})
}
