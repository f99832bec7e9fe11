package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"nftpin/internal/ipc"
)

func newRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Reconcile pins against the current inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if err := client.Restore(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Reconciliation requested")
				return nil
			})
		},
	}
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Disable auto-pin, unpin everything, and clear all records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("reset removes every pin; rerun with --yes to confirm")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Reset()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&confirm, "yes", "y", false, "Confirm the reset")
	return cmd
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					if resp != nil && resp.Message != "" {
						fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
					}
					return err
				}
				if resp == nil {
					return errors.New("missing notification response")
				}
				switch {
				case resp.Message != "":
					fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				case resp.Sent:
					fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
				default:
					fmt.Fprintln(cmd.OutOrStdout(), "Notification not sent")
				}
				return nil
			})
		},
	}
}
