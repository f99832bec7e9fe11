package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var socketFlag string
	var configFlag string

	ctx := newCommandContext(&socketFlag, &configFlag)

	rootCmd := &cobra.Command{
		Use:           "nftpin",
		Short:         "Keep the NFTs in your wallet pinned on a local IPFS node",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "Path to the nftpin daemon socket")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddGroup(
		&cobra.Group{ID: "daemon", Title: "Daemon:"},
		&cobra.Group{ID: "pins", Title: "Pins:"},
	)
	daemonCmds := append(newLifecycleCommands(ctx), newDaemonRunCommand(ctx), newLogsCommand(ctx), newStatusCommand(ctx))
	pinCmds := []*cobra.Command{
		newListCommand(ctx),
		newPinCommand(ctx),
		newAutoPinCommand(ctx),
		newRestoreCommand(ctx),
		newResetCommand(ctx),
	}
	for _, cmd := range daemonCmds {
		cmd.GroupID = "daemon"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range pinCmds {
		cmd.GroupID = "pins"
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(newTestNotifyCommand(ctx), newConfigCommand(ctx))

	return rootCmd
}
