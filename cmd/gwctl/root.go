package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "gwctl",
		Short:         "Gateway RPC client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.register(cmd)

	cmd.AddCommand(
		newConnectCommand(flags),
		newCallCommand(flags),
		newChatCommand(flags),
		newDiscoverCommand(flags),
		newVersionCommand(),
	)
	return cmd
}
