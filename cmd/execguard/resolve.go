package main

import (
	"github.com/spf13/cobra"
)

func newResolveCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <command>",
		Short: "List the capabilities a command needs and which are missing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(a *app) error {
				res := a.registry.ResolveCommandCapabilities(cmd.Context(), commandArg(args))
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}
