package main

import (
	domainerrors "github.com/reglet-dev/execsafety/domain/errors"
	"github.com/spf13/cobra"
)

func newEvaluateCmd(root *rootOptions) *cobra.Command {
	var (
		cwd          string
		allowedRoots []string
	)

	cmd := &cobra.Command{
		Use:   "evaluate <command>",
		Short: "Check a command against the safety policy",
		Long: `Evaluate classifies a shell command as allow, rewrite or deny.

Denied commands exit non-zero. A rewrite prints the replacement command.`,
		Example: `  execguard evaluate 'rm -rf ./build'
  execguard evaluate --allow-root /etc/app 'rm -rf /etc/app/conf.d'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(a *app) error {
				opts := a.evaluateOptions()
				opts.Cwd = cwd
				opts.AllowedRoots = append(opts.AllowedRoots, allowedRoots...)
				decision := a.services.Evaluate(cmd.Context(), commandArg(args), opts)
				if err := writeJSON(cmd.OutOrStdout(), decision); err != nil {
					return err
				}
				if decision.IsDenied() {
					return &domainerrors.PolicyViolationError{Command: commandArg(args), Reason: decision.Reason, Detail: decision.Detail}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&cwd, "cwd", "", "Directory relative paths resolve against")
	cmd.Flags().StringArrayVar(&allowedRoots, "allow-root", nil, "Permit destructive operations under this path (repeatable)")
	return cmd
}
