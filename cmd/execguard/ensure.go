package main

import (
	"errors"
	"strings"

	domainerrors "github.com/reglet-dev/execsafety/domain/errors"
	"github.com/spf13/cobra"
)

func newEnsureCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensure <command>",
		Short: "Evaluate a command and install the capabilities it is missing",
		Long: `Ensure runs the policy check and, unless the command is denied,
installs missing capabilities with the trust policy of the autonomy mode.

Installs only run when the install_orchestration flag is on; otherwise the
report lists what is missing and marks itself skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(a *app) error {
				prep := a.services.PrepareCommand(cmd.Context(), commandArg(args), a.evaluateOptions())
				if err := writeJSON(cmd.OutOrStdout(), prep); err != nil {
					return err
				}
				if !prep.Runnable() {
					return &domainerrors.PolicyViolationError{Command: commandArg(args), Reason: prep.Decision.Reason, Detail: prep.Decision.Detail}
				}
				if prep.Install != nil && !prep.Install.OK {
					failed := make([]string, 0, len(prep.Install.Failed))
					for _, r := range prep.Install.Failed {
						failed = append(failed, r.CapabilityID)
					}
					return errors.New("failed to install: " + strings.Join(failed, ", "))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&root.autonomy, "mode", "", "Autonomy mode override (restrictive, standard, permissive)")
	return cmd
}
