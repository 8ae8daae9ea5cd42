package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/reglet-dev/execsafety/domain/entities"
	domainerrors "github.com/reglet-dev/execsafety/domain/errors"
	"github.com/spf13/cobra"
)

// rootOptions carries global flags to subcommands.
type rootOptions struct {
	configPath string
	autonomy   string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "execguard",
		Short: "Pre-execution safety checks for agent shell commands",
		Long: `execguard evaluates shell commands against a deny/rewrite policy,
resolves and installs the tools they need, and checkpoints files so
failed edits can be rolled back.

Every command prints JSON on stdout. Logs go to stderr.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: .execsafety/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		newEvaluateCmd(opts),
		newResolveCmd(opts),
		newEnsureCmd(opts),
		newCheckpointCmd(opts),
		newFlagsCmd(opts),
		newSchemaCmd(),
	)
	return cmd
}

// withApp builds the application for one command invocation and closes it
// when fn returns.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(*app) error) error {
	a, err := newApp(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// reportError prints err as a structured error document.
func reportError(w io.Writer, err error) {
	_ = writeJSON(w, struct {
		Error *entities.ErrorDetail `json:"error"`
	}{Error: domainerrors.ToErrorDetail(err)})
}

// commandArg joins positional arguments so quoting the command is optional.
func commandArg(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func parseAutonomy(s string) (entities.AutonomyMode, error) {
	switch m := entities.AutonomyMode(strings.ToLower(strings.TrimSpace(s))); m {
	case entities.AutonomyRestrictive, entities.AutonomyStandard, entities.AutonomyPermissive:
		return m, nil
	default:
		return "", fmt.Errorf("unknown autonomy mode %q (want restrictive, standard or permissive)", s)
	}
}
