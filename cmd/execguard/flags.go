package main

import (
	"fmt"
	"strings"

	"github.com/reglet-dev/execsafety/application/config"
	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/spf13/cobra"
)

var flagNames = []string{"lifecycle_events", "install_orchestration", "checkpoint_rollback", "container_execution"}

type flagsOutput struct {
	Flags entities.FeatureFlags `json:"flags"`
	Path  string                `json:"path"`
}

func newFlagsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Show or change feature flags",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective feature flags",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd, root, func(a *app) error {
					return writeJSON(cmd.OutOrStdout(), flagsOutput{Flags: a.services.Flags(), Path: a.flags.ConfigPath()})
				})
			},
		},
		&cobra.Command{
			Use:     "set <name=value>...",
			Short:   "Persist feature flag changes",
			Example: "  execguard flags set install_orchestration=true checkpoint_rollback=on",
			Args:    cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, root, func(a *app) error {
					flags, err := applyFlagArgs(a.services.Flags(), args)
					if err != nil {
						return err
					}
					if err := a.flags.Save(flags); err != nil {
						return err
					}
					a.services.SetFlags(flags)
					return writeJSON(cmd.OutOrStdout(), flagsOutput{Flags: flags, Path: a.flags.ConfigPath()})
				})
			},
		},
	)
	return cmd
}

// applyFlagArgs overlays name=value pairs on current. Names may be given in
// snake_case or camelCase.
func applyFlagArgs(current entities.FeatureFlags, args []string) (entities.FeatureFlags, error) {
	settings := config.Settings{
		"lifecycle_events":      current.LifecycleEvents,
		"install_orchestration": current.InstallOrchestration,
		"checkpoint_rollback":   current.CheckpointRollback,
		"container_execution":   current.ContainerExecution,
	}

	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			return current, fmt.Errorf("expected name=value, got %q", arg)
		}
		key := snakeCase(strings.TrimSpace(name))
		if !isFlagName(key) {
			return current, fmt.Errorf("unknown flag %q (known: %s)", name, strings.Join(flagNames, ", "))
		}
		if _, valid := config.GetBool(config.Settings{"v": value}, "v"); !valid {
			return current, fmt.Errorf("invalid value %q for %s", value, name)
		}
		settings[key] = value
	}
	return config.FlagsFromSettings(settings, ""), nil
}

func isFlagName(name string) bool {
	for _, n := range flagNames {
		if n == name {
			return true
		}
	}
	return false
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
