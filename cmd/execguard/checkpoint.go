package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/spf13/cobra"
)

func newCheckpointCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Snapshot a file before an edit and roll it back later",
		Long: `Checkpoint commands exchange checkpoints as JSON. Save the output of
"create" and pass it to "restore" or "dispose" with --file, or on stdin.`,
		Example: `  execguard checkpoint create ./config.yaml > cp.json
  execguard checkpoint restore --file cp.json`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <path>",
			Short: "Snapshot a file (a missing file is recorded as absent)",
			Long: `Snapshot a file. An explicit create always takes a checkpoint: the
checkpoint_rollback flag and scratch_roots only govern the automatic
checkpoints taken around guarded writes.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, root, func(a *app) error {
					cp, err := a.services.CreateCheckpoint(args[0])
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), cp)
				})
			},
		},
		newCheckpointUseCmd(root, "restore", "Put the file back to its checkpointed state",
			func(a *app, cp *entities.FileCheckpoint) (any, error) {
				res, err := a.services.RestoreCheckpoint(cp)
				return res, err
			}),
		newCheckpointUseCmd(root, "dispose", "Delete the checkpoint backup without restoring",
			func(a *app, cp *entities.FileCheckpoint) (any, error) {
				a.services.DisposeCheckpoint(cp)
				return entities.RestoreResult{OK: true, Detail: "disposed"}, nil
			}),
	)
	return cmd
}

// newCheckpointUseCmd builds a subcommand that consumes a saved checkpoint.
func newCheckpointUseCmd(root *rootOptions, use, short string, fn func(*app, *entities.FileCheckpoint) (any, error)) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, root, func(a *app) error {
				cp, err := readCheckpoint(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				if err := checkBackupPath(a.checkpoints.Root(), cp); err != nil {
					return err
				}
				out, err := fn(a, cp)
				if werr := writeJSON(cmd.OutOrStdout(), out); werr != nil {
					return werr
				}
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "Checkpoint JSON file, or - for stdin")
	return cmd
}

func readCheckpoint(stdin io.Reader, file string) (*entities.FileCheckpoint, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp entities.FileCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	if cp.ID == "" || cp.FilePath == "" {
		return nil, fmt.Errorf("checkpoint must have id and filePath")
	}
	return &cp, nil
}

// checkBackupPath refuses checkpoints whose backup lives outside the
// checkpoint root, so a crafted document cannot copy arbitrary files.
func checkBackupPath(root string, cp *entities.FileCheckpoint) error {
	if cp.BackupPath == "" {
		if cp.Existed {
			return fmt.Errorf("checkpoint %s has no backup", cp.ID)
		}
		return nil
	}
	rel, err := filepath.Rel(root, cp.BackupPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("checkpoint backup %s is outside %s", cp.BackupPath, root)
	}
	return nil
}
