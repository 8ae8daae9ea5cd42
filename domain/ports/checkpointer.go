package ports

import "github.com/reglet-dev/execsafety/domain/entities"

// Checkpointer snapshots files before mutation and restores them on failure.
type Checkpointer interface {
	// Create snapshots path. A missing file is recorded, not copied.
	Create(path string) (*entities.FileCheckpoint, error)

	// Restore puts the file back to its checkpointed state and disposes the backup.
	Restore(cp *entities.FileCheckpoint) (entities.RestoreResult, error)

	// Dispose deletes the backup. It is idempotent and never fails.
	Dispose(cp *entities.FileCheckpoint)
}
