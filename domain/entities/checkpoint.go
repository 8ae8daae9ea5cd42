package entities

import "time"

// FileCheckpoint is a recoverable snapshot of a file's pre-mutation state.
// BackupPath is empty when the file did not exist.
type FileCheckpoint struct {
	CreatedAt  time.Time `json:"createdAt"`
	ID         string    `json:"id"`
	FilePath   string    `json:"filePath"`
	BackupPath string    `json:"backupPath,omitempty"`
	// Digest is the blake3 hex digest of the backup contents.
	Digest  string `json:"digest,omitempty"`
	Mode    uint32 `json:"mode,omitempty"`
	Existed bool   `json:"existed"`
}

// RestoreResult reports the outcome of a restore.
type RestoreResult struct {
	Detail string `json:"detail,omitempty"`
	OK     bool   `json:"ok"`
}
