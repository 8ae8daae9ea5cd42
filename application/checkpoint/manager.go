// Package checkpoint snapshots files before mutation and restores them on failure.
package checkpoint

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reglet-dev/execsafety/domain/entities"
	domainerrors "github.com/reglet-dev/execsafety/domain/errors"
	"github.com/reglet-dev/execsafety/domain/ports"
	"github.com/zeebo/blake3"
)

// managerConfig holds configuration for the Manager.
type managerConfig struct {
	logger  *slog.Logger
	now     func() time.Time
	root    string
	dirPerm os.FileMode
}

func defaultManagerConfig() managerConfig {
	return managerConfig{
		logger:  slog.Default(),
		now:     time.Now,
		root:    filepath.Join(os.TempDir(), "execsafety-checkpoints"),
		dirPerm: 0o700,
	}
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerConfig)

// WithRoot sets the directory backups are written to.
func WithRoot(dir string) ManagerOption {
	return func(c *managerConfig) {
		if dir != "" {
			c.root = dir
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(c *managerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(c *managerConfig) {
		c.now = now
	}
}

// Manager creates and restores file checkpoints. It does not lock target
// paths; callers serialize checkpoints of the same file.
//
// Every checkpoint has a pending marker in the root directory until it is
// restored or disposed. Restore claims the marker by removing it, so a
// checkpoint is restored at most once even across processes sharing a root.
type Manager struct {
	consumed map[string]bool
	config   managerConfig
	mu       sync.Mutex
}

var _ ports.Checkpointer = (*Manager)(nil)

// NewManager creates a Manager.
func NewManager(opts ...ManagerOption) *Manager {
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager{config: cfg, consumed: make(map[string]bool)}
}

// Root returns the backup directory.
func (m *Manager) Root() string {
	return m.config.root
}

// Create snapshots path. A file that does not exist is recorded with
// Existed=false and nothing is copied.
func (m *Manager) Create(path string) (*entities.FileCheckpoint, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &domainerrors.CheckpointError{Path: path, Err: err}
	}

	cp := &entities.FileCheckpoint{
		ID:        uuid.NewString(),
		FilePath:  abs,
		CreatedAt: m.config.now(),
	}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		info = nil
	case err != nil:
		return nil, &domainerrors.CheckpointError{Path: abs, Err: err}
	case !info.Mode().IsRegular():
		return nil, &domainerrors.CheckpointError{Path: abs, Err: fmt.Errorf("not a regular file (%s)", info.Mode().Type())}
	}

	if err := os.MkdirAll(m.config.root, m.config.dirPerm); err != nil {
		return nil, &domainerrors.CheckpointError{Path: abs, Err: fmt.Errorf("failed to create checkpoint root: %w", err)}
	}
	if err := m.markPending(cp); err != nil {
		return nil, &domainerrors.CheckpointError{Path: abs, Err: err}
	}

	if info == nil {
		m.config.logger.Debug("checkpoint recorded absent file", "path", abs, "checkpoint", cp.ID)
		return cp, nil
	}

	backup := filepath.Join(m.config.root, cp.ID+".bak")
	digest, err := copyFile(abs, backup, 0o600)
	if err != nil {
		_ = os.Remove(backup)
		_ = os.Remove(m.pendingPath(cp.ID))
		return nil, &domainerrors.CheckpointError{Path: abs, Err: err}
	}

	cp.Existed = true
	cp.BackupPath = backup
	cp.Digest = digest
	cp.Mode = uint32(info.Mode().Perm())
	m.config.logger.Debug("checkpoint created", "path", abs, "checkpoint", cp.ID, "bytes", info.Size())
	return cp, nil
}

// Restore puts the file back to its checkpointed state and disposes the
// backup. A checkpoint can be restored once; later calls, and calls after
// Dispose, report so without touching the file.
func (m *Manager) Restore(cp *entities.FileCheckpoint) (entities.RestoreResult, error) {
	if cp == nil {
		return entities.RestoreResult{Detail: "no checkpoint"}, nil
	}
	if _, err := uuid.Parse(cp.ID); err != nil {
		rerr := &domainerrors.RestoreError{Path: cp.FilePath, CheckpointID: cp.ID, Err: fmt.Errorf("invalid checkpoint id: %w", err)}
		return entities.RestoreResult{Detail: rerr.Error()}, rerr
	}

	m.mu.Lock()
	if m.consumed[cp.ID] {
		m.mu.Unlock()
		return entities.RestoreResult{Detail: "already restored"}, nil
	}
	err := os.Remove(m.pendingPath(cp.ID))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		m.consumed[cp.ID] = true
		m.mu.Unlock()
		m.config.logger.Warn("refusing to restore consumed checkpoint", "path", cp.FilePath, "checkpoint", cp.ID)
		return entities.RestoreResult{Detail: "already restored or disposed"}, nil
	case err != nil:
		m.mu.Unlock()
		rerr := &domainerrors.RestoreError{Path: cp.FilePath, CheckpointID: cp.ID, Err: err}
		return entities.RestoreResult{Detail: rerr.Error()}, rerr
	}
	m.consumed[cp.ID] = true
	m.mu.Unlock()

	if !cp.Existed {
		err := os.Remove(cp.FilePath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return entities.RestoreResult{OK: true, Detail: "file absent as checkpointed"}, nil
		case err != nil:
			return m.restoreFailed(cp, err)
		}
		m.config.logger.Info("rollback removed file created after checkpoint", "path", cp.FilePath)
		return entities.RestoreResult{OK: true, Detail: "removed file created after checkpoint"}, nil
	}

	if err := m.restoreContents(cp); err != nil {
		return m.restoreFailed(cp, err)
	}
	m.Dispose(cp)
	m.config.logger.Info("rollback restored file", "path", cp.FilePath, "checkpoint", cp.ID)
	return entities.RestoreResult{OK: true, Detail: "restored from checkpoint"}, nil
}

// restoreContents copies the backup to a sibling temp file and renames it
// over the target once its digest checks out.
func (m *Manager) restoreContents(cp *entities.FileCheckpoint) error {
	if err := os.MkdirAll(filepath.Dir(cp.FilePath), 0o755); err != nil {
		return fmt.Errorf("failed to recreate parent directory: %w", err)
	}

	mode := os.FileMode(cp.Mode)
	if mode == 0 {
		mode = 0o644
	}

	suffix := cp.ID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	tmp := fmt.Sprintf("%s.restore-%s", cp.FilePath, suffix)
	digest, err := copyFile(cp.BackupPath, tmp, mode)
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if cp.Digest != "" && digest != cp.Digest {
		_ = os.Remove(tmp)
		return fmt.Errorf("backup digest mismatch: have %s, recorded %s", digest, cp.Digest)
	}
	if err := os.Chmod(tmp, mode); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, cp.FilePath); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (m *Manager) restoreFailed(cp *entities.FileCheckpoint, err error) (entities.RestoreResult, error) {
	// A failed restore leaves the checkpoint retryable.
	m.mu.Lock()
	delete(m.consumed, cp.ID)
	if merr := m.markPending(cp); merr != nil {
		m.config.logger.Warn("failed to re-arm checkpoint", "checkpoint", cp.ID, "error", merr)
	}
	m.mu.Unlock()

	rerr := &domainerrors.RestoreError{Path: cp.FilePath, CheckpointID: cp.ID, Err: err}
	m.config.logger.Error("rollback failed, file may be partially modified",
		"path", cp.FilePath, "checkpoint", cp.ID, "error", err)
	return entities.RestoreResult{Detail: rerr.Error()}, rerr
}

// Dispose deletes the backup and the pending marker, after which the
// checkpoint can no longer be restored. Repeated calls and missing backups
// are fine.
func (m *Manager) Dispose(cp *entities.FileCheckpoint) {
	if cp == nil {
		return
	}
	if _, err := uuid.Parse(cp.ID); err == nil {
		removeQuietly(m.config.logger, m.pendingPath(cp.ID))
	}
	if cp.BackupPath != "" {
		removeQuietly(m.config.logger, cp.BackupPath)
	}
}

func removeQuietly(logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to dispose checkpoint file", "file", path, "error", err)
	}
}

func (m *Manager) pendingPath(id string) string {
	return filepath.Join(m.config.root, id+".pending")
}

func (m *Manager) markPending(cp *entities.FileCheckpoint) error {
	if err := os.WriteFile(m.pendingPath(cp.ID), []byte(cp.FilePath+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write checkpoint marker: %w", err)
	}
	return nil
}

// copyFile copies src to dst and returns the blake3 hex digest of the bytes written.
func copyFile(src, dst string, perm os.FileMode) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return "", err
	}

	h := blake3.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
