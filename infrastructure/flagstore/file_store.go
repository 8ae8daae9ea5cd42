// Package flagstore persists feature flags across processes.
package flagstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/reglet-dev/execsafety/domain/ports"
	"gopkg.in/yaml.v3"
)

// document is the on-disk layout. Unknown keys are ignored on load.
type document struct {
	Flags entities.FeatureFlags `yaml:"flags"`
}

// fileStoreConfig holds configuration for the FileStore.
type fileStoreConfig struct {
	path     string
	dirPerm  os.FileMode
	filePerm os.FileMode
}

func defaultFileStoreConfig() fileStoreConfig {
	home, _ := os.UserHomeDir()
	return fileStoreConfig{
		path:     filepath.Join(home, ".execsafety", "flags.yaml"),
		dirPerm:  0o755,
		filePerm: 0o600,
	}
}

// FileStoreOption configures a FileStore instance.
type FileStoreOption func(*fileStoreConfig)

// WithPath sets the path to the flags file.
func WithPath(path string) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.path = path
	}
}

// WithFilePermissions sets the mode of the flags file. Default is 0o600.
func WithFilePermissions(perm os.FileMode) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.filePerm = perm
	}
}

// WithDirPermissions sets the mode of created parent directories. Default is 0o755.
func WithDirPermissions(perm os.FileMode) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.dirPerm = perm
	}
}

// FileStore keeps feature flags in a YAML file.
type FileStore struct {
	config fileStoreConfig
}

var _ ports.FlagStore = (*FileStore)(nil)

// NewFileStore creates a new FileStore with the given options.
func NewFileStore(opts ...FileStoreOption) *FileStore {
	cfg := defaultFileStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &FileStore{config: cfg}
}

// Load reads the saved flags. Flags missing from the file, or a missing
// file, fall back to DefaultFeatureFlags.
func (s *FileStore) Load() (entities.FeatureFlags, error) {
	doc := document{Flags: entities.DefaultFeatureFlags()}

	data, err := os.ReadFile(s.config.path)
	if os.IsNotExist(err) {
		return doc.Flags, nil
	}
	if err != nil {
		return entities.FeatureFlags{}, fmt.Errorf("failed to read flag store: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return entities.FeatureFlags{}, fmt.Errorf("failed to parse flag store %s: %w", s.config.path, err)
	}
	return doc.Flags, nil
}

// Save writes flags through a temporary file so readers never observe a
// partial document.
func (s *FileStore) Save(flags entities.FeatureFlags) error {
	data, err := yaml.Marshal(document{Flags: flags})
	if err != nil {
		return fmt.Errorf("failed to marshal flags: %w", err)
	}

	dir := filepath.Dir(s.config.path)
	if err := os.MkdirAll(dir, s.config.dirPerm); err != nil {
		return fmt.Errorf("failed to create flag store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".flags-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write flag store: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write flag store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write flag store: %w", err)
	}
	if err := os.Chmod(tmp.Name(), s.config.filePerm); err != nil {
		return fmt.Errorf("failed to set flag store permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.config.path); err != nil {
		return fmt.Errorf("failed to replace flag store: %w", err)
	}
	return nil
}

// ConfigPath returns the path to the backing store.
func (s *FileStore) ConfigPath() string {
	return s.config.path
}
