// Package config loads process configuration and reads feature flags from
// externally persisted settings.
//
// Configuration is layered, later layers overriding the keys they set:
//  1. Defaults
//  2. Home config (~/.execsafety/config.yaml)
//  3. Project config ($EXECSAFETY_CONFIG, or .execsafety/config.yaml in cwd)
//  4. Environment variables (EXECSAFETY_*)
package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/reglet-dev/execsafety/domain/errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EXECSAFETY_"

// Config is the process configuration.
type Config struct {
	// Autonomy selects the install trust policy.
	Autonomy entities.AutonomyMode `yaml:"autonomy" json:"autonomy" validate:"oneof=restrictive standard permissive"`

	Flags entities.FeatureFlags `yaml:"flags" json:"flags"`

	// AllowedRoots permit destructive operations under otherwise protected paths.
	AllowedRoots []string `yaml:"allowed_roots" json:"allowedRoots"`

	// ScratchRoots are exempt from checkpointing.
	ScratchRoots []string `yaml:"scratch_roots" json:"scratchRoots"`

	CheckpointRoot string `yaml:"checkpoint_root" json:"checkpointRoot" validate:"required"`

	// CatalogPath is an extra capability catalog loaded after the built-in one.
	CatalogPath string `yaml:"catalog_path" json:"catalogPath,omitempty"`

	// FlagsPath persists flag changes made through the CLI.
	FlagsPath string `yaml:"flags_path" json:"flagsPath"`

	ProbeTimeout       time.Duration `yaml:"probe_timeout" json:"probeTimeout" validate:"gt=0"`
	StateTTL           time.Duration `yaml:"state_ttl" json:"stateTTL" validate:"gt=0"`
	Cooldown           time.Duration `yaml:"cooldown" json:"cooldown" validate:"gte=0"`
	InstallParallelism int           `yaml:"install_parallelism" json:"installParallelism" validate:"gte=1,lte=16"`

	TolerateMissingRollback bool `yaml:"tolerate_missing_rollback" json:"tolerateMissingRollback"`
}

// Default returns the default configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Autonomy:           entities.AutonomyStandard,
		Flags:              entities.DefaultFeatureFlags(),
		ScratchRoots:       []string{os.TempDir()},
		CheckpointRoot:     filepath.Join(os.TempDir(), "execsafety-checkpoints"),
		FlagsPath:          filepath.Join(home, ".execsafety", "flags.yaml"),
		ProbeTimeout:       5 * time.Second,
		StateTTL:           30 * time.Second,
		Cooldown:           10 * time.Minute,
		InstallParallelism: 1,
	}
}

// TrustPolicy derives the install trust policy from the autonomy mode.
func (c *Config) TrustPolicy() entities.TrustPolicy {
	return c.Autonomy.TrustPolicy()
}

// loaderConfig holds configuration for Load.
type loaderConfig struct {
	home   string
	cwd    string
	getenv func(string) string
}

func defaultLoaderConfig() loaderConfig {
	home, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()
	return loaderConfig{home: home, cwd: cwd, getenv: os.Getenv}
}

// LoadOption configures Load.
type LoadOption func(*loaderConfig)

// WithHomeDir sets the directory the home config is read from.
func WithHomeDir(dir string) LoadOption {
	return func(c *loaderConfig) {
		c.home = dir
	}
}

// WithWorkingDir sets the directory the project config is read from.
func WithWorkingDir(dir string) LoadOption {
	return func(c *loaderConfig) {
		c.cwd = dir
	}
}

// WithEnv replaces os.Getenv, for tests.
func WithEnv(getenv func(string) string) LoadOption {
	return func(c *loaderConfig) {
		c.getenv = getenv
	}
}

// Load builds the configuration. Missing config files are skipped; malformed
// ones and invalid values are reported as ConfigError.
func Load(opts ...LoadOption) (*Config, error) {
	lc := defaultLoaderConfig()
	for _, opt := range opts {
		opt(&lc)
	}

	cfg := Default()
	for _, path := range lc.paths() {
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg, lc.getenv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// paths returns the config files in increasing precedence.
func (lc loaderConfig) paths() []string {
	var out []string
	if lc.home != "" {
		out = append(out, filepath.Join(lc.home, ".execsafety", "config.yaml"))
	}
	if override := strings.TrimSpace(lc.getenv(EnvPrefix + "CONFIG")); override != "" {
		out = append(out, override)
	} else if lc.cwd != "" {
		out = append(out, filepath.Join(lc.cwd, ".execsafety", "config.yaml"))
	}
	return out
}

// mergeFile decodes path over cfg. Keys absent from the file keep their value.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &errors.ConfigError{Field: path, Err: err}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return &errors.ConfigError{Field: path, Err: fmt.Errorf("failed to parse config: %w", err)}
	}
	return nil
}

// applyEnv applies EXECSAFETY_* overrides.
func applyEnv(cfg *Config, getenv func(string) string) error {
	env := func(name string) (string, bool) {
		v := strings.TrimSpace(getenv(EnvPrefix + name))
		return v, v != ""
	}

	if v, ok := env("AUTONOMY"); ok {
		cfg.Autonomy = entities.AutonomyMode(strings.ToLower(v))
	}
	if v, ok := env("ALLOWED_ROOTS"); ok {
		cfg.AllowedRoots = filepath.SplitList(v)
	}
	if v, ok := env("SCRATCH_ROOTS"); ok {
		cfg.ScratchRoots = filepath.SplitList(v)
	}
	if v, ok := env("CHECKPOINT_ROOT"); ok {
		cfg.CheckpointRoot = v
	}
	if v, ok := env("CATALOG"); ok {
		cfg.CatalogPath = v
	}
	if v, ok := env("FLAGS_PATH"); ok {
		cfg.FlagsPath = v
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"PROBE_TIMEOUT", &cfg.ProbeTimeout},
		{"STATE_TTL", &cfg.StateTTL},
		{"COOLDOWN", &cfg.Cooldown},
	}
	for _, d := range durations {
		if v, ok := env(d.name); ok {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return &errors.ConfigError{Field: EnvPrefix + d.name, Err: err}
			}
			*d.dst = parsed
		}
	}

	if v, ok := env("INSTALL_PARALLELISM"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &errors.ConfigError{Field: EnvPrefix + "INSTALL_PARALLELISM", Err: err}
		}
		cfg.InstallParallelism = n
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"TOLERATE_MISSING_ROLLBACK", &cfg.TolerateMissingRollback},
		{"LIFECYCLE_EVENTS", &cfg.Flags.LifecycleEvents},
		{"INSTALL_ORCHESTRATION", &cfg.Flags.InstallOrchestration},
		{"CHECKPOINT_ROLLBACK", &cfg.Flags.CheckpointRollback},
		{"CONTAINER_EXECUTION", &cfg.Flags.ContainerExecution},
	}
	for _, b := range bools {
		if v, ok := env(b.name); ok {
			parsed, valid := parseBool(v)
			if !valid {
				return &errors.ConfigError{Field: EnvPrefix + b.name, Err: fmt.Errorf("invalid boolean %q", v)}
			}
			*b.dst = parsed
		}
	}
	return nil
}

var validate = validator.New()

// Validate checks a configuration's struct constraints.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &errors.ConfigError{Field: fe.Field(), Err: fmt.Errorf("failed %q constraint (value %v)", fe.Tag(), fe.Value())}
		}
		return &errors.ConfigError{Err: err}
	}
	return nil
}
