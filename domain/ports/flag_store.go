package ports

import "github.com/reglet-dev/execsafety/domain/entities"

// FlagStore provides persistence for subsystem feature flags.
type FlagStore interface {
	// Load retrieves the flags.
	// Returns DefaultFeatureFlags (not error) if nothing was saved yet.
	Load() (entities.FeatureFlags, error)

	// Save persists the flags.
	Save(flags entities.FeatureFlags) error

	// ConfigPath returns the path to the backing store (for user messaging).
	ConfigPath() string
}
