package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/reglet-dev/execsafety/domain/errors"
)

// Settings is an externally persisted settings document, decoded from JSON
// or YAML into nested maps. Keys may be addressed with dotted paths.
type Settings = map[string]any

// lookup resolves a dotted key such as "execution.flags.checkpoint_rollback".
// A literal key containing dots wins over the nested path.
func lookup(settings Settings, key string) (any, bool) {
	if v, ok := settings[key]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(key, ".")
	if !found {
		return nil, false
	}
	switch child := settings[head].(type) {
	case map[string]any:
		return lookup(child, rest)
	case map[any]any:
		converted := make(map[string]any, len(child))
		for k, v := range child {
			converted[fmt.Sprint(k)] = v
		}
		return lookup(converted, rest)
	default:
		return nil, false
	}
}

// GetString extracts a string, returning (value, found).
func GetString(settings Settings, key string) (string, bool) {
	v, ok := lookup(settings, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt extracts an int, handling int, int64, and float64.
func GetInt(settings Settings, key string) (int, bool) {
	v, ok := lookup(settings, key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// GetBool extracts a bool. The strings "true", "1", "on" and their negations
// are accepted since settings UIs often store toggles as text.
func GetBool(settings Settings, key string) (bool, bool) {
	v, ok := lookup(settings, key)
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		return parseBool(b)
	default:
		return false, false
	}
}

// GetDuration extracts a duration given as a Go duration string or as
// a number of milliseconds.
func GetDuration(settings Settings, key string) (time.Duration, bool) {
	if s, ok := GetString(settings, key); ok {
		d, err := time.ParseDuration(s)
		return d, err == nil
	}
	if ms, ok := GetInt(settings, key); ok {
		return time.Duration(ms) * time.Millisecond, true
	}
	return 0, false
}

// GetStringSlice extracts a []string, returning (value, found).
func GetStringSlice(settings Settings, key string) ([]string, bool) {
	v, ok := lookup(settings, key)
	if !ok {
		return nil, false
	}
	if ss, ok := v.([]string); ok {
		return ss, true
	}
	// JSON and YAML arrays decode as []interface{}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	result := make([]string, 0, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		result = append(result, s)
	}
	return result, true
}

// MustGetString extracts a required string or returns a ConfigError.
func MustGetString(settings Settings, key string) (string, error) {
	s, ok := GetString(settings, key)
	if !ok {
		return "", &errors.ConfigError{
			Field: key,
			Err:   fmt.Errorf("required string field '%s' is missing or not a string", key),
		}
	}
	return s, nil
}

// flagKeys maps each feature flag to the settings keys it may be stored under.
var flagKeys = []struct {
	set  func(*entities.FeatureFlags, bool)
	keys []string
}{
	{func(f *entities.FeatureFlags, v bool) { f.LifecycleEvents = v }, []string{"lifecycleEvents", "lifecycle_events"}},
	{func(f *entities.FeatureFlags, v bool) { f.InstallOrchestration = v }, []string{"installOrchestration", "install_orchestration"}},
	{func(f *entities.FeatureFlags, v bool) { f.CheckpointRollback = v }, []string{"checkpointRollback", "checkpoint_rollback"}},
	{func(f *entities.FeatureFlags, v bool) { f.ContainerExecution = v }, []string{"containerExecution", "container_execution"}},
}

// FlagsFromSettings reads feature flags stored under prefix (for example
// "capabilities.flags"), in camelCase or snake_case. Missing flags keep
// their default value.
func FlagsFromSettings(settings Settings, prefix string) entities.FeatureFlags {
	flags := entities.DefaultFeatureFlags()
	for _, fk := range flagKeys {
		for _, k := range fk.keys {
			if prefix != "" {
				k = prefix + "." + k
			}
			if v, ok := GetBool(settings, k); ok {
				fk.set(&flags, v)
				break
			}
		}
	}
	return flags
}

// AutonomyFromSettings reads the autonomy mode at key, defaulting to standard.
func AutonomyFromSettings(settings Settings, key string) entities.AutonomyMode {
	s, ok := GetString(settings, key)
	if !ok {
		return entities.AutonomyStandard
	}
	switch m := entities.AutonomyMode(strings.ToLower(strings.TrimSpace(s))); m {
	case entities.AutonomyRestrictive, entities.AutonomyStandard, entities.AutonomyPermissive:
		return m
	default:
		return entities.AutonomyStandard
	}
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "on", "yes":
		return true, true
	case "false", "0", "off", "no":
		return false, true
	default:
		return false, false
	}
}
