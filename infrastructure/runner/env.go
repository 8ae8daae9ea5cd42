package runner

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
)

var (
	// blockedEnvPrefixes are dynamic linker injection vectors.
	blockedEnvPrefixes = []string{
		"LD_",   // Linux dynamic linker (LD_PRELOAD, LD_LIBRARY_PATH, LD_AUDIT, etc.)
		"DYLD_", // macOS dynamic linker (DYLD_INSERT_LIBRARIES, etc.)
	}

	// blockedEnvExact alter how the shell running a recipe parses or starts up.
	blockedEnvExact = []string{
		"IFS",      // Shell internal field separator
		"LOCPATH",  // Custom locale path, can execute code via locale files
		"BASH_ENV", // Sourced by non-interactive bash
		"ENV",      // Sourced by POSIX sh
	}
)

// IsBlockedEnv reports whether an environment variable name may never be
// passed to a recipe or probe subprocess.
func IsBlockedEnv(key string) bool {
	upper := strings.ToUpper(key)
	for _, prefix := range blockedEnvPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return slices.Contains(blockedEnvExact, upper)
}

// SanitizeEnv drops blocked and malformed entries from env.
func SanitizeEnv(ctx context.Context, logger *slog.Logger, env []string) []string {
	if logger == nil {
		logger = slog.Default()
	}
	sanitized := make([]string, 0, len(env))
	for _, e := range env {
		key, _, found := strings.Cut(e, "=")
		if !found || key == "" {
			logger.WarnContext(ctx, "malformed environment variable skipped", "env", e)
			continue
		}
		if IsBlockedEnv(key) {
			logger.DebugContext(ctx, "blocked environment variable", "env_var", key)
			continue
		}
		sanitized = append(sanitized, e)
	}
	return sanitized
}

// mergeEnv overlays extra onto base; later keys replace earlier ones.
func mergeEnv(base, extra []string) []string {
	if len(extra) == 0 {
		return base
	}
	index := make(map[string]int, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, e := range append(append([]string(nil), base...), extra...) {
		key, _, _ := strings.Cut(e, "=")
		if i, ok := index[key]; ok {
			out[i] = e
			continue
		}
		index[key] = len(out)
		out = append(out, e)
	}
	return out
}

func processEnv() []string {
	return os.Environ()
}
