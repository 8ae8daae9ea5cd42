// Package prober checks whether executables are reachable on PATH.
package prober

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/reglet-dev/execsafety/domain/ports"
)

// DefaultTimeoutMs bounds one probe.
const DefaultTimeoutMs = 5000

// binaryName restricts probed names to characters that need no shell quoting.
var binaryName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+-]*$`)

// PathProber asks the shell whether a binary resolves, via `command -v`.
type PathProber struct {
	runner    ports.CommandRunner
	timeoutMs int
}

var _ ports.BinaryProber = (*PathProber)(nil)

// NewPathProber creates a prober that runs through runner.
func NewPathProber(runner ports.CommandRunner, timeoutMs int) *PathProber {
	if timeoutMs <= 0 {
		timeoutMs = DefaultTimeoutMs
	}
	return &PathProber{runner: runner, timeoutMs: timeoutMs}
}

// Probe reports whether binary is on PATH, with its resolved location as detail.
func (p *PathProber) Probe(ctx context.Context, binary string) (bool, string, error) {
	if !binaryName.MatchString(binary) {
		return false, fmt.Sprintf("invalid binary name %q", binary), nil
	}

	res, err := p.runner.Run(ctx, ports.CommandRequest{
		Command: "command -v " + binary,
		Timeout: p.timeoutMs,
	})
	if err != nil {
		return false, "", fmt.Errorf("probe for %s: %w", binary, err)
	}
	if res.IsTimeout {
		return false, "", fmt.Errorf("probe for %s timed out after %dms", binary, p.timeoutMs)
	}
	if !res.Succeeded() {
		return false, "not found on PATH", nil
	}

	location := strings.TrimSpace(res.Stdout)
	// command -v prints the bare name for builtins, functions and aliases.
	if location == "" || !strings.Contains(location, "/") {
		return false, "not an executable on PATH", nil
	}
	return true, location, nil
}
