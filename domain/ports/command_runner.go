package ports

import (
	"context"
)

// CommandRunner defines the interface for shell command execution.
// Infrastructure adapters implement this to run install recipes, verify
// commands and PATH probes.
type CommandRunner interface {
	// Run executes a command and returns the result. A non-nil error means
	// the command could not be started; a non-zero exit is reported in the result.
	Run(ctx context.Context, req CommandRequest) (*CommandResult, error)
}

// CommandRequest holds parameters for command execution.
type CommandRequest struct {
	// Command is a shell command line, run through sh -c.
	Command string
	Dir     string
	Env     []string
	Timeout int // milliseconds
	// Image runs the command inside a throwaway container when set.
	Image string
}

// CommandResult represents the result of a command execution.
type CommandResult struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMs int64
	IsTimeout  bool
	Truncated  bool
}

// Succeeded reports a zero exit without timeout.
func (r *CommandResult) Succeeded() bool {
	return r != nil && r.ExitCode == 0 && !r.IsTimeout
}

// CombinedOutput joins stdout and stderr for previews.
func (r *CommandResult) CombinedOutput() string {
	if r == nil {
		return ""
	}
	switch {
	case r.Stdout == "":
		return r.Stderr
	case r.Stderr == "":
		return r.Stdout
	default:
		return r.Stdout + "\n" + r.Stderr
	}
}
