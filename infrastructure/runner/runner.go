// Package runner executes shell command lines on the host or in a
// throwaway container, with a timeout, bounded output and a sanitized
// environment.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	domainerrors "github.com/reglet-dev/execsafety/domain/errors"
	"github.com/reglet-dev/execsafety/domain/ports"
)

// DefaultTimeout applies to requests that carry no timeout.
const DefaultTimeout = 30 * time.Second

// runnerConfig holds configuration for the ShellRunner.
type runnerConfig struct {
	logger           *slog.Logger
	environ          func() []string
	shell            string
	containerRuntime string
	timeout          time.Duration
	waitDelay        time.Duration
	maxOutput        int
}

func defaultRunnerConfig() runnerConfig {
	return runnerConfig{
		logger:           slog.Default(),
		environ:          processEnv,
		shell:            "sh",
		containerRuntime: "docker",
		timeout:          DefaultTimeout,
		waitDelay:        2 * time.Second,
		maxOutput:        DefaultMaxOutput,
	}
}

// RunnerOption configures a ShellRunner.
type RunnerOption func(*runnerConfig)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(c *runnerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithShell sets the shell commands are run through with -c.
func WithShell(shell string) RunnerOption {
	return func(c *runnerConfig) {
		if shell != "" {
			c.shell = shell
		}
	}
}

// WithContainerRuntime sets the container CLI used for requests with an image.
func WithContainerRuntime(bin string) RunnerOption {
	return func(c *runnerConfig) {
		if bin != "" {
			c.containerRuntime = bin
		}
	}
}

// WithDefaultTimeout sets the timeout for requests that carry none.
func WithDefaultTimeout(d time.Duration) RunnerOption {
	return func(c *runnerConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxOutput bounds the bytes kept per stream.
func WithMaxOutput(n int) RunnerOption {
	return func(c *runnerConfig) {
		if n > 0 {
			c.maxOutput = n
		}
	}
}

// WithEnviron replaces os.Environ as the base environment.
func WithEnviron(environ func() []string) RunnerOption {
	return func(c *runnerConfig) {
		if environ != nil {
			c.environ = environ
		}
	}
}

// ShellRunner runs command lines through sh -c.
type ShellRunner struct {
	config runnerConfig
}

var _ ports.CommandRunner = (*ShellRunner)(nil)

// NewShellRunner creates a ShellRunner.
func NewShellRunner(opts ...RunnerOption) *ShellRunner {
	cfg := defaultRunnerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ShellRunner{config: cfg}
}

// Run executes req. It returns an error only when the command could not be
// started; non-zero exits and timeouts are reported in the result.
func (r *ShellRunner) Run(ctx context.Context, req ports.CommandRequest) (*ports.CommandResult, error) {
	if req.Command == "" {
		return nil, &domainerrors.ExecError{Err: errors.New("command is required")}
	}

	timeout := r.config.timeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	env := SanitizeEnv(ctx, r.config.logger, mergeEnv(r.config.environ(), req.Env))
	argv := r.argv(req)

	//nolint:gosec // G204: running caller-approved command lines is the purpose of this type
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if req.Dir != "" && req.Image == "" {
		cmd.Dir = req.Dir
	}
	cmd.Env = env
	// Installers often leave children holding the pipes; don't wait on them forever.
	cmd.WaitDelay = r.config.waitDelay

	stdout, stderr := newTailBuffer(r.config.maxOutput), newTailBuffer(r.config.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	res := &ports.CommandResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: duration.Milliseconds(),
		Truncated:  stdout.Truncated() || stderr.Truncated(),
	}

	if err == nil {
		return res, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.IsTimeout = true
		res.ExitCode = -1
		r.config.logger.WarnContext(ctx, "command timed out", "timeout", timeout, "image", req.Image)
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return nil, &domainerrors.ExecError{Command: argv[0], Err: err}
}

// argv builds the process arguments, wrapping the command in a container
// run when the request names an image.
func (r *ShellRunner) argv(req ports.CommandRequest) []string {
	if req.Image == "" {
		return []string{r.config.shell, "-c", req.Command}
	}
	args := []string{r.config.containerRuntime, "run", "--rm", "-i"}
	if req.Dir != "" {
		args = append(args, "-w", req.Dir)
	}
	for _, e := range req.Env {
		if key, _, ok := strings.Cut(e, "="); ok && !IsBlockedEnv(key) {
			args = append(args, "-e", e)
		}
	}
	return append(args, req.Image, "sh", "-c", req.Command)
}
