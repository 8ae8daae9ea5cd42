package policy

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/reglet-dev/execsafety/domain/ports"
	"github.com/reglet-dev/execsafety/domain/shell"
)

// DefaultProtectedRoots are system locations destructive commands may not touch
// unless the caller allows them explicitly. Entries are doublestar patterns.
var DefaultProtectedRoots = []string{
	"/etc", "/usr", "/var", "/bin", "/sbin", "/lib*", "/boot", "/root", "/opt",
}

// destructiveCommands mutate or remove their path arguments.
var destructiveCommands = map[string]bool{
	"rm": true, "mv": true, "cp": true, "chmod": true, "chown": true,
	"dd": true, "truncate": true, "ln": true,
}

// maxNestedDepth bounds recursion into sh -c scripts.
const maxNestedDepth = 3

// policyConfig holds configuration for the Engine.
type policyConfig struct {
	cwd            string   // Fallback working directory for relative path resolution
	home           string   // Home directory for ~ expansion
	protectedRoots []string // doublestar patterns
	rewrites       bool     // Whether the rewrite pass runs
}

func defaultPolicyConfig() policyConfig {
	cwd, _ := os.Getwd()
	home, _ := os.UserHomeDir()
	return policyConfig{
		cwd:            cwd,
		home:           home,
		protectedRoots: DefaultProtectedRoots,
		rewrites:       true,
	}
}

// PolicyOption configures the Engine.
type PolicyOption func(*policyConfig)

// WithWorkingDirectory sets the working directory used when EvaluateOptions.Cwd is empty.
func WithWorkingDirectory(cwd string) PolicyOption {
	return func(c *policyConfig) {
		c.cwd = cwd
	}
}

// WithHomeDirectory sets the directory ~ and $HOME expand to.
func WithHomeDirectory(home string) PolicyOption {
	return func(c *policyConfig) {
		c.home = home
	}
}

// WithProtectedRoots replaces the protected root patterns.
func WithProtectedRoots(patterns ...string) PolicyOption {
	return func(c *policyConfig) {
		c.protectedRoots = append([]string(nil), patterns...)
	}
}

// WithRewrites enables/disables the non-blocking rewrite pass. Default is true.
func WithRewrites(enabled bool) PolicyOption {
	return func(c *policyConfig) {
		c.rewrites = enabled
	}
}

// Engine evaluates commands against catastrophic patterns, protected paths
// and unattended-install rewrites. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	config    policyConfig
	protected *pathMatcher
}

var _ ports.PolicyEvaluator = (*Engine)(nil)

// NewEngine creates a new Engine.
func NewEngine(opts ...PolicyOption) *Engine {
	cfg := defaultPolicyConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{config: cfg, protected: newPathMatcher(cfg.protectedRoots)}
}

// Evaluate returns the decision for command. Rules run in fixed order:
// empty command, catastrophic patterns, protected paths, then rewrites.
func (e *Engine) Evaluate(command string, opts entities.EvaluateOptions) entities.PolicyDecision {
	if strings.TrimSpace(command) == "" {
		return entities.DenyDecision("command is empty and not executable", "")
	}

	if reason, detail, hit := e.catastrophic(command, 0); hit {
		return entities.DenyDecision(reason, detail)
	}

	ctx := e.pathContext(opts)
	if reason, detail, hit := e.protectedPaths(command, ctx, 0); hit {
		return entities.DenyDecision(reason, detail)
	}

	if !e.config.rewrites {
		return entities.AllowDecision("no policy rule matched")
	}

	rewritten, applied := rewriteCommand(command)
	if len(applied) == 0 {
		return entities.AllowDecision("no policy rule matched")
	}
	return entities.RewriteDecision(
		"rewritten for unattended execution",
		rewritten,
		strings.Join(applied, ", "),
	)
}

// pathContext resolves the cwd and allowed roots for one evaluation.
func (e *Engine) pathContext(opts entities.EvaluateOptions) pathContext {
	cwd := opts.Cwd
	if cwd == "" {
		cwd = e.config.cwd
	}
	cwd = e.expandHome(cwd)
	if !filepath.IsAbs(cwd) {
		cwd = filepath.Join(e.config.cwd, cwd)
	}
	ctx := pathContext{cwd: filepath.Clean(cwd)}
	for _, root := range opts.AllowedRoots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		ctx.allowed = append(ctx.allowed, e.resolve(root, ctx.cwd))
	}
	return ctx
}

// nestedScripts returns the script argument of sh -c style invocations.
func nestedScripts(seg shell.Segment) []string {
	switch seg.Executable {
	case "sh", "bash", "dash", "zsh", "ksh":
	default:
		return nil
	}
	var scripts []string
	for i, arg := range seg.Args {
		if strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") && strings.Contains(arg, "c") && i+1 < len(seg.Args) {
			scripts = append(scripts, seg.Args[i+1])
			break
		}
	}
	return scripts
}
