// Package platform composes policy evaluation, capability installation,
// checkpoint rollback and MCP health tracking behind one facade, with each
// subsystem gated by a feature flag.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/reglet-dev/execsafety/domain/ports"
)

// servicesConfig holds configuration for Services.
type servicesConfig struct {
	logger                  *slog.Logger
	flags                   entities.FeatureFlags
	autonomy                entities.AutonomyMode
	scratchRoots            []string
	sinks                   []ports.EventSink
	queueSize               int
	tolerateMissingRollback bool
}

func defaultServicesConfig() servicesConfig {
	return servicesConfig{
		logger:       slog.Default(),
		flags:        entities.DefaultFeatureFlags(),
		autonomy:     entities.AutonomyStandard,
		scratchRoots: []string{os.TempDir()},
		queueSize:    DefaultEventQueueSize,
	}
}

// ServicesOption configures Services.
type ServicesOption func(*servicesConfig)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServicesOption {
	return func(c *servicesConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFeatureFlags sets the initial subsystem flags.
func WithFeatureFlags(f entities.FeatureFlags) ServicesOption {
	return func(c *servicesConfig) {
		c.flags = f
	}
}

// WithAutonomyMode sets the mode install trust policies are derived from.
func WithAutonomyMode(m entities.AutonomyMode) ServicesOption {
	return func(c *servicesConfig) {
		c.autonomy = m
	}
}

// WithScratchRoots replaces the directories exempt from checkpointing.
// Entries may be doublestar patterns.
func WithScratchRoots(roots ...string) ServicesOption {
	return func(c *servicesConfig) {
		c.scratchRoots = append([]string(nil), roots...)
	}
}

// WithEventSinks adds sinks to the event bus.
func WithEventSinks(sinks ...ports.EventSink) ServicesOption {
	return func(c *servicesConfig) {
		c.sinks = append(c.sinks, sinks...)
	}
}

// WithEventQueueSize bounds the event queue.
func WithEventQueueSize(n int) ServicesOption {
	return func(c *servicesConfig) {
		c.queueSize = n
	}
}

// WithTolerateMissingRollback lets GuardedWrite proceed when a checkpoint
// cannot be created.
func WithTolerateMissingRollback(tolerate bool) ServicesOption {
	return func(c *servicesConfig) {
		c.tolerateMissingRollback = tolerate
	}
}

// Preparation is the outcome of readying a command for execution.
type Preparation struct {
	Install  *entities.CommandInstallReport `json:"install,omitempty"`
	Decision entities.PolicyDecision        `json:"decision"`
	// Command is what should run: the rewrite when there is one. Empty when denied.
	Command string `json:"command,omitempty"`
}

// Runnable reports whether the command may be executed.
func (p Preparation) Runnable() bool {
	return !p.Decision.IsDenied()
}

// Services is the platform facade. Construct one per process and share it.
type Services struct {
	policy      ports.PolicyEvaluator
	registry    ports.CapabilityRegistry
	installer   ports.Installer
	checkpoints ports.Checkpointer
	events      *EventBus
	mcp         *MCPTracker
	scratch     []string
	config      servicesConfig
	flagsMu     sync.RWMutex
	flags       entities.FeatureFlags
}

// NewServices wires the subsystems together. installer and checkpoints may
// be nil, in which case their features behave as if flagged off.
func NewServices(
	policy ports.PolicyEvaluator,
	registry ports.CapabilityRegistry,
	installer ports.Installer,
	checkpoints ports.Checkpointer,
	opts ...ServicesOption,
) *Services {
	cfg := defaultServicesConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Services{
		policy:      policy,
		registry:    registry,
		installer:   installer,
		checkpoints: checkpoints,
		config:      cfg,
		flags:       cfg.flags,
		events:      NewEventBus(cfg.logger, cfg.queueSize, cfg.sinks...),
	}
	s.mcp = NewMCPTracker(nil, s.emit)

	for _, r := range cfg.scratchRoots {
		r = filepath.ToSlash(filepath.Clean(r))
		if r == "" || !doublestar.ValidatePattern(r) {
			cfg.logger.Warn("ignoring invalid scratch root", "root", r)
			continue
		}
		s.scratch = append(s.scratch, r, r+"/**")
	}
	return s
}

// Flags returns the current feature flags.
func (s *Services) Flags() entities.FeatureFlags {
	s.flagsMu.RLock()
	defer s.flagsMu.RUnlock()
	return s.flags
}

// SetFlags replaces the feature flags. Calls in flight keep the flags they started with.
func (s *Services) SetFlags(f entities.FeatureFlags) {
	s.flagsMu.Lock()
	defer s.flagsMu.Unlock()
	s.flags = f
}

// Events returns the event bus, to subscribe further sinks.
func (s *Services) Events() *EventBus {
	return s.events
}

// MCP returns the MCP server health tracker.
func (s *Services) MCP() *MCPTracker {
	return s.mcp
}

// Registry returns the capability registry.
func (s *Services) Registry() ports.CapabilityRegistry {
	return s.registry
}

// Close drains pending events.
func (s *Services) Close() {
	s.events.Close()
}

// emit publishes evt when lifecycle events are enabled.
func (s *Services) emit(evt entities.CapabilityEvent) {
	if !s.Flags().LifecycleEvents {
		return
	}
	s.events.OnEvent(evt)
}

// Evaluate runs the policy engine and reports blocks and rewrites as events.
func (s *Services) Evaluate(ctx context.Context, command string, opts entities.EvaluateOptions) entities.PolicyDecision {
	d := s.policy.Evaluate(command, opts)
	switch d.Action {
	case entities.PolicyActionDeny:
		s.config.logger.WarnContext(ctx, "command blocked by policy",
			"reason", d.Reason, "detail", d.Detail)
		s.emit(entities.CapabilityEvent{
			Lifecycle: entities.LifecyclePolicyBlocked,
			Message:   d.Reason,
			Detail:    joinDetail(command, d.Detail),
		})
	case entities.PolicyActionRewrite:
		s.config.logger.InfoContext(ctx, "command rewritten by policy",
			"rules", d.Detail)
		s.emit(entities.CapabilityEvent{
			Lifecycle: entities.LifecyclePolicyRewrite,
			Message:   d.Reason,
			Detail:    fmt.Sprintf("%s => %s", command, d.Command),
		})
	}
	return d
}

// PrepareCommand evaluates command and, when install orchestration is on,
// ensures its missing capabilities. A denied command never reaches the installer.
func (s *Services) PrepareCommand(ctx context.Context, command string, opts entities.EvaluateOptions) Preparation {
	d := s.Evaluate(ctx, command, opts)
	if d.IsDenied() {
		return Preparation{Decision: d}
	}
	prep := Preparation{Decision: d, Command: d.EffectiveCommand(command)}
	report := s.EnsureCommandCapabilities(ctx, prep.Command)
	prep.Install = &report
	return prep
}

// EnsureCommandCapabilities installs a command's missing capabilities. With
// install orchestration off it only reports what is missing.
func (s *Services) EnsureCommandCapabilities(ctx context.Context, command string) entities.CommandInstallReport {
	flags := s.Flags()
	if !flags.InstallOrchestration || s.installer == nil {
		res := s.registry.ResolveCommandCapabilities(ctx, command)
		report := entities.CommandInstallReport{
			Installed:          []string{},
			Failed:             []entities.InstallResult{},
			MissingKnown:       make([]string, 0, len(res.MissingCapabilities)),
			UnknownExecutables: res.UnknownExecutables,
			Skipped:            true,
			OK:                 true,
		}
		for _, d := range res.MissingCapabilities {
			report.MissingKnown = append(report.MissingKnown, d.ID)
		}
		return report
	}
	return s.installer.EnsureCommandCapabilities(ctx, command, s.installOptions(flags))
}

// EnsureCapabilityInstalled installs one capability when install orchestration is on.
func (s *Services) EnsureCapabilityInstalled(ctx context.Context, capabilityID string) entities.InstallResult {
	flags := s.Flags()
	if !flags.InstallOrchestration || s.installer == nil {
		return entities.InstallResult{CapabilityID: capabilityID, Reason: "install orchestration is disabled"}
	}
	return s.installer.EnsureCapabilityInstalled(ctx, capabilityID, s.installOptions(flags))
}

func (s *Services) installOptions(flags entities.FeatureFlags) entities.InstallOptions {
	return entities.InstallOptions{
		OnEvent:         s.emit,
		TrustPolicy:     s.config.autonomy.TrustPolicy(),
		AllowContainers: flags.ContainerExecution,
	}
}

// IsScratchPath reports whether path lies under a scratch root.
func (s *Services) IsScratchPath(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	abs = filepath.ToSlash(abs)
	for _, pattern := range s.scratch {
		if ok, _ := doublestar.Match(pattern, abs); ok {
			return true
		}
	}
	return false
}

// CheckpointForWrite snapshots path before a write. It returns (nil, nil)
// when checkpoint rollback is disabled or path is under a scratch root.
func (s *Services) CheckpointForWrite(path string) (*entities.FileCheckpoint, error) {
	if !s.Flags().CheckpointRollback || s.checkpoints == nil || s.IsScratchPath(path) {
		return nil, nil
	}
	return s.CreateCheckpoint(path)
}

// CreateCheckpoint snapshots path whatever the checkpoint_rollback flag and
// scratch roots say, and reports it as an event. It backs explicit requests
// for a checkpoint; automatic ones go through CheckpointForWrite.
func (s *Services) CreateCheckpoint(path string) (*entities.FileCheckpoint, error) {
	if s.checkpoints == nil {
		return nil, errors.New("no checkpointer configured")
	}
	cp, err := s.checkpoints.Create(path)
	if err != nil {
		return nil, err
	}
	s.emit(entities.CapabilityEvent{
		Lifecycle: entities.LifecycleCheckpointCreated,
		Message:   "checkpoint created for " + cp.FilePath,
		Detail:    cp.ID,
	})
	return cp, nil
}

// RestoreCheckpoint restores cp and reports the outcome as an event.
func (s *Services) RestoreCheckpoint(cp *entities.FileCheckpoint) (entities.RestoreResult, error) {
	if cp == nil || s.checkpoints == nil {
		return entities.RestoreResult{OK: true, Detail: "nothing to restore"}, nil
	}
	res, err := s.checkpoints.Restore(cp)
	if err != nil || !res.OK {
		s.emit(entities.CapabilityEvent{
			Lifecycle: entities.LifecycleRollbackFailed,
			Message:   "rollback failed for " + cp.FilePath,
			Detail:    res.Detail,
		})
		return res, err
	}
	s.emit(entities.CapabilityEvent{
		Lifecycle: entities.LifecycleRollbackApplied,
		Message:   "rollback applied to " + cp.FilePath,
		Detail:    res.Detail,
	})
	return res, nil
}

// DisposeCheckpoint discards cp's backup.
func (s *Services) DisposeCheckpoint(cp *entities.FileCheckpoint) {
	if cp == nil || s.checkpoints == nil {
		return
	}
	s.checkpoints.Dispose(cp)
}

// GuardedWrite checkpoints path, runs write, and restores the file when
// write fails. A checkpoint that cannot be created aborts before write runs
// unless missing rollback is tolerated. A failed restore is joined to the
// write error.
func (s *Services) GuardedWrite(ctx context.Context, path string, write func() error) error {
	cp, err := s.CheckpointForWrite(path)
	if err != nil {
		if !s.config.tolerateMissingRollback {
			return fmt.Errorf("refusing to modify %s without rollback: %w", path, err)
		}
		s.config.logger.WarnContext(ctx, "proceeding without rollback", "path", path, "error", err)
	}

	if werr := write(); werr != nil {
		if cp == nil {
			return werr
		}
		if _, rerr := s.RestoreCheckpoint(cp); rerr != nil {
			return errors.Join(werr, rerr)
		}
		return werr
	}

	s.DisposeCheckpoint(cp)
	return nil
}

func joinDetail(command, detail string) string {
	if detail == "" {
		return command
	}
	return command + ": " + detail
}
