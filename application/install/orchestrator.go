// Package install attempts ordered install recipes for missing capabilities
// under a trust policy, with post-install verification and a per-capability
// failure cooldown.
package install

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/reglet-dev/execsafety/domain/entities"
	domainerrors "github.com/reglet-dev/execsafety/domain/errors"
	"github.com/reglet-dev/execsafety/domain/ports"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultCooldown suppresses new attempts after a capability exhausts its recipes.
	DefaultCooldown = 10 * time.Minute
	// DefaultRecipeTimeout applies to recipes that declare no timeout.
	DefaultRecipeTimeout = 5 * time.Minute
	// DefaultVerifyTimeout bounds verify commands.
	DefaultVerifyTimeout = 30 * time.Second
	// DefaultPreviewBytes bounds the output carried in failure events.
	DefaultPreviewBytes = 2000

	// ContainerExitBinaryMissing is the exit code of a container install
	// whose recipe succeeded but left no binary on the container's PATH.
	ContainerExitBinaryMissing = 86
	// ContainerExitVerifyFailed is the exit code of a container install
	// whose verify command failed.
	ContainerExitVerifyFailed = 87
)

// orchestratorConfig holds configuration for the Orchestrator.
type orchestratorConfig struct {
	logger         *slog.Logger
	now            func() time.Time
	trustPolicy    entities.TrustPolicy
	cooldown       time.Duration
	recipeTimeout  time.Duration
	verifyTimeout  time.Duration
	previewBytes   int
	parallelism    int
	containerExecs bool
}

func defaultOrchestratorConfig() orchestratorConfig {
	return orchestratorConfig{
		logger:        slog.Default(),
		now:           time.Now,
		trustPolicy:   entities.TrustVerifiedFallback,
		cooldown:      DefaultCooldown,
		recipeTimeout: DefaultRecipeTimeout,
		verifyTimeout: DefaultVerifyTimeout,
		previewBytes:  DefaultPreviewBytes,
		parallelism:   1,
	}
}

// OrchestratorOption configures the Orchestrator.
type OrchestratorOption func(*orchestratorConfig)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(c *orchestratorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(c *orchestratorConfig) {
		c.now = now
	}
}

// WithTrustPolicy sets the policy used when a call does not pass one.
func WithTrustPolicy(p entities.TrustPolicy) OrchestratorOption {
	return func(c *orchestratorConfig) {
		c.trustPolicy = p
	}
}

// WithCooldown sets the post-failure suppression window.
func WithCooldown(d time.Duration) OrchestratorOption {
	return func(c *orchestratorConfig) {
		if d >= 0 {
			c.cooldown = d
		}
	}
}

// WithRecipeTimeout sets the timeout for recipes that declare none.
func WithRecipeTimeout(d time.Duration) OrchestratorOption {
	return func(c *orchestratorConfig) {
		if d > 0 {
			c.recipeTimeout = d
		}
	}
}

// WithVerifyTimeout bounds verify commands.
func WithVerifyTimeout(d time.Duration) OrchestratorOption {
	return func(c *orchestratorConfig) {
		if d > 0 {
			c.verifyTimeout = d
		}
	}
}

// WithPreviewLimit bounds the captured output carried in failure reports.
func WithPreviewLimit(n int) OrchestratorOption {
	return func(c *orchestratorConfig) {
		if n > 0 {
			c.previewBytes = n
		}
	}
}

// WithParallelism lets EnsureCommandCapabilities install up to n distinct
// capabilities at once. Recipes of one capability always run one at a time.
func WithParallelism(n int) OrchestratorOption {
	return func(c *orchestratorConfig) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithContainerExecution routes recipes with a container hint into containers
// for every call, regardless of InstallOptions.AllowContainers.
func WithContainerExecution(enabled bool) OrchestratorOption {
	return func(c *orchestratorConfig) {
		c.containerExecs = enabled
	}
}

// Orchestrator ensures capabilities are installed. Concurrent calls for the
// same capability run one at a time; later callers re-check availability
// once the earlier install finishes.
type Orchestrator struct {
	registry  ports.CapabilityRegistry
	runner    ports.CommandRunner
	cooldowns *cooldownTracker
	locks     *installLocks
	config    orchestratorConfig
}

var _ ports.Installer = (*Orchestrator)(nil)

// NewOrchestrator creates an Orchestrator over a registry and command runner.
func NewOrchestrator(registry ports.CapabilityRegistry, runner ports.CommandRunner, opts ...OrchestratorOption) *Orchestrator {
	cfg := defaultOrchestratorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Orchestrator{
		registry:  registry,
		runner:    runner,
		cooldowns: newCooldownTracker(cfg.cooldown),
		locks:     newInstallLocks(),
		config:    cfg,
	}
}

// CooldownRemaining returns how long until capabilityID may be attempted again.
func (o *Orchestrator) CooldownRemaining(capabilityID string) time.Duration {
	return o.cooldowns.remaining(canonicalID(o.registry, capabilityID), o.config.now())
}

// ResetCooldown clears any cooldown for capabilityID.
func (o *Orchestrator) ResetCooldown(capabilityID string) {
	o.cooldowns.clear(canonicalID(o.registry, capabilityID))
}

// EnsureCapabilityInstalled makes capabilityID available, trying each
// permitted recipe in order until one installs and verifies.
func (o *Orchestrator) EnsureCapabilityInstalled(ctx context.Context, capabilityID string, opts entities.InstallOptions) entities.InstallResult {
	emit := o.emitter(opts.OnEvent)

	desc, ok := o.registry.Get(capabilityID)
	if !ok {
		err := &domainerrors.CapabilityUnresolvedError{Executable: capabilityID}
		return entities.InstallResult{CapabilityID: capabilityID, Reason: err.Error()}
	}
	result := entities.InstallResult{CapabilityID: desc.ID}
	binary := desc.BinaryName()

	available := func() bool {
		if !o.registry.IsBinaryAvailable(ctx, binary) {
			return false
		}
		result.OK, result.AlreadyAvailable = true, true
		result.Reason = fmt.Sprintf("%s is already available", binary)
		return true
	}
	if available() {
		return result
	}

	release, lockErr := o.locks.acquire(ctx, desc.ID)
	if lockErr != nil {
		result.Reason = fmt.Sprintf("install of %s cancelled while waiting for another install: %v", desc.ID, lockErr)
		return result
	}
	defer release()

	// An install that finished while this call waited may have provided it.
	if available() {
		return result
	}

	if remaining := o.cooldowns.remaining(desc.ID, o.config.now()); remaining > 0 {
		err := &domainerrors.CooldownError{CapabilityID: desc.ID, Remaining: remaining}
		result.Reason, result.CooldownRemaining = err.Error(), remaining
		o.config.logger.WarnContext(ctx, "install rejected during cooldown",
			"capability", desc.ID, "remaining", remaining)
		emit(entities.LifecycleInstallCooldown, desc.ID, err.Error(), "", 0)
		return result
	}

	policy := opts.TrustPolicy
	if policy == "" {
		policy = o.config.trustPolicy
	}
	recipes := FilterRecipes(desc.InstallRecipes, policy)
	if len(recipes) == 0 {
		result.Reason = fmt.Sprintf("no install recipe for %s is permitted by trust policy %s (%d declared)",
			desc.ID, policy, len(desc.InstallRecipes))
		emit(entities.LifecycleInstallFailed, desc.ID, result.Reason, "", 0)
		return result
	}

	started := o.config.now()
	emit(entities.LifecycleInstallStarted, desc.ID,
		fmt.Sprintf("installing %s", desc.ID), "recipes: "+recipeIDs(recipes), 0)

	for _, recipe := range recipes {
		if ctx.Err() != nil {
			break
		}
		attempt := o.attempt(ctx, binary, recipe, opts.AllowContainers)
		result.Attempts = append(result.Attempts, attempt)

		status := "failed"
		if attempt.OK {
			status = "succeeded"
		}
		emit(entities.LifecycleInstallAttempt, desc.ID,
			fmt.Sprintf("recipe %s %s", recipe.ID, status), attempt.Error, attempt.Duration)

		if attempt.OK {
			where := "on PATH"
			if attempt.Image == "" {
				o.registry.SetBinaryState(binary, true, "installed by recipe "+recipe.ID)
				result.Reason = fmt.Sprintf("installed by recipe %s", recipe.ID)
			} else {
				// The binary lives in the image, not on the host PATH.
				where = "in image " + attempt.Image
				result.Reason = fmt.Sprintf("installed by recipe %s in image %s", recipe.ID, attempt.Image)
			}
			o.cooldowns.clear(desc.ID)
			result.OK = true

			elapsed := o.config.now().Sub(started)
			emit(entities.LifecycleInstallVerified, desc.ID,
				fmt.Sprintf("%s verified %s", binary, where), attempt.VerifyOutput, elapsed)
			emit(entities.LifecycleInstallSucceeded, desc.ID, result.Reason, "", elapsed)
			o.config.logger.InfoContext(ctx, "capability installed",
				"capability", desc.ID, "recipe", recipe.ID, "attempts", len(result.Attempts))
			return result
		}
	}

	// A caller that gave up has not exhausted the recipes.
	if err := ctx.Err(); err != nil {
		result.Reason = fmt.Sprintf("install of %s cancelled after %d attempt(s): %v", desc.ID, len(result.Attempts), err)
		o.config.logger.WarnContext(ctx, "capability install cancelled",
			"capability", desc.ID, "attempts", len(result.Attempts))
		emit(entities.LifecycleInstallFailed, desc.ID, result.Reason, "", o.config.now().Sub(started))
		return result
	}

	o.cooldowns.start(desc.ID, o.config.now())

	last := result.Attempts[len(result.Attempts)-1]
	preview := Preview(strings.TrimSpace(joinNonEmpty(last.Output, last.Error)), o.config.previewBytes)
	failure := &domainerrors.InstallFailureError{
		CapabilityID:  desc.ID,
		Attempts:      len(result.Attempts),
		OutputPreview: preview,
	}
	result.Reason = failure.Error()
	o.config.logger.WarnContext(ctx, "capability install exhausted",
		"capability", desc.ID, "attempts", len(result.Attempts), "cooldown", o.config.cooldown)
	emit(entities.LifecycleInstallFailed, desc.ID,
		fmt.Sprintf("install of %s failed after %d attempt(s)", desc.ID, len(result.Attempts)),
		preview, o.config.now().Sub(started))
	return result
}

// attempt runs one recipe, then checks the binary and the verify command.
// A container recipe runs all three in one container and never touches the
// host PATH state.
func (o *Orchestrator) attempt(ctx context.Context, binary string, recipe entities.InstallRecipe, containers bool) entities.InstallAttempt {
	start := o.config.now()
	att := entities.InstallAttempt{RecipeID: recipe.ID, Method: recipe.Method}

	timeout := o.config.recipeTimeout
	if recipe.TimeoutMs > 0 {
		timeout = time.Duration(recipe.TimeoutMs) * time.Millisecond
	}
	req := ports.CommandRequest{Command: recipe.Command, Timeout: int(timeout.Milliseconds())}
	if recipe.Container != nil && (containers || o.config.containerExecs) {
		req.Image = recipe.Container.Image
		req.Command = containerScript(recipe, binary)
		att.Image = req.Image
	}

	res, err := o.runner.Run(ctx, req)
	switch {
	case err != nil:
		att.Error = err.Error()
	case res.IsTimeout:
		att.Output, att.ExitCode = res.CombinedOutput(), res.ExitCode
		att.Error = (&domainerrors.TimeoutError{Operation: "install", Duration: timeout, Target: recipe.ID}).Error()
	case att.Image != "" && res.ExitCode == ContainerExitBinaryMissing:
		att.Output, att.ExitCode = res.CombinedOutput(), res.ExitCode
		att.Error = fmt.Sprintf("%s not found in image %s after install", binary, att.Image)
	case att.Image != "" && res.ExitCode == ContainerExitVerifyFailed:
		att.Output, att.ExitCode = res.CombinedOutput(), res.ExitCode
		att.BinaryFound = true
		att.Error = fmt.Sprintf("verification failed in image %s", att.Image)
	case !res.Succeeded():
		att.Output, att.ExitCode = res.CombinedOutput(), res.ExitCode
		att.Error = fmt.Sprintf("recipe exited with code %d", res.ExitCode)
	default:
		att.Output = res.CombinedOutput()
	}

	if att.Error == "" && att.Image != "" {
		att.BinaryFound, att.Verified = true, true
	} else if att.Error == "" {
		o.registry.Invalidate(binary)
		att.BinaryFound = o.registry.IsBinaryAvailable(ctx, binary)
		if att.BinaryFound {
			att.Verified, att.VerifyOutput, att.Error = o.verify(ctx, recipe)
		} else {
			att.Error = fmt.Sprintf("%s not found on PATH after install", binary)
		}
	}

	att.OK = att.Error == "" && att.BinaryFound && att.Verified
	att.Duration = o.config.now().Sub(start)
	o.config.logger.DebugContext(ctx, "install attempt finished",
		"recipe", recipe.ID, "ok", att.OK, "exit_code", att.ExitCode, "duration", att.Duration)
	return att
}

// containerScript chains the recipe command with the presence check and the
// verify command. A container keeps nothing between runs.
func containerScript(recipe entities.InstallRecipe, binary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(%s) || exit $?\n", recipe.Command)
	fmt.Fprintf(&b, "command -v %s >/dev/null 2>&1 || exit %d\n", shellQuote(binary), ContainerExitBinaryMissing)
	if v := strings.TrimSpace(recipe.VerifyCommand); v != "" {
		fmt.Fprintf(&b, "(%s) || exit %d\n", v, ContainerExitVerifyFailed)
	}
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// verify runs the recipe's verify command, if any.
func (o *Orchestrator) verify(ctx context.Context, recipe entities.InstallRecipe) (ok bool, output, errMsg string) {
	if strings.TrimSpace(recipe.VerifyCommand) == "" {
		return true, "", ""
	}
	res, err := o.runner.Run(ctx, ports.CommandRequest{
		Command: recipe.VerifyCommand,
		Timeout: int(o.config.verifyTimeout.Milliseconds()),
	})
	if err != nil {
		return false, "", "verification could not run: " + err.Error()
	}
	output = res.CombinedOutput()
	if !res.Succeeded() {
		return false, output, fmt.Sprintf("verification failed with exit code %d", res.ExitCode)
	}
	return true, output, ""
}

// EnsureCommandCapabilities installs every missing known capability a
// command needs. Unknown executables are reported but never fail the report.
func (o *Orchestrator) EnsureCommandCapabilities(ctx context.Context, command string, opts entities.InstallOptions) entities.CommandInstallReport {
	emit := o.emitter(opts.OnEvent)
	resolution := o.registry.ResolveCommandCapabilities(ctx, command)

	report := entities.CommandInstallReport{
		Installed:          []string{},
		Failed:             []entities.InstallResult{},
		MissingKnown:       make([]string, 0, len(resolution.MissingCapabilities)),
		UnknownExecutables: resolution.UnknownExecutables,
		OK:                 true,
	}
	for _, d := range resolution.MissingCapabilities {
		report.MissingKnown = append(report.MissingKnown, d.ID)
		emit(entities.LifecycleCapabilityMissing, d.ID,
			fmt.Sprintf("%s is not on PATH", d.BinaryName()), "", 0)
	}

	results := make([]entities.InstallResult, len(resolution.MissingCapabilities))
	if o.config.parallelism <= 1 {
		for i, d := range resolution.MissingCapabilities {
			results[i] = o.EnsureCapabilityInstalled(ctx, d.ID, opts)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.config.parallelism)
		for i, d := range resolution.MissingCapabilities {
			i, d := i, d
			g.Go(func() error {
				results[i] = o.EnsureCapabilityInstalled(gctx, d.ID, opts)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, r := range results {
		if r.OK {
			report.Installed = append(report.Installed, r.CapabilityID)
			continue
		}
		report.Failed = append(report.Failed, r)
		report.OK = false
	}
	return report
}

// emitter wraps a caller callback so a panicking observer never aborts an install.
func (o *Orchestrator) emitter(fn entities.EventFunc) func(lc entities.Lifecycle, capID, msg, detail string, d time.Duration) {
	return func(lc entities.Lifecycle, capID, msg, detail string, d time.Duration) {
		if fn == nil {
			return
		}
		evt := entities.CapabilityEvent{
			Timestamp:    o.config.now(),
			ID:           uuid.NewString(),
			Lifecycle:    entities.NormalizeLifecycle(string(lc)),
			CapabilityID: capID,
			Message:      msg,
			Detail:       detail,
			Duration:     d,
		}
		defer func() {
			if r := recover(); r != nil {
				o.config.logger.Warn("event observer panicked", "lifecycle", evt.Lifecycle, "panic", r)
			}
		}()
		fn(evt)
	}
}

// Preview keeps the tail of s within limit bytes; installers print their
// real error last.
func Preview(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	const marker = "...[truncated] "
	cut := len(s) - limit + len(marker)
	if cut >= len(s) {
		return s[runeStart(s, len(s)-limit):]
	}
	return marker + s[runeStart(s, cut):]
}

// runeStart steps i forward past UTF-8 continuation bytes.
func runeStart(s string, i int) int {
	for i < len(s) && s[i]&0xC0 == 0x80 {
		i++
	}
	return i
}

func recipeIDs(recipes []entities.InstallRecipe) string {
	ids := make([]string, 0, len(recipes))
	for _, r := range recipes {
		ids = append(ids, r.ID)
	}
	return strings.Join(ids, ", ")
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}

func canonicalID(reg ports.CapabilityRegistry, idOrAlias string) string {
	if d, ok := reg.Get(idOrAlias); ok {
		return d.ID
	}
	return strings.ToLower(strings.TrimSpace(idOrAlias))
}
