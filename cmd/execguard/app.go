package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/reglet-dev/execsafety/application/checkpoint"
	"github.com/reglet-dev/execsafety/application/config"
	"github.com/reglet-dev/execsafety/application/install"
	"github.com/reglet-dev/execsafety/application/platform"
	"github.com/reglet-dev/execsafety/application/registry"
	"github.com/reglet-dev/execsafety/application/validation"
	"github.com/reglet-dev/execsafety/catalog"
	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/reglet-dev/execsafety/domain/policy"
	"github.com/reglet-dev/execsafety/infrastructure/flagstore"
	"github.com/reglet-dev/execsafety/infrastructure/prober"
	"github.com/reglet-dev/execsafety/infrastructure/runner"
)

// app holds the wired subsystems for one invocation.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	registry    *registry.Registry
	checkpoints *checkpoint.Manager
	flags       *flagstore.FileStore
	services    *platform.Services
}

func newApp(opts *rootOptions, stderr io.Writer) (*app, error) {
	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	var loadOpts []config.LoadOption
	if opts.configPath != "" {
		loadOpts = append(loadOpts, config.WithEnv(func(key string) string {
			if key == config.EnvPrefix+"CONFIG" {
				return opts.configPath
			}
			return os.Getenv(key)
		}))
	}
	cfg, err := config.Load(loadOpts...)
	if err != nil {
		return nil, err
	}
	if opts.autonomy != "" {
		mode, err := parseAutonomy(opts.autonomy)
		if err != nil {
			return nil, err
		}
		cfg.Autonomy = mode
	}

	// Flags saved with `execguard flags set` win over config files.
	store := flagstore.NewFileStore(flagstore.WithPath(cfg.FlagsPath))
	if _, err := os.Stat(store.ConfigPath()); err == nil {
		flags, err := store.Load()
		if err != nil {
			return nil, err
		}
		cfg.Flags = flags
	}

	shell := runner.NewShellRunner(runner.WithLogger(logger))
	reg := registry.NewRegistry(
		registry.WithProber(prober.NewPathProber(shell, int(cfg.ProbeTimeout.Milliseconds()))),
		registry.WithStateTTL(cfg.StateTTL),
		registry.WithProbeTimeout(cfg.ProbeTimeout),
		registry.WithLogger(logger),
	)
	if err := loadCatalogs(reg, cfg.CatalogPath); err != nil {
		return nil, err
	}

	orchestrator := install.NewOrchestrator(reg, shell,
		install.WithLogger(logger),
		install.WithTrustPolicy(cfg.TrustPolicy()),
		install.WithCooldown(cfg.Cooldown),
		install.WithParallelism(cfg.InstallParallelism),
		install.WithContainerExecution(cfg.Flags.ContainerExecution),
	)
	checkpoints := checkpoint.NewManager(
		checkpoint.WithRoot(cfg.CheckpointRoot),
		checkpoint.WithLogger(logger),
	)

	services := platform.NewServices(policy.NewEngine(), reg, orchestrator, checkpoints,
		platform.WithLogger(logger),
		platform.WithFeatureFlags(cfg.Flags),
		platform.WithAutonomyMode(cfg.Autonomy),
		platform.WithScratchRoots(cfg.ScratchRoots...),
		platform.WithEventSinks(&policy.LogEventSink{Logger: logger}),
		platform.WithTolerateMissingRollback(cfg.TolerateMissingRollback),
	)

	return &app{
		cfg:         cfg,
		logger:      logger,
		registry:    reg,
		checkpoints: checkpoints,
		flags:       store,
		services:    services,
	}, nil
}

// loadCatalogs registers the built-in catalog, then the optional extra one.
func loadCatalogs(reg *registry.Registry, extraPath string) error {
	v := validation.NewCatalogValidator()

	builtin, err := catalog.Builtin()
	if err != nil {
		return fmt.Errorf("built-in catalog: %w", err)
	}
	if _, err := catalog.Load(reg, builtin, v); err != nil {
		return fmt.Errorf("built-in catalog: %w", err)
	}

	if extraPath == "" {
		return nil
	}
	extra, err := catalog.ReadFile(extraPath)
	if err != nil {
		return err
	}
	if _, err := catalog.Load(reg, extra, v); err != nil {
		return fmt.Errorf("catalog %s: %w", extraPath, err)
	}
	return nil
}

// evaluateOptions returns the policy options configured for this process.
func (a *app) evaluateOptions() entities.EvaluateOptions {
	return entities.EvaluateOptions{AllowedRoots: append([]string{}, a.cfg.AllowedRoots...)}
}

// Close flushes queued lifecycle events.
func (a *app) Close() {
	a.services.Close()
}
