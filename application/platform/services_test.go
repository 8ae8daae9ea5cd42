package platform_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reglet-dev/execsafety/application/checkpoint"
	"github.com/reglet-dev/execsafety/application/install"
	"github.com/reglet-dev/execsafety/application/platform"
	"github.com/reglet-dev/execsafety/application/registry"
	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/reglet-dev/execsafety/domain/policy"
	"github.com/reglet-dev/execsafety/domain/ports"
	"github.com/reglet-dev/execsafety/internal/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type ServicesSuite struct {
	suite.Suite

	work     string
	scratch  string
	prober   *testutil.MapProber
	runner   *testutil.MockRunner
	events   *testutil.EventRecorder
	services *platform.Services
}

func TestServicesSuite(t *testing.T) {
	suite.Run(t, new(ServicesSuite))
}

func (s *ServicesSuite) SetupTest() {
	base := s.T().TempDir()
	s.work = filepath.Join(base, "work")
	s.scratch = filepath.Join(base, "scratch")
	s.Require().NoError(os.MkdirAll(s.work, 0o755))
	s.Require().NoError(os.MkdirAll(s.scratch, 0o755))

	s.prober = testutil.NewMapProber()
	s.runner = &testutil.MockRunner{}
	s.events = &testutil.EventRecorder{}
	s.services = s.build(entities.FeatureFlags{
		LifecycleEvents:      true,
		InstallOrchestration: true,
		CheckpointRollback:   true,
	})
}

func (s *ServicesSuite) build(flags entities.FeatureFlags, opts ...platform.ServicesOption) *platform.Services {
	reg := registry.NewRegistry(registry.WithProber(s.prober))
	s.Require().NoError(reg.Register(entities.CapabilityDescriptor{
		ID: "jq",
		InstallRecipes: []entities.InstallRecipe{
			{ID: "apt", Method: entities.InstallMethodApt, Command: "apt-get install -y jq", Verified: true},
		},
	}))
	s.Require().NoError(reg.Register(entities.CapabilityDescriptor{
		ID: "uv",
		InstallRecipes: []entities.InstallRecipe{
			{ID: "script", Method: entities.InstallMethodScript, Command: "sh install-uv.sh",
				Container: &entities.ContainerHint{Image: "alpine:3"}},
		},
	}))

	opts = append([]platform.ServicesOption{
		platform.WithFeatureFlags(flags),
		platform.WithScratchRoots(s.scratch),
		platform.WithEventSinks(s.events),
	}, opts...)
	return platform.NewServices(
		policy.NewEngine(policy.WithWorkingDirectory(s.work)),
		reg,
		install.NewOrchestrator(reg, s.runner),
		checkpoint.NewManager(checkpoint.WithRoot(filepath.Join(s.work, ".checkpoints"))),
		opts...,
	)
}

func (s *ServicesSuite) TearDownTest() {
	s.services.Close()
}

func (s *ServicesSuite) TestDeniedCommandNeverInstalls() {
	prep := s.services.PrepareCommand(context.Background(), "rm -rf / && jq .", entities.EvaluateOptions{})

	s.False(prep.Runnable())
	s.Empty(prep.Command)
	s.Nil(prep.Install)
	s.runner.AssertNotCalled(s.T(), "Run", mock.Anything, mock.Anything)

	s.services.Close()
	s.Equal([]entities.Lifecycle{entities.LifecyclePolicyBlocked}, s.events.Lifecycles())
}

func (s *ServicesSuite) TestPrepareRewritesAndInstalls() {
	s.runner.On("Run", mock.Anything, testutil.Command("apt-get install -y jq")).
		Run(func(mock.Arguments) { s.prober.Set("jq", true) }).
		Return(testutil.Exit(0, ""), nil).Once()

	prep := s.services.PrepareCommand(context.Background(), "pip install yq && jq .", entities.EvaluateOptions{})

	s.True(prep.Runnable())
	s.Equal(entities.PolicyActionRewrite, prep.Decision.Action)
	s.Equal("python3 -m pip install --no-input yq && jq .", prep.Command)
	s.Require().NotNil(prep.Install)
	s.True(prep.Install.OK)
	s.Equal([]string{"jq"}, prep.Install.Installed)

	s.services.Close()
	lcs := s.events.Lifecycles()
	s.Equal(entities.LifecyclePolicyRewrite, lcs[0])
	s.Contains(lcs, entities.LifecycleCapabilityMissing)
	s.Contains(lcs, entities.LifecycleInstallSucceeded)
}

func (s *ServicesSuite) TestInstallDisabledOnlyReports() {
	svc := s.build(entities.FeatureFlags{LifecycleEvents: true})
	defer svc.Close()

	report := svc.EnsureCommandCapabilities(context.Background(), "jq . && frob")

	s.True(report.OK)
	s.True(report.Skipped)
	s.Equal([]string{"jq"}, report.MissingKnown)
	s.Equal([]string{"frob"}, report.UnknownExecutables)
	s.runner.AssertNotCalled(s.T(), "Run", mock.Anything, mock.Anything)

	res := svc.EnsureCapabilityInstalled(context.Background(), "jq")
	s.False(res.OK)
	s.Contains(res.Reason, "disabled")
}

func (s *ServicesSuite) TestTrustPolicyFollowsAutonomyMode() {
	restrictive := s.build(entities.FeatureFlags{InstallOrchestration: true},
		platform.WithAutonomyMode(entities.AutonomyRestrictive))
	defer restrictive.Close()

	res := restrictive.EnsureCapabilityInstalled(context.Background(), "uv")
	s.False(res.OK)
	s.Contains(res.Reason, "strict_verified")
	s.runner.AssertNotCalled(s.T(), "Run", mock.Anything, mock.Anything)

	var got ports.CommandRequest
	s.runner.On("Run", mock.Anything, mock.MatchedBy(func(req ports.CommandRequest) bool {
		return strings.Contains(req.Command, "sh install-uv.sh")
	})).
		Run(func(args mock.Arguments) { got = args.Get(1).(ports.CommandRequest) }).
		Return(testutil.Exit(0, ""), nil).Once()

	permissive := s.build(entities.FeatureFlags{InstallOrchestration: true, ContainerExecution: true},
		platform.WithAutonomyMode(entities.AutonomyPermissive))
	defer permissive.Close()

	res = permissive.EnsureCapabilityInstalled(context.Background(), "uv")
	s.True(res.OK, res.Reason)
	s.Equal("alpine:3", got.Image)
	s.Contains(res.Reason, "in image alpine:3")
}

func (s *ServicesSuite) TestGuardedWriteRestoresOnFailure() {
	path := filepath.Join(s.work, "settings.json")
	testutil.WriteFile(s.T(), path, `{"a":1}`, 0o644)

	boom := errors.New("write failed halfway")
	err := s.services.GuardedWrite(context.Background(), path, func() error {
		testutil.WriteFile(s.T(), path, `{"a":`, 0o644)
		return boom
	})

	s.ErrorIs(err, boom)
	testutil.AssertFileContent(s.T(), path, `{"a":1}`)

	s.services.Close()
	s.Equal([]entities.Lifecycle{
		entities.LifecycleCheckpointCreated,
		entities.LifecycleRollbackApplied,
	}, s.events.Lifecycles())
}

func (s *ServicesSuite) TestGuardedWriteNewFileRemovedOnFailure() {
	path := filepath.Join(s.work, "new.txt")

	err := s.services.GuardedWrite(context.Background(), path, func() error {
		testutil.WriteFile(s.T(), path, "partial", 0o644)
		return errors.New("disk full")
	})

	s.Error(err)
	testutil.AssertNoFile(s.T(), path)
}

func (s *ServicesSuite) TestGuardedWriteSuccessDisposes() {
	path := filepath.Join(s.work, "ok.txt")
	testutil.WriteFile(s.T(), path, "v1", 0o644)

	err := s.services.GuardedWrite(context.Background(), path, func() error {
		testutil.WriteFile(s.T(), path, "v2", 0o644)
		return nil
	})

	s.NoError(err)
	testutil.AssertFileContent(s.T(), path, "v2")
	entries, _ := os.ReadDir(filepath.Join(s.work, ".checkpoints"))
	s.Empty(entries, "backup disposed after a successful write")
}

func (s *ServicesSuite) TestScratchPathsAreNotCheckpointed() {
	path := filepath.Join(s.scratch, "tmp", "out.txt")

	cp, err := s.services.CheckpointForWrite(path)
	s.NoError(err)
	s.Nil(cp)
	s.True(s.services.IsScratchPath(s.scratch))
	s.False(s.services.IsScratchPath(s.work))
}

func (s *ServicesSuite) TestCheckpointFlagOff() {
	svc := s.build(entities.FeatureFlags{})
	defer svc.Close()

	cp, err := svc.CheckpointForWrite(filepath.Join(s.work, "x"))
	s.NoError(err)
	s.Nil(cp)
}

func (s *ServicesSuite) TestCreateCheckpointIgnoresRollbackGates() {
	svc := s.build(entities.FeatureFlags{LifecycleEvents: true})
	path := filepath.Join(s.scratch, "notes.txt")
	testutil.WriteFile(s.T(), path, "v1", 0o644)

	auto, err := svc.CheckpointForWrite(path)
	s.NoError(err)
	s.Nil(auto)

	cp, err := svc.CreateCheckpoint(path)
	s.Require().NoError(err)
	s.True(cp.Existed)

	testutil.WriteFile(s.T(), path, "v2", 0o644)
	res, err := svc.RestoreCheckpoint(cp)
	s.NoError(err)
	s.True(res.OK)
	testutil.AssertFileContent(s.T(), path, "v1")

	svc.Close()
	s.Equal([]entities.Lifecycle{
		entities.LifecycleCheckpointCreated,
		entities.LifecycleRollbackApplied,
	}, s.events.Lifecycles())
}

func (s *ServicesSuite) TestCheckpointFailureAbortsWrite() {
	called := false
	err := s.services.GuardedWrite(context.Background(), s.work, func() error {
		called = true
		return nil
	})

	s.Error(err)
	s.Contains(err.Error(), "without rollback")
	s.False(called)
}

func (s *ServicesSuite) TestCheckpointFailureTolerated() {
	svc := s.build(entities.FeatureFlags{CheckpointRollback: true},
		platform.WithTolerateMissingRollback(true))
	defer svc.Close()

	called := false
	err := svc.GuardedWrite(context.Background(), s.work, func() error {
		called = true
		return nil
	})

	s.NoError(err)
	s.True(called)
}

func (s *ServicesSuite) TestEventsFlagOff() {
	svc := s.build(entities.FeatureFlags{})
	svc.Evaluate(context.Background(), "rm -rf /", entities.EvaluateOptions{})
	svc.Close()

	s.Empty(s.events.Events())
}

func (s *ServicesSuite) TestSetFlags() {
	flags := s.services.Flags()
	flags.CheckpointRollback = false
	s.services.SetFlags(flags)

	cp, err := s.services.CheckpointForWrite(filepath.Join(s.work, "x"))
	s.NoError(err)
	s.Nil(cp)
}

func (s *ServicesSuite) TestMCPStateEvents() {
	s.services.MCP().MarkStarting("playwright")
	s.services.MCP().ReportHealthy("playwright")
	s.services.Close()

	s.Equal([]entities.Lifecycle{
		entities.LifecycleMCPServerState,
		entities.LifecycleMCPServerState,
	}, s.events.Lifecycles())
}
