package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reglet-dev/execsafety/application/platform"
	"github.com/reglet-dev/execsafety/application/schema"
	"github.com/reglet-dev/execsafety/domain/entities"
	domainerrors "github.com/reglet-dev/execsafety/domain/errors"
	"github.com/reglet-dev/execsafety/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliEnv struct {
	dir         string
	checkpoints string
	flagsPath   string
}

// setupCLI isolates config, flags and checkpoints under a temp directory.
func setupCLI(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := cliEnv{
		dir:         dir,
		checkpoints: filepath.Join(dir, "checkpoints"),
		flagsPath:   filepath.Join(dir, "state", "flags.yaml"),
	}
	cfgPath := filepath.Join(dir, "config.yaml")
	testutil.WriteFile(t, cfgPath, fmt.Sprintf("checkpoint_root: %q\nflags_path: %q\n", env.checkpoints, env.flagsPath), 0o644)

	t.Setenv("HOME", dir)
	t.Setenv("EXECSAFETY_CONFIG", cfgPath)
	return env
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestEvaluate(t *testing.T) {
	setupCLI(t)

	tests := []struct {
		name    string
		args    []string
		action  entities.PolicyAction
		wantErr bool
	}{
		{name: "allow", args: []string{"evaluate", "ls -la"}, action: entities.PolicyActionAllow},
		{name: "unquoted words are joined", args: []string{"evaluate", "ls", "-la"}, action: entities.PolicyActionAllow},
		{name: "catastrophic", args: []string{"evaluate", "rm -rf /"}, action: entities.PolicyActionDeny, wantErr: true},
		{name: "rewrite", args: []string{"evaluate", "pip install requests"}, action: entities.PolicyActionRewrite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, "", tt.args...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "blocked by policy")
			} else {
				require.NoError(t, err)
			}
			d := decode[entities.PolicyDecision](t, out)
			assert.Equal(t, tt.action, d.Action)
		})
	}
}

func TestEvaluate_RewriteCommand(t *testing.T) {
	setupCLI(t)

	out, err := runCLI(t, "", "evaluate", "pip install requests")
	require.NoError(t, err)
	assert.Equal(t, "python3 -m pip install --no-input requests", decode[entities.PolicyDecision](t, out).Command)
}

func TestEvaluate_AllowRoot(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "", "evaluate", "rm -rf /etc/app/conf.d")
	require.Error(t, err)

	out, err := runCLI(t, "", "evaluate", "--allow-root", "/etc/app/conf.d", "rm -rf /etc/app/conf.d")
	require.NoError(t, err)
	assert.False(t, decode[entities.PolicyDecision](t, out).IsDenied())
}

func TestResolve_UnknownExecutables(t *testing.T) {
	setupCLI(t)

	out, err := runCLI(t, "", "resolve", "frobnicate-xyz --help | sort")
	require.NoError(t, err)

	res := decode[entities.CommandResolution](t, out)
	assert.Equal(t, []string{"frobnicate-xyz", "sort"}, res.Executables)
	assert.Contains(t, res.UnknownExecutables, "frobnicate-xyz")
}

func TestEnsure_InstallDisabledReportsOnly(t *testing.T) {
	setupCLI(t)

	out, err := runCLI(t, "", "ensure", "echo hi")
	require.NoError(t, err)

	prep := decode[platform.Preparation](t, out)
	assert.Equal(t, "echo hi", prep.Command)
	require.NotNil(t, prep.Install)
	assert.True(t, prep.Install.Skipped)
	assert.True(t, prep.Install.OK)
}

func TestEnsure_Errors(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "", "ensure", "rm -rf /")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked by policy")

	_, err = runCLI(t, "", "ensure", "--mode", "yolo", "echo hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown autonomy mode")
}

func TestCheckpoint_CreateRestore(t *testing.T) {
	env := setupCLI(t)
	target := filepath.Join(env.dir, "settings.json")
	testutil.WriteFile(t, target, `{"theme":"dark"}`, 0o644)

	out, err := runCLI(t, "", "checkpoint", "create", target)
	require.NoError(t, err)
	cp := decode[entities.FileCheckpoint](t, out)
	assert.True(t, cp.Existed)
	assert.True(t, strings.HasPrefix(cp.BackupPath, env.checkpoints))

	testutil.WriteFile(t, target, `{"theme":`, 0o644)

	out, err = runCLI(t, out, "checkpoint", "restore")
	require.NoError(t, err)
	assert.True(t, decode[entities.RestoreResult](t, out).OK)
	testutil.AssertFileContent(t, target, `{"theme":"dark"}`)
	testutil.AssertNoFile(t, cp.BackupPath)
}

func TestCheckpoint_CreateIgnoresRollbackFlag(t *testing.T) {
	env := setupCLI(t)
	target := filepath.Join(env.dir, "draft.md")
	testutil.WriteFile(t, target, "v1", 0o644)

	_, err := runCLI(t, "", "flags", "set", "checkpoint_rollback=false")
	require.NoError(t, err)

	out, err := runCLI(t, "", "checkpoint", "create", target)
	require.NoError(t, err)
	cp := decode[entities.FileCheckpoint](t, out)
	assert.True(t, cp.Existed)
	assert.FileExists(t, cp.BackupPath)
}

func TestCheckpoint_RestoreOnlyOnce(t *testing.T) {
	env := setupCLI(t)
	target := filepath.Join(env.dir, "generated.txt")

	cpJSON, err := runCLI(t, "", "checkpoint", "create", target)
	require.NoError(t, err)

	testutil.WriteFile(t, target, "draft", 0o644)
	out, err := runCLI(t, cpJSON, "checkpoint", "restore")
	require.NoError(t, err)
	assert.True(t, decode[entities.RestoreResult](t, out).OK)
	testutil.AssertNoFile(t, target)

	testutil.WriteFile(t, target, "user data", 0o644)
	out, err = runCLI(t, cpJSON, "checkpoint", "restore")
	require.NoError(t, err)
	assert.False(t, decode[entities.RestoreResult](t, out).OK)
	testutil.AssertFileContent(t, target, "user data")
}

func TestCheckpoint_DisposeFromFile(t *testing.T) {
	env := setupCLI(t)
	target := filepath.Join(env.dir, "notes.txt")
	testutil.WriteFile(t, target, "v1", 0o644)

	out, err := runCLI(t, "", "checkpoint", "create", target)
	require.NoError(t, err)
	cpFile := filepath.Join(env.dir, "cp.json")
	testutil.WriteFile(t, cpFile, out, 0o600)
	cp := decode[entities.FileCheckpoint](t, out)

	_, err = runCLI(t, "", "checkpoint", "dispose", "--file", cpFile)
	require.NoError(t, err)
	testutil.AssertNoFile(t, cp.BackupPath)
	testutil.AssertFileContent(t, target, "v1")
}

func TestCheckpoint_RejectsForeignBackup(t *testing.T) {
	env := setupCLI(t)
	victim := filepath.Join(env.dir, "victim.txt")
	testutil.WriteFile(t, victim, "keep", 0o644)

	crafted := fmt.Sprintf(`{"id":"x","filePath":%q,"backupPath":"/etc/hostname","existed":true}`, victim)
	_, err := runCLI(t, crafted, "checkpoint", "restore")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside")
	testutil.AssertFileContent(t, victim, "keep")
}

func TestCheckpoint_MalformedInput(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "not json", "checkpoint", "restore")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse checkpoint")

	_, err = runCLI(t, `{"id":""}`, "checkpoint", "restore")
	require.Error(t, err)
}

func TestFlags_SetAndShow(t *testing.T) {
	env := setupCLI(t)

	out, err := runCLI(t, "", "flags", "show")
	require.NoError(t, err)
	shown := decode[flagsOutput](t, out)
	assert.Equal(t, entities.DefaultFeatureFlags(), shown.Flags)
	assert.Equal(t, env.flagsPath, shown.Path)

	_, err = runCLI(t, "", "flags", "set", "install_orchestration=true", "checkpointRollback=on", "lifecycle_events=0")
	require.NoError(t, err)
	_, err = os.Stat(env.flagsPath)
	require.NoError(t, err)

	out, err = runCLI(t, "", "flags", "show")
	require.NoError(t, err)
	assert.Equal(t, entities.FeatureFlags{InstallOrchestration: true, CheckpointRollback: true}, decode[flagsOutput](t, out).Flags)
}

func TestFlags_SetErrors(t *testing.T) {
	setupCLI(t)

	tests := []struct {
		arg  string
		want string
	}{
		{arg: "install_orchestration", want: "expected name=value"},
		{arg: "turbo=true", want: "unknown flag"},
		{arg: "container_execution=maybe", want: "invalid value"},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			_, err := runCLI(t, "", "flags", "set", tt.arg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSchema(t *testing.T) {
	out, err := runCLI(t, "", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, schema.CatalogSchemaID)
	assert.True(t, json.Valid([]byte(out)))
}

func TestReportError(t *testing.T) {
	var buf bytes.Buffer
	reportError(&buf, fmt.Errorf("loading: %w", &domainerrors.ConfigError{Field: "cooldown", Err: errors.New("negative")}))

	out := decode[struct {
		Error entities.ErrorDetail `json:"error"`
	}](t, buf.String())
	assert.Equal(t, entities.ErrorKindConfig, out.Error.Kind)
	assert.Equal(t, "cooldown", out.Error.Subject)

	buf.Reset()
	reportError(&buf, errors.New("boom"))
	testutil.AssertJSONEqual(t, `{"error":{"kind":"internal","message":"boom"}}`, buf.String())
}

func TestSnakeCase(t *testing.T) {
	assert.Equal(t, "install_orchestration", snakeCase("installOrchestration"))
	assert.Equal(t, "lifecycle_events", snakeCase("lifecycle_events"))
	assert.Equal(t, "container_execution", snakeCase("ContainerExecution"))
}
