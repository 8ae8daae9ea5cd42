package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyViolationError(t *testing.T) {
	err := &PolicyViolationError{Command: "rm -rf /", Reason: "catastrophic command", Detail: "root deletion"}

	assert.Equal(t, "command blocked by policy: catastrophic command (root deletion)", err.Error())

	detail := err.ToErrorDetail()
	assert.Equal(t, entities.ErrorKindPolicy, detail.Kind)
	assert.Equal(t, "denied", detail.Code)
	assert.False(t, detail.Retryable)
	assert.Equal(t, "policy/denied: command blocked by policy: catastrophic command (root deletion)", detail.Error())
}

func TestPolicyViolationError_NoDetail(t *testing.T) {
	err := &PolicyViolationError{Reason: "not executable"}
	assert.Equal(t, "command blocked by policy: not executable", err.Error())
}

func TestCapabilityUnresolvedError(t *testing.T) {
	err := &CapabilityUnresolvedError{Executable: "frobnicate"}

	assert.Equal(t, `no capability descriptor for executable "frobnicate"`, err.Error())
	assert.Equal(t, "frobnicate", err.ToErrorDetail().Subject)
}

func TestInstallFailureError(t *testing.T) {
	err := &InstallFailureError{CapabilityID: "jq", Attempts: 2, OutputPreview: "E: Unable to locate package"}

	assert.Equal(t, "install of jq failed after 2 attempt(s): E: Unable to locate package", err.Error())
	assert.Equal(t, "exhausted", err.ToErrorDetail().Code)

	bare := &InstallFailureError{CapabilityID: "jq", Attempts: 1}
	assert.Equal(t, "install of jq failed after 1 attempt(s)", bare.Error())
}

func TestCooldownError(t *testing.T) {
	err := &CooldownError{CapabilityID: "rg", Remaining: 9*time.Minute + 30*time.Second + 400*time.Millisecond}

	assert.Equal(t, "install of rg is cooling down, retry in 9m30s", err.Error())
	detail := err.ToErrorDetail()
	assert.Equal(t, "cooldown", detail.Code)
	assert.Equal(t, "rg", detail.Subject)
	assert.True(t, detail.Retryable)
}

func TestCheckpointError(t *testing.T) {
	baseErr := fmt.Errorf("permission denied")
	err := &CheckpointError{Path: "/srv/app.conf", Err: baseErr}

	assert.Equal(t, "checkpoint of /srv/app.conf failed: permission denied", err.Error())
	assert.True(t, errors.Is(err, baseErr))
}

func TestRestoreError(t *testing.T) {
	baseErr := fmt.Errorf("disk full")
	err := &RestoreError{Path: "/srv/app.conf", CheckpointID: "cp-1", Err: baseErr}

	assert.Equal(t, "rollback of /srv/app.conf (checkpoint cp-1) failed: disk full", err.Error())
	assert.True(t, errors.Is(err, baseErr))

	var restoreErr *RestoreError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &restoreErr))
	assert.Equal(t, "cp-1", restoreErr.CheckpointID)
	assert.Equal(t, entities.ErrorKindRestore, restoreErr.ToErrorDetail().Kind)
	assert.True(t, restoreErr.ToErrorDetail().Retryable)
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{
		Operation: "install",
		Duration:  5 * time.Second,
		Target:    "apt-get install -y jq",
	}

	assert.Equal(t, "install timeout after 5s (target: apt-get install -y jq)", err.Error())
	assert.True(t, err.Timeout())

	noTarget := &TimeoutError{Operation: "probe", Duration: 2 * time.Second}
	assert.Equal(t, "probe timeout after 2s", noTarget.Error())
}

func TestConfigError(t *testing.T) {
	baseErr := fmt.Errorf("must be positive")
	err := &ConfigError{Field: "probe_timeout", Err: baseErr}

	assert.Equal(t, "config validation failed for field 'probe_timeout': must be positive", err.Error())
	assert.True(t, errors.Is(err, baseErr))

	noField := &ConfigError{Err: baseErr}
	assert.Equal(t, "config validation failed: must be positive", noField.Error())
}

func TestExecError(t *testing.T) {
	tests := []struct {
		name string
		err  *ExecError
		want string
	}{
		{"start failure", &ExecError{Command: "sh", Err: fmt.Errorf("not found")}, "failed to execute 'sh': not found"},
		{"stderr", &ExecError{Command: "false", ExitCode: 1, Stderr: "boom"}, "command 'false' exited with code 1: boom"},
		{"exit code only", &ExecError{Command: "false", ExitCode: 1}, "command 'false' exited with code 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestToErrorDetail(t *testing.T) {
	assert.Nil(t, ToErrorDetail(nil))

	detail := ToErrorDetail(fmt.Errorf("outer: %w", &CooldownError{CapabilityID: "fd", Remaining: time.Minute}))
	assert.Equal(t, entities.ErrorKindInstall, detail.Kind)

	existing := &entities.ErrorDetail{Kind: entities.ErrorKindConfig, Message: "bad"}
	assert.Same(t, existing, ToErrorDetail(existing))
	assert.Equal(t, "config: bad", existing.Error())

	generic := ToErrorDetail(fmt.Errorf("boom"))
	assert.Equal(t, entities.ErrorKindInternal, generic.Kind)
	assert.Equal(t, "boom", generic.Message)
	assert.Equal(t, "boom", generic.Error())
}
