package runner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domainerrors "github.com/reglet-dev/execsafety/domain/errors"
	"github.com/reglet-dev/execsafety/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellRunner_Success(t *testing.T) {
	r := NewShellRunner()
	res, err := r.Run(context.Background(), ports.CommandRequest{Command: "echo hello && echo oops >&2"})
	require.NoError(t, err)

	assert.True(t, res.Succeeded())
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.False(t, res.Truncated)
}

func TestShellRunner_ExitCode(t *testing.T) {
	r := NewShellRunner()
	res, err := r.Run(context.Background(), ports.CommandRequest{Command: "exit 42"})
	require.NoError(t, err)
	assert.Equal(t, 42, res.ExitCode)
	assert.False(t, res.Succeeded())
}

func TestShellRunner_Timeout(t *testing.T) {
	r := NewShellRunner()
	start := time.Now()
	res, err := r.Run(context.Background(), ports.CommandRequest{Command: "sleep 5", Timeout: 100})
	require.NoError(t, err)

	assert.True(t, res.IsTimeout)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestShellRunner_Dir(t *testing.T) {
	dir := t.TempDir()
	res, err := NewShellRunner().Run(context.Background(), ports.CommandRequest{Command: "pwd", Dir: dir})
	require.NoError(t, err)
	assert.Contains(t, strings.TrimSpace(res.Stdout), dir[strings.LastIndex(dir, "/")+1:])
}

func TestShellRunner_EnvIsSanitized(t *testing.T) {
	r := NewShellRunner(WithEnviron(func() []string {
		return []string{"PATH=/usr/bin:/bin", "LD_PRELOAD=/tmp/evil.so", "KEEP=base"}
	}))

	res, err := r.Run(context.Background(), ports.CommandRequest{
		Command: `echo "pre=${LD_PRELOAD:-unset} keep=$KEEP extra=$EXTRA bashenv=${BASH_ENV:-unset}"`,
		Env:     []string{"EXTRA=1", "KEEP=override", "BASH_ENV=/tmp/x"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pre=unset keep=override extra=1 bashenv=unset\n", res.Stdout)
}

func TestShellRunner_StartFailure(t *testing.T) {
	r := NewShellRunner(WithShell("/nonexistent/shell"))
	_, err := r.Run(context.Background(), ports.CommandRequest{Command: "true"})

	var execErr *domainerrors.ExecError
	require.True(t, errors.As(err, &execErr))
}

func TestShellRunner_EmptyCommand(t *testing.T) {
	_, err := NewShellRunner().Run(context.Background(), ports.CommandRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command is required")
}

func TestShellRunner_OutputKeepsTail(t *testing.T) {
	r := NewShellRunner(WithMaxOutput(16))
	res, err := r.Run(context.Background(), ports.CommandRequest{
		Command: "for i in 1 2 3 4 5 6 7 8 9; do echo line$i; done; echo FINAL-ERROR",
	})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.LessOrEqual(t, len(res.Stdout), 16)
	assert.True(t, strings.HasSuffix(res.Stdout, "FINAL-ERROR\n"))
}

func TestShellRunner_ContainerArgv(t *testing.T) {
	r := NewShellRunner(WithContainerRuntime("podman"))

	assert.Equal(t, []string{"sh", "-c", "make install"},
		r.argv(ports.CommandRequest{Command: "make install", Dir: "/src"}))

	assert.Equal(t, []string{
		"podman", "run", "--rm", "-i", "-w", "/src", "-e", "CI=1",
		"pandoc/core:3.1", "sh", "-c", "make install",
	}, r.argv(ports.CommandRequest{
		Command: "make install",
		Dir:     "/src",
		Env:     []string{"CI=1", "LD_PRELOAD=x.so"},
		Image:   "pandoc/core:3.1",
	}))
}

func TestTailBuffer(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		writes    []string
		want      string
		truncated bool
	}{
		{"within limit", 10, []string{"hello"}, "hello", false},
		{"exact limit", 5, []string{"hello"}, "hello", false},
		{"single oversize write", 5, []string{"hello world"}, "world", true},
		{"accumulated writes", 6, []string{"abc", "def", "ghi"}, "defghi", true},
		{"many small writes compact", 4, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, "ghij", true},
		{"big write after content", 4, []string{"ab", "wxyz"}, "wxyz", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTailBuffer(tt.limit)
			for _, w := range tt.writes {
				n, err := b.Write([]byte(w))
				require.NoError(t, err)
				assert.Equal(t, len(w), n)
			}
			assert.Equal(t, tt.want, b.String())
			assert.Equal(t, tt.truncated, b.Truncated())
		})
	}
}

func TestSanitizeEnv(t *testing.T) {
	got := SanitizeEnv(context.Background(), nil, []string{
		"PATH=/bin", "ld_library_path=/x", "DYLD_INSERT_LIBRARIES=a", "IFS= ", "malformed", "=novalue", "HOME=/root",
	})
	assert.Equal(t, []string{"PATH=/bin", "HOME=/root"}, got)
}

func TestMergeEnv(t *testing.T) {
	got := mergeEnv([]string{"A=1", "B=2"}, []string{"B=3", "C=4"})
	assert.Equal(t, []string{"A=1", "B=3", "C=4"}, got)
}
