package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandResult_Succeeded(t *testing.T) {
	tests := []struct {
		name   string
		result *CommandResult
		want   bool
	}{
		{name: "nil", result: nil, want: false},
		{name: "zero exit", result: &CommandResult{}, want: true},
		{name: "non-zero exit", result: &CommandResult{ExitCode: 2}, want: false},
		{name: "timed out", result: &CommandResult{IsTimeout: true}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.Succeeded())
		})
	}
}

func TestCommandResult_CombinedOutput(t *testing.T) {
	tests := []struct {
		name   string
		result *CommandResult
		want   string
	}{
		{name: "nil", result: nil, want: ""},
		{name: "stdout only", result: &CommandResult{Stdout: "installed"}, want: "installed"},
		{name: "stderr only", result: &CommandResult{Stderr: "E: no package"}, want: "E: no package"},
		{name: "both", result: &CommandResult{Stdout: "reading lists", Stderr: "E: no package"}, want: "reading lists\nE: no package"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.CombinedOutput())
		})
	}
}
