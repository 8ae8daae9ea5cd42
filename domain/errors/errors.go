// Package errors provides domain-specific error types for the platform.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/reglet-dev/execsafety/domain/entities"
)

// DetailedError is implemented by errors that describe themselves as an ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to a structured ErrorDetail.
// Unrecognized errors are categorized as internal.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{Kind: entities.ErrorKindInternal, Message: err.Error()}
}

// PolicyViolationError is a denied command. It is never retried.
type PolicyViolationError struct {
	Command string
	Reason  string
	Detail  string
}

func (e *PolicyViolationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("command blocked by policy: %s (%s)", e.Reason, e.Detail)
	}
	return fmt.Sprintf("command blocked by policy: %s", e.Reason)
}

// ToErrorDetail implements DetailedError.
func (e *PolicyViolationError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Kind: entities.ErrorKindPolicy, Code: "denied", Message: e.Error()}
}

// CapabilityUnresolvedError reports an executable with no known descriptor.
// It is informational and never blocks execution.
type CapabilityUnresolvedError struct {
	Executable string
}

func (e *CapabilityUnresolvedError) Error() string {
	return fmt.Sprintf("no capability descriptor for executable %q", e.Executable)
}

// ToErrorDetail implements DetailedError.
func (e *CapabilityUnresolvedError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Kind:    entities.ErrorKindCapability,
		Code:    "unresolved",
		Message: e.Error(),
		Subject: e.Executable,
	}
}

// InstallFailureError reports that every permitted recipe failed.
type InstallFailureError struct {
	CapabilityID string
	Attempts     int
	// OutputPreview is the truncated output of the last attempt.
	OutputPreview string
}

func (e *InstallFailureError) Error() string {
	if e.OutputPreview != "" {
		return fmt.Sprintf("install of %s failed after %d attempt(s): %s", e.CapabilityID, e.Attempts, e.OutputPreview)
	}
	return fmt.Sprintf("install of %s failed after %d attempt(s)", e.CapabilityID, e.Attempts)
}

// ToErrorDetail implements DetailedError.
func (e *InstallFailureError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Kind:      entities.ErrorKindInstall,
		Code:      "exhausted",
		Message:   e.Error(),
		Subject:   e.CapabilityID,
		Retryable: true,
	}
}

// CooldownError rejects an install attempt made during a failure cooldown.
type CooldownError struct {
	CapabilityID string
	Remaining    time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("install of %s is cooling down, retry in %s", e.CapabilityID, e.Remaining.Round(time.Second))
}

// ToErrorDetail implements DetailedError.
func (e *CooldownError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Kind:      entities.ErrorKindInstall,
		Code:      "cooldown",
		Message:   e.Error(),
		Subject:   e.CapabilityID,
		Retryable: true,
	}
}

// CheckpointError means a backup could not be created before a mutation.
type CheckpointError struct {
	Err  error
	Path string
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint of %s failed: %v", e.Path, e.Err)
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *CheckpointError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Kind: entities.ErrorKindCheckpoint, Code: "create", Message: e.Error(), Subject: e.Path}
}

// RestoreError means the filesystem may be left partially modified.
type RestoreError struct {
	Err          error
	Path         string
	CheckpointID string
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("rollback of %s (checkpoint %s) failed: %v", e.Path, e.CheckpointID, e.Err)
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *RestoreError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Kind:      entities.ErrorKindRestore,
		Code:      e.CheckpointID,
		Message:   e.Error(),
		Subject:   e.Path,
		Retryable: true,
	}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Kind: entities.ErrorKindConfig, Message: e.Error(), Subject: e.Field}
}

// ExecError represents a command execution error.
type ExecError struct {
	Err      error
	Command  string
	Stderr   string
	ExitCode int
}

func (e *ExecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to execute '%s': %v", e.Command, e.Err)
	}
	if e.Stderr != "" {
		return fmt.Sprintf("command '%s' exited with code %d: %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("command '%s' exited with code %d", e.Command, e.ExitCode)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ExecError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Kind: entities.ErrorKindExec, Code: fmt.Sprintf("exit_%d", e.ExitCode), Message: e.Error(), Subject: e.Command}
}

// TimeoutError represents a timeout during an operation.
type TimeoutError struct {
	Operation string
	Target    string
	Duration  time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s timeout after %v (target: %s)", e.Operation, e.Duration, e.Target)
	}
	return fmt.Sprintf("%s timeout after %v", e.Operation, e.Duration)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// ToErrorDetail implements DetailedError.
func (e *TimeoutError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Kind:      entities.ErrorKindTimeout,
		Code:      e.Operation,
		Message:   e.Error(),
		Subject:   e.Target,
		Retryable: true,
	}
}
