package entities

import (
	"strings"
	"time"
)

// Lifecycle names a state transition reported through a CapabilityEvent.
type Lifecycle string

const (
	LifecycleCapabilityMissing Lifecycle = "capability_missing"
	LifecycleInstallStarted    Lifecycle = "install_started"
	LifecycleInstallAttempt    Lifecycle = "install_attempt"
	LifecycleInstallVerified   Lifecycle = "install_verified"
	LifecycleInstallSucceeded  Lifecycle = "install_succeeded"
	LifecycleInstallFailed     Lifecycle = "install_failed"
	LifecycleInstallCooldown   Lifecycle = "install_cooldown"
	LifecyclePolicyRewrite     Lifecycle = "policy_rewrite"
	LifecyclePolicyBlocked     Lifecycle = "policy_blocked"
	LifecycleCheckpointCreated Lifecycle = "checkpoint_created"
	LifecycleRollbackApplied   Lifecycle = "rollback_applied"
	LifecycleRollbackFailed    Lifecycle = "rollback_failed"
	LifecycleMCPServerState    Lifecycle = "mcp_server_state"
)

// NormalizeLifecycle lowercases a lifecycle name and turns separators into underscores,
// so "Install-Started" and "install started" both become install_started.
func NormalizeLifecycle(name string) Lifecycle {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '.', ':':
			return '_'
		}
		return r
	}, name)
	return Lifecycle(name)
}

// CapabilityEvent is a lifecycle notification. Events are emitted, never stored here.
type CapabilityEvent struct {
	Timestamp    time.Time     `json:"timestamp"`
	ID           string        `json:"id"`
	Lifecycle    Lifecycle     `json:"lifecycle"`
	CapabilityID string        `json:"capabilityId,omitempty"`
	Message      string        `json:"message"`
	Detail       string        `json:"detail,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
}

// EventFunc is a caller-supplied event callback.
type EventFunc func(CapabilityEvent)
