package entities

import "time"

// StateSource records how a CapabilityState was determined.
type StateSource string

const (
	// StateSourceProbe means a PATH probe produced the state.
	StateSourceProbe StateSource = "probe"
	// StateSourceRuntime means the install orchestrator wrote the state directly.
	StateSourceRuntime StateSource = "runtime"
)

// CapabilityState is the cached liveness of a binary.
type CapabilityState struct {
	LastCheckedAt time.Time   `json:"lastCheckedAt"`
	Source        StateSource `json:"source"`
	Detail        string      `json:"detail,omitempty"`
	Available     bool        `json:"available"`
}

// Expired reports whether the state is older than ttl at now.
func (s CapabilityState) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastCheckedAt) >= ttl
}
