package entities

import "time"

// MCPServerStatus is the health state of a tracked MCP server.
type MCPServerStatus string

const (
	MCPStatusStarting  MCPServerStatus = "starting"
	MCPStatusHealthy   MCPServerStatus = "healthy"
	MCPStatusDegraded  MCPServerStatus = "degraded"
	MCPStatusUnhealthy MCPServerStatus = "unhealthy"
	MCPStatusStopped   MCPServerStatus = "stopped"
)

// MCPServerState is the runtime record for one MCP server.
type MCPServerState struct {
	UpdatedAt           time.Time       `json:"updatedAt"`
	Name                string          `json:"name"`
	Status              MCPServerStatus `json:"status"`
	LastError           string          `json:"lastError,omitempty"`
	Restarts            int             `json:"restarts"`
	ConsecutiveFailures int             `json:"consecutiveFailures"`
}
