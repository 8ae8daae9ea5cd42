package platform

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/reglet-dev/execsafety/domain/entities"
)

// UnhealthyThreshold is the number of consecutive failures after which a
// server is reported unhealthy rather than degraded.
const UnhealthyThreshold = 3

// MCPTracker keeps the health state of MCP servers. It is independent of
// command capability management and only shares the event stream.
type MCPTracker struct {
	servers map[string]entities.MCPServerState
	now     func() time.Time
	emit    func(entities.CapabilityEvent)
	mu      sync.Mutex
}

// NewMCPTracker creates a tracker. emit may be nil.
func NewMCPTracker(now func() time.Time, emit func(entities.CapabilityEvent)) *MCPTracker {
	if now == nil {
		now = time.Now
	}
	return &MCPTracker{servers: make(map[string]entities.MCPServerState), now: now, emit: emit}
}

// MarkStarting records that a server is launching.
func (t *MCPTracker) MarkStarting(name string) entities.MCPServerState {
	return t.update(name, func(s *entities.MCPServerState) {
		s.Status = entities.MCPStatusStarting
	})
}

// ReportHealthy records a successful health check and resets the failure count.
func (t *MCPTracker) ReportHealthy(name string) entities.MCPServerState {
	return t.update(name, func(s *entities.MCPServerState) {
		s.Status = entities.MCPStatusHealthy
		s.ConsecutiveFailures = 0
		s.LastError = ""
	})
}

// ReportFailure records a failed health check. One failure degrades the
// server; UnhealthyThreshold in a row make it unhealthy.
func (t *MCPTracker) ReportFailure(name string, cause error) entities.MCPServerState {
	return t.update(name, func(s *entities.MCPServerState) {
		s.ConsecutiveFailures++
		if cause != nil {
			s.LastError = cause.Error()
		}
		if s.ConsecutiveFailures >= UnhealthyThreshold {
			s.Status = entities.MCPStatusUnhealthy
		} else {
			s.Status = entities.MCPStatusDegraded
		}
	})
}

// RecordRestart counts a restart and puts the server back into starting.
func (t *MCPTracker) RecordRestart(name string) entities.MCPServerState {
	return t.update(name, func(s *entities.MCPServerState) {
		s.Restarts++
		s.ConsecutiveFailures = 0
		s.Status = entities.MCPStatusStarting
	})
}

// MarkStopped records an intentional shutdown.
func (t *MCPTracker) MarkStopped(name string) entities.MCPServerState {
	return t.update(name, func(s *entities.MCPServerState) {
		s.Status = entities.MCPStatusStopped
	})
}

// Get returns the state of one server.
func (t *MCPTracker) Get(name string) (entities.MCPServerState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.servers[name]
	return s, ok
}

// List returns every tracked server sorted by name.
func (t *MCPTracker) List() []entities.MCPServerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]entities.MCPServerState, 0, len(t.servers))
	for _, s := range t.servers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Remove forgets a server.
func (t *MCPTracker) Remove(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.servers[name]
	delete(t.servers, name)
	return ok
}

func (t *MCPTracker) update(name string, fn func(*entities.MCPServerState)) entities.MCPServerState {
	t.mu.Lock()
	s, ok := t.servers[name]
	if !ok {
		s = entities.MCPServerState{Name: name, Status: entities.MCPStatusStarting}
	}
	before := s.Status
	fn(&s)
	s.UpdatedAt = t.now()
	t.servers[name] = s
	t.mu.Unlock()

	if t.emit != nil && (!ok || before != s.Status) {
		detail := s.LastError
		if s.Restarts > 0 {
			detail = strings.TrimSpace(fmt.Sprintf("restarts=%d %s", s.Restarts, detail))
		}
		t.emit(entities.CapabilityEvent{
			Lifecycle:    entities.LifecycleMCPServerState,
			CapabilityID: name,
			Message:      fmt.Sprintf("mcp server %s is %s", name, s.Status),
			Detail:       detail,
		})
	}
	return s
}
