package testutil

import (
	"context"
	"sync"

	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/reglet-dev/execsafety/domain/ports"
	"github.com/stretchr/testify/mock"
)

// MockRunner is a testify mock for ports.CommandRunner.
type MockRunner struct {
	mock.Mock
}

var _ ports.CommandRunner = (*MockRunner)(nil)

// Run records the call and returns the configured result.
func (m *MockRunner) Run(ctx context.Context, req ports.CommandRequest) (*ports.CommandResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*ports.CommandResult)
	return res, args.Error(1)
}

// Command matches a CommandRequest by its command line.
func Command(cmd string) interface{} {
	return mock.MatchedBy(func(req ports.CommandRequest) bool { return req.Command == cmd })
}

// Exit builds a CommandResult with the given exit code and output.
func Exit(code int, output string) *ports.CommandResult {
	return &ports.CommandResult{ExitCode: code, Stdout: output}
}

// MockProber is a testify mock for ports.BinaryProber.
type MockProber struct {
	mock.Mock
}

var _ ports.BinaryProber = (*MockProber)(nil)

// Probe records the call and returns the configured availability.
func (m *MockProber) Probe(ctx context.Context, binary string) (bool, string, error) {
	args := m.Called(ctx, binary)
	return args.Bool(0), args.String(1), args.Error(2)
}

// MapProber is a mutable PATH stand-in: a binary is available when set true.
type MapProber struct {
	available map[string]bool
	calls     map[string]int
	mu        sync.Mutex
}

var _ ports.BinaryProber = (*MapProber)(nil)

// NewMapProber returns a prober where the named binaries are available.
func NewMapProber(binaries ...string) *MapProber {
	p := &MapProber{available: make(map[string]bool), calls: make(map[string]int)}
	for _, b := range binaries {
		p.available[b] = true
	}
	return p
}

// Probe reports the configured availability.
func (p *MapProber) Probe(_ context.Context, binary string) (bool, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[binary]++
	if p.available[binary] {
		return true, "/usr/bin/" + binary, nil
	}
	return false, "not found", nil
}

// Set marks a binary available or not.
func (p *MapProber) Set(binary string, available bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available[binary] = available
}

// Calls returns how many times binary was probed.
func (p *MapProber) Calls(binary string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[binary]
}

// EventRecorder collects events delivered to its Record method.
type EventRecorder struct {
	events []entities.CapabilityEvent
	mu     sync.Mutex
}

// Record appends an event. It has the entities.EventFunc signature.
func (r *EventRecorder) Record(evt entities.CapabilityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// OnEvent implements ports.EventSink.
func (r *EventRecorder) OnEvent(evt entities.CapabilityEvent) {
	r.Record(evt)
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []entities.CapabilityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entities.CapabilityEvent(nil), r.events...)
}

// Lifecycles returns the recorded lifecycle names in order.
func (r *EventRecorder) Lifecycles() []entities.Lifecycle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entities.Lifecycle, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Lifecycle)
	}
	return out
}
