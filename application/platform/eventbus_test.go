package platform

import (
	"sync"
	"testing"
	"time"

	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/reglet-dev/execsafety/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panickingSink struct{}

func (panickingSink) OnEvent(entities.CapabilityEvent) { panic("sink bug") }

type blockingSink struct {
	release chan struct{}
	once    sync.Once
	started chan struct{}
}

func (b *blockingSink) OnEvent(entities.CapabilityEvent) {
	b.once.Do(func() { close(b.started) })
	<-b.release
}

func TestEventBus_DeliversInOrderAndFillsIdentity(t *testing.T) {
	rec := &testutil.EventRecorder{}
	bus := NewEventBus(nil, 8, rec)

	bus.OnEvent(entities.CapabilityEvent{Lifecycle: "Install-Started", Message: "one"})
	bus.OnEvent(entities.CapabilityEvent{Lifecycle: entities.LifecycleInstallFailed, Message: "two"})
	bus.Close()

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, entities.LifecycleInstallStarted, events[0].Lifecycle)
	assert.Equal(t, "two", events[1].Message)
	for _, e := range events {
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestEventBus_PanickingSinkIsIsolated(t *testing.T) {
	rec := &testutil.EventRecorder{}
	bus := NewEventBus(nil, 8, panickingSink{}, rec)

	assert.NotPanics(t, func() {
		bus.OnEvent(entities.CapabilityEvent{Message: "a"})
		bus.OnEvent(entities.CapabilityEvent{Message: "b"})
		bus.Close()
	})
	assert.Len(t, rec.Events(), 2)
}

func TestEventBus_FullQueueDropsWithoutBlocking(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{}), started: make(chan struct{})}
	bus := NewEventBus(nil, 1, sink)

	bus.OnEvent(entities.CapabilityEvent{Message: "taken by the sink"})
	<-sink.started
	bus.OnEvent(entities.CapabilityEvent{Message: "queued"})

	done := make(chan struct{})
	go func() {
		bus.OnEvent(entities.CapabilityEvent{Message: "dropped"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnEvent blocked on a full queue")
	}
	assert.Equal(t, int64(1), bus.Dropped())

	close(sink.release)
	bus.Close()
}

func TestEventBus_AfterClose(t *testing.T) {
	rec := &testutil.EventRecorder{}
	bus := NewEventBus(nil, 4, rec)
	bus.Close()
	bus.Close()

	bus.OnEvent(entities.CapabilityEvent{Message: "late"})
	assert.Empty(t, rec.Events())
	assert.Equal(t, int64(1), bus.Dropped())
}

func TestEventBus_Subscribe(t *testing.T) {
	first, second := &testutil.EventRecorder{}, &testutil.EventRecorder{}
	bus := NewEventBus(nil, 4, first)
	bus.Subscribe(second)
	bus.Subscribe(nil)

	bus.OnEvent(entities.CapabilityEvent{Message: "x"})
	bus.Close()

	assert.Len(t, first.Events(), 1)
	assert.Len(t, second.Events(), 1)
}
