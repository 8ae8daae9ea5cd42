package ports

import "github.com/reglet-dev/execsafety/domain/entities"

// EventSink receives lifecycle events.
// Implementations can log, forward to an evidence ledger, or collect for tests.
type EventSink interface {
	// OnEvent is called for every emitted event. It must not be relied on
	// to return an error; delivery is fire-and-forget.
	OnEvent(evt entities.CapabilityEvent)
}
