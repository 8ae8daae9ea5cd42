package policy

import (
	"context"
	"log/slog"

	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/reglet-dev/execsafety/domain/ports"
)

// Ensure implementations satisfy the interface.
var _ ports.EventSink = (*LogEventSink)(nil)
var _ ports.EventSink = (*NopEventSink)(nil)

// LogEventSink writes lifecycle events to a structured logger. Blocked
// commands and failed rollbacks log at warn, everything else at info.
type LogEventSink struct {
	Logger *slog.Logger
}

// OnEvent implements ports.EventSink.
func (s *LogEventSink) OnEvent(evt entities.CapabilityEvent) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	level := slog.LevelInfo
	switch evt.Lifecycle {
	case entities.LifecyclePolicyBlocked, entities.LifecycleRollbackFailed, entities.LifecycleInstallFailed:
		level = slog.LevelWarn
	}

	attrs := []any{"lifecycle", evt.Lifecycle, "event_id", evt.ID}
	if evt.CapabilityID != "" {
		attrs = append(attrs, "capability", evt.CapabilityID)
	}
	if evt.Detail != "" {
		attrs = append(attrs, "detail", evt.Detail)
	}
	if evt.Duration > 0 {
		attrs = append(attrs, "duration", evt.Duration)
	}
	logger.Log(context.Background(), level, evt.Message, attrs...)
}

// NopEventSink discards events.
type NopEventSink struct{}

// OnEvent implements ports.EventSink.
func (s *NopEventSink) OnEvent(entities.CapabilityEvent) {}
