// Package events mirrors appended log rows to an optional message bus.
// The event table stays the single source of truth; the bus is a
// best-effort side channel for live observers.
package events

import (
	"context"
	"log/slog"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/store"
)

// MirroredLog decorates an EventLog so that every successful append is
// also published to the bus. Publish failures are logged and never affect
// the append.
type MirroredLog struct {
	store.EventLog
	bus    Publisher
	logger *slog.Logger
}

// Compile-time check that MirroredLog implements store.EventLog.
var _ store.EventLog = (*MirroredLog)(nil)

// NewMirroredLog wraps the log with the given publisher.
func NewMirroredLog(log store.EventLog, bus Publisher, logger *slog.Logger) *MirroredLog {
	return &MirroredLog{EventLog: log, bus: bus, logger: logger}
}

func (m *MirroredLog) Append(ctx context.Context, event *model.Event) error {
	if err := m.EventLog.Append(ctx, event); err != nil {
		return err
	}
	if err := m.bus.Publish(ctx, TopicFor(event.Stage), OrderEvent{Event: event}); err != nil {
		m.logger.Warn("event mirror publish failed",
			"uuid", event.UUID, "stage", event.Stage, "err", err)
	}
	return nil
}
