package store

import (
	"context"
	"time"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
)

// EventLog defines the persistence interface for the import event log.
// The log is append-only: there is deliberately no update or delete
// operation, and concurrent appends from multiple processes are plain
// independent inserts.
type EventLog interface {
	// Append inserts one event and assigns its ID and CreatedAt.
	// It either fully writes the row or returns a store error.
	Append(ctx context.Context, event *model.Event) error

	// ListByStage returns events at the given stage with id > afterID,
	// ordered by id ascending.
	ListByStage(ctx context.Context, stage model.Stage, afterID int64) ([]*model.Event, error)

	// Unresolved returns, for every order whose stage-matching event is
	// older than the lookback window and which has no terminal event,
	// the original event. One event per correlation UUID.
	Unresolved(ctx context.Context, stage model.Stage, lookback time.Duration) ([]*model.Event, error)

	// MaxID returns the highest event id in the log, or 0 when empty.
	MaxID(ctx context.Context) (int64, error)

	// History returns all events sharing the correlation UUID, ordered by
	// timestamp then id.
	History(ctx context.Context, uuid string) ([]*model.Event, error)

	// ListByUser returns all events for a username, newest first.
	ListByUser(ctx context.Context, username string) ([]*model.Event, error)

	// ListAll returns events with id > afterID, ordered by id ascending.
	ListAll(ctx context.Context, afterID int64) ([]*model.Event, error)

	// Lifecycle
	Close() error
}
