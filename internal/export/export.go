// Package export writes the event log as JSONL for reporting and backup.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/store"
)

// header is the first JSONL record written by JSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	EventCount int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string       `json:"type"`
	Data *model.Event `json:"data"`
}

// JSONL writes every event in the log to w as JSONL, ordered by id. The
// first line is a header record with the export timestamp and count.
func JSONL(ctx context.Context, log store.EventLog, w io.Writer) error {
	events, err := log.ListAll(ctx, 0)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(header{
		Version:    "1",
		Type:       "adi.export",
		Timestamp:  time.Now().UTC(),
		EventCount: len(events),
	}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, ev := range events {
		if err := enc.Encode(record{Type: "event", Data: ev}); err != nil {
			return fmt.Errorf("write event %d: %w", ev.ID, err)
		}
	}
	return nil
}
