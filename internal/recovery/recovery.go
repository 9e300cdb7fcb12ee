// Package recovery resolves orders left dangling by a crash and computes
// the poller's starting watermark.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/store"
)

// Result summarizes one recovery run.
type Result struct {
	Compensated int
	Watermark   int64
}

// Run scans the log for orders stuck without a terminal event past the
// lookback window and appends one compensating failed event per order,
// copying the original descriptive fields with a fresh timestamp. The
// original rows are never touched. It then returns the maximum event id as
// the initial watermark, so the poller starts strictly after every event
// known at startup, the just-appended compensations included.
//
// A scan failure skips compensation for this run but is not fatal; the
// next restart gets another chance. Failing to compute the watermark is
// fatal, since the poller cannot start without it.
func Run(ctx context.Context, log store.EventLog, lookback time.Duration, logger *slog.Logger) (Result, error) {
	var res Result

	dangling, err := log.Unresolved(ctx, model.StageSubmitted, lookback)
	if err != nil {
		logger.Error("recovery scan failed", "err", err)
	}
	for _, ev := range dangling {
		comp := ev.Next(model.StageFailed)
		comp.Error = "compensated: no terminal event within lookback window"
		if err := log.Append(ctx, comp); err != nil {
			logger.Error("compensation append failed", "uuid", ev.UUID, "err", err)
			continue
		}
		res.Compensated++
		logger.Info("compensated dangling order",
			"uuid", ev.UUID, "user", ev.Username, "submitted_at", ev.CreatedAt)
	}

	max, err := log.MaxID(ctx)
	if err != nil {
		return res, fmt.Errorf("compute watermark: %w", err)
	}
	res.Watermark = max
	return res, nil
}
