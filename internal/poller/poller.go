// Package poller watches the event log for newly submitted orders and
// dispatches each to the worker pool at most once per process lifetime.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/store"
)

// Submitter hands an order to the worker pool.
type Submitter interface {
	Submit(order *model.Order) error
}

// Poller is the single background loop reading submitted events above its
// watermark. The watermark and dispatched set are private to one poller
// and are not safe to share across processes; durable "already handled"
// status lives in the log as terminal events, which is what recovery uses.
type Poller struct {
	log      store.EventLog
	pool     Submitter
	interval time.Duration
	rewrite  model.PathRewrite
	logger   *slog.Logger

	watermark  int64
	dispatched map[string]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a poller starting strictly after the given watermark,
// normally the recovery routine's result.
func New(log store.EventLog, pool Submitter, interval time.Duration, rewrite model.PathRewrite, watermark int64, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		log:        log,
		pool:       pool,
		interval:   interval,
		rewrite:    rewrite,
		logger:     logger,
		watermark:  watermark,
		dispatched: make(map[string]struct{}),
	}
}

// Start begins polling on a dedicated goroutine.
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()
}

// Stop requests a cooperative shutdown and blocks until the loop exits.
// An in-flight query is not cancelled; the stop takes effect between
// iterations.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context) {
	p.logger.Info("poller started", "interval", p.interval, "watermark", p.watermark)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped", "watermark", p.watermark)
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce queries submitted events above the watermark and dispatches
// each unseen order. A store error is logged and retried on the next
// tick; a per-order error is converted into a failed event and never
// stops the loop.
func (p *Poller) pollOnce(ctx context.Context) {
	events, err := p.log.ListByStage(ctx, model.StageSubmitted, p.watermark)
	if err != nil {
		p.logger.Error("poll query failed", "err", err)
		return
	}

	for _, ev := range events {
		if _, seen := p.dispatched[ev.UUID]; !seen {
			if !p.dispatch(ctx, ev) {
				// The watermark stays behind this event so the next tick
				// retries it (and everything after it) instead of losing
				// the order for the rest of the process lifetime.
				return
			}
		}
		if ev.ID > p.watermark {
			p.watermark = ev.ID
		}
	}
}

// dispatch reports whether the event was consumed: picked up, rejected, or
// handed to the pool. False means the pickup itself could not be recorded
// and the event must be retried.
func (p *Poller) dispatch(ctx context.Context, ev *model.Event) bool {
	// Started precedes validation deliberately: the history shows the
	// order was picked up even when validation rejects it a moment later.
	if err := p.log.Append(ctx, ev.Next(model.StageStarted)); err != nil {
		p.logger.Error("failed to record started event", "uuid", ev.UUID, "err", err)
		return false
	}

	order, err := model.BuildOrder(ev, p.rewrite)
	if err != nil {
		p.logger.Warn("order rejected", "uuid", ev.UUID, "err", err)
		p.failOrder(ctx, ev, err.Error())
		return true
	}

	if err := p.pool.Submit(order); err != nil {
		p.logger.Error("submit to pool failed", "uuid", ev.UUID, "err", err)
		p.failOrder(ctx, ev, "dispatch failed: "+err.Error())
		return true
	}

	p.dispatched[ev.UUID] = struct{}{}
	p.logger.Info("order dispatched",
		"uuid", ev.UUID, "user", ev.Username, "files", len(ev.Files))
	return true
}

func (p *Poller) failOrder(ctx context.Context, ev *model.Event, reason string) {
	failed := ev.Next(model.StageFailed)
	failed.Error = reason
	if err := p.log.Append(ctx, failed); err != nil {
		p.logger.Error("failed to record failed event", "uuid", ev.UUID, "err", err)
	}
}
