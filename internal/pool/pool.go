// Package pool runs import attempts on a bounded set of isolated workers.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
)

// Importer executes one order's full import pipeline and returns the
// terminal stage it recorded.
type Importer interface {
	Import(ctx context.Context, order *model.Order) model.Stage
}

// Factory builds one worker's importer. Each worker gets its own instance
// because the repository client state behind an importer is not safe to
// share across concurrent orders.
type Factory func(worker int, logger *slog.Logger) (Importer, error)

// Pool feeds a task queue into a fixed number of workers. One task is one
// order's full pipeline run; completion order is not guaranteed.
type Pool struct {
	size    int
	factory Factory
	logger  *slog.Logger

	tasks chan *model.Order
	wg    sync.WaitGroup

	// mu orders Submit against Stop: Stop may only close the task channel
	// once no Submit holds a read lock, so a send never races the close.
	mu      sync.RWMutex
	stopped bool
}

// New creates a pool with the given number of workers.
func New(size int, factory Factory, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		size:    size,
		factory: factory,
		logger:  logger,
		tasks:   make(chan *model.Order, size*2),
	}
}

// Start initializes each worker with its own importer and logging context
// and begins consuming tasks.
func (p *Pool) Start(ctx context.Context) error {
	for i := 1; i <= p.size; i++ {
		workerLogger := p.logger.With("worker", i)
		imp, err := p.factory(i, workerLogger)
		if err != nil {
			return fmt.Errorf("init worker %d: %w", i, err)
		}
		p.wg.Add(1)
		go p.runWorker(ctx, imp, workerLogger)
	}
	p.logger.Info("worker pool started", "workers", p.size)
	return nil
}

func (p *Pool) runWorker(ctx context.Context, imp Importer, logger *slog.Logger) {
	defer p.wg.Done()
	logger.Info("worker started")
	for order := range p.tasks {
		stage := imp.Import(ctx, order)
		// Completion callback: logging only. The outcome event is written
		// inside the pipeline, so a worker crash still leaves a truthful
		// partial history for recovery to resolve.
		logger.Info("import finished",
			"uuid", order.UUID, "user", order.Username, "outcome", stage)
	}
	logger.Info("worker stopped")
}

// Submit queues one order. It blocks while the queue is full and returns
// an error once the pool has been stopped.
func (p *Pool) Submit(order *model.Order) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return errors.New("pool: stopped")
	}
	p.tasks <- order
	return nil
}

// Stop rejects further submissions, drains the queue, and waits for every
// dispatched order to finish. Safe to call concurrently with Submit and
// more than once; there is no mid-flight cancellation.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
