// Package pipeline drives one order through preprocessing, upload,
// reconciliation, and annotation, recording exactly one terminal event.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/omero"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/runner"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/store"
)

// Options holds the pipeline's fixed policies.
type Options struct {
	Retry          Retry
	SessionTTL     time.Duration
	ManagedRepoDir string // OMERO managed repository root, scanned during reconciliation
}

// Pipeline executes import attempts. One pipeline per worker: the gateway
// it owns is not safe to share across concurrent orders.
type Pipeline struct {
	log     store.EventLog
	gateway omero.Gateway
	runner  runner.Runner
	opts    Options
	logger  *slog.Logger
}

// New creates a pipeline bound to one worker's gateway.
func New(log store.EventLog, gw omero.Gateway, run runner.Runner, opts Options, logger *slog.Logger) *Pipeline {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 10 * time.Minute
	}
	return &Pipeline{log: log, gateway: gw, runner: run, opts: opts, logger: logger}
}

// fileResult is the per-file upload outcome.
type fileResult struct {
	Path string // path handed to the repository (preprocessed output when applicable)
	Src  string // original order path
	Name string
	IDs  []int64
	Err  error
}

// Import runs the full state machine for one order and returns the terminal
// stage it recorded. It never panics and never returns before a terminal
// event has been appended; a worker crash mid-run simply leaves the order
// without a terminal event for recovery to resolve later.
func (p *Pipeline) Import(ctx context.Context, order *model.Order) (stage model.Stage) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panic",
				"uuid", order.UUID, "user", order.Username, "panic", r)
			p.fail(ctx, order, fmt.Sprintf("unexpected error: %v", r), nil)
			stage = model.StageFailed
		}
	}()

	// Session acquisition: privileged login, then impersonation of the
	// order's target user. Only connection failures are retried.
	var sess omero.Session
	err := p.opts.Retry.Do(ctx, func() error {
		s, err := p.acquire(ctx, order)
		if err == nil {
			sess = s
		}
		return err
	})
	if err != nil {
		p.fail(ctx, order, "session acquisition failed: "+err.Error(), nil)
		return model.StageFailed
	}
	// sess may be swapped for a reacquired session mid-order, so the close
	// must read the variable at exit, not bind the original receiver.
	defer func() { sess.Close() }()

	// Optional preprocessing. Aborts the whole order before any upload
	// is attempted when parameters are incomplete or a run fails.
	uploads := order.Files
	inPlace := false
	if order.Preprocessing != nil {
		p.record(ctx, order, model.StagePreprocessing, "", nil)
		outs, err := p.preprocess(ctx, order)
		if err != nil {
			p.fail(ctx, order, err.Error(), nil)
			return model.StageFailed
		}
		uploads = outs
		inPlace = true
	}

	// Upload each file. A missing created id is a per-file failure, not
	// an exception; the order continues with its remaining files.
	results := make([]fileResult, len(uploads))
	for i, path := range uploads {
		res := fileResult{Path: path, Src: order.Files[i], Name: order.FileName(i)}
		res.IDs, res.Err = p.importFile(ctx, &sess, order, path, res.Name, inPlace)
		if res.Err == nil && len(res.IDs) == 0 {
			res.Err = fmt.Errorf("repository returned no id for %s", path)
		}
		if res.Err != nil {
			p.logger.Warn("file import failed",
				"uuid", order.UUID, "file", path, "err", res.Err)
		}
		results[i] = res
	}

	// Post-upload reconciliation: only when preprocessing produced local
	// ephemeral output that was imported in place.
	if inPlace && order.Preprocessing.AltOutputFolder != "" {
		if err := p.reconcile(order); err != nil {
			p.fail(ctx, order, "reconciliation failed: "+err.Error(), nil)
			return model.StageFailed
		}
	}

	// Best-effort annotation; failures are logged and never change the
	// order's outcome.
	for _, res := range results {
		if res.Err == nil {
			p.annotate(ctx, sess, order, res)
		}
	}

	// Outcome classification.
	var failed []string
	successes := 0
	for _, res := range results {
		if res.Err != nil {
			failed = append(failed, res.Src)
		} else {
			successes++
		}
	}
	if successes > 0 && len(failed) == 0 {
		p.record(ctx, order, model.StageImported, "", nil)
		return model.StageImported
	}

	desc := fmt.Sprintf("%d of %d files failed", len(failed), len(results))
	if successes == 0 && len(failed) == 0 {
		desc = "no files to import"
	}
	p.fail(ctx, order, desc, failed)
	return model.StageFailed
}

// acquire opens the privileged session and impersonates the order's user.
func (p *Pipeline) acquire(ctx context.Context, order *model.Order) (omero.Session, error) {
	root, err := p.gateway.Connect(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := root.Impersonate(ctx, order.Username, order.Group, p.opts.SessionTTL)
	if err != nil {
		root.Close()
		return nil, err
	}
	return sess, nil
}

// importFile imports one file. A connection failure mid-pipeline is
// indistinguishable from session expiry; the session is reacquired under
// the same retry budget and the import retried once.
func (p *Pipeline) importFile(ctx context.Context, sess *omero.Session, order *model.Order, path, name string, inPlace bool) ([]int64, error) {
	req := omero.ImportRequest{
		Path:          path,
		Name:          name,
		Destination:   order.Destination,
		DestinationID: order.DestinationID,
	}
	if inPlace {
		req.TransferMode = omero.TransferInPlace
	}

	ids, err := (*sess).Import(ctx, req)
	if err == nil || !omero.IsConnection(err) {
		return ids, err
	}

	p.logger.Warn("session lost during import, reacquiring",
		"uuid", order.UUID, "file", path, "err", err)
	reErr := p.opts.Retry.Do(ctx, func() error {
		s, err := p.acquire(ctx, order)
		if err == nil {
			(*sess).Close()
			*sess = s
		}
		return err
	})
	if reErr != nil {
		return nil, reErr
	}
	return (*sess).Import(ctx, req)
}

// record appends a lifecycle event for the order. Append failures are
// logged; the pipeline has nothing better to do with them.
func (p *Pipeline) record(ctx context.Context, order *model.Order, stage model.Stage, errMsg string, files []string) {
	if files == nil {
		files = order.Files
	}
	ev := &model.Event{
		Group:         order.Group,
		GroupID:       order.GroupID,
		Username:      order.Username,
		DestinationID: fmt.Sprintf("%s:%d", order.Destination, order.DestinationID),
		Stage:         stage,
		UUID:          order.UUID,
		Files:         files,
		FileNames:     order.FileNames,
		Preprocessing: order.Preprocessing,
		Error:         errMsg,
	}
	if err := p.log.Append(ctx, ev); err != nil {
		p.logger.Error("failed to append event",
			"uuid", order.UUID, "stage", stage, "err", err)
	}
}

// fail records the order's terminal failed event, listing the failed files
// when known.
func (p *Pipeline) fail(ctx context.Context, order *model.Order, desc string, failedFiles []string) {
	p.logger.Error("import failed",
		"uuid", order.UUID, "user", order.Username, "reason", desc,
		"failed_files", strings.Join(failedFiles, ","))
	p.record(ctx, order, model.StageFailed, desc, failedFiles)
}
