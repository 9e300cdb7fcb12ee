package pipeline

import (
	"context"
	"time"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/omero"
)

// Retry retries a call on connection errors with a fixed delay, up to a
// fixed attempt cap. Any other error aborts immediately without retry.
type Retry struct {
	Attempts int
	Delay    time.Duration
}

// Do runs fn until it succeeds, fails with a non-connection error, or the
// attempt cap is reached. The last error is returned.
func (r Retry) Do(ctx context.Context, fn func() error) error {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.Delay):
			}
		}
		err = fn()
		if err == nil || !omero.IsConnection(err) {
			return err
		}
	}
	return err
}
