// Package omero defines the asset-repository collaborator the import
// pipeline drives: privileged session acquisition, per-user impersonation,
// file import, annotation, and path lookup.
package omero

import (
	"context"
	"errors"
	"time"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
)

// TransferInPlace imports a file by symlinking it into the managed
// repository instead of copying it.
const TransferInPlace = "ln_s"

// ConnectionError marks an authentication or session failure, including
// session expiry mid-pipeline. Connection errors are the only retryable
// failures in the pipeline.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "omero: connection: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnection reports whether err is (or wraps) a ConnectionError.
func IsConnection(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// ImportRequest describes one file import into a destination container.
type ImportRequest struct {
	Path          string
	Name          string
	Destination   model.DestinationKind
	DestinationID int64
	TransferMode  string // empty = copy, TransferInPlace = symlink in place
	Options       map[string]string
}

// Gateway acquires privileged sessions against the OMERO server. A gateway
// and the sessions it produces are owned by a single worker; they are not
// safe to share across concurrent orders.
type Gateway interface {
	// Connect authenticates as the privileged identity.
	Connect(ctx context.Context) (Session, error)
}

// Session is an authenticated execution context.
type Session interface {
	// Impersonate scopes a privileged session to act as the target user
	// within the given group for a bounded lifetime.
	Impersonate(ctx context.Context, username, group string, ttl time.Duration) (Session, error)

	// Import imports one file and returns the ids of the created objects.
	// An empty id list with a nil error is a per-file failure, not an
	// exception; the order continues with its remaining files.
	Import(ctx context.Context, req ImportRequest) ([]int64, error)

	// Annotate attaches key/value metadata to an object and returns the
	// annotation id.
	Annotate(ctx context.Context, objectID int64, kv map[string]string) (int64, error)

	// FindByPath returns ids of objects in the destination whose source
	// path matches the filter.
	FindByPath(ctx context.Context, pathFilter string, destinationID int64) ([]int64, error)

	Close() error
}
