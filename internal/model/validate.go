package model

import (
	"strings"
)

// ValidationError holds a list of field-level validation errors raised while
// materializing an order from a submitted event.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// PathRewrite replaces one legacy mount-point prefix with its current
// equivalent. The zero value is a no-op.
type PathRewrite struct {
	From string
	To   string
}

// Apply rewrites the path if it starts with the legacy prefix.
func (r PathRewrite) Apply(path string) string {
	if r.From == "" || !strings.HasPrefix(path, r.From) {
		return path
	}
	return r.To + strings.TrimPrefix(path, r.From)
}

// BuildOrder validates a submitted event and materializes the typed order
// that one import attempt will own. Missing required fields produce a
// *ValidationError; the caller records a failed event and never runs the
// pipeline for such orders. File paths are rewritten deterministically
// before the order is returned.
func BuildOrder(e *Event, rewrite PathRewrite) (*Order, error) {
	var ve ValidationError

	if strings.TrimSpace(e.Group) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "group", Message: "is required"})
	}
	if e.GroupID <= 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "group_id", Message: "is required"})
	}
	if strings.TrimSpace(e.Username) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "username", Message: "is required"})
	}
	if strings.TrimSpace(e.UUID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "uuid", Message: "is required"})
	}

	var (
		kind   DestinationKind
		destID int64
	)
	if strings.TrimSpace(e.DestinationID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "destination_id", Message: "is required"})
	} else {
		var err error
		kind, destID, err = ParseDestination(e.DestinationID)
		if err != nil {
			ve.Errors = append(ve.Errors, FieldError{Field: "destination_id", Message: err.Error()})
		}
	}

	if ve.HasErrors() {
		return nil, &ve
	}

	files := make([]string, len(e.Files))
	for i, f := range e.Files {
		files[i] = rewrite.Apply(f)
	}

	return &Order{
		UUID:          e.UUID,
		Username:      e.Username,
		Group:         e.Group,
		GroupID:       e.GroupID,
		Destination:   kind,
		DestinationID: destID,
		Files:         files,
		FileNames:     append([]string(nil), e.FileNames...),
		Preprocessing: e.Preprocessing,
	}, nil
}
