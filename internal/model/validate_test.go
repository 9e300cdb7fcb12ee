package model

import (
	"testing"
)

// validSubmitted returns a submitted event that passes all validation rules.
func validSubmitted() *Event {
	return &Event{
		Group:         "lab-a",
		GroupID:       7,
		Username:      "alice",
		DestinationID: "Dataset:5",
		Stage:         StageSubmitted,
		UUID:          "imp-abc123",
		Files:         []string{"/data/a.tiff", "/data/b.tiff"},
		FileNames:     []string{"a.tiff", "b.tiff"},
	}
}

// fieldErrors extracts a *ValidationError from err or fails the test.
func fieldErrors(t *testing.T, err error) []FieldError {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	return ve.Errors
}

// hasFieldError reports whether the error list contains an error for the given field.
func hasFieldError(errs []FieldError, field string) bool {
	for _, fe := range errs {
		if fe.Field == field {
			return true
		}
	}
	return false
}

func TestBuildOrder_Valid(t *testing.T) {
	order, err := BuildOrder(validSubmitted(), PathRewrite{})
	if err != nil {
		t.Fatalf("BuildOrder: %v", err)
	}
	if order.Destination != DestDataset || order.DestinationID != 5 {
		t.Errorf("destination = %s:%d, want Dataset:5", order.Destination, order.DestinationID)
	}
	if len(order.Files) != 2 {
		t.Errorf("files = %v", order.Files)
	}
}

func TestBuildOrder_GroupRequired(t *testing.T) {
	ev := validSubmitted()
	ev.Group = "  "
	errs := fieldErrors(t, mustFail(t, ev))
	if !hasFieldError(errs, "group") {
		t.Error("expected error on field 'group'")
	}
}

func TestBuildOrder_GroupIDRequired(t *testing.T) {
	ev := validSubmitted()
	ev.GroupID = 0
	errs := fieldErrors(t, mustFail(t, ev))
	if !hasFieldError(errs, "group_id") {
		t.Error("expected error on field 'group_id'")
	}
}

func TestBuildOrder_UsernameRequired(t *testing.T) {
	ev := validSubmitted()
	ev.Username = ""
	errs := fieldErrors(t, mustFail(t, ev))
	if !hasFieldError(errs, "username") {
		t.Error("expected error on field 'username'")
	}
}

func TestBuildOrder_UUIDRequired(t *testing.T) {
	ev := validSubmitted()
	ev.UUID = ""
	errs := fieldErrors(t, mustFail(t, ev))
	if !hasFieldError(errs, "uuid") {
		t.Error("expected error on field 'uuid'")
	}
}

func TestBuildOrder_DestinationRequired(t *testing.T) {
	ev := validSubmitted()
	ev.DestinationID = ""
	errs := fieldErrors(t, mustFail(t, ev))
	if !hasFieldError(errs, "destination_id") {
		t.Error("expected error on field 'destination_id'")
	}
}

func TestBuildOrder_DestinationMalformed(t *testing.T) {
	for _, dest := range []string{"Dataset", "Project:5", "Dataset:zero", "Dataset:-1", "Dataset:0"} {
		ev := validSubmitted()
		ev.DestinationID = dest
		errs := fieldErrors(t, mustFail(t, ev))
		if !hasFieldError(errs, "destination_id") {
			t.Errorf("destination %q: expected error on field 'destination_id'", dest)
		}
	}
}

func TestBuildOrder_CollectsAllErrors(t *testing.T) {
	ev := &Event{Stage: StageSubmitted}
	errs := fieldErrors(t, mustFail(t, ev))
	for _, field := range []string{"group", "group_id", "username", "uuid", "destination_id"} {
		if !hasFieldError(errs, field) {
			t.Errorf("expected error on field %q", field)
		}
	}
}

func TestBuildOrder_AppliesRewrite(t *testing.T) {
	ev := validSubmitted()
	ev.Files = []string{"/divg/lab/a.tiff", "/other/b.tiff"}
	order, err := BuildOrder(ev, PathRewrite{From: "/divg", To: "/data/divg"})
	if err != nil {
		t.Fatalf("BuildOrder: %v", err)
	}
	if order.Files[0] != "/data/divg/lab/a.tiff" {
		t.Errorf("rewritten = %q", order.Files[0])
	}
	if order.Files[1] != "/other/b.tiff" {
		t.Errorf("untouched = %q", order.Files[1])
	}
}

func mustFail(t *testing.T, ev *Event) error {
	t.Helper()
	order, err := BuildOrder(ev, PathRewrite{})
	if order != nil {
		t.Fatal("expected nil order on validation failure")
	}
	return err
}

func TestPathRewrite_ZeroValueIsNoop(t *testing.T) {
	if got := (PathRewrite{}).Apply("/data/a.tiff"); got != "/data/a.tiff" {
		t.Errorf("Apply = %q", got)
	}
}

func TestPathRewrite_OnlyPrefix(t *testing.T) {
	r := PathRewrite{From: "/divg", To: "/data/divg"}
	if got := r.Apply("/home/divg/a.tiff"); got != "/home/divg/a.tiff" {
		t.Errorf("mid-path match rewritten: %q", got)
	}
}
