package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
)

type fakeLog struct {
	events []*model.Event
	err    error
}

func (l *fakeLog) History(_ context.Context, uuid string) ([]*model.Event, error) {
	if l.err != nil {
		return nil, l.err
	}
	var out []*model.Event
	for _, ev := range l.events {
		if ev.UUID == uuid {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (l *fakeLog) ListByUser(_ context.Context, username string) ([]*model.Event, error) {
	if l.err != nil {
		return nil, l.err
	}
	var out []*model.Event
	for _, ev := range l.events {
		if ev.Username == username {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (l *fakeLog) Append(context.Context, *model.Event) error { return nil }
func (l *fakeLog) ListByStage(context.Context, model.Stage, int64) ([]*model.Event, error) {
	return nil, nil
}
func (l *fakeLog) Unresolved(context.Context, model.Stage, time.Duration) ([]*model.Event, error) {
	return nil, nil
}
func (l *fakeLog) MaxID(context.Context) (int64, error)                   { return 0, nil }
func (l *fakeLog) ListAll(context.Context, int64) ([]*model.Event, error) { return nil, nil }
func (l *fakeLog) Close() error                                           { return nil }

func newTestServer(log *fakeLog) *httptest.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httptest.NewServer(New(log, logger).Handler())
}

func TestHealth(t *testing.T) {
	ts := newTestServer(&fakeLog{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestOrderHistory(t *testing.T) {
	log := &fakeLog{events: []*model.Event{
		{ID: 1, UUID: "imp-a", Stage: model.StageSubmitted, Username: "alice"},
		{ID: 2, UUID: "imp-a", Stage: model.StageImported, Username: "alice"},
		{ID: 3, UUID: "imp-b", Stage: model.StageSubmitted, Username: "bob"},
	}}
	ts := newTestServer(log)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/orders/imp-a/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}

	var events []*model.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Stage != model.StageImported {
		t.Errorf("last stage = %s", events[1].Stage)
	}
}

func TestOrderHistory_UnknownOrder(t *testing.T) {
	ts := newTestServer(&fakeLog{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/orders/imp-missing/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestOrderHistory_StoreFailure(t *testing.T) {
	ts := newTestServer(&fakeLog{err: fmt.Errorf("connection refused")})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/orders/imp-a/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestUserEvents(t *testing.T) {
	log := &fakeLog{events: []*model.Event{
		{ID: 1, UUID: "imp-a", Stage: model.StageSubmitted, Username: "alice"},
		{ID: 3, UUID: "imp-b", Stage: model.StageSubmitted, Username: "bob"},
	}}
	ts := newTestServer(log)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/users/alice/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var events []*model.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 || events[0].Username != "alice" {
		t.Errorf("events = %+v", events)
	}
}

func TestUserEvents_EmptyIsOK(t *testing.T) {
	ts := newTestServer(&fakeLog{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/users/nobody/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	// An unknown user is an empty list, not a 404; user existence is not
	// this service's concern.
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
