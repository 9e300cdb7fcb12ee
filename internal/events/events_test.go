package events

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
)

type fakeLog struct {
	appended  []*model.Event
	appendErr error
}

func (l *fakeLog) Append(_ context.Context, ev *model.Event) error {
	if l.appendErr != nil {
		return l.appendErr
	}
	l.appended = append(l.appended, ev)
	return nil
}

func (l *fakeLog) ListByStage(context.Context, model.Stage, int64) ([]*model.Event, error) {
	return nil, nil
}
func (l *fakeLog) Unresolved(context.Context, model.Stage, time.Duration) ([]*model.Event, error) {
	return nil, nil
}
func (l *fakeLog) MaxID(context.Context) (int64, error) { return 0, nil }
func (l *fakeLog) History(context.Context, string) ([]*model.Event, error) {
	return nil, nil
}
func (l *fakeLog) ListByUser(context.Context, string) ([]*model.Event, error) {
	return nil, nil
}
func (l *fakeLog) ListAll(context.Context, int64) ([]*model.Event, error) { return nil, nil }
func (l *fakeLog) Close() error                                           { return nil }

type publishCall struct {
	topic string
	event any
}

type fakePublisher struct {
	published []publishCall
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, event any) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, publishCall{topic: topic, event: event})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTopicFor(t *testing.T) {
	for stage, want := range map[model.Stage]string{
		model.StageSubmitted:     TopicOrderSubmitted,
		model.StageStarted:       TopicOrderStarted,
		model.StagePreprocessing: TopicOrderPreprocessing,
		model.StageImported:      TopicOrderImported,
		model.StageFailed:        TopicOrderFailed,
	} {
		if got := TopicFor(stage); got != want {
			t.Errorf("TopicFor(%s) = %q, want %q", stage, got, want)
		}
	}
}

func TestMirroredLog_PublishesAfterAppend(t *testing.T) {
	log := &fakeLog{}
	pub := &fakePublisher{}
	m := NewMirroredLog(log, pub, testLogger())

	ev := &model.Event{UUID: "imp-a", Stage: model.StageImported}
	if err := m.Append(context.Background(), ev); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if len(log.appended) != 1 {
		t.Fatalf("appended = %d", len(log.appended))
	}
	if len(pub.published) != 1 {
		t.Fatalf("published = %d", len(pub.published))
	}
	if pub.published[0].topic != TopicOrderImported {
		t.Errorf("topic = %q", pub.published[0].topic)
	}
	oe, ok := pub.published[0].event.(OrderEvent)
	if !ok || oe.Event.UUID != "imp-a" {
		t.Errorf("payload = %+v", pub.published[0].event)
	}
}

func TestMirroredLog_AppendFailureSkipsPublish(t *testing.T) {
	log := &fakeLog{appendErr: fmt.Errorf("constraint violated")}
	pub := &fakePublisher{}
	m := NewMirroredLog(log, pub, testLogger())

	if err := m.Append(context.Background(), &model.Event{UUID: "imp-a"}); err == nil {
		t.Fatal("expected append error")
	}
	if len(pub.published) != 0 {
		t.Error("nothing may be published when the append fails")
	}
}

func TestMirroredLog_PublishFailureDoesNotFailAppend(t *testing.T) {
	log := &fakeLog{}
	pub := &fakePublisher{err: fmt.Errorf("bus down")}
	m := NewMirroredLog(log, pub, testLogger())

	if err := m.Append(context.Background(), &model.Event{UUID: "imp-a"}); err != nil {
		t.Fatalf("Append must succeed despite a publish failure, got: %v", err)
	}
	if len(log.appended) != 1 {
		t.Errorf("appended = %d", len(log.appended))
	}
}
