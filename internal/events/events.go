package events

import (
	"context"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
)

// Event topic constants. One topic per lifecycle stage.
const (
	TopicOrderSubmitted     = "adi.order.submitted"
	TopicOrderStarted       = "adi.order.started"
	TopicOrderPreprocessing = "adi.order.preprocessing"
	TopicOrderImported      = "adi.order.imported"
	TopicOrderFailed        = "adi.order.failed"
)

// TopicFor maps a lifecycle stage to its bus topic.
func TopicFor(stage model.Stage) string {
	switch stage {
	case model.StageSubmitted:
		return TopicOrderSubmitted
	case model.StageStarted:
		return TopicOrderStarted
	case model.StagePreprocessing:
		return TopicOrderPreprocessing
	case model.StageImported:
		return TopicOrderImported
	case model.StageFailed:
		return TopicOrderFailed
	}
	return "adi.order.unknown"
}

// OrderEvent is the payload published for every appended log row.
type OrderEvent struct {
	Event *model.Event `json:"event"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
