package events

import "context"

// NoopPublisher discards every lifecycle event. The serve command falls
// back to it when ADI_NATS_URL is unset, so the mirrored log always has a
// bus to talk to.
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}
