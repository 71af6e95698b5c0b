package nop

import (
	"context"

	"github.com/papercomputeco/nestlog/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishOriginRecorded validates input and otherwise does nothing.
func (p *Publisher) PublishOriginRecorded(_ context.Context, event *eventstream.OriginRecordedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	return nil
}

// PublishProjectionCompleted validates input and otherwise does nothing.
func (p *Publisher) PublishProjectionCompleted(_ context.Context, event *eventstream.ProjectionCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
