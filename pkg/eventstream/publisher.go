// Package eventstream notifies downstream consumers about Origin Log appends
// and completed projections.
package eventstream

import "context"

// Publisher publishes pipeline events to an event stream backend.
type Publisher interface {
	PublishOriginRecorded(ctx context.Context, event *OriginRecordedEvent) error
	PublishProjectionCompleted(ctx context.Context, event *ProjectionCompletedEvent) error
	Close() error
}
