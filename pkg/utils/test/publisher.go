package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/nestlog/pkg/eventstream"
)

// RecordingPublisher is an eventstream.Publisher that keeps every event.
type RecordingPublisher struct {
	mu          sync.Mutex
	origins     []*eventstream.OriginRecordedEvent
	projections []*eventstream.ProjectionCompletedEvent

	// Err, when set, is returned from every publish call.
	Err error
}

// NewRecordingPublisher creates an empty RecordingPublisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) PublishOriginRecorded(_ context.Context, e *eventstream.OriginRecordedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.origins = append(p.origins, e)
	return p.Err
}

func (p *RecordingPublisher) PublishProjectionCompleted(_ context.Context, e *eventstream.ProjectionCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.projections = append(p.projections, e)
	return p.Err
}

func (p *RecordingPublisher) Close() error { return nil }

// OriginsRecorded returns the origin events published so far.
func (p *RecordingPublisher) OriginsRecorded() []*eventstream.OriginRecordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.OriginRecordedEvent(nil), p.origins...)
}

// ProjectionsCompleted returns the projection events published so far.
func (p *RecordingPublisher) ProjectionsCompleted() []*eventstream.ProjectionCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.ProjectionCompletedEvent(nil), p.projections...)
}
