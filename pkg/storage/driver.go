// Package storage defines the persistence boundary for raw messages, the
// append-only Origin Log and the narrative/timeline projections built from it.
package storage

import (
	"context"
	"time"
)

// MessageStore persists the conversation as it arrived.
type MessageStore interface {
	// AppendMessage stores an immutable RawMessage.
	AppendMessage(ctx context.Context, msg *Message) error

	// ListMessages returns one page of a profile's history. Page 0 is the most
	// recent page; messages inside a page are ordered oldest first.
	ListMessages(ctx context.Context, profileID string, page, pageSize int) (*MessagePage, error)
}

// OriginLog is the append-only, idempotent event store.
type OriginLog interface {
	// CreateOrigin appends an origin event. When an event with the same
	// (source type, external id) already exists, the stored event is returned
	// with created=false and nothing is written.
	CreateOrigin(ctx context.Context, origin *OriginEvent) (stored *OriginEvent, created bool, err error)

	// GetOrigin retrieves an origin event by id.
	GetOrigin(ctx context.Context, id string) (*OriginEvent, error)

	// GetOriginByExternalID looks an origin event up by its idempotency key.
	GetOriginByExternalID(ctx context.Context, sourceType, externalID string) (*OriginEvent, error)

	// ListUnprocessed returns origin events whose projection has not yet
	// committed, oldest first.
	ListUnprocessed(ctx context.Context, limit int) ([]*OriginEvent, error)
}

// ProjectionStore holds the narrative and timeline records derived from
// origin events.
type ProjectionStore interface {
	// ReplaceProjections atomically deletes any projections previously built
	// for the origin, writes the given ones and marks the origin processed.
	ReplaceProjections(ctx context.Context, originID string, projection *Projection, processedAt time.Time) error

	// GetProjection returns the stored projection of an origin event.
	GetProjection(ctx context.Context, originID string) (*Projection, error)

	// ListTimeline returns a profile's timeline entries, newest first.
	ListTimeline(ctx context.Context, profileID string, limit, offset int) ([]*TimelineEntry, error)
}

// Driver is implemented by every storage backend.
type Driver interface {
	MessageStore
	OriginLog
	ProjectionStore

	// Close closes the store and releases any resources.
	Close() error
}

// Now returns the canonical timestamp used for stored rows. Microsecond
// precision matches what PostgreSQL keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
