// Package inmemory provides a map-backed storage driver for tests and
// ephemeral servers.
package inmemory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/papercomputeco/nestlog/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu guards every map below; projections replace under the write lock so
	// readers never observe a half-swapped origin.
	mu sync.RWMutex

	messages map[string][]*storage.Message

	// origins is keyed by origin id; external indexes "source\x00external"
	// onto an origin id to provide the Origin Log uniqueness.
	origins  map[string]*storage.OriginEvent
	external map[string]string

	narratives map[string]*storage.NarrativeEvent
	entries    map[string][]*storage.TimelineEntry
}

var _ storage.Driver = (*Driver)(nil)

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		messages:   make(map[string][]*storage.Message),
		origins:    make(map[string]*storage.OriginEvent),
		external:   make(map[string]string),
		narratives: make(map[string]*storage.NarrativeEvent),
		entries:    make(map[string][]*storage.TimelineEntry),
	}
}

// AppendMessage stores an immutable RawMessage.
func (d *Driver) AppendMessage(_ context.Context, msg *storage.Message) error {
	if msg == nil {
		return errors.New("cannot store nil message")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	stored := *msg
	d.messages[msg.ProfileID] = append(d.messages[msg.ProfileID], &stored)
	return nil
}

// ListMessages returns one page of history, newest page first, oldest first
// within the page.
func (d *Driver) ListMessages(_ context.Context, profileID string, page, pageSize int) (*storage.MessagePage, error) {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	d.mu.RLock()
	all := make([]*storage.Message, len(d.messages[profileID]))
	copy(all, d.messages[profileID])
	d.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	total := len(all)
	end := total - page*pageSize
	start := end - pageSize
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = 0
	}

	messages := make([]*storage.Message, 0, end-start)
	for _, m := range all[start:end] {
		c := *m
		messages = append(messages, &c)
	}

	return &storage.MessagePage{
		Messages: messages,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		HasMore:  start > 0,
	}, nil
}

// CreateOrigin appends an origin event, idempotent on (source type, external id).
func (d *Driver) CreateOrigin(_ context.Context, origin *storage.OriginEvent) (*storage.OriginEvent, bool, error) {
	if origin == nil {
		return nil, false, errors.New("cannot store nil origin event")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if origin.ExternalID != nil {
		key := origin.SourceType + "\x00" + *origin.ExternalID
		if id, ok := d.external[key]; ok {
			return copyOrigin(d.origins[id]), false, nil
		}
		d.external[key] = origin.ID
	}

	stored := copyOrigin(origin)
	if len(stored.RawPayload) == 0 {
		stored.RawPayload = []byte("{}")
	}
	stored.Processed = false
	stored.ProcessedAt = nil
	d.origins[origin.ID] = stored
	return copyOrigin(stored), true, nil
}

// GetOrigin retrieves an origin event by id.
func (d *Driver) GetOrigin(_ context.Context, id string) (*storage.OriginEvent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	origin, ok := d.origins[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "origin event", ID: id}
	}
	return copyOrigin(origin), nil
}

// GetOriginByExternalID looks an origin event up by (source type, external id).
func (d *Driver) GetOriginByExternalID(_ context.Context, sourceType, externalID string) (*storage.OriginEvent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.external[sourceType+"\x00"+externalID]
	if !ok {
		return nil, storage.NotFoundError{Kind: "origin event", ID: sourceType + ":" + externalID}
	}
	return copyOrigin(d.origins[id]), nil
}

// ListUnprocessed returns unprocessed origin events, oldest first.
func (d *Driver) ListUnprocessed(_ context.Context, limit int) ([]*storage.OriginEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	result := []*storage.OriginEvent{}
	for _, origin := range d.origins {
		if !origin.Processed {
			result = append(result, copyOrigin(origin))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ReplaceProjections swaps the projections of one origin and marks it processed.
func (d *Driver) ReplaceProjections(_ context.Context, originID string, projection *storage.Projection, processedAt time.Time) error {
	if projection == nil || projection.Narrative == nil {
		return errors.New("projection requires a narrative event")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	origin, ok := d.origins[originID]
	if !ok {
		return storage.NotFoundError{Kind: "origin event", ID: originID}
	}

	narrative := *projection.Narrative
	d.narratives[originID] = &narrative

	entries := make([]*storage.TimelineEntry, 0, len(projection.Entries))
	for _, e := range projection.Entries {
		c := *e
		entries = append(entries, &c)
	}
	d.entries[originID] = entries

	at := processedAt
	origin.Processed = true
	origin.ProcessedAt = &at
	return nil
}

// GetProjection returns the stored projection of an origin event.
func (d *Driver) GetProjection(_ context.Context, originID string) (*storage.Projection, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	narrative, ok := d.narratives[originID]
	if !ok {
		return nil, storage.NotFoundError{Kind: "projection", ID: originID}
	}

	n := *narrative
	entries := make([]*storage.TimelineEntry, 0, len(d.entries[originID]))
	for _, e := range d.entries[originID] {
		c := *e
		entries = append(entries, &c)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].RecordTime.Equal(entries[j].RecordTime) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].RecordTime.Before(entries[j].RecordTime)
	})
	return &storage.Projection{Narrative: &n, Entries: entries}, nil
}

// ListTimeline returns a profile's timeline entries, newest first.
func (d *Driver) ListTimeline(_ context.Context, profileID string, limit, offset int) ([]*storage.TimelineEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	d.mu.RLock()
	all := []*storage.TimelineEntry{}
	for _, entries := range d.entries {
		for _, e := range entries {
			if e.ProfileID == profileID {
				c := *e
				all = append(all, &c)
			}
		}
	}
	d.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].RecordTime.Equal(all[j].RecordTime) {
			return all[i].ID > all[j].ID
		}
		return all[i].RecordTime.After(all[j].RecordTime)
	})

	if offset >= len(all) {
		return []*storage.TimelineEntry{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

func copyOrigin(o *storage.OriginEvent) *storage.OriginEvent {
	c := *o
	if o.ExternalID != nil {
		id := *o.ExternalID
		c.ExternalID = &id
	}
	if o.ProcessedAt != nil {
		t := *o.ProcessedAt
		c.ProcessedAt = &t
	}
	c.AttachmentIDs = append([]string(nil), o.AttachmentIDs...)
	c.RawPayload = append([]byte(nil), o.RawPayload...)
	return &c
}
