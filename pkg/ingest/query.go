package ingest

import (
	"context"
	"errors"
	"strings"

	"github.com/papercomputeco/nestlog/pkg/attachments"
	"github.com/papercomputeco/nestlog/pkg/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	defaultTimelineLimit = 50
	maxTimelineLimit     = 200
)

// History returns one page of a profile's conversation. Page 0 is the most
// recent.
func (s *Service) History(ctx context.Context, profileID string, page, pageSize int) (*storage.MessagePage, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, invalid("profileId", "is required")
	}
	if page < 0 {
		return nil, invalid("page", "must not be negative")
	}
	pageSize = clampLimit(pageSize, defaultPageSize, maxPageSize)

	p, err := s.store.ListMessages(ctx, profileID, page, pageSize)
	if err != nil {
		return nil, storage.Persistence("list messages", err)
	}
	return p, nil
}

// Timeline returns a profile's timeline entries, newest first, along with
// the attachments of the origin events they came from.
func (s *Service) Timeline(ctx context.Context, profileID string, limit, offset int) ([]TimelineItem, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, invalid("profileId", "is required")
	}
	if offset < 0 {
		return nil, invalid("offset", "must not be negative")
	}
	limit = clampLimit(limit, defaultTimelineLimit, maxTimelineLimit)

	entries, err := s.store.ListTimeline(ctx, profileID, limit, offset)
	if err != nil {
		return nil, storage.Persistence("list timeline", err)
	}

	originAttachments := map[string][]string{}
	var ids []string
	for _, e := range entries {
		if _, seen := originAttachments[e.OriginEventID]; seen {
			continue
		}
		o, err := s.store.GetOrigin(ctx, e.OriginEventID)
		if err != nil {
			s.logger.Warn("timeline origin lookup failed", "origin_event_id", e.OriginEventID, "error", err)
			originAttachments[e.OriginEventID] = nil
			continue
		}
		originAttachments[e.OriginEventID] = o.AttachmentIDs
		ids = append(ids, o.AttachmentIDs...)
	}

	refs := s.resolveByID(ctx, ids)

	items := make([]TimelineItem, 0, len(entries))
	for _, e := range entries {
		item := TimelineItem{TimelineEntry: e}
		for _, id := range originAttachments[e.OriginEventID] {
			if ref, ok := refs[id]; ok {
				item.Attachments = append(item.Attachments, ref)
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// OriginDetail returns an origin event with its projection and attachments.
// An origin that has not been projected yet comes back without narrative.
func (s *Service) OriginDetail(ctx context.Context, originID string) (*OriginDetail, error) {
	originID = strings.TrimSpace(originID)
	if originID == "" {
		return nil, invalid("id", "is required")
	}

	o, err := s.store.GetOrigin(ctx, originID)
	if err != nil {
		return nil, storage.Persistence("get origin event", err)
	}

	detail := &OriginDetail{Origin: o, Entries: []*storage.TimelineEntry{}}

	p, err := s.store.GetProjection(ctx, originID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, storage.Persistence("get projection", err)
	default:
		detail.Narrative = p.Narrative
		if p.Entries != nil {
			detail.Entries = p.Entries
		}
	}

	refs := s.resolveByID(ctx, o.AttachmentIDs)
	for _, id := range o.AttachmentIDs {
		if ref, ok := refs[id]; ok {
			detail.Attachments = append(detail.Attachments, ref)
		}
	}
	return detail, nil
}

func (s *Service) resolveByID(ctx context.Context, ids []string) map[string]attachments.Ref {
	if s.resolver == nil || len(ids) == 0 {
		return nil
	}

	seen := map[string]bool{}
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	out := map[string]attachments.Ref{}
	for _, ref := range s.resolver.Resolve(ctx, unique) {
		out[ref.ID] = ref
	}
	return out
}

func clampLimit(v, def, upper int) int {
	switch {
	case v <= 0:
		return def
	case v > upper:
		return upper
	}
	return v
}
