package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/nestlog/pkg/event"
	"github.com/papercomputeco/nestlog/pkg/eventstream"
	"github.com/papercomputeco/nestlog/pkg/projector"
	"github.com/papercomputeco/nestlog/pkg/storage"
)

// origin describes the Origin Log row to append for a capture.
type origin struct {
	profileID     string
	sourceType    string
	externalID    *string
	attachmentIDs []string
	notes         string

	// fallbackTime is the event time of captures without candidates.
	fallbackTime time.Time
}

// Intake appends an already interpreted message to the Origin Log and
// projects it. Unlike the message pipeline it trusts nothing: every
// candidate must name a known category and carry a summary and timestamp.
func (s *Service) Intake(ctx context.Context, req IntakeRequest) (*IntakeResponse, error) {
	candidates, err := validateIntake(&req)
	if err != nil {
		return nil, err
	}

	capture := event.Capture{
		OriginalText: req.OriginalText,
		ReplyText:    req.ReplyText,
		Candidates:   candidates,
	}
	_, resp, err := s.record(ctx, origin{
		profileID:     req.ProfileID,
		sourceType:    req.SourceType,
		externalID:    req.ExternalID,
		attachmentIDs: req.AttachmentIDs,
		fallbackTime:  s.clock(),
	}, capture)
	return resp, err
}

// record is the durability boundary: once CreateOrigin returns the message
// is captured, and projection failures only leave the origin for the sweep.
// When the external id was already recorded, the stored row is returned
// with Created unset; a row owned by another profile is a conflict.
func (s *Service) record(ctx context.Context, o origin, capture event.Capture) (*storage.OriginEvent, *IntakeResponse, error) {
	raw, err := capture.Marshal()
	if err != nil {
		return nil, nil, err
	}

	stored, created, err := s.store.CreateOrigin(ctx, &storage.OriginEvent{
		ID:            uuid.NewString(),
		ProfileID:     o.profileID,
		SourceType:    o.sourceType,
		ExternalID:    o.externalID,
		EventTime:     eventTime(capture.Candidates, o.fallbackTime),
		RawPayload:    raw,
		AttachmentIDs: o.attachmentIDs,
		Notes:         o.notes,
		CreatedAt:     storage.Now(),
	})
	if err != nil {
		return nil, nil, storage.Persistence("create origin event", err)
	}
	if !created && stored.ProfileID != o.profileID {
		s.logger.Warn("external id recorded for another profile",
			"profile_id", o.profileID,
			"source_type", o.sourceType,
			"origin_event_id", stored.ID,
		)
		return nil, nil, fmt.Errorf("%w (source %s)", ErrExternalIDConflict, o.sourceType)
	}
	s.metrics.OriginCreated(created)
	s.publishOrigin(ctx, stored, created, len(capture.Candidates))

	resp := &IntakeResponse{
		Success:       true,
		OriginEventID: stored.ID,
		Created:       created,
	}

	res, err := s.projector.Project(ctx, stored.ID, projector.Options{})
	if err != nil {
		s.logger.Warn("projection deferred to sweep", "origin_event_id", stored.ID, "error", err)
		return stored, resp, nil
	}
	resp.TimelineEntriesCreated = len(res.Entries)
	return stored, resp, nil
}

func (s *Service) publishOrigin(ctx context.Context, o *storage.OriginEvent, created bool, candidates int) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishOriginRecorded(ctx, &eventstream.OriginRecordedEvent{
		Envelope: eventstream.Envelope{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeOriginRecorded,
			EventID:       uuid.NewString(),
			EmittedAt:     time.Now().UTC(),
			ProfileID:     o.ProfileID,
		},
		OriginEventID:  o.ID,
		SourceType:     o.SourceType,
		ExternalID:     o.ExternalID,
		EventTime:      o.EventTime,
		Created:        created,
		CandidateCount: candidates,
		AttachmentIDs:  o.AttachmentIDs,
	})
	if err != nil {
		s.logger.Warn("failed to publish origin event", "origin_event_id", o.ID, "error", err)
	}
}

func validateIntake(req *IntakeRequest) ([]event.Candidate, error) {
	req.ProfileID = strings.TrimSpace(req.ProfileID)
	if req.ProfileID == "" {
		return nil, invalid("profileId", "is required")
	}
	if strings.TrimSpace(req.OriginalText) == "" && len(req.CandidateEvents) == 0 {
		return nil, invalid("originalText", "must not be empty without candidate events")
	}

	req.SourceType = strings.TrimSpace(req.SourceType)
	if req.SourceType == "" {
		req.SourceType = storage.SourceChat
	}
	if req.ExternalID != nil {
		if id := strings.TrimSpace(*req.ExternalID); id == "" {
			req.ExternalID = nil
		} else {
			req.ExternalID = &id
		}
	}

	candidates := make([]event.Candidate, 0, len(req.CandidateEvents))
	for i, c := range req.CandidateEvents {
		field := fmt.Sprintf("candidateEvents[%d]", i)

		category, ok := event.ParseCategory(string(c.Category))
		if !ok {
			return nil, invalid(field+".category", "unknown category %q", c.Category)
		}
		c.Category = category
		c.Type = event.NormalizeType(category, c.Type)

		err := c.Validate()
		switch {
		case errors.Is(err, event.ErrMissingSummary):
			return nil, invalid(field+".summary", "is required")
		case errors.Is(err, event.ErrMissingTimestamp):
			return nil, invalid(field+".timestamp", "is required")
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			return nil, invalid(field+".confidence", "must be between 0 and 1")
		}
		if _, err := c.Payload(); err != nil {
			return nil, invalid(field+".details", "%v", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// eventTime is the earliest candidate timestamp, or fallback when there is
// none.
func eventTime(candidates []event.Candidate, fallback time.Time) time.Time {
	var earliest time.Time
	for _, c := range candidates {
		if c.Timestamp.IsZero() {
			continue
		}
		if earliest.IsZero() || c.Timestamp.Before(earliest) {
			earliest = c.Timestamp
		}
	}
	if earliest.IsZero() {
		earliest = fallback
	}
	if earliest.IsZero() {
		earliest = time.Now()
	}
	return earliest.UTC().Truncate(time.Microsecond)
}
