// Package projector derives the narrative and timeline records of an origin
// event. Projections are rebuilt from the Origin Log alone: a run deletes
// whatever an earlier run wrote for the same origin and recreates it in one
// transaction, so retries and sweeps converge on the same state.
package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/nestlog/pkg/event"
	"github.com/papercomputeco/nestlog/pkg/eventstream"
	"github.com/papercomputeco/nestlog/pkg/logger"
	"github.com/papercomputeco/nestlog/pkg/metrics"
	"github.com/papercomputeco/nestlog/pkg/storage"
)

// ErrUnreadablePayload is returned for an origin whose stored capture cannot
// be decoded. Such an origin is never marked processed.
var ErrUnreadablePayload = errors.New("origin payload is unreadable")

// Store is the slice of storage.Driver the projector needs.
type Store interface {
	storage.OriginLog
	storage.ProjectionStore
}

// Config configures a Projector.
type Config struct {
	Store Store

	// Publisher is optional; completed projections are announced on it.
	Publisher eventstream.Publisher

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Options tunes a single run.
type Options struct {
	// Force rebuilds the projection of an already processed origin.
	Force bool
}

// Result is the outcome of a run.
type Result struct {
	Narrative *storage.NarrativeEvent
	Entries   []*storage.TimelineEntry

	// Skipped counts candidates that could not be projected.
	Skipped int

	// AlreadyProcessed is set when the run was a no-op and the stored
	// projection was returned instead.
	AlreadyProcessed bool
}

// Projector builds projections from origin events.
type Projector struct {
	store     Store
	publisher eventstream.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New creates a Projector.
func New(c Config) (*Projector, error) {
	if c.Store == nil {
		return nil, errors.New("projector requires a store")
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	return &Projector{
		store:     c.Store,
		publisher: c.Publisher,
		logger:    c.Logger,
		metrics:   c.Metrics,
	}, nil
}

// Project builds and commits the projection of one origin event.
func (p *Projector) Project(ctx context.Context, originID string, opts Options) (*Result, error) {
	origin, err := p.store.GetOrigin(ctx, originID)
	if err != nil {
		p.metrics.Projection(metrics.OutcomeError)
		return nil, fmt.Errorf("loading origin event: %w", err)
	}

	if origin.Processed && !opts.Force {
		stored, err := p.store.GetProjection(ctx, originID)
		if err != nil {
			p.metrics.Projection(metrics.OutcomeError)
			return nil, fmt.Errorf("loading projection: %w", err)
		}
		p.metrics.Projection(metrics.OutcomeSkipped)
		return &Result{Narrative: stored.Narrative, Entries: stored.Entries, AlreadyProcessed: true}, nil
	}

	capture, err := event.DecodeCapture(origin.RawPayload)
	if err != nil {
		// The origin stays unprocessed; every sweep reports it again.
		p.metrics.Projection(metrics.OutcomeError)
		p.logger.Error("unreadable origin payload", "origin_event_id", originID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnreadablePayload, err)
	}

	res := p.build(origin, capture)
	projection := &storage.Projection{Narrative: res.Narrative, Entries: res.Entries}

	if err := p.store.ReplaceProjections(ctx, originID, projection, storage.Now()); err != nil {
		p.metrics.Projection(metrics.OutcomeError)
		return nil, fmt.Errorf("committing projection: %w", err)
	}

	outcome := metrics.OutcomeOK
	if res.Skipped > 0 {
		outcome = metrics.OutcomeDegraded
	}
	p.metrics.Projection(outcome)

	p.logger.Info("projection committed",
		"origin_event_id", originID,
		"narrative_event_id", res.Narrative.ID,
		"entries", len(res.Entries),
		"skipped", res.Skipped,
		"forced", opts.Force,
	)

	p.publish(ctx, origin, res, opts.Force)
	return res, nil
}

// build turns a capture into records. Candidates that cannot be projected
// are skipped; the rest still commit.
func (p *Projector) build(origin *storage.OriginEvent, capture event.Capture) *Result {
	now := storage.Now()
	narrativeID := recordID("narrative", origin.ID, 0)

	res := &Result{}
	var kinds []event.Kind

	for i, c := range capture.Candidates {
		if reason, err := unusable(c); err != nil {
			p.logger.Warn("skipping candidate",
				"origin_event_id", origin.ID,
				"index", i,
				"reason", reason,
				"error", err,
			)
			p.metrics.CandidateSkipped(reason)
			res.Skipped++
			continue
		}

		payload, err := c.Payload()
		if err != nil {
			p.logger.Warn("skipping candidate with invalid payload",
				"origin_event_id", origin.ID,
				"index", i,
				"error", err,
			)
			p.metrics.CandidateSkipped("payload")
			res.Skipped++
			continue
		}

		kind := KindFor(c, p.logger)
		kinds = append(kinds, kind)

		detail := payload.Map()
		detail["subtype"] = c.Type

		res.Entries = append(res.Entries, &storage.TimelineEntry{
			ID:               recordID("entry", origin.ID, i),
			ProfileID:        origin.ProfileID,
			OriginEventID:    origin.ID,
			NarrativeEventID: narrativeID,
			Type:             string(kind),
			Category:         string(c.Category),
			RecordTime:       c.Timestamp.UTC().Truncate(time.Microsecond),
			Title:            entryTitle(c),
			Summary:          strings.TrimSpace(c.Summary),
			Tags:             c.Tags,
			Location:         c.Location,
			Detail:           detail,
			Confidence:       c.Confidence,
			CreatedAt:        now,
		})
	}

	res.Narrative = &storage.NarrativeEvent{
		ID:            narrativeID,
		ProfileID:     origin.ProfileID,
		OriginEventID: origin.ID,
		Type:          string(narrativeKind(kinds)),
		EventTime:     narrativeTime(origin, res.Entries),
		Title:         narrativeTitle(res.Entries),
		Description:   narrativeDescription(capture, res.Entries),
		Detail:        narrativeDetail(capture, res),
		CreatedAt:     now,
	}
	return res
}

func (p *Projector) publish(ctx context.Context, origin *storage.OriginEvent, res *Result, forced bool) {
	if p.publisher == nil {
		return
	}
	err := p.publisher.PublishProjectionCompleted(ctx, &eventstream.ProjectionCompletedEvent{
		Envelope: eventstream.Envelope{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeProjectionCompleted,
			EventID:       uuid.NewString(),
			EmittedAt:     time.Now().UTC(),
			ProfileID:     origin.ProfileID,
		},
		OriginEventID:    origin.ID,
		NarrativeEventID: res.Narrative.ID,
		NarrativeType:    res.Narrative.Type,
		EntryCount:       len(res.Entries),
		SkippedCount:     res.Skipped,
		Forced:           forced,
	})
	if err != nil {
		p.logger.Warn("failed to publish projection event", "origin_event_id", origin.ID, "error", err)
	}
}

// unusable reports why a candidate cannot become a timeline entry.
func unusable(c event.Candidate) (string, error) {
	err := c.Validate()
	switch {
	case errors.Is(err, event.ErrMissingTimestamp):
		return "timestamp", err
	case err != nil:
		return "summary", err
	}
	return "", nil
}

// recordID derives stable ids from the origin so a forced rebuild writes
// the same rows again.
func recordID(kind, originID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "nestlog/%s/%s/%d", kind, originID, index)).String()
}

func narrativeKind(kinds []event.Kind) event.Kind {
	if len(kinds) == 0 {
		return event.KindGenericNote
	}
	for _, k := range kinds[1:] {
		if k != kinds[0] {
			return event.KindGenericNote
		}
	}
	return kinds[0]
}

func narrativeTime(origin *storage.OriginEvent, entries []*storage.TimelineEntry) time.Time {
	if len(entries) == 0 {
		return origin.EventTime
	}
	earliest := entries[0].RecordTime
	for _, e := range entries[1:] {
		if e.RecordTime.Before(earliest) {
			earliest = e.RecordTime
		}
	}
	return earliest
}

func narrativeTitle(entries []*storage.TimelineEntry) string {
	switch len(entries) {
	case 0:
		return "No events recorded"
	case 1:
		return entries[0].Summary
	}
	return fmt.Sprintf("%d events recorded", len(entries))
}

func narrativeDescription(capture event.Capture, entries []*storage.TimelineEntry) string {
	if len(entries) == 0 {
		return strings.TrimSpace(capture.OriginalText)
	}

	ordered := make([]*storage.TimelineEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RecordTime.Before(ordered[j].RecordTime)
	})

	lines := make([]string, 0, len(ordered))
	for _, e := range ordered {
		lines = append(lines, "- "+e.Summary)
	}
	return strings.Join(lines, "\n")
}

func narrativeDetail(capture event.Capture, res *Result) map[string]any {
	detail := map[string]any{
		"originalText": capture.OriginalText,
		"replyText":    capture.ReplyText,
		"entryCount":   len(res.Entries),
		"skippedCount": res.Skipped,
	}
	if capture.Classification != "" {
		detail["classification"] = capture.Classification
	}
	if len(capture.Clarifications) > 0 {
		detail["clarificationQuestions"] = capture.Clarifications
	}
	if capture.AttachmentSummary != "" {
		detail["attachmentSummary"] = capture.AttachmentSummary
	}
	return detail
}

func entryTitle(c event.Candidate) string {
	label := c.Type
	if label == "" || label == event.TypeOther {
		label = string(c.Category)
	}
	label = strings.ReplaceAll(label, "_", " ")
	if label == "" {
		return ""
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
