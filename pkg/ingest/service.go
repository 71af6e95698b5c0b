// Package ingest is the ingestion service: it validates parent messages,
// assembles their context, runs the interpretation pipeline and appends the
// outcome to the Origin Log before projecting it.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/nestlog/pkg/attachments"
	"github.com/papercomputeco/nestlog/pkg/event"
	"github.com/papercomputeco/nestlog/pkg/eventstream"
	"github.com/papercomputeco/nestlog/pkg/logger"
	"github.com/papercomputeco/nestlog/pkg/memory"
	"github.com/papercomputeco/nestlog/pkg/metrics"
	"github.com/papercomputeco/nestlog/pkg/pipeline"
	"github.com/papercomputeco/nestlog/pkg/profile"
	"github.com/papercomputeco/nestlog/pkg/projector"
	"github.com/papercomputeco/nestlog/pkg/storage"
)

const (
	defaultLookupTimeout = 5 * time.Second
	defaultHistoryLimit  = 10
	defaultSnippetLimit  = 3
	streamBuffer         = 32
)

// Runner interprets one message.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, em *pipeline.Emitter) *pipeline.Result
}

// Projector builds the projection of an origin event.
type Projector interface {
	Project(ctx context.Context, originID string, opts projector.Options) (*projector.Result, error)
}

// Resolver turns attachment ids into references.
type Resolver interface {
	Resolve(ctx context.Context, ids []string) []attachments.Ref
}

// Config configures a Service. Store, Pipeline and Projector are required;
// every other collaborator is optional and skipped when nil.
type Config struct {
	Store     storage.Driver
	Pipeline  Runner
	Projector Projector

	Resolver  Resolver
	Profiles  profile.Directory
	Memory    memory.Driver
	Publisher eventstream.Publisher

	// LookupTimeout bounds each context lookup. Defaults to 5s.
	LookupTimeout time.Duration

	// HistoryLimit and SnippetLimit bound the memory context.
	HistoryLimit int
	SnippetLimit int

	// Clock defaults to time.Now.
	Clock func() time.Time

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Service ingests messages. It is safe for concurrent use.
type Service struct {
	store     storage.Driver
	pipeline  Runner
	projector Projector
	resolver  Resolver
	profiles  profile.Directory
	memory    memory.Driver
	publisher eventstream.Publisher

	lookupTimeout time.Duration
	historyLimit  int
	snippetLimit  int
	clock         func() time.Time

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewService creates a Service.
func NewService(c Config) (*Service, error) {
	switch {
	case c.Store == nil:
		return nil, errors.New("ingest service requires a store")
	case c.Pipeline == nil:
		return nil, errors.New("ingest service requires a pipeline")
	case c.Projector == nil:
		return nil, errors.New("ingest service requires a projector")
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = defaultLookupTimeout
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	if c.SnippetLimit <= 0 {
		c.SnippetLimit = defaultSnippetLimit
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	return &Service{
		store:         c.Store,
		pipeline:      c.Pipeline,
		projector:     c.Projector,
		resolver:      c.Resolver,
		profiles:      c.Profiles,
		memory:        c.Memory,
		publisher:     c.Publisher,
		lookupTimeout: c.LookupTimeout,
		historyLimit:  c.HistoryLimit,
		snippetLimit:  c.SnippetLimit,
		clock:         c.Clock,
		logger:        c.Logger,
		metrics:       c.Metrics,
	}, nil
}

// Submit ingests a message and waits for the reply.
func (s *Service) Submit(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	if req.Transport == "" {
		req.Transport = TransportHTTP
	}
	localTime, err := s.validate(&req)
	if err != nil {
		return nil, err
	}
	return s.process(ctx, req, localTime, nil)
}

// Stream is a streaming submission in flight.
type Stream struct {
	em   *pipeline.Emitter
	done chan struct{}
	resp *MessageResponse
	err  error
}

// Updates delivers progress until processing finishes or the stream is
// abandoned.
func (st *Stream) Updates() <-chan pipeline.Progress {
	return st.em.Updates()
}

// Wait blocks until processing finishes.
func (st *Stream) Wait() (*MessageResponse, error) {
	<-st.done
	return st.resp, st.err
}

// Abandon stops progress delivery. Processing carries on to completion.
func (st *Stream) Abandon() {
	st.em.Close()
}

// SubmitStream validates the message and starts processing it in the
// background. Processing is detached from ctx: a client that goes away stops
// receiving progress, but the message, its origin event and its projection
// are still written.
func (s *Service) SubmitStream(ctx context.Context, req MessageRequest) (*Stream, error) {
	if req.Transport == "" {
		req.Transport = TransportStream
	}
	localTime, err := s.validate(&req)
	if err != nil {
		return nil, err
	}

	st := &Stream{
		em:   pipeline.NewEmitter(streamBuffer),
		done: make(chan struct{}),
	}
	detached := context.WithoutCancel(ctx)

	go func() {
		defer close(st.done)
		defer st.em.Close()
		st.resp, st.err = s.process(detached, req, localTime, st.em)
	}()
	return st, nil
}

func (s *Service) process(ctx context.Context, req MessageRequest, localTime time.Time, em *pipeline.Emitter) (*MessageResponse, error) {
	log := s.logger.With("profile_id", req.ProfileID, "transport", req.Transport)

	if req.ClientMessageID != "" {
		resp, ok := s.replay(ctx, req, em)
		if ok {
			log.Info("duplicate message", "client_message_id", req.ClientMessageID, "origin_event_id", resp.OriginEventID)
			return resp, nil
		}
	}

	// Messages are written only once the Origin Log accepts the capture, so
	// a retry racing this one cannot leave a second pair in the history.
	received := storage.Now()
	messageID := uuid.NewString()

	preq := s.assemble(ctx, req, localTime, em)
	res := s.pipeline.Run(ctx, preq, em)
	if len(res.Notes) > 0 {
		log.Warn("pipeline degraded", "notes", res.Notes)
	}

	em.Emit(pipeline.Progress{Stage: pipeline.StagePersist, Status: pipeline.StatusStarted})
	start := time.Now()

	replyID := uuid.NewString()
	capture := event.Capture{
		MessageID:      messageID,
		ReplyMessageID: replyID,
		OriginalText:   req.Message,
		ReplyText:      res.Reply(),
		Classification: string(res.Classification.Intent),
		Confidence:     res.Extraction.Confidence,
		Candidates:     res.Extraction.Candidates,
		Clarifications: res.Extraction.Clarifications,
	}
	if res.Interpretation != nil {
		capture.AttachmentSummary = res.Interpretation.Summary
	}

	externalID := messageID
	if req.ClientMessageID != "" {
		externalID = chatExternalID(req.ProfileID, req.ClientMessageID)
	}

	stored, intake, err := s.record(ctx, origin{
		profileID:     req.ProfileID,
		sourceType:    storage.SourceChat,
		externalID:    &externalID,
		attachmentIDs: req.AttachmentRefs,
		notes:         strings.Join(res.Notes, "; "),
		fallbackTime:  localTime,
	}, capture)
	if err != nil {
		s.metrics.ObserveStage(pipeline.StagePersist, metrics.OutcomeError, time.Since(start))
		em.Emit(pipeline.Progress{Stage: pipeline.StagePersist, Status: pipeline.StatusDegraded, Message: err.Error()})
		log.Error("failed to record origin event", "message_id", messageID, "error", err)
		return nil, err
	}

	if !intake.Created {
		s.metrics.ObserveStage(pipeline.StagePersist, metrics.OutcomeOK, time.Since(start))
		log.Info("duplicate message recorded concurrently",
			"client_message_id", req.ClientMessageID,
			"origin_event_id", stored.ID,
		)
		return s.duplicate(req, stored, intake.TimelineEntriesCreated, em), nil
	}

	s.appendMessage(ctx, &storage.Message{
		ID:              messageID,
		ProfileID:       req.ProfileID,
		UserID:          req.UserID,
		Role:            storage.RoleUser,
		Text:            req.Message,
		AttachmentIDs:   req.AttachmentRefs,
		ClientMessageID: req.ClientMessageID,
		CreatedAt:       received,
	})
	s.appendMessage(ctx, &storage.Message{
		ID:        replyID,
		ProfileID: req.ProfileID,
		Role:      storage.RoleAssistant,
		Text:      capture.ReplyText,
		CreatedAt: storage.Now(),
	})
	s.remember(ctx, req, localTime, capture)

	s.metrics.ObserveStage(pipeline.StagePersist, metrics.OutcomeOK, time.Since(start))
	s.metrics.Message(req.Transport, capture.Classification)
	em.Emit(pipeline.Progress{Stage: pipeline.StagePersist, Status: pipeline.StatusCompleted})

	log.Info("message ingested",
		"message_id", messageID,
		"origin_event_id", intake.OriginEventID,
		"classification", capture.Classification,
		"events", len(capture.Candidates),
		"timeline_entries", intake.TimelineEntriesCreated,
	)

	return &MessageResponse{
		MessageID:              messageID,
		ReplyMessageID:         replyID,
		Reply:                  capture.ReplyText,
		EventCount:             len(capture.Candidates),
		OriginEventID:          intake.OriginEventID,
		TimelineEntriesCreated: intake.TimelineEntriesCreated,
		Classification:         capture.Classification,
		ClarificationQuestions: nonNil(capture.Clarifications),
	}, nil
}

// chatExternalID keys a client message id to its profile, since clients
// only guarantee uniqueness within their own conversation.
func chatExternalID(profileID, clientMessageID string) string {
	return profileID + "/" + clientMessageID
}

// replay answers a retried message from the origin event it already
// produced, without running the pipeline again.
func (s *Service) replay(ctx context.Context, req MessageRequest, em *pipeline.Emitter) (*MessageResponse, bool) {
	key := chatExternalID(req.ProfileID, req.ClientMessageID)
	existing, err := s.store.GetOriginByExternalID(ctx, storage.SourceChat, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("idempotency lookup failed", "client_message_id", req.ClientMessageID, "error", err)
		}
		return nil, false
	}

	entries := 0
	if res, err := s.projector.Project(ctx, existing.ID, projector.Options{}); err != nil {
		s.logger.Warn("projection of replayed origin failed", "origin_event_id", existing.ID, "error", err)
	} else {
		entries = len(res.Entries)
	}
	return s.duplicate(req, existing, entries, em), true
}

// duplicate builds the response of a message whose capture is already in
// the Origin Log, reusing the stored ids and reply.
func (s *Service) duplicate(req MessageRequest, existing *storage.OriginEvent, entries int, em *pipeline.Emitter) *MessageResponse {
	capture, err := event.DecodeCapture(existing.RawPayload)
	if err != nil {
		s.logger.Warn("stored capture unreadable", "origin_event_id", existing.ID, "error", err)
	}

	s.metrics.Message(req.Transport, capture.Classification)
	em.Emit(pipeline.Progress{Stage: pipeline.StagePersist, Status: pipeline.StatusSkipped, Message: "duplicate message"})

	return &MessageResponse{
		MessageID:              capture.MessageID,
		ReplyMessageID:         capture.ReplyMessageID,
		Reply:                  capture.ReplyText,
		EventCount:             len(capture.Candidates),
		OriginEventID:          existing.ID,
		TimelineEntriesCreated: entries,
		Classification:         capture.Classification,
		ClarificationQuestions: nonNil(capture.Clarifications),
		Duplicate:              true,
	}
}

// assemble gathers profile, memory and attachment context in parallel. Each
// lookup has its own timeout and a failed lookup only leaves its part empty.
func (s *Service) assemble(ctx context.Context, req MessageRequest, localTime time.Time, em *pipeline.Emitter) pipeline.Request {
	em.Emit(pipeline.Progress{Stage: pipeline.StageContext, Status: pipeline.StatusStarted})
	start := time.Now()

	preq := pipeline.Request{
		ProfileID: req.ProfileID,
		Text:      req.Message,
		LocalTime: localTime,
	}

	g := new(errgroup.Group)

	if s.profiles != nil {
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
			defer cancel()
			p, err := s.profiles.GetProfile(lctx, req.ProfileID)
			if err != nil {
				s.logger.Warn("profile lookup failed", "profile_id", req.ProfileID, "error", err)
				return nil
			}
			preq.Profile = p
			return nil
		})
	}

	if s.memory != nil {
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
			defer cancel()
			turns, err := s.memory.RecentHistory(lctx, req.ProfileID, s.historyLimit)
			if err != nil {
				s.logger.Warn("memory history unavailable", "profile_id", req.ProfileID, "error", err)
				return nil
			}
			preq.History = turns
			return nil
		})

		if strings.TrimSpace(req.Message) != "" {
			g.Go(func() error {
				lctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
				defer cancel()
				snippets, err := s.memory.SearchRelevant(lctx, req.ProfileID, req.Message, s.snippetLimit)
				if err != nil {
					s.logger.Warn("memory search unavailable", "profile_id", req.ProfileID, "error", err)
					return nil
				}
				preq.Snippets = snippets
				return nil
			})
		}
	}

	if s.resolver != nil && len(req.AttachmentRefs) > 0 {
		g.Go(func() error {
			preq.Attachments = s.resolver.Resolve(ctx, req.AttachmentRefs)
			return nil
		})
	}

	_ = g.Wait()

	s.metrics.ObserveStage(pipeline.StageContext, metrics.OutcomeOK, time.Since(start))
	em.Emit(pipeline.Progress{Stage: pipeline.StageContext, Status: pipeline.StatusCompleted})
	return preq
}

func (s *Service) appendMessage(ctx context.Context, msg *storage.Message) {
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		s.logger.Warn("failed to store message",
			"message_id", msg.ID,
			"role", msg.Role,
			"error", err,
		)
	}
}

func (s *Service) remember(ctx context.Context, req MessageRequest, localTime time.Time, capture event.Capture) {
	if s.memory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	err := s.memory.Append(ctx, req.ProfileID,
		memory.Turn{Role: memory.RoleUser, Text: req.Message, At: localTime},
		memory.Turn{Role: memory.RoleAssistant, Text: capture.ReplyText, At: localTime, Clarifications: capture.Clarifications},
	)
	if err != nil {
		s.logger.Warn("failed to append memory", "profile_id", req.ProfileID, "error", err)
	}
}

// validate normalizes the request in place and resolves the caller's
// local time.
func (s *Service) validate(req *MessageRequest) (time.Time, error) {
	req.ProfileID = strings.TrimSpace(req.ProfileID)
	req.ClientMessageID = strings.TrimSpace(req.ClientMessageID)

	refs := req.AttachmentRefs[:0:0]
	for _, ref := range req.AttachmentRefs {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}
	req.AttachmentRefs = refs

	if req.ProfileID == "" {
		return time.Time{}, invalid("profileId", "is required")
	}
	if strings.TrimSpace(req.Message) == "" && len(req.AttachmentRefs) == 0 {
		return time.Time{}, invalid("message", "must not be empty without attachments")
	}
	return s.localTime(req.LocalTime, req.Timezone)
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// localTime reads the caller's clock. An explicit zone moves an RFC 3339
// time into that zone and anchors zone-less times; without either the
// server clock in UTC is used.
func (s *Service) localTime(value, zone string) (time.Time, error) {
	loc := time.UTC
	if zone = strings.TrimSpace(zone); zone != "" {
		l, err := time.LoadLocation(zone)
		if err != nil {
			return time.Time{}, invalid("timezone", "unknown time zone %q", zone)
		}
		loc = l
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return s.clock().In(loc), nil
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		if zone != "" {
			return t.In(loc), nil
		}
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalid("localTime", "unrecognised time %q", value)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
