package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/nestlog/pkg/event"
	"github.com/papercomputeco/nestlog/pkg/llm"
	"github.com/papercomputeco/nestlog/pkg/logger"
	"github.com/papercomputeco/nestlog/pkg/memory"
	"github.com/papercomputeco/nestlog/pkg/metrics"
)

const (
	defaultStageTimeout          = 30 * time.Second
	defaultAttachmentConcurrency = 4

	// contextTurns bounds how much recent conversation is sent to the model.
	contextTurns = 10
)

// Config configures an Orchestrator.
type Config struct {
	Gateway llm.Gateway

	// Prompts defaults to DefaultPrompts() when left empty.
	Prompts Prompts

	// StageTimeout bounds each model-backed stage and each attachment call.
	StageTimeout time.Duration

	AttachmentConcurrency int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Orchestrator runs the interpretation stages for one message at a time.
// It is safe for concurrent use.
type Orchestrator struct {
	interpreter *Interpreter
	classifier  *Classifier
	extractor   *Extractor
	replies     Replies

	stageTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// New creates an Orchestrator.
func New(c Config) (*Orchestrator, error) {
	if c.Gateway == nil {
		return nil, errors.New("pipeline requires a model gateway")
	}
	if c.Prompts.Extractor == "" {
		c.Prompts = DefaultPrompts()
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = defaultStageTimeout
	}
	if c.AttachmentConcurrency <= 0 {
		c.AttachmentConcurrency = defaultAttachmentConcurrency
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	return &Orchestrator{
		interpreter: &Interpreter{
			gateway:     c.Gateway,
			prompt:      c.Prompts.Interpreter,
			concurrency: c.AttachmentConcurrency,
			timeout:     c.StageTimeout,
			logger:      c.Logger,
		},
		classifier: &Classifier{
			gateway: c.Gateway,
			prompt:  c.Prompts.Classifier,
			logger:  c.Logger,
		},
		extractor: &Extractor{
			gateway: c.Gateway,
			prompt:  c.Prompts.Extractor,
			replies: c.Prompts.Replies,
			logger:  c.Logger,
		},
		replies:      c.Prompts.Replies,
		stageTimeout: c.StageTimeout,
		logger:       c.Logger,
		metrics:      c.Metrics,
	}, nil
}

// Run interprets one message. It never fails: a stage that errors, times
// out or panics is replaced by its safe default and noted in Result.Notes.
func (o *Orchestrator) Run(ctx context.Context, req Request, em *Emitter) *Result {
	if req.LocalTime.IsZero() {
		req.LocalTime = time.Now()
	}
	res := &Result{}
	contextText := BuildContext(req)

	// Stage 1: attachments.
	if len(req.Attachments) == 0 {
		em.Emit(Progress{Stage: StageAttachments, Status: StatusSkipped})
		o.metrics.ObserveStage(StageAttachments, metrics.OutcomeSkipped, 0)
	} else {
		o.runStage(ctx, StageAttachments, em, res, func(ctx context.Context) error {
			interp := o.interpreter.Interpret(ctx, req.Attachments, req.Text, req.LocalTime.Location())
			res.Notes = append(res.Notes, interp.Failures...)
			if len(interp.Files) == 0 {
				return fmt.Errorf("none of %d attachments could be read", len(req.Attachments))
			}
			res.Interpretation = interp
			return nil
		})
	}

	// Stage 2: classification.
	res.Classification = fallbackClassification
	o.runStage(ctx, StageClassification, em, res, func(ctx context.Context) error {
		c, err := o.classifier.Classify(ctx, req, contextText, res.Interpretation)
		res.Classification = c
		return err
	})

	// Stage 3: extraction, or a canned reply for intents that log nothing.
	intent := res.Classification.Intent
	hasDocument := res.Interpretation != nil && len(res.Interpretation.Files) > 0

	switch {
	case intent == IntentDataLogging || (intent == IntentCurriculumDocument && hasDocument):
		res.Extraction = Extraction{Confidence: failedExtractionConfidence, Reply: o.replies.ParseFailure}
		o.runStage(ctx, StageExtraction, em, res, func(ctx context.Context) error {
			x, err := o.extractor.Extract(ctx, req, contextText, res.Interpretation)
			res.Extraction = x
			return err
		})
		if intent == IntentCurriculumDocument {
			res.Extraction = o.asCurriculum(res.Extraction, req, res.Interpretation)
		}

	default:
		em.Emit(Progress{Stage: StageExtraction, Status: StatusSkipped, Message: string(intent)})
		o.metrics.ObserveStage(StageExtraction, metrics.OutcomeSkipped, 0)
		res.Extraction = Extraction{
			Confidence: res.Classification.Confidence,
			Reply:      o.cannedReply(intent),
		}
	}

	return res
}

// runStage bounds fn with the stage timeout, recovers panics and records
// the outcome. It reports whether the stage succeeded.
func (o *Orchestrator) runStage(ctx context.Context, stage string, em *Emitter, res *Result, fn func(ctx context.Context) error) bool {
	start := time.Now()
	em.Emit(Progress{Stage: stage, Status: StatusStarted})

	ctx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(ctx)
	}()

	if err != nil {
		o.logger.Warn("pipeline stage degraded", "stage", stage, "error", err)
		res.Notes = append(res.Notes, fmt.Sprintf("%s: %v", stage, err))
		o.metrics.ObserveStage(stage, metrics.OutcomeDegraded, time.Since(start))
		em.Emit(Progress{Stage: stage, Status: StatusDegraded, Message: err.Error()})
		return false
	}

	o.metrics.ObserveStage(stage, metrics.OutcomeOK, time.Since(start))
	em.Emit(Progress{Stage: stage, Status: StatusCompleted})
	return true
}

// asCurriculum files extracted candidates as curriculum notes. When the
// model found nothing, the document summary itself becomes the note.
func (o *Orchestrator) asCurriculum(x Extraction, req Request, interp *AttachmentInterpretation) Extraction {
	for i := range x.Candidates {
		c := &x.Candidates[i]
		c.Category = event.CategoryNote
		c.Type = "curriculum"
	}

	if len(x.Candidates) == 0 && interp != nil {
		ts := req.LocalTime
		if d := interp.DocumentDate(); d != nil {
			ts = *d
		}
		x.Candidates = []event.Candidate{{
			Category:   event.CategoryNote,
			Type:       "curriculum",
			Timestamp:  ts,
			Summary:    firstLine(interp.Summary),
			Confidence: curriculumConfidence(interp),
			Details:    map[string]any{"text": interp.Summary},
		}}
		x.Confidence = x.Candidates[0].Confidence
	}

	x.Reply = o.replies.Curriculum
	return x
}

func (o *Orchestrator) cannedReply(intent Intent) string {
	switch intent {
	case IntentQuestion:
		return o.replies.Question
	case IntentOutOfScope:
		return o.replies.OutOfScope
	default:
		return o.replies.GeneralConversation
	}
}

func curriculumConfidence(interp *AttachmentInterpretation) float64 {
	if len(interp.Files) == 0 {
		return MinCandidateConfidence
	}
	var sum float64
	for _, f := range interp.Files {
		sum += f.Confidence
	}
	return clamp01(sum / float64(len(interp.Files)))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// BuildContext renders the optional profile, conversation and memory
// context shared by the classifier and the extractor.
func BuildContext(req Request) string {
	var b strings.Builder

	if req.Profile != nil {
		b.WriteString(req.Profile.Describe(req.LocalTime))
		b.WriteString("\n")
	}

	history := req.History
	if len(history) > contextTurns {
		history = history[len(history)-contextTurns:]
	}
	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, t := range history {
			who := "Parent"
			if t.Role == memory.RoleAssistant {
				who = "Assistant"
			}
			fmt.Fprintf(&b, "- %s: %s\n", who, t.Text)
			for _, q := range t.Clarifications {
				fmt.Fprintf(&b, "  (asked: %s)\n", q)
			}
		}
		b.WriteString("\n")
	}

	if len(req.Snippets) > 0 {
		b.WriteString("Possibly related earlier messages:\n")
		for _, s := range req.Snippets {
			fmt.Fprintf(&b, "- [%s] %s\n", s.At.In(req.LocalTime.Location()).Format("2006-01-02 15:04"), s.Text)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Current local time: %s", req.LocalTime.Format("Monday 2006-01-02 15:04 MST"))
	return b.String()
}
