// Package pipeline interprets a parent's message in three model-backed
// stages: attachment interpretation, intent classification and event
// extraction. The Orchestrator sequences them and degrades gracefully at
// every stage boundary, so a run always yields a usable Result.
package pipeline

import (
	"strings"
	"time"

	"github.com/papercomputeco/nestlog/pkg/attachments"
	"github.com/papercomputeco/nestlog/pkg/event"
	"github.com/papercomputeco/nestlog/pkg/memory"
	"github.com/papercomputeco/nestlog/pkg/profile"
)

// Intent is the classified purpose of a message.
type Intent string

const (
	IntentDataLogging         Intent = "data_logging"
	IntentQuestion            Intent = "question"
	IntentGeneralConversation Intent = "general_conversation"
	IntentOutOfScope          Intent = "out_of_scope"
	IntentCurriculumDocument  Intent = "curriculum_document"
)

// ParseIntent reports whether s names a known intent.
func ParseIntent(s string) (Intent, bool) {
	i := Intent(strings.ToLower(strings.TrimSpace(s)))
	switch i {
	case IntentDataLogging, IntentQuestion, IntentGeneralConversation, IntentOutOfScope, IntentCurriculumDocument:
		return i, true
	}
	return "", false
}

// DocumentType is the detected kind of an attachment.
type DocumentType string

const (
	DocumentMedicalReport DocumentType = "medical_report"
	DocumentGrowthChart   DocumentType = "growth_chart"
	DocumentPrescription  DocumentType = "prescription"
	DocumentSchoolReport  DocumentType = "school_report"
	DocumentCurriculum    DocumentType = "curriculum"
	DocumentMealPlan      DocumentType = "meal_plan"
	DocumentPhoto         DocumentType = "photo"
	DocumentOther         DocumentType = "other"
)

// ParseDocumentType maps s onto the closed set, defaulting to DocumentOther.
func ParseDocumentType(s string) DocumentType {
	d := DocumentType(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DocumentMedicalReport, DocumentGrowthChart, DocumentPrescription, DocumentSchoolReport,
		DocumentCurriculum, DocumentMealPlan, DocumentPhoto:
		return d
	}
	return DocumentOther
}

// ReportLike reports whether the document usually carries loggable data.
func (d DocumentType) ReportLike() bool {
	switch d {
	case DocumentMedicalReport, DocumentGrowthChart, DocumentPrescription, DocumentSchoolReport:
		return true
	}
	return false
}

// AttachmentSummary is the interpretation of one attachment.
type AttachmentSummary struct {
	AttachmentID  string       `json:"attachmentId"`
	Summary       string       `json:"summary"`
	ExtractedText string       `json:"extractedText,omitempty"`
	KeyFindings   []string     `json:"keyFindings,omitempty"`
	Type          DocumentType `json:"documentType"`
	DocumentDate  *time.Time   `json:"documentDate,omitempty"`
	Confidence    float64      `json:"confidence"`
}

// AttachmentInterpretation aggregates the per-file summaries.
type AttachmentInterpretation struct {
	Files    []AttachmentSummary `json:"files"`
	Summary  string              `json:"summary"`
	Type     DocumentType        `json:"documentType"`
	Failures []string            `json:"failures,omitempty"`
}

// DocumentDate returns the explicit date of the most confident file that
// has one.
func (a *AttachmentInterpretation) DocumentDate() *time.Time {
	if a == nil {
		return nil
	}
	var best *AttachmentSummary
	for i := range a.Files {
		f := &a.Files[i]
		if f.DocumentDate == nil {
			continue
		}
		if best == nil || f.Confidence > best.Confidence {
			best = f
		}
	}
	if best == nil {
		return nil
	}
	return best.DocumentDate
}

// Classification is the labelled intent of a message.
type Classification struct {
	Intent     Intent  `json:"category"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

// Extraction is the output of the event extractor, or the synthesized reply
// for intents that skip extraction.
type Extraction struct {
	Candidates     []event.Candidate `json:"candidateEvents"`
	Confidence     float64           `json:"confidence"`
	Reply          string            `json:"reply"`
	Clarifications []string          `json:"clarificationQuestions,omitempty"`
}

// Request is one message to interpret along with its assembled context.
type Request struct {
	ProfileID   string
	Text        string
	Attachments []attachments.Ref

	// Profile, History and Snippets are optional context; any of them may
	// be missing when their lookup failed.
	Profile  *profile.Profile
	History  []memory.Turn
	Snippets []memory.Snippet

	// LocalTime is the caller's wall clock, in the caller's location. It
	// anchors relative time phrases and is the fallback event time.
	LocalTime time.Time
}

// Result is the outcome of a pipeline run. It is always complete: failed
// stages are replaced by safe defaults and noted in Notes.
type Result struct {
	Interpretation *AttachmentInterpretation `json:"attachmentInterpretation,omitempty"`
	Classification Classification            `json:"classification"`
	Extraction     Extraction                `json:"extraction"`
	Notes          []string                  `json:"notes,omitempty"`
}

// Reply is the assistant reply to show the parent.
func (r *Result) Reply() string {
	return r.Extraction.Reply
}
