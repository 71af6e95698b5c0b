package ingest

import (
	"github.com/papercomputeco/nestlog/pkg/attachments"
	"github.com/papercomputeco/nestlog/pkg/event"
	"github.com/papercomputeco/nestlog/pkg/storage"
)

// Transports label where a message came from.
const (
	TransportHTTP   = "http"
	TransportStream = "stream"
	TransportMCP    = "mcp"
)

// MessageRequest is one parent message.
type MessageRequest struct {
	ProfileID       string   `json:"-"`
	UserID          string   `json:"userId"`
	Message         string   `json:"message"`
	AttachmentRefs  []string `json:"attachmentRefs"`
	ClientMessageID string   `json:"clientMessageId,omitempty"`

	// LocalTime is the sender's wall clock (RFC 3339, or a zone-less time
	// read in Timezone). Timezone is an IANA name.
	LocalTime string `json:"localTime,omitempty"`
	Timezone  string `json:"timezone,omitempty"`

	Transport string `json:"-"`
}

// MessageResponse is the outcome of an ingested message.
type MessageResponse struct {
	MessageID              string   `json:"messageId"`
	ReplyMessageID         string   `json:"replyMessageId"`
	Reply                  string   `json:"reply"`
	EventCount             int      `json:"eventCount"`
	OriginEventID          string   `json:"originEventId"`
	TimelineEntriesCreated int      `json:"timelineEntriesCreated"`
	Classification         string   `json:"classification"`
	ClarificationQuestions []string `json:"clarificationQuestions"`

	// Duplicate is set when the message was a retry of one already ingested.
	Duplicate bool `json:"duplicate,omitempty"`
}

// IntakeRequest appends an already interpreted message to the Origin Log.
type IntakeRequest struct {
	ProfileID       string            `json:"profileId"`
	OriginalText    string            `json:"originalText"`
	ReplyText       string            `json:"replyText"`
	CandidateEvents []event.Candidate `json:"candidateEvents"`
	AttachmentIDs   []string          `json:"attachmentIds"`
	SourceType      string            `json:"sourceType,omitempty"`
	ExternalID      *string           `json:"externalId,omitempty"`
}

// IntakeResponse reports the appended origin event.
type IntakeResponse struct {
	Success                bool   `json:"success"`
	OriginEventID          string `json:"originEventId"`
	Created                bool   `json:"created"`
	TimelineEntriesCreated int    `json:"timelineEntriesCreated"`
}

// TimelineItem is a timeline entry with the attachments of its origin.
type TimelineItem struct {
	*storage.TimelineEntry
	Attachments []attachments.Ref `json:"attachments,omitempty"`
}

// OriginDetail is an origin event with everything projected from it.
type OriginDetail struct {
	Origin      *storage.OriginEvent     `json:"origin"`
	Narrative   *storage.NarrativeEvent  `json:"narrative,omitempty"`
	Entries     []*storage.TimelineEntry `json:"entries"`
	Attachments []attachments.Ref        `json:"attachments,omitempty"`
}
