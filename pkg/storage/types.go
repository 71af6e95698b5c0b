package storage

import (
	"encoding/json"
	"time"
)

// Role is the author of a RawMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SourceChat is the origin source type for messages ingested through chat.
const SourceChat = "chat"

// Message is a RawMessage: exactly what a user or the assistant said.
type Message struct {
	ID              string    `json:"id"`
	ProfileID       string    `json:"profileId"`
	UserID          string    `json:"userId,omitempty"`
	Role            Role      `json:"role"`
	Text            string    `json:"text"`
	AttachmentIDs   []string  `json:"attachmentIds,omitempty"`
	ClientMessageID string    `json:"clientMessageId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// MessagePage is one page of history.
type MessagePage struct {
	Messages []*Message `json:"messages"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
	Total    int        `json:"total"`
	HasMore  bool       `json:"hasMore"`
}

// OriginEvent is the immutable capture of one message's full interpretation.
// Only Processed and ProcessedAt ever change after creation.
type OriginEvent struct {
	ID            string          `json:"id"`
	ProfileID     string          `json:"profileId"`
	SourceType    string          `json:"sourceType"`
	ExternalID    *string         `json:"externalId,omitempty"`
	EventTime     time.Time       `json:"eventTime"`
	RawPayload    json.RawMessage `json:"rawPayload"`
	AttachmentIDs []string        `json:"attachmentIds,omitempty"`
	Processed     bool            `json:"processed"`
	ProcessedAt   *time.Time      `json:"processedAt,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// NarrativeEvent is the single human-readable account of an origin event.
type NarrativeEvent struct {
	ID            string         `json:"id"`
	ProfileID     string         `json:"profileId"`
	OriginEventID string         `json:"originEventId"`
	Type          string         `json:"type"`
	EventTime     time.Time      `json:"eventTime"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Detail        map[string]any `json:"detail,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// TimelineEntry is one structured record per extracted event.
type TimelineEntry struct {
	ID               string         `json:"id"`
	ProfileID        string         `json:"profileId"`
	OriginEventID    string         `json:"originEventId"`
	NarrativeEventID string         `json:"narrativeEventId"`
	Type             string         `json:"type"`
	Category         string         `json:"category"`
	RecordTime       time.Time      `json:"recordTime"`
	Title            string         `json:"title"`
	Summary          string         `json:"summary"`
	Tags             []string       `json:"tags,omitempty"`
	Location         string         `json:"location,omitempty"`
	Detail           map[string]any `json:"detail,omitempty"`
	Confidence       float64        `json:"confidence"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// Projection groups the records derived from one origin event.
type Projection struct {
	Narrative *NarrativeEvent  `json:"narrative"`
	Entries   []*TimelineEntry `json:"entries"`
}
