package eventstream

import (
	"time"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeOriginRecorded is emitted after an origin event is appended
	// to the Origin Log (or a retry resolved to an existing one).
	EventTypeOriginRecorded = "nestlog.origin.recorded"

	// EventTypeProjectionCompleted is emitted after an origin event's
	// narrative and timeline projections commit.
	EventTypeProjectionCompleted = "nestlog.projection.completed"
)

// Envelope carries the fields common to every event.
type Envelope struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	ProfileID     string    `json:"profile_id"`
}

// OriginRecordedEvent is a transport-neutral payload for an Origin Log append.
type OriginRecordedEvent struct {
	Envelope

	OriginEventID  string    `json:"origin_event_id"`
	SourceType     string    `json:"source_type"`
	ExternalID     *string   `json:"external_id,omitempty"`
	EventTime      time.Time `json:"event_time"`
	Created        bool      `json:"created"`
	CandidateCount int       `json:"candidate_count"`
	AttachmentIDs  []string  `json:"attachment_ids,omitempty"`
}

// ProjectionCompletedEvent is a transport-neutral payload for a committed
// projection.
type ProjectionCompletedEvent struct {
	Envelope

	OriginEventID    string `json:"origin_event_id"`
	NarrativeEventID string `json:"narrative_event_id"`
	NarrativeType    string `json:"narrative_type"`
	EntryCount       int    `json:"entry_count"`
	SkippedCount     int    `json:"skipped_count"`
	Forced           bool   `json:"forced"`
}
