package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/papercomputeco/nestlog/pkg/storage"
)

type scanner interface {
	Scan(dest ...any) error
}

var (
	originSelectColumns = []string{
		"id", "profile_id", "source_type", "external_id", "event_time", "raw_payload",
		"attachment_ids", "processed", "processed_at", "notes", "created_at",
	}
	narrativeSelectColumns = []string{
		"id", "profile_id", "origin_event_id", "type", "event_time", "title",
		"description", "detail", "created_at",
	}
	timelineSelectColumns = []string{
		"id", "profile_id", "origin_event_id", "narrative_event_id", "type", "category",
		"record_time", "title", "summary", "tags", "location", "detail", "confidence", "created_at",
	}
)

func scanMessage(row scanner) (*storage.Message, error) {
	var (
		msg         storage.Message
		userID      sql.NullString
		role        string
		attachments []byte
		clientID    sql.NullString
	)
	if err := row.Scan(&msg.ID, &msg.ProfileID, &userID, &role, &msg.Text, &attachments, &clientID, &msg.CreatedAt); err != nil {
		return nil, storage.Persistence("scan message", err)
	}
	msg.UserID = userID.String
	msg.Role = storage.Role(role)
	msg.ClientMessageID = clientID.String
	msg.CreatedAt = msg.CreatedAt.UTC()
	if err := unmarshalJSON(attachments, &msg.AttachmentIDs); err != nil {
		return nil, fmt.Errorf("decoding message attachments: %w", err)
	}
	return &msg, nil
}

func scanOrigin(row scanner) (*storage.OriginEvent, error) {
	var (
		origin      storage.OriginEvent
		externalID  sql.NullString
		payload     []byte
		attachments []byte
		processedAt sql.NullTime
		notes       sql.NullString
	)
	err := row.Scan(
		&origin.ID, &origin.ProfileID, &origin.SourceType, &externalID, &origin.EventTime,
		&payload, &attachments, &origin.Processed, &processedAt, &notes, &origin.CreatedAt,
	)
	if err != nil {
		return nil, storage.Persistence("scan origin event", err)
	}

	if externalID.Valid {
		id := externalID.String
		origin.ExternalID = &id
	}
	if processedAt.Valid {
		t := processedAt.Time.UTC()
		origin.ProcessedAt = &t
	}
	origin.RawPayload = json.RawMessage(payload)
	origin.Notes = notes.String
	origin.EventTime = origin.EventTime.UTC()
	origin.CreatedAt = origin.CreatedAt.UTC()
	if err := unmarshalJSON(attachments, &origin.AttachmentIDs); err != nil {
		return nil, fmt.Errorf("decoding origin attachments: %w", err)
	}
	return &origin, nil
}

func scanNarrative(row scanner) (*storage.NarrativeEvent, error) {
	var (
		n      storage.NarrativeEvent
		detail []byte
	)
	err := row.Scan(&n.ID, &n.ProfileID, &n.OriginEventID, &n.Type, &n.EventTime, &n.Title, &n.Description, &detail, &n.CreatedAt)
	if err != nil {
		return nil, storage.Persistence("scan narrative event", err)
	}
	n.EventTime = n.EventTime.UTC()
	n.CreatedAt = n.CreatedAt.UTC()
	if err := unmarshalJSON(detail, &n.Detail); err != nil {
		return nil, fmt.Errorf("decoding narrative detail: %w", err)
	}
	return &n, nil
}

func scanEntry(row scanner) (*storage.TimelineEntry, error) {
	var (
		e        storage.TimelineEntry
		tags     []byte
		location sql.NullString
		detail   []byte
	)
	err := row.Scan(
		&e.ID, &e.ProfileID, &e.OriginEventID, &e.NarrativeEventID, &e.Type, &e.Category,
		&e.RecordTime, &e.Title, &e.Summary, &tags, &location, &detail, &e.Confidence, &e.CreatedAt,
	)
	if err != nil {
		return nil, storage.Persistence("scan timeline entry", err)
	}
	e.Location = location.String
	e.RecordTime = e.RecordTime.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	if err := unmarshalJSON(tags, &e.Tags); err != nil {
		return nil, fmt.Errorf("decoding timeline tags: %w", err)
	}
	if err := unmarshalJSON(detail, &e.Detail); err != nil {
		return nil, fmt.Errorf("decoding timeline detail: %w", err)
	}
	return &e, nil
}

// marshalJSON encodes v for a JSON column, storing NULL for empty values.
func marshalJSON(v any) (any, error) {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalJSON(data []byte, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

