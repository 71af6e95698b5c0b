// Package sse writes and reads the Server-Sent Events stream used to report
// ingestion progress. The API encodes "progress", "complete" and "error"
// events; the CLI reads them back while a message is being processed.
//
// Framing follows the WHATWG server-sent events standard:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Event types emitted by the ingestion stream.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// Event is a single SSE event, delimited by a blank line on the wire.
type Event struct {
	// Type is the "event:" field. Empty means the default "message" type.
	Type string

	// Data is the concatenation of all "data:" lines, joined with "\n".
	Data string

	// ID is the "id:" field, if present.
	ID string
}

// Encode writes e in wire format. Multi-line data is split across several
// data fields so that readers join it back verbatim.
func Encode(w io.Writer, e Event) error {
	var b strings.Builder
	if e.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", e.ID)
	}
	if e.Type != "" {
		fmt.Fprintf(&b, "event: %s\n", e.Type)
	}
	for _, line := range strings.Split(e.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// EncodeJSON writes v as the JSON data of an event of the given type.
func EncodeJSON(w io.Writer, eventType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", eventType, err)
	}
	return Encode(w, Event{Type: eventType, Data: string(data)})
}

// Decode unmarshals the event's data into v.
func (e *Event) Decode(v any) error {
	if err := json.Unmarshal([]byte(e.Data), v); err != nil {
		return fmt.Errorf("decoding %s event: %w", e.Type, err)
	}
	return nil
}
