package event

import (
	"encoding/json"
	"fmt"
)

// Capture is the full interpretation of one message as stored in the Origin
// Log. It is everything a projection needs, so projections can be rebuilt
// from the log alone.
type Capture struct {
	MessageID         string      `json:"messageId,omitempty"`
	ReplyMessageID    string      `json:"replyMessageId,omitempty"`
	OriginalText      string      `json:"originalText"`
	ReplyText         string      `json:"replyText"`
	Classification    string      `json:"classification,omitempty"`
	Confidence        float64     `json:"confidence,omitempty"`
	Candidates        []Candidate `json:"candidateEvents"`
	Clarifications    []string    `json:"clarificationQuestions,omitempty"`
	AttachmentSummary string      `json:"attachmentSummary,omitempty"`
}

// Marshal encodes the capture for the Origin Log.
func (c Capture) Marshal() (json.RawMessage, error) {
	if c.Candidates == nil {
		c.Candidates = []Candidate{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding capture: %w", err)
	}
	return data, nil
}

// DecodeCapture reads a capture back from a stored payload.
func DecodeCapture(raw json.RawMessage) (Capture, error) {
	var c Capture
	if len(raw) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return Capture{}, fmt.Errorf("decoding capture: %w", err)
	}
	return c, nil
}
