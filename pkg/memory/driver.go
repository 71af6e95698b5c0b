// Package memory provides the conversational memory consulted when building
// model context: the recent turns of a profile's conversation and snippets
// of older conversation relevant to the current message.
//
// Memory is best effort. Callers treat every error as "no memory" and carry
// on; a memory outage never fails ingestion.
//
// Drivers are pluggable via configuration:
//
//	[memory]
//	provider = "local"   # or "vector"
package memory

import (
	"context"
	"time"
)

// Roles of a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of a profile's conversation.
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`

	// Clarifications are the follow-up questions an assistant turn asked.
	Clarifications []string `json:"clarifications,omitempty"`
}

// Snippet is an older piece of conversation relevant to a query.
type Snippet struct {
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
	Score float64   `json:"score"`
}

// Driver stores and recalls conversation memory per profile.
type Driver interface {
	// Append records turns for a profile, oldest first.
	Append(ctx context.Context, profileID string, turns ...Turn) error

	// RecentHistory returns up to limit of the latest turns, oldest first.
	RecentHistory(ctx context.Context, profileID string, limit int) ([]Turn, error)

	// SearchRelevant returns up to limit snippets relevant to query, best
	// match first.
	SearchRelevant(ctx context.Context, profileID, query string, limit int) ([]Snippet, error)

	// Close releases driver resources.
	Close() error
}
