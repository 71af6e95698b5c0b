// Package vector provides interfaces and implementations for vector storage
// of conversation memory.
package vector

import (
	"context"
	"time"
)

// Document is a stored memory snippet with its embedding.
type Document struct {
	// ID is a unique identifier for the document (a UUID).
	ID string

	// ProfileID scopes the document; queries never cross profiles.
	ProfileID string

	// Text is the snippet returned on recall.
	Text string

	// CreatedAt is when the snippet was said.
	CreatedAt time.Time

	// Embedding is the vector representation of Text.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score represents the similarity score (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings.
	// If a document with the same ID already exists, implementers should update
	// the document.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK documents of a profile most similar to the given
	// embedding.
	Query(ctx context.Context, profileID string, embedding []float32, topK int) ([]QueryResult, error)

	// Close releases any resources held by the driver.
	Close() error
}
