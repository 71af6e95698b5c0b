// Package vector provides a memory.Driver with semantic recall: recent
// history is kept in process, while user turns are embedded and stored in a
// vector store for SearchRelevant.
package vector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/papercomputeco/nestlog/pkg/embeddings"
	"github.com/papercomputeco/nestlog/pkg/memory"
	"github.com/papercomputeco/nestlog/pkg/memory/local"
	"github.com/papercomputeco/nestlog/pkg/vector"
)

// minSnippetLength skips turns too short to be worth recalling ("ok", "yes").
const minSnippetLength = 12

// Config holds configuration for the vector memory driver.
type Config struct {
	Embedder embeddings.Embedder
	Store    vector.Driver
	Logger   *slog.Logger

	// MinScore drops weak matches. Zero keeps everything.
	MinScore float32
}

// Driver implements memory.Driver on an embedder and a vector store.
type Driver struct {
	recent   *local.Driver
	embedder embeddings.Embedder
	store    vector.Driver
	minScore float32
	logger   *slog.Logger
}

var _ memory.Driver = (*Driver)(nil)

// NewDriver creates a vector memory driver.
func NewDriver(c Config) (*Driver, error) {
	if c.Embedder == nil || c.Store == nil {
		return nil, fmt.Errorf("vector memory requires an embedder and a store: %w", memory.ErrNotConfigured)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return &Driver{
		recent:   local.NewDriver(local.Config{Enabled: true}),
		embedder: c.Embedder,
		store:    c.Store,
		minScore: c.MinScore,
		logger:   c.Logger,
	}, nil
}

// Append records the turns and indexes the user turns. Embedding failures
// are returned after the turns are recorded in recent history.
func (d *Driver) Append(ctx context.Context, profileID string, turns ...memory.Turn) error {
	if err := d.recent.Append(ctx, profileID, turns...); err != nil {
		return err
	}

	var docs []vector.Document
	for _, t := range turns {
		text := strings.TrimSpace(t.Text)
		if t.Role != memory.RoleUser || len(text) < minSnippetLength {
			continue
		}

		embedding, err := d.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("embedding memory turn: %w", err)
		}

		docs = append(docs, vector.Document{
			ID:        uuid.NewString(),
			ProfileID: profileID,
			Text:      text,
			CreatedAt: t.At,
			Embedding: embedding,
		})
	}

	if err := d.store.Add(ctx, docs); err != nil {
		return fmt.Errorf("storing memory turns: %w", err)
	}
	return nil
}

// RecentHistory returns the latest turns, oldest first.
func (d *Driver) RecentHistory(ctx context.Context, profileID string, limit int) ([]memory.Turn, error) {
	return d.recent.RecentHistory(ctx, profileID, limit)
}

// SearchRelevant embeds the query and returns the nearest stored snippets.
func (d *Driver) SearchRelevant(ctx context.Context, profileID, query string, limit int) ([]memory.Snippet, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}

	embedding, err := d.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding memory query: %w", err)
	}

	results, err := d.store.Query(ctx, profileID, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("querying memory: %w", err)
	}

	snippets := make([]memory.Snippet, 0, len(results))
	for _, r := range results {
		if r.Score < d.minScore {
			continue
		}
		snippets = append(snippets, memory.Snippet{
			Text:  r.Text,
			At:    r.CreatedAt,
			Score: float64(r.Score),
		})
	}

	d.logger.Debug("recalled memory snippets", "profile_id", profileID, "count", len(snippets))
	return snippets, nil
}

// Close releases the embedder and the store.
func (d *Driver) Close() error {
	embErr := d.embedder.Close()
	if err := d.store.Close(); err != nil {
		return err
	}
	return embErr
}
