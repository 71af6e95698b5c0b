// Package local provides an in-process implementation of memory.Driver.
//
// Turns are kept per profile in a bounded ring. Relevance search is a plain
// keyword overlap score, good enough for local development; the vector
// driver does semantic search.
package local

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/papercomputeco/nestlog/pkg/memory"
)

// DefaultMaxTurns bounds the turns kept per profile.
const DefaultMaxTurns = 500

// Config holds configuration for the local memory driver.
type Config struct {
	// Enabled controls whether the driver stores and recalls turns.
	// When false, Append is a no-op and reads return nil.
	Enabled bool

	// MaxTurns bounds the turns kept per profile. Defaults to DefaultMaxTurns.
	MaxTurns int
}

// Driver implements memory.Driver using in-process data structures.
type Driver struct {
	config Config

	mu    sync.RWMutex
	turns map[string][]memory.Turn
}

var _ memory.Driver = (*Driver)(nil)

// NewDriver creates a local in-memory memory driver.
func NewDriver(config Config) *Driver {
	if config.MaxTurns <= 0 {
		config.MaxTurns = DefaultMaxTurns
	}
	return &Driver{
		config: config,
		turns:  make(map[string][]memory.Turn),
	}
}

// Append records turns, dropping the oldest beyond MaxTurns.
func (d *Driver) Append(_ context.Context, profileID string, turns ...memory.Turn) error {
	if !d.config.Enabled || len(turns) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	all := append(d.turns[profileID], turns...)
	if over := len(all) - d.config.MaxTurns; over > 0 {
		all = append([]memory.Turn(nil), all[over:]...)
	}
	d.turns[profileID] = all
	return nil
}

// RecentHistory returns a copy of the latest turns, oldest first.
func (d *Driver) RecentHistory(_ context.Context, profileID string, limit int) ([]memory.Turn, error) {
	if !d.config.Enabled || limit <= 0 {
		return nil, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	all := d.turns[profileID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	if len(all) == 0 {
		return nil, nil
	}

	result := make([]memory.Turn, len(all))
	copy(result, all)
	return result, nil
}

// SearchRelevant scores user turns by the share of query keywords they
// contain. Ties go to the newer turn.
func (d *Driver) SearchRelevant(_ context.Context, profileID, query string, limit int) ([]memory.Snippet, error) {
	if !d.config.Enabled || limit <= 0 {
		return nil, nil
	}

	keywords := Keywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var snippets []memory.Snippet
	for _, t := range d.turns[profileID] {
		if t.Role != memory.RoleUser {
			continue
		}
		words := Keywords(t.Text)
		hits := 0
		for k := range keywords {
			if _, ok := words[k]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		snippets = append(snippets, memory.Snippet{
			Text:  t.Text,
			At:    t.At,
			Score: float64(hits) / float64(len(keywords)),
		})
	}

	sort.SliceStable(snippets, func(i, j int) bool {
		if snippets[i].Score != snippets[j].Score {
			return snippets[i].Score > snippets[j].Score
		}
		return snippets[i].At.After(snippets[j].At)
	})

	if len(snippets) > limit {
		snippets = snippets[:limit]
	}
	return snippets, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "was": {}, "for": {}, "with": {}, "she": {}, "her": {},
	"his": {}, "him": {}, "had": {}, "has": {}, "did": {}, "how": {}, "what": {},
	"when": {}, "this": {}, "that": {}, "today": {}, "baby": {},
}

// Keywords returns the lowercase words of at least three letters in s,
// minus common filler words.
func Keywords(s string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}
