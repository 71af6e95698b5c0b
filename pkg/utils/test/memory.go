package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/nestlog/pkg/memory"
)

// MockMemoryDriver is a test memory driver that records calls and returns
// configurable results.
type MockMemoryDriver struct {
	mu sync.Mutex

	// Appended accumulates all turns passed to Append, per profile.
	Appended map[string][]memory.Turn

	// History is returned by RecentHistory for any profile.
	History []memory.Turn

	// Snippets is returned by SearchRelevant for any query.
	Snippets []memory.Snippet

	// FailAppend causes Append to return an error.
	FailAppend bool

	// FailRecall causes RecentHistory and SearchRelevant to return an error.
	FailRecall bool
}

// NewMockMemoryDriver creates a new mock memory driver.
func NewMockMemoryDriver() *MockMemoryDriver {
	return &MockMemoryDriver{Appended: make(map[string][]memory.Turn)}
}

func (m *MockMemoryDriver) Append(_ context.Context, profileID string, turns ...memory.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAppend {
		return memory.ErrNotConfigured
	}
	m.Appended[profileID] = append(m.Appended[profileID], turns...)
	return nil
}

// AppendedTurns returns a copy of the turns appended for a profile.
func (m *MockMemoryDriver) AppendedTurns(profileID string) []memory.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]memory.Turn(nil), m.Appended[profileID]...)
}

func (m *MockMemoryDriver) RecentHistory(_ context.Context, _ string, limit int) ([]memory.Turn, error) {
	if m.FailRecall {
		return nil, memory.ErrNotConfigured
	}
	if len(m.History) > limit {
		return m.History[len(m.History)-limit:], nil
	}
	return m.History, nil
}

func (m *MockMemoryDriver) SearchRelevant(_ context.Context, _, _ string, limit int) ([]memory.Snippet, error) {
	if m.FailRecall {
		return nil, memory.ErrNotConfigured
	}
	if len(m.Snippets) > limit {
		return m.Snippets[:limit], nil
	}
	return m.Snippets, nil
}

func (m *MockMemoryDriver) Close() error {
	return nil
}
