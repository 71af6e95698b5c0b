package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/papercomputeco/nestlog/pkg/files"
)

// FakeFiles is an in-memory file directory.
type FakeFiles struct {
	mu    sync.Mutex
	files map[string]files.Metadata
	calls []string

	// Delay is applied before every lookup, honouring ctx cancellation.
	Delay time.Duration
}

// NewFakeFiles creates an empty fake file directory.
func NewFakeFiles() *FakeFiles {
	return &FakeFiles{files: make(map[string]files.Metadata)}
}

// Put registers metadata for an id.
func (f *FakeFiles) Put(id string, md files.Metadata) *FakeFiles {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[id] = md
	return f
}

// Calls returns the ids looked up so far.
func (f *FakeFiles) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeFiles) ResolveMetadata(ctx context.Context, id string) (*files.Metadata, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	md, ok := f.files[id]
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", files.ErrNotFound, id)
	}
	return &md, nil
}
