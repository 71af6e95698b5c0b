package testutils

import (
	"context"

	"github.com/papercomputeco/nestlog/pkg/vector"
)

// MockVectorDriver is a test vector driver. Query returns Results filtered
// to the profile.
type MockVectorDriver struct {
	Documents []vector.Document
	Results   []vector.QueryResult

	// QueryErr is returned by Query when set.
	QueryErr error
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.Documents = append(m.Documents, docs...)
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, profileID string, _ []float32, topK int) ([]vector.QueryResult, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}

	var out []vector.QueryResult
	for _, r := range m.Results {
		if r.ProfileID == profileID {
			out = append(out, r)
		}
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}
