// Package attachments turns attachment ids into presentation references by
// looking them up in the file/media directory.
package attachments

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/nestlog/pkg/files"
	"github.com/papercomputeco/nestlog/pkg/llm"
	"github.com/papercomputeco/nestlog/pkg/metrics"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultConcurrency = 8
)

// Ref is a resolved attachment.
type Ref struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	ResourceID   string `json:"resourceId"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	MediaType    string `json:"mediaType,omitempty"`
	Size         int64  `json:"size,omitempty"`
	Name         string `json:"name,omitempty"`
}

// Attachment converts the ref into a model gateway attachment.
func (r Ref) Attachment() llm.Attachment {
	return llm.Attachment{URL: r.URL, MediaType: r.MediaType, Name: r.Name}
}

// Config holds configuration for a Resolver.
type Config struct {
	Directory files.Directory

	// Timeout bounds each lookup. Defaults to 5s.
	Timeout time.Duration

	// Concurrency bounds parallel lookups. Defaults to 8.
	Concurrency int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Resolver resolves attachment ids concurrently.
type Resolver struct {
	dir         files.Directory
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewResolver creates a Resolver.
func NewResolver(c Config) *Resolver {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return &Resolver{
		dir:         c.Directory,
		timeout:     c.Timeout,
		concurrency: c.Concurrency,
		logger:      c.Logger,
		metrics:     c.Metrics,
	}
}

// Resolve looks up every id and returns the refs in input order. Ids whose
// lookup fails or times out are dropped with a warning; Resolve never fails.
func (r *Resolver) Resolve(ctx context.Context, ids []string) []Ref {
	if len(ids) == 0 {
		return nil
	}

	resolved := make([]*Ref, len(ids))

	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)

	for i, id := range ids {
		g.Go(func() error {
			resolved[i] = r.lookup(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	refs := make([]Ref, 0, len(ids))
	for _, ref := range resolved {
		if ref != nil {
			refs = append(refs, *ref)
		}
	}
	return refs
}

func (r *Resolver) lookup(ctx context.Context, id string) *Ref {
	if r.dir == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	md, err := r.dir.ResolveMetadata(ctx, id)
	if err != nil {
		r.logger.Warn("dropping unresolvable attachment", "attachment_id", id, "error", err)
		r.metrics.ResolverDropped()
		return nil
	}

	source, resource := files.ParseID(id)
	return &Ref{
		ID:           id,
		Source:       source,
		ResourceID:   resource,
		URL:          md.URL,
		ThumbnailURL: md.ThumbnailURL,
		MediaType:    md.MimeType,
		Size:         md.Size,
		Name:         md.Name,
	}
}
