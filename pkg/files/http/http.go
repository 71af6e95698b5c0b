// Package http resolves file metadata over the media service's JSON API.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/papercomputeco/nestlog/pkg/files"
)

// Directory fetches GET {target}/v1/files/{source}/{resourceId}.
// Timeouts are left to the caller's context.
type Directory struct {
	target string
	client *nethttp.Client
}

var _ files.Directory = (*Directory)(nil)

// New creates an HTTP file directory.
func New(target string) *Directory {
	return &Directory{
		target: strings.TrimRight(target, "/"),
		client: nethttp.DefaultClient,
	}
}

// ResolveMetadata fetches the metadata of one attachment.
func (d *Directory) ResolveMetadata(ctx context.Context, id string) (*files.Metadata, error) {
	source, resource := files.ParseID(id)
	if resource == "" {
		return nil, fmt.Errorf("%w: empty attachment id", files.ErrNotFound)
	}
	endpoint := fmt.Sprintf("%s/v1/files/%s/%s", d.target, url.PathEscape(source), url.PathEscape(resource))

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create file request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch file %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == nethttp.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", files.ErrNotFound, id)
	case resp.StatusCode != nethttp.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch file %s: status %d: %s", id, resp.StatusCode, string(body))
	}

	var md files.Metadata
	if err := json.NewDecoder(resp.Body).Decode(&md); err != nil {
		return nil, fmt.Errorf("decode file %s: %w", id, err)
	}
	if md.URL == "" {
		return nil, fmt.Errorf("file %s has no url", id)
	}
	return &md, nil
}
