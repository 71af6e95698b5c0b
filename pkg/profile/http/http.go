// Package http reads profiles from the profile service's JSON API.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/nestlog/pkg/profile"
)

// Directory fetches profiles from GET {target}/v1/profiles/{id}.
type Directory struct {
	target string
	client *nethttp.Client
}

var _ profile.Directory = (*Directory)(nil)

// New creates an HTTP profile directory.
func New(target string, timeout time.Duration) *Directory {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Directory{
		target: strings.TrimRight(target, "/"),
		client: &nethttp.Client{Timeout: timeout},
	}
}

// GetProfile fetches one profile.
func (d *Directory) GetProfile(ctx context.Context, id string) (*profile.Profile, error) {
	endpoint := d.target + "/v1/profiles/" + url.PathEscape(id)

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch profile %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == nethttp.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", profile.ErrNotFound, id)
	case resp.StatusCode != nethttp.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch profile %s: status %d: %s", id, resp.StatusCode, string(body))
	}

	var p profile.Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}
