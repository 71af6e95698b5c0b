// Package client is a small HTTP client for the nestlog API, used by the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/nestlog/pkg/ingest"
	"github.com/papercomputeco/nestlog/pkg/llm"
	"github.com/papercomputeco/nestlog/pkg/pipeline"
	"github.com/papercomputeco/nestlog/pkg/sse"
	"github.com/papercomputeco/nestlog/pkg/storage"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nestlog API returned %d: %s", e.Status, e.Message)
}

// TimelinePage is the timeline endpoint's response.
type TimelinePage struct {
	Count   int                   `json:"count"`
	Entries []ingest.TimelineItem `json:"entries"`
}

type Client struct {
	target string
	http   *http.Client

	// streamTee receives the raw SSE stream when set.
	streamTee io.Writer
}

type Option func(*Client)

// WithHTTPClient replaces the default client, which allows five minutes per
// request since a message runs several model calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithStreamTee copies the raw event stream of Send to w.
func WithStreamTee(w io.Writer) Option {
	return func(c *Client) { c.streamTee = w }
}

func New(target string, opts ...Option) *Client {
	c := &Client{
		target: strings.TrimRight(target, "/"),
		http:   &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts a message to the streaming endpoint and calls onProgress for
// every progress update until the server reports completion.
func (c *Client) Send(ctx context.Context, profileID string, req ingest.MessageRequest, onProgress func(pipeline.Progress)) (*ingest.MessageResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := c.profileURL(profileID, "messages/stream")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var reader *sse.Reader
	if c.streamTee != nil {
		reader = sse.NewTeeReader(resp.Body, c.streamTee)
	} else {
		reader = sse.NewReader(resp.Body)
	}

	for {
		ev, err := reader.Next()
		if err != nil {
			return nil, fmt.Errorf("reading stream: %w", err)
		}
		if ev == nil {
			return nil, errors.New("stream ended before the message completed")
		}

		switch ev.Type {
		case sse.EventProgress:
			var p pipeline.Progress
			if err := ev.Decode(&p); err == nil && onProgress != nil {
				onProgress(p)
			}
		case sse.EventComplete:
			var out ingest.MessageResponse
			if err := ev.Decode(&out); err != nil {
				return nil, fmt.Errorf("decoding completion: %w", err)
			}
			return &out, nil
		case sse.EventError:
			var e llm.ErrorResponse
			if err := ev.Decode(&e); err != nil {
				return nil, fmt.Errorf("decoding stream error: %w", err)
			}
			return nil, errors.New(e.Error)
		}
	}
}

// History fetches one page of a profile's conversation.
func (c *Client) History(ctx context.Context, profileID string, page, pageSize int) (*storage.MessagePage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}

	var out storage.MessagePage
	if err := c.getJSON(ctx, c.profileURL(profileID, "messages")+"?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Timeline fetches a profile's timeline, newest first.
func (c *Client) Timeline(ctx context.Context, profileID string, limit, offset int) (*TimelinePage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	endpoint := c.profileURL(profileID, "timeline")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var out TimelinePage
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling nestlog API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) profileURL(profileID, path string) string {
	return c.target + "/v1/profiles/" + url.PathEscape(profileID) + "/" + path
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var e llm.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
