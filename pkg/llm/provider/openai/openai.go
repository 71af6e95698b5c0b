// Package openai implements llm.Gateway against the OpenAI chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/nestlog/pkg/llm"
)

const (
	// DefaultBaseURL is the public OpenAI endpoint.
	DefaultBaseURL = "https://api.openai.com"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-mini"

	providerName = "openai"
)

// Client is an OpenAI-backed model gateway.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	timeout time.Duration
	http    *http.Client
}

var _ llm.Gateway = (*Client)(nil)

// New creates a Client. Empty model and baseURL fall back to the defaults.
func New(apiKey, model, baseURL string, timeout time.Duration) *Client {
	if model == "" {
		model = DefaultModel
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    http.DefaultClient,
	}
}

// Generate sends the prompt as a JSON-mode chat completion.
func (c *Client) Generate(ctx context.Context, prompt llm.Prompt) (string, error) {
	reqBody := chatRequest{
		Model:          c.model,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	if prompt.System != "" {
		reqBody.Messages = append(reqBody.Messages, message{Role: "system", Content: prompt.System})
	}
	reqBody.Messages = append(reqBody.Messages, message{Role: "user", Content: userContent(prompt)})

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", llm.Unavailable(providerName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", llm.Unavailable(providerName, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", llm.Unavailable(providerName, fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if result.Error != nil {
		return "", llm.Unavailable(providerName, errors.New(result.Error.Message))
	}

	if len(result.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}

	return result.Choices[0].Message.Content, nil
}

// userContent is a plain string unless images need to ride along as parts.
func userContent(prompt llm.Prompt) any {
	text := prompt.UserContent()

	var images []llm.Attachment
	var others []llm.Attachment
	for _, a := range prompt.Attachments {
		if a.IsImage() {
			images = append(images, a)
		} else {
			others = append(others, a)
		}
	}
	if lines := llm.AttachmentLines(others); lines != "" {
		text += "\n\n" + lines
	}
	if len(images) == 0 {
		return text
	}

	parts := []contentPart{{Type: "text", Text: text}}
	for _, img := range images {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: img.URL}})
	}
	return parts
}
