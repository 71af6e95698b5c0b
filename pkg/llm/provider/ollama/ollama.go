// Package ollama implements llm.Gateway against a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/nestlog/pkg/llm"
)

const (
	// DefaultBaseURL is the default local Ollama endpoint.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultModel is used when no model is configured.
	DefaultModel = "llama3.2"

	providerName = "ollama"
)

// Client is an Ollama-backed model gateway. Attachments are passed as URL
// lines since /api/chat only accepts inline base64 images.
type Client struct {
	model   string
	baseURL string
	timeout time.Duration
	http    *http.Client
}

var _ llm.Gateway = (*Client)(nil)

// New creates a Client. Empty model and baseURL fall back to the defaults.
func New(model, baseURL string, timeout time.Duration) *Client {
	if model == "" {
		model = DefaultModel
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    http.DefaultClient,
	}
}

// Generate calls /api/chat in JSON format with streaming disabled.
func (c *Client) Generate(ctx context.Context, prompt llm.Prompt) (string, error) {
	request := chatRequest{
		Model:  c.model,
		Stream: false,
		Format: "json",
	}
	if prompt.System != "" {
		request.Messages = append(request.Messages, chatMessage{Role: "system", Content: prompt.System})
	}
	user := prompt.UserContent()
	if lines := llm.AttachmentLines(prompt.Attachments); lines != "" {
		user += "\n\n" + lines
	}
	request.Messages = append(request.Messages, chatMessage{Role: "user", Content: user})

	payload, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", llm.Unavailable(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", llm.Unavailable(providerName, fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var response chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if response.Error != "" {
		return "", llm.Unavailable(providerName, fmt.Errorf("ollama error: %s", response.Error))
	}

	return response.Message.Content, nil
}
