// Package anthropic implements llm.Gateway against the Anthropic Messages API.
package anthropic

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
	// DefaultBaseURL is the public Anthropic endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-3-5-haiku-latest"

	apiVersion   = "2023-06-01"
	maxTokens    = 2048
	providerName = "anthropic"
)

// Client is an Anthropic-backed model gateway.
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

// Generate sends the prompt to /v1/messages and concatenates the text blocks.
func (c *Client) Generate(ctx context.Context, prompt llm.Prompt) (string, error) {
	reqBody := messagesRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    prompt.System,
		Messages:  []message{{Role: "user", Content: userBlocks(prompt)}},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

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

	var result messagesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if result.Error != nil {
		return "", llm.Unavailable(providerName, errors.New(result.Error.Message))
	}

	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", errors.New("anthropic returned no content")
	}

	return text.String(), nil
}

func userBlocks(prompt llm.Prompt) []contentBlock {
	var blocks []contentBlock
	var others []llm.Attachment

	for _, a := range prompt.Attachments {
		switch {
		case a.IsImage():
			blocks = append(blocks, contentBlock{Type: "image", Source: &blockSource{Type: "url", URL: a.URL}})
		case a.MediaType == "application/pdf":
			blocks = append(blocks, contentBlock{Type: "document", Source: &blockSource{Type: "url", URL: a.URL}})
		default:
			others = append(others, a)
		}
	}

	text := prompt.UserContent()
	if lines := llm.AttachmentLines(others); lines != "" {
		text += "\n\n" + lines
	}
	text += "\n\nReturn ONLY valid JSON, no markdown or extra text."

	return append(blocks, contentBlock{Type: "text", Text: text})
}
