// Package llm is the generative model gateway: it sends a prompt to an
// external language model and returns the raw text reply. Replies are not
// trusted to be well-formed; DecodeJSONReply recovers structured output.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Attachment is a reference to a file the model may look at.
type Attachment struct {
	URL       string `json:"url"`
	MediaType string `json:"mediaType,omitempty"`
	Name      string `json:"name,omitempty"`
}

// IsImage reports whether the attachment can be sent as an image part.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MediaType, "image/")
}

// Prompt is one model request: fixed system instructions, dynamic context
// assembled per message, and the user's text.
type Prompt struct {
	System      string
	Context     string
	User        string
	Attachments []Attachment
}

// UserContent joins the dynamic context and user text in the order every
// provider sends them.
func (p Prompt) UserContent() string {
	if p.Context == "" {
		return p.User
	}
	return p.Context + "\n\n" + p.User
}

// AttachmentLines renders attachments as plain text for providers or media
// types that cannot take them natively.
func AttachmentLines(attachments []Attachment) string {
	if len(attachments) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Attachments:\n")
	for _, a := range attachments {
		fmt.Fprintf(&b, "- %s", a.URL)
		if a.MediaType != "" {
			fmt.Fprintf(&b, " (%s)", a.MediaType)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Gateway generates text from a prompt.
type Gateway interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, prompt Prompt) (string, error)

// Generate calls f.
func (f GatewayFunc) Generate(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}

// ErrUnavailable marks failures reaching the model: network errors,
// timeouts and non-success statuses.
var ErrUnavailable = errors.New("model gateway unavailable")

// Unavailable wraps err so errors.Is(err, ErrUnavailable) holds.
func Unavailable(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, provider, err)
}

// ErrorResponse is the JSON error body returned by the HTTP API.
type ErrorResponse struct {
	Error string `json:"error"`
}
