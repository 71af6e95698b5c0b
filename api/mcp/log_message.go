package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/nestlog/pkg/ingest"
)

var (
	logMessageToolName    = "log_message"
	logMessageDescription = "Log a parent's message about a child, e.g. \"she drank 120ml formula at 2pm\". The message is interpreted, any feeding, sleep, diaper, health, growth, milestone, activity or mood events are recorded on the child's timeline, and the assistant reply is returned."
)

// LogMessageInput represents the input arguments for the log_message tool.
type LogMessageInput struct {
	ProfileID string `json:"profile_id" jsonschema:"the child profile the message is about"`
	Message   string `json:"message" jsonschema:"the parent's message, verbatim"`
	UserID    string `json:"user_id,omitempty" jsonschema:"optional id of the parent sending the message"`
}

// handleLogMessage submits the message synchronously.
func (s *Server) handleLogMessage(ctx context.Context, _ *mcp.CallToolRequest, input LogMessageInput) (*mcp.CallToolResult, ingest.MessageResponse, error) {
	resp, err := s.config.Service.Submit(ctx, ingest.MessageRequest{
		ProfileID: input.ProfileID,
		UserID:    input.UserID,
		Message:   input.Message,
		Transport: ingest.TransportMCP,
	})
	if err != nil {
		if !ingest.IsValidation(err) {
			s.config.Logger.Error("mcp log_message failed", "profile_id", input.ProfileID, "error", err)
		}
		return toolError(fmt.Sprintf("Logging failed: %v", err)), ingest.MessageResponse{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: resp.Reply},
		},
	}, *resp, nil
}
