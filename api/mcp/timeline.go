package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/nestlog/pkg/ingest"
)

const defaultTimelineLimit = 20

var (
	recentTimelineToolName    = "recent_timeline"
	recentTimelineDescription = "List the latest timeline entries recorded for a child, newest first. Each entry has a type, a record time, a title, a summary and structured detail."
)

// RecentTimelineInput represents the input arguments for the recent_timeline tool.
type RecentTimelineInput struct {
	ProfileID string `json:"profile_id" jsonschema:"the child profile to read"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of entries to return (default 20)"`
}

// TimelineEntry is one entry of the recent_timeline output.
type TimelineEntry struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Category    string   `json:"category"`
	RecordTime  string   `json:"record_time"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Tags        []string `json:"tags,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// RecentTimelineOutput represents the structured output of recent_timeline.
type RecentTimelineOutput struct {
	Entries []TimelineEntry `json:"entries"`
	Count   int             `json:"count"`
}

func (s *Server) handleRecentTimeline(ctx context.Context, _ *mcp.CallToolRequest, input RecentTimelineInput) (*mcp.CallToolResult, RecentTimelineOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultTimelineLimit
	}

	items, err := s.config.Service.Timeline(ctx, input.ProfileID, limit, 0)
	if err != nil {
		return toolError(fmt.Sprintf("Timeline failed: %v", err)), RecentTimelineOutput{}, nil
	}
	output := RecentTimelineOutput{Entries: make([]TimelineEntry, 0, len(items))}
	for _, item := range items {
		output.Entries = append(output.Entries, toTimelineEntry(item))
	}
	output.Count = len(output.Entries)

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), RecentTimelineOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

func toTimelineEntry(item ingest.TimelineItem) TimelineEntry {
	e := TimelineEntry{
		ID:         item.ID,
		Type:       item.Type,
		Category:   item.Category,
		RecordTime: item.RecordTime.Format(time.RFC3339),
		Title:      item.Title,
		Summary:    item.Summary,
		Tags:       item.Tags,
	}
	for _, ref := range item.Attachments {
		e.Attachments = append(e.Attachments, ref.URL)
	}
	return e
}
