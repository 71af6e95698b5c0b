// Package mcp provides an MCP (Model Context Protocol) server so agents can
// log messages for a child and read back the recorded timeline.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/nestlog/pkg/ingest"
	"github.com/papercomputeco/nestlog/pkg/utils"
)

// Ingester is the part of the ingestion service the tools use.
type Ingester interface {
	Submit(ctx context.Context, req ingest.MessageRequest) (*ingest.MessageResponse, error)
	Timeline(ctx context.Context, profileID string, limit, offset int) ([]ingest.TimelineItem, error)
}

type Config struct {
	Service Ingester

	// Noop for an MCP server without tools
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the nestlog tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "nestlog",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Service == nil {
			return nil, errors.New("ingestion service is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        logMessageToolName,
			Description: logMessageDescription,
		}, s.handleLogMessage)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        recentTimelineToolName,
			Description: recentTimelineDescription,
		}, s.handleRecentTimeline)
	}

	s.mcpServer = mcpServer

	// stateless streamable HTTP, mounted by the API server on /mcp
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func toolError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
