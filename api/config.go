// Package api provides the HTTP API for submitting parent messages and
// reading back what was recorded from them.
package api

import (
	"log/slog"
	"net/http"

	"github.com/papercomputeco/nestlog/pkg/metrics"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	Service Ingester

	// Sweeper is optional; without it the sweep endpoint is unavailable.
	Sweeper Sweeper

	// SweepLimit bounds an on-demand sweep. Defaults to 100.
	SweepLimit int

	// Metrics, when set, is served on /metrics.
	Metrics *metrics.Metrics

	// MCPHandler, when set, is mounted on /mcp.
	MCPHandler http.Handler

	Logger *slog.Logger
}
