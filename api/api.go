package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/papercomputeco/nestlog/pkg/ingest"
	"github.com/papercomputeco/nestlog/pkg/logger"
	"github.com/papercomputeco/nestlog/pkg/projector"
	"github.com/papercomputeco/nestlog/pkg/storage"
)

const defaultSweepLimit = 100

// Ingester is the ingestion service behind the API.
type Ingester interface {
	Submit(ctx context.Context, req ingest.MessageRequest) (*ingest.MessageResponse, error)
	SubmitStream(ctx context.Context, req ingest.MessageRequest) (*ingest.Stream, error)
	Intake(ctx context.Context, req ingest.IntakeRequest) (*ingest.IntakeResponse, error)
	History(ctx context.Context, profileID string, page, pageSize int) (*storage.MessagePage, error)
	Timeline(ctx context.Context, profileID string, limit, offset int) ([]ingest.TimelineItem, error)
	OriginDetail(ctx context.Context, originID string) (*ingest.OriginDetail, error)
}

// Sweeper re-projects unprocessed origin events on demand.
type Sweeper interface {
	Sweep(ctx context.Context, limit int) (projector.SweepResult, error)
}

// Server is the nestlog API server.
type Server struct {
	config  Config
	service Ingester
	logger  *slog.Logger
	app     *fiber.App
}

// NewServer creates a new API server.
func NewServer(config Config) (*Server, error) {
	if config.Service == nil {
		return nil, errors.New("api server requires an ingestion service")
	}
	if config.SweepLimit <= 0 {
		config.SweepLimit = defaultSweepLimit
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	s := &Server{
		config:  config,
		service: config.Service,
		logger:  config.Logger,
		app:     app,
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Post("/profiles/:profileId/messages", s.handleSubmitMessage)
	v1.Post("/profiles/:profileId/messages/stream", s.handleStreamMessage)

	// reads can be large; the stream route stays uncompressed so events are
	// not held back by the encoder
	gz := compress.New()
	v1.Get("/profiles/:profileId/messages", gz, s.handleHistory)
	v1.Get("/profiles/:profileId/timeline", gz, s.handleTimeline)
	v1.Get("/origin-events/:id", gz, s.handleOriginDetail)
	v1.Post("/events/intake", s.handleIntake)
	v1.Post("/projector/sweep", s.handleSweep)

	if config.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(config.Metrics.Handler()))
	}
	if config.MCPHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCPHandler))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
