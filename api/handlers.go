package api

import (
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/nestlog/pkg/ingest"
	"github.com/papercomputeco/nestlog/pkg/llm"
	"github.com/papercomputeco/nestlog/pkg/sse"
	"github.com/papercomputeco/nestlog/pkg/storage"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleSubmitMessage handles POST /v1/profiles/:profileId/messages.
func (s *Server) handleSubmitMessage(c *fiber.Ctx) error {
	req, err := parseMessage(c, ingest.TransportHTTP)
	if err != nil {
		return s.fail(c, err)
	}

	resp, err := s.service.Submit(c.Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(resp)
}

// handleStreamMessage handles POST /v1/profiles/:profileId/messages/stream.
// Progress is sent as "progress" events, followed by one "complete" or
// "error" event.
func (s *Server) handleStreamMessage(c *fiber.Ctx) error {
	req, err := parseMessage(c, ingest.TransportStream)
	if err != nil {
		return s.fail(c, err)
	}

	// the request context is recycled once the handler returns
	st, err := s.service.SubmitStream(c.UserContext(), req)
	if err != nil {
		return s.fail(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// io.Pipe rather than SetBodyStreamWriter so every event reaches the
	// socket as soon as it is written.
	pr, pw := io.Pipe()
	go s.pumpStream(st, pw)
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// pumpStream forwards progress to the client until processing finishes. A
// client that goes away is abandoned; processing still runs to the end.
func (s *Server) pumpStream(st *ingest.Stream, pw *io.PipeWriter) {
	defer pw.Close()

	gone := false
	for p := range st.Updates() {
		if gone {
			continue
		}
		if err := sse.EncodeJSON(pw, sse.EventProgress, p); err != nil {
			s.logger.Debug("stream client went away", "error", err)
			gone = true
			st.Abandon()
		}
	}

	resp, err := st.Wait()
	if gone {
		return
	}
	if err != nil {
		_ = sse.EncodeJSON(pw, sse.EventError, llm.ErrorResponse{Error: err.Error()})
		return
	}
	_ = sse.EncodeJSON(pw, sse.EventComplete, resp)
}

// handleHistory handles GET /v1/profiles/:profileId/messages.
// Query parameters:
//   - page (optional, default 0): 0 is the most recent page
//   - pageSize (optional, default 20)
func (s *Server) handleHistory(c *fiber.Ctx) error {
	page, err := queryInt(c, "page", 0)
	if err != nil {
		return s.fail(c, err)
	}
	pageSize, err := queryInt(c, "pageSize", 0)
	if err != nil {
		return s.fail(c, err)
	}

	history, err := s.service.History(c.Context(), c.Params("profileId"), page, pageSize)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(history)
}

// handleTimeline handles GET /v1/profiles/:profileId/timeline.
func (s *Server) handleTimeline(c *fiber.Ctx) error {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return s.fail(c, err)
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return s.fail(c, err)
	}

	items, err := s.service.Timeline(c.Context(), c.Params("profileId"), limit, offset)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"count":   len(items),
		"entries": items,
	})
}

// handleOriginDetail handles GET /v1/origin-events/:id.
func (s *Server) handleOriginDetail(c *fiber.Ctx) error {
	detail, err := s.service.OriginDetail(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(detail)
}

// handleIntake handles POST /v1/events/intake.
func (s *Server) handleIntake(c *fiber.Ctx) error {
	var req ingest.IntakeRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, &ingest.ValidationError{Message: "invalid request body"})
	}

	resp, err := s.service.Intake(c.Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	status := fiber.StatusOK
	if resp.Created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(resp)
}

// handleSweep handles POST /v1/projector/sweep.
func (s *Server) handleSweep(c *fiber.Ctx) error {
	if s.config.Sweeper == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(llm.ErrorResponse{
			Error: "projector sweep is not configured",
		})
	}

	limit, err := queryInt(c, "limit", s.config.SweepLimit)
	if err != nil {
		return s.fail(c, err)
	}

	res, err := s.config.Sweeper.Sweep(c.Context(), limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(res)
}

func parseMessage(c *fiber.Ctx, transport string) (ingest.MessageRequest, error) {
	var req ingest.MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return req, &ingest.ValidationError{Message: "invalid request body"}
	}
	req.ProfileID = c.Params("profileId")
	req.Transport = transport
	return req, nil
}

func queryInt(c *fiber.Ctx, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, &ingest.ValidationError{Field: name, Message: "must be a non-negative integer"}
	}
	return v, nil
}

// fail maps err onto a status code and writes it as an ErrorResponse.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
	}
	return c.Status(status).JSON(llm.ErrorResponse{Error: err.Error()})
}

// statusFor maps validation errors to 400, missing records to 404 and
// external ids owned by another profile to 409. Persistence failures and
// anything unexpected are 500s.
func statusFor(err error) int {
	switch {
	case ingest.IsValidation(err):
		return fiber.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ingest.ErrExternalIDConflict):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}
