package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/nestlog/pkg/ingest"
	"github.com/papercomputeco/nestlog/pkg/llm"
	"github.com/papercomputeco/nestlog/pkg/logger"
	"github.com/papercomputeco/nestlog/pkg/metrics"
	"github.com/papercomputeco/nestlog/pkg/pipeline"
	"github.com/papercomputeco/nestlog/pkg/projector"
	"github.com/papercomputeco/nestlog/pkg/sse"
	"github.com/papercomputeco/nestlog/pkg/storage"
	"github.com/papercomputeco/nestlog/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/nestlog/pkg/utils/test"
)

const formulaReply = `{"events": [{"category": "feeding", "type": "formula",
	"timeReference": "at 2pm", "summary": "Drank 120ml formula", "confidence": 0.9,
	"details": {"amount": "120ml"}}]}`

type stubSweeper struct {
	limits []int
}

func (s *stubSweeper) Sweep(_ context.Context, limit int) (projector.SweepResult, error) {
	s.limits = append(s.limits, limit)
	return projector.SweepResult{Scanned: 2, Projected: 2}, nil
}

// erroringService fails every call with err.
type erroringService struct {
	err error
}

func (e erroringService) Submit(context.Context, ingest.MessageRequest) (*ingest.MessageResponse, error) {
	return nil, e.err
}

func (e erroringService) SubmitStream(context.Context, ingest.MessageRequest) (*ingest.Stream, error) {
	return nil, e.err
}

func (e erroringService) Intake(context.Context, ingest.IntakeRequest) (*ingest.IntakeResponse, error) {
	return nil, e.err
}

func (e erroringService) History(context.Context, string, int, int) (*storage.MessagePage, error) {
	return nil, e.err
}

func (e erroringService) Timeline(context.Context, string, int, int) ([]ingest.TimelineItem, error) {
	return nil, e.err
}

func (e erroringService) OriginDetail(context.Context, string) (*ingest.OriginDetail, error) {
	return nil, e.err
}

func doJSON(s *Server, method, path string, body any) *http.Response {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		r = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func decode[T any](resp *http.Response) T {
	defer resp.Body.Close()
	var v T
	Expect(json.NewDecoder(resp.Body).Decode(&v)).To(Succeed())
	return v
}

var _ = Describe("Server", func() {
	var (
		store   *inmemory.Driver
		gw      *testutils.ScriptedGateway
		sweeper *stubSweeper
		server  *Server
	)

	BeforeEach(func() {
		store = inmemory.NewDriver()
		gw = testutils.NewScriptedGateway()
		sweeper = &stubSweeper{}

		orch, err := pipeline.New(pipeline.Config{Gateway: gw, StageTimeout: time.Second, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		proj, err := projector.New(projector.Config{Store: store, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		svc, err := ingest.NewService(ingest.Config{
			Store:     store,
			Pipeline:  orch,
			Projector: proj,
			Clock:     func() time.Time { return time.Date(2025, time.June, 10, 15, 30, 0, 0, time.UTC) },
			Logger:    logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		server, err = NewServer(Config{
			ListenAddr: ":0",
			Service:    svc,
			Sweeper:    sweeper,
			Metrics:    metrics.New(),
			Logger:     logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a service", func() {
		_, err := NewServer(Config{})
		Expect(err).To(HaveOccurred())
	})

	It("answers ping", func() {
		resp := doJSON(server, http.MethodGet, "/ping", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(decode[string](resp)).To(Equal("pong"))
	})

	It("serves metrics", func() {
		resp := doJSON(server, http.MethodGet, "/metrics", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring("go_goroutines"))
	})

	Describe("POST /v1/profiles/:profileId/messages", func() {
		It("ingests a message and returns the reply", func() {
			gw.Classify(`{"category": "data_logging", "confidence": 0.95}`).Extract(formulaReply)

			resp := doJSON(server, http.MethodPost, "/v1/profiles/p1/messages", map[string]any{
				"userId":  "u1",
				"message": "Baby drank 120ml formula at 2pm",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			out := decode[map[string]any](resp)
			Expect(out).To(HaveKeyWithValue("eventCount", BeNumerically("==", 1)))
			Expect(out).To(HaveKeyWithValue("timelineEntriesCreated", BeNumerically("==", 1)))
			Expect(out).To(HaveKeyWithValue("classification", "data_logging"))
			Expect(out).To(HaveKeyWithValue("clarificationQuestions", BeEmpty()))
			Expect(out["originEventId"]).NotTo(BeEmpty())

			timeline := doJSON(server, http.MethodGet, "/v1/profiles/p1/timeline", nil)
			Expect(timeline.StatusCode).To(Equal(http.StatusOK))
			Expect(decode[map[string]any](timeline)).To(HaveKeyWithValue("count", BeNumerically("==", 1)))

			history := doJSON(server, http.MethodGet, "/v1/profiles/p1/messages?page=0&pageSize=10", nil)
			Expect(history.StatusCode).To(Equal(http.StatusOK))
			page := decode[storage.MessagePage](history)
			Expect(page.Messages).To(HaveLen(2))

			detail := doJSON(server, http.MethodGet, "/v1/origin-events/"+out["originEventId"].(string), nil)
			Expect(detail.StatusCode).To(Equal(http.StatusOK))
		})

		It("rejects an empty message with 400", func() {
			resp := doJSON(server, http.MethodPost, "/v1/profiles/p1/messages", map[string]any{"message": ""})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decode[llm.ErrorResponse](resp).Error).To(ContainSubstring("message"))
		})

		It("rejects a malformed body with 400", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/profiles/p1/messages", strings.NewReader("{nope"))
			req.Header.Set("Content-Type", "application/json")
			resp, err := server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /v1/profiles/:profileId/messages/stream", func() {
		It("streams progress and completes", func() {
			gw.Classify(`{"category": "data_logging", "confidence": 0.95}`).Extract(formulaReply)

			resp := doJSON(server, http.MethodPost, "/v1/profiles/p1/messages/stream", map[string]any{
				"message": "Baby drank 120ml formula at 2pm",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
			defer resp.Body.Close()

			var events []*sse.Event
			r := sse.NewReader(resp.Body)
			for {
				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				if ev == nil {
					break
				}
				events = append(events, ev)
			}

			Expect(len(events)).To(BeNumerically(">", 2))
			Expect(events[0].Type).To(Equal(sse.EventProgress))

			last := events[len(events)-1]
			Expect(last.Type).To(Equal(sse.EventComplete))
			var done ingest.MessageResponse
			Expect(last.Decode(&done)).To(Succeed())
			Expect(done.EventCount).To(Equal(1))
		})

		It("validates before streaming", func() {
			resp := doJSON(server, http.MethodPost, "/v1/profiles/p1/messages/stream", map[string]any{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /v1/events/intake", func() {
		body := map[string]any{
			"profileId":    "p1",
			"originalText": "slept 1-3pm",
			"replyText":    "Logged.",
			"externalId":   "ext-1",
			"sourceType":   "import",
			"candidateEvents": []map[string]any{{
				"category":   "sleep",
				"type":       "nap",
				"timestamp":  "2025-06-10T13:00:00Z",
				"summary":    "Napped two hours",
				"confidence": 0.9,
			}},
		}

		It("appends once per external id", func() {
			first := doJSON(server, http.MethodPost, "/v1/events/intake", body)
			Expect(first.StatusCode).To(Equal(http.StatusCreated))
			created := decode[ingest.IntakeResponse](first)
			Expect(created.Success).To(BeTrue())
			Expect(created.TimelineEntriesCreated).To(Equal(1))

			again := doJSON(server, http.MethodPost, "/v1/events/intake", body)
			Expect(again.StatusCode).To(Equal(http.StatusOK))
			dup := decode[ingest.IntakeResponse](again)
			Expect(dup.OriginEventID).To(Equal(created.OriginEventID))
			Expect(dup.Created).To(BeFalse())
		})

		It("refuses an external id already recorded for another profile", func() {
			first := doJSON(server, http.MethodPost, "/v1/events/intake", body)
			Expect(first.StatusCode).To(Equal(http.StatusCreated))

			other := map[string]any{}
			for k, v := range body {
				other[k] = v
			}
			other["profileId"] = "p2"

			resp := doJSON(server, http.MethodPost, "/v1/events/intake", other)
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			Expect(decode[llm.ErrorResponse](resp).Error).To(ContainSubstring("another profile"))
		})

		It("rejects unknown categories", func() {
			bad := map[string]any{
				"profileId":       "p1",
				"candidateEvents": []map[string]any{{"category": "astrology", "summary": "x", "timestamp": "2025-06-10T13:00:00Z"}},
			}
			resp := doJSON(server, http.MethodPost, "/v1/events/intake", bad)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decode[llm.ErrorResponse](resp).Error).To(ContainSubstring("candidateEvents[0].category"))
		})
	})

	Describe("GET /v1/origin-events/:id", func() {
		It("returns 404 for unknown ids", func() {
			resp := doJSON(server, http.MethodGet, "/v1/origin-events/nope", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /v1/profiles/:profileId/timeline", func() {
		It("rejects malformed paging", func() {
			resp := doJSON(server, http.MethodGet, "/v1/profiles/p1/timeline?limit=lots", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /v1/projector/sweep", func() {
		It("runs a sweep with the configured limit", func() {
			resp := doJSON(server, http.MethodPost, "/v1/projector/sweep", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode[projector.SweepResult](resp).Projected).To(Equal(2))
			Expect(sweeper.limits).To(Equal([]int{defaultSweepLimit}))
		})

		It("is unavailable without a sweeper", func() {
			s, err := NewServer(Config{Service: erroringService{}})
			Expect(err).NotTo(HaveOccurred())
			resp := doJSON(s, http.MethodPost, "/v1/projector/sweep", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})
	})

	DescribeTable("maps service errors onto status codes",
		func(err error, status int) {
			s, serr := NewServer(Config{Service: erroringService{err: err}})
			Expect(serr).NotTo(HaveOccurred())

			resp := doJSON(s, http.MethodGet, "/v1/profiles/p1/messages", nil)
			Expect(resp.StatusCode).To(Equal(status))
			Expect(decode[llm.ErrorResponse](resp).Error).NotTo(BeEmpty())
		},
		Entry("validation", &ingest.ValidationError{Field: "profileId", Message: "is required"}, http.StatusBadRequest),
		Entry("not found", storage.NotFoundError{Kind: "profile", ID: "p1"}, http.StatusNotFound),
		Entry("persistence", &storage.PersistenceError{Op: "list messages", Err: errors.New("locked")}, http.StatusInternalServerError),
		Entry("unexpected", errors.New("boom"), http.StatusInternalServerError),
	)
})
