package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/nestlog/pkg/ingest"
	"github.com/papercomputeco/nestlog/pkg/logger"
	"github.com/papercomputeco/nestlog/pkg/storage"
)

type recordingService struct {
	submitted []ingest.MessageRequest
	limits    []int
	items     []ingest.TimelineItem
	err       error
}

func (r *recordingService) Submit(_ context.Context, req ingest.MessageRequest) (*ingest.MessageResponse, error) {
	r.submitted = append(r.submitted, req)
	if r.err != nil {
		return nil, r.err
	}
	return &ingest.MessageResponse{Reply: "Got it, I've logged 1 event(s).", EventCount: 1}, nil
}

func (r *recordingService) Timeline(_ context.Context, _ string, limit, _ int) ([]ingest.TimelineItem, error) {
	r.limits = append(r.limits, limit)
	return r.items, r.err
}

var _ = Describe("Tools", func() {
	var (
		svc    *recordingService
		server *Server
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		svc = &recordingService{}

		var err error
		server, err = NewServer(Config{Service: svc, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
	})

	textOf := func(res *mcp.CallToolResult) string {
		Expect(res.Content).To(HaveLen(1))
		tc, ok := res.Content[0].(*mcp.TextContent)
		Expect(ok).To(BeTrue())
		return tc.Text
	}

	Describe("log_message", func() {
		It("submits the message over the mcp transport", func() {
			res, out, err := server.handleLogMessage(ctx, nil, LogMessageInput{ProfileID: "p1", Message: "nap at 1pm", UserID: "u1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(textOf(res)).To(Equal("Got it, I've logged 1 event(s)."))
			Expect(out.EventCount).To(Equal(1))

			Expect(svc.submitted).To(HaveLen(1))
			Expect(svc.submitted[0].Transport).To(Equal(ingest.TransportMCP))
			Expect(svc.submitted[0].UserID).To(Equal("u1"))
		})

		It("reports failures as tool errors", func() {
			svc.err = &ingest.ValidationError{Field: "profileId", Message: "is required"}

			res, _, err := server.handleLogMessage(ctx, nil, LogMessageInput{Message: "hi"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
			Expect(textOf(res)).To(ContainSubstring("profileId: is required"))
		})
	})

	Describe("recent_timeline", func() {
		It("defaults the limit and returns entries as JSON", func() {
			svc.items = []ingest.TimelineItem{{TimelineEntry: &storage.TimelineEntry{
				ID:         "e1",
				Type:       "sleep",
				Title:      "Nap",
				RecordTime: time.Date(2025, time.June, 10, 13, 0, 0, 0, time.UTC),
			}}}

			res, out, err := server.handleRecentTimeline(ctx, nil, RecentTimelineInput{ProfileID: "p1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(out.Count).To(Equal(1))
			Expect(svc.limits).To(Equal([]int{defaultTimelineLimit}))
			Expect(out.Entries[0].RecordTime).To(Equal("2025-06-10T13:00:00Z"))
			Expect(textOf(res)).To(ContainSubstring(`"title":"Nap"`))
		})

		It("returns an empty list rather than null", func() {
			_, out, err := server.handleRecentTimeline(ctx, nil, RecentTimelineInput{ProfileID: "p1", Limit: 5})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Entries).NotTo(BeNil())
			Expect(svc.limits).To(Equal([]int{5}))
		})

		It("reports failures as tool errors", func() {
			svc.err = errors.New("db down")

			res, _, err := server.handleRecentTimeline(ctx, nil, RecentTimelineInput{ProfileID: "p1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
		})
	})
})
