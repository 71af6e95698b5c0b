package client_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/nestlog/pkg/client"
	"github.com/papercomputeco/nestlog/pkg/ingest"
	"github.com/papercomputeco/nestlog/pkg/llm"
	"github.com/papercomputeco/nestlog/pkg/pipeline"
	"github.com/papercomputeco/nestlog/pkg/sse"
	"github.com/papercomputeco/nestlog/pkg/storage"
)

var _ = Describe("Client", func() {
	var (
		ctx    context.Context
		mux    *http.ServeMux
		server *httptest.Server
		c      *client.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		mux = http.NewServeMux()
		server = httptest.NewServer(mux)
		c = client.New(server.URL + "/")
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Send", func() {
		It("reports progress and returns the completion", func() {
			var got ingest.MessageRequest
			mux.HandleFunc("POST /v1/profiles/child-1/messages/stream", func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(json.NewDecoder(r.Body).Decode(&got)).To(Succeed())
				w.Header().Set("Content-Type", "text/event-stream")
				_ = sse.EncodeJSON(w, sse.EventProgress, pipeline.Progress{Stage: pipeline.StageContext, Status: pipeline.StatusStarted})
				_ = sse.EncodeJSON(w, sse.EventProgress, pipeline.Progress{Stage: pipeline.StageContext, Status: pipeline.StatusCompleted})
				_ = sse.EncodeJSON(w, sse.EventComplete, ingest.MessageResponse{MessageID: "m1", Reply: "Noted!", EventCount: 1})
			})

			var stages []string
			resp, err := c.Send(ctx, "child-1", ingest.MessageRequest{Message: "she napped at 2"}, func(p pipeline.Progress) {
				stages = append(stages, p.Stage+":"+p.Status)
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.MessageID).To(Equal("m1"))
			Expect(resp.Reply).To(Equal("Noted!"))
			Expect(stages).To(Equal([]string{"context:started", "context:completed"}))
			Expect(got.Message).To(Equal("she napped at 2"))
		})

		It("copies the raw stream to the tee", func() {
			mux.HandleFunc("POST /v1/profiles/child-1/messages/stream", func(w http.ResponseWriter, _ *http.Request) {
				defer GinkgoRecover()
				_ = sse.EncodeJSON(w, sse.EventComplete, ingest.MessageResponse{MessageID: "m1"})
			})

			var raw bytes.Buffer
			c = client.New(server.URL, client.WithStreamTee(&raw))
			_, err := c.Send(ctx, "child-1", ingest.MessageRequest{Message: "hi"}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(raw.String()).To(ContainSubstring("event: complete"))
		})

		It("returns the message of an error event", func() {
			mux.HandleFunc("POST /v1/profiles/child-1/messages/stream", func(w http.ResponseWriter, _ *http.Request) {
				defer GinkgoRecover()
				_ = sse.EncodeJSON(w, sse.EventError, llm.ErrorResponse{Error: "create origin event: disk full"})
			})

			_, err := c.Send(ctx, "child-1", ingest.MessageRequest{Message: "hi"}, nil)
			Expect(err).To(MatchError(ContainSubstring("disk full")))
		})

		It("fails when the stream ends without a completion", func() {
			mux.HandleFunc("POST /v1/profiles/child-1/messages/stream", func(w http.ResponseWriter, _ *http.Request) {
				defer GinkgoRecover()
				_ = sse.EncodeJSON(w, sse.EventProgress, pipeline.Progress{Stage: pipeline.StageContext})
			})

			_, err := c.Send(ctx, "child-1", ingest.MessageRequest{Message: "hi"}, nil)
			Expect(err).To(MatchError(ContainSubstring("stream ended")))
		})

		It("surfaces validation failures as APIError", func() {
			mux.HandleFunc("POST /v1/profiles/child-1/messages/stream", func(w http.ResponseWriter, _ *http.Request) {
				defer GinkgoRecover()
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(llm.ErrorResponse{Error: "message: must not be empty"})
			})

			_, err := c.Send(ctx, "child-1", ingest.MessageRequest{}, nil)
			var apiErr *client.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.Status).To(Equal(http.StatusBadRequest))
			Expect(apiErr.Message).To(Equal("message: must not be empty"))
		})
	})

	Describe("History", func() {
		It("passes paging parameters", func() {
			mux.HandleFunc("GET /v1/profiles/child-1/messages", func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(r.URL.Query().Get("page")).To(Equal("2"))
				Expect(r.URL.Query().Get("pageSize")).To(Equal("5"))
				_ = json.NewEncoder(w).Encode(storage.MessagePage{
					Messages: []*storage.Message{{ID: "m1", Role: storage.RoleUser, Text: "hello"}},
					Page:     2,
					PageSize: 5,
					Total:    11,
				})
			})

			page, err := c.History(ctx, "child-1", 2, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Total).To(Equal(11))
			Expect(page.Messages).To(HaveLen(1))
			Expect(page.Messages[0].Text).To(Equal("hello"))
		})
	})

	Describe("Timeline", func() {
		It("decodes entries with their attachments", func() {
			mux.HandleFunc("GET /v1/profiles/child-1/timeline", func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(r.URL.Query().Get("limit")).To(Equal("10"))
				_, _ = w.Write([]byte(`{"count":1,"entries":[{"id":"t1","title":"Nap","category":"sleep","attachments":[{"id":"a1","url":"https://files/a1"}]}]}`))
			})

			page, err := c.Timeline(ctx, "child-1", 10, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Count).To(Equal(1))
			Expect(page.Entries[0].Title).To(Equal("Nap"))
			Expect(page.Entries[0].Attachments).To(HaveLen(1))
			Expect(page.Entries[0].Attachments[0].URL).To(Equal("https://files/a1"))
		})

		It("surfaces plain-text failures", func() {
			mux.HandleFunc("GET /v1/profiles/child-1/timeline", func(w http.ResponseWriter, _ *http.Request) {
				defer GinkgoRecover()
				http.Error(w, "upstream exploded", http.StatusBadGateway)
			})

			_, err := c.Timeline(ctx, "child-1", 0, 0)
			Expect(err).To(MatchError(ContainSubstring("upstream exploded")))
		})
	})
})
