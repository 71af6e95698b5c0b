package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/nestlog/pkg/llm"
	"github.com/papercomputeco/nestlog/pkg/llm/provider"
	"github.com/papercomputeco/nestlog/pkg/llm/provider/anthropic"
	"github.com/papercomputeco/nestlog/pkg/llm/provider/ollama"
	"github.com/papercomputeco/nestlog/pkg/llm/provider/openai"
)

var _ = Describe("New", func() {
	BeforeEach(func() {
		GinkgoT().Setenv("OPENAI_API_KEY", "")
		GinkgoT().Setenv("ANTHROPIC_API_KEY", "")
	})

	It("falls back to ollama when no key is available", func() {
		gw, err := provider.New(provider.Config{Provider: "openai"})
		Expect(err).NotTo(HaveOccurred())
		Expect(gw).To(BeAssignableToTypeOf(&ollama.Client{}))
	})

	It("uses the key from the environment", func() {
		GinkgoT().Setenv("ANTHROPIC_API_KEY", "env-key")
		gw, err := provider.New(provider.Config{Provider: "anthropic"})
		Expect(err).NotTo(HaveOccurred())
		Expect(gw).To(BeAssignableToTypeOf(&anthropic.Client{}))
	})

	It("creates an openai gateway with an explicit key", func() {
		gw, err := provider.New(provider.Config{Provider: "OpenAI", APIKey: "k"})
		Expect(err).NotTo(HaveOccurred())
		Expect(gw).To(BeAssignableToTypeOf(&openai.Client{}))
	})

	It("defaults to ollama when no provider is named", func() {
		gw, err := provider.New(provider.Config{})
		Expect(err).NotTo(HaveOccurred())
		Expect(gw).To(BeAssignableToTypeOf(&ollama.Client{}))
	})

	It("rejects unsupported providers", func() {
		_, err := provider.New(provider.Config{Provider: "bedrock", APIKey: "k"})
		Expect(err).To(MatchError(ContainSubstring("unsupported provider")))
	})
})

var _ = Describe("OpenAI client", func() {
	It("sends a JSON mode chat completion with image parts", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/v1/chat/completions"))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer test-key"))

			var req map[string]any
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			Expect(req["model"]).To(Equal("gpt-4o-mini"))
			Expect(req["response_format"]).To(HaveKeyWithValue("type", "json_object"))

			messages := req["messages"].([]any)
			Expect(messages).To(HaveLen(2))
			Expect(messages[0]).To(HaveKeyWithValue("role", "system"))
			parts := messages[1].(map[string]any)["content"].([]any)
			Expect(parts).To(HaveLen(2))
			Expect(parts[1]).To(HaveKeyWithValue("type", "image_url"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
		}))
		defer server.Close()

		client := openai.New("test-key", "", server.URL, time.Second)
		out, err := client.Generate(context.Background(), llm.Prompt{
			System:      "sys",
			User:        "look",
			Attachments: []llm.Attachment{{URL: "https://x/p.jpg", MediaType: "image/jpeg"}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"ok":true}`))
	})

	It("reports non-200 statuses as unavailable", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
		}))
		defer server.Close()

		client := openai.New("test-key", "", server.URL, time.Second)
		_, err := client.Generate(context.Background(), llm.Prompt{User: "hi"})
		Expect(errors.Is(err, llm.ErrUnavailable)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("429"))
	})

	It("errors when no choices are returned", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer server.Close()

		client := openai.New("k", "", server.URL, time.Second)
		_, err := client.Generate(context.Background(), llm.Prompt{User: "hi"})
		Expect(err).To(MatchError(ContainSubstring("no choices")))
	})
})

var _ = Describe("Anthropic client", func() {
	It("sends the system prompt separately and joins text blocks", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/v1/messages"))
			Expect(r.Header.Get("x-api-key")).To(Equal("test-key"))
			Expect(r.Header.Get("anthropic-version")).To(Equal("2023-06-01"))

			var req map[string]any
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			Expect(req["system"]).To(Equal("sys"))
			Expect(req["max_tokens"]).To(BeNumerically(">", 0))

			content := req["messages"].([]any)[0].(map[string]any)["content"].([]any)
			Expect(content).To(HaveLen(2))
			Expect(content[0]).To(HaveKeyWithValue("type", "document"))
			Expect(content[1]).To(HaveKeyWithValue("type", "text"))

			_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"a\":"},{"type":"text","text":"1}"}]}`))
		}))
		defer server.Close()

		client := anthropic.New("test-key", "", server.URL, time.Second)
		out, err := client.Generate(context.Background(), llm.Prompt{
			System:      "sys",
			User:        "report attached",
			Attachments: []llm.Attachment{{URL: "https://x/r.pdf", MediaType: "application/pdf"}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"a":1}`))
	})

	It("surfaces API errors as unavailable", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := anthropic.New("k", "", server.URL, time.Second)
		_, err := client.Generate(context.Background(), llm.Prompt{User: "hi"})
		Expect(errors.Is(err, llm.ErrUnavailable)).To(BeTrue())
	})
})

var _ = Describe("Ollama client", func() {
	It("requests JSON format without streaming", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/api/chat"))

			var req map[string]any
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			Expect(req["format"]).To(Equal("json"))
			Expect(req["stream"]).To(BeFalse())
			Expect(req["model"]).To(Equal("llama3.2"))

			messages := req["messages"].([]any)
			user := messages[len(messages)-1].(map[string]any)["content"].(string)
			Expect(user).To(ContainSubstring("https://x/a.png"))

			_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"{}"},"done":true}`))
		}))
		defer server.Close()

		client := ollama.New("", server.URL, time.Second)
		out, err := client.Generate(context.Background(), llm.Prompt{
			User:        "photo",
			Attachments: []llm.Attachment{{URL: "https://x/a.png", MediaType: "image/png"}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("{}"))
	})

	It("times out slow servers", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer server.Close()

		client := ollama.New("", server.URL, 50*time.Millisecond)
		_, err := client.Generate(context.Background(), llm.Prompt{User: "hi"})
		Expect(errors.Is(err, llm.ErrUnavailable)).To(BeTrue())
	})
})
