package llm_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/nestlog/pkg/llm"
)

var _ = Describe("ExtractJSON", func() {
	It("returns a bare JSON object unchanged", func() {
		out, err := llm.ExtractJSON(`{"category":"question"}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"category":"question"}`))
	})

	It("strips a json code fence", func() {
		out, err := llm.ExtractJSON("```json\n{\"a\": 1}\n```")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"a": 1}`))
	})

	It("strips a fence without an info string", func() {
		out, err := llm.ExtractJSON("```\n{\"a\": 1}\n```")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"a": 1}`))
	})

	It("falls back to the outermost braces when prose surrounds the object", func() {
		out, err := llm.ExtractJSON(`Sure! Here you go: {"events": [{"type": "bottle"}]} Let me know.`)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"events": [{"type": "bottle"}]}`))
	})

	It("returns ErrNoJSON for garbage", func() {
		_, err := llm.ExtractJSON("I could not understand that")
		Expect(err).To(MatchError(llm.ErrNoJSON))
	})

	It("returns ErrNoJSON for truncated objects", func() {
		_, err := llm.ExtractJSON(`{"events": [`)
		Expect(err).To(MatchError(llm.ErrNoJSON))
	})

	It("returns ErrNoJSON for a top level array", func() {
		_, err := llm.ExtractJSON(`[1, 2, 3]`)
		Expect(err).To(MatchError(llm.ErrNoJSON))
	})
})

var _ = Describe("DecodeJSONReply", func() {
	type verdict struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}

	It("decodes a fenced reply", func() {
		var v verdict
		Expect(llm.DecodeJSONReply("```json\n{\"category\":\"data_logging\",\"confidence\":0.9}\n```", &v)).To(Succeed())
		Expect(v.Category).To(Equal("data_logging"))
		Expect(v.Confidence).To(Equal(0.9))
	})

	It("wraps type mismatches as ErrNoJSON", func() {
		var v verdict
		err := llm.DecodeJSONReply(`{"category": 7}`, &v)
		Expect(errors.Is(err, llm.ErrNoJSON)).To(BeTrue())
	})
})

var _ = Describe("Prompt", func() {
	It("joins context ahead of the user text", func() {
		p := llm.Prompt{Context: "Child: Mia", User: "she slept"}
		Expect(p.UserContent()).To(Equal("Child: Mia\n\nshe slept"))
		Expect(llm.Prompt{User: "hi"}.UserContent()).To(Equal("hi"))
	})

	It("renders attachment lines", func() {
		lines := llm.AttachmentLines([]llm.Attachment{
			{URL: "https://files/a.png", MediaType: "image/png"},
			{URL: "https://files/b"},
		})
		Expect(lines).To(Equal("Attachments:\n- https://files/a.png (image/png)\n- https://files/b\n"))
		Expect(llm.AttachmentLines(nil)).To(BeEmpty())
	})
})

var _ = Describe("Unavailable", func() {
	It("matches both the sentinel and the cause", func() {
		cause := context.DeadlineExceeded
		err := llm.Unavailable("ollama", cause)
		Expect(errors.Is(err, llm.ErrUnavailable)).To(BeTrue())
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("ollama"))
	})
})
