package event_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/nestlog/pkg/event"
)

var _ = Describe("Capture", func() {
	It("writes an empty candidate list rather than null", func() {
		raw, err := event.Capture{OriginalText: "hi", ReplyText: "hello"}.Marshal()
		Expect(err).NotTo(HaveOccurred())

		var fields map[string]any
		Expect(json.Unmarshal(raw, &fields)).To(Succeed())
		Expect(fields).To(HaveKeyWithValue("candidateEvents", BeEmpty()))
		Expect(fields["candidateEvents"]).NotTo(BeNil())
	})

	It("reads back what it wrote", func() {
		in := event.Capture{
			MessageID:      "m1",
			OriginalText:   "nap at 10",
			Classification: "data_logging",
			Candidates:     []event.Candidate{{Category: event.CategorySleep, Type: "nap", Summary: "Nap", Confidence: 0.9}},
			Clarifications: []string{"How long was the nap?"},
		}
		raw, err := in.Marshal()
		Expect(err).NotTo(HaveOccurred())

		out, err := event.DecodeCapture(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.MessageID).To(Equal("m1"))
		Expect(out.Candidates).To(HaveLen(1))
		Expect(out.Candidates[0].Category).To(Equal(event.CategorySleep))
		Expect(out.Clarifications).To(ConsistOf("How long was the nap?"))
	})

	It("treats an empty payload as an empty capture", func() {
		out, err := event.DecodeCapture(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Candidates).To(BeEmpty())
	})

	It("rejects a payload that is not JSON", func() {
		_, err := event.DecodeCapture(json.RawMessage("not json"))
		Expect(err).To(MatchError(ContainSubstring("decoding capture")))
	})
})
