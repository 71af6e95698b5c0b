package event_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/nestlog/pkg/event"
)

var _ = Describe("Categories", func() {
	It("parses categories case-insensitively", func() {
		c, ok := event.ParseCategory(" Feeding ")
		Expect(ok).To(BeTrue())
		Expect(c).To(Equal(event.CategoryFeeding))

		_, ok = event.ParseCategory("astrology")
		Expect(ok).To(BeFalse())
	})

	It("normalizes types against the category enumeration", func() {
		Expect(event.NormalizeType(event.CategorySleep, "Night Sleep")).To(Equal("night_sleep"))
		Expect(event.NormalizeType(event.CategoryFeeding, "tummy-time")).To(Equal(event.TypeOther))
	})

	It("gives every category an other fallback", func() {
		for _, c := range event.Categories() {
			Expect(event.Types(c)).To(ContainElement(event.TypeOther), string(c))
		}
	})
})

var _ = Describe("Candidate", func() {
	It("requires a summary and a timestamp", func() {
		c := event.Candidate{Category: event.CategoryFeeding, Type: "bottle"}
		Expect(c.Validate()).To(MatchError(event.ErrMissingSummary))

		c.Summary = "Bottle"
		Expect(c.Validate()).To(MatchError(event.ErrMissingTimestamp))

		c.Timestamp = time.Now()
		Expect(c.Validate()).To(Succeed())
	})
})

var _ = Describe("Payload", func() {
	It("decodes known fields into the typed detail and keeps the rest", func() {
		p, err := event.DecodePayload(event.CategoryFeeding, map[string]any{
			"amount": float64(120),
			"unit":   "ml",
			"brand":  "Hipp",
		})
		Expect(err).NotTo(HaveOccurred())

		detail, ok := p.Detail.(event.FeedingDetail)
		Expect(ok).To(BeTrue())
		Expect(*detail.Amount).To(Equal(120.0))
		Expect(detail.Unit).To(Equal("ml"))
		Expect(p.Extra).To(HaveKeyWithValue("brand", "Hipp"))
	})

	It("splits a number with a unit suffix", func() {
		p, err := event.DecodePayload(event.CategoryFeeding, map[string]any{"amount": "120ml"})
		Expect(err).NotTo(HaveOccurred())

		detail := p.Detail.(event.FeedingDetail)
		Expect(*detail.Amount).To(Equal(120.0))
		Expect(detail.Unit).To(Equal("ml"))
	})

	It("does not let an empty unit erase the parsed suffix", func() {
		p, err := event.DecodePayload(event.CategoryGrowth, map[string]any{"value": "7.5 kg", "unit": ""})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Detail.(event.GrowthDetail).Unit).To(Equal("kg"))
	})

	It("wraps single strings into lists", func() {
		p, err := event.DecodePayload(event.CategoryFeeding, map[string]any{"foods": "rice, peas"})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Detail.(event.FeedingDetail).Foods).To(Equal([]string{"rice", "peas"}))
	})

	It("rejects values that cannot be coerced", func() {
		_, err := event.DecodePayload(event.CategoryFeeding, map[string]any{"amount": "lots"})
		Expect(err).To(MatchError(event.ErrInvalidPayload))
	})

	It("keeps everything as extras for unknown categories", func() {
		p, err := event.DecodePayload("astrology", map[string]any{"sign": "leo"})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Detail).To(BeNil())
		Expect(p.Map()).To(Equal(map[string]any{"sign": "leo"}))
	})

	It("round-trips through the generic map", func() {
		in := map[string]any{"symptom": "cough", "temperature": 38.2, "unit": "C", "notes": "worse at night"}
		p, err := event.DecodePayload(event.CategoryHealth, in)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Map()).To(Equal(in))
	})
})
