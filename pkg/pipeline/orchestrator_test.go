package pipeline_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/nestlog/pkg/attachments"
	"github.com/papercomputeco/nestlog/pkg/event"
	"github.com/papercomputeco/nestlog/pkg/llm"
	"github.com/papercomputeco/nestlog/pkg/logger"
	"github.com/papercomputeco/nestlog/pkg/memory"
	"github.com/papercomputeco/nestlog/pkg/metrics"
	"github.com/papercomputeco/nestlog/pkg/pipeline"
	"github.com/papercomputeco/nestlog/pkg/profile"
	testutils "github.com/papercomputeco/nestlog/pkg/utils/test"
)

var _ = Describe("Orchestrator", func() {
	var (
		gw      *testutils.ScriptedGateway
		orch    *pipeline.Orchestrator
		prompts pipeline.Prompts
		now     time.Time
		ctx     context.Context
	)

	request := func(text string) pipeline.Request {
		return pipeline.Request{ProfileID: "p1", Text: text, LocalTime: now}
	}

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2025, time.June, 10, 15, 30, 0, 0, time.UTC)
		prompts = pipeline.DefaultPrompts()
		gw = testutils.NewScriptedGateway()

		var err error
		orch, err = pipeline.New(pipeline.Config{
			Gateway:      gw,
			StageTimeout: 200 * time.Millisecond,
			Logger:       logger.Nop(),
			Metrics:      metrics.New(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a gateway", func() {
		_, err := pipeline.New(pipeline.Config{})
		Expect(err).To(HaveOccurred())
	})

	Describe("canonical messages", func() {
		It("logs a single feed with amount, unit and local time", func() {
			gw.Classify(`{"category": "data_logging", "confidence": 0.95}`).
				Extract("```json\n" + `{"events": [{"category": "feeding", "type": "formula",
					"timestamp": "2025-06-10T09:00:00", "timeReference": "at 2pm",
					"summary": "Drank 120ml formula", "confidence": 0.9,
					"details": {"amount": "120ml"}}]}` + "\n```")

			res := orch.Run(ctx, request("Baby drank 120ml formula at 2pm"), nil)

			Expect(res.Classification.Intent).To(Equal(pipeline.IntentDataLogging))
			Expect(res.Extraction.Candidates).To(HaveLen(1))

			c := res.Extraction.Candidates[0]
			Expect(c.Category).To(Equal(event.CategoryFeeding))
			Expect(c.Type).To(Equal("formula"))
			Expect(c.Timestamp).To(Equal(time.Date(2025, time.June, 10, 14, 0, 0, 0, time.UTC)))

			p, err := c.Payload()
			Expect(err).NotTo(HaveOccurred())
			d, ok := p.Detail.(event.FeedingDetail)
			Expect(ok).To(BeTrue())
			Expect(*d.Amount).To(Equal(120.0))
			Expect(d.Unit).To(Equal("ml"))

			Expect(res.Reply()).To(Equal("Got it, I've logged 1 event(s)."))
			Expect(res.Notes).To(BeEmpty())
		})

		It("answers a question without extracting anything", func() {
			gw.Classify(`{"category": "question", "confidence": 0.9}`)

			res := orch.Run(ctx, request("How much did baby eat today?"), nil)

			Expect(res.Classification.Intent).To(Equal(pipeline.IntentQuestion))
			Expect(res.Extraction.Candidates).To(BeEmpty())
			Expect(res.Reply()).To(Equal(prompts.Replies.Question))
			Expect(gw.CallsFor(prompts.Extractor)).To(BeZero())
		})

		It("merges the foods of one meal into a single candidate", func() {
			gw.Classify(`{"category": "data_logging", "confidence": 0.9}`).
				Extract(`{"events": [
					{"category": "feeding", "type": "solid", "timeReference": "at noon", "summary": "Ate carrots", "confidence": 0.9, "details": {"foods": ["carrots"]}},
					{"category": "feeding", "type": "solid", "timeReference": "at noon", "summary": "Ate peas", "confidence": 0.8, "details": {"foods": ["peas"]}},
					{"category": "feeding", "type": "solid", "timeReference": "at noon", "summary": "Ate rice", "confidence": 0.85, "details": {"foods": ["rice", "carrots"]}}
				], "reply": "Lunch logged!"}`)

			res := orch.Run(ctx, request("Lunch at noon was carrots, peas and rice"), nil)

			Expect(res.Extraction.Candidates).To(HaveLen(1))
			c := res.Extraction.Candidates[0]
			Expect(c.Confidence).To(Equal(0.8))
			Expect(c.Timestamp).To(Equal(time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)))
			Expect(c.Details["items"]).To(HaveLen(3))

			p, err := c.Payload()
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Detail.(event.FeedingDetail).Foods).To(ConsistOf("carrots", "peas", "rice"))
			Expect(res.Reply()).To(Equal("Lunch logged!"))
		})

		It("splits events of different kinds at different times", func() {
			gw.Classify(`{"category": "data_logging", "confidence": 0.9}`).
				Extract(`{"events": [
					{"category": "feeding", "type": "meal", "timeReference": "at 8am", "summary": "Breakfast", "confidence": 0.9},
					{"category": "sleep", "type": "nap", "timeReference": "at 10am", "summary": "Nap", "confidence": 0.9}
				]}`)

			res := orch.Run(ctx, request("breakfast at 8am, then a nap at 10am"), nil)

			Expect(res.Extraction.Candidates).To(HaveLen(2))
			Expect(res.Extraction.Candidates[0].Category).To(Equal(event.CategoryFeeding))
			Expect(res.Extraction.Candidates[0].Timestamp.Hour()).To(Equal(8))
			Expect(res.Extraction.Candidates[1].Category).To(Equal(event.CategorySleep))
			Expect(res.Extraction.Candidates[1].Type).To(Equal("nap"))
			Expect(res.Extraction.Candidates[1].Timestamp.Hour()).To(Equal(10))
			Expect(res.Reply()).To(Equal("Got it, I've logged 2 event(s)."))
		})
	})

	Describe("classification overrides", func() {
		It("treats a trailing question mark as a question", func() {
			gw.Classify(`{"category": "data_logging", "confidence": 0.7}`)

			res := orch.Run(ctx, request("Did she nap well?"), nil)
			Expect(res.Classification.Intent).To(Equal(pipeline.IntentQuestion))
			Expect(res.Extraction.Candidates).To(BeEmpty())
		})

		It("treats a short answer to a clarification as data", func() {
			gw.Classify(`{"category": "question", "confidence": 0.6}`).
				Extract(`{"events": [{"category": "feeding", "type": "bottle", "summary": "Bottle, 90ml", "confidence": 0.8, "details": {"amount": 90, "unit": "ml"}}]}`)

			req := request("90ml?")
			req.History = []memory.Turn{
				{Role: memory.RoleUser, Text: "she had a bottle", At: now.Add(-time.Minute)},
				{Role: memory.RoleAssistant, Text: "How much?", At: now.Add(-time.Minute), Clarifications: []string{"How much did she drink?"}},
			}

			res := orch.Run(ctx, req, nil)
			Expect(res.Classification.Intent).To(Equal(pipeline.IntentDataLogging))
			Expect(res.Extraction.Candidates).To(HaveLen(1))
			Expect(res.Extraction.Candidates[0].Timestamp).To(Equal(now))
		})

		It("keeps a real question as a question after the assistant asked one", func() {
			gw.Classify(`{"category": "question", "confidence": 0.8}`).
				Extract(`{"events": [{"category": "feeding", "type": "meal", "summary": "Ate", "confidence": 0.8}]}`)

			req := request("How much did baby eat today?")
			req.History = []memory.Turn{
				{Role: memory.RoleUser, Text: "she had porridge", At: now.Add(-time.Hour)},
				{Role: memory.RoleAssistant, Text: "Got it! Anything else you'd like to log?", At: now.Add(-time.Hour)},
			}

			res := orch.Run(ctx, req, nil)
			Expect(res.Classification.Intent).To(Equal(pipeline.IntentQuestion))
			Expect(res.Extraction.Candidates).To(BeEmpty())
			Expect(gw.CallsFor(prompts.Extractor)).To(BeZero())
		})

		DescribeTable("tells answers from questions after a clarification",
			func(text string, want pipeline.Intent) {
				gw.Classify(`{"category": "question", "confidence": 0.6}`).
					Extract(`{"events": [{"category": "feeding", "type": "bottle", "summary": "Bottle", "confidence": 0.8}]}`)

				req := request(text)
				req.History = []memory.Turn{
					{Role: memory.RoleAssistant, Text: "How much did she drink?", At: now.Add(-time.Minute)},
				}

				res := orch.Run(ctx, req, nil)
				Expect(res.Classification.Intent).To(Equal(want))
			},
			Entry("an amount", "about 90ml?", pipeline.IntentDataLogging),
			Entry("a bare fragment", "the whole bottle?", pipeline.IntentDataLogging),
			Entry("an answer without a question mark", "all of it", pipeline.IntentDataLogging),
			Entry("a question opening with an interrogative", "Is 90ml enough?", pipeline.IntentQuestion),
			Entry("a longer question without a figure", "she seemed hungry though, normal?", pipeline.IntentQuestion),
		)

		It("falls back to a low confidence question when the model is down", func() {
			gw.FailClassify(llm.Unavailable("scripted", errors.New("connection refused")))

			res := orch.Run(ctx, request("she slept 2 hours"), nil)
			Expect(res.Classification.Intent).To(Equal(pipeline.IntentQuestion))
			Expect(res.Classification.Confidence).To(Equal(0.2))
			Expect(res.Notes).To(ContainElement(ContainSubstring("classification")))
			Expect(res.Reply()).To(Equal(prompts.Replies.Question))
		})

		It("falls back when the verdict names an unknown category", func() {
			gw.Classify(`{"category": "gossip", "confidence": 0.99}`)

			res := orch.Run(ctx, request("hello there"), nil)
			Expect(res.Classification.Intent).To(Equal(pipeline.IntentQuestion))
			Expect(res.Classification.Confidence).To(Equal(0.2))
		})

		It("answers chit-chat with the canned reply", func() {
			gw.Classify(`{"category": "general_conversation", "confidence": 0.9}`)

			res := orch.Run(ctx, request("thanks!"), nil)
			Expect(res.Reply()).To(Equal(prompts.Replies.GeneralConversation))
		})
	})

	Describe("extraction", func() {
		BeforeEach(func() {
			gw.Classify(`{"category": "data_logging", "confidence": 0.9}`)
		})

		It("turns low confidence and incomplete candidates into questions", func() {
			gw.Extract(`{"events": [
				{"category": "diaper", "type": "wet", "summary": "Wet diaper", "confidence": 0.9},
				{"category": "health", "type": "symptom", "summary": "Maybe a rash", "confidence": 0.3},
				{"category": "weather", "type": "sunny", "summary": "Sunny day", "confidence": 0.9},
				{"category": "mood", "type": "happy", "summary": "", "confidence": 0.9}
			], "clarificationQuestions": ["Where was the rash?"]}`)

			res := orch.Run(ctx, request("wet diaper, maybe a rash, sunny day"), nil)

			Expect(res.Extraction.Candidates).To(HaveLen(1))
			Expect(res.Extraction.Candidates[0].Category).To(Equal(event.CategoryDiaper))
			Expect(res.Extraction.Clarifications).To(HaveLen(4))
			Expect(res.Extraction.Clarifications[0]).To(Equal("Where was the rash?"))
		})

		It("asks for detail when every candidate was dropped", func() {
			gw.Extract(`{"events": [{"category": "health", "type": "symptom", "summary": "Something", "confidence": 0.1}]}`)

			res := orch.Run(ctx, request("something happened"), nil)
			Expect(res.Extraction.Candidates).To(BeEmpty())
			Expect(res.Reply()).To(Equal(prompts.Replies.NeedsDetail))
		})

		It("normalizes unknown types to other", func() {
			gw.Extract(`{"events": [{"category": "Activity", "type": "Swimming Lesson", "summary": "Swim class", "confidence": 0.8}]}`)

			res := orch.Run(ctx, request("swim class this morning"), nil)
			Expect(res.Extraction.Candidates).To(HaveLen(1))
			Expect(res.Extraction.Candidates[0].Category).To(Equal(event.CategoryActivity))
			Expect(res.Extraction.Candidates[0].Type).To(Equal(event.TypeOther))
			Expect(res.Extraction.Candidates[0].Timestamp.Hour()).To(Equal(8))
		})

		It("uses the model timestamp when no time words resolve", func() {
			gw.Extract(`{"events": [
				{"category": "sleep", "type": "nap", "timestamp": "2025-06-10T11:05:00", "summary": "Nap", "confidence": 0.8},
				{"category": "diaper", "type": "wet", "summary": "Wet", "confidence": 0.8}
			]}`)

			res := orch.Run(ctx, request("nap and a wet diaper"), nil)
			Expect(res.Extraction.Candidates).To(HaveLen(2))
			Expect(res.Extraction.Candidates[0].Timestamp).To(Equal(time.Date(2025, time.June, 10, 11, 5, 0, 0, time.UTC)))
			Expect(res.Extraction.Candidates[1].Timestamp).To(Equal(now))
		})

		It("recovers from an unparsable reply", func() {
			gw.Extract("I'm sorry, I can't help with that.")

			res := orch.Run(ctx, request("she ate"), nil)
			Expect(res.Extraction.Candidates).To(BeEmpty())
			Expect(res.Extraction.Confidence).To(BeNumerically("<", 0.5))
			Expect(res.Reply()).To(Equal(prompts.Replies.ParseFailure))
			Expect(res.Notes).To(ContainElement(ContainSubstring("extraction")))
		})

		It("recovers from a panicking stage", func() {
			gw.PanicExtract()

			var res *pipeline.Result
			Expect(func() { res = orch.Run(ctx, request("she ate"), nil) }).NotTo(Panic())
			Expect(res.Extraction.Candidates).To(BeEmpty())
			Expect(res.Reply()).To(Equal(prompts.Replies.ParseFailure))
		})

		It("bounds a slow model with the stage timeout", func() {
			gw.SlowExtract(5*time.Second, `{"events": []}`)

			start := time.Now()
			res := orch.Run(ctx, request("she ate"), nil)
			Expect(time.Since(start)).To(BeNumerically("<", 2*time.Second))
			Expect(res.Reply()).To(Equal(prompts.Replies.ParseFailure))
		})

		It("averages candidate confidence when the model gives none", func() {
			gw.Extract(`{"events": [
				{"category": "diaper", "type": "wet", "summary": "Wet", "confidence": 0.9},
				{"category": "mood", "type": "happy", "summary": "Happy", "confidence": "0.7"}
			]}`)

			res := orch.Run(ctx, request("wet diaper and happy"), nil)
			Expect(res.Extraction.Confidence).To(BeNumerically("~", 0.8, 0.0001))
		})
	})

	Describe("attachments", func() {
		report := attachments.Ref{ID: "files:r1", URL: "https://cdn/r1.pdf", MediaType: "application/pdf"}
		photo := attachments.Ref{ID: "files:p1", URL: "https://cdn/p1.jpg", MediaType: "image/jpeg"}

		It("dates events from the document and biases reports to logging", func() {
			gw.Interpret(`{"summary": "Checkup: weight 7.2kg", "keyFindings": ["weight 7.2kg"], "documentType": "medical_report", "documentDate": "2025-06-01", "confidence": 0.9}`).
				Classify(`{"category": "question", "confidence": 0.5}`).
				Extract(`{"events": [{"category": "growth", "type": "weight", "summary": "Weighed 7.2kg", "confidence": 0.9, "details": {"value": "7.2kg"}}]}`)

			req := request("here is the checkup report")
			req.Attachments = []attachments.Ref{report}

			res := orch.Run(ctx, req, nil)

			Expect(res.Interpretation).NotTo(BeNil())
			Expect(res.Interpretation.Type).To(Equal(pipeline.DocumentMedicalReport))
			Expect(res.Classification.Intent).To(Equal(pipeline.IntentDataLogging))
			Expect(res.Extraction.Candidates).To(HaveLen(1))
			Expect(res.Extraction.Candidates[0].Timestamp).To(Equal(time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)))
		})

		It("keeps the files that could be read", func() {
			gw.FailInterpret(photo.URL, errors.New("image too large")).
				Interpret(`{"summary": "A growth chart", "documentType": "growth_chart", "confidence": 0.8}`).
				Classify(`{"category": "general_conversation", "confidence": 0.5}`).
				Extract(`{"events": []}`)

			req := request("")
			req.Attachments = []attachments.Ref{photo, report}

			res := orch.Run(ctx, req, nil)
			Expect(res.Interpretation.Files).To(HaveLen(1))
			Expect(res.Interpretation.Files[0].AttachmentID).To(Equal(report.ID))
			Expect(res.Interpretation.Failures).To(HaveLen(1))
			Expect(res.Classification.Intent).To(Equal(pipeline.IntentDataLogging))
			Expect(res.Reply()).To(Equal(prompts.Replies.NoEvents))
		})

		It("leaves the interpretation empty when every file fails", func() {
			gw.FailInterpret(photo.URL, errors.New("boom")).
				Classify(`{"category": "general_conversation", "confidence": 0.8}`)

			req := request("look!")
			req.Attachments = []attachments.Ref{photo}

			res := orch.Run(ctx, req, nil)
			Expect(res.Interpretation).To(BeNil())
			Expect(res.Notes).To(ContainElement(ContainSubstring("attachments")))
			Expect(res.Reply()).To(Equal(prompts.Replies.GeneralConversation))
		})

		It("files a curriculum document as a note", func() {
			gw.Interpret(`{"summary": "Term 2 curriculum: phonics and counting", "documentType": "curriculum", "confidence": 0.8}`).
				Classify(`{"category": "general_conversation", "confidence": 0.6}`).
				Extract(`{"events": []}`)

			req := request("next term's plan")
			req.Attachments = []attachments.Ref{report}

			res := orch.Run(ctx, req, nil)
			Expect(res.Classification.Intent).To(Equal(pipeline.IntentCurriculumDocument))
			Expect(res.Extraction.Candidates).To(HaveLen(1))

			c := res.Extraction.Candidates[0]
			Expect(c.Category).To(Equal(event.CategoryNote))
			Expect(c.Type).To(Equal("curriculum"))
			Expect(c.Summary).To(Equal("Term 2 curriculum: phonics and counting"))
			Expect(res.Reply()).To(Equal(prompts.Replies.Curriculum))
		})
	})

	Describe("context and progress", func() {
		It("sends profile, history and snippets to the model", func() {
			gw.Classify(`{"category": "general_conversation", "confidence": 0.9}`)

			req := request("hi")
			req.Profile = &profile.Profile{ID: "p1", Name: "Mia", BirthDate: now.AddDate(0, -6, 0)}
			req.History = []memory.Turn{{Role: memory.RoleUser, Text: "she had a bottle"}}
			req.Snippets = []memory.Snippet{{Text: "rash on her arm", At: now.AddDate(0, 0, -3)}}

			orch.Run(ctx, req, nil)

			p := gw.Prompts()[0]
			Expect(p.Context).To(ContainSubstring("Child: Mia (6 months old)"))
			Expect(p.Context).To(ContainSubstring("Parent: she had a bottle"))
			Expect(p.Context).To(ContainSubstring("rash on her arm"))
			Expect(p.Context).To(ContainSubstring("Current local time: Tuesday 2025-06-10 15:30"))
		})

		It("reports each stage in order", func() {
			gw.Classify(`{"category": "data_logging", "confidence": 0.9}`).
				Extract(`{"events": []}`)

			em := pipeline.NewEmitter(16)
			orch.Run(ctx, request("nothing much"), em)
			em.Close()

			var got []pipeline.Progress
			for p := range em.Updates() {
				got = append(got, p)
			}
			Expect(got).To(Equal([]pipeline.Progress{
				{Stage: pipeline.StageAttachments, Status: pipeline.StatusSkipped},
				{Stage: pipeline.StageClassification, Status: pipeline.StatusStarted},
				{Stage: pipeline.StageClassification, Status: pipeline.StatusCompleted},
				{Stage: pipeline.StageExtraction, Status: pipeline.StatusStarted},
				{Stage: pipeline.StageExtraction, Status: pipeline.StatusCompleted},
			}))
		})

		It("finishes even when nobody reads the progress", func() {
			gw.Classify(`{"category": "question", "confidence": 0.9}`)

			em := pipeline.NewEmitter(1)
			res := orch.Run(ctx, request("what?"), em)
			Expect(res).NotTo(BeNil())
			Expect(em.Dropped()).To(BeNumerically(">", 0))
		})
	})
})
