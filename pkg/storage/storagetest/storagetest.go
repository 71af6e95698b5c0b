// Package storagetest holds the behavioural suite every storage.Driver must
// pass. Driver packages register it from their own _test files.
package storagetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/nestlog/pkg/storage"
)

// DescribeDriver registers the conformance specs for a driver constructor.
func DescribeDriver(name string, newDriver func() storage.Driver) bool {
	return Describe(name+" conformance", func() {
		var (
			driver storage.Driver
			ctx    context.Context
			base   time.Time
		)

		BeforeEach(func() {
			ctx = context.Background()
			base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
			driver = nil
			driver = newDriver()
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
			}
		})

		newOrigin := func(profileID string, externalID *string) *storage.OriginEvent {
			return &storage.OriginEvent{
				ID:         uuid.NewString(),
				ProfileID:  profileID,
				SourceType: storage.SourceChat,
				ExternalID: externalID,
				EventTime:  base,
				RawPayload: json.RawMessage(`{"originalText":"Baby drank 120ml formula"}`),
				CreatedAt:  storage.Now(),
			}
		}

		newProjection := func(origin *storage.OriginEvent, n int) *storage.Projection {
			narrative := &storage.NarrativeEvent{
				ID:            uuid.NewString(),
				ProfileID:     origin.ProfileID,
				OriginEventID: origin.ID,
				Type:          "feeding",
				EventTime:     origin.EventTime,
				Title:         "Bottle feeding",
				Description:   "120ml formula",
				Detail:        map[string]any{"events": float64(n)},
				CreatedAt:     storage.Now(),
			}
			p := &storage.Projection{Narrative: narrative}
			for i := range n {
				p.Entries = append(p.Entries, &storage.TimelineEntry{
					ID:               uuid.NewString(),
					ProfileID:        origin.ProfileID,
					OriginEventID:    origin.ID,
					NarrativeEventID: narrative.ID,
					Type:             "feeding",
					Category:         "feeding",
					RecordTime:       origin.EventTime.Add(time.Duration(i) * time.Hour),
					Title:            fmt.Sprintf("Feeding %d", i),
					Summary:          "formula",
					Tags:             []string{"formula"},
					Detail:           map[string]any{"amount": float64(120), "unit": "ml"},
					Confidence:       0.9,
					CreatedAt:        storage.Now(),
				})
			}
			return p
		}

		Describe("Origin Log", func() {
			It("returns the identical row when the same external id is appended twice", func() {
				ext := "msg-1"
				first, created, err := driver.CreateOrigin(ctx, newOrigin("p1", &ext))
				Expect(err).NotTo(HaveOccurred())
				Expect(created).To(BeTrue())

				retry := newOrigin("p1", &ext)
				retry.RawPayload = json.RawMessage(`{"originalText":"different"}`)
				second, created, err := driver.CreateOrigin(ctx, retry)
				Expect(err).NotTo(HaveOccurred())
				Expect(created).To(BeFalse())
				Expect(second.ID).To(Equal(first.ID))
				Expect(string(second.RawPayload)).To(MatchJSON(first.RawPayload))
			})

			It("collapses concurrent creates with the same external id into one row", func() {
				ext := "racing"
				var (
					wg      sync.WaitGroup
					mu      sync.Mutex
					ids     = map[string]bool{}
					created int
				)
				for range 8 {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						stored, ok, err := driver.CreateOrigin(ctx, newOrigin("p1", &ext))
						Expect(err).NotTo(HaveOccurred())
						mu.Lock()
						defer mu.Unlock()
						ids[stored.ID] = true
						if ok {
							created++
						}
					}()
				}
				wg.Wait()

				Expect(ids).To(HaveLen(1))
				Expect(created).To(Equal(1))
			})

			It("treats events without an external id as distinct", func() {
				_, c1, err := driver.CreateOrigin(ctx, newOrigin("p1", nil))
				Expect(err).NotTo(HaveOccurred())
				_, c2, err := driver.CreateOrigin(ctx, newOrigin("p1", nil))
				Expect(err).NotTo(HaveOccurred())
				Expect(c1).To(BeTrue())
				Expect(c2).To(BeTrue())

				unprocessed, err := driver.ListUnprocessed(ctx, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(unprocessed).To(HaveLen(2))
			})

			It("scopes uniqueness to the source type", func() {
				ext := "shared"
				a := newOrigin("p1", &ext)
				b := newOrigin("p1", &ext)
				b.SourceType = "import"

				_, c1, err := driver.CreateOrigin(ctx, a)
				Expect(err).NotTo(HaveOccurred())
				_, c2, err := driver.CreateOrigin(ctx, b)
				Expect(err).NotTo(HaveOccurred())
				Expect(c1).To(BeTrue())
				Expect(c2).To(BeTrue())
			})

			It("returns ErrNotFound for unknown ids", func() {
				_, err := driver.GetOrigin(ctx, "missing")
				Expect(err).To(MatchError(storage.ErrNotFound))

				_, err = driver.GetOriginByExternalID(ctx, storage.SourceChat, "missing")
				Expect(err).To(MatchError(storage.ErrNotFound))
			})

			It("finds an origin by its external id", func() {
				ext := "client-42"
				stored, _, err := driver.CreateOrigin(ctx, newOrigin("p1", &ext))
				Expect(err).NotTo(HaveOccurred())

				found, err := driver.GetOriginByExternalID(ctx, storage.SourceChat, ext)
				Expect(err).NotTo(HaveOccurred())
				Expect(found.ID).To(Equal(stored.ID))
				Expect(*found.ExternalID).To(Equal(ext))
			})

			It("starts unprocessed and keeps attachment ids", func() {
				origin := newOrigin("p1", nil)
				origin.AttachmentIDs = []string{"files:a", "files:b"}
				stored, _, err := driver.CreateOrigin(ctx, origin)
				Expect(err).NotTo(HaveOccurred())
				Expect(stored.Processed).To(BeFalse())
				Expect(stored.ProcessedAt).To(BeNil())
				Expect(stored.AttachmentIDs).To(Equal([]string{"files:a", "files:b"}))
				Expect(stored.EventTime.Equal(base)).To(BeTrue())
			})
		})

		Describe("Projections", func() {
			It("writes the projection and marks the origin processed", func() {
				origin, _, err := driver.CreateOrigin(ctx, newOrigin("p1", nil))
				Expect(err).NotTo(HaveOccurred())

				at := storage.Now()
				Expect(driver.ReplaceProjections(ctx, origin.ID, newProjection(origin, 2), at)).To(Succeed())

				stored, err := driver.GetOrigin(ctx, origin.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(stored.Processed).To(BeTrue())
				Expect(stored.ProcessedAt).NotTo(BeNil())
				Expect(stored.ProcessedAt.Equal(at)).To(BeTrue())

				projection, err := driver.GetProjection(ctx, origin.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(projection.Narrative.OriginEventID).To(Equal(origin.ID))
				Expect(projection.Entries).To(HaveLen(2))
				for _, e := range projection.Entries {
					Expect(e.OriginEventID).To(Equal(origin.ID))
					Expect(e.NarrativeEventID).To(Equal(projection.Narrative.ID))
				}
				Expect(projection.Entries[0].Detail).To(HaveKeyWithValue("unit", "ml"))
				Expect(projection.Entries[0].Tags).To(Equal([]string{"formula"}))

				unprocessed, err := driver.ListUnprocessed(ctx, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(unprocessed).To(BeEmpty())
			})

			It("replaces rather than duplicates on reprojection", func() {
				origin, _, err := driver.CreateOrigin(ctx, newOrigin("p1", nil))
				Expect(err).NotTo(HaveOccurred())

				Expect(driver.ReplaceProjections(ctx, origin.ID, newProjection(origin, 3), storage.Now())).To(Succeed())
				Expect(driver.ReplaceProjections(ctx, origin.ID, newProjection(origin, 1), storage.Now())).To(Succeed())

				projection, err := driver.GetProjection(ctx, origin.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(projection.Entries).To(HaveLen(1))

				timeline, err := driver.ListTimeline(ctx, "p1", 50, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(timeline).To(HaveLen(1))
			})

			It("allows a projection with no timeline entries", func() {
				origin, _, err := driver.CreateOrigin(ctx, newOrigin("p1", nil))
				Expect(err).NotTo(HaveOccurred())
				Expect(driver.ReplaceProjections(ctx, origin.ID, newProjection(origin, 0), storage.Now())).To(Succeed())

				projection, err := driver.GetProjection(ctx, origin.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(projection.Entries).To(BeEmpty())
			})

			It("rejects projections for unknown origins", func() {
				ghost := newOrigin("p1", nil)
				err := driver.ReplaceProjections(ctx, ghost.ID, newProjection(ghost, 1), storage.Now())
				Expect(err).To(MatchError(storage.ErrNotFound))
			})

			It("returns ErrNotFound before the origin is projected", func() {
				origin, _, err := driver.CreateOrigin(ctx, newOrigin("p1", nil))
				Expect(err).NotTo(HaveOccurred())
				_, err = driver.GetProjection(ctx, origin.ID)
				Expect(err).To(MatchError(storage.ErrNotFound))
			})

			It("lists a profile's timeline newest first with paging", func() {
				o1, _, err := driver.CreateOrigin(ctx, newOrigin("p1", nil))
				Expect(err).NotTo(HaveOccurred())
				o2, _, err := driver.CreateOrigin(ctx, newOrigin("p2", nil))
				Expect(err).NotTo(HaveOccurred())

				Expect(driver.ReplaceProjections(ctx, o1.ID, newProjection(o1, 3), storage.Now())).To(Succeed())
				Expect(driver.ReplaceProjections(ctx, o2.ID, newProjection(o2, 2), storage.Now())).To(Succeed())

				timeline, err := driver.ListTimeline(ctx, "p1", 2, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(timeline).To(HaveLen(2))
				Expect(timeline[0].Title).To(Equal("Feeding 2"))
				Expect(timeline[1].Title).To(Equal("Feeding 1"))

				rest, err := driver.ListTimeline(ctx, "p1", 2, 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(rest).To(HaveLen(1))
				Expect(rest[0].Title).To(Equal("Feeding 0"))
			})
		})

		Describe("Messages", func() {
			It("pages newest page first, oldest first within a page", func() {
				for i := range 5 {
					Expect(driver.AppendMessage(ctx, &storage.Message{
						ID:        uuid.NewString(),
						ProfileID: "p1",
						Role:      storage.RoleUser,
						Text:      fmt.Sprintf("m%d", i+1),
						CreatedAt: base.Add(time.Duration(i) * time.Minute),
					})).To(Succeed())
				}

				texts := func(p *storage.MessagePage) []string {
					out := []string{}
					for _, m := range p.Messages {
						out = append(out, m.Text)
					}
					return out
				}

				page0, err := driver.ListMessages(ctx, "p1", 0, 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(texts(page0)).To(Equal([]string{"m4", "m5"}))
				Expect(page0.Total).To(Equal(5))
				Expect(page0.HasMore).To(BeTrue())

				page1, err := driver.ListMessages(ctx, "p1", 1, 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(texts(page1)).To(Equal([]string{"m2", "m3"}))

				page2, err := driver.ListMessages(ctx, "p1", 2, 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(texts(page2)).To(Equal([]string{"m1"}))
				Expect(page2.HasMore).To(BeFalse())

				empty, err := driver.ListMessages(ctx, "p1", 9, 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(empty.Messages).To(BeEmpty())
			})

			It("round-trips optional fields", func() {
				msg := &storage.Message{
					ID:              uuid.NewString(),
					ProfileID:       "p1",
					UserID:          "u1",
					Role:            storage.RoleAssistant,
					Text:            "Logged it",
					AttachmentIDs:   []string{"files:x"},
					ClientMessageID: "client-1",
					CreatedAt:       base,
				}
				Expect(driver.AppendMessage(ctx, msg)).To(Succeed())

				page, err := driver.ListMessages(ctx, "p1", 0, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(page.Messages).To(HaveLen(1))
				got := page.Messages[0]
				Expect(got.UserID).To(Equal("u1"))
				Expect(got.Role).To(Equal(storage.RoleAssistant))
				Expect(got.AttachmentIDs).To(Equal([]string{"files:x"}))
				Expect(got.ClientMessageID).To(Equal("client-1"))
				Expect(got.CreatedAt.Equal(base)).To(BeTrue())
			})
		})
	})
}
