package timelinecmder_test

import (
	"time"
	_ "time/tzdata"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	timelinecmder "github.com/papercomputeco/nestlog/cmd/nestlog/timeline"
	"github.com/papercomputeco/nestlog/pkg/attachments"
	"github.com/papercomputeco/nestlog/pkg/ingest"
	"github.com/papercomputeco/nestlog/pkg/storage"
)

var _ = Describe("Markdown", func() {
	item := func(at time.Time, title, summary, category string, refs ...attachments.Ref) ingest.TimelineItem {
		return ingest.TimelineItem{
			TimelineEntry: &storage.TimelineEntry{
				Title:      title,
				Summary:    summary,
				Category:   category,
				RecordTime: at,
			},
			Attachments: refs,
		}
	}

	It("groups entries by day in the given location", func() {
		md := timelinecmder.Markdown("mia", []ingest.TimelineItem{
			item(time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC), "Breakfast", "Ate oatmeal", "feeding"),
			item(time.Date(2025, 6, 10, 14, 30, 0, 0, time.UTC), "Nap", "Nap", "sleep",
				attachments.Ref{ID: "a1", URL: "https://files/a1", Name: "crib.jpg"}),
		}, time.UTC)

		Expect(md).To(HavePrefix("# Timeline for mia\n"))
		Expect(md).To(ContainSubstring("## Wednesday, June 11 2025"))
		Expect(md).To(ContainSubstring("## Tuesday, June 10 2025"))
		Expect(md).To(ContainSubstring("- **09:00** Breakfast `feeding`"))
		Expect(md).To(ContainSubstring("  Ate oatmeal"))
		Expect(md).To(ContainSubstring("[crib.jpg](https://files/a1)"))
		Expect(md).NotTo(ContainSubstring("  Nap\n"))
	})

	It("converts times into the viewer's zone", func() {
		ny, err := time.LoadLocation("America/New_York")
		Expect(err).NotTo(HaveOccurred())

		md := timelinecmder.Markdown("mia", []ingest.TimelineItem{
			item(time.Date(2025, 6, 11, 2, 0, 0, 0, time.UTC), "Woke up", "", "sleep"),
		}, ny)
		Expect(md).To(ContainSubstring("## Tuesday, June 10 2025"))
		Expect(md).To(ContainSubstring("**22:00** Woke up"))
	})

	It("says so when nothing is recorded", func() {
		Expect(timelinecmder.Markdown("mia", nil, time.UTC)).To(ContainSubstring("Nothing recorded yet"))
	})
})
