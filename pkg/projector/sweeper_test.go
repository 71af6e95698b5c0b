package projector_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/nestlog/pkg/logger"
	"github.com/papercomputeco/nestlog/pkg/projector"
	"github.com/papercomputeco/nestlog/pkg/storage/inmemory"
)

var _ = Describe("Sweeper", func() {
	var (
		store   *inmemory.Driver
		sweeper *projector.Sweeper
		ctx     context.Context
	)

	newSweeper := func(schedule string) *projector.Sweeper {
		proj, err := projector.New(projector.Config{Store: store, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())

		s, err := projector.NewSweeper(projector.SweeperConfig{
			Projector: proj,
			Schedule:  schedule,
			Workers:   2,
			Logger:    logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
	})

	AfterEach(func() {
		if sweeper != nil {
			sweeper.Stop()
			sweeper = nil
		}
	})

	It("projects every unprocessed origin", func() {
		for range 3 {
			appendOrigin(store, formula)
		}
		sweeper = newSweeper("")

		res, err := sweeper.Sweep(ctx, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal(projector.SweepResult{Scanned: 3, Projected: 3}))

		left, err := store.ListUnprocessed(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(left).To(BeEmpty())

		again, err := sweeper.Sweep(ctx, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Scanned).To(BeZero())
	})

	It("respects the limit", func() {
		for range 3 {
			appendOrigin(store, nap)
		}
		sweeper = newSweeper("")

		res, err := sweeper.Sweep(ctx, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Projected).To(Equal(2))
	})

	It("sweeps on its schedule", func() {
		id := appendOrigin(store, formula)
		sweeper = newSweeper("@every 1s")
		Expect(sweeper.Start()).To(Succeed())

		Eventually(func() bool {
			origin, err := store.GetOrigin(ctx, id)
			return err == nil && origin.Processed
		}, 5*time.Second, 100*time.Millisecond).Should(BeTrue())
	})

	It("rejects an invalid schedule", func() {
		sweeper = newSweeper("every now and then")
		Expect(sweeper.Start()).To(MatchError(ContainSubstring("invalid sweep schedule")))
	})

	It("requires a projector", func() {
		_, err := projector.NewSweeper(projector.SweeperConfig{})
		Expect(err).To(HaveOccurred())
	})
})
