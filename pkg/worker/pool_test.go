package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/nestlog/pkg/logger"
	"github.com/papercomputeco/nestlog/pkg/worker"
)

var _ = Describe("Worker Pool", func() {
	It("requires a handler", func() {
		_, err := worker.NewPool(&worker.Config{})
		Expect(err).To(MatchError(worker.ErrNoHandler))
	})

	It("runs every enqueued job before Close returns", func() {
		var (
			mu  sync.Mutex
			ran []string
		)
		wp, err := worker.NewPool(&worker.Config{
			Logger: logger.Nop(),
			Handler: func(_ context.Context, job worker.Job) error {
				mu.Lock()
				defer mu.Unlock()
				ran = append(ran, job.OriginEventID)
				return nil
			},
		})
		Expect(err).NotTo(HaveOccurred())

		for _, id := range []string{"a", "b", "c"} {
			Expect(wp.Enqueue(worker.Job{OriginEventID: id})).To(BeTrue())
		}
		wp.Close()

		Expect(ran).To(ConsistOf("a", "b", "c"))
	})

	It("reports each result through Done", func() {
		boom := errors.New("boom")
		wp, err := worker.NewPool(&worker.Config{
			Logger: logger.Nop(),
			Handler: func(_ context.Context, job worker.Job) error {
				if job.OriginEventID == "bad" {
					return boom
				}
				return nil
			},
		})
		Expect(err).NotTo(HaveOccurred())
		defer wp.Close()

		results := make(chan error, 2)
		done := func(err error) { results <- err }
		Expect(wp.Enqueue(worker.Job{OriginEventID: "good", Done: done})).To(BeTrue())
		Expect(wp.Enqueue(worker.Job{OriginEventID: "bad", Done: done})).To(BeTrue())

		var got []error
		for range 2 {
			var e error
			Eventually(results).Should(Receive(&e))
			got = append(got, e)
		}
		Expect(got).To(ConsistOf(BeNil(), MatchError(boom)))
	})

	It("turns a panicking job into an error", func() {
		wp, err := worker.NewPool(&worker.Config{
			Logger: logger.Nop(),
			Handler: func(context.Context, worker.Job) error {
				panic("bad payload")
			},
		})
		Expect(err).NotTo(HaveOccurred())

		var got atomic.Value
		Expect(wp.Enqueue(worker.Job{OriginEventID: "x", Done: func(err error) { got.Store(err) }})).To(BeTrue())
		wp.Close()

		Expect(got.Load()).To(MatchError(ContainSubstring("job panicked")))
	})

	It("bounds each job with the job timeout", func() {
		wp, err := worker.NewPool(&worker.Config{
			Logger:     logger.Nop(),
			JobTimeout: 20 * time.Millisecond,
			Handler: func(ctx context.Context, _ worker.Job) error {
				<-ctx.Done()
				return ctx.Err()
			},
		})
		Expect(err).NotTo(HaveOccurred())

		var got atomic.Value
		Expect(wp.Enqueue(worker.Job{OriginEventID: "slow", Done: func(err error) { got.Store(err) }})).To(BeTrue())
		wp.Close()

		Expect(got.Load()).To(MatchError(context.DeadlineExceeded))
	})

	It("drops jobs when the queue is full or the pool is closed", func() {
		release := make(chan struct{})
		wp, err := worker.NewPool(&worker.Config{
			Logger:     logger.Nop(),
			NumWorkers: 1,
			QueueSize:  1,
			Handler: func(context.Context, worker.Job) error {
				<-release
				return nil
			},
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(wp.Enqueue(worker.Job{OriginEventID: "running"})).To(BeTrue())
		// wait until the worker holds the first job so the queue is empty
		Eventually(func() bool { return wp.Enqueue(worker.Job{OriginEventID: "queued"}) }).Should(BeTrue())
		Expect(wp.Enqueue(worker.Job{OriginEventID: "overflow"})).To(BeFalse())

		close(release)
		wp.Close()
		wp.Close()
		Expect(wp.Enqueue(worker.Job{OriginEventID: "late"})).To(BeFalse())
	})
})
