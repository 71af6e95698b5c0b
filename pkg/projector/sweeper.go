package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/papercomputeco/nestlog/pkg/logger"
	"github.com/papercomputeco/nestlog/pkg/worker"
)

const defaultSweepLimit = 100

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	Projector *Projector

	// Schedule is a cron expression ("@every 5m", "*/10 * * * *"). Empty
	// disables the schedule; Sweep can still be called directly.
	Schedule string

	// Limit caps the origins picked up by one sweep.
	Limit int

	Workers    uint
	JobTimeout time.Duration

	Logger *slog.Logger
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Projected int `json:"projected"`
	Failed    int `json:"failed"`
	Dropped   int `json:"dropped"`
}

// Sweeper re-projects origin events whose projection never committed, on a
// schedule and on demand. Jobs run on a worker pool.
type Sweeper struct {
	projector *Projector
	pool      *worker.Pool
	cron      *cron.Cron
	schedule  string
	limit     int
	logger    *slog.Logger

	// sweeping serializes sweeps so two never pick up the same origins.
	sweeping sync.Mutex
}

// NewSweeper creates a Sweeper and starts its worker pool.
func NewSweeper(c SweeperConfig) (*Sweeper, error) {
	if c.Projector == nil {
		return nil, errors.New("sweeper requires a projector")
	}
	if c.Limit <= 0 {
		c.Limit = defaultSweepLimit
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	s := &Sweeper{
		projector: c.Projector,
		schedule:  c.Schedule,
		limit:     c.Limit,
		logger:    c.Logger,
	}

	pool, err := worker.NewPool(&worker.Config{
		Handler: func(ctx context.Context, job worker.Job) error {
			_, err := s.projector.Project(ctx, job.OriginEventID, Options{Force: job.Force})
			return err
		},
		NumWorkers: c.Workers,
		JobTimeout: c.JobTimeout,
		Logger:     c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("starting projection workers: %w", err)
	}
	s.pool = pool

	return s, nil
}

// Start schedules periodic sweeps. A sweep still running when the next one
// is due causes that one to be skipped.
func (s *Sweeper) Start() error {
	if s.schedule == "" {
		return nil
	}

	cl := cronLogger{s.logger}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(context.Background(), s.limit); err != nil {
			s.logger.Error("scheduled sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("projection sweeper scheduled", "schedule", s.schedule, "limit", s.limit)
	return nil
}

// Sweep projects up to limit unprocessed origin events and waits for them.
func (s *Sweeper) Sweep(ctx context.Context, limit int) (SweepResult, error) {
	if limit <= 0 {
		limit = s.limit
	}

	s.sweeping.Lock()
	defer s.sweeping.Unlock()

	origins, err := s.projector.store.ListUnprocessed(ctx, limit)
	if err != nil {
		return SweepResult{}, fmt.Errorf("listing unprocessed origins: %w", err)
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		res = SweepResult{Scanned: len(origins)}
	)

	for _, origin := range origins {
		wg.Add(1)
		ok := s.pool.Enqueue(worker.Job{
			OriginEventID: origin.ID,
			Done: func(err error) {
				defer wg.Done()
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					res.Failed++
					return
				}
				res.Projected++
			},
		})
		if !ok {
			wg.Done()
			mu.Lock()
			res.Dropped++
			mu.Unlock()
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		mu.Lock()
		defer mu.Unlock()
		return res, ctx.Err()
	}

	if res.Scanned > 0 {
		s.logger.Info("sweep finished",
			"scanned", res.Scanned,
			"projected", res.Projected,
			"failed", res.Failed,
			"dropped", res.Dropped,
		)
	}
	return res, nil
}

// Stop halts the schedule, waits for a running sweep and drains the pool.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.pool.Close()
}

// cronLogger routes cron's logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
