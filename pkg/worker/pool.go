// Package worker provides an asynchronous worker pool for projection jobs.
//
// The pool decouples reprocessing from the caller: a sweep enqueues one job
// per unprocessed origin event and a fixed number of workers run them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/nestlog/pkg/logger"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// ErrNoHandler is returned by NewPool when no Handler is configured.
var ErrNoHandler = errors.New("worker pool requires a handler")

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	OriginEventID string
	Force         bool

	// Done, when set, is called with the handler's result once the job ran.
	Done func(err error)
}

// Handler runs one job.
type Handler func(ctx context.Context, job Job) error

// Config is the configuration options for the worker pool.
type Config struct {
	Handler Handler

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds each job; zero means unbounded.
	JobTimeout time.Duration

	Logger *slog.Logger
}

// Pool runs jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Handler == nil {
		return nil, ErrNoHandler
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed", "origin_event_id", job.OriginEventID)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued", "origin_event_id", job.OriginEventID, "force", job.Force)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped", "origin_event_id", job.OriginEventID)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the API server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

func (p *Pool) processJob(job Job) {
	ctx := context.Background()
	if p.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.JobTimeout)
		defer cancel()
	}

	err := p.run(ctx, job)
	if err != nil {
		p.logger.Error("job failed", "origin_event_id", job.OriginEventID, "error", err)
	} else {
		p.logger.Debug("job completed", "origin_event_id", job.OriginEventID)
	}

	if job.Done != nil {
		job.Done(err)
	}
}

// run calls the handler, turning a panic into an error so one bad job never
// takes a worker down.
func (p *Pool) run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return p.config.Handler(ctx, job)
}
