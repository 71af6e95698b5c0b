package pipeline

import "sync"

// Stage names reported in progress updates.
const (
	StageContext        = "context"
	StageAttachments    = "attachments"
	StageClassification = "classification"
	StageExtraction     = "extraction"
	StagePersist        = "persist"
)

// Stage statuses.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusSkipped   = "skipped"
	StatusDegraded  = "degraded"
)

// Progress is one progress update.
type Progress struct {
	Stage   string `json:"stage"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Emitter delivers progress updates to at most one consumer over a buffered
// channel. Emit never blocks: updates are dropped when the buffer is full or
// after Close, so the pipeline never waits on a slow or departed client. A
// nil *Emitter discards everything.
type Emitter struct {
	mu      sync.Mutex
	ch      chan Progress
	closed  bool
	dropped int
}

// NewEmitter creates an emitter with the given buffer size.
func NewEmitter(buffer int) *Emitter {
	if buffer < 1 {
		buffer = 1
	}
	return &Emitter{ch: make(chan Progress, buffer)}
}

// Emit sends an update without blocking.
func (e *Emitter) Emit(p Progress) {
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		e.dropped++
		return
	}
	select {
	case e.ch <- p:
	default:
		e.dropped++
	}
}

// Updates is the consumer side. It is closed by Close.
func (e *Emitter) Updates() <-chan Progress {
	return e.ch
}

// Close stops delivery. It is safe to call more than once, and the producer
// may keep emitting afterwards.
func (e *Emitter) Close() {
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

// Dropped returns how many updates were discarded.
func (e *Emitter) Dropped() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}
