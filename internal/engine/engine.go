package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

var (
	ErrClosed         = errors.New("snapshot stream closed")
	ErrNilSource      = errors.New("nil source")
	ErrDuplicateID    = errors.New("duplicate source id")
	ErrAlreadyStarted = errors.New("engine already started")
)

const (
	DefaultFaultBackoff   = time.Second
	DefaultQueueWarnDepth = 1024

	defaultPollInterval = time.Second
	minPollInterval     = 50 * time.Millisecond
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

// WithFaultBackoff sets the pause after a failed poll.
func WithFaultBackoff(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.backoff = d
		}
	}
}

// WithQueueWarnDepth sets the queue depth at which a warning is logged.
// The threshold doubles after each warning. Zero disables the warning.
func WithQueueWarnDepth(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.warnDepth = n
		}
	}
}

// Engine runs one polling worker per source and merges their snapshots
// into a single pull-based stream.
type Engine struct {
	workers   []*worker
	queue     *queue
	log       *slog.Logger
	backoff   time.Duration
	warnDepth int

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

// New validates the sources and prepares an engine. Workers do not run until Start.
func New(sources []metric.Source, opts ...Option) (*Engine, error) {
	e := &Engine{
		log:       slog.Default(),
		backoff:   DefaultFaultBackoff,
		warnDepth: DefaultQueueWarnDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.queue = newQueue(e.warnDepth, e.log)

	seen := make(map[string]bool, len(sources))
	for i, src := range sources {
		if src == nil {
			return nil, fmt.Errorf("source %d: %w", i, ErrNilSource)
		}
		id := src.ID()
		if seen[id] {
			return nil, fmt.Errorf("source %q: %w", id, ErrDuplicateID)
		}
		seen[id] = true

		w := &worker{
			src:      src,
			id:       id,
			category: src.Category(),
			interval: e.clampInterval(id, src.PollInterval()),
			backoff:  e.backoff,
			out:      e.queue,
			log:      e.log,
		}
		w.stats.ID = id
		w.stats.Category = w.category
		e.workers = append(e.workers, w)
	}
	return e, nil
}

func (e *Engine) clampInterval(id string, d time.Duration) time.Duration {
	switch {
	case d <= 0:
		e.log.Warn("non-positive poll interval, using default", "source", id, "interval", d, "default", defaultPollInterval)
		return defaultPollInterval
	case d < minPollInterval:
		e.log.Warn("poll interval too short, clamping", "source", id, "interval", d, "min", minPollInterval)
		return minPollInterval
	}
	return d
}

// Start launches one worker goroutine per source. Each worker polls
// immediately and then waits its interval.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrClosed
	}
	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true

	ctx, e.cancel = context.WithCancel(ctx)
	for _, w := range e.workers {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			w.run(ctx)
		}()
	}
	e.log.Info("engine started", "sources", len(e.workers))
	return nil
}

// Next blocks until a snapshot is available. It returns ErrClosed once the
// engine has shut down, or ctx.Err() if ctx ends first.
func (e *Engine) Next(ctx context.Context) (metric.Snapshot, error) {
	return e.queue.pop(ctx)
}

// Snapshots yields snapshots until the engine shuts down or ctx ends.
func (e *Engine) Snapshots(ctx context.Context) iter.Seq[metric.Snapshot] {
	return func(yield func(metric.Snapshot) bool) {
		for {
			s, err := e.Next(ctx)
			if err != nil {
				return
			}
			if !yield(s) {
				return
			}
		}
	}
}

// QueueDepth returns the number of snapshots waiting for the consumer.
func (e *Engine) QueueDepth() int {
	return e.queue.depth()
}

// Stats returns per-source poll counters in source order.
func (e *Engine) Stats() []SourceStats {
	out := make([]SourceStats, 0, len(e.workers))
	for _, w := range e.workers {
		out = append(out, w.snapshotStats())
	}
	return out
}

// Shutdown stops all workers, closes the stream, and releases every source
// exactly once. It is safe to call more than once and from several goroutines.
func (e *Engine) Shutdown() {
	e.once.Do(func() {
		e.mu.Lock()
		e.stopped = true
		cancel := e.cancel
		e.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		e.wg.Wait()
		e.queue.close()
		for _, w := range e.workers {
			w.release()
		}
		e.log.Info("engine stopped", "sources", len(e.workers))
	})
}
