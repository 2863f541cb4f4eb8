package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

// queue is the unbounded merge point between polling workers and the
// consumer. push never blocks beyond a short critical section.
type queue struct {
	mu       sync.Mutex
	items    []metric.Snapshot
	closed   bool
	ready    chan struct{}
	done     chan struct{}
	warnBase int
	warnAt   int
	log      *slog.Logger
}

func newQueue(warnDepth int, logger *slog.Logger) *queue {
	return &queue{
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
		warnBase: warnDepth,
		warnAt:   warnDepth,
		log:      logger,
	}
}

// push appends s and wakes the consumer. It reports false once the queue is closed.
func (q *queue) push(s metric.Snapshot) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, s)
	depth := len(q.items)
	warn := q.warnAt > 0 && depth >= q.warnAt
	if warn {
		q.warnAt *= 2
	}
	q.mu.Unlock()

	if warn {
		q.log.Warn("snapshot queue backing up", "depth", depth)
	}
	q.signal()
	return true
}

// pop blocks until a snapshot is available, the queue is closed, or ctx ends.
func (q *queue) pop(ctx context.Context) (metric.Snapshot, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return metric.Snapshot{}, ErrClosed
		}
		if len(q.items) > 0 {
			s := q.items[0]
			q.items[0] = metric.Snapshot{}
			q.items = q.items[1:]
			remaining := len(q.items)
			if remaining == 0 {
				q.items = nil
			}
			if q.warnAt > q.warnBase && remaining < q.warnBase/2 {
				q.warnAt = q.warnBase
			}
			q.mu.Unlock()
			if remaining > 0 {
				q.signal()
			}
			return s, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return metric.Snapshot{}, ctx.Err()
		}
	}
}

func (q *queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *queue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close ends the stream. Buffered snapshots are dropped.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.done)
}
