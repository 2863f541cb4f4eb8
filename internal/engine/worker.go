package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

// SourceStats summarizes how a source has behaved since the engine started.
type SourceStats struct {
	ID          string          `json:"id"`
	Category    metric.Category `json:"category"`
	Polls       int64           `json:"polls"`
	Faults      int64           `json:"faults"`
	LastFault   string          `json:"last_fault,omitempty"`
	LastFaultAt time.Time       `json:"last_fault_at"`
	LastOKAt    time.Time       `json:"last_ok_at"`
}

type worker struct {
	src      metric.Source
	id       string
	category metric.Category
	interval time.Duration
	backoff  time.Duration
	out      *queue
	log      *slog.Logger

	// failing is owned by the run goroutine.
	failing bool

	mu    sync.Mutex
	stats SourceStats
}

func (w *worker) run(ctx context.Context) {
	for {
		snap, err := w.poll(ctx)
		if ctx.Err() != nil {
			return
		}

		wait := w.interval
		now := time.Now()
		w.logResult(err)
		if err != nil {
			w.record(now, err)
			w.out.push(metric.Fault(w.id, w.category, now, err))
			wait = w.backoff
		} else {
			w.record(now, nil)
			w.out.push(snap)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// logResult warns when a source starts failing. Repeated faults log at
// debug until the source recovers.
func (w *worker) logResult(err error) {
	switch {
	case err != nil && !w.failing:
		w.failing = true
		w.log.Warn("poll failed", "source", w.id, "err", err)
	case err != nil:
		w.log.Debug("poll still failing", "source", w.id, "err", err)
	case w.failing:
		w.failing = false
		w.log.Info("poll recovered", "source", w.id)
	}
}

// poll calls the source and normalizes its result. A panicking source is
// reported as a failed poll.
func (w *worker) poll(ctx context.Context) (snap metric.Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	s, err := w.src.Poll(ctx)
	if err != nil {
		return metric.Snapshot{}, err
	}
	now := time.Now()
	if s == nil {
		return metric.Unavailable(w.id, w.category, now), nil
	}
	out := *s
	out.ID = w.id
	out.Category = w.category
	if out.Timestamp.IsZero() {
		out.Timestamp = now
	}
	return out, nil
}

func (w *worker) record(at time.Time, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.Polls++
	if err != nil {
		w.stats.Faults++
		w.stats.LastFault = err.Error()
		w.stats.LastFaultAt = at
		return
	}
	w.stats.LastOKAt = at
}

func (w *worker) snapshotStats() SourceStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *worker) release() {
	defer func() {
		if r := recover(); r != nil {
			w.log.Warn("release source panicked", "source", w.id, "panic", r)
		}
	}()
	if err := w.src.Release(); err != nil {
		w.log.Warn("release source", "source", w.id, "err", err)
	}
}
