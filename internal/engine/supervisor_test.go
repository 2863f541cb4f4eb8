package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/config"
	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

// recordingBuild builds one fake source per enabled metric and remembers them.
type recordingBuild struct {
	mu     sync.Mutex
	builds [][]*fakeSource
}

func (r *recordingBuild) build(cfg *config.Config) []metric.Source {
	var fakes []*fakeSource
	var out []metric.Source
	for _, id := range cfg.VisibleMetrics() {
		f := &fakeSource{
			id:       id,
			interval: 50 * time.Millisecond,
			pollFn:   func(int) (*metric.Snapshot, error) { return value(1), nil },
		}
		fakes = append(fakes, f)
		out = append(out, f)
	}
	r.mu.Lock()
	r.builds = append(r.builds, fakes)
	r.mu.Unlock()
	return out
}

func (r *recordingBuild) generation(i int) []*fakeSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= len(r.builds) {
		return nil
	}
	return r.builds[i]
}

func (r *recordingBuild) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.builds)
}

func mustBuild(t *testing.T, b *config.Builder) *config.Config {
	t.Helper()
	cfg, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return cfg
}

// waitSnapshot reads from out until a snapshot for id arrives.
func waitSnapshot(t *testing.T, out <-chan metric.Snapshot, id string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-out:
			if s.ID == id {
				return
			}
		case <-deadline:
			t.Fatalf("no snapshot for %s", id)
		}
	}
}

func TestSupervisor_RestartsOnlyWhenSourcesChange(t *testing.T) {
	rec := &recordingBuild{}
	sup := NewSupervisor(rec.build, quietLogger())

	base := mustBuild(t, config.NewBuilder(config.DefaultConfig()).EnabledMetrics("cpu-load"))
	updates := make(chan *config.Config)
	out := make(chan metric.Snapshot, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx, base, updates, out) }()

	waitSnapshot(t, out, "cpu-load")

	// Display-only change keeps the engine.
	updates <- mustBuild(t, config.NewBuilder(base).Label("cpu-load", "PROC"))
	waitSnapshot(t, out, "cpu-load")
	if n := rec.count(); n != 1 {
		t.Fatalf("builds after label change = %d, want 1", n)
	}

	updates <- mustBuild(t, config.NewBuilder(base).EnabledMetrics("cpu-load", "ram-used"))
	waitSnapshot(t, out, "ram-used")
	if n := rec.count(); n != 2 {
		t.Fatalf("builds after enabling ram-used = %d, want 2", n)
	}
	for _, f := range rec.generation(0) {
		if got := f.released.Load(); got != 1 {
			t.Fatalf("old source %s released %d times, want 1", f.id, got)
		}
	}
	if stats := sup.Stats(); len(stats) != 2 {
		t.Fatalf("Stats() = %d sources, want 2", len(stats))
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	for _, f := range rec.generation(1) {
		if got := f.released.Load(); got != 1 {
			t.Fatalf("source %s released %d times after stop, want 1", f.id, got)
		}
	}
}

func TestSupervisor_IntervalOverrideRestarts(t *testing.T) {
	rec := &recordingBuild{}
	sup := NewSupervisor(rec.build, quietLogger())

	base := mustBuild(t, config.NewBuilder(config.DefaultConfig()).EnabledMetrics("fps"))
	changed := base.Clone()
	changed.Collection.IntervalsMs["fps"] = 500

	updates := make(chan *config.Config, 1)
	out := make(chan metric.Snapshot, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sup.Run(ctx, base, updates, out) }()

	waitSnapshot(t, out, "fps")
	updates <- changed
	deadline := time.Now().Add(2 * time.Second)
	for rec.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("interval override did not restart the engine")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
