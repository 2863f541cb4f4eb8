package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/config"
	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

// BuildFunc returns the sources required by a configuration.
type BuildFunc func(cfg *config.Config) []metric.Source

// Supervisor owns the running engine and forwards its snapshots to a single
// consumer channel. When a configuration change alters the source set, the
// running engine is shut down and a fresh one is started in its place.
type Supervisor struct {
	build BuildFunc
	opts  []Option
	log   *slog.Logger

	mu      sync.Mutex
	current *Engine
}

// NewSupervisor creates a supervisor. opts are applied to every engine it starts.
func NewSupervisor(build BuildFunc, logger *slog.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		build: build,
		opts:  append([]Option{WithLogger(logger)}, opts...),
		log:   logger,
	}
}

// Run starts an engine for initial and blocks until ctx ends. The engine in
// use when ctx ends is shut down before Run returns.
func (s *Supervisor) Run(ctx context.Context, initial *config.Config, updates <-chan *config.Config, out chan<- metric.Snapshot) error {
	key := initial.SourceKey()
	gen, err := s.start(ctx, initial, out)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			gen.stop()
			return nil
		case cfg, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			next := cfg.SourceKey()
			if next == key {
				continue
			}
			s.log.Info("source set changed, restarting engine")
			gen.stop()
			key = next
			gen, err = s.start(ctx, cfg, out)
			if err != nil {
				return err
			}
		}
	}
}

// generation is one running engine and the goroutine forwarding its output.
type generation struct {
	eng  *Engine
	quit chan struct{}
	done chan struct{}
}

func (s *Supervisor) start(ctx context.Context, cfg *config.Config, out chan<- metric.Snapshot) (*generation, error) {
	eng, err := New(s.build(cfg), s.opts...)
	if err != nil {
		return nil, err
	}
	if err := eng.Start(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = eng
	s.mu.Unlock()

	gen := &generation{eng: eng, quit: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(gen.done)
		for snap := range eng.Snapshots(ctx) {
			select {
			case out <- snap:
			case <-gen.quit:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return gen, nil
}

// stop shuts the engine down and waits for the forwarder. Snapshots the
// consumer has not taken yet are dropped.
func (g *generation) stop() {
	close(g.quit)
	g.eng.Shutdown()
	<-g.done
}

// Stats returns the per-source counters of the running engine.
func (s *Supervisor) Stats() []SourceStats {
	s.mu.Lock()
	eng := s.current
	s.mu.Unlock()
	if eng == nil {
		return nil
	}
	return eng.Stats()
}
