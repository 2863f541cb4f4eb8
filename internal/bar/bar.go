// Package bar runs the single consumer loop that turns snapshots into frames.
package bar

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/alert"
	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/coalesce"
	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/config"
	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

// Renderer receives every frame the bar produces.
type Renderer interface {
	Render(frame coalesce.Frame)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(frame coalesce.Frame)

func (f RendererFunc) Render(frame coalesce.Frame) { f(frame) }

// Settings provides the active configuration and its updates.
type Settings interface {
	Current() *config.Config
	Subscribe() <-chan *config.Config
}

type Option func(*Bar)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bar) {
		if logger != nil {
			b.log = logger
		}
	}
}

// WithWake re-renders everything whenever ch fires, e.g. after resume.
func WithWake(ch <-chan struct{}) Option {
	return func(b *Bar) { b.wake = ch }
}

func WithBlinkInterval(d time.Duration) Option {
	return func(b *Bar) {
		if d > 0 {
			b.blinkInterval = d
		}
	}
}

// Bar owns the coalescer and alert evaluator. All of their state is touched
// only from the goroutine running Run.
type Bar struct {
	settings      Settings
	renderer      Renderer
	log           *slog.Logger
	wake          <-chan struct{}
	blinkInterval time.Duration

	coalescer *coalesce.Coalescer
	alerts    *alert.Evaluator
	latest    atomic.Pointer[coalesce.Frame]
}

func New(settings Settings, renderer Renderer, opts ...Option) *Bar {
	b := &Bar{
		settings:      settings,
		renderer:      renderer,
		log:           slog.Default(),
		blinkInterval: alert.BlinkInterval,
		coalescer:     coalesce.New(),
		alerts:        alert.NewEvaluator(false),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Latest returns the most recent frame. It is safe to call from any goroutine.
func (b *Bar) Latest() (coalesce.Frame, bool) {
	f := b.latest.Load()
	if f == nil {
		return coalesce.Frame{}, false
	}
	return *f, true
}

// Run consumes snapshots until the channel closes or ctx ends.
func (b *Bar) Run(ctx context.Context, snapshots <-chan metric.Snapshot) error {
	updates := b.settings.Subscribe()
	cfg := b.settings.Current()

	interval := renderInterval(cfg)
	render := time.NewTicker(interval)
	defer render.Stop()

	var blink *time.Ticker
	var blinkC <-chan time.Time
	setBlink := func(on bool) {
		b.alerts.SetBlink(on)
		switch {
		case on && blink == nil:
			blink = time.NewTicker(b.blinkInterval)
			blinkC = blink.C
		case !on && blink != nil:
			blink.Stop()
			blink, blinkC = nil, nil
		}
	}
	setBlink(cfg.Alerts.Blink)
	defer func() {
		if blink != nil {
			blink.Stop()
		}
	}()

	// Publish placeholders right away so the presentation has something to show.
	b.publish(b.coalescer.Render(cfg, b.alertFunc(cfg), time.Now()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-snapshots:
			if !ok {
				return nil
			}
			if s.IsFault() {
				b.log.Debug("source fault", "source", s.ID, "raw", s.Raw)
			}
			b.coalescer.Observe(s)
		case now := <-render.C:
			b.flush(cfg, now)
		case now := <-blinkC:
			if b.alerts.Tick() {
				b.coalescer.MarkDirty()
				b.flush(cfg, now)
			}
		case next, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if d := renderInterval(next); d != interval {
				render.Reset(d)
				interval = d
				b.log.Debug("render interval changed", "interval", d)
			}
			setBlink(next.Alerts.Blink)
			// Hidden metrics are never evaluated again, so their blink
			// state would keep toggling.
			visible := make(map[string]bool)
			for _, id := range next.VisibleMetrics() {
				visible[id] = true
			}
			b.alerts.Retain(func(id string) bool {
				_, ok := next.Threshold(id)
				return ok && visible[id]
			})
			cfg = next
			b.coalescer.MarkDirty()
		case <-b.wake:
			b.log.Debug("wake, forcing render")
			b.coalescer.MarkDirty()
		}
	}
}

func (b *Bar) flush(cfg *config.Config, now time.Time) {
	if frame, ok := b.coalescer.Flush(cfg, b.alertFunc(cfg), now); ok {
		b.publish(frame)
	}
}

func (b *Bar) alertFunc(cfg *config.Config) coalesce.AlertFunc {
	return func(id string, value float64, hasValue bool) bool {
		threshold, ok := cfg.Threshold(id)
		if !ok {
			return false
		}
		return b.alerts.Evaluate(id, value, hasValue, threshold)
	}
}

func (b *Bar) publish(frame coalesce.Frame) {
	b.latest.Store(&frame)
	if len(frame.Changed) > 0 {
		b.log.Debug("frame rendered", "items", len(frame.Items), "changed", len(frame.Changed))
	}
	if b.renderer != nil {
		b.renderer.Render(frame)
	}
}

func renderInterval(cfg *config.Config) time.Duration {
	d := time.Duration(cfg.Display.UIUpdateIntervalMs) * time.Millisecond
	if d <= 0 {
		return 250 * time.Millisecond
	}
	return d
}
