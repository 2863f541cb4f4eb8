// Package coalesce turns the snapshot stream into render frames. It keeps
// the latest value of every metric but only schedules a render when a value
// moved by more than its significance delta.
package coalesce

import (
	"math"
	"slices"
	"time"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/config"
	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

// Item is one rendered metric.
type Item struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Alert bool   `json:"alert"`
}

// Frame is the full set of visible metrics produced by one render pass.
// Changed lists the ids whose text or alert flag differ from the previous frame.
type Frame struct {
	Items      []Item    `json:"items"`
	Changed    []string  `json:"changed"`
	RenderedAt time.Time `json:"rendered_at"`
}

// AlertFunc returns the visible alert flag for a metric's current value.
type AlertFunc func(id string, value float64, hasValue bool) bool

type entry struct {
	// latest observation
	value    float64
	hasValue bool
	raw      string

	// last accepted observation
	accepted    bool
	accValue    float64
	accHasValue bool
	accRaw      string

	alert bool
}

// Coalescer is owned by a single goroutine and is not safe for concurrent use.
type Coalescer struct {
	entries map[string]*entry
	dirty   bool
	last    map[string]Item
}

func New() *Coalescer {
	return &Coalescer{
		entries: make(map[string]*entry),
		last:    make(map[string]Item),
	}
}

// Observe records s as the latest value of its metric and reports whether
// the change is significant enough to schedule a render.
func (c *Coalescer) Observe(s metric.Snapshot) bool {
	e, ok := c.entries[s.ID]
	if !ok {
		e = &entry{}
		c.entries[s.ID] = e
	}
	e.value, e.hasValue, e.raw = s.Value, s.HasValue, s.Raw

	if !significant(FormatFor(s.ID), e, s) {
		return false
	}
	e.accepted = true
	e.accValue, e.accHasValue, e.accRaw = s.Value, s.HasValue, s.Raw
	c.dirty = true
	return true
}

func significant(f Format, e *entry, s metric.Snapshot) bool {
	if !e.accepted {
		return true
	}
	if f.Kind == KindText {
		return s.Raw != e.accRaw
	}
	switch {
	case s.HasValue && e.accHasValue:
		return math.Abs(s.Value-e.accValue) >= f.Delta
	case !s.HasValue && !e.accHasValue:
		// Text-only snapshots of a numeric metric are shown as text.
		return plainText(s.Raw) != plainText(e.accRaw)
	default:
		return true
	}
}

// MarkDirty forces the next Flush to render.
func (c *Coalescer) MarkDirty() {
	c.dirty = true
}

func (c *Coalescer) Dirty() bool {
	return c.dirty
}

// Value returns the latest value observed for id.
func (c *Coalescer) Value(id string) (float64, bool) {
	e, ok := c.entries[id]
	if !ok || !e.hasValue {
		return 0, false
	}
	return e.value, true
}

// Raw returns the latest display text observed for id.
func (c *Coalescer) Raw(id string) string {
	if e, ok := c.entries[id]; ok {
		return e.raw
	}
	return ""
}

// Flush renders a frame if anything is dirty and clears the dirty flag.
func (c *Coalescer) Flush(cfg *config.Config, alerts AlertFunc, now time.Time) (Frame, bool) {
	if !c.dirty {
		return Frame{}, false
	}
	return c.Render(cfg, alerts, now), true
}

// Render recomputes the text of every visible metric in configured order.
func (c *Coalescer) Render(cfg *config.Config, alerts AlertFunc, now time.Time) Frame {
	visible := cfg.VisibleMetrics()
	frame := Frame{Items: make([]Item, 0, len(visible)), RenderedAt: now}
	next := make(map[string]Item, len(visible))

	for _, id := range visible {
		var value float64
		var hasValue bool
		var raw string
		e := c.entries[id]
		if e != nil {
			value, hasValue, raw = e.value, e.hasValue, e.raw
		}

		item := Item{
			ID:   id,
			Text: DisplayText(cfg.Label(id), FormatFor(id), value, hasValue, raw),
		}
		if alerts != nil {
			item.Alert = alerts(id, value, hasValue)
		}
		if e != nil {
			e.alert = item.Alert
		}

		if prev, ok := c.last[id]; !ok || prev != item {
			frame.Changed = append(frame.Changed, id)
		}
		frame.Items = append(frame.Items, item)
		next[id] = item
	}

	c.last = next
	c.dirty = false
	return frame
}

// AlertFlag returns the alert flag computed for id by the last render.
func (c *Coalescer) AlertFlag(id string) bool {
	if e, ok := c.entries[id]; ok {
		return e.alert
	}
	return false
}

// Item looks up id in the frame.
func (f Frame) Item(id string) (Item, bool) {
	i := slices.IndexFunc(f.Items, func(it Item) bool { return it.ID == id })
	if i < 0 {
		return Item{}, false
	}
	return f.Items[i], true
}
