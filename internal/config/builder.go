package config

import (
	"fmt"
	"slices"
)

// Builder derives a new Config from an existing one. The base is deep
// copied, so published configurations are never mutated.
type Builder struct {
	cfg *Config
	err error
}

func NewBuilder(base *Config) *Builder {
	if base == nil {
		base = DefaultConfig()
	}
	return &Builder{cfg: base.Clone()}
}

func (b *Builder) UIUpdateInterval(ms int) *Builder {
	b.cfg.Display.UIUpdateIntervalMs = ms
	b.custom()
	return b
}

func (b *Builder) EnabledMetrics(ids ...string) *Builder {
	b.cfg.Display.EnabledMetrics = slices.Clone(ids)
	b.custom()
	return b
}

func (b *Builder) MetricOrder(ids ...string) *Builder {
	b.cfg.Display.MetricOrder = slices.Clone(ids)
	return b
}

func (b *Builder) Label(id, label string) *Builder {
	if b.cfg.Display.Labels == nil {
		b.cfg.Display.Labels = map[string]string{}
	}
	b.cfg.Display.Labels[id] = label
	return b
}

func (b *Builder) Threshold(id string, pct float64) *Builder {
	if b.cfg.Alerts.Thresholds == nil {
		b.cfg.Alerts.Thresholds = map[string]float64{}
	}
	b.cfg.Alerts.Thresholds[id] = pct
	return b
}

func (b *Builder) Blink(on bool) *Builder {
	b.cfg.Alerts.Blink = on
	return b
}

func (b *Builder) Opacity(v float64) *Builder {
	b.cfg.Display.Opacity = v
	b.custom()
	return b
}

func (b *Builder) Scale(v float64) *Builder {
	b.cfg.Display.Scale = v
	b.custom()
	return b
}

func (b *Builder) Theme(name string) *Builder {
	b.cfg.Display.Theme = name
	b.custom()
	return b
}

// Preset applies the preset with the given id. CustomPreset only marks the
// current settings as custom.
func (b *Builder) Preset(id string) *Builder {
	if id == CustomPreset {
		b.cfg.Display.ActivePreset = CustomPreset
		return b
	}
	p, ok := b.cfg.preset(id)
	if !ok {
		b.err = fmt.Errorf("unknown preset %q", id)
		return b
	}
	d := &b.cfg.Display
	d.Theme = p.Theme
	d.Opacity = p.Opacity
	d.Scale = p.Scale
	d.UIUpdateIntervalMs = p.UIUpdateIntervalMs
	d.EnabledMetrics = slices.Clone(p.EnabledMetrics)
	d.ActivePreset = p.ID
	return b
}

// NextPreset applies the preset after the active one, cycling through
// custom and then every configured preset.
func (b *Builder) NextPreset() *Builder {
	return b.Preset(b.cfg.nextPresetID())
}

// Build validates the result and returns the new configuration.
func (b *Builder) Build() (*Config, error) {
	if b.err != nil {
		return nil, b.err
	}
	return NormalizeAndValidate(b.cfg)
}

// custom marks a manual change to preset-controlled settings.
func (b *Builder) custom() {
	b.cfg.Display.ActivePreset = CustomPreset
}

func (c *Config) preset(id string) (Preset, bool) {
	for _, p := range c.Presets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

func (c *Config) nextPresetID() string {
	ids := make([]string, 0, len(c.Presets)+1)
	ids = append(ids, CustomPreset)
	for _, p := range c.Presets {
		ids = append(ids, p.ID)
	}
	i := slices.Index(ids, c.Display.ActivePreset)
	return ids[(i+1)%len(ids)]
}
