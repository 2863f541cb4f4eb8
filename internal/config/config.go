package config

import (
	"bytes"
	"fmt"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	minUIUpdateIntervalMs   = 200
	maxUIUpdateIntervalMs   = 2000
	minPollIntervalMs       = 50
	maxPollIntervalMs       = 600000
	minOpacity              = 0.2
	maxOpacity              = 1.0
	minScale                = 0.5
	maxScale                = 3.0
	minThreshold            = 1.0
	maxThreshold            = 100.0
	minRetentionDays        = 1
	maxRetentionDays        = 3650
	minCleanupIntervalHours = 1
	maxCleanupIntervalHours = 720

	// CustomPreset is the implicit preset that means "whatever the user set".
	CustomPreset = "custom"
)

type Config struct {
	Storage    StorageConfig    `toml:"storage" json:"storage" yaml:"storage"`
	Collection CollectionConfig `toml:"collection" json:"collection" yaml:"collection"`
	Display    DisplayConfig    `toml:"display" json:"display" yaml:"display"`
	Alerts     AlertConfig      `toml:"alerts" json:"alerts" yaml:"alerts"`
	Cleanup    CleanupConfig    `toml:"cleanup" json:"cleanup" yaml:"cleanup"`
	Presets    []Preset         `toml:"presets" json:"presets" yaml:"presets"`
}

type StorageConfig struct {
	DBPath string `toml:"db_path" json:"db_path" yaml:"db_path"`
}

type CollectionConfig struct {
	// IntervalsMs overrides the poll interval of individual metric ids.
	IntervalsMs      map[string]int `toml:"intervals_ms" json:"intervals_ms" yaml:"intervals_ms"`
	Drives           []Drive        `toml:"drives" json:"drives" yaml:"drives"`
	NetworkInterface string         `toml:"network_interface" json:"network_interface" yaml:"network_interface"`
}

// Drive maps a metric id to the mount point whose free space it reports.
type Drive struct {
	ID   string `toml:"id" json:"id" yaml:"id"`
	Path string `toml:"path" json:"path" yaml:"path"`
}

type DisplayConfig struct {
	UIUpdateIntervalMs int               `toml:"ui_update_interval_ms" json:"ui_update_interval_ms" yaml:"ui_update_interval_ms"`
	MetricOrder        []string          `toml:"metric_order" json:"metric_order" yaml:"metric_order"`
	EnabledMetrics     []string          `toml:"enabled_metrics" json:"enabled_metrics" yaml:"enabled_metrics"`
	Labels             map[string]string `toml:"labels" json:"labels" yaml:"labels"`
	Opacity            float64           `toml:"opacity" json:"opacity" yaml:"opacity"`
	Scale              float64           `toml:"scale" json:"scale" yaml:"scale"`
	Theme              string            `toml:"theme" json:"theme" yaml:"theme"`
	Background         string            `toml:"background" json:"background" yaml:"background"`
	ActivePreset       string            `toml:"active_preset" json:"active_preset" yaml:"active_preset"`
}

type AlertConfig struct {
	Blink      bool               `toml:"blink" json:"blink" yaml:"blink"`
	Thresholds map[string]float64 `toml:"thresholds" json:"thresholds" yaml:"thresholds"`
}

type CleanupConfig struct {
	RetentionDays int `toml:"retention_days" json:"retention_days" yaml:"retention_days"`
	IntervalHours int `toml:"interval_hours" json:"interval_hours" yaml:"interval_hours"`
}

// Preset is a named bundle of display settings.
type Preset struct {
	ID                 string   `toml:"id" json:"id" yaml:"id"`
	Name               string   `toml:"name" json:"name" yaml:"name"`
	Theme              string   `toml:"theme" json:"theme" yaml:"theme"`
	Opacity            float64  `toml:"opacity" json:"opacity" yaml:"opacity"`
	Scale              float64  `toml:"scale" json:"scale" yaml:"scale"`
	UIUpdateIntervalMs int      `toml:"ui_update_interval_ms" json:"ui_update_interval_ms" yaml:"ui_update_interval_ms"`
	EnabledMetrics     []string `toml:"enabled_metrics" json:"enabled_metrics" yaml:"enabled_metrics"`
}

var defaultOrder = []string{
	"fps", "cpu-load", "cpu-temp", "cpu-power",
	"gpu-load", "gpu-temp", "gpu-power", "vram-used",
	"ram-used", "ram-free", "drive-root", "drive-home", "internet",
	"disk-io", "fan-rpm", "battery-power", "backlight", "top-process",
}

var defaultLabels = map[string]string{
	"fps":           "FPS",
	"cpu-load":      "CPU",
	"cpu-temp":      "CT",
	"cpu-power":     "CPW",
	"gpu-load":      "GPU",
	"gpu-temp":      "GT",
	"gpu-power":     "GPW",
	"vram-used":     "VRAM",
	"ram-used":      "RAM",
	"ram-free":      "FREE",
	"drive-root":    "/",
	"drive-home":    "HOME",
	"internet":      "NET",
	"disk-io":       "IO",
	"fan-rpm":       "FAN",
	"battery-power": "BAT",
	"backlight":     "BL",
	"top-process":   "TOP",
}

func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DBPath: filepath.Join(defaultDataDir(), "health.db"),
		},
		Collection: CollectionConfig{
			IntervalsMs: map[string]int{},
			Drives: []Drive{
				{ID: "drive-root", Path: "/"},
				{ID: "drive-home", Path: "/home"},
			},
		},
		Display: DisplayConfig{
			UIUpdateIntervalMs: 250,
			MetricOrder:        slices.Clone(defaultOrder),
			EnabledMetrics:     slices.Clone(defaultOrder[:13]),
			Labels:             maps.Clone(defaultLabels),
			Opacity:            0.92,
			Scale:              1.0,
			Theme:              "Dark",
			Background:         "#DD111111",
			ActivePreset:       CustomPreset,
		},
		Alerts: AlertConfig{
			Blink: true,
			Thresholds: map[string]float64{
				"cpu-load": 90,
				"ram-used": 90,
				"gpu-load": 90,
			},
		},
		Cleanup: CleanupConfig{
			RetentionDays: 30,
			IntervalHours: 24,
		},
		Presets: DefaultPresets(),
	}
}

// DefaultPresets returns the built-in presets.
func DefaultPresets() []Preset {
	return []Preset{
		{
			ID: "gaming", Name: "Gaming", Theme: "Dark", Opacity: 0.85, Scale: 1.0,
			UIUpdateIntervalMs: 250,
			EnabledMetrics:     []string{"fps", "cpu-load", "cpu-temp", "gpu-load", "gpu-temp", "vram-used", "ram-used"},
		},
		{
			ID: "minimal", Name: "Minimal", Theme: "Dark", Opacity: 0.75, Scale: 0.9,
			UIUpdateIntervalMs: 1000,
			EnabledMetrics:     []string{"cpu-load", "ram-used", "internet"},
		},
		{
			ID: "workstation", Name: "Workstation", Theme: "Light", Opacity: 1.0, Scale: 1.0,
			UIUpdateIntervalMs: 500,
			EnabledMetrics:     []string{"cpu-load", "cpu-temp", "ram-used", "ram-free", "drive-root", "drive-home", "disk-io", "internet"},
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/telemetry-bar/config.toml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(os.TempDir(), "telemetry-bar")
		return filepath.Join(dir, "config.toml")
	}
	return filepath.Join(dir, "telemetry-bar", "config.toml")
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); filepath.IsAbs(dir) {
		return filepath.Join(dir, "telemetry-bar")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "telemetry-bar")
	}
	return filepath.Join(os.TempDir(), "telemetry-bar")
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Arrays of tables replace the defaults wholesale instead of merging
	// field by field into the default elements.
	defaults := *cfg
	cfg.Presets = nil
	cfg.Collection.Drives = nil

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, err
	}
	if !md.IsDefined("presets") {
		cfg.Presets = defaults.Presets
	}
	if !md.IsDefined("collection", "drives") {
		cfg.Collection.Drives = defaults.Collection.Drives
	}

	return NormalizeAndValidate(cfg)
}

// LoadOrDefault loads path, falling back to defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// NormalizeAndValidate returns a sanitized deep copy of cfg. Display values
// outside their range are clamped; structural problems are errors.
func NormalizeAndValidate(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	sanitized := cfg.Clone()

	var err error
	sanitized.Storage.DBPath, err = sanitizePath("storage.db_path", sanitized.Storage.DBPath)
	if err != nil {
		return nil, err
	}

	if sanitized.Collection.IntervalsMs == nil {
		sanitized.Collection.IntervalsMs = map[string]int{}
	}
	for _, id := range slices.Sorted(maps.Keys(sanitized.Collection.IntervalsMs)) {
		name := "collection.intervals_ms." + id
		if err := validateRange(name, sanitized.Collection.IntervalsMs[id], minPollIntervalMs, maxPollIntervalMs); err != nil {
			return nil, err
		}
	}
	seenDrives := make(map[string]bool)
	for i, d := range sanitized.Collection.Drives {
		if !strings.HasPrefix(d.ID, "drive-") || len(d.ID) == len("drive-") {
			return nil, fmt.Errorf("collection.drives[%d].id must start with \"drive-\", got %q", i, d.ID)
		}
		if seenDrives[d.ID] {
			return nil, fmt.Errorf("collection.drives[%d].id %q is duplicated", i, d.ID)
		}
		seenDrives[d.ID] = true
		sanitized.Collection.Drives[i].Path, err = sanitizePath(fmt.Sprintf("collection.drives[%d].path", i), d.Path)
		if err != nil {
			return nil, err
		}
	}
	sanitized.Collection.NetworkInterface = strings.TrimSpace(sanitized.Collection.NetworkInterface)

	d := &sanitized.Display
	d.UIUpdateIntervalMs = clampInt(d.UIUpdateIntervalMs, minUIUpdateIntervalMs, maxUIUpdateIntervalMs)
	d.Opacity = clampFloat(d.Opacity, minOpacity, maxOpacity)
	d.Scale = clampFloat(d.Scale, minScale, maxScale)
	d.Theme = normalizeTheme(d.Theme)
	d.MetricOrder = dedupe(d.MetricOrder)
	if len(d.MetricOrder) == 0 {
		d.MetricOrder = slices.Clone(defaultOrder)
	}
	d.EnabledMetrics = dedupe(d.EnabledMetrics)
	if d.Labels == nil {
		d.Labels = map[string]string{}
	}
	for id, label := range defaultLabels {
		if _, ok := d.Labels[id]; !ok {
			d.Labels[id] = label
		}
	}
	for _, drive := range sanitized.Collection.Drives {
		if _, ok := d.Labels[drive.ID]; !ok {
			d.Labels[drive.ID] = strings.ToUpper(strings.TrimPrefix(drive.ID, "drive-"))
		}
	}

	if sanitized.Alerts.Thresholds == nil {
		sanitized.Alerts.Thresholds = map[string]float64{}
	}
	for id, v := range sanitized.Alerts.Thresholds {
		sanitized.Alerts.Thresholds[id] = clampFloat(v, minThreshold, maxThreshold)
	}

	if err := validateRange("cleanup.retention_days", sanitized.Cleanup.RetentionDays, minRetentionDays, maxRetentionDays); err != nil {
		return nil, err
	}
	if err := validateRange("cleanup.interval_hours", sanitized.Cleanup.IntervalHours, minCleanupIntervalHours, maxCleanupIntervalHours); err != nil {
		return nil, err
	}

	seenPresets := map[string]bool{CustomPreset: true}
	for i := range sanitized.Presets {
		p := &sanitized.Presets[i]
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("presets[%d].id must not be empty", i)
		}
		if seenPresets[p.ID] {
			return nil, fmt.Errorf("presets[%d].id %q is reserved or duplicated", i, p.ID)
		}
		seenPresets[p.ID] = true
		if p.Name == "" {
			p.Name = p.ID
		}
		p.Theme = normalizeTheme(p.Theme)
		p.Opacity = clampFloat(p.Opacity, minOpacity, maxOpacity)
		p.Scale = clampFloat(p.Scale, minScale, maxScale)
		p.UIUpdateIntervalMs = clampInt(p.UIUpdateIntervalMs, minUIUpdateIntervalMs, maxUIUpdateIntervalMs)
		p.EnabledMetrics = dedupe(p.EnabledMetrics)
	}
	if !seenPresets[d.ActivePreset] {
		d.ActivePreset = CustomPreset
	}

	return sanitized, nil
}

func Save(path string, cfg *Config) error {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return fmt.Errorf("config path must not be empty")
	}

	sanitized, err := NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}

	var data bytes.Buffer
	if err := toml.NewEncoder(&data).Encode(sanitized); err != nil {
		return fmt.Errorf("encode config TOML: %w", err)
	}

	return writeAtomic(trimmedPath, data.Bytes())
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	tmpPath = ""

	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Collection.IntervalsMs = maps.Clone(c.Collection.IntervalsMs)
	out.Collection.Drives = slices.Clone(c.Collection.Drives)
	out.Display.MetricOrder = slices.Clone(c.Display.MetricOrder)
	out.Display.EnabledMetrics = slices.Clone(c.Display.EnabledMetrics)
	out.Display.Labels = maps.Clone(c.Display.Labels)
	out.Alerts.Thresholds = maps.Clone(c.Alerts.Thresholds)
	out.Presets = make([]Preset, len(c.Presets))
	for i, p := range c.Presets {
		p.EnabledMetrics = slices.Clone(p.EnabledMetrics)
		out.Presets[i] = p
	}
	if c.Presets == nil {
		out.Presets = nil
	}
	return &out
}

// VisibleMetrics returns the enabled metric ids in display order. Enabled ids
// missing from the order are appended.
func (c *Config) VisibleMetrics() []string {
	enabled := make(map[string]bool, len(c.Display.EnabledMetrics))
	for _, id := range c.Display.EnabledMetrics {
		enabled[id] = true
	}
	out := make([]string, 0, len(enabled))
	placed := make(map[string]bool, len(enabled))
	for _, id := range c.Display.MetricOrder {
		if enabled[id] && !placed[id] {
			out = append(out, id)
			placed[id] = true
		}
	}
	for _, id := range c.Display.EnabledMetrics {
		if !placed[id] {
			out = append(out, id)
			placed[id] = true
		}
	}
	return out
}

// Label returns the display prefix for id.
func (c *Config) Label(id string) string {
	if l, ok := c.Display.Labels[id]; ok {
		return l
	}
	return strings.ToUpper(id)
}

// Threshold returns the alert threshold for id and whether id is alert-eligible.
func (c *Config) Threshold(id string) (float64, bool) {
	v, ok := c.Alerts.Thresholds[id]
	return v, ok
}

// SourceKey identifies the set of sources this configuration requires. Two
// configurations with the same key can share a running engine.
func (c *Config) SourceKey() string {
	var b strings.Builder
	for _, id := range slices.Sorted(slices.Values(c.Display.EnabledMetrics)) {
		fmt.Fprintf(&b, "m=%s;", id)
	}
	for _, d := range c.Collection.Drives {
		fmt.Fprintf(&b, "d=%s:%s;", d.ID, d.Path)
	}
	for _, id := range slices.Sorted(maps.Keys(c.Collection.IntervalsMs)) {
		fmt.Fprintf(&b, "i=%s:%d;", id, c.Collection.IntervalsMs[id])
	}
	fmt.Fprintf(&b, "n=%s", c.Collection.NetworkInterface)
	return b.String()
}

func sanitizePath(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	cleaned := filepath.Clean(trimmed)
	if !filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%s must be an absolute path, got %q", name, value)
	}
	return cleaned, nil
}

func validateRange(name string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, value)
	}

	return nil
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return hi
	}
	return math.Max(lo, math.Min(v, hi))
}

func normalizeTheme(theme string) string {
	switch strings.ToLower(strings.TrimSpace(theme)) {
	case "light":
		return "Light"
	default:
		return "Dark"
	}
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
