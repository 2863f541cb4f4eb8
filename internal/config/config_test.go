package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Display.UIUpdateIntervalMs != 250 {
		t.Fatalf("unexpected UIUpdateIntervalMs: %d", cfg.Display.UIUpdateIntervalMs)
	}
	if len(cfg.Display.EnabledMetrics) != 13 {
		t.Fatalf("unexpected EnabledMetrics: %v", cfg.Display.EnabledMetrics)
	}
	if cfg.Label("cpu-temp") != "CT" {
		t.Fatalf("unexpected cpu-temp label: %q", cfg.Label("cpu-temp"))
	}
	if v, ok := cfg.Threshold("cpu-load"); !ok || v != 90 {
		t.Fatalf("unexpected cpu-load threshold: %v %v", v, ok)
	}
	if _, ok := cfg.Threshold("cpu-temp"); ok {
		t.Fatal("cpu-temp must not be alert-eligible by default")
	}
	if !cfg.Alerts.Blink {
		t.Fatal("Blink should default to true")
	}
	if cfg.Display.ActivePreset != CustomPreset {
		t.Fatalf("unexpected ActivePreset: %q", cfg.Display.ActivePreset)
	}
	if cfg.Cleanup.RetentionDays != 30 {
		t.Fatalf("unexpected RetentionDays: %d", cfg.Cleanup.RetentionDays)
	}
	if _, err := NormalizeAndValidate(cfg); err != nil {
		t.Fatalf("NormalizeAndValidate(DefaultConfig()) error = %v", err)
	}
}

func TestLoad_OverridesAndKeepsDefaults(t *testing.T) {
	path := writeTempConfig(t, `
[storage]
db_path = "/tmp/test.db"

[display]
ui_update_interval_ms = 500
enabled_metrics = ["cpu-load", "ram-used"]

[display.labels]
cpu-load = "P"

[alerts.thresholds]
gpu-load = 75.0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.DBPath != "/tmp/test.db" {
		t.Fatalf("DBPath = %q, want /tmp/test.db", cfg.Storage.DBPath)
	}
	if cfg.Display.UIUpdateIntervalMs != 500 {
		t.Fatalf("UIUpdateIntervalMs = %d, want 500", cfg.Display.UIUpdateIntervalMs)
	}
	if got := cfg.VisibleMetrics(); !slices.Equal(got, []string{"cpu-load", "ram-used"}) {
		t.Fatalf("VisibleMetrics() = %v, want [cpu-load ram-used]", got)
	}
	if cfg.Label("cpu-load") != "P" {
		t.Fatalf("Label(cpu-load) = %q, want P", cfg.Label("cpu-load"))
	}
	if cfg.Label("ram-used") != "RAM" {
		t.Fatalf("Label(ram-used) = %q, want default RAM", cfg.Label("ram-used"))
	}
	if v, _ := cfg.Threshold("gpu-load"); v != 75 {
		t.Fatalf("Threshold(gpu-load) = %v, want 75", v)
	}
	if v, _ := cfg.Threshold("cpu-load"); v != 90 {
		t.Fatalf("Threshold(cpu-load) = %v, want default 90", v)
	}
	if len(cfg.Presets) != len(DefaultPresets()) {
		t.Fatalf("Presets = %d, want defaults", len(cfg.Presets))
	}
	if len(cfg.Collection.Drives) != 2 {
		t.Fatalf("Drives = %v, want defaults", cfg.Collection.Drives)
	}
	if cfg.Cleanup.IntervalHours != 24 {
		t.Fatalf("IntervalHours = %d, want default 24", cfg.Cleanup.IntervalHours)
	}
}

func TestLoad_ArraysOfTablesReplaceDefaults(t *testing.T) {
	path := writeTempConfig(t, `
[[collection.drives]]
id = "drive-data"
path = "/mnt/data"

[[presets]]
id = "quiet"
ui_update_interval_ms = 1500
enabled_metrics = ["cpu-load"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Collection.Drives) != 1 || cfg.Collection.Drives[0].Path != "/mnt/data" {
		t.Fatalf("Drives = %v, want only drive-data", cfg.Collection.Drives)
	}
	if cfg.Label("drive-data") != "DATA" {
		t.Fatalf("Label(drive-data) = %q, want DATA", cfg.Label("drive-data"))
	}
	if len(cfg.Presets) != 1 {
		t.Fatalf("Presets = %v, want only quiet", cfg.Presets)
	}
	p := cfg.Presets[0]
	if p.Name != "quiet" || p.Theme != "Dark" || p.Opacity != minOpacity {
		t.Fatalf("preset = %#v, want normalized name/theme/opacity", p)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err == nil {
		t.Fatal("Load() error = nil, want missing file error")
	}
	if !os.IsNotExist(err) {
		t.Fatalf("Load() error = %v, want not-exist error", err)
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Display.UIUpdateIntervalMs != 250 {
		t.Fatalf("UIUpdateIntervalMs = %d, want default", cfg.Display.UIUpdateIntervalMs)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTempConfig(t, "not = [valid")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() error = nil, want TOML parse error")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name       string
		contents   string
		wantErrSub string
	}{
		{
			name: "relative db path",
			contents: `
[storage]
db_path = "data.db"
`,
			wantErrSub: "storage.db_path must be an absolute path",
		},
		{
			name: "poll interval too short",
			contents: `
[collection.intervals_ms]
cpu-load = 10
`,
			wantErrSub: "collection.intervals_ms.cpu-load must be between 50 and 600000, got 10",
		},
		{
			name: "drive id without prefix",
			contents: `
[[collection.drives]]
id = "data"
path = "/mnt/data"
`,
			wantErrSub: `collection.drives[0].id must start with "drive-"`,
		},
		{
			name: "duplicate drive id",
			contents: `
[[collection.drives]]
id = "drive-a"
path = "/a"

[[collection.drives]]
id = "drive-a"
path = "/b"
`,
			wantErrSub: `collection.drives[1].id "drive-a" is duplicated`,
		},
		{
			name: "reserved preset id",
			contents: `
[[presets]]
id = "custom"
`,
			wantErrSub: `presets[0].id "custom" is reserved or duplicated`,
		},
		{
			name: "retention_days out of range",
			contents: `
[cleanup]
retention_days = 0
`,
			wantErrSub: "cleanup.retention_days must be between 1 and 3650, got 0",
		},
		{
			name: "interval_hours out of range",
			contents: `
[cleanup]
interval_hours = 0
`,
			wantErrSub: "cleanup.interval_hours must be between 1 and 720, got 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, tt.contents)

			_, err := Load(path)
			if err == nil {
				t.Fatalf("Load() error = nil, want error containing %q", tt.wantErrSub)
			}
			if !strings.Contains(err.Error(), tt.wantErrSub) {
				t.Fatalf("Load() error = %q, want contains %q", err.Error(), tt.wantErrSub)
			}
		})
	}
}

func TestNormalizeAndValidate_ClampsDisplayValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Display.UIUpdateIntervalMs = 50
	cfg.Display.Opacity = 3
	cfg.Display.Theme = "LIGHT"
	cfg.Display.MetricOrder = []string{"cpu-load", " ", "cpu-load", "ram-used"}
	cfg.Display.ActivePreset = "nonexistent"
	cfg.Alerts.Thresholds["cpu-load"] = 250

	got, err := NormalizeAndValidate(cfg)
	if err != nil {
		t.Fatalf("NormalizeAndValidate() error = %v", err)
	}
	if got.Display.UIUpdateIntervalMs != 200 {
		t.Fatalf("UIUpdateIntervalMs = %d, want 200", got.Display.UIUpdateIntervalMs)
	}
	if got.Display.Opacity != 1 {
		t.Fatalf("Opacity = %v, want 1", got.Display.Opacity)
	}
	if got.Display.Theme != "Light" {
		t.Fatalf("Theme = %q, want Light", got.Display.Theme)
	}
	if !slices.Equal(got.Display.MetricOrder, []string{"cpu-load", "ram-used"}) {
		t.Fatalf("MetricOrder = %v, want deduplicated", got.Display.MetricOrder)
	}
	if got.Display.ActivePreset != CustomPreset {
		t.Fatalf("ActivePreset = %q, want custom", got.Display.ActivePreset)
	}
	if got.Alerts.Thresholds["cpu-load"] != 100 {
		t.Fatalf("Threshold = %v, want 100", got.Alerts.Thresholds["cpu-load"])
	}

	cfg.Display.UIUpdateIntervalMs = 99999
	got, err = NormalizeAndValidate(cfg)
	if err != nil {
		t.Fatalf("NormalizeAndValidate() error = %v", err)
	}
	if got.Display.UIUpdateIntervalMs != 2000 {
		t.Fatalf("UIUpdateIntervalMs = %d, want 2000", got.Display.UIUpdateIntervalMs)
	}

	if cfg.Display.Opacity != 3 {
		t.Fatal("NormalizeAndValidate mutated its input")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := NewBuilder(DefaultConfig()).
		UIUpdateInterval(750).
		EnabledMetrics("cpu-load", "gpu-temp").
		Label("gpu-temp", "G°").
		Threshold("gpu-load", 80).
		Blink(false).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Display.UIUpdateIntervalMs != 750 || loaded.Alerts.Blink {
		t.Fatalf("loaded display/alerts = %#v / %#v", loaded.Display, loaded.Alerts)
	}
	if !slices.Equal(loaded.Display.EnabledMetrics, []string{"cpu-load", "gpu-temp"}) {
		t.Fatalf("EnabledMetrics = %v", loaded.Display.EnabledMetrics)
	}
	if loaded.Label("gpu-temp") != "G°" {
		t.Fatalf("Label(gpu-temp) = %q, want G°", loaded.Label("gpu-temp"))
	}
	if loaded.SourceKey() != cfg.SourceKey() {
		t.Fatalf("SourceKey() = %q, want %q", loaded.SourceKey(), cfg.SourceKey())
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".config-*"))
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}

func TestSave_EmptyPath(t *testing.T) {
	if err := Save("  ", DefaultConfig()); err == nil {
		t.Fatal("Save() error = nil, want empty path error")
	}
}

func TestVisibleMetrics_AppendsEnabledOutsideOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Display.MetricOrder = []string{"ram-used", "cpu-load"}
	cfg.Display.EnabledMetrics = []string{"cpu-load", "fan-rpm", "ram-used"}

	got := cfg.VisibleMetrics()
	want := []string{"ram-used", "cpu-load", "fan-rpm"}
	if !slices.Equal(got, want) {
		t.Fatalf("VisibleMetrics() = %v, want %v", got, want)
	}
}

func TestSourceKey(t *testing.T) {
	base := DefaultConfig()

	reordered := base.Clone()
	slices.Reverse(reordered.Display.EnabledMetrics)
	reordered.Display.UIUpdateIntervalMs = 1000
	if base.SourceKey() != reordered.SourceKey() {
		t.Fatal("SourceKey() changed for display-only edits")
	}

	fewer := base.Clone()
	fewer.Display.EnabledMetrics = fewer.Display.EnabledMetrics[:3]
	if base.SourceKey() == fewer.SourceKey() {
		t.Fatal("SourceKey() unchanged after disabling metrics")
	}

	interval := base.Clone()
	interval.Collection.IntervalsMs["cpu-load"] = 500
	if base.SourceKey() == interval.SourceKey() {
		t.Fatal("SourceKey() unchanged after interval override")
	}
}

func TestClone_IsDeep(t *testing.T) {
	cfg := DefaultConfig()
	c := cfg.Clone()
	c.Display.Labels["cpu-load"] = "X"
	c.Display.EnabledMetrics[0] = "X"
	c.Presets[0].EnabledMetrics[0] = "X"
	c.Alerts.Thresholds["cpu-load"] = 1

	if cfg.Label("cpu-load") != "CPU" || cfg.Display.EnabledMetrics[0] != "fps" ||
		cfg.Presets[0].EnabledMetrics[0] != "fps" || cfg.Alerts.Thresholds["cpu-load"] != 90 {
		t.Fatal("Clone() shares state with the original")
	}
}
