package collector

import (
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/config"
)

func TestBuild_FollowsEnabledMetricsInOrder(t *testing.T) {
	cfg, err := config.NewBuilder(config.DefaultConfig()).
		EnabledMetrics("ram-used", "fps", "drive-root", "gpu-power", "top-process").
		MetricOrder("fps", "gpu-power", "ram-used", "drive-root", "top-process").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	sources := Build(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var ids []string
	for _, s := range sources {
		ids = append(ids, s.ID())
	}
	want := []string{"fps", "gpu-power", "ram-used", "drive-root", "top-process"}
	if !slices.Equal(ids, want) {
		t.Fatalf("source ids = %v, want %v", ids, want)
	}
}

func TestNewSource_EveryDefaultMetricHasASource(t *testing.T) {
	cfg := config.DefaultConfig()
	for _, id := range cfg.Display.MetricOrder {
		if NewSource(id, cfg) == nil {
			t.Fatalf("NewSource(%q) = nil", id)
		}
	}
	if NewSource("drive-unknown", cfg) != nil {
		t.Fatal("NewSource(drive-unknown) built a source without a configured path")
	}
	if NewSource("bogus", cfg) != nil {
		t.Fatal("NewSource(bogus) != nil")
	}
}

func TestInterval(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Collection.IntervalsMs["cpu-load"] = 500

	tests := []struct {
		id   string
		want time.Duration
	}{
		{"cpu-load", 500 * time.Millisecond},
		{"fps", 250 * time.Millisecond},
		{"internet", 2 * time.Second},
		{"fan-rpm", 1500 * time.Millisecond},
		{"drive-home", 5 * time.Second},
		{"gpu-temp", time.Second},
	}
	for _, tt := range tests {
		if got := Interval(tt.id, cfg); got != tt.want {
			t.Fatalf("Interval(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
