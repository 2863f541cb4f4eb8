// Package collector implements the metric sources the bar polls.
package collector

import (
	"log/slog"
	"strings"
	"time"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/config"
	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

const defaultInterval = time.Second

// defaultIntervals lists sources that poll at something other than once a
// second.
var defaultIntervals = map[string]time.Duration{
	"fps":           250 * time.Millisecond,
	"internet":      2 * time.Second,
	"fan-rpm":       1500 * time.Millisecond,
	"battery-power": 5 * time.Second,
	"backlight":     5 * time.Second,
	"top-process":   5 * time.Second,
}

const driveInterval = 5 * time.Second

// Build returns one source per enabled metric in display order. Ids with no
// matching source are logged and skipped.
func Build(cfg *config.Config, logger *slog.Logger) []metric.Source {
	if logger == nil {
		logger = slog.Default()
	}
	var out []metric.Source
	for _, id := range cfg.VisibleMetrics() {
		src := NewSource(id, cfg)
		if src == nil {
			logger.Warn("no source for metric", "id", id)
			continue
		}
		out = append(out, src)
	}
	return out
}

// NewSource returns the source for id, or nil if id is unknown.
func NewSource(id string, cfg *config.Config) metric.Source {
	interval := Interval(id, cfg)
	switch id {
	case "fps":
		return NewFPSSource(interval)
	case "cpu-load":
		return NewCPULoadSource(interval)
	case "cpu-temp":
		return NewCPUTempSource(interval)
	case "cpu-power":
		return NewCPUPowerSource(interval)
	case "ram-used":
		return NewRAMUsedSource(interval)
	case "ram-free":
		return NewRAMFreeSource(interval)
	case "disk-io":
		return NewDiskIOSource(interval)
	case "internet":
		return NewNetworkSource(cfg.Collection.NetworkInterface, interval)
	case "fan-rpm":
		return NewFanSource(interval)
	case "battery-power":
		return NewBatteryPowerSource(interval)
	case "backlight":
		return NewBacklightSource(interval)
	case "top-process":
		return NewTopProcessSource(interval)
	}
	if src, ok := NewGPUSource(id, interval); ok {
		return src
	}
	if strings.HasPrefix(id, "drive-") {
		for _, d := range cfg.Collection.Drives {
			if d.ID == id {
				return NewDriveSource(id, d.Path, interval)
			}
		}
	}
	return nil
}

// Interval returns the poll interval for id, honouring configured overrides.
func Interval(id string, cfg *config.Config) time.Duration {
	if ms, ok := cfg.Collection.IntervalsMs[id]; ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	if d, ok := defaultIntervals[id]; ok {
		return d
	}
	if strings.HasPrefix(id, "drive-") {
		return driveInterval
	}
	return defaultInterval
}
