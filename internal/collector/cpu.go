package collector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

// FPSSource reports the compositor frame rate. Linux exposes no frame
// counter outside the compositor, so every poll reports no data.
type FPSSource struct {
	base
}

func NewFPSSource(interval time.Duration) *FPSSource {
	return &FPSSource{base: newBase("fps", metric.CategoryFPS, interval)}
}

func (s *FPSSource) Poll(context.Context) (*metric.Snapshot, error) {
	return nil, nil
}

// CPULoadSource reports aggregate CPU utilisation from successive
// /proc/stat samples.
type CPULoadSource struct {
	base
	times func(ctx context.Context) ([]cpu.TimesStat, error)
	prev  *cpu.TimesStat
}

func NewCPULoadSource(interval time.Duration) *CPULoadSource {
	return &CPULoadSource{
		base: newBase("cpu-load", metric.CategoryCPU, interval),
		times: func(ctx context.Context) ([]cpu.TimesStat, error) {
			return cpu.TimesWithContext(ctx, false)
		},
	}
}

func (s *CPULoadSource) Poll(ctx context.Context) (*metric.Snapshot, error) {
	stats, err := s.times(ctx)
	if err != nil {
		return nil, fmt.Errorf("read cpu times: %w", err)
	}
	if len(stats) == 0 {
		return nil, nil
	}
	cur := stats[0]
	prev := s.prev
	s.prev = &cur
	if prev == nil {
		return nil, nil
	}

	total := cpuTotal(cur) - cpuTotal(*prev)
	idle := (cur.Idle + cur.Iowait) - (prev.Idle + prev.Iowait)
	if total <= 0 {
		return nil, nil
	}
	pct := (total - idle) / total * 100
	return s.reading(clampPercent(pct), ""), nil
}

// cpuTotal sums jiffies. Guest time is already counted in user.
func cpuTotal(t cpu.TimesStat) float64 {
	return t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
}

func clampPercent(v float64) float64 {
	return min(max(v, 0), 100)
}

// Chips known to carry the package temperature, best first.
var cpuTempChips = []string{"coretemp", "k10temp", "zenpower", "cpu_thermal", "acpitz"}

// CPUTempSource reports the CPU package temperature from hwmon.
type CPUTempSource struct {
	base
	input string
}

func NewCPUTempSource(interval time.Duration) *CPUTempSource {
	return &CPUTempSource{base: newBase("cpu-temp", metric.CategoryCPU, interval)}
}

func (s *CPUTempSource) Poll(context.Context) (*metric.Snapshot, error) {
	if s.input == "" {
		s.input = findCPUTempInput()
		if s.input == "" {
			return nil, nil
		}
	}
	milli, err := readIntFile(s.input)
	if err != nil {
		path := s.input
		s.input = ""
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s.reading(float64(milli)/1000, ""), nil
}

// findCPUTempInput returns the temperature input of the best matching
// hwmon chip. On coretemp the "Package id" input wins over per-core ones.
func findCPUTempInput() string {
	chips := hwmonByName()
	for _, name := range cpuTempChips {
		dir, ok := chips[name]
		if !ok {
			continue
		}
		labels, _ := filepath.Glob(filepath.Join(dir, "temp*_label"))
		for _, l := range labels {
			label, _ := readStringFile(l)
			if strings.HasPrefix(label, "Package id") || label == "Tctl" || label == "Tdie" {
				return strings.TrimSuffix(l, "_label") + "_input"
			}
		}
		if in := filepath.Join(dir, "temp1_input"); fileExists(in) {
			return in
		}
	}
	return ""
}

// hwmonByName maps hwmon chip names to their directories. The first chip
// wins when names repeat.
func hwmonByName() map[string]string {
	dirs, _ := filepath.Glob(sysPath("class/hwmon/hwmon*"))
	chips := make(map[string]string, len(dirs))
	for _, dir := range dirs {
		name, err := readStringFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		if _, seen := chips[name]; !seen {
			chips[name] = dir
		}
	}
	return chips
}

// CPUPowerSource reports package power from the RAPL energy counter.
type CPUPowerSource struct {
	base
	prevUJ int64
	prevAt time.Time
}

func NewCPUPowerSource(interval time.Duration) *CPUPowerSource {
	return &CPUPowerSource{base: newBase("cpu-power", metric.CategoryCPU, interval)}
}

func (s *CPUPowerSource) Poll(context.Context) (*metric.Snapshot, error) {
	dir := sysPath("class/powercap/intel-rapl:0")
	energy, err := readIntFile(filepath.Join(dir, "energy_uj"))
	if err != nil {
		// energy_uj is root-only on most kernels.
		if !fileExists(dir) || errors.Is(err, fs.ErrPermission) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rapl energy: %w", err)
	}
	now := s.now()
	prevUJ, prevAt := s.prevUJ, s.prevAt
	s.prevUJ, s.prevAt = energy, now
	if prevAt.IsZero() {
		return nil, nil
	}

	elapsed := now.Sub(prevAt).Seconds()
	if elapsed <= 0 {
		return nil, nil
	}
	delta := energy - prevUJ
	if delta < 0 {
		// Counter wrapped.
		maxRange, err := readIntFile(filepath.Join(dir, "max_energy_range_uj"))
		if err != nil || maxRange <= 0 {
			return nil, nil
		}
		delta += maxRange
	}
	watts := float64(delta) / 1e6 / elapsed
	return s.reading(watts, fmt.Sprintf("%.0fW", watts)), nil
}
