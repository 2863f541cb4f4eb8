package collector

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

// FanSource reports the fastest fan speed across all hwmon chips.
type FanSource struct {
	base
}

func NewFanSource(interval time.Duration) *FanSource {
	return &FanSource{base: newBase("fan-rpm", metric.CategoryOther, interval)}
}

func (s *FanSource) Poll(context.Context) (*metric.Snapshot, error) {
	inputs, _ := filepath.Glob(sysPath("class/hwmon/hwmon*/fan*_input"))
	var best int64
	found := false
	for _, in := range inputs {
		rpm, err := readIntFile(in)
		if err != nil {
			continue
		}
		found = true
		best = max(best, rpm)
	}
	if !found {
		return nil, nil
	}
	return s.reading(float64(best), ""), nil
}
