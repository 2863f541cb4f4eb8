package collector

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

// BacklightSource reports display brightness as a percentage of maximum.
type BacklightSource struct {
	base
}

func NewBacklightSource(interval time.Duration) *BacklightSource {
	return &BacklightSource{base: newBase("backlight", metric.CategoryOther, interval)}
}

func (s *BacklightSource) Poll(context.Context) (*metric.Snapshot, error) {
	sample, err := readBacklight()
	if err != nil {
		return nil, err
	}
	if sample == nil || sample.MaxBrightness <= 0 {
		return nil, nil
	}
	pct := float64(sample.Brightness) / float64(sample.MaxBrightness) * 100
	return s.reading(clampPercent(pct), ""), nil
}

// readBacklight reads the first backlight device. It returns nil without an
// error when there is none.
func readBacklight() (*BacklightSample, error) {
	matches, err := filepath.Glob(sysPath("class/backlight/*"))
	if err != nil {
		return nil, fmt.Errorf("glob backlight: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	dir := matches[0]
	brightness, err := readIntFile(filepath.Join(dir, "brightness"))
	if err != nil {
		return nil, fmt.Errorf("read brightness: %w", err)
	}
	maxBrightness, err := readIntFile(filepath.Join(dir, "max_brightness"))
	if err != nil {
		return nil, fmt.Errorf("read max_brightness: %w", err)
	}
	return &BacklightSample{Brightness: brightness, MaxBrightness: maxBrightness}, nil
}
