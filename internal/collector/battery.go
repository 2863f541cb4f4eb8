package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

// BatteryPowerSource reports battery charge or discharge power.
type BatteryPowerSource struct {
	base
}

func NewBatteryPowerSource(interval time.Duration) *BatteryPowerSource {
	return &BatteryPowerSource{base: newBase("battery-power", metric.CategoryOther, interval)}
}

func (s *BatteryPowerSource) Poll(context.Context) (*metric.Snapshot, error) {
	sample, err := readBattery()
	if err != nil {
		return nil, err
	}
	if sample == nil {
		return nil, nil
	}
	watts := float64(sample.PowerUW) / 1e6
	return s.reading(watts, formatBattery(sample)), nil
}

// formatBattery renders power with a sign for the flow direction and the
// charge level, e.g. "-12.3W 61%".
func formatBattery(b *BatterySample) string {
	sign := ""
	switch b.Status {
	case "Charging":
		sign = "+"
	case "Discharging":
		sign = "-"
	case "Full":
		return fmt.Sprintf("full %d%%", b.CapacityPct)
	}
	return fmt.Sprintf("%s%.1fW %d%%", sign, float64(b.PowerUW)/1e6, b.CapacityPct)
}

// readBattery reads the first battery's uevent. It returns nil without an
// error when the machine has no battery.
func readBattery() (*BatterySample, error) {
	matches, err := filepath.Glob(sysPath("class/power_supply/BAT*"))
	if err != nil {
		return nil, fmt.Errorf("glob battery: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	data, err := os.ReadFile(filepath.Join(matches[0], "uevent"))
	if err != nil {
		return nil, fmt.Errorf("read uevent: %w", err)
	}

	props := parseUevent(string(data))
	s := &BatterySample{Status: props["POWER_SUPPLY_STATUS"]}
	s.VoltageUV, _ = strconv.ParseInt(props["POWER_SUPPLY_VOLTAGE_NOW"], 10, 64)
	s.CurrentUA, _ = strconv.ParseInt(props["POWER_SUPPLY_CURRENT_NOW"], 10, 64)
	s.PowerUW, _ = strconv.ParseInt(props["POWER_SUPPLY_POWER_NOW"], 10, 64)
	capacity, _ := strconv.ParseInt(props["POWER_SUPPLY_CAPACITY"], 10, 64)
	s.CapacityPct = int(capacity)

	// If power_now isn't reported, compute from voltage * current.
	if s.PowerUW == 0 && s.VoltageUV > 0 && s.CurrentUA > 0 {
		s.PowerUW = (s.VoltageUV / 1000) * (s.CurrentUA / 1000)
	}

	// Some firmware reports "Discharging" at full capacity while on AC power.
	if s.Status == "Discharging" && s.CapacityPct >= 100 && isACOnline() {
		s.Status = "Full"
	}
	return s, nil
}

// isACOnline checks if any AC adapter is online.
func isACOnline() bool {
	matches, err := filepath.Glob(sysPath("class/power_supply/AC*/online"))
	if err != nil {
		return false
	}
	for _, path := range matches {
		if v, err := readStringFile(path); err == nil && v == "1" {
			return true
		}
	}
	return false
}

func parseUevent(data string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			props[k] = v
		}
	}
	return props
}
