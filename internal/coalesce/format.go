package coalesce

import (
	"fmt"
	"strings"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

// Kind selects how a metric value is compared and displayed.
type Kind int

const (
	KindDecimal Kind = iota
	KindPercent
	KindTemperature
	KindFPS
	KindGigabytes
	KindWholeGigabytes
	KindRPM
	// KindText metrics are compared and displayed by their raw text only.
	KindText
)

const (
	PlaceholderValue = "--"
	PlaceholderText  = "N/A"
)

// Format describes one metric's significance delta and display style.
type Format struct {
	Kind  Kind
	Delta float64
}

var formats = map[string]Format{
	"fps":           {KindFPS, 1},
	"cpu-load":      {KindPercent, 0.5},
	"cpu-temp":      {KindTemperature, 0.5},
	"cpu-power":     {KindText, 0},
	"gpu-load":      {KindPercent, 0.5},
	"gpu-temp":      {KindTemperature, 0.5},
	"gpu-power":     {KindText, 0},
	"vram-used":     {KindText, 0},
	"ram-used":      {KindPercent, 0.5},
	"ram-free":      {KindGigabytes, 0.1},
	"internet":      {KindText, 0},
	"disk-io":       {KindText, 0},
	"fan-rpm":       {KindRPM, 25},
	"battery-power": {KindText, 0},
	"backlight":     {KindPercent, 1},
	"top-process":   {KindText, 0},
}

// FormatFor returns the format for id. Drive ids share one format; unknown
// ids are treated as plain decimals.
func FormatFor(id string) Format {
	if f, ok := formats[id]; ok {
		return f
	}
	if strings.HasPrefix(id, "drive-") {
		return Format{KindWholeGigabytes, 0.1}
	}
	return Format{KindDecimal, 0.5}
}

// valueText renders the part of a metric's text after its label.
func valueText(f Format, value float64, hasValue bool, raw string) string {
	if f.Kind == KindText {
		if t := plainText(raw); t != "" {
			return t
		}
		return PlaceholderText
	}
	if !hasValue {
		if t := plainText(raw); t != "" {
			return t
		}
		return PlaceholderValue
	}
	switch f.Kind {
	case KindPercent:
		return fmt.Sprintf("%.0f%%", value)
	case KindTemperature:
		return fmt.Sprintf("%.0f°C", value)
	case KindFPS:
		return fmt.Sprintf("%.0f", value)
	case KindGigabytes:
		return fmt.Sprintf("%.1fGB", value)
	case KindWholeGigabytes:
		return fmt.Sprintf("%.0fGB", value)
	case KindRPM:
		return fmt.Sprintf("%.0fRPM", value)
	default:
		return fmt.Sprintf("%.1f", value)
	}
}

// plainText returns raw unless it is empty or a fault diagnostic.
func plainText(raw string) string {
	if strings.HasPrefix(raw, metric.FaultPrefix) {
		return ""
	}
	return raw
}

// DisplayText joins label and value text.
func DisplayText(label string, f Format, value float64, hasValue bool, raw string) string {
	v := valueText(f, value, hasValue, raw)
	if label == "" {
		return v
	}
	return label + " " + v
}
