package collector

// BatterySample holds battery state from /sys/class/power_supply/BAT*.
type BatterySample struct {
	VoltageUV   int64  `json:"voltage_uv"`
	CurrentUA   int64  `json:"current_ua"`
	PowerUW     int64  `json:"power_uw"`
	CapacityPct int    `json:"capacity_pct"`
	Status      string `json:"status"`
}

// BacklightSample holds display backlight state.
type BacklightSample struct {
	Brightness    int64 `json:"brightness"`
	MaxBrightness int64 `json:"max_brightness"`
}

// ProcessSample is the busiest process over one polling interval.
type ProcessSample struct {
	PID        int     `json:"pid"`
	Comm       string  `json:"comm"`
	Cmdline    string  `json:"cmdline"`
	TicksDelta int64   `json:"ticks_delta"`
	CPUPercent float64 `json:"cpu_percent"`
}
