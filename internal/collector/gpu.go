package collector

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

type gpuField int

const (
	gpuLoad gpuField = iota
	gpuTemp
	gpuPower
	gpuVRAM
)

// gpuIDs maps metric ids to the field they report and the nvidia-smi query
// that returns it.
var gpuIDs = map[string]struct {
	field gpuField
	query string
}{
	"gpu-load":  {gpuLoad, "utilization.gpu"},
	"gpu-temp":  {gpuTemp, "temperature.gpu"},
	"gpu-power": {gpuPower, "power.draw"},
	"vram-used": {gpuVRAM, "memory.used"},
}

type gpuBackend int

const (
	gpuUndetected gpuBackend = iota
	gpuAbsent
	gpuNvidia
	gpuAMD
)

const amdVendorID = "0x1002"

// GPUSource reports one GPU field. It queries nvidia-smi when present and
// falls back to the amdgpu sysfs interface. Each source detects its own
// backend so no state is shared between GPU sources.
type GPUSource struct {
	base
	field   gpuField
	query   string
	backend gpuBackend
	device  string

	lookPath func(file string) (string, error)
	run      func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewGPUSource returns a source for id, or false when id is not a GPU metric.
func NewGPUSource(id string, interval time.Duration) (*GPUSource, bool) {
	def, ok := gpuIDs[id]
	if !ok {
		return nil, false
	}
	return &GPUSource{
		base:     newBase(id, metric.CategoryGPU, interval),
		field:    def.field,
		query:    def.query,
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}, true
}

func (s *GPUSource) Poll(ctx context.Context) (*metric.Snapshot, error) {
	if s.backend == gpuUndetected {
		s.detect()
	}
	switch s.backend {
	case gpuNvidia:
		return s.pollNvidia(ctx)
	case gpuAMD:
		return s.pollAMD()
	default:
		return nil, nil
	}
}

func (s *GPUSource) detect() {
	if _, err := s.lookPath("nvidia-smi"); err == nil {
		s.backend = gpuNvidia
		return
	}
	if dev := findAMDDevice(); dev != "" {
		s.backend, s.device = gpuAMD, dev
		return
	}
	s.backend = gpuAbsent
}

func findAMDDevice() string {
	vendors, _ := filepath.Glob(sysPath("class/drm/card[0-9]*/device/vendor"))
	for _, v := range vendors {
		if id, err := readStringFile(v); err == nil && id == amdVendorID {
			return filepath.Dir(v)
		}
	}
	return ""
}

func (s *GPUSource) pollNvidia(ctx context.Context) (*metric.Snapshot, error) {
	out, err := s.run(ctx, "nvidia-smi", "--query-gpu="+s.query, "--format=csv,noheader,nounits")
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi %s: %w", s.query, err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "[") {
		// [N/A] or [Not Supported]
		return nil, nil
	}
	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return nil, fmt.Errorf("parse nvidia-smi %s %q: %w", s.query, line, err)
	}
	if s.field == gpuVRAM {
		return s.vram(v * (1 << 20)), nil
	}
	return s.value(v), nil
}

func (s *GPUSource) pollAMD() (*metric.Snapshot, error) {
	var path string
	switch s.field {
	case gpuLoad:
		path = filepath.Join(s.device, "gpu_busy_percent")
	case gpuVRAM:
		path = filepath.Join(s.device, "mem_info_vram_used")
	case gpuTemp:
		path = s.hwmonFile("temp1_input")
	case gpuPower:
		path = s.hwmonFile("power1_average", "power1_input")
	}
	if path == "" {
		return nil, nil
	}
	raw, err := readIntFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	switch s.field {
	case gpuTemp:
		return s.value(float64(raw) / 1000), nil
	case gpuPower:
		return s.value(float64(raw) / 1e6), nil
	case gpuVRAM:
		return s.vram(float64(raw)), nil
	default:
		return s.value(float64(raw)), nil
	}
}

func (s *GPUSource) hwmonFile(names ...string) string {
	for _, name := range names {
		matches, _ := filepath.Glob(filepath.Join(s.device, "hwmon/hwmon*", name))
		if len(matches) > 0 {
			return matches[0]
		}
	}
	return ""
}

func (s *GPUSource) value(v float64) *metric.Snapshot {
	if s.field == gpuPower {
		return s.reading(v, fmt.Sprintf("%.0fW", v))
	}
	return s.reading(v, "")
}

// vram reports used memory in GiB with a human readable text.
func (s *GPUSource) vram(bytes float64) *metric.Snapshot {
	gib := bytes / (1 << 30)
	if gib >= 1 {
		return s.reading(gib, fmt.Sprintf("%.1fGB", gib))
	}
	return s.reading(gib, fmt.Sprintf("%.0fMB", bytes/(1<<20)))
}
