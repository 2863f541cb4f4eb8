package collector

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func nvidiaSource(t *testing.T, id, out string, err error) (*GPUSource, *[]string) {
	t.Helper()
	s, ok := NewGPUSource(id, time.Second)
	if !ok {
		t.Fatalf("NewGPUSource(%q) = false", id)
	}
	var args []string
	s.lookPath = func(string) (string, error) { return "/usr/bin/nvidia-smi", nil }
	s.run = func(_ context.Context, name string, a ...string) ([]byte, error) {
		args = append([]string{name}, a...)
		return []byte(out), err
	}
	return s, &args
}

func TestGPUSource_Nvidia(t *testing.T) {
	tests := []struct {
		id       string
		out      string
		query    string
		wantVal  float64
		wantText string
	}{
		{"gpu-load", "37\n", "utilization.gpu", 37, ""},
		{"gpu-temp", "64\n1\n", "temperature.gpu", 64, ""},
		{"gpu-power", "182.41\n", "power.draw", 182.41, "182W"},
		{"vram-used", "3072\n", "memory.used", 3, "3.0GB"},
		{"vram-used", "512\n", "memory.used", 0.5, "512MB"},
	}
	for _, tt := range tests {
		t.Run(tt.id+tt.out, func(t *testing.T) {
			s, args := nvidiaSource(t, tt.id, tt.out, nil)
			snap, err := s.Poll(context.Background())
			if err != nil {
				t.Fatalf("Poll() error = %v", err)
			}
			if snap.Value != tt.wantVal || snap.Raw != tt.wantText {
				t.Fatalf("snapshot = %v/%q, want %v/%q", snap.Value, snap.Raw, tt.wantVal, tt.wantText)
			}
			if !slices.Contains(*args, "--query-gpu="+tt.query) {
				t.Fatalf("args = %v, want query %s", *args, tt.query)
			}
		})
	}
}

func TestGPUSource_NvidiaUnsupportedIsNoData(t *testing.T) {
	s, _ := nvidiaSource(t, "gpu-power", "[Not Supported]\n", nil)
	snap, err := s.Poll(context.Background())
	if err != nil || snap != nil {
		t.Fatalf("Poll() = %v, %v, want nil, nil", snap, err)
	}
}

func TestGPUSource_NvidiaFailureIsFault(t *testing.T) {
	s, _ := nvidiaSource(t, "gpu-load", "", errors.New("exit status 9"))
	if _, err := s.Poll(context.Background()); err == nil {
		t.Fatal("Poll() error = nil, want nvidia-smi failure")
	}
}

func TestGPUSource_AMDFallback(t *testing.T) {
	root := setTestSysfsRoot(t)
	intel := filepath.Join(root, "class/drm/card0/device")
	writeTestFile(t, filepath.Join(intel, "vendor"), "0x8086\n")
	amd := filepath.Join(root, "class/drm/card1/device")
	writeTestFile(t, filepath.Join(amd, "vendor"), "0x1002\n")
	writeTestFile(t, filepath.Join(amd, "gpu_busy_percent"), "42\n")
	writeTestFile(t, filepath.Join(amd, "mem_info_vram_used"), "2147483648\n")
	writeTestFile(t, filepath.Join(amd, "hwmon/hwmon5/temp1_input"), "71000\n")
	writeTestFile(t, filepath.Join(amd, "hwmon/hwmon5/power1_average"), "95000000\n")

	tests := []struct {
		id       string
		wantVal  float64
		wantText string
	}{
		{"gpu-load", 42, ""},
		{"gpu-temp", 71, ""},
		{"gpu-power", 95, "95W"},
		{"vram-used", 2, "2.0GB"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			s, _ := NewGPUSource(tt.id, time.Second)
			s.lookPath = func(string) (string, error) { return "", errors.New("not found") }

			snap, err := s.Poll(context.Background())
			if err != nil {
				t.Fatalf("Poll() error = %v", err)
			}
			if snap.Value != tt.wantVal || snap.Raw != tt.wantText {
				t.Fatalf("snapshot = %v/%q, want %v/%q", snap.Value, snap.Raw, tt.wantVal, tt.wantText)
			}
		})
	}
}

func TestGPUSource_NoGPUIsNoData(t *testing.T) {
	_ = setTestSysfsRoot(t)
	s, _ := NewGPUSource("gpu-load", time.Second)
	s.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	for range 2 {
		snap, err := s.Poll(context.Background())
		if err != nil || snap != nil {
			t.Fatalf("Poll() = %v, %v, want nil, nil", snap, err)
		}
	}
}

func TestNewGPUSource_UnknownID(t *testing.T) {
	if _, ok := NewGPUSource("cpu-load", time.Second); ok {
		t.Fatal("NewGPUSource(cpu-load) = true, want false")
	}
}
