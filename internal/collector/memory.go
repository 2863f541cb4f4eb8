package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

// MemorySource reports either RAM used percent or available GiB.
type MemorySource struct {
	base
	free    bool
	virtual func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

func NewRAMUsedSource(interval time.Duration) *MemorySource {
	return newMemorySource("ram-used", false, interval)
}

func NewRAMFreeSource(interval time.Duration) *MemorySource {
	return newMemorySource("ram-free", true, interval)
}

func newMemorySource(id string, free bool, interval time.Duration) *MemorySource {
	return &MemorySource{
		base:    newBase(id, metric.CategoryMemory, interval),
		free:    free,
		virtual: mem.VirtualMemoryWithContext,
	}
}

func (s *MemorySource) Poll(ctx context.Context) (*metric.Snapshot, error) {
	vm, err := s.virtual(ctx)
	if err != nil {
		return nil, fmt.Errorf("read memory: %w", err)
	}
	if vm.Total == 0 {
		return nil, nil
	}
	if s.free {
		return s.reading(float64(vm.Available)/(1<<30), ""), nil
	}
	used := float64(vm.Total-vm.Available) / float64(vm.Total) * 100
	return s.reading(clampPercent(used), ""), nil
}
