package collector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

// DriveSource reports free space in GiB for one mount point.
type DriveSource struct {
	base
	path  string
	usage func(ctx context.Context, path string) (*disk.UsageStat, error)
}

func NewDriveSource(id, path string, interval time.Duration) *DriveSource {
	return &DriveSource{
		base:  newBase(id, metric.CategoryDisk, interval),
		path:  path,
		usage: disk.UsageWithContext,
	}
}

func (s *DriveSource) Poll(ctx context.Context) (*metric.Snapshot, error) {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	u, err := s.usage(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("usage %s: %w", s.path, err)
	}
	return s.reading(float64(u.Free)/(1<<30), ""), nil
}

// DiskIOSource reports combined read and write throughput of whole block
// devices. Partitions are skipped so their bytes are not counted twice.
type DiskIOSource struct {
	base
	counters func(ctx context.Context) (map[string]disk.IOCountersStat, error)

	prevRead, prevWrite uint64
	prevAt              time.Time
}

func NewDiskIOSource(interval time.Duration) *DiskIOSource {
	return &DiskIOSource{
		base: newBase("disk-io", metric.CategoryDisk, interval),
		counters: func(ctx context.Context) (map[string]disk.IOCountersStat, error) {
			return disk.IOCountersWithContext(ctx)
		},
	}
}

func (s *DiskIOSource) Poll(ctx context.Context) (*metric.Snapshot, error) {
	stats, err := s.counters(ctx)
	if err != nil {
		return nil, fmt.Errorf("read disk counters: %w", err)
	}
	var read, write uint64
	for name, st := range stats {
		if !isWholeDisk(name) {
			continue
		}
		read += st.ReadBytes
		write += st.WriteBytes
	}

	now := s.now()
	prevRead, prevWrite, prevAt := s.prevRead, s.prevWrite, s.prevAt
	s.prevRead, s.prevWrite, s.prevAt = read, write, now
	elapsed := now.Sub(prevAt).Seconds()
	if prevAt.IsZero() || elapsed <= 0 || read < prevRead || write < prevWrite {
		return nil, nil
	}

	r := float64(read-prevRead) / elapsed
	w := float64(write-prevWrite) / elapsed
	return s.reading((r+w)/1024, fmt.Sprintf("R %s W %s", formatRate(r), formatRate(w))), nil
}

// isWholeDisk reports whether name is a block device rather than a
// partition. Only whole devices appear under /sys/block.
func isWholeDisk(name string) bool {
	return fileExists(filepath.Join(sysPath("block"), name))
}

// formatRate renders bytes per second as KB/s below one MB/s, MB/s above.
func formatRate(bps float64) string {
	if bps < 1<<20 {
		return fmt.Sprintf("%.0fKB/s", bps/1024)
	}
	return fmt.Sprintf("%.1fMB/s", bps/(1<<20))
}
