package collector

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

// Roots of the kernel pseudo filesystems. Tests point them at temp dirs.
var (
	sysfsRoot = "/sys"
	procRoot  = "/proc"
)

func sysPath(parts ...string) string {
	return filepath.Join(append([]string{sysfsRoot}, parts...)...)
}

func procPath(parts ...string) string {
	return filepath.Join(append([]string{procRoot}, parts...)...)
}

func readIntFile(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func readStringFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// base carries the identity every source reports.
type base struct {
	id       string
	category metric.Category
	interval time.Duration
	now      func() time.Time
}

func newBase(id string, category metric.Category, interval time.Duration) base {
	return base{id: id, category: category, interval: interval, now: time.Now}
}

func (b *base) ID() string { return b.id }
func (b *base) Category() metric.Category { return b.category }
func (b *base) PollInterval() time.Duration { return b.interval }
func (b *base) Release() error { return nil }

func (b *base) reading(value float64, raw string) *metric.Snapshot {
	s := metric.Reading(b.id, b.category, b.now(), value, raw)
	return &s
}

func (b *base) text(raw string) *metric.Snapshot {
	s := metric.Text(b.id, b.category, b.now(), raw)
	return &s
}
