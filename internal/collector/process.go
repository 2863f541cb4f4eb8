package collector

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

// userHZ is the kernel's USER_HZ, the unit of /proc/[pid]/stat times.
const userHZ = 100

// maxCommLen is the longest comm the kernel stores, TASK_COMM_LEN minus one.
const maxCommLen = 15

// TopProcessSource reports the process that used the most CPU since the
// previous poll.
type TopProcessSource struct {
	base
	prevTicks    map[int]int64  // pid -> previous utime+stime
	cmdlineCache map[int]string // pid -> cmdline, read once per pid lifetime
	prevAt       time.Time
}

func NewTopProcessSource(interval time.Duration) *TopProcessSource {
	return &TopProcessSource{
		base:         newBase("top-process", metric.CategoryOther, interval),
		prevTicks:    make(map[int]int64),
		cmdlineCache: make(map[int]string),
	}
}

func (s *TopProcessSource) Poll(ctx context.Context) (*metric.Snapshot, error) {
	top, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}
	if top == nil {
		return nil, nil
	}
	return s.reading(top.CPUPercent, fmt.Sprintf("%s %.0f%%", displayName(top), top.CPUPercent)), nil
}

// collect reads /proc/*/stat and returns the process with the largest tick
// delta since the previous call.
func (s *TopProcessSource) collect(ctx context.Context) (*ProcessSample, error) {
	now := s.now()
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", procRoot, err)
	}

	currentTicks := make(map[int]int64, len(entries))
	var best procEntry
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		pe, err := readProcStat(pid)
		if err != nil {
			continue
		}
		currentTicks[pid] = pe.ticks

		prev, ok := s.prevTicks[pid]
		if !ok {
			continue // first observation, no delta
		}
		delta := pe.ticks - prev
		if delta > best.ticks || (delta == best.ticks && delta > 0 && pid < best.pid) {
			best = procEntry{pid: pid, comm: pe.comm, ticks: delta}
		}
	}

	prevAt := s.prevAt
	s.prevTicks, s.prevAt = currentTicks, now
	for pid := range s.cmdlineCache {
		if _, alive := currentTicks[pid]; !alive {
			delete(s.cmdlineCache, pid)
		}
	}

	elapsed := now.Sub(prevAt).Seconds()
	if prevAt.IsZero() || elapsed <= 0 || best.ticks <= 0 {
		return nil, nil
	}

	cmdline, ok := s.cmdlineCache[best.pid]
	if !ok {
		cmdline = readCmdline(best.pid)
		s.cmdlineCache[best.pid] = cmdline
	}
	return &ProcessSample{
		PID:        best.pid,
		Comm:       best.comm,
		Cmdline:    cmdline,
		TicksDelta: best.ticks,
		CPUPercent: float64(best.ticks) * 100 / userHZ / elapsed,
	}, nil
}

// displayName prefers the executable name from cmdline when the kernel
// truncated comm to maxCommLen bytes.
func displayName(p *ProcessSample) string {
	if len(p.Comm) < maxCommLen || p.Cmdline == "" {
		return p.Comm
	}
	argv0, _, _ := strings.Cut(p.Cmdline, " ")
	if name := filepath.Base(argv0); strings.HasPrefix(name, p.Comm) {
		return name
	}
	return p.Comm
}

type procEntry struct {
	pid   int
	comm  string
	ticks int64 // utime + stime
}

// readProcStat parses /proc/[pid]/stat for comm, utime and stime.
func readProcStat(pid int) (procEntry, error) {
	data, err := os.ReadFile(procPath(strconv.Itoa(pid), "stat"))
	if err != nil {
		return procEntry{}, err
	}

	// comm is in parens and may contain spaces/parens, so find last ')'
	start := bytes.IndexByte(data, '(')
	end := bytes.LastIndexByte(data, ')')
	if start < 0 || end < 0 || end >= len(data)-1 {
		return procEntry{}, fmt.Errorf("malformed stat for pid %d", pid)
	}
	comm := string(data[start+1 : end])

	// Fields after ')' start at state. utime and stime are the 12th and
	// 13th of them.
	fields := strings.Fields(string(data[end+2:]))
	if len(fields) < 13 {
		return procEntry{}, fmt.Errorf("too few fields for pid %d", pid)
	}
	utime, _ := strconv.ParseInt(fields[11], 10, 64)
	stime, _ := strconv.ParseInt(fields[12], 10, 64)

	return procEntry{pid: pid, comm: comm, ticks: utime + stime}, nil
}

// readCmdline reads /proc/[pid]/cmdline, replacing null bytes with spaces.
func readCmdline(pid int) string {
	data, err := os.ReadFile(procPath(strconv.Itoa(pid), "cmdline"))
	if err != nil || len(data) == 0 {
		return ""
	}
	return strings.TrimRight(strings.ReplaceAll(string(data), "\x00", " "), " ")
}
