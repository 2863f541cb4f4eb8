package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	psnet "github.com/shirou/gopsutil/v4/net"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

// reselectEvery is how many polls pass before the busiest interface is
// chosen again.
const reselectEvery = 10

// NetworkSource reports download and upload rates of one interface. When
// no interface is pinned it follows the busiest non-loopback one.
type NetworkSource struct {
	base
	pinned   string
	counters func(ctx context.Context) ([]psnet.IOCountersStat, error)

	current string
	polls   int
	prev    map[string]psnet.IOCountersStat
	prevAt  time.Time
}

func NewNetworkSource(iface string, interval time.Duration) *NetworkSource {
	return &NetworkSource{
		base:   newBase("internet", metric.CategoryNetwork, interval),
		pinned: iface,
		counters: func(ctx context.Context) ([]psnet.IOCountersStat, error) {
			return psnet.IOCountersWithContext(ctx, true)
		},
	}
}

func (s *NetworkSource) Poll(ctx context.Context) (*metric.Snapshot, error) {
	stats, err := s.counters(ctx)
	if err != nil {
		return nil, fmt.Errorf("read network counters: %w", err)
	}
	cur := make(map[string]psnet.IOCountersStat, len(stats))
	for _, st := range stats {
		if isLoopback(st.Name) {
			continue
		}
		cur[st.Name] = st
	}

	now := s.now()
	prev, prevAt := s.prev, s.prevAt
	s.prev, s.prevAt = cur, now
	if prevAt.IsZero() {
		return nil, nil
	}
	elapsed := now.Sub(prevAt).Seconds()
	if elapsed <= 0 {
		return nil, nil
	}

	s.choose(cur, prev)
	if s.current == "" {
		return nil, nil
	}
	c, ok := cur[s.current]
	p, had := prev[s.current]
	if !ok || !had || c.BytesRecv < p.BytesRecv || c.BytesSent < p.BytesSent {
		return nil, nil
	}
	down := float64(c.BytesRecv-p.BytesRecv) / elapsed
	up := float64(c.BytesSent-p.BytesSent) / elapsed
	return s.reading(down/1024, fmt.Sprintf("↓%s ↑%s", formatRate(down), formatRate(up))), nil
}

// choose picks the interface to report. A pinned interface always wins;
// otherwise the one with the most traffic since the last poll is taken
// on the first poll and every reselectEvery polls after.
func (s *NetworkSource) choose(cur, prev map[string]psnet.IOCountersStat) {
	if s.pinned != "" {
		s.current = s.pinned
		return
	}
	s.polls++
	if s.current != "" && s.polls%reselectEvery != 0 {
		return
	}
	var best string
	var bestBytes uint64
	for name, c := range cur {
		p, ok := prev[name]
		if !ok {
			continue
		}
		total := sat(c.BytesRecv, p.BytesRecv) + sat(c.BytesSent, p.BytesSent)
		if best == "" || total > bestBytes || (total == bestBytes && name < best) {
			best, bestBytes = name, total
		}
	}
	if best != "" {
		s.current = best
	}
}

func isLoopback(name string) bool {
	return name == "lo" || strings.HasPrefix(name, "lo:")
}

func sat(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
