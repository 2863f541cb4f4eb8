package metric

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// Category groups metrics by the hardware or subsystem they describe.
type Category int

const (
	CategoryOther Category = iota
	CategoryCPU
	CategoryGPU
	CategoryMemory
	CategoryDisk
	CategoryNetwork
	CategoryFPS
)

func (c Category) String() string {
	switch c {
	case CategoryCPU:
		return "cpu"
	case CategoryGPU:
		return "gpu"
	case CategoryMemory:
		return "memory"
	case CategoryDisk:
		return "disk"
	case CategoryNetwork:
		return "network"
	case CategoryFPS:
		return "fps"
	default:
		return "other"
	}
}

// ParseCategory is the inverse of String. Unknown names map to CategoryOther.
func ParseCategory(name string) Category {
	for c := CategoryOther; c <= CategoryFPS; c++ {
		if c.String() == name {
			return c
		}
	}
	return CategoryOther
}

// FaultPrefix marks the raw text of a snapshot emitted for a failed poll.
const FaultPrefix = "ERROR: "

const maxFaultLen = 120

// Snapshot is one immutable observation of a metric. Value is meaningful only
// when HasValue is set; an empty Raw means no display text was supplied.
type Snapshot struct {
	ID        string    `json:"id"`
	Category  Category  `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value,omitempty"`
	HasValue  bool      `json:"has_value"`
	Raw       string    `json:"raw,omitempty"`
}

// Reading builds a snapshot carrying a numeric value and optional display text.
func Reading(id string, cat Category, ts time.Time, value float64, raw string) Snapshot {
	return Snapshot{ID: id, Category: cat, Timestamp: ts, Value: value, HasValue: true, Raw: raw}
}

// Text builds a snapshot that carries display text only.
func Text(id string, cat Category, ts time.Time, raw string) Snapshot {
	return Snapshot{ID: id, Category: cat, Timestamp: ts, Raw: raw}
}

// Unavailable builds a snapshot with neither value nor text.
func Unavailable(id string, cat Category, ts time.Time) Snapshot {
	return Snapshot{ID: id, Category: cat, Timestamp: ts}
}

// Fault builds the snapshot emitted when a poll fails. The diagnostic is
// flattened to one line and truncated.
func Fault(id string, cat Category, ts time.Time, err error) Snapshot {
	msg := "unknown error"
	if err != nil {
		msg = strings.Join(strings.Fields(err.Error()), " ")
	}
	if len(msg) > maxFaultLen {
		cut := maxFaultLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return Snapshot{ID: id, Category: cat, Timestamp: ts, Raw: FaultPrefix + msg}
}

// IsFault reports whether the snapshot records a failed poll.
func (s Snapshot) IsFault() bool {
	return !s.HasValue && strings.HasPrefix(s.Raw, FaultPrefix)
}

// Source produces snapshots for a single metric id.
//
// Poll returns a nil snapshot with a nil error when no data is available.
// Sources are polled from one goroutine only and never share mutable state
// with other sources. Release is called exactly once when the engine stops.
type Source interface {
	ID() string
	Category() Category
	PollInterval() time.Duration
	Poll(ctx context.Context) (*Snapshot, error)
	Release() error
}
