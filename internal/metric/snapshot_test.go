package metric

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestFault_FormatsDiagnostic(t *testing.T) {
	ts := time.Unix(100, 0)
	s := Fault("cpu-load", CategoryCPU, ts, errors.New("sensor\nunreachable"))

	if s.Raw != "ERROR: sensor unreachable" {
		t.Fatalf("Raw = %q, want %q", s.Raw, "ERROR: sensor unreachable")
	}
	if s.HasValue {
		t.Fatal("HasValue = true, want false")
	}
	if !s.IsFault() {
		t.Fatal("IsFault() = false, want true")
	}
	if s.ID != "cpu-load" || s.Category != CategoryCPU || !s.Timestamp.Equal(ts) {
		t.Fatalf("Fault() = %#v, want id/category/timestamp preserved", s)
	}
}

func TestFault_TruncatesLongMessages(t *testing.T) {
	s := Fault("x", CategoryOther, time.Now(), errors.New(strings.Repeat("a", 500)))
	if got, want := len(s.Raw), len(FaultPrefix)+maxFaultLen; got != want {
		t.Fatalf("len(Raw) = %d, want %d", got, want)
	}
}

func TestFault_TruncatesOnRuneBoundary(t *testing.T) {
	// "a" shifts every two-byte rune so the limit lands mid-rune.
	s := Fault("x", CategoryOther, time.Now(), errors.New("a"+strings.Repeat("é", 300)))
	if !utf8.ValidString(s.Raw) {
		t.Fatalf("Fault() raw is not valid UTF-8: %q", s.Raw)
	}
	if got, want := len(s.Raw), len(FaultPrefix)+maxFaultLen-1; got != want {
		t.Fatalf("len(Raw) = %d, want %d", got, want)
	}
}

func TestIsFault(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want bool
	}{
		{"reading", Reading("a", CategoryCPU, time.Now(), 1, ""), false},
		{"text", Text("a", CategoryCPU, time.Now(), "12W"), false},
		{"unavailable", Unavailable("a", CategoryCPU, time.Now()), false},
		{"fault", Fault("a", CategoryCPU, time.Now(), errors.New("boom")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.IsFault(); got != tt.want {
				t.Fatalf("IsFault() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCategoryString(t *testing.T) {
	if got := CategoryGPU.String(); got != "gpu" {
		t.Fatalf("CategoryGPU.String() = %q, want gpu", got)
	}
	if got := Category(99).String(); got != "other" {
		t.Fatalf("Category(99).String() = %q, want other", got)
	}
}

func TestParseCategory(t *testing.T) {
	for c := CategoryOther; c <= CategoryFPS; c++ {
		if got := ParseCategory(c.String()); got != c {
			t.Fatalf("ParseCategory(%q) = %v, want %v", c.String(), got, c)
		}
	}
	if got := ParseCategory("quantum"); got != CategoryOther {
		t.Fatalf("ParseCategory(quantum) = %v, want other", got)
	}
}
