package alert

import "testing"

func TestInAlert(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		hasValue  bool
		threshold float64
		want      bool
	}{
		{"below", 89.9, true, 90, false},
		{"equal", 90, true, 90, true},
		{"above", 97, true, 90, true},
		{"no value", 97, false, 90, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InAlert(tt.value, tt.hasValue, tt.threshold); got != tt.want {
				t.Fatalf("InAlert(%v, %v, %v) = %v, want %v", tt.value, tt.hasValue, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestEvaluate_SteadyWithoutBlink(t *testing.T) {
	e := NewEvaluator(false)

	if e.Evaluate("cpu-load", 50, true, 90) {
		t.Fatal("below threshold reported alert")
	}
	if !e.Evaluate("cpu-load", 92, true, 90) {
		t.Fatal("crossing threshold did not alert")
	}
	if got := e.State("cpu-load"); got != AlertSteady {
		t.Fatalf("State() = %v, want alert-steady", got)
	}
	for range 4 {
		if e.Tick() {
			t.Fatal("Tick() changed state with blink disabled")
		}
		if !e.Evaluate("cpu-load", 92, true, 90) {
			t.Fatal("steady alert flag dropped")
		}
	}
	if e.Evaluate("cpu-load", 60, true, 90) {
		t.Fatal("alert flag still set after value dropped")
	}
	if got := e.State("cpu-load"); got != Normal {
		t.Fatalf("State() = %v, want normal", got)
	}
}

func TestEvaluate_BlinkAlternates(t *testing.T) {
	e := NewEvaluator(true)

	if !e.Evaluate("ram-used", 95, true, 90) {
		t.Fatal("entering alert with blink must start visible")
	}
	want := []bool{false, true, false, true}
	for i, w := range want {
		if !e.Tick() {
			t.Fatalf("Tick() %d reported no change", i)
		}
		if got := e.Evaluate("ram-used", 95, true, 90); got != w {
			t.Fatalf("flag after tick %d = %v, want %v", i, got, w)
		}
	}

	e.Tick()
	if got := e.State("ram-used"); got != AlertBlinkOff {
		t.Fatalf("State() = %v, want alert-blink-off", got)
	}
	if e.Evaluate("ram-used", 10, true, 90) {
		t.Fatal("flag set after dropping below threshold")
	}
	if e.Tick() {
		t.Fatal("Tick() reported a change with no metric in alert")
	}
}

func TestEvaluate_MissingValueClearsAlert(t *testing.T) {
	e := NewEvaluator(false)
	e.Evaluate("gpu-load", 99, true, 90)
	if e.Evaluate("gpu-load", 0, false, 90) {
		t.Fatal("missing value kept the alert")
	}
}

func TestSetBlink_SwitchesAlertStates(t *testing.T) {
	e := NewEvaluator(false)
	e.Evaluate("cpu-load", 95, true, 90)

	e.SetBlink(true)
	if got := e.State("cpu-load"); got != AlertBlinkOn {
		t.Fatalf("State() after enabling blink = %v, want alert-blink-on", got)
	}
	e.Tick()
	if got := e.State("cpu-load"); got != AlertBlinkOff {
		t.Fatalf("State() after tick = %v, want alert-blink-off", got)
	}

	e.SetBlink(false)
	if got := e.State("cpu-load"); got != AlertSteady {
		t.Fatalf("State() after disabling blink = %v, want alert-steady", got)
	}
	if !e.Evaluate("cpu-load", 95, true, 90) {
		t.Fatal("steady alert not visible")
	}
}

func TestEvaluate_MetricsAreIndependent(t *testing.T) {
	e := NewEvaluator(true)
	e.Evaluate("cpu-load", 95, true, 90)
	e.Tick()
	e.Evaluate("gpu-load", 95, true, 90)

	if e.State("cpu-load") != AlertBlinkOff || e.State("gpu-load") != AlertBlinkOn {
		t.Fatalf("states = %v/%v, want blink-off/blink-on", e.State("cpu-load"), e.State("gpu-load"))
	}
}

func TestRetain_DropsHiddenMetrics(t *testing.T) {
	e := NewEvaluator(true)
	e.Evaluate("cpu-load", 95, true, 90)
	e.Evaluate("gpu-load", 95, true, 90)

	e.Retain(func(id string) bool { return id == "cpu-load" })
	if e.State("gpu-load") != Normal {
		t.Fatalf("State(gpu-load) = %v, want normal after Retain()", e.State("gpu-load"))
	}
	if e.State("cpu-load") != AlertBlinkOn {
		t.Fatalf("State(cpu-load) = %v, want blink-on kept", e.State("cpu-load"))
	}

	e.Retain(func(string) bool { return false })
	if e.Tick() {
		t.Fatal("Tick() = true with no tracked metrics")
	}
}
