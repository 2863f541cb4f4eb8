// Package alert evaluates threshold alerts and drives their blink phase.
package alert

import "time"

// BlinkInterval is the period of the blink timer.
const BlinkInterval = 500 * time.Millisecond

// State is the alert state of one metric.
type State int

const (
	Normal State = iota
	AlertSteady
	AlertBlinkOn
	AlertBlinkOff
)

func (s State) String() string {
	switch s {
	case AlertSteady:
		return "alert-steady"
	case AlertBlinkOn:
		return "alert-blink-on"
	case AlertBlinkOff:
		return "alert-blink-off"
	default:
		return "normal"
	}
}

// Visible reports whether the alert highlight is shown in this state.
func (s State) Visible() bool {
	return s == AlertSteady || s == AlertBlinkOn
}

// InAlert reports whether a value breaches its threshold.
func InAlert(value float64, hasValue bool, threshold float64) bool {
	return hasValue && value >= threshold
}

// Evaluator tracks per-metric alert states. It is owned by a single
// goroutine and is not safe for concurrent use.
type Evaluator struct {
	blink  bool
	states map[string]State
}

func NewEvaluator(blink bool) *Evaluator {
	return &Evaluator{blink: blink, states: make(map[string]State)}
}

// Evaluate applies the latest value of id and returns the visible alert flag.
func (e *Evaluator) Evaluate(id string, value float64, hasValue bool, threshold float64) bool {
	cur := e.states[id]
	next := cur
	switch {
	case !InAlert(value, hasValue, threshold):
		next = Normal
	case cur == Normal && e.blink:
		next = AlertBlinkOn
	case cur == Normal:
		next = AlertSteady
	}
	e.set(id, next)
	return next.Visible()
}

// SetBlink switches blink mode. Metrics already in alert move between the
// steady and blinking states immediately.
func (e *Evaluator) SetBlink(on bool) {
	if e.blink == on {
		return
	}
	e.blink = on
	for id, s := range e.states {
		switch {
		case on && s == AlertSteady:
			e.states[id] = AlertBlinkOn
		case !on && (s == AlertBlinkOn || s == AlertBlinkOff):
			e.states[id] = AlertSteady
		}
	}
}

func (e *Evaluator) Blink() bool {
	return e.blink
}

// Tick advances the blink phase of every blinking metric. It reports
// whether any visible flag changed.
func (e *Evaluator) Tick() bool {
	if !e.blink {
		return false
	}
	changed := false
	for id, s := range e.states {
		switch s {
		case AlertBlinkOn:
			e.states[id] = AlertBlinkOff
			changed = true
		case AlertBlinkOff:
			e.states[id] = AlertBlinkOn
			changed = true
		}
	}
	return changed
}

// State returns the current state of id.
func (e *Evaluator) State(id string) State {
	return e.states[id]
}

// Retain drops the state of every metric for which keep reports false.
func (e *Evaluator) Retain(keep func(id string) bool) {
	for id := range e.states {
		if !keep(id) {
			delete(e.states, id)
		}
	}
}

func (e *Evaluator) set(id string, s State) {
	if s == Normal {
		delete(e.states, id)
		return
	}
	e.states[id] = s
}
