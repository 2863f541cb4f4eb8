package collector

import (
	"log/slog"

	"github.com/godbus/dbus/v5"
)

const (
	login1Manager      = "org.freedesktop.login1.Manager"
	prepareForSleep    = login1Manager + ".PrepareForSleep"
	prepareForShutdown = login1Manager + ".PrepareForShutdown"
)

// SleepMonitor listens for systemd-logind PrepareForSleep signals. Counter
// based sources see one huge delta across a suspend, so the bar forces a
// full re-render on every wake notification.
type SleepMonitor struct {
	conn *dbus.Conn
	done chan struct{}
	wake chan struct{}
	log  *slog.Logger
}

// NewSleepMonitor creates a new sleep monitor connected to the system bus.
func NewSleepMonitor(logger *slog.Logger) (*SleepMonitor, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}

	for _, member := range []string{"PrepareForSleep", "PrepareForShutdown"} {
		err = conn.AddMatchSignal(
			dbus.WithMatchInterface(login1Manager),
			dbus.WithMatchMember(member),
		)
		if err != nil {
			return nil, err
		}
	}

	m := newSleepMonitor(logger)
	m.conn = conn
	go m.listen()
	return m, nil
}

func newSleepMonitor(logger *slog.Logger) *SleepMonitor {
	return &SleepMonitor{
		done: make(chan struct{}),
		wake: make(chan struct{}, 1),
		log:  logger,
	}
}

// Wake returns a channel that receives a value each time the system wakes
// from sleep. Notifications coalesce when nobody is reading.
func (m *SleepMonitor) Wake() <-chan struct{} {
	return m.wake
}

// Close stops the monitor.
func (m *SleepMonitor) Close() {
	close(m.done)
}

func (m *SleepMonitor) listen() {
	ch := make(chan *dbus.Signal, 16)
	m.conn.Signal(ch)
	defer m.conn.RemoveSignal(ch)

	for {
		select {
		case sig := <-ch:
			m.handle(sig)
		case <-m.done:
			return
		}
	}
}

// handle processes one logind signal and reports whether it was a wake.
func (m *SleepMonitor) handle(sig *dbus.Signal) bool {
	if sig == nil || len(sig.Body) < 1 {
		return false
	}
	active, ok := sig.Body[0].(bool)
	if !ok {
		return false
	}

	switch sig.Name {
	case prepareForShutdown:
		if active {
			m.log.Info("system preparing for shutdown")
		}
	case prepareForSleep:
		if active {
			m.log.Info("system going to sleep")
			return false
		}
		m.log.Info("system woke up")
		select {
		case m.wake <- struct{}{}:
		default:
		}
		return true
	}
	return false
}
