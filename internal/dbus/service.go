// Package dbus exposes the telemetry bar on the session bus.
package dbus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/coalesce"
	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/config"
	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/engine"
	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/storage"
)

const (
	BusName    = "org.gnome.TelemetryBar"
	ObjectPath = "/org/gnome/TelemetryBar"
	Interface  = "org.gnome.TelemetryBar"

	// FrameSignal carries every rendered frame as JSON.
	FrameSignal = Interface + ".FrameUpdated"
)

const recentFaultLimit = 20

const introspectXML = `
<node>
  <interface name="` + Interface + `">
    <method name="GetCurrentStats">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetSourceHealth">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetConfig">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="UpdateConfig">
      <arg direction="in" type="s" name="json"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="CyclePreset">
      <arg direction="out" type="s" name="preset"/>
    </method>
    <signal name="FrameUpdated">
      <arg type="s" name="json"/>
    </signal>
  </interface>
` + introspect.IntrospectDataString + `
</node>`

// Frames provides the most recent rendered frame.
type Frames interface {
	Latest() (coalesce.Frame, bool)
}

// Health provides live per-source counters.
type Health interface {
	Stats() []engine.SourceStats
}

// Service exposes the telemetry bar over D-Bus. It is also the bar's
// renderer: each frame is broadcast as a FrameUpdated signal.
type Service struct {
	settings *config.Store
	frames   Frames
	health   Health
	db       *storage.DB
	log      *slog.Logger

	mu   sync.Mutex
	conn *godbus.Conn
}

// NewService creates a new D-Bus service. db may be nil when persistence is
// disabled.
func NewService(settings *config.Store, frames Frames, health Health, db *storage.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{settings: settings, frames: frames, health: health, db: db, log: logger}
}

// SetFrames sets the frame provider. The bar is built after the service
// because the service is its renderer.
func (s *Service) SetFrames(frames Frames) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = frames
}

// Export registers the service on the session bus.
func (s *Service) Export() (*godbus.Conn, error) {
	conn, err := godbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	if err := conn.Export(s, ObjectPath, Interface); err != nil {
		return nil, fmt.Errorf("export service: %w", err)
	}
	if err := conn.Export(introspect.Introspectable(introspectXML), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(BusName, godbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("request name: %w", err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("name %s already taken", BusName)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return conn, nil
}

// Render broadcasts frame. It does nothing until the service is exported.
func (s *Service) Render(frame coalesce.Frame) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		s.log.Error("marshal frame", "err", err, "topic", "dbus")
		return
	}
	if err := conn.Emit(ObjectPath, FrameSignal, string(data)); err != nil {
		s.log.Warn("emit frame", "err", err, "topic", "dbus")
	}
}

// GetCurrentStats returns the latest frame as JSON.
func (s *Service) GetCurrentStats() (string, *godbus.Error) {
	s.mu.Lock()
	frames := s.frames
	s.mu.Unlock()

	var frame coalesce.Frame
	if frames != nil {
		frame, _ = frames.Latest()
	}
	return marshal(frame)
}

// GetSourceHealth returns live counters, persisted health rows and the most
// recent faults as JSON.
func (s *Service) GetSourceHealth() (string, *godbus.Error) {
	result := map[string]any{"live": []engine.SourceStats{}}
	if s.health != nil {
		if stats := s.health.Stats(); stats != nil {
			result["live"] = stats
		}
	}
	if s.db != nil {
		stored, err := s.db.SourceHealth()
		if err != nil {
			return "", godbus.MakeFailedError(fmt.Errorf("read source health: %w", err))
		}
		faults, err := s.db.RecentFaults("", recentFaultLimit)
		if err != nil {
			return "", godbus.MakeFailedError(fmt.Errorf("read faults: %w", err))
		}
		result["stored"] = stored
		result["recent_faults"] = faults
	}
	return marshal(result)
}

// GetConfig returns the active configuration as JSON.
func (s *Service) GetConfig() (string, *godbus.Error) {
	return marshal(s.settings.Current())
}

// UpdateConfig merges a partial JSON document into the active
// configuration, validates it and applies it. Fields absent from the
// document keep their current values.
func (s *Service) UpdateConfig(patch string) (string, *godbus.Error) {
	next, err := config.MergeJSON(s.settings.Current(), []byte(patch))
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	applied, err := s.settings.Replace(next)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	s.log.Info("config updated over dbus", "topic", "dbus")
	return marshal(applied)
}

// CyclePreset activates the next preset and returns its id.
func (s *Service) CyclePreset() (string, *godbus.Error) {
	cfg, err := s.settings.Update(func(b *config.Builder) { b.NextPreset() })
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	s.log.Info("preset cycled", "preset", cfg.Display.ActivePreset, "topic", "dbus")
	return cfg.Display.ActivePreset, nil
}

func marshal(v any) (string, *godbus.Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}
