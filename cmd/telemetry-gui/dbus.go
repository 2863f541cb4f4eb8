package main

import (
	"encoding/json"
	"fmt"

	godbus "github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/coalesce"
	dbussvc "github.com/cptspacemanspiff/gnome-telemetry-bar/internal/dbus"
)

type dbusClient struct {
	conn *godbus.Conn
	obj  godbus.BusObject
}

func newDBusClient() (*dbusClient, error) {
	conn, err := godbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	obj := conn.Object(dbussvc.BusName, dbussvc.ObjectPath)
	return &dbusClient{conn: conn, obj: obj}, nil
}

func (c *dbusClient) GetCurrentStats() (*coalesce.Frame, error) {
	var jsonStr string
	err := c.obj.Call(dbussvc.Interface+".GetCurrentStats", 0).Store(&jsonStr)
	if err != nil {
		return nil, err
	}
	return decodeFrame(jsonStr)
}

func (c *dbusClient) CyclePreset() (string, error) {
	var preset string
	err := c.obj.Call(dbussvc.Interface+".CyclePreset", 0).Store(&preset)
	return preset, err
}

// Frames subscribes to FrameUpdated and delivers each decoded frame on the
// returned channel. The channel is closed when the connection goes away.
func (c *dbusClient) Frames() (<-chan *coalesce.Frame, error) {
	err := c.conn.AddMatchSignal(
		godbus.WithMatchObjectPath(dbussvc.ObjectPath),
		godbus.WithMatchInterface(dbussvc.Interface),
		godbus.WithMatchMember("FrameUpdated"),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe FrameUpdated: %w", err)
	}

	signals := make(chan *godbus.Signal, 16)
	c.conn.Signal(signals)

	frames := make(chan *coalesce.Frame, 1)
	go func() {
		defer close(frames)
		for sig := range signals {
			if sig.Name != dbussvc.FrameSignal || len(sig.Body) == 0 {
				continue
			}
			s, ok := sig.Body[0].(string)
			if !ok {
				continue
			}
			frame, err := decodeFrame(s)
			if err != nil {
				continue
			}
			// Only the newest frame matters to the window.
			select {
			case <-frames:
			default:
			}
			frames <- frame
		}
	}()
	return frames, nil
}

func (c *dbusClient) Close() error {
	return c.conn.Close()
}

func decodeFrame(s string) (*coalesce.Frame, error) {
	var frame coalesce.Frame
	if err := json.Unmarshal([]byte(s), &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &frame, nil
}
