package main

import (
	"log"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/coalesce"
)

// pollInterval is used while no FrameUpdated signal has arrived recently.
const pollInterval = 2 * time.Second

func main() {
	client, err := newDBusClient()
	if err != nil {
		log.Fatalf("Failed to connect to D-Bus: %v", err)
	}
	defer client.Close()

	a := app.NewWithID("org.gnome.TelemetryBarGUI")
	win := a.NewWindow("Telemetry Bar")
	win.Resize(fyne.NewSize(900, 80))

	items := newItemsBar()
	status := widget.NewLabel("")
	presetBtn := widget.NewButton("Next preset", func() {
		go func() {
			preset, err := client.CyclePreset()
			fyne.Do(func() {
				if err != nil {
					status.SetText("cycle preset: " + err.Error())
					return
				}
				status.SetText("preset: " + preset)
			})
		}()
	})

	win.SetContent(container.NewVBox(items.container, container.NewHBox(presetBtn, status)))

	show := func(frame *coalesce.Frame) {
		fyne.Do(func() { items.Update(frame) })
	}

	if frame, err := client.GetCurrentStats(); err == nil {
		show(frame)
	}

	frames, err := client.Frames()
	if err != nil {
		log.Printf("signals unavailable, polling only: %v", err)
	}
	go follow(client, frames, show)

	win.ShowAndRun()
}

// follow forwards signalled frames and polls GetCurrentStats whenever the
// signal stream has been quiet for pollInterval.
func follow(client *dbusClient, frames <-chan *coalesce.Frame, show func(*coalesce.Frame)) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastSignal := time.Time{}
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			lastSignal = time.Now()
			show(frame)
		case <-ticker.C:
			if time.Since(lastSignal) < pollInterval {
				continue
			}
			frame, err := client.GetCurrentStats()
			if err != nil {
				continue
			}
			show(frame)
		}
	}
}
