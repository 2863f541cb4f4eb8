package main

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/coalesce"
)

var (
	colorNormal = color.NRGBA{R: 200, G: 200, B: 200, A: 255}
	colorAlert  = color.NRGBA{R: 230, G: 60, B: 60, A: 255}
	colorBarBg  = color.NRGBA{R: 30, G: 30, B: 30, A: 230}
)

// itemsBar shows one text per frame item in frame order.
type itemsBar struct {
	row       *fyne.Container
	texts     map[string]*canvas.Text
	order     []string
	container fyne.CanvasObject
}

func newItemsBar() *itemsBar {
	b := &itemsBar{
		row:   container.New(layout.NewHBoxLayout()),
		texts: make(map[string]*canvas.Text),
	}
	bg := canvas.NewRectangle(colorBarBg)
	b.container = container.NewStack(bg, container.NewPadded(b.row))
	b.row.Add(newItemText("waiting for telemetry-bar..."))
	return b
}

// Update applies frame. The row is rebuilt only when the set or order of
// items changed; otherwise only texts that differ are refreshed. Frames may
// be skipped, so frame.Changed is not relied on.
// Must be called on the fyne main goroutine.
func (b *itemsBar) Update(frame *coalesce.Frame) {
	if frame == nil {
		return
	}
	if !b.sameOrder(frame.Items) {
		b.rebuild(frame.Items)
		return
	}
	for _, it := range frame.Items {
		applyItem(b.texts[it.ID], it)
	}
}

func (b *itemsBar) sameOrder(items []coalesce.Item) bool {
	if len(items) != len(b.order) {
		return false
	}
	for i, it := range items {
		if b.order[i] != it.ID {
			return false
		}
	}
	return true
}

func (b *itemsBar) rebuild(items []coalesce.Item) {
	b.row.RemoveAll()
	b.texts = make(map[string]*canvas.Text, len(items))
	b.order = b.order[:0]
	for i, it := range items {
		if i > 0 {
			b.row.Add(layout.NewSpacer())
		}
		t := newItemText("")
		applyItem(t, it)
		b.texts[it.ID] = t
		b.order = append(b.order, it.ID)
		b.row.Add(t)
	}
	b.row.Refresh()
}

func applyItem(t *canvas.Text, it coalesce.Item) {
	if t == nil {
		return
	}
	c := colorNormal
	if it.Alert {
		c = colorAlert
	}
	if t.Text == it.Text && t.Color == color.Color(c) {
		return
	}
	t.Text = it.Text
	t.Color = c
	t.Refresh()
}

func newItemText(text string) *canvas.Text {
	t := canvas.NewText(text, colorNormal)
	t.TextSize = 16
	t.TextStyle = fyne.TextStyle{Bold: true, Monospace: true}
	return t
}
