package imaging

import (
	"image"
	"image/color"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

func isGreen(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return g>>8 > 200 && r>>8 < 50 && b>>8 < 50
}

func TestAnnotator_Polygon(t *testing.T) {
	frame := createInMemoryImage(100, 100, color.Black)
	a := NewAnnotator(frame)

	a.Polygon([]r2.Vec{{X: 20, Y: 20}, {X: 80, Y: 20}, {X: 80, Y: 80}, {X: 20, Y: 80}}, MarkColor, 4)
	out := a.Image()

	if !isGreen(out.At(50, 20)) {
		t.Error("top edge not drawn")
	}
	if !isGreen(out.At(20, 50)) {
		t.Error("closing edge not drawn")
	}
	if isGreen(out.At(50, 50)) {
		t.Error("polygon interior should not be filled")
	}
	if isGreen(frame.At(50, 20)) {
		t.Error("source frame modified")
	}
}

func TestAnnotator_PolygonTooShort(t *testing.T) {
	frame := createInMemoryImage(10, 10, color.Black)
	a := NewAnnotator(frame)
	a.Polygon([]r2.Vec{{X: 5, Y: 5}}, MarkColor, 4)
	a.FillPolygon([]r2.Vec{{X: 1, Y: 1}, {X: 8, Y: 8}}, MarkColor)

	out := a.Image()
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if isGreen(out.At(x, y)) {
				t.Fatalf("pixel (%d,%d) drawn for a degenerate polygon", x, y)
			}
		}
	}
}

func TestAnnotator_CircleAndFill(t *testing.T) {
	frame := createInMemoryImage(200, 200, color.Black)
	a := NewAnnotator(frame)

	a.Circle(100, 100, 50, MarkColor, 5)
	a.FillPolygon([]r2.Vec{{X: 0, Y: 0}, {X: 20, Y: 0}, {X: 20, Y: 20}, {X: 0, Y: 20}}, MarkColor)
	out := a.Image()

	if !isGreen(out.At(150, 100)) || !isGreen(out.At(100, 50)) {
		t.Error("circle not drawn at radius 50")
	}
	if isGreen(out.At(100, 100)) {
		t.Error("circle centre should stay black")
	}
	if !isGreen(out.At(10, 10)) {
		t.Error("filled polygon interior not drawn")
	}
}

func TestAnnotator_Label(t *testing.T) {
	frame := createInMemoryImage(200, 60, color.Black)
	a := NewAnnotator(frame)
	a.Label("ORANGE_1", 10, 40, MarkColor, 24)
	out := a.Image()

	drawn := 0
	b := out.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, g, _, _ := out.At(x, y).RGBA(); g>>8 > 128 {
				drawn++
			}
		}
	}
	if drawn == 0 {
		t.Error("label produced no pixels")
	}
	if out.Bounds() != image.Rect(0, 0, 200, 60) {
		t.Errorf("bounds = %v", out.Bounds())
	}
}
