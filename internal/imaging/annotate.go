package imaging

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
	"gonum.org/v1/gonum/spatial/r2"
)

// MarkColor is the outline color used for detected markers.
var MarkColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

var labelFont *truetype.Font

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Annotator draws detection overlays on a copy of a frame.
//
// The source frame is never modified; Image returns the annotated copy.
type Annotator struct {
	dc *gg.Context
}

// NewAnnotator creates an annotator over a copy of frame.
func NewAnnotator(frame image.Image) *Annotator {
	return &Annotator{dc: gg.NewContextForImage(frame)}
}

// Polygon strokes a closed polygon through pts.
func (a *Annotator) Polygon(pts []r2.Vec, c color.Color, width float64) {
	if len(pts) < 2 {
		return
	}
	a.dc.SetColor(c)
	a.dc.SetLineWidth(width)
	a.dc.MoveTo(pts[0].X, pts[0].Y)
	for _, p := range pts[1:] {
		a.dc.LineTo(p.X, p.Y)
	}
	a.dc.ClosePath()
	a.dc.Stroke()
}

// Circle strokes a circle of radius r around (x, y).
func (a *Annotator) Circle(x, y, r float64, c color.Color, width float64) {
	a.dc.SetColor(c)
	a.dc.SetLineWidth(width)
	a.dc.DrawCircle(x, y, r)
	a.dc.Stroke()
}

// Label writes text with its baseline-left corner at (x, y).
func (a *Annotator) Label(text string, x, y float64, c color.Color, size float64) {
	a.dc.SetFontFace(truetype.NewFace(labelFont, &truetype.Options{Size: size}))
	a.dc.SetColor(c)
	a.dc.DrawString(text, x, y)
}

// FillPolygon fills a polygon, used to blank out regions of a frame.
func (a *Annotator) FillPolygon(pts []r2.Vec, c color.Color) {
	if len(pts) < 3 {
		return
	}
	a.dc.SetColor(c)
	a.dc.MoveTo(pts[0].X, pts[0].Y)
	for _, p := range pts[1:] {
		a.dc.LineTo(p.X, p.Y)
	}
	a.dc.ClosePath()
	a.dc.Fill()
}

// Image returns the annotated frame.
func (a *Annotator) Image() image.Image {
	return a.dc.Image()
}
