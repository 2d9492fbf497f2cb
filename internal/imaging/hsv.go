package imaging

import (
	"image"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// HueMax is the largest hue value in the 8-bit HSV convention used by the
// detector. Hue is stored as degrees/2, so the circular domain is [0, 179].
const HueMax = 179

// HSV is a single pixel in 8-bit HSV.
//
//   - H: hue, 0-179 (degrees / 2)
//   - S: saturation, 0-255
//   - V: value, 0-255
type HSV struct {
	H uint8 `json:"h"`
	S uint8 `json:"s"`
	V uint8 `json:"v"`
}

// HSVImage is a frame converted to 8-bit HSV.
//
// Pixels are stored interleaved (H, S, V) in row-major order, the same memory
// layout OpenCV uses for CV_8UC3 matrices. The origin is always (0, 0)
// regardless of the bounds of the source image.
type HSVImage struct {
	// Pix holds the pixel data, 3 bytes per pixel.
	Pix []uint8

	// Width is the frame width in pixels.
	Width int

	// Height is the frame height in pixels.
	Height int
}

// NewHSVImage allocates a zeroed HSV frame.
func NewHSVImage(width, height int) *HSVImage {
	return &HSVImage{
		Pix:    make([]uint8, width*height*3),
		Width:  width,
		Height: height,
	}
}

// At returns the HSV pixel at (x, y). No bounds checking is performed.
func (m *HSVImage) At(x, y int) HSV {
	i := (y*m.Width + x) * 3
	return HSV{H: m.Pix[i], S: m.Pix[i+1], V: m.Pix[i+2]}
}

// Set stores an HSV pixel at (x, y). No bounds checking is performed.
func (m *HSVImage) Set(x, y int, c HSV) {
	i := (y*m.Width + x) * 3
	m.Pix[i] = c.H
	m.Pix[i+1] = c.S
	m.Pix[i+2] = c.V
}

// Bounds returns the frame rectangle, anchored at the origin.
func (m *HSVImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// ToHSV converts an image to an 8-bit HSV frame.
//
// Each pixel is converted with go-colorful and rescaled to the 8-bit
// convention:
//
//	H = round(h° / 2) mod 180
//	S = round(255 × s)
//	V = round(255 × v)
//
// Fully transparent pixels convert to black.
func ToHSV(img image.Image) *HSVImage {
	bounds := img.Bounds()
	out := NewHSVImage(bounds.Dx(), bounds.Dy())

	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			c, ok := colorful.MakeColor(img.At(x+bounds.Min.X, y+bounds.Min.Y))
			if !ok {
				continue
			}
			out.Set(x, y, FromColorful(c))
		}
	}

	return out
}

// FromColorful converts a go-colorful color to 8-bit HSV.
func FromColorful(c colorful.Color) HSV {
	h, s, v := c.Clamped().Hsv()
	hue := int(math.Round(h/2)) % (HueMax + 1)
	return HSV{
		H: uint8(hue),
		S: uint8(math.Round(s * 255)),
		V: uint8(math.Round(v * 255)),
	}
}

// ToColorful converts an 8-bit HSV pixel back to a go-colorful color.
func (c HSV) ToColorful() colorful.Color {
	return colorful.Hsv(float64(c.H)*2, float64(c.S)/255, float64(c.V)/255)
}
