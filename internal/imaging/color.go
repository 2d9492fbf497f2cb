package imaging

import (
	"fmt"
	"image"
	"sort"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// ColorResult contains a sampled pixel in the representations needed to tune
// marker thresholds.
type ColorResult struct {
	Hex string `json:"hex"` // Hex format "#RRGGBB" (no alpha)
	HSV HSV    `json:"hsv"` // 8-bit HSV, hue 0-179
}

// SampleColor extracts the color value at a specific pixel coordinate.
//
// Parameters:
//   - img: The source image to sample from.
//   - x: X coordinate (0-based, 0 = leftmost pixel).
//   - y: Y coordinate (0-based, 0 = topmost pixel).
//
// Returns:
//   - *ColorResult: The color at (x, y) as hex and 8-bit HSV.
//   - error: Non-nil if coordinates are outside the image bounds.
//
// Coordinates are relative to the top-left corner of the image, the same
// convention the detector uses for candidate centers.
func SampleColor(img image.Image, x, y int) (*ColorResult, error) {
	bounds := img.Bounds()
	px, py := x+bounds.Min.X, y+bounds.Min.Y
	if x < 0 || y < 0 || px >= bounds.Max.X || py >= bounds.Max.Y {
		return nil, fmt.Errorf("coordinates (%d,%d) outside image bounds", x, y)
	}

	c, _ := colorful.MakeColor(img.At(px, py))

	return &ColorResult{
		Hex: strings.ToUpper(c.Clamped().Hex()),
		HSV: FromColorful(c),
	}, nil
}

// LabeledPoint represents a pixel coordinate with an optional descriptive label.
type LabeledPoint struct {
	X     int    // X coordinate (0-based)
	Y     int    // Y coordinate (0-based)
	Label string // Optional descriptive label for this point
}

// LabeledColorResult combines a color sample with its location and optional label.
type LabeledColorResult struct {
	Label string      `json:"label,omitempty"`
	X     int         `json:"x"`
	Y     int         `json:"y"`
	Color ColorResult `json:"color"`
}

// SampleColorsMulti extracts colors at multiple pixel coordinates in a single call.
//
// Results are returned in input order. On error no partial results are
// returned.
func SampleColorsMulti(img image.Image, points []LabeledPoint) ([]LabeledColorResult, error) {
	results := make([]LabeledColorResult, 0, len(points))

	for _, p := range points {
		color, err := SampleColor(img, p.X, p.Y)
		if err != nil {
			return nil, fmt.Errorf("failed to sample point (%d,%d): %w", p.X, p.Y, err)
		}
		results = append(results, LabeledColorResult{
			Label: p.Label,
			X:     p.X,
			Y:     p.Y,
			Color: *color,
		})
	}

	return results, nil
}

// Region represents a rectangular region within an image.
//
// (X1, Y1) is inclusive, (X2, Y2) is exclusive.
type Region struct {
	X1 int
	Y1 int
	X2 int
	Y2 int
}

// HueSatBin is one cell of a hue/saturation histogram.
type HueSatBin struct {
	HueMin     int     `json:"hue_min"`
	HueMax     int     `json:"hue_max"`
	SatMin     int     `json:"sat_min"`
	SatMax     int     `json:"sat_max"`
	Percentage float64 `json:"percentage"`
}

// HueSatHistogram bins the pixels of a region by hue and saturation and
// returns the most populated bins, largest first.
//
// Parameters:
//   - frame: The HSV frame to analyze.
//   - hueStep, satStep: Bin widths. Non-positive values fall back to 10 and 32.
//   - count: Maximum number of bins returned.
//   - region: Optional region; nil analyzes the whole frame.
//
// Returns an error when the region is empty or falls outside the frame.
//
// The result is meant for choosing hsv_<color> thresholds: a marker shows up as
// a dominant bin whose hue and saturation limits bracket the commanded range.
func HueSatHistogram(frame *HSVImage, hueStep, satStep, count int, region *Region) ([]HueSatBin, error) {
	if hueStep <= 0 {
		hueStep = 10
	}
	if satStep <= 0 {
		satStep = 32
	}

	r := frame.Bounds()
	if region != nil {
		r = image.Rect(region.X1, region.Y1, region.X2, region.Y2)
		if !r.In(frame.Bounds()) {
			return nil, fmt.Errorf("region (%d,%d)-(%d,%d) outside frame bounds", region.X1, region.Y1, region.X2, region.Y2)
		}
	}
	if r.Empty() {
		return nil, fmt.Errorf("empty region")
	}

	type key struct{ h, s int }
	counts := make(map[key]int)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := frame.At(x, y)
			counts[key{int(c.H) / hueStep, int(c.S) / satStep}]++
		}
	}

	total := float64(r.Dx() * r.Dy())
	bins := make([]HueSatBin, 0, len(counts))
	for k, n := range counts {
		bins = append(bins, HueSatBin{
			HueMin:     k.h * hueStep,
			HueMax:     min(k.h*hueStep+hueStep-1, HueMax),
			SatMin:     k.s * satStep,
			SatMax:     min(k.s*satStep+satStep-1, 255),
			Percentage: float64(n) / total * 100,
		})
	}

	sort.Slice(bins, func(i, j int) bool {
		if bins[i].Percentage != bins[j].Percentage {
			return bins[i].Percentage > bins[j].Percentage
		}
		if bins[i].HueMin != bins[j].HueMin {
			return bins[i].HueMin < bins[j].HueMin
		}
		return bins[i].SatMin < bins[j].SatMin
	})

	if count > 0 && len(bins) > count {
		bins = bins[:count]
	}

	return bins, nil
}
