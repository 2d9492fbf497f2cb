package marker

import (
	"fmt"

	"github.com/ironsheep/marker-detector/internal/imaging"
)

// Color identifiers reported in N2 messages.
const (
	Red    = 1
	Blue   = 2
	Yellow = 3
	Orange = 4
)

// Default filter thresholds applied when a profile does not override them.
const (
	DefaultAspectRatioTh = 0.8
	DefaultFillRatioTh   = 0.7
	DefaultMinPixels     = 10
	DefaultMaxPixels     = 300
)

// Box is an axis-aligned HSV acceptance box. Both limits are inclusive.
type Box struct {
	Lo imaging.HSV `json:"lo"`
	Hi imaging.HSV `json:"hi"`
}

// Contains reports whether c lies inside the box.
func (b Box) Contains(c imaging.HSV) bool {
	return c.H >= b.Lo.H && c.H <= b.Hi.H &&
		c.S >= b.Lo.S && c.S <= b.Hi.S &&
		c.V >= b.Lo.V && c.V <= b.Hi.V
}

// HueRange is the set of HSV values accepted for one color class.
//
// It is either a SingleRange, or a SplitRange when the commanded hue interval
// wraps around the end of the circular hue domain. The split is computed once
// by NewHueRange and never re-derived per pixel.
type HueRange interface {
	// Boxes returns the disjoint boxes making up the range, in ascending hue order.
	Boxes() []Box
	// Contains reports whether an HSV pixel is accepted.
	Contains(c imaging.HSV) bool

	isHueRange()
}

// SingleRange is a hue interval that does not wrap.
type SingleRange struct {
	Box Box
}

// Boxes implements HueRange.
func (r SingleRange) Boxes() []Box { return []Box{r.Box} }

// Contains implements HueRange.
func (r SingleRange) Contains(c imaging.HSV) bool { return r.Box.Contains(c) }

func (SingleRange) isHueRange() {}

// SplitRange is a hue interval that wraps past HueMax. Low covers
// [0, hue_max] and High covers [hue_min, HueMax], both at the same
// saturation and value limits.
type SplitRange struct {
	Low  Box
	High Box
}

// Boxes implements HueRange.
func (r SplitRange) Boxes() []Box { return []Box{r.Low, r.High} }

// Contains implements HueRange.
func (r SplitRange) Contains(c imaging.HSV) bool {
	return r.Low.Contains(c) || r.High.Contains(c)
}

func (SplitRange) isHueRange() {}

// NewHueRange builds the range for a commanded (min, max) pair. A hue minimum
// greater than the hue maximum selects the wrapped form.
func NewHueRange(lo, hi imaging.HSV) HueRange {
	if lo.H <= hi.H {
		return SingleRange{Box: Box{Lo: lo, Hi: hi}}
	}
	return SplitRange{
		Low: Box{
			Lo: imaging.HSV{H: 0, S: lo.S, V: lo.V},
			Hi: imaging.HSV{H: hi.H, S: hi.S, V: hi.V},
		},
		High: Box{
			Lo: imaging.HSV{H: lo.H, S: lo.S, V: lo.V},
			Hi: imaging.HSV{H: imaging.HueMax, S: hi.S, V: hi.V},
		},
	}
}

// SizeBounds limits the rotated rectangle sides, in pixels.
type SizeBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ColorProfile describes one color class: its HSV acceptance range, the real
// size of the marker and the candidate filters.
//
// Profiles are values. Changing thresholds produces a new profile through
// WithThresholds so that a published profile is never modified in place.
type ColorProfile struct {
	ID    int    `json:"id"`
	Label string `json:"label"`

	// Min and Max are the thresholds as commanded, before wraparound splitting.
	Min imaging.HSV `json:"min"`
	Max imaging.HSV `json:"max"`

	// Range is derived from Min and Max.
	Range HueRange `json:"-"`

	// ReferenceSizeMM is the side length of the physical marker.
	ReferenceSizeMM float64 `json:"reference_size_mm"`

	AspectRatioTh float64    `json:"aspect_ratio_th"`
	FillRatioTh   float64    `json:"fill_ratio_th"`
	PixelBounds   SizeBounds `json:"pixel_bounds"`
}

// NewColorProfile creates a profile with the default filter thresholds.
func NewColorProfile(id int, label string, lo, hi imaging.HSV, sizeMM float64) ColorProfile {
	return ColorProfile{
		ID:              id,
		Label:           label,
		Min:             lo,
		Max:             hi,
		Range:           NewHueRange(lo, hi),
		ReferenceSizeMM: sizeMM,
		AspectRatioTh:   DefaultAspectRatioTh,
		FillRatioTh:     DefaultFillRatioTh,
		PixelBounds:     SizeBounds{Min: DefaultMinPixels, Max: DefaultMaxPixels},
	}
}

// WithThresholds returns a copy of the profile with new HSV limits and a
// recomputed hue range.
func (p ColorProfile) WithThresholds(lo, hi imaging.HSV) ColorProfile {
	p.Min = lo
	p.Max = hi
	p.Range = NewHueRange(lo, hi)
	return p
}

// ReferenceAreaMM2 is the squared real size of the marker.
func (p ColorProfile) ReferenceAreaMM2() float64 {
	return p.ReferenceSizeMM * p.ReferenceSizeMM
}

// Validate checks the filter thresholds.
func (p ColorProfile) Validate() error {
	if p.Label == "" {
		return fmt.Errorf("profile %d: empty label", p.ID)
	}
	if p.Min.H > imaging.HueMax || p.Max.H > imaging.HueMax {
		return fmt.Errorf("profile %s: hue must be within 0-%d", p.Label, imaging.HueMax)
	}
	if p.Min.S > p.Max.S || p.Min.V > p.Max.V {
		return fmt.Errorf("profile %s: saturation and value minimums must not exceed maximums", p.Label)
	}
	if p.AspectRatioTh <= 0 || p.AspectRatioTh > 1 {
		return fmt.Errorf("profile %s: aspect ratio threshold %v outside (0,1]", p.Label, p.AspectRatioTh)
	}
	if p.FillRatioTh <= 0 || p.FillRatioTh > 1 {
		return fmt.Errorf("profile %s: fill ratio threshold %v outside (0,1]", p.Label, p.FillRatioTh)
	}
	if p.PixelBounds.Min < 0 || p.PixelBounds.Max < p.PixelBounds.Min {
		return fmt.Errorf("profile %s: invalid pixel bounds %v-%v", p.Label, p.PixelBounds.Min, p.PixelBounds.Max)
	}
	if p.ReferenceSizeMM <= 0 {
		return fmt.Errorf("profile %s: reference size must be positive", p.Label)
	}
	return nil
}

func hsv(h, s, v uint8) imaging.HSV { return imaging.HSV{H: h, S: s, V: v} }

// DefaultProfiles returns the onboard profiles, in reporting order.
func DefaultProfiles() []ColorProfile {
	return []ColorProfile{
		NewColorProfile(Red, "red", hsv(163, 173, 0), hsv(9, 255, 255), 750),
		NewColorProfile(Blue, "blue", hsv(109, 176, 0), hsv(145, 241, 255), 1200),
		NewColorProfile(Yellow, "yellow", hsv(21, 195, 0), hsv(45, 255, 255), 1500),
		NewColorProfile(Orange, "orange", hsv(141, 61, 0), hsv(163, 76, 255), 500),
	}
}

// OrthoProfiles returns the profiles tuned for nadir orthomosaic imagery.
// Only blue differs from the onboard set.
func OrthoProfiles() []ColorProfile {
	profiles := DefaultProfiles()
	for i := range profiles {
		if profiles[i].ID == Blue {
			profiles[i] = profiles[i].WithThresholds(hsv(103, 129, 0), hsv(129, 190, 255))
		}
	}
	return profiles
}
