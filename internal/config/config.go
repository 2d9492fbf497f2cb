// Package config reads the optional YAML configuration file.
//
// Every section is optional. Values left out keep the built-in defaults, so
// an empty file yields the onboard configuration. Example:
//
//	save_dir: /data/images
//	camera:
//	  fx: 770
//	  fy: 770
//	  cx: 320
//	  cy: 240
//	profiles:
//	  - label: red
//	    min: [163, 173, 0]
//	    max: [9, 255, 255]
//	  - label: green
//	    id: 5
//	    min: [50, 100, 0]
//	    max: [70, 255, 255]
//	    size_mm: 600
//	serial:
//	  device: /dev/ttyS0
//	  baud_rate: 115200
//	ortho:
//	  pixels_per_metre: 20
//	  repeats:
//	    orange: 3
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/marker-detector/internal/camera"
	"github.com/ironsheep/marker-detector/internal/engine"
	"github.com/ironsheep/marker-detector/internal/geo"
	"github.com/ironsheep/marker-detector/internal/imaging"
	"github.com/ironsheep/marker-detector/internal/link"
	"github.com/ironsheep/marker-detector/internal/marker"
	"github.com/ironsheep/marker-detector/internal/ortho"
)

// File is the decoded configuration file.
type File struct {
	SaveDir    string          `yaml:"save_dir"`
	AltitudeMM *int            `yaml:"altitude_mm"`
	Camera     *camera.Model   `yaml:"camera"`
	Profiles   []ProfileConfig `yaml:"profiles"`
	Serial     SerialConfig    `yaml:"serial"`
	Ortho      OrthoConfig     `yaml:"ortho"`
}

// ProfileConfig overrides or adds one color profile. When Label names a
// built-in profile only the fields present are changed; a new label needs
// id, min, max and size_mm.
type ProfileConfig struct {
	Label         string   `yaml:"label"`
	ID            int      `yaml:"id"`
	Min           []int    `yaml:"min"`
	Max           []int    `yaml:"max"`
	SizeMM        float64  `yaml:"size_mm"`
	AspectRatioTh *float64 `yaml:"aspect_ratio_th"`
	FillRatioTh   *float64 `yaml:"fill_ratio_th"`
	MinPixels     *float64 `yaml:"min_pixels"`
	MaxPixels     *float64 `yaml:"max_pixels"`
}

// SerialConfig selects the autopilot port.
type SerialConfig struct {
	Device           string `yaml:"device"`
	link.PortOptions `yaml:",inline"`
}

// OrthoConfig tunes the orthomosaic survey.
type OrthoConfig struct {
	PixelsPerMetre float64         `yaml:"pixels_per_metre"`
	Downscale      float64         `yaml:"downscale"`
	Zone           *geo.UTMZone    `yaml:"zone"`
	Repeats        map[string]int  `yaml:"repeats"`
	Profiles       []ProfileConfig `yaml:"profiles"`
}

// Load reads a configuration file.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a configuration document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	cfg := &File{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Settings returns the onboard settings with the file's overrides applied.
func (f *File) Settings() (engine.Settings, error) {
	s := engine.DefaultSettings()
	if f == nil {
		return s, nil
	}

	if f.SaveDir != "" {
		s.SaveDir = f.SaveDir
	}
	if f.AltitudeMM != nil {
		s.AltitudeMM = *f.AltitudeMM
	}
	if f.Camera != nil {
		s.Camera = *f.Camera
	}

	profiles, err := applyProfiles(s.Profiles, f.Profiles)
	if err != nil {
		return s, err
	}
	s.Profiles = profiles

	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// PortOptions returns the serial options, with defaults applied.
func (f *File) PortOptions() (link.PortOptions, error) {
	if f == nil {
		return link.PortOptions{}.Normalize()
	}
	return f.Serial.PortOptions.Normalize()
}

// SurveyOptions returns the orthomosaic options with the file's overrides
// applied. Repeats are keyed by profile label.
func (f *File) SurveyOptions() (ortho.Options, error) {
	opts := ortho.DefaultOptions()
	if f == nil {
		return opts, nil
	}
	o := f.Ortho

	profiles, err := applyProfiles(opts.Profiles, o.Profiles)
	if err != nil {
		return opts, err
	}
	opts.Profiles = profiles

	if o.PixelsPerMetre != 0 {
		opts.PixelsPerMetre = o.PixelsPerMetre
	}
	if o.Downscale != 0 {
		opts.Downscale = o.Downscale
	}
	if o.Zone != nil {
		opts.Zone = *o.Zone
	}
	for label, n := range o.Repeats {
		id, ok := profileID(opts.Profiles, label)
		if !ok {
			return opts, fmt.Errorf("ortho repeats: unknown profile %q", label)
		}
		opts.Repeats[id] = n
	}

	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("invalid ortho options: %w", err)
	}
	return opts, nil
}

func profileID(profiles []marker.ColorProfile, label string) (int, bool) {
	for _, p := range profiles {
		if p.Label == label {
			return p.ID, true
		}
	}
	return 0, false
}

// applyProfiles merges configured profiles into base. Overrides replace
// the built-in entry in place; new labels are appended in file order.
func applyProfiles(base []marker.ColorProfile, cfgs []ProfileConfig) ([]marker.ColorProfile, error) {
	out := append([]marker.ColorProfile(nil), base...)
	for i, pc := range cfgs {
		if pc.Label == "" {
			return nil, fmt.Errorf("profile %d: missing label", i+1)
		}

		idx := -1
		for j, p := range out {
			if p.Label == pc.Label {
				idx = j
				break
			}
		}

		var p marker.ColorProfile
		if idx >= 0 {
			p = out[idx]
		} else {
			if pc.ID == 0 || pc.Min == nil || pc.Max == nil || pc.SizeMM == 0 {
				return nil, fmt.Errorf("profile %s: new profiles need id, min, max and size_mm", pc.Label)
			}
			p = marker.NewColorProfile(pc.ID, pc.Label, imaging.HSV{}, imaging.HSV{}, pc.SizeMM)
		}

		if err := pc.apply(&p); err != nil {
			return nil, fmt.Errorf("profile %s: %w", pc.Label, err)
		}
		if idx >= 0 {
			out[idx] = p
		} else {
			out = append(out, p)
		}
	}
	return out, nil
}

func (pc ProfileConfig) apply(p *marker.ColorProfile) error {
	if pc.ID != 0 {
		p.ID = pc.ID
	}
	if pc.SizeMM != 0 {
		p.ReferenceSizeMM = pc.SizeMM
	}

	lo, hi := p.Min, p.Max
	if pc.Min != nil {
		v, err := parseHSV(pc.Min)
		if err != nil {
			return fmt.Errorf("min: %w", err)
		}
		lo = v
	}
	if pc.Max != nil {
		v, err := parseHSV(pc.Max)
		if err != nil {
			return fmt.Errorf("max: %w", err)
		}
		hi = v
	}
	*p = p.WithThresholds(lo, hi)

	if pc.AspectRatioTh != nil {
		p.AspectRatioTh = *pc.AspectRatioTh
	}
	if pc.FillRatioTh != nil {
		p.FillRatioTh = *pc.FillRatioTh
	}
	if pc.MinPixels != nil {
		p.PixelBounds.Min = *pc.MinPixels
	}
	if pc.MaxPixels != nil {
		p.PixelBounds.Max = *pc.MaxPixels
	}
	return p.Validate()
}

func parseHSV(v []int) (imaging.HSV, error) {
	if len(v) != 3 {
		return imaging.HSV{}, fmt.Errorf("expected [h, s, v], got %d values", len(v))
	}
	if v[0] < 0 || v[0] > imaging.HueMax {
		return imaging.HSV{}, fmt.Errorf("hue %d outside 0-%d", v[0], imaging.HueMax)
	}
	for _, c := range v[1:] {
		if c < 0 || c > 255 {
			return imaging.HSV{}, fmt.Errorf("value %d outside 0-255", c)
		}
	}
	return imaging.HSV{H: uint8(v[0]), S: uint8(v[1]), V: uint8(v[2])}, nil
}
