// Package ortho searches georeferenced orthomosaic images for markers.
//
// Unlike the onboard loop, a survey image can hold several markers of the
// same color. Each winner is masked out before the next search so that
// repeated passes find distinct markers, and every placement is labelled
// with its WGS84 position when the image carries a world file.
package ortho

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"go.uber.org/zap"

	"github.com/ironsheep/marker-detector/internal/geo"
	"github.com/ironsheep/marker-detector/internal/imaging"
	"github.com/ironsheep/marker-detector/internal/marker"
)

// Defaults for survey processing.
const (
	DefaultPixelsPerMetre = 20
	DefaultDownscale      = 4
	DefaultOrangeRepeats  = 3

	CircleRadius = 50
	CircleWidth  = 5
	LabelOffset  = 60
	GeoOffset    = 30
	LabelSize    = 28
)

// Options configures a survey.
type Options struct {
	// Profiles are searched in this order.
	Profiles []marker.ColorProfile

	// PixelsPerMetre is the ground resolution of the mosaic.
	PixelsPerMetre float64

	// Repeats is the number of markers searched per profile ID. Profiles
	// without an entry are searched once.
	Repeats map[int]int

	// Downscale shrinks the annotated output. Values at or below 1 keep
	// the full resolution.
	Downscale float64

	// Zone is the UTM zone of the world file coordinates.
	Zone geo.UTMZone
}

// DefaultOptions returns the survey preset: ortho profiles at 20 px/m with
// up to three orange markers, in UTM zone 31 north.
func DefaultOptions() Options {
	return Options{
		Profiles:       marker.OrthoProfiles(),
		PixelsPerMetre: DefaultPixelsPerMetre,
		Repeats:        map[int]int{marker.Orange: DefaultOrangeRepeats},
		Downscale:      DefaultDownscale,
		Zone:           geo.DefaultZone,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if len(o.Profiles) == 0 {
		return errors.New("no color profiles configured")
	}
	for _, p := range o.Profiles {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	if o.PixelsPerMetre <= 0 {
		return fmt.Errorf("invalid resolution %v px/m: must be positive", o.PixelsPerMetre)
	}
	for id, n := range o.Repeats {
		if n < 0 {
			return fmt.Errorf("profile %d: negative repeat count %d", id, n)
		}
	}
	return o.Zone.Validate()
}

func (o Options) repeats(id int) int {
	if n, ok := o.Repeats[id]; ok {
		return n
	}
	return 1
}

// Placement is one marker found in a survey image.
type Placement struct {
	Label     string
	ProfileID int
	Candidate marker.Candidate

	// Lat and Lon are valid when HasGeo is set.
	Lat    float64
	Lon    float64
	HasGeo bool
}

// GeoText formats the position as printed next to the marker.
func (p Placement) GeoText() string {
	if !p.HasGeo {
		return ""
	}
	return fmt.Sprintf("%.7f %.7f", p.Lat, p.Lon)
}

// Survey runs marker searches over orthomosaic images.
type Survey struct {
	opts     Options
	detector *marker.Detector
	logger   *zap.SugaredLogger
}

// New creates a survey. A nil backend selects the default one.
func New(opts Options, backend marker.Backend, logger *zap.SugaredLogger) (*Survey, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	d := marker.NewDetector(logger.Named("marker"))
	if backend != nil {
		d.Backend = backend
	}
	return &Survey{opts: opts, detector: d, logger: logger}, nil
}

// Options returns the survey configuration.
func (s *Survey) Options() Options { return s.opts }

// Detect searches the frame for every profile. Winners of earlier searches,
// of any color, are excluded from later ones. tf may be nil.
func (s *Survey) Detect(frame image.Image, tf *geo.Transform) []Placement {
	hsv := imaging.ToHSV(frame)
	scale := marker.ScaleFromResolution(s.opts.PixelsPerMetre)

	var (
		placements []Placement
		exclude    []marker.Candidate
	)
	for _, p := range s.opts.Profiles {
		n := s.opts.repeats(p.ID)
		for i := 1; i <= n; i++ {
			best, _ := s.detector.DetectExcluding(hsv, p, scale, exclude)
			if best == nil {
				break
			}
			exclude = append(exclude, *best)

			pl := Placement{Label: placementLabel(p.Label, i, n), ProfileID: p.ID, Candidate: *best}
			pl.Lat, pl.Lon, pl.HasGeo = tf.ToGeographic(best.Center.X, best.Center.Y)
			placements = append(placements, pl)

			s.logger.Infow("marker found",
				"label", pl.Label,
				"x", best.Center.X,
				"y", best.Center.Y,
				"score", best.Score,
				"geo", pl.GeoText(),
			)
		}
	}
	return placements
}

func placementLabel(label string, i, n int) string {
	label = strings.ToUpper(label)
	if n > 1 {
		return fmt.Sprintf("%s_%d", label, i)
	}
	return label
}

// Annotate circles every placement on a copy of frame, writes its label and
// position beside it, and applies the configured downscale.
func (s *Survey) Annotate(frame image.Image, placements []Placement) image.Image {
	a := imaging.NewAnnotator(frame)
	for _, pl := range placements {
		cx := float64(int(pl.Candidate.Center.X))
		cy := float64(int(pl.Candidate.Center.Y))
		a.Circle(cx, cy, CircleRadius, imaging.MarkColor, CircleWidth)
		a.Label(pl.Label, cx+LabelOffset, cy, imaging.MarkColor, LabelSize)
		if pl.HasGeo {
			a.Label(pl.GeoText(), cx+LabelOffset, cy+GeoOffset, imaging.MarkColor, LabelSize)
		}
	}
	return imaging.Downscale(a.Image(), s.opts.Downscale)
}

// ProcessFile loads a survey image and its world file, runs Detect and,
// when output is not empty, writes the annotated result there. A missing
// world file only disables geographic labels.
func (s *Survey) ProcessFile(input, output string) ([]Placement, error) {
	frame, err := imaging.Open(input)
	if err != nil {
		return nil, err
	}

	zone := s.opts.Zone
	var tf *geo.Transform
	t, err := geo.LoadWorldFile(input, &zone)
	switch {
	case err == nil:
		tf = &t
	case errors.Is(err, geo.ErrNoWorldFile):
		s.logger.Infow("no world file, positions will not be georeferenced", "image", input)
	default:
		s.logger.Warnw("ignoring unreadable world file", "image", input, "error", err)
	}

	return s.ProcessImage(frame, tf, output)
}

// ProcessImage runs Detect with an explicit transform and, when output is
// not empty, writes the annotated result there.
func (s *Survey) ProcessImage(frame image.Image, tf *geo.Transform, output string) ([]Placement, error) {
	placements := s.Detect(frame, tf)
	if output == "" {
		return placements, nil
	}
	if err := imaging.SaveFrame(output, s.Annotate(frame, placements)); err != nil {
		return placements, err
	}
	return placements, nil
}
