package marker

import (
	"image"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ironsheep/marker-detector/internal/imaging"
)

// Detection is the outcome for one profile in one frame. Candidate is nil
// when the color was not found.
type Detection struct {
	ProfileID int        `json:"id"`
	Label     string     `json:"label"`
	Candidate *Candidate `json:"candidate,omitempty"`
}

// DetectionResult lists one Detection per configured profile, in profile
// order. It is built per frame and not retained.
type DetectionResult []Detection

// Get returns the detection for a profile ID.
func (r DetectionResult) Get(id int) (Detection, bool) {
	for _, d := range r {
		if d.ProfileID == id {
			return d, true
		}
	}
	return Detection{}, false
}

// Found returns the detections that have a winner, in order.
func (r DetectionResult) Found() []Detection {
	var out []Detection
	for _, d := range r {
		if d.Candidate != nil {
			out = append(out, d)
		}
	}
	return out
}

// Detector runs segmentation, extraction and selection for color profiles.
// The zero value uses DefaultBackend, the default kernel and no logging.
type Detector struct {
	Backend    Backend
	KernelSize int
	Logger     *zap.SugaredLogger
}

// NewDetector creates a detector with the default backend.
func NewDetector(logger *zap.SugaredLogger) *Detector {
	return &Detector{Backend: DefaultBackend(), KernelSize: DefaultKernelSize, Logger: logger}
}

func (d *Detector) backend() Backend {
	if d.Backend == nil {
		return DefaultBackend()
	}
	return d.Backend
}

func (d *Detector) logger() *zap.SugaredLogger {
	if d.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return d.Logger
}

// Detect finds the best candidate for one profile.
func (d *Detector) Detect(frame *imaging.HSVImage, p ColorProfile, scale Scale) (*Candidate, []Evaluation) {
	return d.DetectExcluding(frame, p, scale, nil)
}

// DetectExcluding is Detect with the areas of earlier winners removed from
// the mask first, so that repeated calls find further markers of the same
// color.
func (d *Detector) DetectExcluding(frame *imaging.HSVImage, p ColorProfile, scale Scale, exclude []Candidate) (*Candidate, []Evaluation) {
	b := d.backend()
	mask := b.Segment(frame, p.Range, d.KernelSize)
	for _, c := range exclude {
		ClearCandidate(mask, c)
	}

	candidates := b.Extract(mask)
	best, evals := Select(candidates, p, scale)

	log := d.logger()
	for _, ev := range evals {
		log.Debugw("candidate",
			"color", p.Label,
			"order", ev.Candidate.Order,
			"center_x", ev.Candidate.Center.X,
			"center_y", ev.Candidate.Center.Y,
			"width", ev.Candidate.Width,
			"height", ev.Candidate.Height,
			"reason", ev.Reason.String(),
			"score", ev.Candidate.Score,
		)
	}
	return best, evals
}

// DetectAll runs Detect for every profile and collects the winners in
// profile order.
func (d *Detector) DetectAll(frame *imaging.HSVImage, profiles []ColorProfile, scale Scale) DetectionResult {
	result := make(DetectionResult, 0, len(profiles))
	for _, p := range profiles {
		best, _ := d.Detect(frame, p, scale)
		result = append(result, Detection{ProfileID: p.ID, Label: p.Label, Candidate: best})
	}
	return result
}

// ClearCandidate zeroes every mask pixel whose centre lies inside c.
func ClearCandidate(mask *image.Gray, c Candidate) {
	b := mask.Bounds()
	x0, y0, x1, y1 := b.Max.X, b.Max.Y, b.Min.X, b.Min.Y
	for _, p := range c.Corners() {
		x0 = min(x0, int(p.X))
		y0 = min(y0, int(p.Y))
		x1 = max(x1, int(p.X)+1)
		y1 = max(y1, int(p.Y)+1)
	}
	r := image.Rect(x0, y0, x1, y1).Intersect(b)

	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if c.Contains(r2.Vec{X: float64(x) + 0.5, Y: float64(y) + 0.5}) {
				mask.Pix[mask.PixOffset(x, y)] = 0
			}
		}
	}
}
