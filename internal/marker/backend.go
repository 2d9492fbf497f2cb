package marker

import (
	"image"

	"github.com/ironsheep/marker-detector/internal/imaging"
)

// Backend performs the pixel-level stages of detection: segmentation and
// candidate extraction. Scoring is always done in Go so that every backend
// applies identical filters.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string
	// Segment returns the opened 0/255 mask of pixels inside r.
	Segment(frame *imaging.HSVImage, r HueRange, kernel int) *image.Gray
	// Extract returns the rotated-rectangle candidates of the mask's
	// external blobs in a deterministic order.
	Extract(mask *image.Gray) []Candidate
}

// NativeBackend is the pure Go implementation.
type NativeBackend struct{}

// Name implements Backend.
func (NativeBackend) Name() string { return "native" }

// Segment implements Backend.
func (NativeBackend) Segment(frame *imaging.HSVImage, r HueRange, kernel int) *image.Gray {
	return Segmenter{KernelSize: kernel}.Segment(frame, r)
}

// Extract implements Backend.
func (NativeBackend) Extract(mask *image.Gray) []Candidate {
	return Extract(mask)
}

// defaultBackend is replaced at init time when an accelerated backend is
// compiled in.
var defaultBackend Backend = NativeBackend{}

// DefaultBackend returns the backend used when a Detector does not set one.
func DefaultBackend() Backend { return defaultBackend }
