// Package led finds a bright, roughly square light source, typically the LED
// of another vehicle, in grayscale frames.
//
// Static bright objects can be hidden with a mask captured from one frame:
// every bright area of that frame, grown by a few pixels, is ignored in
// later frames until the mask is rebuilt or cleared.
package led

import (
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
	"go.uber.org/zap"

	"github.com/ironsheep/marker-detector/internal/marker"
)

const (
	// DefaultThreshold is the minimum blurred brightness of an LED pixel.
	DefaultThreshold = 200

	// BlurRadius approximates a 5×5 Gaussian kernel.
	BlurRadius = 1.1

	// MaskRadius grows masked areas by about 5 pixels on each side.
	MaskRadius = 5

	// MaxSideDifference is the largest |width - height| of an accepted
	// light, in pixels.
	MaxSideDifference = 10
)

// Replies to LED commands.
const (
	ReplyMaskSet      = "Mask set"
	ReplyMaskCleared  = "Mask cleared"
	ReplyThresholdSet = "Threshold set"
	ReplyUnsupported  = "ERR: Unsupported command"
)

// Position is one detected light, relative to the image centre with y
// pointing up.
type Position struct {
	X, Y          float64
	Width, Height float64
}

// Area is the rectangle area in square pixels.
func (p Position) Area() float64 { return p.Width * p.Height }

// String formats the position as sent to the autopilot.
func (p Position) String() string {
	return fmt.Sprintf("POS %.2f %.2f %.2f", p.X, p.Y, p.Area())
}

// Detector holds the threshold and the static mask. It is safe to handle
// commands while frames are processed.
type Detector struct {
	mu          sync.Mutex
	threshold   int
	mask        *image.Gray
	maskPending bool

	logger *zap.SugaredLogger
}

// NewDetector creates a detector that builds its mask from the first frame.
func NewDetector(logger *zap.SugaredLogger) *Detector {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Detector{threshold: DefaultThreshold, maskPending: true, logger: logger}
}

// Threshold returns the current brightness threshold.
func (d *Detector) Threshold() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.threshold
}

// Process finds every square light in the frame, in raster order of their
// top-left pixel.
func (d *Detector) Process(frame image.Image) []Position {
	if frame == nil {
		return nil
	}

	d.mu.Lock()
	level := d.threshold
	d.mu.Unlock()

	bright := binarize(frame, level)

	d.mu.Lock()
	if d.maskPending || (d.mask != nil && d.mask.Bounds() != bright.Bounds()) {
		d.mask = buildMask(bright)
		d.maskPending = false
		d.logger.Debugw("mask rebuilt", "threshold", level)
	}
	mask := d.mask
	d.mu.Unlock()

	if mask != nil {
		applyMask(bright, mask)
	}

	b := bright.Bounds()
	cx, cy := float64(b.Dx())/2, float64(b.Dy())/2

	var out []Position
	for _, c := range marker.Extract(bright) {
		if math.Abs(c.Width-c.Height) > MaxSideDifference {
			continue
		}
		out = append(out, Position{
			X:      c.Center.X - cx,
			Y:      -(c.Center.Y - cy),
			Width:  c.Width,
			Height: c.Height,
		})
	}
	return out
}

// binarize converts the frame to a blurred grayscale image and keeps the
// pixels strictly brighter than level.
func binarize(frame image.Image, level int) *image.Gray {
	blurred := blur.Gaussian(effect.Grayscale(frame), BlurRadius)
	if level >= 255 {
		return image.NewGray(blurred.Bounds())
	}
	return segment.Threshold(blurred, uint8(max(level, 0)+1))
}

// buildMask dilates the bright areas and inverts the result: 0 marks an
// ignored pixel.
func buildMask(bright *image.Gray) *image.Gray {
	grown := effect.Dilate(bright, MaskRadius)
	b := bright.Bounds()
	mask := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if grown.RGBAAt(x, y).R == 0 && bright.GrayAt(x, y).Y == 0 {
				mask.Pix[mask.PixOffset(x, y)] = 255
			}
		}
	}
	return mask
}

func applyMask(bright, mask *image.Gray) {
	for i, m := range mask.Pix {
		if m == 0 {
			bright.Pix[i] = 0
		}
	}
}

// HandleCommand executes one LED command and returns the reply.
//
//	set_mask        rebuild the mask from the next frame
//	clear_mask      stop masking
//	set_thres <n>   set the threshold, clamped to 0-255
func (d *Detector) HandleCommand(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ReplyUnsupported
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case len(fields) == 1 && fields[0] == "set_mask":
		d.maskPending = true
		return ReplyMaskSet

	case len(fields) == 1 && fields[0] == "clear_mask":
		d.mask = nil
		d.maskPending = false
		return ReplyMaskCleared

	case len(fields) == 2 && fields[0] == "set_thres" && isDigits(fields[1]):
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			n = 255
		}
		d.threshold = min(n, 255)
		d.logger.Debugw("threshold set", "threshold", d.threshold)
		return ReplyThresholdSet
	}

	d.logger.Debugw("unsupported command", "line", line)
	return ReplyUnsupported
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// HelpText describes the LED commands, one per line.
func HelpText() string {
	return "set_mask - hide visible objects from the scene\n" +
		"clear_mask - clear all mask (show all objects)\n" +
		"set_thres <n> - brightness threshold, 0 to 255\n"
}
