//go:build gocv

package marker

import (
	"image"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ironsheep/marker-detector/internal/imaging"
)

// OpenCVBackend runs segmentation and contour extraction through OpenCV.
//
// Build with -tags gocv and an OpenCV 4 installation. OpenCV measures
// geometry on pixel centres, so rectangles come out one pixel smaller per
// side than with NativeBackend.
type OpenCVBackend struct{}

func init() {
	defaultBackend = OpenCVBackend{}
}

// Name implements Backend.
func (OpenCVBackend) Name() string { return "opencv" }

// Segment implements Backend.
func (OpenCVBackend) Segment(frame *imaging.HSVImage, r HueRange, kernel int) *image.Gray {
	hsv, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Pix)
	if err != nil {
		return image.NewGray(frame.Bounds())
	}
	defer hsv.Close()

	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), frame.Height, frame.Width, gocv.MatTypeCV8UC1)
	defer mask.Close()

	part := gocv.NewMat()
	defer part.Close()
	for _, b := range r.Boxes() {
		gocv.InRangeWithScalar(hsv,
			gocv.NewScalar(float64(b.Lo.H), float64(b.Lo.S), float64(b.Lo.V), 0),
			gocv.NewScalar(float64(b.Hi.H), float64(b.Hi.S), float64(b.Hi.V), 0),
			&part)
		gocv.BitwiseOr(mask, part, &mask)
	}

	if kernel <= 0 {
		kernel = DefaultKernelSize
	}
	if kernel > 1 {
		k := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: kernel, Y: kernel})
		defer k.Close()
		gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, k)
	}

	out := image.NewGray(frame.Bounds())
	copy(out.Pix, mask.ToBytes())
	return out
}

// Extract implements Backend.
func (OpenCVBackend) Extract(mask *image.Gray) []Candidate {
	b := mask.Bounds()
	m, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, mask.Pix)
	if err != nil {
		return nil
	}
	defer m.Close()

	contours := gocv.FindContours(m, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var candidates []Candidate
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		rect := gocv.MinAreaRect(contour)
		if rect.Width == 0 || rect.Height == 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			Center:      r2.Vec{X: float64(rect.Center.X), Y: float64(rect.Center.Y)},
			Width:       float64(rect.Width),
			Height:      float64(rect.Height),
			Angle:       normalizeAngle(rect.Angle),
			ContourArea: gocv.ContourArea(contour),
			Order:       len(candidates),
		})
	}
	return candidates
}
