package marker

import (
	"image"

	"github.com/ironsheep/marker-detector/internal/imaging"
)

// DefaultKernelSize is the side of the square structuring element used to
// open the color mask.
const DefaultKernelSize = 8

// Segmenter turns an HSV frame into a binary mask for one color class.
type Segmenter struct {
	// KernelSize is the side of the square opening element. Zero means
	// DefaultKernelSize; 1 disables the opening.
	KernelSize int
}

// Segment thresholds the frame against r and removes noise with a
// morphological opening.
//
// # Algorithm
//
//  1. Threshold: a pixel is set (255) when it falls inside any box of r.
//     Boxes are disjoint, so the union is a plain OR.
//  2. Erosion: a pixel survives when every pixel under the kernel is set.
//  3. Dilation: a pixel is set when any pixel under the reflected kernel is
//     set, so blobs that survive erosion recover their original extent.
//
// Pixels outside the frame never influence the result. An all-zero mask is
// a valid output and means the color is absent.
func (s Segmenter) Segment(frame *imaging.HSVImage, r HueRange) *image.Gray {
	return Open(Threshold(frame, r), s.kernel())
}

func (s Segmenter) kernel() int {
	if s.KernelSize <= 0 {
		return DefaultKernelSize
	}
	return s.KernelSize
}

// Threshold builds the raw color mask without denoising.
func Threshold(frame *imaging.HSVImage, r HueRange) *image.Gray {
	mask := image.NewGray(frame.Bounds())
	boxes := r.Boxes()

	for y := 0; y < frame.Height; y++ {
		row := mask.Pix[y*mask.Stride : y*mask.Stride+frame.Width]
		for x := range row {
			c := frame.At(x, y)
			for _, b := range boxes {
				if b.Contains(c) {
					row[x] = 255
					break
				}
			}
		}
	}

	return mask
}

// Open applies erosion followed by dilation with a k×k square element.
//
// For an even k the anchor sits at k/2, so erosion looks at offsets
// [-k/2, k-1-k/2] and dilation at the mirrored offsets. A solid rectangle at
// least k pixels wide on each side is returned unchanged; anything thinner
// disappears.
func Open(mask *image.Gray, k int) *image.Gray {
	if k <= 1 {
		return mask
	}
	anchor := k / 2
	lo, hi := -anchor, k-1-anchor

	eroded := rankFilter(rankFilter(mask, lo, hi, true, true), lo, hi, false, true)
	return rankFilter(rankFilter(eroded, -hi, -lo, true, false), -hi, -lo, false, false)
}

// rankFilter runs a 1-D min (erode) or max (dilate) filter over the window
// [lo, hi] along rows (horizontal) or columns. Out-of-frame pixels are
// skipped.
func rankFilter(src *image.Gray, lo, hi int, horizontal, erode bool) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(b)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var out uint8
			if erode {
				out = 255
			}
			for d := lo; d <= hi; d++ {
				sx, sy := x, y
				if horizontal {
					sx += d
				} else {
					sy += d
				}
				if sx < 0 || sx >= w || sy < 0 || sy >= h {
					continue
				}
				v := src.Pix[sy*src.Stride+sx]
				if erode && v < out {
					out = v
				} else if !erode && v > out {
					out = v
				}
			}
			dst.Pix[y*dst.Stride+x] = out
		}
	}

	return dst
}
