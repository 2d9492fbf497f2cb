package marker

import (
	"image"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
)

// Candidate is a rotated rectangle fitted to one blob of a color mask.
//
// Geometry is measured on pixel squares: a blob covering pixels 175..224 on
// both axes has corners at 175 and 225, a 50×50 rectangle and center
// (200, 200).
type Candidate struct {
	// Center is the rectangle center in image coordinates.
	Center r2.Vec `json:"center"`

	// Width is the extent along the rectangle's first edge, Height the extent
	// along its normal.
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	// Angle is the direction of the width edge in degrees, within (-90, 90].
	Angle float64 `json:"angle"`

	// ContourArea is the area enclosed by the blob's external boundary,
	// holes included.
	ContourArea float64 `json:"contour_area"`

	// Order is the discovery index within the mask (raster order of the
	// blob's first pixel). Ties are broken in favour of lower Order.
	Order int `json:"order"`

	// Filled in by the selector.
	Squareness float64 `json:"squareness"`
	FillRatio  float64 `json:"fill_ratio"`
	Score      float64 `json:"score"`
}

// Area returns the rectangle area in square pixels.
func (c Candidate) Area() float64 {
	return c.Width * c.Height
}

// axes returns the unit vectors along the width and height edges.
func (c Candidate) axes() (r2.Vec, r2.Vec) {
	rad := c.Angle * math.Pi / 180
	e := r2.Vec{X: math.Cos(rad), Y: math.Sin(rad)}
	return e, r2.Vec{X: -e.Y, Y: e.X}
}

// Corners returns the rectangle vertices in drawing order.
func (c Candidate) Corners() []r2.Vec {
	e, n := c.axes()
	hw := r2.Scale(c.Width/2, e)
	hh := r2.Scale(c.Height/2, n)
	return []r2.Vec{
		r2.Sub(r2.Sub(c.Center, hw), hh),
		r2.Sub(r2.Add(c.Center, hw), hh),
		r2.Add(r2.Add(c.Center, hw), hh),
		r2.Add(r2.Sub(c.Center, hw), hh),
	}
}

// Contains reports whether p lies inside the rectangle.
func (c Candidate) Contains(p r2.Vec) bool {
	e, n := c.axes()
	d := r2.Sub(p, c.Center)
	return math.Abs(r2.Dot(d, e)) <= c.Width/2 && math.Abs(r2.Dot(d, n)) <= c.Height/2
}

// Extract finds the external blobs of a binary mask and fits a minimum-area
// rotated rectangle to each one.
//
// # Algorithm
//
//  1. Labeling: set pixels are grouped into 8-connected blobs with an
//     iterative flood fill, in raster order of their first pixel.
//  2. Nesting: the background reachable from the frame border is flood filled
//     with 4-connectivity. Blobs that neither touch the border nor this
//     outside background sit inside a hole of another blob and are skipped.
//  3. Area: the enclosed area of each blob is its bounding box minus the
//     background reachable around it, which counts holes as inside.
//  4. Rectangle: the convex hull of the blob's pixel-square corners is
//     scanned with rotating calipers; the smallest box aligned with a hull
//     edge wins.
//
// Degenerate rectangles (zero width or height) are dropped. The output order
// only depends on the mask contents.
func Extract(mask *image.Gray) []Candidate {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	set := func(x, y int) bool { return mask.Pix[y*mask.Stride+x] != 0 }
	labels := make([]int32, w*h)
	outside := outsideBackground(mask, w, h)

	var candidates []Candidate
	next := int32(1)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !set(x, y) || labels[y*w+x] != 0 {
				continue
			}
			blob := labelBlob(mask, labels, x, y, w, h, next)
			next++

			if !blob.external(outside, w, h) {
				continue
			}

			rect, ok := minAreaRect(convexHull(blob.corners()))
			if !ok {
				continue
			}
			rect.ContourArea = blob.enclosedArea(labels, w)
			rect.Order = len(candidates)
			candidates = append(candidates, rect)
		}
	}

	return candidates
}

// blob is one labeled component.
type blob struct {
	id                     int32
	minX, minY, maxX, maxY int
	// rowMin and rowMax are indexed by y-minY.
	rowMin, rowMax []int
	pixels         []image.Point
}

// labelBlob flood-fills the 8-connected component containing (sx, sy).
//
// Uses an explicit stack to avoid recursion depth problems on large blobs.
func labelBlob(mask *image.Gray, labels []int32, sx, sy, w, h int, id int32) *blob {
	bl := &blob{id: id, minX: sx, maxX: sx, minY: sy, maxY: sy}
	stack := []image.Point{{X: sx, Y: sy}}
	labels[sy*w+sx] = id

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		bl.pixels = append(bl.pixels, p)
		bl.minX, bl.maxX = min(bl.minX, p.X), max(bl.maxX, p.X)
		bl.minY, bl.maxY = min(bl.minY, p.Y), max(bl.maxY, p.Y)

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := p.X+dx, p.Y+dy
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				if labels[ny*w+nx] != 0 || mask.Pix[ny*mask.Stride+nx] == 0 {
					continue
				}
				labels[ny*w+nx] = id
				stack = append(stack, image.Point{X: nx, Y: ny})
			}
		}
	}

	rows := bl.maxY - bl.minY + 1
	bl.rowMin = make([]int, rows)
	bl.rowMax = make([]int, rows)
	for i := range bl.rowMin {
		bl.rowMin[i] = math.MaxInt
		bl.rowMax[i] = math.MinInt
	}
	for _, p := range bl.pixels {
		i := p.Y - bl.minY
		bl.rowMin[i] = min(bl.rowMin[i], p.X)
		bl.rowMax[i] = max(bl.rowMax[i], p.X)
	}

	return bl
}

// outsideBackground marks the background pixels 4-connected to the frame border.
func outsideBackground(mask *image.Gray, w, h int) []bool {
	outside := make([]bool, w*h)
	var stack []image.Point

	push := func(x, y int) {
		if x < 0 || x >= w || y < 0 || y >= h {
			return
		}
		if outside[y*w+x] || mask.Pix[y*mask.Stride+x] != 0 {
			return
		}
		outside[y*w+x] = true
		stack = append(stack, image.Point{X: x, Y: y})
	}

	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		push(p.X+1, p.Y)
		push(p.X-1, p.Y)
		push(p.X, p.Y+1)
		push(p.X, p.Y-1)
	}

	return outside
}

// external reports whether the blob is an outermost contour.
func (bl *blob) external(outside []bool, w, h int) bool {
	if bl.minX == 0 || bl.minY == 0 || bl.maxX == w-1 || bl.maxY == h-1 {
		return true
	}
	for _, p := range bl.pixels {
		if outside[p.Y*w+p.X+1] || outside[p.Y*w+p.X-1] ||
			outside[(p.Y+1)*w+p.X] || outside[(p.Y-1)*w+p.X] {
			return true
		}
	}
	return false
}

// enclosedArea counts the pixels inside the blob's external boundary.
//
// The bounding box is padded by one pixel and flooded from its corner without
// crossing the blob; whatever the flood cannot reach is enclosed.
func (bl *blob) enclosedArea(labels []int32, w int) float64 {
	pw := bl.maxX - bl.minX + 3
	ph := bl.maxY - bl.minY + 3
	reached := make([]bool, pw*ph)

	wall := func(x, y int) bool {
		fx, fy := x+bl.minX-1, y+bl.minY-1
		if x == 0 || y == 0 || x == pw-1 || y == ph-1 {
			return false
		}
		return labels[fy*w+fx] == bl.id
	}

	stack := []image.Point{{}}
	reached[0] = true
	count := 1
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range [4]image.Point{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}} {
			nx, ny := p.X+d.X, p.Y+d.Y
			if nx < 0 || nx >= pw || ny < 0 || ny >= ph {
				continue
			}
			if reached[ny*pw+nx] || wall(nx, ny) {
				continue
			}
			reached[ny*pw+nx] = true
			count++
			stack = append(stack, image.Point{X: nx, Y: ny})
		}
	}

	return float64(pw*ph - count)
}

// corners returns the outer corners of the leftmost and rightmost pixel
// square of every row. Their convex hull equals the hull of the whole blob.
func (bl *blob) corners() []r2.Vec {
	pts := make([]r2.Vec, 0, len(bl.rowMin)*4)
	for i := range bl.rowMin {
		y := float64(bl.minY + i)
		l := float64(bl.rowMin[i])
		r := float64(bl.rowMax[i] + 1)
		pts = append(pts,
			r2.Vec{X: l, Y: y}, r2.Vec{X: l, Y: y + 1},
			r2.Vec{X: r, Y: y}, r2.Vec{X: r, Y: y + 1},
		)
	}
	return pts
}

// convexHull returns the hull of pts using Andrew's monotone chain, starting
// from the lowest X then lowest Y point. Collinear points are dropped.
func convexHull(pts []r2.Vec) []r2.Vec {
	if len(pts) < 3 {
		return pts
	}
	sorted := make([]r2.Vec, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	turn := func(o, a, b r2.Vec) float64 {
		return r2.Cross(r2.Sub(a, o), r2.Sub(b, o))
	}

	hull := make([]r2.Vec, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	return hull[:len(hull)-1]
}

// minAreaRect finds the smallest rectangle enclosing a convex polygon. One
// side of the optimal rectangle is always collinear with a hull edge, so
// every edge direction is tried and the first strictly smallest box is kept.
func minAreaRect(hull []r2.Vec) (Candidate, bool) {
	if len(hull) < 3 {
		return Candidate{}, false
	}

	const eps = 1e-9
	best := Candidate{}
	bestArea := math.Inf(1)

	for i := range hull {
		edge := r2.Sub(hull[(i+1)%len(hull)], hull[i])
		if r2.Norm(edge) == 0 {
			continue
		}
		e := r2.Unit(edge)
		n := r2.Vec{X: -e.Y, Y: e.X}

		minE, maxE := math.Inf(1), math.Inf(-1)
		minN, maxN := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			pe, pn := r2.Dot(p, e), r2.Dot(p, n)
			minE, maxE = math.Min(minE, pe), math.Max(maxE, pe)
			minN, maxN = math.Min(minN, pn), math.Max(maxN, pn)
		}

		width, height := maxE-minE, maxN-minN
		if area := width * height; area < bestArea-eps {
			bestArea = area
			best = Candidate{
				Center: r2.Add(r2.Scale((minE+maxE)/2, e), r2.Scale((minN+maxN)/2, n)),
				Width:  width,
				Height: height,
				Angle:  normalizeAngle(math.Atan2(e.Y, e.X) * 180 / math.Pi),
			}
		}
	}

	if best.Width <= 0 || best.Height <= 0 {
		return Candidate{}, false
	}
	return best, true
}

// normalizeAngle folds a direction into (-90, 90]. A rectangle is symmetric
// under a half turn, so the width axis keeps its meaning.
func normalizeAngle(deg float64) float64 {
	for deg > 90 {
		deg -= 180
	}
	for deg <= -90 {
		deg += 180
	}
	return deg
}
