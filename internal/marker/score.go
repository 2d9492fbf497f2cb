package marker

import (
	"fmt"
	"math"
)

// Scale is the expected apparent-size factor for a frame: the number of
// square pixels one square millimetre of marker covers. An invalid Scale
// means the distance is unknown and the biggest candidate is preferred.
type Scale struct {
	factor float64
	valid  bool
}

// NoScale is the area-maximizing mode.
func NoScale() Scale { return Scale{} }

// ScaleOf wraps a known factor.
func ScaleOf(factor float64) Scale { return Scale{factor: factor, valid: true} }

// Factor returns the factor and whether it is known.
func (s Scale) Factor() (float64, bool) { return s.factor, s.valid }

// String implements fmt.Stringer.
func (s Scale) String() string {
	if !s.valid {
		return "none"
	}
	return fmt.Sprintf("%.4f", s.factor)
}

// MinReliableAltitudeMM is the altitude at or below which the expected
// marker size is not used for scoring.
const MinReliableAltitudeMM = 1000

// ScaleFromAltitude derives the expected-size factor from the focal lengths
// and the current altitude: a square of fixed real size covers fx·fy/alt²
// square pixels per square millimetre under a pinhole model.
func ScaleFromAltitude(fx, fy float64, altitudeMM int) Scale {
	if altitudeMM <= MinReliableAltitudeMM {
		return NoScale()
	}
	alt := float64(altitudeMM)
	return ScaleOf(fx * fy / (alt * alt))
}

// ScaleFromResolution derives the factor for an orthomosaic with a known
// ground resolution in pixels per metre.
func ScaleFromResolution(pixelsPerMetre float64) Scale {
	if pixelsPerMetre <= 0 {
		return NoScale()
	}
	pxPerMM := pixelsPerMetre / 1000
	return ScaleOf(pxPerMM * pxPerMM)
}

// Reason explains the outcome of evaluating one candidate.
type Reason int

const (
	// Accepted means the candidate passed every filter and was scored.
	Accepted Reason = iota
	// RejectedDegenerate means the rectangle has a zero side.
	RejectedDegenerate
	// RejectedSize means a side is outside the profile's pixel bounds.
	RejectedSize
	// RejectedAspect means the rectangle is not square enough.
	RejectedAspect
	// RejectedFill means the blob does not fill enough of its rectangle.
	RejectedFill
)

// String implements fmt.Stringer.
func (r Reason) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectedDegenerate:
		return "degenerate"
	case RejectedSize:
		return "size"
	case RejectedAspect:
		return "aspect"
	case RejectedFill:
		return "fill"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Evaluation records what the selector did with one candidate.
type Evaluation struct {
	Candidate Candidate
	Reason    Reason
	// Scored is true only when the composite score was computed.
	Scored bool
}

// SizeScore rates a rectangle area. With no scale the raw area is used, so
// the closest and biggest blob wins. With a scale the score peaks at the
// apparent area expected for the marker's real size.
func SizeScore(rectArea, referenceAreaMM2 float64, scale Scale) float64 {
	factor, ok := scale.Factor()
	if !ok {
		return rectArea
	}
	return 1 / math.Max(1, math.Abs(rectArea-referenceAreaMM2*factor))
}

// CompositeScore combines the three criteria. It is strictly increasing in
// each factor while the other two are held positive.
func CompositeScore(fillRatio, squareness, sizeScore float64) float64 {
	return fillRatio * squareness * sizeScore
}

// Evaluate runs the filters on one candidate, in order, and scores it when
// all pass:
//
//  1. size: min side >= PixelBounds.Min and max side <= PixelBounds.Max
//  2. aspect: min/max side >= AspectRatioTh
//  3. fill: ContourArea / rectangle area >= FillRatioTh
//
// The first failing filter decides the reason and no score is computed.
func Evaluate(c Candidate, p ColorProfile, scale Scale) Evaluation {
	minWH := math.Min(c.Width, c.Height)
	maxWH := math.Max(c.Width, c.Height)
	if minWH <= 0 {
		return Evaluation{Candidate: c, Reason: RejectedDegenerate}
	}
	if minWH < p.PixelBounds.Min || maxWH > p.PixelBounds.Max {
		return Evaluation{Candidate: c, Reason: RejectedSize}
	}

	c.Squareness = minWH / maxWH
	if c.Squareness < p.AspectRatioTh {
		return Evaluation{Candidate: c, Reason: RejectedAspect}
	}

	area := c.Area()
	c.FillRatio = c.ContourArea / area
	if c.FillRatio < p.FillRatioTh {
		return Evaluation{Candidate: c, Reason: RejectedFill}
	}

	c.Score = CompositeScore(c.FillRatio, c.Squareness, SizeScore(area, p.ReferenceAreaMM2(), scale))
	return Evaluation{Candidate: c, Reason: Accepted, Scored: true}
}

// Select returns the accepted candidate with the strictly greatest composite
// score, or nil when nothing survives the filters. Candidates are visited in
// slice order, so on equal scores the earlier candidate wins.
//
// The returned evaluations cover every input candidate in the same order.
func Select(candidates []Candidate, p ColorProfile, scale Scale) (*Candidate, []Evaluation) {
	evals := make([]Evaluation, 0, len(candidates))
	var best *Candidate

	for _, c := range candidates {
		ev := Evaluate(c, p, scale)
		evals = append(evals, ev)
		if !ev.Scored {
			continue
		}
		if best == nil || ev.Candidate.Score > best.Score {
			winner := ev.Candidate
			best = &winner
		}
	}

	return best, evals
}
