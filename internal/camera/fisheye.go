package camera

import (
	"fmt"
	"math"
)

// Fisheye holds the coefficients of the equidistant fisheye model
// (Kannala-Brandt):
//
//	θd = θ (1 + k1 θ² + k2 θ⁴ + k3 θ⁶ + k4 θ⁸)
//
// where θ is the angle between the ray and the optical axis and θd the
// radius of the distorted normalized point.
type Fisheye struct {
	K1 float64 `json:"k1" yaml:"k1"`
	K2 float64 `json:"k2" yaml:"k2"`
	K3 float64 `json:"k3" yaml:"k3"`
	K4 float64 `json:"k4" yaml:"k4"`
}

const (
	undistortIterations = 10
	undistortEpsilon    = 1e-8
)

func (f *Fisheye) theta(t float64) float64 {
	t2 := t * t
	t4 := t2 * t2
	t6 := t4 * t2
	t8 := t4 * t4
	return t * (1 + f.K1*t2 + f.K2*t4 + f.K3*t6 + f.K4*t8)
}

func (f *Fisheye) thetaDerivative(t float64) float64 {
	t2 := t * t
	t4 := t2 * t2
	t6 := t4 * t2
	t8 := t4 * t4
	return 1 + 3*f.K1*t2 + 5*f.K2*t4 + 7*f.K3*t6 + 9*f.K4*t8
}

// Undistort maps a distorted normalized point to the undistorted pinhole
// plane. θ is found with Newton-Raphson starting from θd.
//
// ok is false when the iteration does not converge, when the solution flips
// sign relative to θd, or when θ reaches 90° where the pinhole plane is
// undefined.
func (f *Fisheye) Undistort(xd, yd float64) (x, y float64, ok bool) {
	thetaD := math.Hypot(xd, yd)
	if thetaD < undistortEpsilon {
		return xd, yd, true
	}

	theta := thetaD
	converged := false
	for i := 0; i < undistortIterations; i++ {
		d := f.thetaDerivative(theta)
		if d == 0 {
			break
		}
		step := (f.theta(theta) - thetaD) / d
		theta -= step
		if math.Abs(step) < undistortEpsilon {
			converged = true
			break
		}
	}

	if !converged || math.IsNaN(theta) || theta < 0 || theta >= math.Pi/2 {
		return 0, 0, false
	}

	scale := math.Tan(theta) / thetaD
	return xd * scale, yd * scale, true
}

// Distort maps an undistorted normalized point onto the fisheye image plane.
func (f *Fisheye) Distort(x, y float64) (xd, yd float64) {
	r := math.Hypot(x, y)
	if r < undistortEpsilon {
		return x, y
	}
	scale := f.theta(math.Atan(r)) / r
	return x * scale, y * scale
}

// String implements fmt.Stringer.
func (f *Fisheye) String() string {
	return fmt.Sprintf("k1=%g k2=%g k3=%g k4=%g", f.K1, f.K2, f.K3, f.K4)
}
