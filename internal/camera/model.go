// Package camera converts marker positions between image pixels and metric
// offsets in the camera frame.
package camera

import (
	"fmt"
	"math"
)

// Default intrinsics of the onboard camera.
const (
	DefaultFx = 770
	DefaultFy = 770
	DefaultCx = 320
	DefaultCy = 240
)

// Model holds the intrinsic parameters of the camera. A nil Distortion
// selects the pinhole path.
type Model struct {
	Fx float64 `json:"fx" yaml:"fx"`
	Fy float64 `json:"fy" yaml:"fy"`
	Cx float64 `json:"cx" yaml:"cx"`
	Cy float64 `json:"cy" yaml:"cy"`

	Distortion *Fisheye `json:"fisheye,omitempty" yaml:"fisheye,omitempty"`
}

// Default returns the onboard camera model without distortion.
func Default() Model {
	return Model{Fx: DefaultFx, Fy: DefaultFy, Cx: DefaultCx, Cy: DefaultCy}
}

// Validate checks that the focal lengths are usable.
func (m Model) Validate() error {
	for name, v := range map[string]float64{"fx": m.Fx, "fy": m.Fy, "cx": m.Cx, "cy": m.Cy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid %s %v", name, v)
		}
	}
	if m.Fx <= 0 || m.Fy <= 0 {
		return fmt.Errorf("focal lengths must be positive, got fx=%v fy=%v", m.Fx, m.Fy)
	}
	if d := m.Distortion; d != nil {
		for i, k := range [4]float64{d.K1, d.K2, d.K3, d.K4} {
			if math.IsNaN(k) || math.IsInf(k, 0) {
				return fmt.Errorf("invalid k%d %v", i+1, k)
			}
		}
	}
	return nil
}

// IsFisheye reports whether the fisheye path is used.
func (m Model) IsFisheye() bool { return m.Distortion != nil }

// Project maps a pixel to the metric offset reported to the autopilot:
// normalized image coordinates scaled by 1000.
//
// The pinhole result is 1000·(u-cx)/fx and 1000·(v-cy)/fy. It is not
// divided by altitude; the receiver does that.
//
// With fisheye distortion the normalized point is undistorted first. ok is
// false when the inversion fails, in which case x and y are meaningless.
func (m Model) Project(u, v float64) (x, y float64, ok bool) {
	xn := (u - m.Cx) / m.Fx
	yn := (v - m.Cy) / m.Fy

	if m.Distortion != nil {
		xn, yn, ok = m.Distortion.Undistort(xn, yn)
		if !ok {
			return 0, 0, false
		}
	}

	return 1000 * xn, 1000 * yn, true
}

// PixelOf is the inverse of Project.
func (m Model) PixelOf(x, y float64) (u, v float64) {
	xn, yn := x/1000, y/1000
	if m.Distortion != nil {
		xn, yn = m.Distortion.Distort(xn, yn)
	}
	return m.Cx + m.Fx*xn, m.Cy + m.Fy*yn
}

// String implements fmt.Stringer.
func (m Model) String() string {
	s := fmt.Sprintf("fx=%.2f fy=%.2f cx=%.2f cy=%.2f", m.Fx, m.Fy, m.Cx, m.Cy)
	if m.Distortion != nil {
		s += " " + m.Distortion.String()
	}
	return s
}
