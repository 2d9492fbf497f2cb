// Package geo georeferences pixel positions of an orthomosaic.
//
// A Transform maps pixel coordinates to a projected (UTM) coordinate with a
// GDAL-style affine geotransform, then to WGS84 latitude and longitude.
// Every step is best effort: a missing transform, a missing zone or a
// conversion failure simply yields no position.
package geo

import (
	"fmt"

	"github.com/im7mortal/UTM"
	"gonum.org/v1/gonum/mat"
)

// DefaultZone is the UTM zone assumed when none is configured.
var DefaultZone = UTMZone{Number: 31, North: true}

// UTMZone identifies the projected reference system.
type UTMZone struct {
	Number int  `json:"number" yaml:"number"`
	North  bool `json:"north" yaml:"north"`
}

// Validate checks the zone number.
func (z UTMZone) Validate() error {
	if z.Number < 1 || z.Number > 60 {
		return fmt.Errorf("utm zone %d outside 1-60", z.Number)
	}
	return nil
}

// String implements fmt.Stringer.
func (z UTMZone) String() string {
	if z.North {
		return fmt.Sprintf("%dN", z.Number)
	}
	return fmt.Sprintf("%dS", z.Number)
}

// Transform is an affine pixel-to-projected mapping in GDAL order:
//
//	x = A·u + B·v + XOff
//	y = D·u + E·v + YOff
//
// (XOff, YOff) is the outer corner of the top-left pixel. Zone is nil when
// the projected system is unknown.
type Transform struct {
	XOff float64 `json:"x_off" yaml:"x_off"`
	A    float64 `json:"a" yaml:"a"`
	B    float64 `json:"b" yaml:"b"`
	YOff float64 `json:"y_off" yaml:"y_off"`
	D    float64 `json:"d" yaml:"d"`
	E    float64 `json:"e" yaml:"e"`

	Zone *UTMZone `json:"zone,omitempty" yaml:"zone,omitempty"`
}

// FromGeoTransform builds a Transform from the six GDAL coefficients
// (xoff, a, b, yoff, d, e).
func FromGeoTransform(gt [6]float64, zone *UTMZone) Transform {
	return Transform{XOff: gt[0], A: gt[1], B: gt[2], YOff: gt[3], D: gt[4], E: gt[5], Zone: zone}
}

// Apply maps a pixel position to projected coordinates.
func (t Transform) Apply(u, v float64) (x, y float64) {
	return t.A*u + t.B*v + t.XOff, t.D*u + t.E*v + t.YOff
}

// matrix returns the homogeneous 3×3 form of the transform.
func (t Transform) matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		t.A, t.B, t.XOff,
		t.D, t.E, t.YOff,
		0, 0, 1,
	})
}

// Invert maps projected coordinates back to pixels.
func (t Transform) Invert(x, y float64) (u, v float64, err error) {
	var inv mat.Dense
	if err := inv.Inverse(t.matrix()); err != nil {
		return 0, 0, fmt.Errorf("invert geotransform: %w", err)
	}
	var p mat.VecDense
	p.MulVec(&inv, mat.NewVecDense(3, []float64{x, y, 1}))
	return p.AtVec(0), p.AtVec(1), nil
}

// ToGeographic converts a pixel position to WGS84 latitude and longitude in
// degrees. ok is false when the transform has no zone or the UTM conversion
// fails.
func (t *Transform) ToGeographic(u, v float64) (lat, lon float64, ok bool) {
	if t == nil || t.Zone == nil {
		return 0, 0, false
	}
	if err := t.Zone.Validate(); err != nil {
		return 0, 0, false
	}
	x, y := t.Apply(u, v)
	lat, lon, err := UTM.ToLatLon(x, y, t.Zone.Number, "", t.Zone.North)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}
