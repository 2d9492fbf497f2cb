// Package marker finds colored square markers in HSV frames.
//
// Each color class is described by a ColorProfile. Detection of one profile
// in one frame is a fixed pipeline:
//
//  1. Segmentation: threshold the frame against the profile's HueRange and
//     remove speckle with an 8×8 morphological opening
//  2. Extraction: fit a minimum-area rotated rectangle to every external
//     blob of the mask
//  3. Selection: filter candidates on size, squareness and fill ratio, then
//     keep the highest composite score
//
// # Hue Wraparound
//
// Hue is circular. A profile whose commanded hue minimum is greater than its
// maximum (red is 163..9) is stored as a SplitRange covering [0, max] and
// [min, 179]; every other profile is a SingleRange.
//
// # Scoring
//
// The composite score is fill × squareness × size score. Without a Scale the
// size score is the rectangle area, so the biggest marker wins. With a Scale
// the size score peaks where the rectangle matches the area the marker's
// real size should cover at the current distance.
//
// # Coordinate System
//
// Candidate geometry is measured on pixel squares with the origin at the
// top-left corner of the frame. A filled square covering pixels 175..224 is
// exactly 50 pixels wide and centred on 200.
//
// # Backends
//
// NativeBackend is pure Go. Building with -tags gocv swaps in OpenCVBackend
// for segmentation and extraction; scoring is shared.
package marker
