// Package imaging provides the frame-level image operations used around the
// marker detector.
//
// This package converts frames to the 8-bit HSV representation the segmenter
// works on, loads and saves frames, samples colors for threshold tuning, and
// draws detection overlays. All coordinates use (0,0) at the top-left corner,
// X increasing rightward and Y increasing downward.
//
// # HSV Convention
//
// HSV frames follow the 8-bit convention used by the onboard thresholds:
//   - H: 0-179 (degrees / 2). The domain is circular; 179 is adjacent to 0.
//   - S: 0-255
//   - V: 0-255
//
// Conversion is done with go-colorful and rounded to the nearest integer.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. HSVImage and Annotator are
// not; each frame is processed by a single goroutine.
//
// # Error Handling
//
// Functions return errors for invalid inputs such as:
//   - Coordinates or regions outside image bounds
//   - File I/O errors during image loading or saving
//   - Unsupported image formats
package imaging
