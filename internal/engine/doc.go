// Package engine ties frame processing, reporting and runtime configuration
// together.
//
// An Engine owns a settings Store, a marker Detector and a report Encoder.
// Frames are processed synchronously by Process (or by Run, which pulls them
// from a FrameSource). Text commands from the autopilot are handled by
// HandleCommand and may arrive concurrently on another goroutine.
//
// # Commands
//
//	alt <mm>                                 set altitude, reply OK
//	save <name>                              save next frame, reply the path
//	hsv_<color> h s v h s v                  set thresholds, reply OK
//	calib fx fy cx cy                        pinhole camera, reply OK
//	calib_fisheye fx fy cx cy k1 k2 k3 k4    fisheye camera, reply OK
//
// Anything else, or any invalid value, replies ERR and changes nothing.
//
// # Consistency
//
// Each frame reads one Settings snapshot at its start, so a command applied
// mid-frame takes effect on the next frame and never half-way through one.
package engine
