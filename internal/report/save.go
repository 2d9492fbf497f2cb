package report

import "sync/atomic"

// SaveRequest holds at most one pending "save the next frame" request. The
// request is consumed by the first Take after Set; a second Set before that
// replaces the path.
type SaveRequest struct {
	path atomic.Pointer[string]
}

// Set arms the request.
func (r *SaveRequest) Set(path string) {
	r.path.Store(&path)
}

// Take returns the pending path and clears it. Exactly one caller observes
// each request.
func (r *SaveRequest) Take() (string, bool) {
	p := r.path.Swap(nil)
	if p == nil {
		return "", false
	}
	return *p, true
}

// Pending reports whether a request is armed.
func (r *SaveRequest) Pending() bool {
	return r.path.Load() != nil
}
