package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ironsheep/marker-detector/internal/camera"
	"github.com/ironsheep/marker-detector/internal/marker"
)

// DefaultSaveDir is where "save" requests write frames when no directory is
// configured.
const DefaultSaveDir = "/jevois/data/images"

// Settings is the runtime configuration read by every frame. A published
// Settings value is never modified; Store.Update works on a copy.
type Settings struct {
	// Profiles are detected and reported in this order.
	Profiles []marker.ColorProfile

	Camera camera.Model

	// AltitudeMM is the last altitude received from the autopilot. Zero
	// means unknown.
	AltitudeMM int

	SaveDir string
}

// DefaultSettings returns the onboard defaults.
func DefaultSettings() Settings {
	return Settings{
		Profiles: marker.DefaultProfiles(),
		Camera:   camera.Default(),
		SaveDir:  DefaultSaveDir,
	}
}

// Validate checks every profile and the camera model.
func (s Settings) Validate() error {
	if len(s.Profiles) == 0 {
		return errors.New("no color profiles configured")
	}
	seen := make(map[string]bool, len(s.Profiles))
	for _, p := range s.Profiles {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Label] {
			return fmt.Errorf("duplicate profile label %q", p.Label)
		}
		seen[p.Label] = true
	}
	if err := s.Camera.Validate(); err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	if s.AltitudeMM < 0 {
		return fmt.Errorf("negative altitude %d", s.AltitudeMM)
	}
	return nil
}

// ProfileIndex returns the position of the profile with the given label.
func (s Settings) ProfileIndex(label string) (int, bool) {
	for i, p := range s.Profiles {
		if p.Label == label {
			return i, true
		}
	}
	return -1, false
}

// Scale returns the expected-size factor for the current altitude.
func (s Settings) Scale() marker.Scale {
	return marker.ScaleFromAltitude(s.Camera.Fx, s.Camera.Fy, s.AltitudeMM)
}

// clone returns a deep copy that can be modified freely.
func (s Settings) clone() Settings {
	out := s
	out.Profiles = append([]marker.ColorProfile(nil), s.Profiles...)
	if s.Camera.Distortion != nil {
		d := *s.Camera.Distortion
		out.Camera.Distortion = &d
	}
	return out
}

// Store publishes Settings snapshots to the frame loop while commands update
// them from another goroutine.
//
// Readers call Snapshot once per frame and never block. Writers are
// serialized, copy the current value, modify the copy and swap it in, so a
// frame always sees either the old or the new settings as a whole.
type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[Settings]
}

// NewStore creates a store holding a copy of initial.
func NewStore(initial Settings) *Store {
	s := &Store{}
	c := initial.clone()
	s.cur.Store(&c)
	return s
}

// Snapshot returns the current settings. The caller must not modify the
// returned value.
func (s *Store) Snapshot() *Settings {
	return s.cur.Load()
}

// Update applies fn to a copy of the current settings and publishes the
// copy. When fn returns an error nothing is published.
func (s *Store) Update(fn func(*Settings) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur.Load().clone()
	if err := fn(&next); err != nil {
		return err
	}
	s.cur.Store(&next)
	return nil
}
