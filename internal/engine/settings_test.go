package engine

import (
	"errors"
	"sync"
	"testing"

	"github.com/ironsheep/marker-detector/internal/camera"
)

func TestDefaultSettings_Valid(t *testing.T) {
	s := DefaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("default settings invalid: %v", err)
	}
	if _, ok := s.Scale().Factor(); ok {
		t.Error("unknown altitude should give no scale")
	}
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{"no profiles", func(s *Settings) { s.Profiles = nil }},
		{"duplicate label", func(s *Settings) { s.Profiles[1].Label = s.Profiles[0].Label }},
		{"bad camera", func(s *Settings) { s.Camera.Fx = 0 }},
		{"negative altitude", func(s *Settings) { s.AltitudeMM = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			if err := s.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestStore_CopyOnWrite(t *testing.T) {
	initial := DefaultSettings()
	store := NewStore(initial)

	before := store.Snapshot()
	err := store.Update(func(s *Settings) error {
		s.AltitudeMM = 2500
		s.Profiles[0].Label = "crimson"
		s.Camera.Distortion = &camera.Fisheye{K1: 0.1}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if before.AltitudeMM != 0 || before.Profiles[0].Label != "red" || before.Camera.Distortion != nil {
		t.Error("earlier snapshot was modified")
	}
	if initial.Profiles[0].Label != "red" {
		t.Error("initial settings were modified")
	}
	after := store.Snapshot()
	if after.AltitudeMM != 2500 || after.Profiles[0].Label != "crimson" {
		t.Errorf("update not published: %+v", after)
	}
}

func TestStore_UpdateErrorPublishesNothing(t *testing.T) {
	store := NewStore(DefaultSettings())
	before := store.Snapshot()

	err := store.Update(func(s *Settings) error {
		s.AltitudeMM = 99
		return errors.New("nope")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if store.Snapshot() != before {
		t.Error("snapshot replaced despite error")
	}
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	store := NewStore(DefaultSettings())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Update(func(s *Settings) error {
				s.AltitudeMM++
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			s := store.Snapshot()
			if len(s.Profiles) != 4 {
				t.Errorf("snapshot has %d profiles", len(s.Profiles))
			}
		}()
	}
	wg.Wait()

	if got := store.Snapshot().AltitudeMM; got != 50 {
		t.Errorf("altitude = %d, want 50", got)
	}
}
