package marker

import (
	"image"
	"image/color"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/ironsheep/marker-detector/internal/imaging"
)

// createSceneImage creates a black RGB frame with solid squares.
func createSceneImage(width, height int, squares ...coloredSquare) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	for _, s := range squares {
		for y := s.y; y < s.y+s.side; y++ {
			for x := s.x; x < s.x+s.side; x++ {
				img.Set(x, y, s.c)
			}
		}
	}
	return img
}

type coloredSquare struct {
	x, y, side int
	c          color.Color
}

func newTestDetector(t *testing.T) *Detector {
	return &Detector{
		Backend:    NativeBackend{},
		KernelSize: DefaultKernelSize,
		Logger:     zaptest.NewLogger(t).Sugar(),
	}
}

func TestDetector_RedSquare(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	img := createSceneImage(400, 300, coloredSquare{x: 175, y: 125, side: 50, c: red})
	frame := imaging.ToHSV(img)

	result := newTestDetector(t).DetectAll(frame, DefaultProfiles(), NoScale())

	if len(result) != 4 {
		t.Fatalf("expected one entry per profile, got %d", len(result))
	}
	d, ok := result.Get(Red)
	if !ok || d.Candidate == nil {
		t.Fatal("red marker not found")
	}
	c := d.Candidate
	if !near(c.Center.X, 200, geomTol) || !near(c.Center.Y, 150, geomTol) {
		t.Errorf("center = %v, want (200,150)", c.Center)
	}
	if !near(c.Width, 50, geomTol) || !near(c.Height, 50, geomTol) {
		t.Errorf("size = %vx%v, want 50x50", c.Width, c.Height)
	}

	for _, other := range []int{Blue, Yellow, Orange} {
		if d, _ := result.Get(other); d.Candidate != nil {
			t.Errorf("profile %d should be absent", other)
		}
	}
	if found := result.Found(); len(found) != 1 || found[0].ProfileID != Red {
		t.Errorf("Found() = %+v", found)
	}
}

func TestDetector_NoiseIgnored(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	img := createSceneImage(100, 100,
		coloredSquare{x: 10, y: 10, side: 5, c: red},
		coloredSquare{x: 60, y: 60, side: 3, c: red},
	)

	best, evals := newTestDetector(t).Detect(imaging.ToHSV(img), DefaultProfiles()[0], NoScale())
	if best != nil {
		t.Errorf("specks should be removed by opening, got %+v", best)
	}
	if len(evals) != 0 {
		t.Errorf("expected no candidates, got %d", len(evals))
	}
}

func TestDetector_DetectExcluding(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	img := createSceneImage(300, 200,
		coloredSquare{x: 20, y: 20, side: 40, c: red},
		coloredSquare{x: 150, y: 100, side: 60, c: red},
	)
	frame := imaging.ToHSV(img)
	d := newTestDetector(t)
	p := DefaultProfiles()[0]

	first, _ := d.Detect(frame, p, NoScale())
	if first == nil || !near(first.Width, 60, geomTol) {
		t.Fatalf("expected the 60px square first, got %+v", first)
	}

	second, evals := d.DetectExcluding(frame, p, NoScale(), []Candidate{*first})
	if second == nil || !near(second.Width, 40, geomTol) {
		t.Fatalf("expected the 40px square second, got %+v", second)
	}
	if len(evals) != 1 {
		t.Errorf("excluded marker should not be a candidate, got %d", len(evals))
	}

	third, _ := d.DetectExcluding(frame, p, NoScale(), []Candidate{*first, *second})
	if third != nil {
		t.Errorf("expected nothing left, got %+v", third)
	}
}

func TestClearCandidate(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 50, 50))
	fillMask(mask, 0, 0, 50, 50, 255)

	c := Extract(func() *image.Gray {
		m := image.NewGray(mask.Bounds())
		fillMask(m, 10, 10, 20, 30, 255)
		return m
	}())[0]
	ClearCandidate(mask, c)

	if n := countSet(mask); n != 2500-200 {
		t.Errorf("expected 200 pixels cleared, got %d", 2500-n)
	}
	if mask.GrayAt(9, 10).Y != 255 || mask.GrayAt(10, 10).Y != 0 {
		t.Error("clearing should stop at the rectangle edge")
	}
}

func TestDetector_ZeroValueUsesDefaults(t *testing.T) {
	var d Detector
	if d.backend() == nil {
		t.Fatal("zero detector should fall back to the default backend")
	}
	frame := imaging.NewHSVImage(16, 16)
	if best, _ := d.Detect(frame, DefaultProfiles()[0], NoScale()); best != nil {
		t.Errorf("empty frame produced %+v", best)
	}
}

func TestNativeBackend(t *testing.T) {
	var b Backend = NativeBackend{}
	if b.Name() != "native" {
		t.Errorf("Name() = %q", b.Name())
	}

	frame := imaging.NewHSVImage(40, 40)
	fillHSV(frame, 5, 5, 25, 25, hsv(30, 220, 200))
	mask := b.Segment(frame, DefaultProfiles()[2].Range, 0)
	if countSet(mask) != 400 {
		t.Errorf("expected 400 set pixels, got %d", countSet(mask))
	}
	if n := len(b.Extract(mask)); n != 1 {
		t.Errorf("expected 1 candidate, got %d", n)
	}
}
