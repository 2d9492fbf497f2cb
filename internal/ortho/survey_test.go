package ortho

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/ironsheep/marker-detector/internal/geo"
	"github.com/ironsheep/marker-detector/internal/imaging"
	"github.com/ironsheep/marker-detector/internal/marker"
)

var (
	red = color.RGBA{R: 255, A: 255}
	// 8-bit HSV (150, 69, 255), inside the orange window.
	orange = color.RGBA{R: 255, G: 186, B: 255, A: 255}
)

type square struct {
	x, y, side int
	c          color.Color
}

// createSurveyImage creates a black mosaic with solid squares.
func createSurveyImage(width, height int, squares ...square) *image.RGBA {
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

func newTestSurvey(t *testing.T, mutate func(*Options)) *Survey {
	t.Helper()
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	s, err := New(opts, marker.NativeBackend{}, zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func labels(placements []Placement) []string {
	out := make([]string, 0, len(placements))
	for _, p := range placements {
		out = append(out, p.Label)
	}
	return out
}

func TestSurvey_RepeatedOrange(t *testing.T) {
	img := createSurveyImage(400, 300,
		square{x: 20, y: 20, side: 12, c: orange},
		square{x: 200, y: 20, side: 12, c: orange},
		square{x: 20, y: 200, side: 12, c: orange},
		square{x: 200, y: 200, side: 12, c: orange},
		square{x: 100, y: 100, side: 15, c: red},
	)

	placements := newTestSurvey(t, nil).Detect(img, nil)

	want := []string{"RED", "ORANGE_1", "ORANGE_2", "ORANGE_3"}
	if diff := cmp.Diff(want, labels(placements)); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}

	// Equal orange scores resolve in raster order.
	wantCenters := [][2]float64{{107.5, 107.5}, {26, 26}, {206, 26}, {26, 206}}
	for i, p := range placements {
		c := p.Candidate.Center
		if math.Abs(c.X-wantCenters[i][0]) > 0.5 || math.Abs(c.Y-wantCenters[i][1]) > 0.5 {
			t.Errorf("%s center = %v, want %v", p.Label, c, wantCenters[i])
		}
		if p.HasGeo || p.GeoText() != "" {
			t.Errorf("%s: unexpected geo without a transform", p.Label)
		}
	}
}

func TestSurvey_RepeatStopsWhenExhausted(t *testing.T) {
	img := createSurveyImage(200, 200, square{x: 50, y: 50, side: 15, c: red})

	s := newTestSurvey(t, func(o *Options) {
		o.Repeats = map[int]int{marker.Red: 3}
	})
	placements := s.Detect(img, nil)

	if diff := cmp.Diff([]string{"RED_1"}, labels(placements)); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestSurvey_ZeroRepeatsSkipsProfile(t *testing.T) {
	img := createSurveyImage(200, 200, square{x: 50, y: 50, side: 15, c: red})

	s := newTestSurvey(t, func(o *Options) {
		o.Repeats = map[int]int{marker.Red: 0}
	})
	if placements := s.Detect(img, nil); len(placements) != 0 {
		t.Errorf("expected no placements, got %v", labels(placements))
	}
}

// zone31Transform maps pixels at 20 px/m near the zone 31 central meridian.
func zone31Transform() *geo.Transform {
	zone := geo.DefaultZone
	t := geo.FromGeoTransform([6]float64{500000, 0.05, 0, 5000000, 0, -0.05}, &zone)
	return &t
}

func TestSurvey_GeoLabels(t *testing.T) {
	img := createSurveyImage(200, 200, square{x: 50, y: 50, side: 15, c: red})

	placements := newTestSurvey(t, nil).Detect(img, zone31Transform())
	if len(placements) != 1 {
		t.Fatalf("expected 1 placement, got %d", len(placements))
	}
	p := placements[0]
	if !p.HasGeo {
		t.Fatal("expected a geographic position")
	}
	if math.Abs(p.Lon-3) > 0.001 || p.Lat < 44 || p.Lat > 46 {
		t.Errorf("position = %v, %v", p.Lat, p.Lon)
	}
	if !regexp.MustCompile(`^\d+\.\d{7} \d+\.\d{7}$`).MatchString(p.GeoText()) {
		t.Errorf("geo text = %q", p.GeoText())
	}
}

func TestSurvey_Annotate(t *testing.T) {
	img := createSurveyImage(300, 200, square{x: 100, y: 80, side: 15, c: red})
	s := newTestSurvey(t, func(o *Options) { o.Downscale = 1 })

	placements := s.Detect(img, nil)
	if len(placements) != 1 {
		t.Fatalf("expected 1 placement, got %d", len(placements))
	}
	out := s.Annotate(img, placements)
	if out.Bounds().Dx() != 300 || out.Bounds().Dy() != 200 {
		t.Fatalf("bounds = %v", out.Bounds())
	}

	cx := int(placements[0].Candidate.Center.X)
	cy := int(placements[0].Candidate.Center.Y)
	r, g, b, _ := out.At(cx-CircleRadius, cy).RGBA()
	if g>>8 < 200 || r>>8 > 50 || b>>8 > 50 {
		t.Errorf("circle pixel = (%d,%d,%d), want green", r>>8, g>>8, b>>8)
	}

	down := newTestSurvey(t, nil).Annotate(img, placements)
	if down.Bounds().Dx() != 300/DefaultDownscale || down.Bounds().Dy() != 200/DefaultDownscale {
		t.Errorf("downscaled bounds = %v", down.Bounds())
	}
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestSurvey_ProcessFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "mosaic.png")
	writePNG(t, in, createSurveyImage(400, 300, square{x: 100, y: 100, side: 15, c: red}))
	world := "0.05\n0\n0\n-0.05\n500000.025\n4999999.975\n"
	if err := os.WriteFile(filepath.Join(dir, "mosaic.pgw"), []byte(world), 0o644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "out", "detect.png")
	placements, err := newTestSurvey(t, nil).ProcessFile(in, out)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if len(placements) != 1 || !placements[0].HasGeo {
		t.Fatalf("placements = %+v", placements)
	}

	written, err := imaging.Open(out)
	if err != nil {
		t.Fatalf("annotated output unreadable: %v", err)
	}
	if written.Bounds().Dx() != 100 || written.Bounds().Dy() != 75 {
		t.Errorf("output bounds = %v", written.Bounds())
	}
}

func TestSurvey_ProcessFileWithoutWorldFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "plain.png")
	writePNG(t, in, createSurveyImage(200, 200, square{x: 50, y: 50, side: 15, c: red}))

	placements, err := newTestSurvey(t, nil).ProcessFile(in, "")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if len(placements) != 1 || placements[0].HasGeo {
		t.Errorf("placements = %+v", placements)
	}
}

func TestSurvey_ProcessFileMissingImage(t *testing.T) {
	if _, err := newTestSurvey(t, nil).ProcessFile(filepath.Join(t.TempDir(), "none.png"), ""); err == nil {
		t.Error("expected error for a missing image")
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"no profiles", func(o *Options) { o.Profiles = nil }},
		{"zero resolution", func(o *Options) { o.PixelsPerMetre = 0 }},
		{"negative repeat", func(o *Options) { o.Repeats = map[int]int{marker.Red: -1} }},
		{"bad zone", func(o *Options) { o.Zone = geo.UTMZone{Number: 61} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			if _, err := New(opts, nil, nil); err == nil {
				t.Error("expected error")
			}
		})
	}

	if err := DefaultOptions().Validate(); err != nil {
		t.Errorf("default options invalid: %v", err)
	}
}
