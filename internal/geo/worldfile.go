package geo

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoWorldFile is returned when no sidecar world file exists for an image.
var ErrNoWorldFile = errors.New("no world file")

// sidecarExtensions maps image extensions to their conventional world file
// extensions. ".wld" is always tried last.
var sidecarExtensions = map[string][]string{
	".tif":  {".tfw", ".tifw", ".tgw"},
	".tiff": {".tfw", ".tiffw"},
	".png":  {".pgw", ".pngw"},
	".jpg":  {".jgw", ".jpgw"},
	".jpeg": {".jgw", ".jpegw"},
}

// WorldFilePath returns the first existing world file next to imagePath.
func WorldFilePath(imagePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(imagePath))
	base := strings.TrimSuffix(imagePath, filepath.Ext(imagePath))

	candidates := append(append([]string{}, sidecarExtensions[ext]...), ".wld")
	for _, c := range candidates {
		p := base + c
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s: %w", imagePath, ErrNoWorldFile)
}

// LoadWorldFile reads the world file beside imagePath.
func LoadWorldFile(imagePath string, zone *UTMZone) (Transform, error) {
	p, err := WorldFilePath(imagePath)
	if err != nil {
		return Transform{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		return Transform{}, fmt.Errorf("failed to open world file: %w", err)
	}
	defer f.Close()

	t, err := ParseWorldFile(f, zone)
	if err != nil {
		return Transform{}, fmt.Errorf("%s: %w", p, err)
	}
	return t, nil
}

// ParseWorldFile reads the six lines of an ESRI world file:
//
//	A  pixel size in x
//	D  rotation about y
//	B  rotation about x
//	E  pixel size in y (negative for north-up)
//	C  x of the centre of the top-left pixel
//	F  y of the centre of the top-left pixel
//
// World files reference the pixel centre, so the offsets are shifted by half
// a pixel to the corner convention used by Transform.
func ParseWorldFile(r io.Reader, zone *UTMZone) (Transform, error) {
	var vals []float64
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return Transform{}, fmt.Errorf("line %d: %w", len(vals)+1, err)
		}
		vals = append(vals, v)
	}
	if err := sc.Err(); err != nil {
		return Transform{}, err
	}
	if len(vals) != 6 {
		return Transform{}, fmt.Errorf("expected 6 values, got %d", len(vals))
	}

	a, d, b, e, c, f := vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]
	return Transform{
		XOff: c - a/2 - b/2,
		A:    a,
		B:    b,
		YOff: f - d/2 - e/2,
		D:    d,
		E:    e,
		Zone: zone,
	}, nil
}
