package engine

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ironsheep/marker-detector/internal/imaging"
)

// frameExtensions are the file types picked up from a directory.
var frameExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true, ".bmp": true, ".gif": true,
}

// FileSource replays image files as frames.
type FileSource struct {
	paths []string
	next  int
	cache *imaging.ImageCache

	// Loop restarts from the first file instead of returning io.EOF.
	Loop bool

	// Interval is the minimum time between frames. Zero delivers frames as
	// fast as they are requested.
	Interval time.Duration

	last time.Time
}

// NewFileSource creates a source over paths. Decoded files are kept in
// cache so looping over a short sequence does not decode every frame.
func NewFileSource(paths []string, cache *imaging.ImageCache) *FileSource {
	if cache == nil {
		cache = imaging.NewImageCache()
	}
	return &FileSource{paths: append([]string(nil), paths...), cache: cache}
}

// NewDirSource creates a source over the image files of dir, sorted by name.
func NewDirSource(dir string, cache *imaging.ImageCache) (*FileSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no image files in %s", dir)
	}
	return NewFileSource(paths, cache), nil
}

// Len returns the number of files in the sequence.
func (s *FileSource) Len() int { return len(s.paths) }

// Next implements FrameSource. A file that fails to decode is reported as an
// error and skipped on the following call.
func (s *FileSource) Next(ctx context.Context) (image.Image, error) {
	if s.next >= len(s.paths) {
		if !s.Loop || len(s.paths) == 0 {
			return nil, io.EOF
		}
		s.next = 0
	}

	if s.Interval > 0 && !s.last.IsZero() {
		wait := time.Until(s.last.Add(s.Interval))
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
	}
	s.last = time.Now()

	path := s.paths[s.next]
	s.next++

	img, err := s.cache.Load(path)
	if err != nil {
		return nil, fmt.Errorf("frame %s: %w", path, err)
	}
	return img, nil
}

// DirSink writes frames to numbered PNG files in a directory.
type DirSink struct {
	Dir    string
	Prefix string
	count  int
}

// WriteFrame implements FrameSink.
func (d *DirSink) WriteFrame(img image.Image) error {
	prefix := d.Prefix
	if prefix == "" {
		prefix = "frame"
	}
	path := filepath.Join(d.Dir, fmt.Sprintf("%s_%05d.png", prefix, d.count))
	d.count++
	return imaging.SaveFrame(path, img)
}
