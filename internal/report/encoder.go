// Package report encodes detections as the text lines sent to the autopilot.
package report

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ironsheep/marker-detector/internal/camera"
	"github.com/ironsheep/marker-detector/internal/marker"
)

// MessageTag prefixes every detection line.
const MessageTag = "N2"

// LineSink receives outbound protocol lines without a trailing newline.
type LineSink interface {
	SendLine(line string) error
}

// SinkFunc adapts a function to LineSink.
type SinkFunc func(line string) error

// SendLine implements LineSink.
func (f SinkFunc) SendLine(line string) error { return f(line) }

// FormatDetection builds one detection line:
//
//	N2 <id> <x_mm> <y_mm> <w_px> <h_px>
//
// with every float printed to two decimals.
func FormatDetection(id int, x, y, w, h float64) string {
	return fmt.Sprintf("%s %d %.2f %.2f %.2f %.2f", MessageTag, id, x, y, w, h)
}

// Encoder projects winners through the camera model and writes them to a
// sink.
type Encoder struct {
	Sink   LineSink
	Logger *zap.SugaredLogger
}

// NewEncoder creates an encoder writing to sink.
func NewEncoder(sink LineSink, logger *zap.SugaredLogger) *Encoder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Encoder{Sink: sink, Logger: logger}
}

// Lines returns the detection lines for a result in profile order. Profiles
// without a winner, and winners the camera model cannot project, produce no
// line.
func (e *Encoder) Lines(result marker.DetectionResult, cam camera.Model) []string {
	var lines []string
	for _, d := range result {
		c := d.Candidate
		if c == nil {
			continue
		}
		x, y, ok := cam.Project(c.Center.X, c.Center.Y)
		if !ok {
			e.logger().Debugw("projection failed, not reporting",
				"color", d.Label, "u", c.Center.X, "v", c.Center.Y)
			continue
		}
		lines = append(lines, FormatDetection(d.ProfileID, x, y, c.Width, c.Height))
	}
	return lines
}

// Report sends one line per reportable winner as soon as it is encoded. A
// failing sink does not stop the remaining lines; all send errors are
// returned together. It returns the number of lines delivered.
func (e *Encoder) Report(result marker.DetectionResult, cam camera.Model) (int, error) {
	if e.Sink == nil {
		return 0, nil
	}
	var (
		sent int
		errs error
	)
	for _, line := range e.Lines(result, cam) {
		if err := e.Sink.SendLine(line); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("send %q: %w", line, err))
			continue
		}
		sent++
	}
	return sent, errs
}

func (e *Encoder) logger() *zap.SugaredLogger {
	if e.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return e.Logger
}
