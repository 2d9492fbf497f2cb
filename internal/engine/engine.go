package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"go.uber.org/zap"

	"github.com/ironsheep/marker-detector/internal/imaging"
	"github.com/ironsheep/marker-detector/internal/marker"
	"github.com/ironsheep/marker-detector/internal/report"
)

// OutlineWidth is the stroke width of marker outlines on annotated frames.
const OutlineWidth = 4

// FrameSource delivers frames to the loop. Next blocks until a frame is
// available and returns io.EOF when the source is exhausted.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
}

// FrameSink receives annotated frames.
type FrameSink interface {
	WriteFrame(img image.Image) error
}

// Options configures an Engine.
type Options struct {
	Settings Settings

	// Sink receives detection lines. Nil discards them.
	Sink report.LineSink

	// Output receives annotated frames from Run. Nil disables annotation.
	Output FrameSink

	// Backend overrides the detector backend.
	Backend marker.Backend

	Logger *zap.SugaredLogger
}

// Engine runs marker detection on frames and answers configuration
// commands. Process is called from one goroutine; HandleCommand may be
// called concurrently from another.
type Engine struct {
	store      *Store
	save       report.SaveRequest
	detector   *marker.Detector
	encoder    *report.Encoder
	controller *Controller
	output     FrameSink
	logger     *zap.SugaredLogger
}

// New validates the settings and creates an engine.
func New(opts Options) (*Engine, error) {
	if err := opts.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	detector := marker.NewDetector(logger.Named("marker"))
	if opts.Backend != nil {
		detector.Backend = opts.Backend
	}

	e := &Engine{
		store:    NewStore(opts.Settings),
		detector: detector,
		encoder:  report.NewEncoder(opts.Sink, logger.Named("report")),
		output:   opts.Output,
		logger:   logger,
	}
	e.controller = NewController(e.store, &e.save, logger.Named("command"))

	logger.Infow("engine ready",
		"backend", detector.Backend.Name(),
		"profiles", len(opts.Settings.Profiles),
		"camera", opts.Settings.Camera.String(),
	)
	return e, nil
}

// Settings returns the current settings snapshot.
func (e *Engine) Settings() *Settings {
	return e.store.Snapshot()
}

// HandleCommand executes one inbound command line and returns its reply.
func (e *Engine) HandleCommand(line string) string {
	return e.controller.Handle(line)
}

// HelpText lists the supported commands.
func (e *Engine) HelpText() string {
	return HelpText()
}

// Process runs detection for every profile on one frame and sends a
// detection line for each winner, in profile order.
//
// A pending save request is served first with the raw frame. A nil frame
// yields an empty result.
func (e *Engine) Process(frame image.Image) marker.DetectionResult {
	if frame == nil {
		e.logger.Warn("empty frame skipped")
		return nil
	}
	s := e.store.Snapshot()

	if path, ok := e.save.Take(); ok {
		if err := imaging.SaveFrame(path, frame); err != nil {
			e.logger.Errorw("failed to save frame", "path", path, "error", err)
		} else {
			e.logger.Infow("frame saved", "path", path)
		}
	}

	hsv := imaging.ToHSV(frame)
	result := e.detector.DetectAll(hsv, s.Profiles, s.Scale())

	if _, err := e.encoder.Report(result, s.Camera); err != nil {
		e.logger.Warnw("failed to send detections", "error", err)
	}
	return result
}

// Annotate returns a copy of frame with every winner outlined in green.
func (e *Engine) Annotate(frame image.Image, result marker.DetectionResult) image.Image {
	a := imaging.NewAnnotator(frame)
	for _, d := range result.Found() {
		a.Polygon(d.Candidate.Corners(), imaging.MarkColor, OutlineWidth)
	}
	return a.Image()
}

// Run processes frames from src until it is exhausted or ctx is cancelled.
// Frame errors are logged and the loop continues.
func (e *Engine) Run(ctx context.Context, src FrameSource) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warnw("frame acquisition failed", "error", err)
			continue
		}

		result := e.Process(frame)
		if e.output != nil {
			if err := e.output.WriteFrame(e.Annotate(frame, result)); err != nil {
				e.logger.Warnw("failed to write annotated frame", "error", err)
			}
		}
	}
}
