package led

import (
	"context"
	"errors"
	"io"

	"github.com/ironsheep/marker-detector/internal/engine"
	"github.com/ironsheep/marker-detector/internal/report"
)

// Run processes frames from src until it is exhausted or ctx is cancelled,
// sending one POS line per detected light. Frame and send errors are logged
// and the loop continues.
func (d *Detector) Run(ctx context.Context, src engine.FrameSource, sink report.LineSink) error {
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
			d.logger.Warnw("frame acquisition failed", "error", err)
			continue
		}

		for _, p := range d.Process(frame) {
			if sink == nil {
				continue
			}
			if err := sink.SendLine(p.String()); err != nil {
				d.logger.Warnw("failed to send position", "error", err)
			}
		}
	}
}
