// Package link carries the line-oriented text protocol between the detector
// and the autopilot, over a serial port or standard input and output.
//
// Inbound lines are configuration commands, each answered with exactly one
// reply line. Outbound lines are detection reports written whenever a frame
// produces them; writes are serialized so a reply never interleaves with a
// report.
package link

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrWriteFailed is returned when a line is only partially written.
var ErrWriteFailed = errors.New("short write on link")

// Port is the minimal interface of a serial device.
type Port interface {
	io.ReadWriter
	io.Closer
}

// Handler answers one inbound line.
type Handler func(line string) string

// Link is a bidirectional line channel. It is safe to call SendLine from
// several goroutines while Serve is running.
type Link struct {
	r io.Reader
	w io.Writer

	writeMu sync.Mutex
	closers []io.Closer
	closed  bool
	logger  *zap.SugaredLogger
}

// New wraps an already-open port.
func New(port Port, logger *zap.SugaredLogger) *Link {
	return newLink(port, port, logger, port)
}

// OpenSerial opens a serial device with the given options.
func OpenSerial(path string, opts PortOptions, logger *zap.SugaredLogger) (*Link, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return New(port, logger), nil
}

// Stdio creates a link over a reader and writer, typically os.Stdin and
// os.Stdout. Either side is closed by Close if it implements io.Closer.
func Stdio(in io.Reader, out io.Writer, logger *zap.SugaredLogger) *Link {
	var closers []io.Closer
	if c, ok := in.(io.Closer); ok {
		closers = append(closers, c)
	}
	if c, ok := out.(io.Closer); ok {
		closers = append(closers, c)
	}
	return newLink(in, out, logger, closers...)
}

func newLink(r io.Reader, w io.Writer, logger *zap.SugaredLogger, closers ...io.Closer) *Link {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Link{r: r, w: w, closers: closers, logger: logger}
}

// SendLine writes one line, appending the newline.
func (l *Link) SendLine(line string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	n, err := io.WriteString(l.w, line)
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

// Serve reads lines until the input ends or ctx is cancelled, answering
// each non-empty line with h. It returns nil at end of input.
func (l *Link) Serve(ctx context.Context, h Handler) error {
	scan := bufio.NewScanner(l.r)
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scan.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			reply := h(line)
			l.logger.Debugw("command", "line", line, "reply", reply)
			if err := l.SendLine(reply); err != nil {
				return fmt.Errorf("failed to send reply: %w", err)
			}
		}
	}
}

// Close closes the underlying streams. Calling it more than once is a
// no-op.
func (l *Link) Close() error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	var err error
	for _, c := range l.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}
