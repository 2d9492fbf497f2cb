package link

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"go.bug.st/serial"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"
)

func echoUpper(line string) string { return strings.ToUpper(line) }

func TestServe_RepliesPerLine(t *testing.T) {
	in := strings.NewReader("alt 100\n\n  save x  \r\nhsv_red 1 2 3 4 5 6\n")
	var out bytes.Buffer
	l := Stdio(in, &out, zaptest.NewLogger(t).Sugar())

	if err := l.Serve(context.Background(), echoUpper); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	want := "ALT 100\nSAVE X\nHSV_RED 1 2 3 4 5 6\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestSendLine_AppendsNewline(t *testing.T) {
	var out bytes.Buffer
	l := Stdio(strings.NewReader(""), &out, nil)

	if err := l.SendLine("N2 1 0.00 0.00 50.00 50.00"); err != nil {
		t.Fatal(err)
	}
	if err := l.SendLine("OK\n"); err != nil {
		t.Fatal(err)
	}
	if want := "N2 1 0.00 0.00 50.00 50.00\nOK\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) { return len(p) / 2, nil }

func TestSendLine_ShortWrite(t *testing.T) {
	l := Stdio(strings.NewReader(""), shortWriter{}, nil)
	if err := l.SendLine("OK"); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("error = %v, want ErrWriteFailed", err)
	}
}

func TestServe_OverPort(t *testing.T) {
	device, remote := net.Pipe()
	l := New(device, zaptest.NewLogger(t).Sugar())
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx, echoUpper) }()

	r := bufio.NewReader(remote)
	_ = remote.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := io.WriteString(remote, "calib 1 2 3 4\n"); err != nil {
		t.Fatal(err)
	}
	reply, err := r.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if reply != "CALIB 1 2 3 4\n" {
		t.Errorf("reply = %q", reply)
	}

	// Reports can be sent while Serve is running.
	go func() { _ = l.SendLine("N2 2 1.00 2.00 3.00 4.00") }()
	report, err := r.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if report != "N2 2 1.00 2.00 3.00 4.00\n" {
		t.Errorf("report = %q", report)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}

type failingCloser struct {
	io.Reader
	err error
}

func (f failingCloser) Close() error { return f.err }

type failingWriteCloser struct {
	bytes.Buffer
	err error
}

func (f *failingWriteCloser) Close() error { return f.err }

func TestClose_CombinesErrors(t *testing.T) {
	errIn := errors.New("in")
	errOut := errors.New("out")
	l := Stdio(failingCloser{Reader: strings.NewReader(""), err: errIn}, &failingWriteCloser{err: errOut}, nil)

	err := l.Close()
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", got, err)
	}
	if !errors.Is(err, errIn) || !errors.Is(err, errOut) {
		t.Errorf("combined error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestPortOptions_Normalize(t *testing.T) {
	got, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.BaudRate != DefaultBaudRate || got.DataBits != 8 || got.StopBits != 1 || got.Parity != "N" {
		t.Errorf("defaults = %+v", got)
	}

	got, err = PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.Parity != "E" || got.BaudRate != 9600 {
		t.Errorf("explicit = %+v", got)
	}

	for _, bad := range []PortOptions{
		{DataBits: 9},
		{StopBits: 3},
		{Parity: "mark"},
	} {
		if _, err := bad.Normalize(); err == nil {
			t.Errorf("%+v: expected error", bad)
		}
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{StopBits: 2, Parity: "O"}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode: %v", err)
	}
	if mode.BaudRate != DefaultBaudRate || mode.StopBits != serial.TwoStopBits || mode.Parity != serial.OddParity {
		t.Errorf("mode = %+v", mode)
	}

	mode, err = PortOptions{}.SerialMode()
	if err != nil {
		t.Fatal(err)
	}
	if mode.StopBits != serial.OneStopBit || mode.Parity != serial.NoParity {
		t.Errorf("default mode = %+v", mode)
	}

	if _, err := (PortOptions{Parity: "x"}).SerialMode(); err == nil {
		t.Error("expected error for bad parity")
	}
}

func TestOpenSerial_MissingDevice(t *testing.T) {
	if _, err := OpenSerial("/dev/does-not-exist-marker", PortOptions{}, nil); err == nil {
		t.Error("expected error opening a missing device")
	}
}
