package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ironsheep/marker-detector/internal/config"
	"github.com/ironsheep/marker-detector/internal/engine"
	"github.com/ironsheep/marker-detector/internal/imaging"
	"github.com/ironsheep/marker-detector/internal/led"
	"github.com/ironsheep/marker-detector/internal/link"
)

const (
	flagFrames   = "frames"
	flagSerial   = "serial"
	flagBaud     = "baud"
	flagOutput   = "output"
	flagLoop     = "loop"
	flagInterval = "interval"
	flagSaveDir  = "save-dir"
)

// frameFlags are shared by the commands that run a frame loop.
var frameFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     flagFrames,
		Aliases:  []string{"f"},
		Usage:    "directory of frames to process, in name order",
		Required: true,
	},
	&cli.StringFlag{
		Name:    flagSerial,
		Usage:   "serial device of the autopilot link; stdin/stdout when empty",
		EnvVars: []string{"MARKER_SERIAL"},
	},
	&cli.IntFlag{
		Name:  flagBaud,
		Usage: "serial baud rate (overrides the config file)",
	},
	&cli.BoolFlag{
		Name:  flagLoop,
		Usage: "restart from the first frame at the end of the directory",
	},
	&cli.DurationFlag{
		Name:  flagInterval,
		Usage: "minimum time between frames",
	},
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "detect markers in a frame sequence and exchange lines with the autopilot",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:    flagOutput,
			Aliases: []string{"o"},
			Usage:   "directory for annotated frames",
		},
		&cli.StringFlag{
			Name:  flagSaveDir,
			Usage: "directory for frames requested with the save command",
		},
	}, frameFlags...),
	Action: runAction,
}

var ledCommand = &cli.Command{
	Name:   "led",
	Usage:  "detect a bright square light and report its position",
	Flags:  frameFlags,
	Action: ledAction,
}

func runAction(c *cli.Context) error {
	logger, err := newLogger(c, "marker-detector")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}
	if dir := c.String(flagSaveDir); dir != "" {
		settings.SaveDir = dir
	}

	src, err := openFrames(c)
	if err != nil {
		return err
	}
	l, err := openLink(c, cfg, logger)
	if err != nil {
		return err
	}
	defer l.Close()

	opts := engine.Options{Settings: settings, Sink: l, Logger: logger}
	if out := c.String(flagOutput); out != "" {
		opts.Output = &engine.DirSink{Dir: out}
	}
	e, err := engine.New(opts)
	if err != nil {
		return err
	}

	logger.Infow("marker detector started",
		"version", Version,
		"frames", src.Len(),
		"profiles", len(settings.Profiles),
		"camera", settings.Camera.String(),
	)

	return serve(c.Context, l, func(line string) string {
		if line == "help" {
			return strings.TrimRight(e.HelpText(), "\n")
		}
		return e.HandleCommand(line)
	}, func(ctx context.Context) error {
		return e.Run(ctx, src)
	})
}

func ledAction(c *cli.Context) error {
	logger, err := newLogger(c, "led")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	src, err := openFrames(c)
	if err != nil {
		return err
	}
	l, err := openLink(c, cfg, logger)
	if err != nil {
		return err
	}
	defer l.Close()

	d := led.NewDetector(logger)
	return serve(c.Context, l, func(line string) string {
		if line == "help" {
			return strings.TrimRight(led.HelpText(), "\n")
		}
		return d.HandleCommand(line)
	}, func(ctx context.Context) error {
		return d.Run(ctx, src, l)
	})
}

func openFrames(c *cli.Context) (*engine.FileSource, error) {
	src, err := engine.NewDirSource(c.String(flagFrames), imaging.NewImageCache())
	if err != nil {
		return nil, err
	}
	src.Loop = c.Bool(flagLoop)
	src.Interval = c.Duration(flagInterval)
	return src, nil
}

func openLink(c *cli.Context, cfg *config.File, logger *zap.SugaredLogger) (*link.Link, error) {
	device := c.String(flagSerial)
	if device == "" && cfg != nil {
		device = cfg.Serial.Device
	}
	if device == "" {
		logger.Infow("using stdin/stdout for the autopilot link")
		return link.Stdio(os.Stdin, os.Stdout, logger.Named("link")), nil
	}

	opts, err := cfg.PortOptions()
	if err != nil {
		return nil, err
	}
	if baud := c.Int(flagBaud); baud > 0 {
		opts.BaudRate = baud
	}
	logger.Infow("opening serial link", "device", device, "baud", opts.BaudRate)
	return link.OpenSerial(device, opts, logger.Named("link"))
}

// serve answers commands on the link while loop processes frames. It
// returns when the loop ends or the process is interrupted. The end of the
// command input does not stop the frame loop.
func serve(parent context.Context, l *link.Link, h link.Handler, loop func(context.Context) error) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- l.Serve(ctx, h) }()

	runErr := loop(ctx)
	stop()

	err := multierr.Combine(ignoreCanceled(runErr), ignoreCanceled(<-serveErr))
	if err != nil {
		return fmt.Errorf("detector stopped: %w", err)
	}
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
