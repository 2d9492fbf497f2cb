package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ironsheep/marker-detector/internal/camera"
	"github.com/ironsheep/marker-detector/internal/imaging"
	"github.com/ironsheep/marker-detector/internal/report"
)

// Replies sent back on the command link.
const (
	ReplyOK  = "OK"
	ReplyErr = "ERR"
)

// ErrBadCommand wraps every rejected command.
var ErrBadCommand = errors.New("bad command")

// hsvPrefix starts the per-color threshold commands, e.g. hsv_red.
const hsvPrefix = "hsv_"

// command describes one entry of the command grammar.
type command struct {
	name  string
	usage string
	help  string
	arity int
	run   func(c *Controller, args []string) (string, error)
}

// commands is the grammar, in help order. hsv_<color> is matched by prefix.
var commands = []command{
	{"alt", "alt <mm>", "set altitude above ground in mm", 2, (*Controller).setAltitude},
	{"save", "save <name>", "save the next frame as <name>.png", 2, (*Controller).requestSave},
	{hsvPrefix, "hsv_<color> <h> <s> <v> <h> <s> <v>", "set the HSV min and max thresholds of a color", 7, (*Controller).setThresholds},
	{"calib", "calib <fx> <fy> <cx> <cy>", "set pinhole intrinsics, clears fisheye distortion", 5, (*Controller).setPinhole},
	{"calib_fisheye", "calib_fisheye <fx> <fy> <cx> <cy> <k1> <k2> <k3> <k4>", "set fisheye intrinsics", 9, (*Controller).setFisheye},
}

// Controller parses inbound text commands and applies them to the settings
// store. Every command is validated completely before anything changes.
type Controller struct {
	store  *Store
	save   *report.SaveRequest
	logger *zap.SugaredLogger
}

// NewController creates a controller over store. Accepted save commands arm
// save.
func NewController(store *Store, save *report.SaveRequest, logger *zap.SugaredLogger) *Controller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Controller{store: store, save: save, logger: logger}
}

// Handle executes one command line and returns the reply: OK, the resolved
// path for save, or ERR.
func (c *Controller) Handle(line string) string {
	reply, err := c.Execute(line)
	if err != nil {
		c.logger.Debugw("command rejected", "command", line, "error", err)
		return ReplyErr
	}
	c.logger.Debugw("command accepted", "command", line, "reply", reply)
	return reply
}

// Execute is Handle with the rejection reason. Errors wrap ErrBadCommand.
func (c *Controller) Execute(line string) (string, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return "", fmt.Errorf("%w: empty line", ErrBadCommand)
	}

	for _, cmd := range commands {
		if cmd.name == hsvPrefix {
			if !strings.HasPrefix(args[0], hsvPrefix) {
				continue
			}
		} else if args[0] != cmd.name {
			continue
		}
		if len(args) != cmd.arity {
			return "", fmt.Errorf("%w: %s expects %d tokens, got %d", ErrBadCommand, args[0], cmd.arity, len(args))
		}
		return cmd.run(c, args)
	}

	return "", fmt.Errorf("%w: unknown command %q", ErrBadCommand, args[0])
}

// HelpText lists the supported commands, one per line.
func HelpText() string {
	var b strings.Builder
	for _, cmd := range commands {
		fmt.Fprintf(&b, "%s - %s\n", cmd.usage, cmd.help)
	}
	return b.String()
}

func (c *Controller) setAltitude(args []string) (string, error) {
	alt, err := strconv.ParseUint(args[1], 10, 31)
	if err != nil {
		return "", fmt.Errorf("%w: altitude: %v", ErrBadCommand, err)
	}
	err = c.store.Update(func(s *Settings) error {
		s.AltitudeMM = int(alt)
		return nil
	})
	return ReplyOK, err
}

func (c *Controller) requestSave(args []string) (string, error) {
	name := args[1]
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: invalid file name %q", ErrBadCommand, name)
	}
	path := filepath.Join(c.store.Snapshot().SaveDir, name+".png")
	c.save.Set(path)
	return path, nil
}

func (c *Controller) setThresholds(args []string) (string, error) {
	label := strings.TrimPrefix(args[0], hsvPrefix)

	vals := make([]uint8, 6)
	for i, tok := range args[1:] {
		limit := uint64(255)
		if i%3 == 0 {
			limit = imaging.HueMax
		}
		v, err := strconv.ParseUint(tok, 10, 8)
		if err != nil || v > limit {
			return "", fmt.Errorf("%w: %s value %q outside 0-%d", ErrBadCommand, args[0], tok, limit)
		}
		vals[i] = uint8(v)
	}
	lo := imaging.HSV{H: vals[0], S: vals[1], V: vals[2]}
	hi := imaging.HSV{H: vals[3], S: vals[4], V: vals[5]}

	err := c.store.Update(func(s *Settings) error {
		i, ok := s.ProfileIndex(label)
		if !ok {
			return fmt.Errorf("%w: unknown color %q", ErrBadCommand, label)
		}
		s.Profiles[i] = s.Profiles[i].WithThresholds(lo, hi)
		return nil
	})
	if err != nil {
		return "", err
	}
	return ReplyOK, nil
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, tok := range args {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadCommand, err)
		}
		out[i] = v
	}
	return out, nil
}

func (c *Controller) setCamera(m camera.Model) (string, error) {
	if err := m.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadCommand, err)
	}
	err := c.store.Update(func(s *Settings) error {
		s.Camera = m
		return nil
	})
	if err != nil {
		return "", err
	}
	return ReplyOK, nil
}

func (c *Controller) setPinhole(args []string) (string, error) {
	v, err := parseFloats(args[1:])
	if err != nil {
		return "", err
	}
	return c.setCamera(camera.Model{Fx: v[0], Fy: v[1], Cx: v[2], Cy: v[3]})
}

func (c *Controller) setFisheye(args []string) (string, error) {
	v, err := parseFloats(args[1:])
	if err != nil {
		return "", err
	}
	return c.setCamera(camera.Model{
		Fx: v[0], Fy: v[1], Cx: v[2], Cy: v[3],
		Distortion: &camera.Fisheye{K1: v[4], K2: v[5], K3: v[6], K4: v[7]},
	})
}
