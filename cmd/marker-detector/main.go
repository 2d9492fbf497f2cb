package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ironsheep/marker-detector/internal/config"
	"github.com/ironsheep/marker-detector/internal/logging"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const (
	flagConfig   = "config"
	flagLogLevel = "log-level"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "marker-detector: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "marker-detector",
		Usage:   "detect colored ground markers and report them to the autopilot",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{"MARKER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    flagLogLevel,
				Usage:   "log level (debug, info, warn, error)",
				EnvVars: []string{logging.LevelEnv},
			},
		},
		Commands: []*cli.Command{
			runCommand,
			ledCommand,
			orthoCommand,
			hsvCommand,
			{
				Name:  "version",
				Usage: "print version information",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "marker-detector %s\n", Version)
					fmt.Fprintf(c.App.Writer, "  Build time: %s\n", BuildTime)
					fmt.Fprintf(c.App.Writer, "  Git commit: %s\n", GitCommit)
					return nil
				},
			},
		},
	}
}

// newLogger builds the logger for a subcommand. Logs go to stderr because
// stdout may carry the autopilot protocol.
func newLogger(c *cli.Context, name string) (*zap.SugaredLogger, error) {
	return logging.New(name, c.String(flagLogLevel))
}

// loadConfig reads the configuration file when one is given. A nil file
// means built-in defaults.
func loadConfig(c *cli.Context) (*config.File, error) {
	path := c.String(flagConfig)
	if path == "" {
		return nil, nil
	}
	return config.Load(path)
}
