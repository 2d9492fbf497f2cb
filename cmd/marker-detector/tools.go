package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ironsheep/marker-detector/internal/geo"
	"github.com/ironsheep/marker-detector/internal/imaging"
	"github.com/ironsheep/marker-detector/internal/ortho"
)

const (
	flagScale      = "scale"
	flagResolution = "resolution"
	flagRegion     = "region"
	flagTop        = "top"
	flagHueStep    = "hue-step"
	flagSatStep    = "sat-step"
	flagGeo        = "geotransform"
	flagZone       = "zone"
	flagSouth      = "south"
)

var orthoCommand = &cli.Command{
	Name:      "ortho",
	Usage:     "search an orthomosaic image for markers",
	ArgsUsage: "<image>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    flagOutput,
			Aliases: []string{"o"},
			Usage:   "annotated output image",
		},
		&cli.Float64Flag{
			Name:    flagScale,
			Aliases: []string{"s"},
			Usage:   "downscale factor of the annotated output (overrides the config file)",
		},
		&cli.Float64Flag{
			Name:    flagResolution,
			Aliases: []string{"r"},
			Usage:   "ground resolution in pixels per metre (overrides the config file)",
		},
		&cli.StringFlag{
			Name:  flagGeo,
			Usage: "GDAL geotransform xoff,a,b,yoff,d,e used instead of the world file",
		},
		&cli.IntFlag{
			Name:  flagZone,
			Usage: "UTM zone of the image coordinates (overrides the config file)",
		},
		&cli.BoolFlag{
			Name:  flagSouth,
			Usage: "the UTM zone is in the southern hemisphere",
		},
	},
	Action: orthoAction,
}

func orthoAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("ortho needs exactly one image", 2)
	}
	logger, err := newLogger(c, "ortho")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	opts, err := cfg.SurveyOptions()
	if err != nil {
		return err
	}
	if c.IsSet(flagScale) {
		opts.Downscale = c.Float64(flagScale)
	}
	if c.IsSet(flagResolution) {
		opts.PixelsPerMetre = c.Float64(flagResolution)
	}
	if c.IsSet(flagZone) {
		opts.Zone.Number = c.Int(flagZone)
	}
	if c.IsSet(flagSouth) {
		opts.Zone.North = !c.Bool(flagSouth)
	}

	survey, err := ortho.New(opts, nil, logger)
	if err != nil {
		return err
	}
	placements, err := processSurvey(c, survey, opts.Zone)
	if err != nil {
		return err
	}

	w := c.App.Writer
	for _, p := range placements {
		fmt.Fprintf(w, "%s %.1f %.1f", p.Label, p.Candidate.Center.X, p.Candidate.Center.Y)
		if p.HasGeo {
			fmt.Fprintf(w, " %s", p.GeoText())
		}
		fmt.Fprintln(w)
	}
	return nil
}

func processSurvey(c *cli.Context, survey *ortho.Survey, zone geo.UTMZone) ([]ortho.Placement, error) {
	input, output := c.Args().First(), c.String(flagOutput)
	gt := c.String(flagGeo)
	if gt == "" {
		return survey.ProcessFile(input, output)
	}

	v, err := parseFloats(gt, 6)
	if err != nil {
		return nil, fmt.Errorf("geotransform %q: %w", gt, err)
	}
	frame, err := imaging.Open(input)
	if err != nil {
		return nil, err
	}
	tf := geo.FromGeoTransform([6]float64(v), &zone)
	return survey.ProcessImage(frame, &tf, output)
}

var hsvCommand = &cli.Command{
	Name:      "hsv",
	Usage:     "print 8-bit HSV values and a hue/saturation histogram to tune thresholds",
	ArgsUsage: "<image> [x,y ...]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  flagRegion,
			Usage: "histogram region as x1,y1,x2,y2 (whole image when empty)",
		},
		&cli.IntFlag{
			Name:  flagTop,
			Usage: "number of histogram bins to print",
			Value: 5,
		},
		&cli.IntFlag{
			Name:  flagHueStep,
			Usage: "histogram hue bin width",
			Value: 10,
		},
		&cli.IntFlag{
			Name:  flagSatStep,
			Usage: "histogram saturation bin width",
			Value: 32,
		},
	},
	Action: hsvAction,
}

func hsvAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("hsv needs an image", 2)
	}
	img, err := imaging.Open(c.Args().First())
	if err != nil {
		return err
	}

	var points []imaging.LabeledPoint
	for _, arg := range c.Args().Tail() {
		v, err := parseInts(arg, 2)
		if err != nil {
			return fmt.Errorf("point %q: %w", arg, err)
		}
		points = append(points, imaging.LabeledPoint{X: v[0], Y: v[1], Label: arg})
	}
	samples, err := imaging.SampleColorsMulti(img, points)
	if err != nil {
		return err
	}

	w := c.App.Writer
	for _, s := range samples {
		fmt.Fprintf(w, "%d,%d %s H=%d S=%d V=%d\n", s.X, s.Y, s.Color.Hex, s.Color.HSV.H, s.Color.HSV.S, s.Color.HSV.V)
	}

	var region *imaging.Region
	if r := c.String(flagRegion); r != "" {
		v, err := parseInts(r, 4)
		if err != nil {
			return fmt.Errorf("region %q: %w", r, err)
		}
		region = &imaging.Region{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
	}
	bins, err := imaging.HueSatHistogram(imaging.ToHSV(img), c.Int(flagHueStep), c.Int(flagSatStep), c.Int(flagTop), region)
	if err != nil {
		return err
	}
	for _, b := range bins {
		fmt.Fprintf(w, "%5.1f%%  hsv_<color> %d %d 0 %d %d 255\n", b.Percentage, b.HueMin, b.SatMin, b.HueMax, b.SatMax)
	}
	return nil
}

// parseFloats parses n comma separated numbers.
func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d comma separated numbers", n)
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// parseInts parses n comma separated integers.
func parseInts(s string, n int) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d comma separated integers", n)
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
