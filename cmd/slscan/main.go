package main

import (
	"context"
	"fmt"
	"image"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"
	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/nasa-jpl/structlight/acquire"
	"github.com/nasa-jpl/structlight/capture"
	"github.com/nasa-jpl/structlight/coding"
	"github.com/nasa-jpl/structlight/dispmap"
	"github.com/nasa-jpl/structlight/generichttp/scan"
	"github.com/nasa-jpl/structlight/imgrec"
	"github.com/nasa-jpl/structlight/param"
	"github.com/nasa-jpl/structlight/pattern"
	"github.com/nasa-jpl/structlight/raster"
	"github.com/nasa-jpl/structlight/server"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "slscan.yml"
	k              = koanf.New(".")
)

type recorder struct {
	// Root is the root folder to write to
	Root string `koanf:"Root" yaml:"Root"`

	// Prefix is the filename prefix to use
	Prefix string `koanf:"Prefix" yaml:"Prefix"`

	// Enabled turns recording of scans on
	Enabled bool `koanf:"Enabled" yaml:"Enabled"`
}

// simulation configures the simulated projector/camera rig
type simulation struct {
	Gain      float64       `koanf:"Gain" yaml:"Gain"`
	Ambient   float64       `koanf:"Ambient" yaml:"Ambient"`
	Noise     float64       `koanf:"Noise" yaml:"Noise"`
	Seed      int64         `koanf:"Seed" yaml:"Seed"`
	DropEvery int           `koanf:"DropEvery" yaml:"DropEvery"`
	Latency   time.Duration `koanf:"Latency" yaml:"Latency"`
}

type config struct {
	Addr       string                 `koanf:"Addr" yaml:"Addr"`
	Root       string                 `koanf:"Root" yaml:"Root"`
	Smoothing  float64                `koanf:"Smoothing" yaml:"Smoothing"`
	Recorder   recorder               `koanf:"Recorder" yaml:"Recorder"`
	Simulation simulation             `koanf:"Simulation" yaml:"Simulation"`
	Codec      map[string]interface{} `koanf:"Codec" yaml:"Codec"`
}

func setupconfig() {
	k.Load(structs.Provider(config{
		Addr: ":8000",
		Root: "/",
		Recorder: recorder{
			Root:   "scans",
			Prefix: "scan"},
		Simulation: simulation{
			Gain:    0.8,
			Ambient: 12,
			Noise:   1.5,
			Seed:    1},
		Codec: map[string]interface{}{
			"Method":             "threephase",
			"PatternRows":        768,
			"PatternColumns":     1024,
			"PatternColor":       "white",
			"PatternOrientation": "vertical",
			"PixelsPerPeriod":    16,
			"IncludeInverted":    true,
			"Exposure":           "16.667ms",
			"Period":             "16.667ms"}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func loadconfig() config {
	c := config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	return c
}

func root() {
	str := `slscan generates and decodes structured light patterns,
mapping every camera pixel to the projector column or row it sees.

Usage:
	slscan <command> [args]

Commands:
	run
	generate [dir]
	decode <cube.fits | image...>
	simulate
	profile <map.fits> [row]
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `slscan is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.  Keys are not case-sensitive.
The command mkconf generates the configuration file with the default values.

The Codec section holds the coding parameters.  Method is graycode or threephase.
PatternRows, PatternColumns, PatternColor, and PatternOrientation are required.
Gray code also takes SequenceCount, IncludeInverted, PixelThreshold, Threshold,
and MeasureRegions.  Three phase also takes PixelsPerPeriod or Frequency, Bitdepth,
RepeatPhases, Oversampling, IncludeInverted, PixelThreshold, and MinimumModulation.

run serves the codec and a simulated rig over HTTP.
generate writes the pattern sequence as PNG files.
decode reads the captures, one per pattern, as a single FITS cube or as a list
of image files in pattern order, and writes the map as a FITS file next to the first.
Smoothing applies a Gaussian blur of that many pixels to each capture first.
simulate scans the simulated rig and records the captures and map.
profile plots one row of a map to a PNG.`
	fmt.Println(str)
}

func mkconf() {
	c := loadconfig()
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := loadconfig()
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("slscan version %v\n", Version)
}

func newLogger() *zap.SugaredLogger {
	l, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	return l.Sugar()
}

func newSpinner(suffix string) *yacspin.Spinner {
	spin, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[59],
		Suffix:            " " + suffix,
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		log.Fatal(err)
	}
	return spin
}

func newCodec(cfg config) coding.Codec {
	codec, rc := coding.FromParams(param.FromMap(cfg.Codec))
	for _, w := range rc.Warnings() {
		log.Println("warning:", w)
	}
	if rc.HasErrors() {
		log.Fatal(rc.Err())
	}
	return codec
}

func newRig(cfg config) *acquire.Rig {
	s := param.FromMap(cfg.Codec)
	rows, cols := s.Int("PatternRows", 0), s.Int("PatternColumns", 0)
	rig := acquire.NewRig(rows, cols)
	sim := cfg.Simulation
	rig.Gain = sim.Gain
	rig.Ambient = sim.Ambient
	rig.Noise = sim.Noise
	rig.Seed = sim.Seed
	rig.DropEvery = sim.DropEvery
	rig.Latency = sim.Latency
	return rig
}

func newRecorder(cfg config) *imgrec.Recorder {
	r := cfg.Recorder
	return &imgrec.Recorder{Root: r.Root, Prefix: r.Prefix, Enabled: r.Enabled}
}

func run() {
	cfg := loadconfig()
	logger := newLogger()
	defer logger.Sync()

	rig := newRig(cfg)
	scanner := &acquire.Scanner{Projector: rig, Camera: rig, Logger: logger}
	w, rc := scan.NewHTTPWrapper(param.FromMap(cfg.Codec), scanner, newRecorder(cfg), logger)
	if rc.HasErrors() {
		log.Fatal(rc.Err())
	}

	// clean up the submux string
	hndlrS := server.SubMuxSanitize(cfg.Root)
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	root.Mount(hndlrS, w.Router())
	addr := cfg.Addr + cfg.Root
	logger.Infow("now listening for requests", "addr", addr)
	log.Fatal(http.ListenAndServe(cfg.Addr, root))
}

func generate(args []string) {
	cfg := loadconfig()
	codec := newCodec(cfg)
	rec := newRecorder(cfg)
	if len(args) > 0 {
		rec.Root = args[0]
	}
	spin := newSpinner("generating patterns")
	spin.Start()
	seq := pattern.NewSequence()
	rc := codec.GeneratePatternSequence(seq)
	if rc.HasErrors() {
		spin.StopFailMessage(rc.Err().Error())
		spin.StopFail()
		os.Exit(1)
	}
	fns, err := rec.RecordPatterns(seq)
	if err != nil {
		spin.StopFailMessage(err.Error())
		spin.StopFail()
		os.Exit(1)
	}
	spin.StopMessage(fmt.Sprintf("wrote %d patterns", len(fns)))
	spin.Stop()
}

func readCaptures(paths []string, sigma float64) (*capture.Sequence, error) {
	var planes []*raster.Plane
	if len(paths) == 1 && raster.IsFITS(paths[0]) {
		var err error
		planes, err = raster.LoadFITS(paths[0])
		if err != nil {
			return nil, err
		}
	} else {
		for _, p := range paths {
			plane, err := raster.Load(p)
			if err != nil {
				return nil, err
			}
			planes = append(planes, plane)
		}
	}
	imgs := make([]image.Image, len(planes))
	for i, p := range planes {
		imgs[i] = raster.Smooth(p, sigma).Gray16()
	}
	return capture.FromImages(0, imgs...)
}

func decode(args []string) {
	if len(args) == 0 {
		log.Fatal("decode requires a FITS cube or a list of images")
	}
	cfg := loadconfig()
	codec := newCodec(cfg)
	spin := newSpinner("decoding")
	spin.Start()
	caps, err := readCaptures(args, cfg.Smoothing)
	if err != nil {
		spin.StopFailMessage(err.Error())
		spin.StopFail()
		os.Exit(1)
	}
	dmap, rc := codec.DecodeCaptureSequence(caps)
	if rc.HasErrors() {
		spin.StopFailMessage(rc.Err().Error())
		spin.StopFail()
		os.Exit(1)
	}
	out := strings.TrimSuffix(args[0], filepath.Ext(args[0])) + "_map.fits"
	if err := writeMap(out, dmap); err != nil {
		spin.StopFailMessage(err.Error())
		spin.StopFail()
		os.Exit(1)
	}
	spin.StopMessage(fmt.Sprintf("%s, %.1f%% decoded", out, coverage(dmap)))
	spin.Stop()
	for _, w := range rc.Warnings() {
		log.Println("warning:", w)
	}
}

func writeMap(fn string, dmap *dispmap.Map) error {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer f.Close()
	return imgrec.WriteMap(f, nil, dmap)
}

func coverage(dmap *dispmap.Map) float64 {
	n := dmap.Width() * dmap.Height()
	if n == 0 {
		return 0
	}
	return 100 * float64(dmap.ValidCount()) / float64(n)
}

func simulate() {
	cfg := loadconfig()
	logger := newLogger()
	defer logger.Sync()
	codec := newCodec(cfg)
	rig := newRig(cfg)
	scanner := &acquire.Scanner{Projector: rig, Camera: rig, Logger: logger}

	spin := newSpinner("scanning")
	spin.Start()
	dmap, caps, rc := scanner.Scan(context.Background(), codec)
	if rc.HasErrors() {
		spin.StopFailMessage(rc.Err().Error())
		spin.StopFail()
		os.Exit(1)
	}
	spin.StopMessage(fmt.Sprintf("%d captures, %.1f%% decoded", caps.Size(), coverage(dmap)))
	spin.Stop()
	for _, w := range rc.Warnings() {
		logger.Warn(w)
	}

	rec := newRecorder(cfg)
	planes, err := caps.Planes()
	if err != nil {
		log.Fatal(err)
	}
	fn, err := rec.RecordCaptures(planes, nil)
	if err != nil {
		log.Fatal(err)
	}
	logger.Infow("wrote captures", "file", fn)
	fn, err = rec.RecordMap(dmap, nil)
	if err != nil {
		log.Fatal(err)
	}
	logger.Infow("wrote map", "file", fn)
	rec.Incr()
}

func profile(args []string) {
	if len(args) == 0 {
		log.Fatal("profile requires a map file")
	}
	f, err := os.Open(args[0])
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	dmap, err := imgrec.ReadMap(f)
	if err != nil {
		log.Fatal(err)
	}
	row := dmap.Height() / 2
	if len(args) > 1 {
		row, err = strconv.Atoi(args[1])
		if err != nil {
			log.Fatal(err)
		}
	}
	if row < 0 || row >= dmap.Height() {
		log.Fatalf("row %d outside the map's %d rows", row, dmap.Height())
	}

	vals := dmap.Row(row)
	pts := make(plotter.XYs, 0, len(vals))
	for x, v := range vals {
		if dispmap.IsValid(v) {
			pts = append(pts, plotter.XY{X: float64(x), Y: v})
		}
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s row %d", filepath.Base(args[0]), row)
	p.X.Label.Text = "camera pixel"
	p.Y.Label.Text = "projector position"
	line, err := plotter.NewLine(pts)
	if err != nil {
		log.Fatal(err)
	}
	p.Add(line, plotter.NewGrid())
	out := strings.TrimSuffix(args[0], filepath.Ext(args[0])) + fmt.Sprintf("_row%d.png", row)
	if err := p.Save(8*vg.Inch, 4*vg.Inch, out); err != nil {
		log.Fatal(err)
	}
	fmt.Println(out)
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "run":
		run()
	case "generate":
		generate(args[2:])
	case "decode":
		decode(args[2:])
	case "simulate":
		simulate()
	case "profile":
		profile(args[2:])
	case "version":
		pversion()
	default:
		log.Fatal("unknown command")
	}
}
