// Command groundspeed estimates platform ground speed from a camera looking
// straight down. It captures frames at a fixed interval for a bounded run,
// matches features between consecutive frames and writes the final speed
// estimate to the data directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/groundspeed/internal/config"
	"github.com/banshee-data/groundspeed/internal/fsutil"
	"github.com/banshee-data/groundspeed/internal/monitoring"
	"github.com/banshee-data/groundspeed/internal/pipeline"
	"github.com/banshee-data/groundspeed/internal/security"
	"github.com/banshee-data/groundspeed/internal/sensordump"
	"github.com/banshee-data/groundspeed/internal/speed"
	"github.com/banshee-data/groundspeed/internal/version"
	"github.com/banshee-data/groundspeed/internal/vision"
)

type cliOptions struct {
	configPath  string
	dataDir     string
	duration    time.Duration
	interval    time.Duration
	camera      int
	sensorPort  string
	devMode     bool
	verbose     bool
	showVersion bool

	// set records which flags appeared on the command line.
	set map[string]bool
}

func newFlagSet(o *cliOptions) *flag.FlagSet {
	fs := flag.NewFlagSet("groundspeed", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "Path to tuning config JSON (built-in defaults when empty)")
	fs.StringVar(&o.dataDir, "data-dir", "", "Directory for frames, event log and speed file")
	fs.DurationVar(&o.duration, "duration", 0, "Total capture duration")
	fs.DurationVar(&o.interval, "interval", 0, "Interval between frame captures")
	fs.IntVar(&o.camera, "camera", 0, "Camera device index")
	fs.StringVar(&o.sensorPort, "sensor-port", "", "Serial port of the auxiliary sensor (empty disables)")
	fs.BoolVar(&o.devMode, "dev", false, "Run with synthetic frames instead of the camera")
	fs.BoolVar(&o.verbose, "verbose", false, "Log per-frame trace output")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	return fs
}

func parseFlags(args []string) (cliOptions, error) {
	var o cliOptions
	fs := newFlagSet(&o)
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

// loadConfig reads the tuning file, if any, and applies command-line
// overrides on top.
func loadConfig(o cliOptions) (*config.TuningConfig, error) {
	cfg := config.EmptyTuningConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(o.configPath); err != nil {
			return nil, err
		}
	}

	if o.set["data-dir"] {
		cfg.DataDir = &o.dataDir
	}
	if o.set["duration"] {
		d := o.duration.String()
		cfg.MaxRunDuration = &d
	}
	if o.set["interval"] {
		d := o.interval.String()
		cfg.CaptureInterval = &d
	}
	if o.set["camera"] {
		cfg.CameraDevice = &o.camera
	}
	if o.set["sensor-port"] {
		cfg.SensorPort = &o.sensorPort
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Println(version.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		log.Fatalf("groundspeed: %v", err)
	}
}

func run(ctx context.Context, opts cliOptions, console io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	fsys := fsutil.OSFileSystem{}
	dataDir := cfg.GetDataDir()
	if err := fsys.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	eventPath, err := security.ResolveInDir(dataDir, cfg.GetEventLog())
	if err != nil {
		return fmt.Errorf("event log: %w", err)
	}
	events, err := monitoring.OpenEventLog(fsys, eventPath, console)
	if err != nil {
		return err
	}
	defer events.Close()
	monitoring.ConfigureStreams(events.Writer(), opts.verbose)
	defer monitoring.ConfigureStreams(nil, false)

	monitoring.Logf("%s", version.String())
	monitoring.Logf("Directory: %s", dataDir)

	est, err := speed.New(speed.ConfigFromTuning(cfg),
		speed.WithPollInterval(cfg.GetPollInterval()))
	if err != nil {
		return fmt.Errorf("estimator: %w", err)
	}

	var (
		cam     pipeline.Camera
		matcher pipeline.Matcher
	)
	if opts.devMode {
		cam = newSyntheticCamera(fsys)
		matcher = newSyntheticMatcher(cfg.GetGroundSampleDistance(), time.Now().UnixNano())
		monitoring.Logf("Dev mode: synthetic frames")
	} else {
		c, err := vision.OpenCamera(cfg.GetCameraDevice())
		if err != nil {
			return err
		}
		cam = c
		matcher = vision.ORBMatcher{MaxMatches: cfg.GetMaxMatches()}
	}

	sensors, closeSensors, err := openSensors(cfg, fsys, dataDir)
	if err != nil {
		cam.Close()
		return err
	}
	defer closeSensors()

	runner, err := pipeline.NewRunner(pipeline.ConfigFromTuning(cfg), est, cam, matcher, sensors,
		pipeline.WithFileSystem(fsys))
	if err != nil {
		cam.Close()
		return err
	}

	monitoring.Logf("Starting program")
	res, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	monitoring.Logf("Speed: %v (run %s, %d samples from %d frames)", res.Speed, res.RunID, res.Samples, res.Frames)
	monitoring.Logf("Program exited safely")
	return nil
}

// openSensors returns the sensor recorder for the run and a function that
// releases it.
func openSensors(cfg *config.TuningConfig, fsys fsutil.FileSystem, dataDir string) (pipeline.SensorRecorder, func(), error) {
	port := cfg.GetSensorPort()
	if port == "" {
		return sensordump.Nop{}, func() {}, nil
	}

	dumpPath, err := security.ResolveInDir(dataDir, sensordump.DefaultFileName)
	if err != nil {
		return nil, nil, err
	}
	out, err := fsys.OpenAppend(dumpPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sensor dump: %w", err)
	}
	rec, err := sensordump.Open(port, sensordump.PortOptions{BaudRate: cfg.GetSensorBaudRate()}, out, nil)
	if err != nil {
		out.Close()
		return nil, nil, err
	}
	return rec, func() {
		if err := rec.Close(); err != nil {
			monitoring.Logf("close sensor port: %v", err)
		}
		out.Close()
	}, nil
}
