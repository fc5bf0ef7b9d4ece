// Package pipeline drives a capture run: it paces frame capture, matches
// each new frame against the previous one, feeds the pairs to the speed
// estimator and, once the run's time budget is spent, writes the final
// estimate to the speed file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/groundspeed/internal/config"
	"github.com/banshee-data/groundspeed/internal/fsutil"
	"github.com/banshee-data/groundspeed/internal/security"
	"github.com/banshee-data/groundspeed/internal/speed"
	"github.com/banshee-data/groundspeed/internal/timeutil"
	"github.com/banshee-data/groundspeed/internal/units"
)

// FrameExt is the file extension of captured frames.
const FrameExt = ".jpg"

// Camera stores one frame per Capture call.
type Camera interface {
	Capture(path string) error
	Close() error
}

// Matcher extracts feature correspondences between two frames.
type Matcher interface {
	Match(first, second speed.Frame) (speed.MatchedFramePair, error)
}

// SensorRecorder is invoked once per capture interval.
type SensorRecorder interface {
	Record() error
}

// Config holds the run parameters.
type Config struct {
	DataDir         string
	SpeedFile       string
	ImagePrefix     string
	SpeedUnits      string
	CaptureInterval time.Duration
	MaxRunDuration  time.Duration
}

// ConfigFromTuning extracts the run parameters from a tuning config.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		DataDir:         t.GetDataDir(),
		SpeedFile:       t.GetSpeedFile(),
		ImagePrefix:     t.GetImagePrefix(),
		SpeedUnits:      t.GetSpeedUnits(),
		CaptureInterval: t.GetCaptureInterval(),
		MaxRunDuration:  t.GetMaxRunDuration(),
	}
}

// Result summarises a finished run. Samples is the number of pairs that
// contributed to Speed; zero means Speed carries no measurement.
type Result struct {
	RunID   uuid.UUID
	Speed   float64
	Samples int
	Frames  int
	// Unprocessed counts pairs still queued when the estimator stopped.
	Unprocessed int
}

// Option configures a Runner.
type Option func(*Runner)

// WithFileSystem replaces the OS filesystem.
func WithFileSystem(fsys fsutil.FileSystem) Option {
	return func(r *Runner) { r.fs = fsys }
}

// WithClock replaces the wall clock used for pacing and frame timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// Runner owns one capture run. It is not reusable.
type Runner struct {
	cfg       Config
	estimator *speed.Estimator
	camera    Camera
	matcher   Matcher
	sensors   SensorRecorder
	fs        fsutil.FileSystem
	clock     timeutil.Clock

	speedPath string
	prefix    string
}

// NewRunner validates cfg and resolves the output paths.
func NewRunner(cfg Config, est *speed.Estimator, cam Camera, m Matcher, sensors SensorRecorder, opts ...Option) (*Runner, error) {
	if est == nil || cam == nil || m == nil {
		return nil, errors.New("pipeline: estimator, camera and matcher are required")
	}
	if cfg.CaptureInterval <= 0 || cfg.MaxRunDuration <= 0 {
		return nil, fmt.Errorf("pipeline: capture interval and run duration must be positive, got %v and %v",
			cfg.CaptureInterval, cfg.MaxRunDuration)
	}
	speedPath, err := security.ResolveInDir(cfg.DataDir, cfg.SpeedFile)
	if err != nil {
		return nil, fmt.Errorf("pipeline: speed file: %w", err)
	}

	r := &Runner{
		cfg:       cfg,
		estimator: est,
		camera:    cam,
		matcher:   m,
		sensors:   sensors,
		fs:        fsutil.OSFileSystem{},
		clock:     timeutil.RealClock{},
		speedPath: speedPath,
		prefix:    security.SanitizeFilename(cfg.ImagePrefix),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run captures frames until MaxRunDuration has elapsed or ctx is done,
// then stops the estimator, waits for it and writes its final value to the
// speed file. The camera is closed before Run returns.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.New()}
	defer func() {
		if err := r.camera.Close(); err != nil {
			opsf("run %s: close camera: %v", res.RunID, err)
		}
	}()

	if err := r.fs.MkdirAll(r.cfg.DataDir, 0755); err != nil {
		return res, fmt.Errorf("create data dir: %w", err)
	}

	diagf("run %s: capturing every %v for %v into %s",
		res.RunID, r.cfg.CaptureInterval, r.cfg.MaxRunDuration, r.cfg.DataDir)
	r.estimator.Start(ctx)

	start := r.clock.Now()
	var prev *speed.Frame
	for i := 0; r.clock.Since(start) < r.cfg.MaxRunDuration && ctx.Err() == nil; i++ {
		if frame, ok := r.capture(i); ok {
			res.Frames++
			if prev != nil {
				r.match(*prev, frame)
				r.removeFrame(prev.Path)
			}
			prev = &frame
		}
		if r.sensors != nil {
			if err := r.sensors.Record(); err != nil {
				opsf("run %s: sensor record: %v", res.RunID, err)
			}
		}
		r.clock.Sleep(r.cfg.CaptureInterval)
	}
	if prev != nil {
		r.removeFrame(prev.Path)
	}

	r.estimator.Cancel()
	r.estimator.Wait()
	res.Speed, _ = r.estimator.Final()
	res.Samples = r.estimator.ContributingCount()
	res.Unprocessed = r.estimator.Pending()

	data := []byte(strconv.FormatFloat(res.Speed, 'f', -1, 64))
	if err := fsutil.WriteFileAtomic(r.fs, r.speedPath, data, 0644); err != nil {
		return res, fmt.Errorf("write speed file: %w", err)
	}

	unit := r.cfg.SpeedUnits
	if !units.IsValid(unit) {
		unit = units.KMPS
	}
	diagf("run %s: speed %.4f %s from %d samples (%d frames, %d unprocessed pairs)",
		res.RunID, units.ConvertSpeed(res.Speed, unit), units.Label(unit), res.Samples, res.Frames, res.Unprocessed)
	if res.Samples == 0 {
		opsf("run %s: no usable frame pairs, speed file holds 0", res.RunID)
	}
	return res, nil
}

func (r *Runner) capture(i int) (speed.Frame, bool) {
	path := filepath.Join(r.cfg.DataDir, r.prefix+strconv.Itoa(i)+FrameExt)
	if err := r.camera.Capture(path); err != nil {
		opsf("capture %s: %v", path, err)
		return speed.Frame{}, false
	}
	frame := speed.Frame{Path: path, CapturedAt: r.clock.Now()}
	tracef("captured %s at %s", path, frame.CapturedAt.Format(time.RFC3339Nano))
	return frame, true
}

func (r *Runner) match(first, second speed.Frame) {
	pair, err := r.matcher.Match(first, second)
	if err != nil {
		opsf("match %s -> %s: %v", first.Path, second.Path, err)
		return
	}
	tracef("matched %s -> %s: %d correspondences over %v",
		first.Path, second.Path, len(pair.Correspondences), pair.Elapsed)
	r.estimator.Submit(pair)
}

func (r *Runner) removeFrame(path string) {
	if err := r.fs.Remove(path); err != nil {
		opsf("remove %s: %v", path, err)
	}
}
