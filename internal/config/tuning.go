package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/groundspeed/internal/units"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/groundspeed.defaults.json"

// Angle reference modes for the angle dispersion term of the score.
const (
	AngleReferenceCircular   = "circular"
	AngleReferenceArithmetic = "arithmetic"
)

// Aggregation strategies for folding samples into the running estimate.
const (
	AggregationTrimmedWeightedMean = "trimmed_weighted_mean"
	AggregationNormalizedScore     = "normalized_score"
)

// TuningConfig is the static configuration of a run. Every field is
// optional; the Get* accessors supply defaults for anything omitted, so a
// partial JSON file is always safe.
type TuningConfig struct {
	// Estimator params
	GroundSampleDistance *float64 `json:"ground_sample_distance,omitempty"`
	Acceptance           *float64 `json:"acceptance,omitempty"`
	Rejection            *float64 `json:"rejection,omitempty"`
	DistanceDevScale     *float64 `json:"distance_dev_scale,omitempty"`
	AngleDevScale        *float64 `json:"angle_dev_scale,omitempty"`
	DiscardPercentile    *float64 `json:"discard_percentile,omitempty"`
	AngleReference       *string  `json:"angle_reference,omitempty"`
	Aggregation          *string  `json:"aggregation,omitempty"`
	PollInterval         *string  `json:"poll_interval,omitempty"` // duration string like "50ms"

	// Capture loop params
	CaptureInterval *string `json:"capture_interval,omitempty"` // duration string like "1s"
	MaxRunDuration  *string `json:"max_run_duration,omitempty"` // duration string like "10s"
	CameraDevice    *int    `json:"camera_device,omitempty"`
	MaxMatches      *int    `json:"max_matches,omitempty"`

	// Output params
	DataDir     *string `json:"data_dir,omitempty"`
	SpeedFile   *string `json:"speed_file,omitempty"`
	EventLog    *string `json:"event_log,omitempty"`
	ImagePrefix *string `json:"image_prefix,omitempty"`
	SpeedUnits  *string `json:"speed_units,omitempty"`

	// Sensor dump params (optional)
	SensorPort     *string `json:"sensor_port,omitempty"`
	SensorBaudRate *int    `json:"sensor_baud_rate,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the built-in defaults.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		GroundSampleDistance: ptrFloat64(e.GetGroundSampleDistance()),
		Acceptance:           ptrFloat64(e.GetAcceptance()),
		Rejection:            ptrFloat64(e.GetRejection()),
		DistanceDevScale:     ptrFloat64(e.GetDistanceDevScale()),
		AngleDevScale:        ptrFloat64(e.GetAngleDevScale()),
		DiscardPercentile:    ptrFloat64(e.GetDiscardPercentile()),
		AngleReference:       ptrString(e.GetAngleReference()),
		Aggregation:          ptrString(e.GetAggregation()),
		PollInterval:         ptrString(e.GetPollInterval().String()),
		CaptureInterval:      ptrString(e.GetCaptureInterval().String()),
		MaxRunDuration:       ptrString(e.GetMaxRunDuration().String()),
		CameraDevice:         ptrInt(e.GetCameraDevice()),
		MaxMatches:           ptrInt(e.GetMaxMatches()),
		DataDir:              ptrString(e.GetDataDir()),
		SpeedFile:            ptrString(e.GetSpeedFile()),
		EventLog:             ptrString(e.GetEventLog()),
		ImagePrefix:          ptrString(e.GetImagePrefix()),
		SpeedUnits:           ptrString(e.GetSpeedUnits()),
		SensorPort:           ptrString(e.GetSensorPort()),
		SensorBaudRate:       ptrInt(e.GetSensorBaudRate()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.GroundSampleDistance != nil && *c.GroundSampleDistance <= 0 {
		return fmt.Errorf("ground_sample_distance must be positive, got %f", *c.GroundSampleDistance)
	}
	if c.Acceptance != nil && *c.Acceptance <= 0 {
		return fmt.Errorf("acceptance must be positive, got %f", *c.Acceptance)
	}
	if c.Rejection != nil && *c.Rejection <= 0 {
		return fmt.Errorf("rejection must be positive, got %f", *c.Rejection)
	}
	if c.DistanceDevScale != nil && *c.DistanceDevScale < 0 {
		return fmt.Errorf("distance_dev_scale must be non-negative, got %f", *c.DistanceDevScale)
	}
	if c.AngleDevScale != nil && *c.AngleDevScale < 0 {
		return fmt.Errorf("angle_dev_scale must be non-negative, got %f", *c.AngleDevScale)
	}
	if c.DiscardPercentile != nil {
		if p := *c.DiscardPercentile; p < 0 || p >= 50 {
			return fmt.Errorf("discard_percentile must be in [0, 50), got %f", p)
		}
	}

	if c.AngleReference != nil {
		switch *c.AngleReference {
		case AngleReferenceCircular, AngleReferenceArithmetic:
		default:
			return fmt.Errorf("angle_reference must be %q or %q, got %q",
				AngleReferenceCircular, AngleReferenceArithmetic, *c.AngleReference)
		}
	}
	if c.Aggregation != nil {
		switch *c.Aggregation {
		case AggregationTrimmedWeightedMean, AggregationNormalizedScore:
		default:
			return fmt.Errorf("aggregation must be %q or %q, got %q",
				AggregationTrimmedWeightedMean, AggregationNormalizedScore, *c.Aggregation)
		}
	}

	durations := []struct {
		name  string
		value *string
	}{
		{"poll_interval", c.PollInterval},
		{"capture_interval", c.CaptureInterval},
		{"max_run_duration", c.MaxRunDuration},
	}
	for _, d := range durations {
		if d.value == nil || *d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.value, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, *d.value)
		}
	}

	if c.MaxMatches != nil && *c.MaxMatches <= 0 {
		return fmt.Errorf("max_matches must be positive, got %d", *c.MaxMatches)
	}
	if c.CameraDevice != nil && *c.CameraDevice < 0 {
		return fmt.Errorf("camera_device must be non-negative, got %d", *c.CameraDevice)
	}
	if c.SensorBaudRate != nil && *c.SensorBaudRate <= 0 {
		return fmt.Errorf("sensor_baud_rate must be positive, got %d", *c.SensorBaudRate)
	}
	if c.SpeedUnits != nil && *c.SpeedUnits != "" && !units.IsValid(*c.SpeedUnits) {
		return fmt.Errorf("speed_units must be one of %s, got %q", units.GetValidUnitsString(), *c.SpeedUnits)
	}

	return nil
}

// parseDurationOr parses s or returns def when s is unset or malformed.
func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetGroundSampleDistance returns the physical distance covered by one pixel (km).
func (c *TuningConfig) GetGroundSampleDistance() float64 {
	if c.GroundSampleDistance == nil {
		return 1.8
	}
	return *c.GroundSampleDistance
}

// GetAcceptance returns the score exponent.
func (c *TuningConfig) GetAcceptance() float64 {
	if c.Acceptance == nil {
		return 1
	}
	return *c.Acceptance
}

// GetRejection returns the score multiplier base.
func (c *TuningConfig) GetRejection() float64 {
	if c.Rejection == nil {
		return 1
	}
	return *c.Rejection
}

// GetDistanceDevScale returns the scale applied to the distance deviation.
func (c *TuningConfig) GetDistanceDevScale() float64 {
	if c.DistanceDevScale == nil {
		return 0.1
	}
	return *c.DistanceDevScale
}

// GetAngleDevScale returns the scale applied to the angle deviation.
func (c *TuningConfig) GetAngleDevScale() float64 {
	if c.AngleDevScale == nil {
		return 10
	}
	return *c.AngleDevScale
}

// GetDiscardPercentile returns the two-sided outlier trim percentile.
func (c *TuningConfig) GetDiscardPercentile() float64 {
	if c.DiscardPercentile == nil {
		return 20
	}
	return *c.DiscardPercentile
}

// GetAngleReference returns the angle dispersion reference mode.
func (c *TuningConfig) GetAngleReference() string {
	if c.AngleReference == nil || *c.AngleReference == "" {
		return AngleReferenceCircular
	}
	return *c.AngleReference
}

// GetAggregation returns the aggregation strategy name.
func (c *TuningConfig) GetAggregation() string {
	if c.Aggregation == nil || *c.Aggregation == "" {
		return AggregationTrimmedWeightedMean
	}
	return *c.Aggregation
}

// GetPollInterval parses and returns the worker idle poll interval.
func (c *TuningConfig) GetPollInterval() time.Duration {
	return parseDurationOr(c.PollInterval, 50*time.Millisecond)
}

// GetCaptureInterval parses and returns the capture pacing interval.
func (c *TuningConfig) GetCaptureInterval() time.Duration {
	return parseDurationOr(c.CaptureInterval, time.Second)
}

// GetMaxRunDuration parses and returns the wall-clock bound of the capture loop.
func (c *TuningConfig) GetMaxRunDuration() time.Duration {
	return parseDurationOr(c.MaxRunDuration, 10*time.Second)
}

// GetCameraDevice returns the capture device index.
func (c *TuningConfig) GetCameraDevice() int {
	if c.CameraDevice == nil {
		return 0
	}
	return *c.CameraDevice
}

// GetMaxMatches returns the cap on correspondences kept per frame pair.
func (c *TuningConfig) GetMaxMatches() int {
	if c.MaxMatches == nil {
		return 1000
	}
	return *c.MaxMatches
}

// GetDataDir returns the directory for frames, the speed file and the event log.
func (c *TuningConfig) GetDataDir() string {
	if c.DataDir == nil || *c.DataDir == "" {
		return "."
	}
	return *c.DataDir
}

// GetSpeedFile returns the file name of the final speed result.
func (c *TuningConfig) GetSpeedFile() string {
	if c.SpeedFile == nil || *c.SpeedFile == "" {
		return "speed.txt"
	}
	return *c.SpeedFile
}

// GetEventLog returns the file name of the event log.
func (c *TuningConfig) GetEventLog() string {
	if c.EventLog == nil || *c.EventLog == "" {
		return "events.log"
	}
	return *c.EventLog
}

// GetImagePrefix returns the file name prefix for captured frames.
func (c *TuningConfig) GetImagePrefix() string {
	if c.ImagePrefix == nil || *c.ImagePrefix == "" {
		return "image"
	}
	return *c.ImagePrefix
}

// GetSpeedUnits returns the units used when reporting speeds in logs.
func (c *TuningConfig) GetSpeedUnits() string {
	if c.SpeedUnits == nil || *c.SpeedUnits == "" {
		return "kmps"
	}
	return *c.SpeedUnits
}

// GetSensorPort returns the sensor dump serial device, empty when disabled.
func (c *TuningConfig) GetSensorPort() string {
	if c.SensorPort == nil {
		return ""
	}
	return *c.SensorPort
}

// GetSensorBaudRate returns the sensor dump serial baud rate.
func (c *TuningConfig) GetSensorBaudRate() int {
	if c.SensorBaudRate == nil {
		return 115200
	}
	return *c.SensorBaudRate
}
