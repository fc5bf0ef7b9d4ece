package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	// Test that defaults are set via pointers
	if cfg.GroundSampleDistance == nil || *cfg.GroundSampleDistance != 1.8 {
		t.Errorf("Expected GroundSampleDistance 1.8, got %v", cfg.GroundSampleDistance)
	}
	if cfg.DiscardPercentile == nil || *cfg.DiscardPercentile != 20 {
		t.Errorf("Expected DiscardPercentile 20, got %v", cfg.DiscardPercentile)
	}
	if cfg.PollInterval == nil || *cfg.PollInterval != "50ms" {
		t.Errorf("Expected PollInterval '50ms', got %v", cfg.PollInterval)
	}
	if cfg.CaptureInterval == nil || *cfg.CaptureInterval != "1s" {
		t.Errorf("Expected CaptureInterval '1s', got %v", cfg.CaptureInterval)
	}
	if cfg.MaxRunDuration == nil || *cfg.MaxRunDuration != "10s" {
		t.Errorf("Expected MaxRunDuration '10s', got %v", cfg.MaxRunDuration)
	}

	// Test getter methods
	if cfg.GetAcceptance() != 1 || cfg.GetRejection() != 1 {
		t.Errorf("Expected acceptance/rejection 1/1, got %f/%f", cfg.GetAcceptance(), cfg.GetRejection())
	}
	if cfg.GetDistanceDevScale() != 0.1 {
		t.Errorf("GetDistanceDevScale() = %f, want 0.1", cfg.GetDistanceDevScale())
	}
	if cfg.GetAngleDevScale() != 10 {
		t.Errorf("GetAngleDevScale() = %f, want 10", cfg.GetAngleDevScale())
	}
	if cfg.GetAngleReference() != AngleReferenceCircular {
		t.Errorf("GetAngleReference() = %q, want %q", cfg.GetAngleReference(), AngleReferenceCircular)
	}
	if cfg.GetAggregation() != AggregationTrimmedWeightedMean {
		t.Errorf("GetAggregation() = %q, want %q", cfg.GetAggregation(), AggregationTrimmedWeightedMean)
	}
	if cfg.GetSpeedFile() != "speed.txt" || cfg.GetEventLog() != "events.log" {
		t.Errorf("unexpected output files %q, %q", cfg.GetSpeedFile(), cfg.GetEventLog())
	}
	if cfg.GetSensorPort() != "" {
		t.Errorf("GetSensorPort() = %q, want empty", cfg.GetSensorPort())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultTuningConfig() failed validation: %v", err)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "ground_sample_distance": 0.1265,
  "discard_percentile": 5,
  "angle_reference": "arithmetic",
  "aggregation": "normalized_score",
  "capture_interval": "250ms",
  "max_run_duration": "2m",
  "max_matches": 400
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetGroundSampleDistance() != 0.1265 {
		t.Errorf("Expected GroundSampleDistance 0.1265, got %f", cfg.GetGroundSampleDistance())
	}
	if cfg.GetDiscardPercentile() != 5 {
		t.Errorf("Expected DiscardPercentile 5, got %f", cfg.GetDiscardPercentile())
	}
	if cfg.GetAngleReference() != AngleReferenceArithmetic {
		t.Errorf("Expected arithmetic angle reference, got %q", cfg.GetAngleReference())
	}
	if cfg.GetAggregation() != AggregationNormalizedScore {
		t.Errorf("Expected normalized_score aggregation, got %q", cfg.GetAggregation())
	}
	if cfg.GetCaptureInterval() != 250*time.Millisecond {
		t.Errorf("Expected CaptureInterval 250ms, got %v", cfg.GetCaptureInterval())
	}
	if cfg.GetMaxRunDuration() != 2*time.Minute {
		t.Errorf("Expected MaxRunDuration 2m, got %v", cfg.GetMaxRunDuration())
	}
	if cfg.GetMaxMatches() != 400 {
		t.Errorf("Expected MaxMatches 400, got %d", cfg.GetMaxMatches())
	}
	// Omitted fields keep their defaults.
	if cfg.GetPollInterval() != 50*time.Millisecond {
		t.Errorf("Expected default PollInterval 50ms, got %v", cfg.GetPollInterval())
	}
	if cfg.GetAngleDevScale() != 10 {
		t.Errorf("Expected default AngleDevScale 10, got %f", cfg.GetAngleDevScale())
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	invalidJSON := `{
  "ground_sample_distance": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestLoadTuningConfigFailsValidation(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad_values.json")

	if err := os.WriteFile(configPath, []byte(`{"discard_percentile": 75}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := LoadTuningConfig(configPath); err == nil {
		t.Error("Expected validation error for discard_percentile 75, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{name: "valid config", cfg: DefaultTuningConfig(), wantErr: false},
		{name: "empty config is valid", cfg: &TuningConfig{}, wantErr: false},
		{name: "zero ground sample distance", cfg: &TuningConfig{GroundSampleDistance: ptrFloat64(0)}, wantErr: true},
		{name: "negative acceptance", cfg: &TuningConfig{Acceptance: ptrFloat64(-1)}, wantErr: true},
		{name: "zero rejection", cfg: &TuningConfig{Rejection: ptrFloat64(0)}, wantErr: true},
		{name: "negative distance scale", cfg: &TuningConfig{DistanceDevScale: ptrFloat64(-0.1)}, wantErr: true},
		{name: "negative angle scale", cfg: &TuningConfig{AngleDevScale: ptrFloat64(-10)}, wantErr: true},
		{name: "zero angle scale is allowed", cfg: &TuningConfig{AngleDevScale: ptrFloat64(0)}, wantErr: false},
		{name: "negative percentile", cfg: &TuningConfig{DiscardPercentile: ptrFloat64(-1)}, wantErr: true},
		{name: "percentile of 50", cfg: &TuningConfig{DiscardPercentile: ptrFloat64(50)}, wantErr: true},
		{name: "percentile of 0", cfg: &TuningConfig{DiscardPercentile: ptrFloat64(0)}, wantErr: false},
		{name: "unknown angle reference", cfg: &TuningConfig{AngleReference: ptrString("vector")}, wantErr: true},
		{name: "unknown aggregation", cfg: &TuningConfig{Aggregation: ptrString("median")}, wantErr: true},
		{name: "invalid poll interval", cfg: &TuningConfig{PollInterval: ptrString("invalid")}, wantErr: true},
		{name: "negative capture interval", cfg: &TuningConfig{CaptureInterval: ptrString("-1s")}, wantErr: true},
		{name: "zero run duration", cfg: &TuningConfig{MaxRunDuration: ptrString("0s")}, wantErr: true},
		{name: "zero max matches", cfg: &TuningConfig{MaxMatches: ptrInt(0)}, wantErr: true},
		{name: "negative camera device", cfg: &TuningConfig{CameraDevice: ptrInt(-1)}, wantErr: true},
		{name: "zero sensor baud", cfg: &TuningConfig{SensorBaudRate: ptrInt(0)}, wantErr: true},
		{name: "unknown speed units", cfg: &TuningConfig{SpeedUnits: ptrString("knots")}, wantErr: true},
		{name: "valid speed units", cfg: &TuningConfig{SpeedUnits: ptrString("mph")}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetCaptureInterval(t *testing.T) {
	tests := []struct {
		name string
		cfg  *TuningConfig
		want time.Duration
	}{
		{name: "500 milliseconds", cfg: &TuningConfig{CaptureInterval: ptrString("500ms")}, want: 500 * time.Millisecond},
		{name: "2 seconds", cfg: &TuningConfig{CaptureInterval: ptrString("2s")}, want: 2 * time.Second},
		{name: "nil pointer returns default", cfg: &TuningConfig{}, want: time.Second},
		{name: "empty string returns default", cfg: &TuningConfig{CaptureInterval: ptrString("")}, want: time.Second},
		{name: "invalid duration returns default", cfg: &TuningConfig{CaptureInterval: ptrString("invalid")}, want: time.Second},
		{name: "non-positive duration returns default", cfg: &TuningConfig{CaptureInterval: ptrString("-3s")}, want: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetCaptureInterval(); got != tt.want {
				t.Errorf("GetCaptureInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/groundspeed.defaults.json")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	defaults := DefaultTuningConfig()
	if cfg.GetGroundSampleDistance() != defaults.GetGroundSampleDistance() {
		t.Errorf("GroundSampleDistance: file %f, built-in %f", cfg.GetGroundSampleDistance(), defaults.GetGroundSampleDistance())
	}
	if cfg.GetDiscardPercentile() != defaults.GetDiscardPercentile() {
		t.Errorf("DiscardPercentile: file %f, built-in %f", cfg.GetDiscardPercentile(), defaults.GetDiscardPercentile())
	}
	if cfg.GetMaxRunDuration() != defaults.GetMaxRunDuration() {
		t.Errorf("MaxRunDuration: file %v, built-in %v", cfg.GetMaxRunDuration(), defaults.GetMaxRunDuration())
	}
	if cfg.GetSensorBaudRate() != defaults.GetSensorBaudRate() {
		t.Errorf("SensorBaudRate: file %d, built-in %d", cfg.GetSensorBaudRate(), defaults.GetSensorBaudRate())
	}
}

func TestLoadExampleConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/groundspeed.example.json")
	if err != nil {
		t.Fatalf("Failed to load example: %v", err)
	}
	if cfg.GetGroundSampleDistance() != 0.1265 {
		t.Errorf("Expected 0.1265, got %f", cfg.GetGroundSampleDistance())
	}
	if cfg.GetMaxRunDuration() != 9*time.Minute+30*time.Second {
		t.Errorf("Expected 9m30s, got %v", cfg.GetMaxRunDuration())
	}
	if cfg.GetSensorPort() != "/dev/ttyUSB0" {
		t.Errorf("Expected /dev/ttyUSB0, got %q", cfg.GetSensorPort())
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.GetSpeedFile() != "speed.txt" {
		t.Errorf("Expected speed.txt, got %q", cfg.GetSpeedFile())
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("/some/path/config.yaml")
	if err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")

	largeData := make([]byte, 2*1024*1024) // 2MB
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}
