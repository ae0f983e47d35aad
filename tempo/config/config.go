package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"runtime"

	"github.com/RyanBlaney/sonido-tempo/algorithms/filters"
	"github.com/RyanBlaney/sonido-tempo/algorithms/stats"
	"github.com/RyanBlaney/sonido-tempo/transcode"
)

// TempoConfig configures BPM detection
type TempoConfig struct {
	WindowSeconds     float64 `json:"window_seconds"`
	Levels            int     `json:"levels"`
	MinBPM            float64 `json:"min_bpm"`
	MaxBPM            float64 `json:"max_bpm"`
	SmoothingGain     float64 `json:"smoothing_gain"`
	SmoothingFeedback float64 `json:"smoothing_feedback"`
	CorrelationMethod string  `json:"correlation_method"` // "direct", "fft", "auto"

	// Workers bounds concurrent windows per file; 0 uses GOMAXPROCS.
	Workers int `json:"workers"`
}

// ActivityConfig configures silence/activity analysis
type ActivityConfig struct {
	ThresholdDB        float64 `json:"threshold_db"`
	MinSilenceDuration float64 `json:"min_silence_duration"`
}

// BatchConfig configures folder processing
type BatchConfig struct {
	// Workers bounds concurrent files; 0 uses GOMAXPROCS.
	Workers int `json:"workers"`

	// CacheDir enables the result cache when non-empty.
	CacheDir string `json:"cache_dir"`

	Progress bool `json:"progress"`
}

// Config is the complete configuration file
type Config struct {
	LogLevel string                   `json:"log_level"`
	Tempo    *TempoConfig             `json:"tempo"`
	Activity *ActivityConfig          `json:"activity"`
	Batch    *BatchConfig             `json:"batch"`
	Decoder  *transcode.DecoderConfig `json:"decoder"`
}

// Preset names for TempoPreset
const (
	PresetBatch   = "batch"
	PresetSegment = "segment"
)

// DefaultTempoConfig returns 3 s windows, 4 levels, 40-220 BPM and the
// standard envelope smoothing.
func DefaultTempoConfig() *TempoConfig {
	return &TempoConfig{
		WindowSeconds:     3.0,
		Levels:            4,
		MinBPM:            40.0,
		MaxBPM:            220.0,
		SmoothingGain:     filters.DefaultSmoothingGain,
		SmoothingFeedback: filters.DefaultSmoothingFeedback,
		CorrelationMethod: stats.TimeDomain.String(),
		Workers:           0,
	}
}

// TempoPreset returns the tempo configuration for a call site. "batch" uses
// 10 s windows for whole files and "segment" 3 s windows for short segments.
func TempoPreset(name string) (*TempoConfig, error) {
	cfg := DefaultTempoConfig()

	switch name {
	case PresetBatch:
		cfg.WindowSeconds = 10.0
	case PresetSegment, "":
		cfg.WindowSeconds = 3.0
	default:
		return nil, fmt.Errorf("unknown tempo preset %q", name)
	}

	return cfg, nil
}

// DefaultActivityConfig returns a -40 dB threshold and 4 s minimum silence
func DefaultActivityConfig() *ActivityConfig {
	return &ActivityConfig{
		ThresholdDB:        -40.0,
		MinSilenceDuration: 4.0,
	}
}

// DefaultBatchConfig returns default batch settings
func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		Workers:  0,
		CacheDir: "",
		Progress: true,
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Tempo:    DefaultTempoConfig(),
		Activity: DefaultActivityConfig(),
		Batch:    DefaultBatchConfig(),
		Decoder:  transcode.DefaultDecoderConfig(),
	}
}

// Load reads a JSON configuration file over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Sections set to null fall back to defaults
	if cfg.Tempo == nil {
		cfg.Tempo = DefaultTempoConfig()
	}
	if cfg.Activity == nil {
		cfg.Activity = DefaultActivityConfig()
	}
	if cfg.Batch == nil {
		cfg.Batch = DefaultBatchConfig()
	}
	if cfg.Decoder == nil {
		cfg.Decoder = transcode.DefaultDecoderConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if c.Tempo != nil {
		if err := c.Tempo.Validate(); err != nil {
			return fmt.Errorf("tempo: %w", err)
		}
	}
	if c.Activity != nil {
		if err := c.Activity.Validate(); err != nil {
			return fmt.Errorf("activity: %w", err)
		}
	}
	if c.Batch != nil && c.Batch.Workers < 0 {
		return fmt.Errorf("batch: workers must not be negative: %d", c.Batch.Workers)
	}
	return nil
}

// Validate checks the tempo configuration
func (c *TempoConfig) Validate() error {
	if c.WindowSeconds <= 0 || math.IsNaN(c.WindowSeconds) || math.IsInf(c.WindowSeconds, 0) {
		return fmt.Errorf("window_seconds must be positive: %v", c.WindowSeconds)
	}
	if c.Levels < 1 || c.Levels > 16 {
		return fmt.Errorf("levels must be between 1 and 16: %d", c.Levels)
	}
	if c.MinBPM <= 0 || math.IsNaN(c.MinBPM) {
		return fmt.Errorf("min_bpm must be positive: %v", c.MinBPM)
	}
	if c.MaxBPM <= c.MinBPM || math.IsInf(c.MaxBPM, 0) {
		return fmt.Errorf("max_bpm (%v) must exceed min_bpm (%v)", c.MaxBPM, c.MinBPM)
	}
	if err := filters.ValidateSmoothing(c.SmoothingGain, c.SmoothingFeedback); err != nil {
		return err
	}
	if _, err := stats.ParseCorrelationMethod(c.CorrelationMethod); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative: %d", c.Workers)
	}
	return nil
}

// WorkerCount resolves Workers against GOMAXPROCS
func (c *TempoConfig) WorkerCount() int {
	return ResolveWorkers(c.Workers)
}

// Key identifies the settings that change a BPM result. Worker counts do
// not affect results and are excluded.
func (c *TempoConfig) Key() string {
	return fmt.Sprintf("w=%g;l=%d;bpm=%g-%g;s=%g/%g;m=%s",
		c.WindowSeconds, c.Levels, c.MinBPM, c.MaxBPM, c.SmoothingGain, c.SmoothingFeedback, c.CorrelationMethod)
}

// Validate checks the activity configuration
func (c *ActivityConfig) Validate() error {
	if c.ThresholdDB >= 0 || math.IsNaN(c.ThresholdDB) {
		return fmt.Errorf("threshold_db must be negative: %v", c.ThresholdDB)
	}
	if c.MinSilenceDuration < 0 || math.IsNaN(c.MinSilenceDuration) {
		return fmt.Errorf("min_silence_duration must not be negative: %v", c.MinSilenceDuration)
	}
	return nil
}

// ResolveWorkers maps 0 to GOMAXPROCS
func ResolveWorkers(workers int) int {
	if workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return workers
}
