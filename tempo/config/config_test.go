package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTempoConfigValid(t *testing.T) {
	cfg := DefaultTempoConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Levels != 4 || cfg.MinBPM != 40 || cfg.MaxBPM != 220 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestTempoPreset(t *testing.T) {
	tests := map[string]float64{
		PresetBatch:   10,
		PresetSegment: 3,
	}
	for name, want := range tests {
		cfg, err := TempoPreset(name)
		if err != nil {
			t.Fatalf("TempoPreset(%q): %v", name, err)
		}
		if cfg.WindowSeconds != want {
			t.Errorf("%s window = %v, want %v", name, cfg.WindowSeconds, want)
		}
	}

	if _, err := TempoPreset("streaming"); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestTempoConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TempoConfig)
	}{
		{"zero window", func(c *TempoConfig) { c.WindowSeconds = 0 }},
		{"zero levels", func(c *TempoConfig) { c.Levels = 0 }},
		{"inverted bounds", func(c *TempoConfig) { c.MinBPM, c.MaxBPM = 200, 100 }},
		{"unstable smoothing", func(c *TempoConfig) { c.SmoothingFeedback = 1.0 }},
		{"unknown method", func(c *TempoConfig) { c.CorrelationMethod = "wavelet" }},
		{"negative workers", func(c *TempoConfig) { c.Workers = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultTempoConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestTempoConfigKey(t *testing.T) {
	a := DefaultTempoConfig()
	b := DefaultTempoConfig()
	b.Workers = 12
	if a.Key() != b.Key() {
		t.Error("worker count changed the cache key")
	}

	b.WindowSeconds = 10
	if a.Key() == b.Key() {
		t.Error("window size did not change the cache key")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"log_level":"debug","tempo":{"window_seconds":10,"min_bpm":60},"activity":null}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.Tempo.WindowSeconds != 10 || cfg.Tempo.MinBPM != 60 {
		t.Errorf("tempo overrides not applied: %+v", cfg.Tempo)
	}
	if cfg.Tempo.MaxBPM != 220 || cfg.Tempo.Levels != 4 {
		t.Errorf("unset tempo fields lost their defaults: %+v", cfg.Tempo)
	}
	if cfg.Activity == nil || cfg.Activity.ThresholdDB != -40 {
		t.Errorf("null activity section not defaulted: %+v", cfg.Activity)
	}
	if cfg.Decoder == nil || cfg.Decoder.FFmpegPath != "ffmpeg" {
		t.Errorf("decoder section missing: %+v", cfg.Decoder)
	}
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"tempo":{"max_bpm":10}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("expected validation error")
	}
}

func TestResolveWorkers(t *testing.T) {
	if ResolveWorkers(3) != 3 {
		t.Error("explicit worker count not kept")
	}
	if ResolveWorkers(0) < 1 {
		t.Error("default worker count must be at least 1")
	}
}
