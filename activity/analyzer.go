package activity

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/RyanBlaney/sonido-tempo/algorithms/temporal"
	"github.com/RyanBlaney/sonido-tempo/logging"
	"github.com/RyanBlaney/sonido-tempo/tempo/config"
	"github.com/RyanBlaney/sonido-tempo/transcode"
)

// SummaryFileName is the folder summary written next to per-file reports
const SummaryFileName = "audio_analysis_results.json"

// AudioDecoder produces mono samples for a file
type AudioDecoder interface {
	DecodeFile(ctx context.Context, path string) (*transcode.AudioData, error)
}

// Report describes where a recording is active and where it is silent
type Report struct {
	FileName             string              `json:"file_name"`
	Duration             float64             `json:"duration"`
	SilenceIntervals     []temporal.Interval `json:"silence_intervals"`
	ActiveIntervals      []temporal.Interval `json:"active_intervals"`
	ActivePercentage     float64             `json:"active_percentage"`
	TotalActiveDuration  float64             `json:"total_active_duration"`
	TotalSilenceDuration float64             `json:"total_silence_duration"`
}

// SummaryRow is one file of a folder summary
type SummaryRow struct {
	FileName             string  `json:"file_name"`
	Duration             float64 `json:"duration"`
	ActivePercentage     float64 `json:"active_percentage"`
	TotalActiveDuration  float64 `json:"total_active_duration"`
	TotalSilenceDuration float64 `json:"total_silence_duration"`
}

// Summary lists files by descending active percentage
type Summary struct {
	TotalFiles int          `json:"total_files"`
	Files      []SummaryRow `json:"files"`
}

// Analyzer measures activity with energy-based silence detection. It is
// independent of tempo detection.
type Analyzer struct {
	config   *config.ActivityConfig
	detector *temporal.SilenceDetection
	decoder  AudioDecoder
	logger   logging.Logger
}

// NewAnalyzer creates an analyzer. A nil config uses DefaultActivityConfig
// and a nil decoder uses transcode.NewDecoder(nil).
func NewAnalyzer(cfg *config.ActivityConfig, decoder AudioDecoder) (*Analyzer, error) {
	if cfg == nil {
		cfg = config.DefaultActivityConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid activity config: %w", err)
	}
	if decoder == nil {
		decoder = transcode.NewDecoder(nil)
	}

	detector, err := temporal.NewSilenceDetectionWithParams(cfg.ThresholdDB, cfg.MinSilenceDuration)
	if err != nil {
		return nil, err
	}

	return &Analyzer{
		config:   cfg,
		detector: detector,
		decoder:  decoder,
		logger: logging.WithFields(logging.Fields{
			"component": "activity_analyzer",
		}),
	}, nil
}

// AnalyzeSamples builds the activity report of a mono sample sequence
func (a *Analyzer) AnalyzeSamples(name string, samples []float64, sampleRate int) (*Report, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	silences, err := a.detector.DetectSilence(samples, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("silence detection failed: %w", err)
	}

	duration := float64(len(samples)) / float64(sampleRate)
	active := temporal.ActiveIntervals(duration, silences)

	report := &Report{
		FileName:             name,
		Duration:             duration,
		SilenceIntervals:     silences,
		ActiveIntervals:      active,
		TotalActiveDuration:  temporal.TotalDuration(active),
		TotalSilenceDuration: temporal.TotalDuration(silences),
	}
	if duration > 0 {
		report.ActivePercentage = report.TotalActiveDuration / duration * 100
	}

	return report, nil
}

// AnalyzeFile decodes a file and builds its activity report
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*Report, error) {
	logger := a.logger.WithFields(logging.Fields{
		"function": "AnalyzeFile",
		"path":     path,
	})

	audioData, err := a.decoder.DecodeFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	report, err := a.AnalyzeSamples(filepath.Base(path), audioData.PCM, audioData.SampleRate)
	if err != nil {
		return nil, err
	}

	logger.Debug("Activity analyzed", logging.Fields{
		"duration":          report.Duration,
		"silence_intervals": len(report.SilenceIntervals),
		"active_percentage": report.ActivePercentage,
	})

	return report, nil
}

// Summarize collects reports into a summary ordered by descending active
// percentage, then by file name. Nil reports are skipped.
func Summarize(reports []*Report) *Summary {
	rows := make([]SummaryRow, 0, len(reports))
	for _, r := range reports {
		if r == nil {
			continue
		}
		rows = append(rows, SummaryRow{
			FileName:             r.FileName,
			Duration:             r.Duration,
			ActivePercentage:     r.ActivePercentage,
			TotalActiveDuration:  r.TotalActiveDuration,
			TotalSilenceDuration: r.TotalSilenceDuration,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ActivePercentage != rows[j].ActivePercentage {
			return rows[i].ActivePercentage > rows[j].ActivePercentage
		}
		return rows[i].FileName < rows[j].FileName
	})

	return &Summary{
		TotalFiles: len(rows),
		Files:      rows,
	}
}
