package tempo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RyanBlaney/sonido-tempo/algorithms/temporal"
	"github.com/RyanBlaney/sonido-tempo/transcode"
)

var (
	// ErrNoBPMDetected means no window of a file or segment produced an
	// estimate.
	ErrNoBPMDetected = errors.New("no BPM detected")

	// ErrInvalidRange means a segment's bounds are empty, reversed or
	// outside the audio.
	ErrInvalidRange = errors.New("invalid segment range")

	// Window-level failures, re-exported for errors.Is on window records.
	ErrNoAudioData         = temporal.ErrNoAudioData
	ErrLagRangeOutOfBounds = temporal.ErrLagRangeOutOfBounds
	ErrNoPeak              = temporal.ErrNoPeak
	ErrEmptySignal         = temporal.ErrEmptySignal
)

// WindowState is the lifecycle of one analysis window
type WindowState string

const (
	WindowPending    WindowState = "pending"
	WindowAggregated WindowState = "aggregated" // composite signal built
	WindowEstimated  WindowState = "estimated"
	WindowFailed     WindowState = "failed"
)

// WindowResult records the outcome of one window
type WindowResult struct {
	Index     int         `json:"index"`
	StartTime float64     `json:"start_time"`
	EndTime   float64     `json:"end_time"`
	State     WindowState `json:"state"`
	BPM       *float64    `json:"bpm"`
	Lag       int         `json:"lag,omitempty"`
	Error     string      `json:"error,omitempty"`

	err error
}

// Err returns the window's failure, nil when it was estimated
func (w *WindowResult) Err() error {
	return w.err
}

// Result is the aggregated tempo of a sample sequence. BPM is nil when no
// window produced an estimate.
type Result struct {
	BPM              *float64       `json:"bpm"`
	Detected         bool           `json:"detected"`
	SampleRate       int            `json:"sample_rate"`
	WindowSamples    int            `json:"window_samples"`
	TotalWindows     int            `json:"total_windows"`
	EstimatedWindows int            `json:"estimated_windows"`
	Windows          []WindowResult `json:"windows,omitempty"`
}

// Err returns ErrNoBPMDetected when the result has no BPM
func (r *Result) Err() error {
	if r == nil || !r.Detected {
		return ErrNoBPMDetected
	}
	return nil
}

// Value returns the BPM and whether it is present
func (r *Result) Value() (float64, bool) {
	if r == nil || r.BPM == nil {
		return 0, false
	}
	return *r.BPM, true
}

// Estimates returns the BPM of every estimated window, in window order
func (r *Result) Estimates() []float64 {
	estimates := make([]float64, 0, r.EstimatedWindows)
	for _, w := range r.Windows {
		if w.BPM != nil {
			estimates = append(estimates, *w.BPM)
		}
	}
	return estimates
}

// FileResult is the per-file BPM report
type FileResult struct {
	AudioFile string                 `json:"audio_file"`
	BPM       *float64               `json:"bpm"`
	Tags      *transcode.TagMetadata `json:"tags,omitempty"`
	Duration  float64                `json:"duration,omitempty"`

	Result *Result `json:"-"`
}

// Detected reports whether the file has a BPM
func (f *FileResult) Detected() bool {
	return f != nil && f.BPM != nil
}

// SegmentResult is the tempo of one time range of a file
type SegmentResult struct {
	SegmentIndex int      `json:"segment_index"`
	StartTime    float64  `json:"start_time"`
	EndTime      float64  `json:"end_time"`
	Duration     float64  `json:"duration"`
	BPM          *float64 `json:"bpm"`
	Error        string   `json:"error,omitempty"`

	Result *Result `json:"-"`
}

// SegmentReport is the tempo of every segment of a file
type SegmentReport struct {
	AudioFile     string          `json:"audio_file"`
	TotalSegments int             `json:"total_segments"`
	Segments      []SegmentResult `json:"segments"`
}

// DetectedSegments counts segments with a BPM
func (r *SegmentReport) DetectedSegments() int {
	count := 0
	for _, s := range r.Segments {
		if s.BPM != nil {
			count++
		}
	}
	return count
}

func float64Ptr(v float64) *float64 {
	return &v
}

// WriteJSON writes v as indented JSON, creating parent directories.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
