package temporal

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Default silence detection parameters
const (
	DefaultSilenceFrameDuration = 0.025 // 25ms frames
	DefaultSilenceHopDuration   = 0.010 // 10ms hop
	DefaultSilenceThresholdDB   = -40.0
	DefaultMinSilenceDuration   = 0.5
	DefaultSilenceAmin          = 1e-5
	DefaultSilenceTopDB         = 80.0
)

// Interval is a time range in seconds.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End - Start.
func (iv Interval) Duration() float64 {
	return iv.End - iv.Start
}

// SilenceDetection finds silent regions by thresholding frame RMS in dB
// relative to the loudest frame.
type SilenceDetection struct {
	thresholdDB        float64
	minSilenceDuration float64
	frameDuration      float64
	hopDuration        float64
}

// NewSilenceDetection creates a new silence detector with default parameters
func NewSilenceDetection() *SilenceDetection {
	return &SilenceDetection{
		thresholdDB:        DefaultSilenceThresholdDB,
		minSilenceDuration: DefaultMinSilenceDuration,
		frameDuration:      DefaultSilenceFrameDuration,
		hopDuration:        DefaultSilenceHopDuration,
	}
}

// NewSilenceDetectionWithParams creates a silence detector with an explicit
// threshold (dB below the loudest frame) and minimum silence duration.
func NewSilenceDetectionWithParams(thresholdDB, minSilenceDuration float64) (*SilenceDetection, error) {
	if thresholdDB >= 0 || math.IsNaN(thresholdDB) {
		return nil, fmt.Errorf("silence threshold must be negative dB: %v", thresholdDB)
	}
	if minSilenceDuration < 0 || math.IsNaN(minSilenceDuration) {
		return nil, fmt.Errorf("minimum silence duration must not be negative: %v", minSilenceDuration)
	}

	sd := NewSilenceDetection()
	sd.thresholdDB = thresholdDB
	sd.minSilenceDuration = minSilenceDuration
	return sd, nil
}

// DetectSilence returns silent intervals of at least the minimum duration,
// in ascending order. A run of silent frames [a, b) spans a*hop to b*hop
// seconds, clipped to the signal duration. A signal with no frame above the
// amplitude floor is silent throughout.
func (sd *SilenceDetection) DetectSilence(signal []float64, sampleRate int) ([]Interval, error) {
	energy, err := NewEnergyForDurations(sd.frameDuration, sd.hopDuration, sampleRate)
	if err != nil {
		return nil, err
	}
	if len(signal) == 0 {
		return []Interval{}, nil
	}

	duration := float64(len(signal)) / float64(sampleRate)
	rms := energy.ComputeRMS(signal)

	silent := make([]bool, len(rms))
	if floats.Max(rms) <= DefaultSilenceAmin {
		for i := range silent {
			silent[i] = true
		}
	} else {
		db := energy.ComputeRMSDB(signal, DefaultSilenceAmin, DefaultSilenceTopDB)
		for i, v := range db {
			silent[i] = v < sd.thresholdDB
		}
	}

	intervals := []Interval{}
	runStart := -1
	flush := func(end int) {
		iv := Interval{
			Start: energy.FrameTime(runStart),
			End:   math.Min(energy.FrameTime(end), duration),
		}
		if iv.Duration() >= sd.minSilenceDuration && iv.Duration() > 0 {
			intervals = append(intervals, iv)
		}
		runStart = -1
	}

	for i, isSilent := range silent {
		switch {
		case isSilent && runStart == -1:
			runStart = i
		case !isSilent && runStart != -1:
			flush(i)
		}
	}
	if runStart != -1 {
		flush(len(silent))
	}

	return intervals, nil
}

// ActiveIntervals returns the complement of the silent intervals over
// [0, duration].
func ActiveIntervals(duration float64, silences []Interval) []Interval {
	if duration <= 0 {
		return []Interval{}
	}
	if len(silences) == 0 {
		return []Interval{{Start: 0, End: duration}}
	}

	sorted := make([]Interval, len(silences))
	copy(sorted, silences)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	active := []Interval{}
	current := 0.0
	for _, silence := range sorted {
		if current < silence.Start {
			active = append(active, Interval{Start: current, End: silence.Start})
		}
		current = math.Max(current, silence.End)
	}
	if current < duration {
		active = append(active, Interval{Start: current, End: duration})
	}

	return active
}

// TotalDuration sums the durations of the intervals
func TotalDuration(intervals []Interval) float64 {
	total := 0.0
	for _, iv := range intervals {
		total += iv.Duration()
	}
	return total
}
