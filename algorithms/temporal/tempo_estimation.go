package temporal

import (
	"errors"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-tempo/algorithms/common"
	"github.com/RyanBlaney/sonido-tempo/algorithms/stats"
	"github.com/RyanBlaney/sonido-tempo/algorithms/wavelet"
)

// Per-window failures. None of them is fatal to the surrounding file.
var (
	// ErrNoAudioData means the coarsest approximation band was entirely zero.
	ErrNoAudioData = errors.New("no audio data")

	// ErrLagRangeOutOfBounds means the tempo bounds map to lags the
	// autocorrelation of this window does not reach.
	ErrLagRangeOutOfBounds = errors.New("tempo lag range exceeds autocorrelation length")

	// ErrNoPeak means the lag search found no usable maximum.
	ErrNoPeak = errors.New("no autocorrelation peak in lag range")

	// ErrEmptySignal means the window had no samples.
	ErrEmptySignal = errors.New("empty signal")
)

// Default tempo estimation parameters
const (
	DefaultLevels = 4
	DefaultMinBPM = 40.0
	DefaultMaxBPM = 220.0
)

// WindowEstimate is the tempo found in a single analysis window.
type WindowEstimate struct {
	BPM float64 `json:"bpm"`
	Lag int     `json:"lag"`
}

// TempoEstimation estimates tempo with a discrete wavelet transform and
// autocorrelation. Each level's detail band is turned into an envelope,
// decimated to the coarsest level's rate, and summed with the final
// approximation envelope. The autocorrelation peak within the lag range
// implied by the tempo bounds gives the beat period.
//
// References:
//   - Tzanetakis, G., Essl, G., Cook, P. (2001). "Audio Analysis using the
//     Discrete Wavelet Transform", Proc. WSES Int. Conf. Acoustics and Music
//
// A TempoEstimation holds no mutable state and may be shared by goroutines.
type TempoEstimation struct {
	levels   int
	minBPM   float64
	maxBPM   float64
	envelope *Envelope
	autocorr *stats.AutoCorrelation
}

// NewTempoEstimation creates an estimator with 4 levels, a 40-220 BPM range,
// default smoothing and direct autocorrelation.
func NewTempoEstimation() *TempoEstimation {
	return &TempoEstimation{
		levels:   DefaultLevels,
		minBPM:   DefaultMinBPM,
		maxBPM:   DefaultMaxBPM,
		envelope: NewEnvelope(),
		autocorr: stats.NewAutoCorrelation(),
	}
}

// NewTempoEstimationWithParams creates an estimator with explicit parameters.
// A nil envelope uses the default smoothing.
func NewTempoEstimationWithParams(levels int, minBPM, maxBPM float64, envelope *Envelope, method stats.CorrelationMethod) (*TempoEstimation, error) {
	if levels < 1 {
		return nil, fmt.Errorf("decomposition levels must be at least 1: %d", levels)
	}
	if minBPM <= 0 || math.IsNaN(minBPM) || math.IsInf(minBPM, 0) {
		return nil, fmt.Errorf("minimum BPM must be positive: %v", minBPM)
	}
	if maxBPM <= minBPM || math.IsInf(maxBPM, 0) {
		return nil, fmt.Errorf("maximum BPM %v must exceed minimum BPM %v", maxBPM, minBPM)
	}
	if envelope == nil {
		envelope = NewEnvelope()
	}

	return &TempoEstimation{
		levels:   levels,
		minBPM:   minBPM,
		maxBPM:   maxBPM,
		envelope: envelope,
		autocorr: stats.NewAutoCorrelationWithMethod(method),
	}, nil
}

// GetLevels returns the decomposition level count
func (te *TempoEstimation) GetLevels() int {
	return te.levels
}

// GetBPMRange returns the tempo search bounds
func (te *TempoEstimation) GetBPMRange() (minBPM, maxBPM float64) {
	return te.minBPM, te.maxBPM
}

// MaxDecimation returns 2^(levels-1), the decimation factor between the
// first detail band and the composite signal.
func (te *TempoEstimation) MaxDecimation() int {
	return 1 << (te.levels - 1)
}

// envelopeRate is the rate lags are converted with, rate/2^(levels-1).
func (te *TempoEstimation) envelopeRate(sampleRate int) float64 {
	return float64(sampleRate) / float64(te.MaxDecimation())
}

// LagToBPM converts a composite-signal lag to beats per minute as
// 60/lag * rate/2^(levels-1). The composite itself runs at rate/2^levels,
// so a beat period found at its own lag reads as twice its tempo.
func (te *TempoEstimation) LagToBPM(lag, sampleRate int) float64 {
	return 60.0 / float64(lag) * te.envelopeRate(sampleRate)
}

// LagRange returns the lag search range [minLag, maxLag) for the tempo
// bounds: minLag = floor(60/maxBPM * rate/decimation) and
// maxLag = floor(60/minBPM * rate/decimation). minLag is raised while its
// tempo would still exceed maxBPM so every reported tempo is in bounds.
func (te *TempoEstimation) LagRange(sampleRate int) (minLag, maxLag int) {
	rate := te.envelopeRate(sampleRate)
	minLag = int(math.Floor(60.0 / te.maxBPM * rate))
	maxLag = int(math.Floor(60.0 / te.minBPM * rate))

	for minLag < maxLag && (minLag <= 0 || te.LagToBPM(minLag, sampleRate) > te.maxBPM) {
		minLag++
	}

	return minLag, maxLag
}

// Composite builds the summed rhythm-energy signal of one window.
//
// Its length is floor(len(detail level 0)/decimation) + 1. Every level's
// envelope and the approximation envelope are truncated to it and added.
func (te *TempoEstimation) Composite(window []float64) ([]float64, error) {
	if len(window) == 0 {
		return nil, ErrEmptySignal
	}

	decomposition, err := wavelet.Decompose(window, te.levels)
	if err != nil {
		return nil, fmt.Errorf("decomposition failed: %w", err)
	}

	maxDecimation := te.MaxDecimation()
	composite := make([]float64, len(decomposition.Details[0])/maxDecimation+1)

	for level, detail := range decomposition.Details {
		stride := 1 << (te.levels - level - 1)
		AccumulateInto(composite, te.envelope.Band(detail, stride))
	}

	if common.AllZero(decomposition.Approximation) {
		return nil, ErrNoAudioData
	}
	AccumulateInto(composite, te.envelope.Band(decomposition.Approximation, 1))

	return composite, nil
}

// EstimateWindow estimates the tempo of a single window. Failures wrap
// ErrEmptySignal, ErrNoAudioData, ErrLagRangeOutOfBounds or ErrNoPeak.
func (te *TempoEstimation) EstimateWindow(window []float64, sampleRate int) (*WindowEstimate, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	composite, err := te.Composite(window)
	if err != nil {
		return nil, err
	}

	return te.EstimateComposite(composite, sampleRate)
}

// EstimateComposite searches the autocorrelation of a composite signal for
// the beat period.
func (te *TempoEstimation) EstimateComposite(composite []float64, sampleRate int) (*WindowEstimate, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	minLag, maxLag := te.LagRange(sampleRate)
	if minLag >= len(composite) || maxLag > len(composite) {
		return nil, fmt.Errorf("%w: lags [%d, %d) with %d available",
			ErrLagRangeOutOfBounds, minLag, maxLag, len(composite))
	}

	correlation := te.autocorr.Lags(composite, maxLag)

	offset, ok := FindPeak(correlation[minLag:maxLag])
	if !ok {
		return nil, ErrNoPeak
	}

	lag := offset + minLag
	if lag <= 0 {
		return nil, ErrNoPeak
	}

	return &WindowEstimate{
		BPM: te.LagToBPM(lag, sampleRate),
		Lag: lag,
	}, nil
}

// FindPeak returns the index of the largest-magnitude value. With m the
// largest magnitude, the first index holding +m wins; only when no value
// equals +m is the first index holding -m used. Empty input or NaN yields
// no peak.
func FindPeak(values []float64) (int, bool) {
	if len(values) == 0 {
		return 0, false
	}

	peak := 0.0
	for _, v := range values {
		if math.IsNaN(v) {
			return 0, false
		}
		peak = math.Max(peak, math.Abs(v))
	}

	for i, v := range values {
		if v == peak {
			return i, true
		}
	}
	for i, v := range values {
		if v == -peak {
			return i, true
		}
	}

	return 0, false
}
