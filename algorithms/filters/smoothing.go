package filters

import (
	"fmt"
	"math"
)

// Smoothing implements a first-order recursive low-pass filter (leaky
// integrator) used to turn rectifiable band signals into slow envelopes.
//
// Difference equation:
//
//	y[n] = gain*x[n] + feedback*y[n-1]
//
// References:
//   - Julius O. Smith III, "Introduction to Digital Filters with Audio Applications"
//     https://ccrma.stanford.edu/~jos/filters/One_Pole.html
//   - Tzanetakis, G., Essl, G., Cook, P. (2001). "Audio Analysis using the
//     Discrete Wavelet Transform", used gain 0.01 and feedback 0.99 on each band.
type Smoothing struct {
	gain     float64 // b0
	feedback float64 // -a1, pole location (0 <= feedback < 1)

	y1 float64 // Previous output sample y[n-1]
}

// Default coefficients for wavelet band envelopes.
const (
	DefaultSmoothingGain     = 0.01
	DefaultSmoothingFeedback = 0.99
)

// NewSmoothing creates a smoother with the default envelope coefficients.
func NewSmoothing() *Smoothing {
	return &Smoothing{
		gain:     DefaultSmoothingGain,
		feedback: DefaultSmoothingFeedback,
	}
}

// NewSmoothingWithCoefficients creates a smoother with explicit coefficients.
//
// Parameters:
//   - gain: input weight b0, must be positive
//   - feedback: pole location, 0 <= feedback < 1 keeps the filter stable
func NewSmoothingWithCoefficients(gain, feedback float64) (*Smoothing, error) {
	if err := ValidateSmoothing(gain, feedback); err != nil {
		return nil, err
	}
	return &Smoothing{gain: gain, feedback: feedback}, nil
}

// ValidateSmoothing checks that the coefficients describe a stable low-pass.
func ValidateSmoothing(gain, feedback float64) error {
	if gain <= 0 || math.IsNaN(gain) || math.IsInf(gain, 0) {
		return fmt.Errorf("smoothing gain must be positive and finite: %v", gain)
	}
	if feedback < 0 || feedback >= 1 || math.IsNaN(feedback) {
		return fmt.Errorf("smoothing feedback must be in [0, 1): %v", feedback)
	}
	return nil
}

// Process applies the filter to a single sample.
func (s *Smoothing) Process(input float64) float64 {
	output := s.gain*input + s.feedback*s.y1
	s.y1 = output
	return output
}

// ProcessBuffer filters an entire buffer into a new slice. The filter state
// is reset first so every buffer starts from rest.
func (s *Smoothing) ProcessBuffer(input []float64) []float64 {
	s.Reset()
	output := make([]float64, len(input))
	for i, sample := range input {
		output[i] = s.Process(sample)
	}
	return output
}

// Reset clears the filter's internal state.
func (s *Smoothing) Reset() {
	s.y1 = 0.0
}

// GetCoefficients returns gain and feedback.
func (s *Smoothing) GetCoefficients() (gain, feedback float64) {
	return s.gain, s.feedback
}

// GetDCGain returns the steady-state gain gain/(1-feedback).
func (s *Smoothing) GetDCGain() float64 {
	return s.gain / (1.0 - s.feedback)
}

// GetTimeConstant returns the time constant in samples, -1/ln(feedback).
func (s *Smoothing) GetTimeConstant() float64 {
	if s.feedback <= 0 {
		return 0.0
	}
	return -1.0 / math.Log(s.feedback)
}

// GetFrequencyResponse computes the magnitude and phase response at the
// given frequency.
//
// H(e^jw) = gain / (1 - feedback*e^-jw)
func (s *Smoothing) GetFrequencyResponse(frequency float64, sampleRate int) (magnitude, phase float64) {
	w := 2.0 * math.Pi * frequency / float64(sampleRate)

	denReal := 1.0 - s.feedback*math.Cos(w)
	denImag := s.feedback * math.Sin(w)

	magnitude = s.gain / math.Sqrt(denReal*denReal+denImag*denImag)
	phase = -math.Atan2(denImag, denReal)

	return magnitude, phase
}
