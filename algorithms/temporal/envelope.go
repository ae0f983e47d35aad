package temporal

import (
	"github.com/RyanBlaney/sonido-tempo/algorithms/common"
	"github.com/RyanBlaney/sonido-tempo/algorithms/filters"
	"gonum.org/v1/gonum/floats"
)

// Envelope turns wavelet band coefficients into rhythm-energy envelopes:
// one-pole smoothing, decimation, full-wave rectification, then removal of
// the mean.
type Envelope struct {
	smoothing filters.Smoothing // template, copied for every band
}

// NewEnvelope creates an envelope extractor with the default smoothing
// coefficients (gain 0.01, feedback 0.99).
func NewEnvelope() *Envelope {
	return &Envelope{smoothing: *filters.NewSmoothing()}
}

// NewEnvelopeWithCoefficients creates an envelope extractor with explicit
// smoothing coefficients.
func NewEnvelopeWithCoefficients(gain, feedback float64) (*Envelope, error) {
	smoothing, err := filters.NewSmoothingWithCoefficients(gain, feedback)
	if err != nil {
		return nil, err
	}
	return &Envelope{smoothing: *smoothing}, nil
}

// GetCoefficients returns the smoothing gain and feedback.
func (e *Envelope) GetCoefficients() (gain, feedback float64) {
	return e.smoothing.GetCoefficients()
}

// Band computes the envelope of one band, keeping every stride-th smoothed
// coefficient. A stride of 1 keeps them all. The input is not modified.
func (e *Envelope) Band(coeffs []float64, stride int) []float64 {
	if len(coeffs) == 0 {
		return []float64{}
	}
	if stride < 1 {
		stride = 1
	}

	// Each call owns its filter state so envelopes can be computed concurrently.
	smoother := e.smoothing
	smoothed := smoother.ProcessBuffer(coeffs)

	envelope := make([]float64, 0, (len(smoothed)+stride-1)/stride)
	for i := 0; i < len(smoothed); i += stride {
		v := smoothed[i]
		if v < 0 {
			v = -v
		}
		envelope = append(envelope, v)
	}

	floats.AddConst(-common.Mean(envelope), envelope)

	return envelope
}

// AccumulateInto adds the first len(dst) values of envelope into dst. When
// envelope is shorter only the overlapping prefix is added.
func AccumulateInto(dst, envelope []float64) {
	n := min(len(dst), len(envelope))
	floats.Add(dst[:n], envelope[:n])
}
