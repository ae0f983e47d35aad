package stats

import (
	"fmt"
	"strings"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
)

// CorrelationMethod represents different computational approaches
type CorrelationMethod int

const (
	// Direct time-domain calculation, one dot product per lag
	TimeDomain CorrelationMethod = iota

	// FFT-based frequency domain (faster for large signals)
	FrequencyDomain

	// TimeDomain below the size threshold, FrequencyDomain above it
	AutoMethod
)

// DefaultAutoThreshold is the signal length above which AutoMethod switches
// to the frequency domain.
const DefaultAutoThreshold = 8192

func (m CorrelationMethod) String() string {
	switch m {
	case TimeDomain:
		return "direct"
	case FrequencyDomain:
		return "fft"
	case AutoMethod:
		return "auto"
	default:
		return "unknown"
	}
}

// ParseCorrelationMethod maps "direct", "fft" and "auto" to a method.
func ParseCorrelationMethod(name string) (CorrelationMethod, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "direct", "time", "":
		return TimeDomain, nil
	case "fft", "frequency":
		return FrequencyDomain, nil
	case "auto":
		return AutoMethod, nil
	default:
		return TimeDomain, fmt.Errorf("unknown correlation method %q", name)
	}
}

// AutoCorrelation computes the raw (unnormalized) autocorrelation of a
// signal, r[k] = sum_i x[i]*x[i+k].
//
// References:
//   - Oppenheim, A.V., Schafer, R.W. (2010). "Discrete-Time Signal Processing"
//   - Wiener–Khinchin theorem for the frequency-domain path
type AutoCorrelation struct {
	method        CorrelationMethod
	autoThreshold int
}

// NewAutoCorrelation creates a time-domain autocorrelation calculator
func NewAutoCorrelation() *AutoCorrelation {
	return &AutoCorrelation{
		method:        TimeDomain,
		autoThreshold: DefaultAutoThreshold,
	}
}

// NewAutoCorrelationWithMethod creates a calculator using the given method
func NewAutoCorrelationWithMethod(method CorrelationMethod) *AutoCorrelation {
	ac := NewAutoCorrelation()
	ac.method = method
	return ac
}

// Method returns the configured method.
func (ac *AutoCorrelation) Method() CorrelationMethod {
	return ac.method
}

// Full returns the two-sided autocorrelation with 2n-1 values. Index n-1
// holds lag zero; index n-1+k and n-1-k both hold lag k.
func (ac *AutoCorrelation) Full(signal []float64) []float64 {
	n := len(signal)
	if n == 0 {
		return []float64{}
	}

	causal := ac.Causal(signal)
	full := make([]float64, 2*n-1)
	for k, v := range causal {
		full[n-1+k] = v
		full[n-1-k] = v
	}
	return full
}

// Causal returns lags 0..n-1 of the autocorrelation, the half of Full
// starting at its midpoint.
func (ac *AutoCorrelation) Causal(signal []float64) []float64 {
	if len(signal) == 0 {
		return []float64{}
	}

	switch ac.resolveMethod(len(signal)) {
	case FrequencyDomain:
		return ac.computeFFT(signal)
	default:
		return ac.computeTimeDomain(signal)
	}
}

// Lags returns the first maxLag values of Causal. The direct method only
// evaluates those lags.
func (ac *AutoCorrelation) Lags(signal []float64, maxLag int) []float64 {
	n := len(signal)
	if maxLag > n {
		maxLag = n
	}
	if maxLag <= 0 {
		return []float64{}
	}

	if ac.resolveMethod(n) == FrequencyDomain {
		return ac.computeFFT(signal)[:maxLag]
	}

	result := make([]float64, maxLag)
	for lag := range maxLag {
		result[lag] = floats.Dot(signal[:n-lag], signal[lag:])
	}
	return result
}

func (ac *AutoCorrelation) resolveMethod(n int) CorrelationMethod {
	if ac.method != AutoMethod {
		return ac.method
	}
	if n > ac.autoThreshold {
		return FrequencyDomain
	}
	return TimeDomain
}

// computeTimeDomain evaluates every lag as a dot product of the overlap.
func (ac *AutoCorrelation) computeTimeDomain(signal []float64) []float64 {
	return ac.Lags(signal, len(signal))
}

// computeFFT zero-pads to a power of two of at least 2n-1 so the circular
// correlation equals the linear one, then takes IFFT(|X|^2).
func (ac *AutoCorrelation) computeFFT(signal []float64) []float64 {
	n := len(signal)
	size := nextPowerOf2(2*n - 1)

	padded := make([]float64, size)
	copy(padded, signal)

	spectrum := fft.FFTReal(padded)
	for i, c := range spectrum {
		re, im := real(c), imag(c)
		spectrum[i] = complex(re*re+im*im, 0)
	}

	inverse := fft.IFFT(spectrum)
	result := make([]float64, n)
	for i := range n {
		result[i] = real(inverse[i])
	}
	return result
}

// nextPowerOf2 returns the next power of 2 greater than or equal to n
func nextPowerOf2(n int) int {
	if n <= 0 {
		return 1
	}

	power := 1
	for power < n {
		power <<= 1
	}
	return power
}
