package wavelet

import (
	"fmt"
)

// Daubechies-4 decomposition filters (8 taps, four vanishing moments).
//
// Coefficients are the orthonormal scaling filter as tabulated by
// Daubechies, "Ten Lectures on Wavelets" (1992), Table 6.1, stored in
// analysis order: DecLow is the time-reversed scaling filter and DecHigh the
// quadrature mirror of it.
var (
	DecLow = [8]float64{
		-0.010597401784997278,
		0.032883011666982945,
		0.030841381835986965,
		-0.18703481171888114,
		-0.02798376941698385,
		0.6308807679295904,
		0.7148465705525415,
		0.23037781330885523,
	}

	DecHigh = [8]float64{
		-0.23037781330885523,
		0.7148465705525415,
		-0.6308807679295904,
		-0.02798376941698385,
		0.18703481171888114,
		0.030841381835986965,
		-0.032883011666982945,
		-0.010597401784997278,
	}
)

// FilterLength is the number of taps in each db4 filter.
const FilterLength = len(DecLow)

// OutputLength returns the number of coefficients a single-level DWT produces
// for an input of n samples with symmetric extension.
func OutputLength(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + FilterLength - 1) / 2
}

// DWT performs one level of the db4 discrete wavelet transform and returns
// the approximation (low band) and detail (high band) coefficients.
//
// The signal is extended by half-sample symmetric reflection
// (x[-1] = x[0], x[n] = x[n-1]), each filter is convolved with the extended
// signal and the result is kept at odd positions. Inputs shorter than the
// filter are reflected repeatedly.
func DWT(signal []float64) (approx, detail []float64, err error) {
	n := len(signal)
	if n == 0 {
		return nil, nil, fmt.Errorf("wavelet: empty signal")
	}

	outLen := OutputLength(n)
	approx = make([]float64, outLen)
	detail = make([]float64, outLen)

	for o := range outLen {
		i := 2*o + 1
		var lo, hi float64
		for j := range FilterLength {
			x := signal[reflect(i-j, n)]
			lo += DecLow[j] * x
			hi += DecHigh[j] * x
		}
		approx[o] = lo
		detail[o] = hi
	}

	return approx, detail, nil
}

// reflect maps an index of the symmetrically extended signal back into
// [0, n). The extension is periodic with period 2n.
func reflect(idx, n int) int {
	period := 2 * n
	m := idx % period
	if m < 0 {
		m += period
	}
	if m >= n {
		m = period - 1 - m
	}
	return m
}

// Decomposition holds a multi-level wavelet decomposition. Details[0] is the
// finest band.
type Decomposition struct {
	Details       [][]float64
	Approximation []float64
}

// Decompose runs DWT repeatedly on the approximation signal, starting from
// the raw input, for the given number of levels.
func Decompose(signal []float64, levels int) (*Decomposition, error) {
	if levels <= 0 {
		return nil, fmt.Errorf("wavelet: levels must be positive, got %d", levels)
	}

	dec := &Decomposition{
		Details: make([][]float64, 0, levels),
	}

	current := signal
	for level := range levels {
		approx, detail, err := DWT(current)
		if err != nil {
			return nil, fmt.Errorf("wavelet: level %d: %w", level, err)
		}
		dec.Details = append(dec.Details, detail)
		current = approx
	}
	dec.Approximation = current

	return dec, nil
}
