package stats

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SummaryStats contains basic summary statistics
type SummaryStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
}

// Percentile computes the given percentile (0-100) by linear interpolation
// between closest ranks, h = (n-1)*q. The input is not modified.
//
// References:
//   - Hyndman, R.J., Fan, Y. (1996). "Sample Quantiles in Statistical Packages"
//     The American Statistician, 50(4), 361-365 (definition 7)
func Percentile(data []float64, percentile float64) (float64, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty data")
	}
	if percentile < 0 || percentile > 100 || math.IsNaN(percentile) {
		return 0, fmt.Errorf("percentile must be between 0 and 100")
	}

	values := make([]float64, len(data))
	copy(values, data)
	sort.Float64s(values)

	return linearInterpolation(values, percentile/100.0), nil
}

// Median returns the middle value, averaging the two central values for
// even-length input. The result does not depend on input order.
func Median(data []float64) (float64, error) {
	return Percentile(data, 50)
}

func linearInterpolation(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}

	h := float64(n-1) * q
	lower := int(math.Floor(h))
	upper := int(math.Ceil(h))
	if upper >= n {
		return sorted[n-1]
	}
	if lower == upper {
		return sorted[lower]
	}

	fraction := h - float64(lower)
	return sorted[lower] + fraction*(sorted[upper]-sorted[lower])
}

// Summarize computes count, mean, median, extremes and the sample standard
// deviation of data.
func Summarize(data []float64) (*SummaryStats, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	median, err := Median(data)
	if err != nil {
		return nil, err
	}

	summary := &SummaryStats{
		Count:  len(data),
		Mean:   stat.Mean(data, nil),
		Median: median,
		Min:    floats.Min(data),
		Max:    floats.Max(data),
	}
	if len(data) > 1 {
		summary.StdDev = stat.StdDev(data, nil)
	}

	return summary, nil
}
