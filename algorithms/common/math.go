package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic numeric helpers shared by the tempo and activity algorithms

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return math.Sqrt(floats.Dot(data, data) / float64(len(data)))
}

// AllZero reports whether every value is exactly zero. Empty input counts
// as all zero.
func AllZero(data []float64) bool {
	for _, v := range data {
		if v != 0 {
			return false
		}
	}
	return true
}

// RoundTo rounds value to the given number of decimal places, halves away
// from zero.
func RoundTo(value float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(value*scale) / scale
}

// AmplitudeToDB converts amplitudes to decibels relative to ref:
// 20*log10(max(amin, x)) - 20*log10(max(amin, ref)), floored at
// max(result) - topDB when topDB > 0.
func AmplitudeToDB(amplitudes []float64, ref, amin, topDB float64) []float64 {
	if len(amplitudes) == 0 {
		return []float64{}
	}

	refDB := 20.0 * math.Log10(math.Max(amin, ref))
	db := make([]float64, len(amplitudes))
	for i, a := range amplitudes {
		db[i] = 20.0*math.Log10(math.Max(amin, a)) - refDB
	}

	if topDB > 0 {
		floor := floats.Max(db) - topDB
		for i := range db {
			if db[i] < floor {
				db[i] = floor
			}
		}
	}

	return db
}
