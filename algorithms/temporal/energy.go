package temporal

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-tempo/algorithms/common"
	"gonum.org/v1/gonum/floats"
)

// Energy computes frame-based RMS energy. Frames are centred: the signal is
// zero-padded by frameSize/2 on both sides so frame i is centred on sample
// i*hopSize.
type Energy struct {
	frameSize  int
	hopSize    int
	sampleRate int
}

// NewEnergy creates a new energy calculator
func NewEnergy(frameSize, hopSize, sampleRate int) *Energy {
	return &Energy{
		frameSize:  frameSize,
		hopSize:    hopSize,
		sampleRate: sampleRate,
	}
}

// NewEnergyForDurations creates an energy calculator from frame and hop
// durations in seconds.
func NewEnergyForDurations(frameSec, hopSec float64, sampleRate int) (*Energy, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive: %d", sampleRate)
	}

	frameSize := int(frameSec * float64(sampleRate))
	hopSize := int(hopSec * float64(sampleRate))
	if frameSize <= 0 || hopSize <= 0 {
		return nil, fmt.Errorf("frame (%v s) and hop (%v s) must each cover at least one sample at %d Hz",
			frameSec, hopSec, sampleRate)
	}

	return NewEnergy(frameSize, hopSize, sampleRate), nil
}

// GetFrameSize returns the frame size in samples
func (e *Energy) GetFrameSize() int {
	return e.frameSize
}

// GetHopSize returns the hop size in samples
func (e *Energy) GetHopSize() int {
	return e.hopSize
}

// NumFrames returns the number of centred frames for n samples.
func (e *Energy) NumFrames(n int) int {
	if n <= 0 || e.hopSize <= 0 {
		return 0
	}
	return 1 + n/e.hopSize
}

// FrameTime returns the centre time of frame i in seconds.
func (e *Energy) FrameTime(frame int) float64 {
	return float64(frame*e.hopSize) / float64(e.sampleRate)
}

// ComputeRMS calculates the RMS of every centred frame. Samples outside the
// signal count as zero.
func (e *Energy) ComputeRMS(signal []float64) []float64 {
	numFrames := e.NumFrames(len(signal))
	if numFrames == 0 || e.frameSize <= 0 {
		return []float64{}
	}

	half := e.frameSize / 2
	energies := make([]float64, numFrames)

	for i := range numFrames {
		start := i*e.hopSize - half
		end := start + e.frameSize

		lo := max(start, 0)
		hi := min(end, len(signal))
		if lo >= hi {
			continue
		}

		frame := signal[lo:hi]
		energies[i] = math.Sqrt(floats.Dot(frame, frame) / float64(e.frameSize))
	}

	return energies
}

// ComputeRMSDB calculates frame RMS in dB relative to the loudest frame.
// Values are floored at amin before conversion and clipped at topDB below
// the peak.
func (e *Energy) ComputeRMSDB(signal []float64, amin, topDB float64) []float64 {
	energies := e.ComputeRMS(signal)
	if len(energies) == 0 {
		return []float64{}
	}
	return common.AmplitudeToDB(energies, floats.Max(energies), amin, topDB)
}
