package common

import (
	"fmt"
	"math"
)

// Window is a contiguous range of a sample sequence, [Start, Start+Length).
type Window struct {
	Index  int `json:"index"`
	Start  int `json:"start"`
	Length int `json:"length"`
}

// End returns the exclusive end offset of the window.
func (w Window) End() int {
	return w.Start + w.Length
}

// Slice returns the window's view of samples. The returned slice aliases
// samples and must be treated as read-only.
func (w Window) Slice(samples []float64) []float64 {
	return samples[w.Start:w.End():w.End()]
}

// Windower partitions a sample sequence into non-overlapping fixed-size
// windows. Trailing samples that do not fill a window are dropped.
type Windower struct {
	windowSize int
}

// NewWindower creates a windower producing windows of windowSize samples.
func NewWindower(windowSize int) (*Windower, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive: %d", windowSize)
	}
	return &Windower{windowSize: windowSize}, nil
}

// NewWindowerForDuration creates a windower for windows of the given
// duration, floor(duration*sampleRate) samples each.
func NewWindowerForDuration(durationSec float64, sampleRate int) (*Windower, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive: %d", sampleRate)
	}
	if durationSec <= 0 || math.IsNaN(durationSec) || math.IsInf(durationSec, 0) {
		return nil, fmt.Errorf("window duration must be positive: %v", durationSec)
	}
	return NewWindower(int(durationSec * float64(sampleRate)))
}

// GetWindowSize returns the window size in samples
func (w *Windower) GetWindowSize() int {
	return w.windowSize
}

// Split returns floor(total/size) windows. When total is shorter than one
// window the whole sequence becomes a single window.
func (w *Windower) Split(totalSamples int) []Window {
	if totalSamples <= 0 {
		return []Window{}
	}

	size := w.windowSize
	if totalSamples < size {
		size = totalSamples
	}

	count := totalSamples / size
	windows := make([]Window, count)
	for i := range count {
		windows[i] = Window{
			Index:  i,
			Start:  i * size,
			Length: size,
		}
	}

	return windows
}
