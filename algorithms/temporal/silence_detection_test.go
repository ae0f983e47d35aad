package temporal

import (
	"math"
	"testing"
)

func toneWithGap(rate int, toneSec, gapSec float64) []float64 {
	tone := int(toneSec * float64(rate))
	gap := int(gapSec * float64(rate))
	signal := make([]float64, 2*tone+gap)
	for i := range signal {
		if i < tone || i >= tone+gap {
			signal[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate))
		}
	}
	return signal
}

func TestEnergyComputeRMS(t *testing.T) {
	e := NewEnergy(200, 80, 8000)
	signal := make([]float64, 1000)
	for i := range signal {
		signal[i] = 1
	}

	rms := e.ComputeRMS(signal)
	if len(rms) != e.NumFrames(len(signal)) || len(rms) != 13 {
		t.Fatalf("frames = %d, want 13", len(rms))
	}

	// Frame 0 is centred on sample 0, so half of it is padding.
	if math.Abs(rms[0]-math.Sqrt(0.5)) > 1e-12 {
		t.Errorf("rms[0] = %v, want %v", rms[0], math.Sqrt(0.5))
	}
	if math.Abs(rms[5]-1) > 1e-12 {
		t.Errorf("rms[5] = %v, want 1", rms[5])
	}

	if got := e.FrameTime(5); math.Abs(got-0.05) > 1e-12 {
		t.Errorf("FrameTime(5) = %v, want 0.05", got)
	}
}

func TestEnergyForDurationsInvalid(t *testing.T) {
	if _, err := NewEnergyForDurations(0.025, 0.010, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := NewEnergyForDurations(0.025, 0.010, 50); err == nil {
		t.Error("expected error when hop is shorter than one sample")
	}
}

func TestDetectSilenceGap(t *testing.T) {
	const rate = 8000
	signal := toneWithGap(rate, 1, 2)

	sd := NewSilenceDetection()
	silences, err := sd.DetectSilence(signal, rate)
	if err != nil {
		t.Fatalf("DetectSilence: %v", err)
	}
	if len(silences) != 1 {
		t.Fatalf("got %d silent intervals, want 1: %v", len(silences), silences)
	}

	gap := silences[0]
	if gap.Start < 1.0 || gap.Start > 1.05 {
		t.Errorf("silence starts at %v, want about 1.0", gap.Start)
	}
	if gap.End < 2.95 || gap.End > 3.0 {
		t.Errorf("silence ends at %v, want about 3.0", gap.End)
	}

	active := ActiveIntervals(4, silences)
	if len(active) != 2 {
		t.Fatalf("got %d active intervals, want 2: %v", len(active), active)
	}
	if active[0].Start != 0 || active[0].End != gap.Start || active[1].Start != gap.End || active[1].End != 4 {
		t.Errorf("unexpected active intervals: %v", active)
	}

	total := TotalDuration(silences) + TotalDuration(active)
	if math.Abs(total-4) > 1e-9 {
		t.Errorf("silence and activity cover %v s, want 4", total)
	}
}

func TestDetectSilenceMinimumDuration(t *testing.T) {
	const rate = 8000
	signal := toneWithGap(rate, 1, 0.3)

	sd, err := NewSilenceDetectionWithParams(-40, 0.5)
	if err != nil {
		t.Fatalf("NewSilenceDetectionWithParams: %v", err)
	}
	silences, err := sd.DetectSilence(signal, rate)
	if err != nil {
		t.Fatalf("DetectSilence: %v", err)
	}
	if len(silences) != 0 {
		t.Errorf("short gap reported as silence: %v", silences)
	}
}

func TestDetectSilenceAllZero(t *testing.T) {
	sd := NewSilenceDetection()
	silences, err := sd.DetectSilence(make([]float64, 4*8000), 8000)
	if err != nil {
		t.Fatalf("DetectSilence: %v", err)
	}
	if len(silences) != 1 || silences[0].Start != 0 || silences[0].End != 4 {
		t.Fatalf("silences = %v, want [{0 4}]", silences)
	}
	if active := ActiveIntervals(4, silences); len(active) != 0 {
		t.Errorf("silent signal has active intervals: %v", active)
	}
}

func TestDetectSilenceEmpty(t *testing.T) {
	silences, err := NewSilenceDetection().DetectSilence(nil, 8000)
	if err != nil {
		t.Fatalf("DetectSilence: %v", err)
	}
	if len(silences) != 0 {
		t.Errorf("silences = %v", silences)
	}
}

func TestNewSilenceDetectionWithParamsInvalid(t *testing.T) {
	if _, err := NewSilenceDetectionWithParams(3, 0.5); err == nil {
		t.Error("expected error for positive threshold")
	}
	if _, err := NewSilenceDetectionWithParams(-40, -1); err == nil {
		t.Error("expected error for negative minimum duration")
	}
}

func TestActiveIntervals(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		silences []Interval
		want     []Interval
	}{
		{"no silence", 10, nil, []Interval{{0, 10}}},
		{"leading silence", 10, []Interval{{0, 2}}, []Interval{{2, 10}}},
		{"trailing silence", 10, []Interval{{8, 10}}, []Interval{{0, 8}}},
		{"unsorted", 10, []Interval{{6, 7}, {2, 3}}, []Interval{{0, 2}, {3, 6}, {7, 10}}},
		{"zero duration", 0, nil, []Interval{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ActiveIntervals(tt.duration, tt.silences)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("interval %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
