package wavelet

import (
	"math"
	"testing"
)

func TestFilterOrthonormality(t *testing.T) {
	sumLow, sumHigh, energyLow, energyHigh, cross := 0.0, 0.0, 0.0, 0.0, 0.0
	for i := range FilterLength {
		sumLow += DecLow[i]
		sumHigh += DecHigh[i]
		energyLow += DecLow[i] * DecLow[i]
		energyHigh += DecHigh[i] * DecHigh[i]
		cross += DecLow[i] * DecHigh[i]
	}

	if math.Abs(sumLow-math.Sqrt2) > 1e-12 {
		t.Errorf("low-pass DC gain = %v, want sqrt(2)", sumLow)
	}
	if math.Abs(sumHigh) > 1e-12 {
		t.Errorf("high-pass DC gain = %v, want 0", sumHigh)
	}
	if math.Abs(energyLow-1) > 1e-12 || math.Abs(energyHigh-1) > 1e-12 {
		t.Errorf("filter energies = %v, %v, want 1", energyLow, energyHigh)
	}
	if math.Abs(cross) > 1e-12 {
		t.Errorf("filters not orthogonal: %v", cross)
	}
}

func TestOutputLength(t *testing.T) {
	tests := []struct{ n, want int }{
		{0, 0},
		{1, 4},
		{8, 7},
		{9, 8},
		{441000, 220503},
	}
	for _, tt := range tests {
		if got := OutputLength(tt.n); got != tt.want {
			t.Errorf("OutputLength(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestReflect(t *testing.T) {
	n := 4
	tests := []struct{ idx, want int }{
		{0, 0}, {3, 3}, {-1, 0}, {-2, 1}, {4, 3}, {5, 2}, {-5, 3}, {8, 0}, {-9, 0},
	}
	for _, tt := range tests {
		if got := reflect(tt.idx, n); got != tt.want {
			t.Errorf("reflect(%d, %d) = %d, want %d", tt.idx, n, got, tt.want)
		}
	}
}

func TestDWTConstantSignal(t *testing.T) {
	signal := make([]float64, 64)
	for i := range signal {
		signal[i] = 0.5
	}

	approx, detail, err := DWT(signal)
	if err != nil {
		t.Fatalf("DWT: %v", err)
	}

	for i, d := range detail {
		if math.Abs(d) > 1e-12 {
			t.Fatalf("detail[%d] = %v, want 0 for constant input", i, d)
		}
	}
	for i, a := range approx {
		if math.Abs(a-0.5*math.Sqrt2) > 1e-12 {
			t.Fatalf("approx[%d] = %v, want %v", i, a, 0.5*math.Sqrt2)
		}
	}
}

func TestDWTLinearRampHasNoInteriorDetail(t *testing.T) {
	// db4 has four vanishing moments, so polynomial trends vanish from the
	// detail band away from the boundaries.
	signal := make([]float64, 128)
	for i := range signal {
		signal[i] = 0.01 * float64(i)
	}

	_, detail, err := DWT(signal)
	if err != nil {
		t.Fatalf("DWT: %v", err)
	}

	for i := 4; i < len(detail)-4; i++ {
		if math.Abs(detail[i]) > 1e-9 {
			t.Fatalf("detail[%d] = %v, want ~0", i, detail[i])
		}
	}
}

func TestDWTImpulseResponse(t *testing.T) {
	// An impulse in the middle of the signal reproduces the filter taps on
	// the odd output positions.
	n := 32
	signal := make([]float64, n)
	signal[15] = 1

	approx, detail, err := DWT(signal)
	if err != nil {
		t.Fatalf("DWT: %v", err)
	}

	// out[o] = sum_j h[j] x[2o+1-j]; x is non-zero at 15 so j = 2o-14.
	for o := range approx {
		j := 2*o - 14
		wantLo, wantHi := 0.0, 0.0
		if j >= 0 && j < FilterLength {
			wantLo, wantHi = DecLow[j], DecHigh[j]
		}
		if math.Abs(approx[o]-wantLo) > 1e-15 || math.Abs(detail[o]-wantHi) > 1e-15 {
			t.Errorf("o=%d: got (%v, %v), want (%v, %v)", o, approx[o], detail[o], wantLo, wantHi)
		}
	}
}

func TestDWTShortSignal(t *testing.T) {
	approx, detail, err := DWT([]float64{1})
	if err != nil {
		t.Fatalf("DWT: %v", err)
	}
	if len(approx) != 4 || len(detail) != 4 {
		t.Fatalf("lengths = %d, %d, want 4", len(approx), len(detail))
	}
	for i := range approx {
		if math.Abs(approx[i]-math.Sqrt2) > 1e-12 {
			t.Errorf("approx[%d] = %v, want sqrt(2)", i, approx[i])
		}
	}
}

func TestDWTEmpty(t *testing.T) {
	if _, _, err := DWT(nil); err == nil {
		t.Fatal("expected error for empty signal")
	}
}

func TestDecompose(t *testing.T) {
	signal := make([]float64, 1000)
	for i := range signal {
		signal[i] = math.Sin(2 * math.Pi * float64(i) / 50)
	}

	dec, err := Decompose(signal, 4)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(dec.Details) != 4 {
		t.Fatalf("got %d detail levels, want 4", len(dec.Details))
	}

	wantLens := []int{503, 255, 131, 69}
	for level, want := range wantLens {
		if got := len(dec.Details[level]); got != want {
			t.Errorf("level %d detail length = %d, want %d", level, got, want)
		}
	}
	if len(dec.Approximation) != 69 {
		t.Errorf("approximation length = %d, want 69", len(dec.Approximation))
	}

	if _, err := Decompose(signal, 0); err == nil {
		t.Error("expected error for zero levels")
	}
}
