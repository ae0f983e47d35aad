package stats

import (
	"math"
	"testing"
)

func TestAutoCorrelationKnownValues(t *testing.T) {
	ac := NewAutoCorrelation()
	signal := []float64{1, 2, 3}

	// numpy.correlate([1,2,3], [1,2,3], "full") == [3, 8, 14, 8, 3]
	want := []float64{3, 8, 14, 8, 3}
	got := ac.Full(signal)
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("full[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	causal := ac.Causal(signal)
	for i, v := range []float64{14, 8, 3} {
		if causal[i] != v {
			t.Errorf("causal[%d] = %v, want %v", i, causal[i], v)
		}
	}
}

func TestAutoCorrelationMethodsAgree(t *testing.T) {
	signal := make([]float64, 1500)
	for i := range signal {
		signal[i] = math.Sin(float64(i)*0.37) + 0.25*math.Cos(float64(i)*1.9)
	}

	direct := NewAutoCorrelationWithMethod(TimeDomain).Causal(signal)
	viaFFT := NewAutoCorrelationWithMethod(FrequencyDomain).Causal(signal)

	if len(direct) != len(viaFFT) {
		t.Fatalf("length mismatch: %d vs %d", len(direct), len(viaFFT))
	}
	for i := range direct {
		if math.Abs(direct[i]-viaFFT[i]) > 1e-8*math.Max(1, math.Abs(direct[0])) {
			t.Fatalf("lag %d: direct %v, fft %v", i, direct[i], viaFFT[i])
		}
	}
}

func TestAutoCorrelationAutoMethod(t *testing.T) {
	ac := NewAutoCorrelationWithMethod(AutoMethod)
	if got := ac.resolveMethod(10); got != TimeDomain {
		t.Errorf("small input resolved to %v", got)
	}
	if got := ac.resolveMethod(DefaultAutoThreshold + 1); got != FrequencyDomain {
		t.Errorf("large input resolved to %v", got)
	}
}

func TestAutoCorrelationEmpty(t *testing.T) {
	ac := NewAutoCorrelation()
	if got := ac.Full(nil); len(got) != 0 {
		t.Errorf("Full(nil) = %v", got)
	}
	if got := ac.Causal(nil); len(got) != 0 {
		t.Errorf("Causal(nil) = %v", got)
	}
}

func TestParseCorrelationMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    CorrelationMethod
		wantErr bool
	}{
		{"direct", TimeDomain, false},
		{"FFT", FrequencyDomain, false},
		{"auto", AutoMethod, false},
		{"", TimeDomain, false},
		{"wavelet", TimeDomain, true},
	}
	for _, tt := range tests {
		got, err := ParseCorrelationMethod(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseCorrelationMethod(%q) = %v, %v", tt.in, got, err)
		}
		if err == nil && got.String() == "unknown" {
			t.Errorf("method %v has no name", got)
		}
	}
}

func TestAutoCorrelationLags(t *testing.T) {
	signal := []float64{1, -2, 3, 0.5, 4}
	for _, method := range []CorrelationMethod{TimeDomain, FrequencyDomain} {
		ac := NewAutoCorrelationWithMethod(method)
		causal := ac.Causal(signal)

		got := ac.Lags(signal, 3)
		if len(got) != 3 {
			t.Fatalf("%v: len = %d, want 3", method, len(got))
		}
		for i := range got {
			if math.Abs(got[i]-causal[i]) > 1e-9 {
				t.Errorf("%v: lag %d = %v, want %v", method, i, got[i], causal[i])
			}
		}

		if n := len(ac.Lags(signal, 99)); n != len(signal) {
			t.Errorf("%v: maxLag beyond length gave %d values", method, n)
		}
		if n := len(ac.Lags(signal, 0)); n != 0 {
			t.Errorf("%v: zero maxLag gave %d values", method, n)
		}
	}
}
