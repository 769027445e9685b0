package diarize

import "testing"

func TestDownmix_StereoAverages(t *testing.T) {
	t.Parallel()
	// Interleaved L,R,L,R: (1,-1), (0.5,0.5)
	interleaved := []float64{1, -1, 0.5, 0.5}
	mono := downmix(interleaved, 2)
	want := []float64{0, 0.5}
	if len(mono) != len(want) {
		t.Fatalf("length = %d, want %d", len(mono), len(want))
	}
	for i := range want {
		if mono[i] != want[i] {
			t.Errorf("mono[%d] = %v, want %v", i, mono[i], want[i])
		}
	}
}

func TestDownmix_MonoPassthrough(t *testing.T) {
	t.Parallel()
	in := []float64{0.1, 0.2, 0.3}
	out := downmix(in, 1)
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("mono passthrough changed sample %d: %v -> %v", i, in[i], out[i])
		}
	}
}

func TestResampleLinear_SameRateIsNoop(t *testing.T) {
	t.Parallel()
	in := []float64{1, 2, 3, 4}
	out := resampleLinear(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("length changed for same-rate resample: %d != %d", len(out), len(in))
	}
}

func TestResampleLinear_Downsample(t *testing.T) {
	t.Parallel()
	in := make([]float64, 32000) // 2s at 16kHz
	for i := range in {
		in[i] = float64(i)
	}
	out := resampleLinear(in, 16000, 8000)
	wantLen := 16000 // 2s at 8kHz
	if len(out) != wantLen {
		t.Errorf("length = %d, want %d", len(out), wantLen)
	}
}

func TestResampleLinear_EmptyInput(t *testing.T) {
	t.Parallel()
	out := resampleLinear(nil, 16000, 8000)
	if out != nil {
		t.Errorf("expected nil for empty input, got %v", out)
	}
}
