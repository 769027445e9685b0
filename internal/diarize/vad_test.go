package diarize

import (
	"math"
	"testing"
)

func sineWave(freq float64, sampleRate, numSamples int, amplitude float64) []float64 {
	out := make([]float64, numSamples)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func silence(numSamples int) []float64 {
	return make([]float64, numSamples)
}

func TestDetectSpeechRuns_FindsToneAmidSilence(t *testing.T) {
	t.Parallel()
	sampleRate := 16000

	var samples []float64
	samples = append(samples, silence(sampleRate)...)                          // 1s silence
	samples = append(samples, sineWave(200, sampleRate, sampleRate*2, 0.6)...) // 2s tone
	samples = append(samples, silence(sampleRate)...)                          // 1s silence

	runs := detectSpeechRuns(samples, sampleRate, SensitiveVADConfig())
	if len(runs) == 0 {
		t.Fatal("expected at least one speech run")
	}
	// The run should roughly bracket the tone, not the leading/trailing silence.
	start := runs[0].durationS(sampleRate)
	if start <= 0 {
		t.Errorf("expected positive-duration run, got %v", start)
	}
}

func TestDetectSpeechRuns_PureSilenceYieldsNothing(t *testing.T) {
	t.Parallel()
	sampleRate := 16000
	samples := silence(sampleRate * 3)

	runs := detectSpeechRuns(samples, sampleRate, ConservativeVADConfig())
	if len(runs) != 0 {
		t.Errorf("expected no runs from pure silence, got %d", len(runs))
	}
}

func TestMajoritySmooth(t *testing.T) {
	t.Parallel()
	in := []bool{false, true, false, true, true, true, false, true, false}
	got := majoritySmooth(in, 3)
	if len(got) != len(in) {
		t.Fatalf("length changed: got %d want %d", len(got), len(in))
	}
	// A single isolated true surrounded by false on both sides should be
	// smoothed away by a window-3 majority vote.
	if got[1] {
		t.Errorf("expected index 1 smoothed to false, window=%v", got)
	}
}

func TestExtractRuns(t *testing.T) {
	t.Parallel()
	voiced := []bool{false, true, true, true, false, false, true, true, false}
	runs := extractRuns(voiced)
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d: %+v", len(runs), runs)
	}
}

func TestBridgeGaps(t *testing.T) {
	t.Parallel()
	sampleRate := 1000
	runs := []speechRun{
		{startSample: 0, endSample: 1000},    // 0-1s
		{startSample: 1500, endSample: 2000}, // 1.5-2s, 0.5s gap
		{startSample: 5000, endSample: 6000}, // 5-6s, 3s gap
	}
	bridged := bridgeGaps(runs, 1.0, sampleRate)
	if len(bridged) != 2 {
		t.Fatalf("expected 2 runs after bridging, got %d: %+v", len(bridged), bridged)
	}
	if bridged[0].endSample != 2000 {
		t.Errorf("expected first run bridged through to 2000, got %d", bridged[0].endSample)
	}
}

func TestFilterShortRuns(t *testing.T) {
	t.Parallel()
	sampleRate := 1000
	runs := []speechRun{
		{startSample: 0, endSample: 200},  // 0.2s, too short
		{startSample: 0, endSample: 2000}, // 2s, kept
	}
	out := filterShortRuns(runs, 1.0, sampleRate)
	if len(out) != 1 {
		t.Fatalf("expected 1 surviving run, got %d", len(out))
	}
}
