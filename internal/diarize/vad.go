package diarize

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	vadFrameSize = 1024
	vadHopSize   = vadFrameSize / 2
)

// VADConfig parameterizes the shared voice-activity-detection primitive so
// the conservative first pass (profile induction) and the sensitive second
// pass (fine-grained segmentation) reuse the same implementation.
type VADConfig struct {
	MinSpeechDur  float64 // seconds; runs shorter than this are discarded
	MaxSilenceDur float64 // seconds; gaps between runs no larger than this are bridged
	SmoothWindow  int     // frames; majority-vote smoothing window
	Sensitivity   float64 // k in "energy threshold = mean + k*stddev"
}

// ConservativeVADConfig is Phase 1's configuration: wide tolerance, favors
// robust speaker-model induction over catching short utterances.
func ConservativeVADConfig() VADConfig {
	return VADConfig{MinSpeechDur: 1.5, MaxSilenceDur: 2.0, SmoothWindow: 9, Sensitivity: 1.5}
}

// SensitiveVADConfig is Phase 2's configuration: catches short turns once
// speaker profiles are already established.
func SensitiveVADConfig() VADConfig {
	return VADConfig{MinSpeechDur: 0.3, MaxSilenceDur: 1.5, SmoothWindow: 3, Sensitivity: 1.5}
}

// speechRun is a contiguous span of voiced frames, in samples.
type speechRun struct {
	startSample int
	endSample   int
}

func (r speechRun) durationS(sampleRate int) float64 {
	return float64(r.endSample-r.startSample) / float64(sampleRate)
}

type frameMetrics struct {
	rms      float64
	zcr      float64
	centroid float64
}

// detectSpeechRuns frames samples, computes adaptive voiced/unvoiced
// decisions per frame, smooths them, bridges short gaps, and returns the
// surviving runs as sample-index spans.
func detectSpeechRuns(samples []float64, sampleRate int, cfg VADConfig) []speechRun {
	if len(samples) < vadFrameSize {
		return nil
	}
	fft := fourier.NewFFT(vadFrameSize)
	metrics := computeFrameMetrics(samples, fft)
	if len(metrics) == 0 {
		return nil
	}

	energyThresh, zcrThresh := adaptiveThresholds(metrics, cfg.Sensitivity)

	voiced := make([]bool, len(metrics))
	for i, m := range metrics {
		voiced[i] = m.rms > energyThresh && m.zcr < zcrThresh && m.centroid > 0
	}
	voiced = majoritySmooth(voiced, cfg.SmoothWindow)

	runs := extractRuns(voiced)
	runs = bridgeGaps(runs, cfg.MaxSilenceDur, sampleRate)
	return filterShortRuns(runs, cfg.MinSpeechDur, sampleRate)
}

func computeFrameMetrics(samples []float64, fft *fourier.FFT) []frameMetrics {
	var out []frameMetrics
	frame := make([]float64, vadFrameSize)
	for start := 0; start+vadFrameSize <= len(samples); start += vadHopSize {
		copy(frame, samples[start:start+vadFrameSize])
		out = append(out, frameMetricsOf(frame, fft))
	}
	return out
}

func frameMetricsOf(frame []float64, fft *fourier.FFT) frameMetrics {
	var sumSq float64
	for _, s := range frame {
		sumSq += s * s
	}
	rms := math.Sqrt(sumSq / float64(len(frame)))

	var crossings int
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	zcr := float64(crossings) / float64(len(frame)-1)

	coeffs := fft.Coefficients(nil, frame)
	var magSum, weighted float64
	for k, c := range coeffs {
		mag := math.Hypot(real(c), imag(c))
		magSum += mag
		weighted += mag * float64(k)
	}
	centroid := 0.0
	if magSum > 0 {
		centroid = weighted / magSum
	}

	return frameMetrics{rms: rms, zcr: zcr, centroid: centroid}
}

func adaptiveThresholds(metrics []frameMetrics, k float64) (energy, zcr float64) {
	n := float64(len(metrics))
	var meanE, meanZ float64
	for _, m := range metrics {
		meanE += m.rms
		meanZ += m.zcr
	}
	meanE /= n
	meanZ /= n

	var varE float64
	for _, m := range metrics {
		d := m.rms - meanE
		varE += d * d
	}
	stddevE := math.Sqrt(varE / n)

	return meanE + k*stddevE, meanZ + 0.1
}

// majoritySmooth replaces each frame's decision with the majority vote over
// a centered window of the given size.
func majoritySmooth(voiced []bool, window int) []bool {
	if window <= 1 {
		return voiced
	}
	half := window / 2
	out := make([]bool, len(voiced))
	for i := range voiced {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi >= len(voiced) {
			hi = len(voiced) - 1
		}
		var votes int
		for j := lo; j <= hi; j++ {
			if voiced[j] {
				votes++
			}
		}
		out[i] = votes*2 > (hi - lo + 1)
	}
	return out
}

func extractRuns(voiced []bool) []speechRun {
	var runs []speechRun
	inRun := false
	var runStart int
	for i, v := range voiced {
		if v && !inRun {
			inRun = true
			runStart = i
		} else if !v && inRun {
			inRun = false
			runs = append(runs, frameRunToSamples(runStart, i))
		}
	}
	if inRun {
		runs = append(runs, frameRunToSamples(runStart, len(voiced)))
	}
	return runs
}

func frameRunToSamples(startFrame, endFrame int) speechRun {
	return speechRun{
		startSample: startFrame * vadHopSize,
		endSample:   endFrame*vadHopSize + vadFrameSize,
	}
}

func bridgeGaps(runs []speechRun, maxSilenceDur float64, sampleRate int) []speechRun {
	if len(runs) < 2 {
		return runs
	}
	maxGapSamples := int(maxSilenceDur * float64(sampleRate))
	out := []speechRun{runs[0]}
	for _, r := range runs[1:] {
		last := &out[len(out)-1]
		if r.startSample-last.endSample <= maxGapSamples {
			last.endSample = r.endSample
			continue
		}
		out = append(out, r)
	}
	return out
}

func filterShortRuns(runs []speechRun, minDur float64, sampleRate int) []speechRun {
	var out []speechRun
	for _, r := range runs {
		if r.durationS(sampleRate) >= minDur {
			out = append(out, r)
		}
	}
	return out
}
