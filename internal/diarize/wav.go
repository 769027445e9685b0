package diarize

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// DefaultWorkingSampleRate is the rate every WAV is resampled to before
// feature extraction, matching the pitch and spectral-bin math in
// features.go and vad.go.
const DefaultWorkingSampleRate = 16000

// loadWAV reads path, down-mixes to mono by averaging channels, normalizes
// to float64 samples in [-1, 1], and linearly resamples to targetRate.
func loadWAV(path string, targetRate int) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, ErrUnsupportedFormat
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode pcm buffer: %w", err)
	}
	if buf.Format == nil || len(buf.Data) == 0 {
		return nil, ErrEmptyAudio
	}

	floatBuf := buf.AsFloatBuffer()
	mono := downmix(floatBuf.Data, buf.Format.NumChannels)
	if len(mono) == 0 {
		return nil, ErrEmptyAudio
	}

	sourceRate := buf.Format.SampleRate
	if sourceRate <= 0 {
		sourceRate = targetRate
	}
	return resampleLinear(mono, sourceRate, targetRate), nil
}

// downmix averages interleaved multi-channel samples down to a single
// mono channel. A channel count <= 1 is returned unchanged.
func downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		out := make([]float64, len(interleaved))
		copy(out, interleaved)
		return out
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += interleaved[base+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// resampleLinear performs simple linear interpolation resampling. It is
// intentionally not a high-quality resampler (no anti-aliasing filter):
// feature extraction only needs a consistent working rate, not broadcast
// fidelity.
func resampleLinear(samples []float64, sourceRate, targetRate int) []float64 {
	if sourceRate == targetRate || len(samples) == 0 {
		return samples
	}
	ratio := float64(sourceRate) / float64(targetRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen <= 0 {
		return nil
	}
	out := make([]float64, outLen)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)
		if idx+1 < len(samples) {
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		} else {
			out[i] = samples[idx]
		}
	}
	return out
}
