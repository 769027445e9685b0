package recording

import "fmt"

// Quality names the five recording quality tiers, each mapping to a fixed
// sample rate, bit depth, codec, and sample format.
type Quality int

const (
	Low Quality = iota
	Medium
	High
	Ultra
	Broadcast
)

func (q Quality) String() string {
	switch q {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Ultra:
		return "ultra"
	case Broadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// ParseQuality maps a tier name (case-sensitive, lowercase) to a Quality.
func ParseQuality(s string) (Quality, error) {
	for q := Low; q <= Broadcast; q++ {
		if q.String() == s {
			return q, nil
		}
	}
	return 0, fmt.Errorf("unknown quality tier %q", s)
}

// Profile is the concrete {sample_rate, bit_depth, codec, sample_format}
// tuple a Quality tier resolves to.
type Profile struct {
	SampleRate       int
	BitDepth         int
	Codec            string
	SampleFormat     string
	DiarizationReady bool
}

var profiles = map[Quality]Profile{
	Low:       {SampleRate: 16000, BitDepth: 16, Codec: "pcm_s16le", SampleFormat: "s16", DiarizationReady: false},
	Medium:    {SampleRate: 22050, BitDepth: 16, Codec: "pcm_s16le", SampleFormat: "s16", DiarizationReady: false},
	High:      {SampleRate: 44100, BitDepth: 24, Codec: "pcm_s24le", SampleFormat: "s24", DiarizationReady: true},
	Ultra:     {SampleRate: 48000, BitDepth: 24, Codec: "pcm_s24le", SampleFormat: "s24", DiarizationReady: true},
	Broadcast: {SampleRate: 48000, BitDepth: 32, Codec: "pcm_f32le", SampleFormat: "flt", DiarizationReady: true},
}

// Resolve returns the concrete profile for a quality tier.
func (q Quality) Resolve() Profile {
	return profiles[q]
}

// enhancedFilterChain is the fixed speech-optimized filter graph applied
// when a recording's "enhanced quality" flag is set: a high-pass/low-pass
// band matching human speech, a volume trim, dynamic range normalization,
// and FFT-based denoise.
const enhancedFilterChain = "highpass=f=80,lowpass=f=8000,volume=1.5,dynaudnorm,afftdn"

// buildAudioFilterArgs returns the "-af" argument pair for the given
// enhancement flag, or nil when no filter chain applies.
func buildAudioFilterArgs(enhanced bool) []string {
	if !enhanced {
		return nil
	}
	return []string{"-af", enhancedFilterChain}
}
