package diarize

import (
	"fmt"
	"math"
	"time"
)

const (
	modelingSimilarityThreshold = 0.5
	modelingCap                 = 4
	embeddingBlendOld           = 0.7
	embeddingBlendNew           = 0.3
	f0PenaltyDeltaHz            = 40.0
	f0PenaltyMultiplier         = 0.5

	// similarity weights combining feature-vector cosine and voice-characteristics similarity.
	featureSimWeight = 0.6
	voiceSimWeight   = 0.4
)

// profileStore owns the set of speaker profiles built during Phase 1 and
// consulted (never recreated) during Phase 2.
type profileStore struct {
	profiles []*SpeakerProfile
	next     int
}

func newProfileStore() *profileStore {
	return &profileStore{}
}

// assign runs the combined-similarity scoring against every existing
// profile. If the best match clears the modeling threshold, the profile is
// updated in place. Otherwise, while under the modeling cap, a new profile
// is created; once at the cap, the segment is folded into the closest
// existing profile regardless of how weak the match is.
func (p *profileStore) assign(at time.Time, dur float64, features []float64, vc VoiceCharacteristics) *SpeakerProfile {
	best, bestSim := p.closest(features, vc)

	if best != nil && bestSim > modelingSimilarityThreshold {
		p.update(best, at, dur, features, vc)
		return best
	}
	if len(p.profiles) < modelingCap {
		return p.create(at, dur, features, vc)
	}
	if best != nil {
		p.update(best, at, dur, features, vc)
		return best
	}
	return p.create(at, dur, features, vc)
}

// matchExisting is Phase 2's variant: always pick the best match, never
// create a profile, regardless of how weak the similarity is.
func (p *profileStore) matchExisting(features []float64, vc VoiceCharacteristics) *SpeakerProfile {
	best, _ := p.closest(features, vc)
	return best
}

func (p *profileStore) closest(features []float64, vc VoiceCharacteristics) (*SpeakerProfile, float64) {
	var best *SpeakerProfile
	bestSim := -1.0
	for _, profile := range p.profiles {
		sim := combinedSimilarity(features, vc, profile)
		if sim > bestSim {
			bestSim = sim
			best = profile
		}
	}
	return best, bestSim
}

func (p *profileStore) create(at time.Time, dur float64, features []float64, vc VoiceCharacteristics) *SpeakerProfile {
	p.next++
	profile := &SpeakerProfile{
		ID:                   fmt.Sprintf("speaker-%d", p.next),
		DisplayName:          fmt.Sprintf("Speaker %d", p.next),
		FirstSeen:            at,
		LastSeen:             at,
		SegmentCount:         1,
		TotalDurationS:       dur,
		Embedding:            append([]float64(nil), features...),
		Confidence:           0.9,
		VoiceCharacteristics: vc,
	}
	p.profiles = append(p.profiles, profile)
	return profile
}

func (p *profileStore) update(profile *SpeakerProfile, at time.Time, dur float64, features []float64, vc VoiceCharacteristics) {
	profile.Embedding = blendVectors(profile.Embedding, features, embeddingBlendOld, embeddingBlendNew)
	profile.VoiceCharacteristics = blendVoiceCharacteristics(profile.VoiceCharacteristics, vc, embeddingBlendOld, embeddingBlendNew)
	// EWMA over confidence using the same blend weights as the embedding.
	profile.Confidence = embeddingBlendOld*profile.Confidence + embeddingBlendNew*1.0
	profile.SegmentCount++
	profile.TotalDurationS += dur
	profile.LastSeen = at
}

func blendVectors(old, fresh []float64, wOld, wNew float64) []float64 {
	out := make([]float64, len(old))
	for i := range old {
		out[i] = wOld*old[i] + wNew*fresh[i]
	}
	return out
}

func blendVoiceCharacteristics(old, fresh VoiceCharacteristics, wOld, wNew float64) VoiceCharacteristics {
	mfccs := old.MFCCs
	if len(fresh.MFCCs) == len(old.MFCCs) {
		mfccs = blendVectors(old.MFCCs, fresh.MFCCs, wOld, wNew)
	} else if len(old.MFCCs) == 0 {
		mfccs = fresh.MFCCs
	}
	return VoiceCharacteristics{
		F0Hz:              wOld*old.F0Hz + wNew*fresh.F0Hz,
		SpectralCentroid:  wOld*old.SpectralCentroid + wNew*fresh.SpectralCentroid,
		SpectralBandwidth: wOld*old.SpectralBandwidth + wNew*fresh.SpectralBandwidth,
		SpectralRolloff:   wOld*old.SpectralRolloff + wNew*fresh.SpectralRolloff,
		ZeroCrossingRate:  wOld*old.ZeroCrossingRate + wNew*fresh.ZeroCrossingRate,
		MFCCs:             mfccs,
	}
}

// combinedSimilarity implements the weighted feature/voice-characteristics
// score, with the hard F0 penalty applied last.
func combinedSimilarity(features []float64, vc VoiceCharacteristics, profile *SpeakerProfile) float64 {
	featSim := cosineSimilarity(features, profile.Embedding)
	vSim := voiceSimilarity(vc, profile.VoiceCharacteristics)
	combined := featureSimWeight*featSim + voiceSimWeight*vSim

	if math.Abs(vc.F0Hz-profile.VoiceCharacteristics.F0Hz) > f0PenaltyDeltaHz {
		combined *= f0PenaltyMultiplier
	}
	return combined
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// voiceSimilarity combines F0 closeness, spectral-shape closeness, ZCR
// closeness, and MFCC cosine into a single [0,1]-ish score.
func voiceSimilarity(a, b VoiceCharacteristics) float64 {
	if len(a.MFCCs) == 0 && len(b.MFCCs) == 0 {
		return 0
	}
	f0Sim := closeness(a.F0Hz, b.F0Hz, f0PenaltyDeltaHz)
	centroidSim := closeness(a.SpectralCentroid, b.SpectralCentroid, 1000)
	bandwidthSim := closeness(a.SpectralBandwidth, b.SpectralBandwidth, 1000)
	rolloffSim := closeness(a.SpectralRolloff, b.SpectralRolloff, 2000)
	zcrSim := closeness(a.ZeroCrossingRate, b.ZeroCrossingRate, 0.2)
	mfccSim := cosineSimilarity(a.MFCCs, b.MFCCs)

	return (f0Sim + centroidSim + bandwidthSim + rolloffSim + zcrSim + mfccSim) / 6
}

// closeness maps an absolute difference to a [0,1] score via a linear decay
// that reaches 0 at scale and is clamped below that.
func closeness(a, b, scale float64) float64 {
	if scale <= 0 {
		return 0
	}
	d := math.Abs(a - b)
	sim := 1 - d/scale
	if sim < 0 {
		return 0
	}
	return sim
}
