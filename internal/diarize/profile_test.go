package diarize

import (
	"testing"
	"time"
)

func vecOf(vals ...float64) []float64 { return vals }

func vcWithF0(f0 float64) VoiceCharacteristics {
	return VoiceCharacteristics{
		F0Hz:              f0,
		SpectralCentroid:  1000,
		SpectralBandwidth: 500,
		SpectralRolloff:   3000,
		ZeroCrossingRate:  0.1,
		MFCCs:             []float64{1, 2, 3},
	}
}

func TestProfileStore_CreatesFirstProfile(t *testing.T) {
	t.Parallel()
	store := newProfileStore()
	p := store.assign(time.Now(), 1.5, vecOf(1, 0, 0), vcWithF0(120))
	if p == nil {
		t.Fatal("expected a profile")
	}
	if len(store.profiles) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(store.profiles))
	}
	if p.Confidence != 0.9 {
		t.Errorf("new profile confidence = %v, want 0.9", p.Confidence)
	}
}

func TestProfileStore_AssignsMatchingSegmentToSameProfile(t *testing.T) {
	t.Parallel()
	store := newProfileStore()
	features := vecOf(1, 0, 0)
	vc := vcWithF0(120)

	first := store.assign(time.Now(), 1.5, features, vc)
	second := store.assign(time.Now(), 1.5, features, vc)

	if len(store.profiles) != 1 {
		t.Fatalf("expected identical repeated segment to reuse the profile, got %d profiles", len(store.profiles))
	}
	if first.ID != second.ID {
		t.Errorf("expected same profile ID, got %q and %q", first.ID, second.ID)
	}
	if second.SegmentCount != 2 {
		t.Errorf("segment count = %d, want 2", second.SegmentCount)
	}
}

func TestProfileStore_DistinctVoicesCreateSeparateProfiles(t *testing.T) {
	t.Parallel()
	store := newProfileStore()
	store.assign(time.Now(), 1.5, vecOf(1, 0, 0), vcWithF0(100))
	store.assign(time.Now(), 1.5, vecOf(-1, 0, 0), vcWithF0(250))

	if len(store.profiles) != 2 {
		t.Fatalf("expected 2 distinct profiles, got %d", len(store.profiles))
	}
}

func TestProfileStore_RespectsModelingCap(t *testing.T) {
	t.Parallel()
	store := newProfileStore()
	// Five maximally-distinct orthogonal-ish vectors with far-apart F0s.
	vectors := [][]float64{
		{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {-1, 0, 0}, {0, -1, 0},
	}
	f0s := []float64{80, 150, 220, 290, 360}
	for i := range vectors {
		store.assign(time.Now(), 1.0, vectors[i], vcWithF0(f0s[i]))
	}
	if len(store.profiles) > modelingCap {
		t.Fatalf("profiles exceeded modeling cap: got %d, cap %d", len(store.profiles), modelingCap)
	}
}

func TestProfileStore_MatchExistingNeverCreates(t *testing.T) {
	t.Parallel()
	store := newProfileStore()
	store.assign(time.Now(), 1.0, vecOf(1, 0, 0), vcWithF0(120))

	before := len(store.profiles)
	matched := store.matchExisting(vecOf(-1, 0, 0), vcWithF0(400))
	if len(store.profiles) != before {
		t.Errorf("matchExisting must never create profiles, count changed from %d to %d", before, len(store.profiles))
	}
	if matched == nil {
		t.Error("expected matchExisting to return the only existing profile")
	}
}

func TestCombinedSimilarity_F0PenaltyHalvesScore(t *testing.T) {
	t.Parallel()
	profile := &SpeakerProfile{
		Embedding:            vecOf(1, 0, 0),
		VoiceCharacteristics: vcWithF0(100),
	}
	near := combinedSimilarity(vecOf(1, 0, 0), vcWithF0(110), profile)
	far := combinedSimilarity(vecOf(1, 0, 0), vcWithF0(200), profile)
	if far >= near {
		t.Errorf("expected far-F0 similarity (%v) to be penalized below near-F0 similarity (%v)", far, near)
	}
}
