package diarize

import "time"

// VoiceCharacteristics is the normalized acoustic fingerprint used both for
// clustering during Phase 1 and for profile maintenance across phases.
type VoiceCharacteristics struct {
	F0Hz              float64
	SpectralCentroid  float64
	SpectralBandwidth float64
	SpectralRolloff   float64
	ZeroCrossingRate  float64
	MFCCs             []float64
}

// SpeakerProfile is the running model of one distinct voice, built during
// Phase 1 and referenced (never recreated) during Phase 2.
type SpeakerProfile struct {
	ID                   string
	DisplayName          string
	FirstSeen            time.Time
	LastSeen             time.Time
	SegmentCount         int
	TotalDurationS       float64
	Embedding            []float64
	Confidence           float64
	VoiceCharacteristics VoiceCharacteristics
}

// DiarizedSegment is the output unit: a time span attributed to one speaker.
// Text is populated later, by the alignment stage of the post-processing
// pipeline; Diarize itself always leaves it empty.
type DiarizedSegment struct {
	StartS     float64 `json:"start_s"`
	EndS       float64 `json:"end_s"`
	SpeakerID  string  `json:"speaker_id"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language,omitempty"`
}

func (s DiarizedSegment) duration() float64 { return s.EndS - s.StartS }
