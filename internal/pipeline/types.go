package pipeline

import (
	"time"

	"github.com/meetingcore/meetingcore/internal/diarize"
)

// SpeakerSummary aggregates one speaker's contribution across a
// DiarizedTranscript's segments.
type SpeakerSummary struct {
	SpeakerID      string  `json:"speaker_id"`
	DisplayName    string  `json:"display_name,omitempty"`
	SegmentCount   int     `json:"segment_count"`
	TotalDurationS float64 `json:"total_duration_s"`
	FirstSeenS     float64 `json:"first_seen_s"`
	LastSeenS      float64 `json:"last_seen_s"`
	MeanConfidence float64 `json:"mean_confidence"`
}

// DiarizedTranscript is the persisted artifact: a completed transcription
// joined with its diarized timeline.
type DiarizedTranscript struct {
	ID               string                    `json:"id"`
	SourceAudioPath  string                    `json:"source_audio_path"`
	CreatedAt        time.Time                 `json:"created_at"`
	TotalDurationS   float64                   `json:"total_duration_s"`
	Speakers         []SpeakerSummary          `json:"speakers"`
	Segments         []diarize.DiarizedSegment `json:"segments"`
	FullText         string                    `json:"full_text"`
	MeanConfidence   float64                   `json:"mean_confidence"`
	BackendUsed      string                    `json:"backend_used"`
	Metadata         map[string]string         `json:"metadata,omitempty"`
	TranscriptionErr string                    `json:"transcription_error,omitempty"`
}

// summarizeSpeakers groups segments by speaker ID and computes the
// aggregates the persisted transcript carries per speaker.
func summarizeSpeakers(segments []diarize.DiarizedSegment) []SpeakerSummary {
	order := make([]string, 0)
	bySpeaker := make(map[string]*SpeakerSummary)

	for _, seg := range segments {
		s, ok := bySpeaker[seg.SpeakerID]
		if !ok {
			s = &SpeakerSummary{SpeakerID: seg.SpeakerID, DisplayName: seg.SpeakerID, FirstSeenS: seg.StartS}
			bySpeaker[seg.SpeakerID] = s
			order = append(order, seg.SpeakerID)
		}
		s.SegmentCount++
		s.TotalDurationS += seg.EndS - seg.StartS
		s.MeanConfidence += seg.Confidence
		if seg.StartS < s.FirstSeenS {
			s.FirstSeenS = seg.StartS
		}
		if seg.EndS > s.LastSeenS {
			s.LastSeenS = seg.EndS
		}
	}

	out := make([]SpeakerSummary, 0, len(order))
	for _, id := range order {
		s := bySpeaker[id]
		if s.SegmentCount > 0 {
			s.MeanConfidence /= float64(s.SegmentCount)
		}
		out = append(out, *s)
	}
	return out
}

func meanConfidence(segments []diarize.DiarizedSegment) float64 {
	if len(segments) == 0 {
		return 0
	}
	var sum float64
	for _, seg := range segments {
		sum += seg.Confidence
	}
	return sum / float64(len(segments))
}

func joinText(segments []diarize.DiarizedSegment) string {
	var out string
	for _, seg := range segments {
		if seg.Text == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += seg.Text
	}
	return out
}
