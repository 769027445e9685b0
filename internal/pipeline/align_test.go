package pipeline

import (
	"testing"

	"github.com/meetingcore/meetingcore/internal/diarize"
)

func TestAlign_ProportionalByDuration(t *testing.T) {
	segments := []diarize.DiarizedSegment{
		{StartS: 0, EndS: 5, SpeakerID: "Speaker 1"},
		{StartS: 5, EndS: 15, SpeakerID: "Speaker 2"},
	}
	// 16 runes total: 5/15 of duration goes to segment 1.
	text := "aaaa bbbbbbbbbbb"

	out := Align(segments, text)
	if len(out) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(out))
	}
	if out[0].Text != "aaaa" {
		t.Fatalf("expected first segment %q, got %q", "aaaa", out[0].Text)
	}
	if out[1].Text != "bbbbbbbbbbb" {
		t.Fatalf("expected second segment %q, got %q", "bbbbbbbbbbb", out[1].Text)
	}
}

func TestAlign_EmptySegments(t *testing.T) {
	if out := Align(nil, "hello"); out != nil {
		t.Fatalf("expected nil for empty segments, got %v", out)
	}
}

func TestAlign_EmptyText(t *testing.T) {
	segments := []diarize.DiarizedSegment{{StartS: 0, EndS: 5, SpeakerID: "Speaker 1"}}
	out := Align(segments, "")
	if len(out) != 0 {
		t.Fatalf("expected no segments for empty text, got %v", out)
	}
}

func TestAlign_TinySegmentsKeepFullText(t *testing.T) {
	// Very short segments against a short transcript: regardless of how the
	// rounding falls, every rune must still be accounted for exactly once.
	segments := []diarize.DiarizedSegment{
		{StartS: 0, EndS: 0.01, SpeakerID: "Speaker 1"},
		{StartS: 0.01, EndS: 0.02, SpeakerID: "Speaker 2"},
	}
	out := Align(segments, "hi")
	if len(out) == 0 {
		t.Fatal("expected at least one segment to carry the text")
	}
	var joined string
	for _, seg := range out {
		joined += seg.Text
	}
	if joined != "hi" {
		t.Fatalf("expected full text preserved, got %q", joined)
	}
}

func TestAlign_ZeroTotalDuration(t *testing.T) {
	segments := []diarize.DiarizedSegment{
		{StartS: 0, EndS: 0, SpeakerID: "Speaker 1"},
	}
	out := Align(segments, "hello")
	if len(out) != 1 || out[0].Text != "hello" {
		t.Fatalf("expected single segment to absorb all text, got %v", out)
	}
}
