package pipeline

import (
	"math"
	"strings"

	"github.com/meetingcore/meetingcore/internal/diarize"
)

// Align maps transcript text onto diarization segments by proportional
// time: each segment of duration d_i receives a prefix of the remaining
// text of length round(len(text)*d_i/sum(d)). This is intentionally coarse
// (no forced alignment is available locally) — timing precision is at
// segment resolution, not at word resolution. The final segment absorbs
// any leftover runes from rounding, so the full text is always consumed
// exactly once. Empty segments (after trimming) are dropped.
func Align(segments []diarize.DiarizedSegment, text string) []diarize.DiarizedSegment {
	if len(segments) == 0 {
		return nil
	}

	var totalDur float64
	for _, seg := range segments {
		totalDur += seg.EndS - seg.StartS
	}

	runes := []rune(text)
	out := make([]diarize.DiarizedSegment, 0, len(segments))
	var cursor int

	for i, seg := range segments {
		var length int
		switch {
		case i == len(segments)-1:
			length = len(runes) - cursor
		case totalDur <= 0:
			length = 0
		default:
			dur := seg.EndS - seg.StartS
			length = int(math.Round(float64(len(runes)) * dur / totalDur))
		}
		if cursor+length > len(runes) {
			length = len(runes) - cursor
		}
		if length < 0 {
			length = 0
		}

		seg.Text = strings.TrimSpace(string(runes[cursor : cursor+length]))
		cursor += length

		if seg.Text != "" {
			out = append(out, seg)
		}
	}

	if len(out) == 0 && len(runes) > 0 {
		// Every segment rounded to zero length (very short segments next to
		// a tiny transcript) — rather than drop the whole transcript, park
		// the full text on the first segment.
		segments[0].Text = strings.TrimSpace(text)
		return []diarize.DiarizedSegment{segments[0]}
	}
	return out
}
