package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

// Probe reports the duration of a media file by invoking ffmpeg with a
// null output muxer and parsing its stderr. ffmpeg always exits non-zero
// for this invocation shape; the duration is parsed from stderr regardless
// of the exit code, and only a genuinely empty stderr is treated as
// failure to probe.
func Probe(ctx context.Context, ffmpegPath, path string) (time.Duration, error) {
	args := []string{"-i", path, "-f", "null", "-"}
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil && len(output) == 0 {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}
	return parseDuration(string(output))
}

// Remux rewrites src into dst without re-encoding the audio payload
// (copy-codec), repairing a truncated or malformed container header.
func Remux(ctx context.Context, ffmpegPath, src, dst string, timeout time.Duration) error {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	args := []string{"-y", "-i", src, "-c", "copy", dst}
	cmd := exec.CommandContext(runCtx, ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("remux %s -> %s: %w\noutput: %s", src, dst, err, string(output))
	}
	return nil
}

// Slice extracts [start, start+duration) from src into dst using a
// copy-codec (no re-encode) remux, the extraction step of the clip
// extractor.
func Slice(ctx context.Context, ffmpegPath, src, dst string, start, duration time.Duration, timeout time.Duration) error {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	args := []string{
		"-y",
		"-ss", formatTime(start),
		"-i", src,
		"-t", formatTime(duration),
		"-c", "copy",
		dst,
	}
	cmd := exec.CommandContext(runCtx, ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("slice %s -> %s: %w\noutput: %s", src, dst, err, string(output))
	}
	return nil
}

var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)

// parseDuration extracts the "Duration: HH:MM:SS.ms" line from ffmpeg's
// stderr output.
func parseDuration(output string) (time.Duration, error) {
	matches := durationRe.FindStringSubmatch(output)
	if matches == nil {
		return 0, fmt.Errorf("could not parse duration from ffmpeg output")
	}
	h, _ := strconv.Atoi(matches[1])
	m, _ := strconv.Atoi(matches[2])
	s, _ := strconv.Atoi(matches[3])
	frac := matches[4]
	ms, _ := strconv.Atoi(frac)
	switch n := len(frac); {
	case n == 1:
		ms *= 100
	case n == 2:
		ms *= 10
	case n > 3:
		for i := n; i > 3; i-- {
			ms /= 10
		}
	}
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}

// formatTime formats a duration as ffmpeg's HH:MM:SS.mmm argument form.
func formatTime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := d.Seconds() - float64(h*3600+m*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}
