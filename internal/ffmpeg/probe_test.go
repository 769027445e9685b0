package ffmpeg

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"Duration: 00:00:15.50, start: 0.000000", 15*time.Second + 500*time.Millisecond},
		{"Duration: 01:02:03.004, bitrate: 128 kb/s", time.Hour + 2*time.Minute + 3*time.Second + 4*time.Millisecond},
	}
	for _, c := range cases {
		got, err := parseDuration(c.in)
		if err != nil {
			t.Fatalf("parseDuration(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("parseDuration(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseDuration_NoMatch(t *testing.T) {
	t.Parallel()
	if _, err := parseDuration("no duration here"); err == nil {
		t.Fatal("expected error for unparseable output")
	}
}

func TestFormatTime(t *testing.T) {
	t.Parallel()
	got := formatTime(90 * time.Second)
	want := "00:01:30.000"
	if got != want {
		t.Errorf("formatTime = %q, want %q", got, want)
	}
}
