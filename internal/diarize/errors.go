package diarize

import "errors"

var (
	// ErrEmptyAudio is returned when the decoded WAV contains no samples.
	ErrEmptyAudio = errors.New("audio file contains no samples")

	// ErrUnsupportedFormat is returned when the WAV container cannot be
	// decoded (corrupt header, non-PCM encoding).
	ErrUnsupportedFormat = errors.New("unsupported or corrupt WAV format")
)
