package recording

import "errors"

var (
	// ErrAlreadyRecording signals the at-most-one-active-session invariant.
	ErrAlreadyRecording = errors.New("a recording is already in progress")

	// ErrNotRecording is returned by Stop/Pause when no session is active.
	ErrNotRecording = errors.New("no recording is in progress")

	// ErrRecordingSilentFailure is raised by the liveness monitor when the
	// output file stops growing and the capture process is no longer alive.
	ErrRecordingSilentFailure = errors.New("recording stalled: capture process is no longer producing output")

	// ErrEmptyOutput is returned when a stopped recording's output file is
	// zero bytes.
	ErrEmptyOutput = errors.New("recording produced an empty file")

	// ErrUnknownRecording is returned by Delete for an unrecognized id.
	ErrUnknownRecording = errors.New("unknown recording id")
)
