package pipeline

import "errors"

var (
	// ErrTranscriptionBusy is returned when a transcribe-for-C6 call is
	// already in flight; the caller must not retry immediately.
	ErrTranscriptionBusy = errors.New("transcription already in progress")

	// ErrDiarizationBusy is returned when a diarize-for-C6 call is already
	// in flight.
	ErrDiarizationBusy = errors.New("diarization already in progress")

	// ErrTranscriptionExhausted means every backend in the ladder failed or
	// returned empty. Fatal for the current run: no transcript is persisted,
	// and the error is reported through Notifier.OnError instead of a
	// completion event.
	ErrTranscriptionExhausted = errors.New("transcription exhausted every backend")
)
