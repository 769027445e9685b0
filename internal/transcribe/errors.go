package transcribe

import "errors"

var (
	// ErrNoEngineAvailable is returned when every backend in the preference
	// ladder (native, packaged, faster-whisper, python reference, cloud)
	// either is unavailable or returned an empty transcript.
	ErrNoEngineAvailable = errors.New("no transcription engine available")

	// ErrModelNotFound signals the native whisper.cpp model file is missing
	// from every entry in ModelSearchPaths.
	ErrModelNotFound = errors.New("whisper model file not found")

	// ErrNumericLibraryIncompatible marks the reference Python engine
	// unusable: its probe invocation failed with a numeric-library
	// version mismatch (e.g. numpy/ctranslate2 ABI skew).
	ErrNumericLibraryIncompatible = errors.New("python transcriber has an incompatible numeric library")

	// ErrEmptyTranscript is returned by an engine runner when the engine
	// exits cleanly but produces no text, triggering fallback to the next
	// backend in the ladder.
	ErrEmptyTranscript = errors.New("engine produced an empty transcript")

	// ErrAPIKeyMissing indicates the cloud backend has no credential and
	// cannot be used as the final rung of the ladder.
	ErrAPIKeyMissing = errors.New("cloud transcription API key not set")
)
