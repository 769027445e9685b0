package capture

import (
	"errors"
	"strings"
)

// Sentinel errors classifying why the capture tool could not be started or
// kept alive. The first four are paired with a remediation paragraph in the
// stderrClasses table that classifyStderr matches against.
var (
	// ErrNoAudioDevice indicates no audio input device was found or configured.
	ErrNoAudioDevice = errors.New("no audio input device found")

	// ErrPermissionDenied indicates the OS denied microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrFormatUnsupported indicates the capture tool rejected the requested
	// sample rate, channel count, or codec combination.
	ErrFormatUnsupported = errors.New("capture format not supported")

	// ErrDeviceEnumerationFailed indicates the capture tool could not list
	// input devices at all (distinct from finding zero devices).
	ErrDeviceEnumerationFailed = errors.New("device enumeration failed")

	// ErrNotRunning describes the absence of a Running buffer handle. No
	// FFmpegSupervisor method returns it.
	ErrNotRunning = errors.New("capture is not running")

	// ErrAlreadyRunning describes a start attempted while a handle is already
	// Starting or Running. No FFmpegSupervisor method returns it:
	// StartBuffering returns nil in that case.
	ErrAlreadyRunning = errors.New("capture already running")
)

// deviceError wraps a sentinel with an actionable remediation paragraph,
// matching the DeviceAccessError taxonomy.
type deviceError struct {
	wrapped error
	help    string
}

func (e *deviceError) Error() string { return e.wrapped.Error() + ": " + e.help }
func (e *deviceError) Unwrap() error { return e.wrapped }

// classifyStderr inspects the capture tool's stderr and returns a
// DeviceAccessError with a canned remediation paragraph. Returns nil if the
// stderr does not match any known failure class.
func classifyStderr(stderr string) error {
	for _, c := range stderrClasses {
		if c.match(stderr) {
			return &deviceError{wrapped: c.sentinel, help: c.help}
		}
	}
	return nil
}

type stderrClass struct {
	match   func(string) bool
	sentinel error
	help    string
}

var stderrClasses = []stderrClass{
	{
		match:    containsAny("Operation not permitted", "permission denied", "Permission denied"),
		sentinel: ErrPermissionDenied,
		help:     "grant microphone access: macOS System Settings > Privacy & Security > Microphone; Linux check pipewire/pulseaudio permissions",
	},
	{
		match:    containsAny("Input/output error", "No such device", "Device or resource busy"),
		sentinel: ErrNoAudioDevice,
		help:     "run the device listing command to see available inputs, then pass the correct index via configuration",
	},
	{
		match:    containsAny("Invalid sample rate", "Sample format", "not supported"),
		sentinel: ErrFormatUnsupported,
		help:     "the requested sample rate or channel count is not supported by this device; try the default settings",
	},
	{
		match:    containsAny("could not list", "enumeration failed"),
		sentinel: ErrDeviceEnumerationFailed,
		help:     "device enumeration failed; verify the capture tool is installed correctly (run the setup command)",
	},
}

func containsAny(substrs ...string) func(string) bool {
	return func(s string) bool {
		for _, sub := range substrs {
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	}
}
