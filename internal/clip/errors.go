package clip

import "errors"

// ErrAlreadyExtracting is returned when Extract is called while a previous
// extraction is still in progress; the at-most-one-extraction invariant.
var ErrAlreadyExtracting = errors.New("extraction already in progress")

// ErrNoClipAvailable signals "buffer empty, too short, or unrecoverable" —
// not an error condition per se, but the caller's cue for a "nothing to
// extract" message.
var ErrNoClipAvailable = errors.New("no clip available")
