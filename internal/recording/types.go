package recording

import "time"

// Status is a RecordingSession's lifecycle state.
type Status int

const (
	Idle Status = iota
	Starting
	Recording
	Paused
	Stopping
	Stopped
	Error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Session is the single source of truth for one full-meeting recording.
// At most one Session is active in a Recorder at a time (I1).
type Session struct {
	RecordingID string
	FilePath    string
	StartedAt   time.Time
	EndedAt     *time.Time
	Status      Status
	StatusMsg   string
	Quality     Quality
	Enhanced    bool
	Format      string
	SizeBytes   int64
	DurationS   float64
	Metadata    map[string]string
}

// clone returns a shallow copy safe to hand to callers without exposing the
// Recorder's internal pointer.
func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Metadata = make(map[string]string, len(s.Metadata))
	for k, v := range s.Metadata {
		cp.Metadata[k] = v
	}
	if s.EndedAt != nil {
		ended := *s.EndedAt
		cp.EndedAt = &ended
	}
	return &cp
}
