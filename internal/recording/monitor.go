package recording

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// startMonitor launches the liveness-monitoring goroutine for session.
// Must be called with r.mu held.
func (r *Recorder) startMonitor(session *Session) {
	stop := make(chan struct{})
	r.monitorStop = stop
	go r.runMonitor(session.RecordingID, stop)
}

// stopMonitor signals the running monitor goroutine to exit. Must be
// called with r.mu held.
func (r *Recorder) stopMonitor() {
	if r.monitorStop != nil {
		close(r.monitorStop)
		r.monitorStop = nil
	}
}

func (r *Recorder) runMonitor(recordingID string, stop chan struct{}) {
	ticker := time.NewTicker(r.monitorTick)
	defer ticker.Stop()

	var lastSize int64 = -1
	observations := 0
	nonGrowing := 0
	statFailures := 0

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		r.mu.Lock()
		session := r.current
		alive := r.procAlive
		r.mu.Unlock()

		if session == nil || session.RecordingID != recordingID || session.Status != Recording {
			return
		}

		info, err := os.Stat(session.FilePath)
		if err != nil {
			statFailures++
			if statFailures >= monitorFailureThreshold {
				r.markSilentFailure(recordingID, "failed to stat recording output")
				return
			}
			continue
		}
		statFailures = 0
		observations++

		if observations <= monitorWarmupObserves {
			lastSize = info.Size()
			continue
		}

		if info.Size() <= lastSize {
			nonGrowing++
		} else {
			nonGrowing = 0
		}
		lastSize = info.Size()

		if nonGrowing >= monitorFailureThreshold && !alive {
			r.markSilentFailure(recordingID, "output stopped growing and capture process exited")
			return
		}
	}
}

func (r *Recorder) markSilentFailure(recordingID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil || r.current.RecordingID != recordingID {
		return
	}
	r.current.Status = Error
	r.current.StatusMsg = ErrRecordingSilentFailure.Error() + ": " + reason
	r.log.WithFields(logrus.Fields{
		"component":    "recording",
		"recording_id": recordingID,
	}).Error(r.current.StatusMsg)
}
