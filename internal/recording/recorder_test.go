package recording

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeWriteCloser struct{ closed bool }

func (f *fakeWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (f *fakeWriteCloser) Close() error                { f.closed = true; return nil }

type fakeLauncher struct {
	exitAfter time.Duration
	writesTo  func(path string)
}

func (f *fakeLauncher) Launch(ctx context.Context, path string, args []string) (*process, error) {
	outPath := args[len(args)-1]
	if f.writesTo != nil {
		f.writesTo(outPath)
	} else {
		_ = os.WriteFile(outPath, []byte("wavdata"), 0o644)
	}

	exited := make(chan struct{})
	go func() {
		if f.exitAfter > 0 {
			select {
			case <-time.After(f.exitAfter):
			case <-ctx.Done():
			}
		} else {
			<-ctx.Done()
		}
		close(exited)
	}()

	return &process{
		pid:    999,
		stdin:  &fakeWriteCloser{},
		stderr: func() string { return "" },
		wait:   func() error { <-exited; return nil },
		kill:   func() error { return nil },
	}, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestRecorder(t *testing.T, l launcher, opts ...Option) *Recorder {
	t.Helper()
	base := []Option{
		WithLauncher(l),
		WithClock(fixedClock{t: time.Unix(1700000000, 0)}),
		WithStopTimeout(100 * time.Millisecond),
		WithMonitorInterval(20 * time.Millisecond),
	}
	r, err := NewRecorder("ffmpeg", ":0", t.TempDir(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	return r
}

func TestStart_TransitionsToRecording(t *testing.T) {
	t.Parallel()
	r := newTestRecorder(t, &fakeLauncher{})

	session, err := r.Start(context.Background(), "standup", High, false)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if session.Status != Recording {
		t.Fatalf("expected Recording, got %v", session.Status)
	}
	if session.Metadata["title"] != "standup" {
		t.Errorf("expected title metadata preserved, got %q", session.Metadata["title"])
	}
}

func TestStart_RejectsSecondConcurrentRecording(t *testing.T) {
	t.Parallel()
	r := newTestRecorder(t, &fakeLauncher{})

	if _, err := r.Start(context.Background(), "", Medium, false); err != nil {
		t.Fatalf("first start: %v", err)
	}
	_, err := r.Start(context.Background(), "", Medium, false)
	if !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}
}

func TestStop_ValidatesNonEmptyOutputAndFiresCompletion(t *testing.T) {
	t.Parallel()
	completed := make(chan string, 1)
	r := newTestRecorder(t, &fakeLauncher{}, WithOnComplete(func(ctx context.Context, path string, durationS float64) {
		completed <- path
	}))

	session, err := r.Start(context.Background(), "", Ultra, true)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	stopped, err := r.Stop(context.Background(), false)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Status != Stopped {
		t.Fatalf("expected Stopped, got %v (%s)", stopped.Status, stopped.StatusMsg)
	}

	select {
	case path := <-completed:
		if path != session.FilePath {
			t.Errorf("completion path = %q, want %q", path, session.FilePath)
		}
	case <-time.After(time.Second):
		t.Fatal("expected completion callback to fire")
	}
}

func TestStop_ClearsCurrentSoNoChildRecordingRemains(t *testing.T) {
	t.Parallel()
	r := newTestRecorder(t, &fakeLauncher{})

	if _, err := r.Start(context.Background(), "", Low, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	if r.Current() == nil {
		t.Fatal("expected Current to report the active session")
	}
	if _, err := r.Stop(context.Background(), false); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := r.Current(); got != nil {
		t.Fatalf("expected Current to be nil after Stop, got %+v", got)
	}
}

func TestStop_IsIdempotent(t *testing.T) {
	t.Parallel()
	r := newTestRecorder(t, &fakeLauncher{})

	if _, err := r.Start(context.Background(), "", Low, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	first, err := r.Stop(context.Background(), false)
	if err != nil {
		t.Fatalf("first stop: %v", err)
	}
	second, err := r.Stop(context.Background(), false)
	if err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if first.RecordingID != second.RecordingID || second.Status != Stopped {
		t.Fatalf("expected idempotent stop to return the same terminal session")
	}
}

func TestStop_EmptyOutputMarksError(t *testing.T) {
	t.Parallel()
	r := newTestRecorder(t, &fakeLauncher{writesTo: func(path string) {
		_ = os.WriteFile(path, []byte{}, 0o644)
	}})

	if _, err := r.Start(context.Background(), "", Low, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	stopped, err := r.Stop(context.Background(), false)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Status != Error {
		t.Fatalf("expected Error status for empty output, got %v", stopped.Status)
	}
}

func TestStop_WithoutStartReturnsErrNotRecording(t *testing.T) {
	t.Parallel()
	r := newTestRecorder(t, &fakeLauncher{})
	if _, err := r.Stop(context.Background(), false); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
}

func TestPauseResume_ContinuesUnderSameRecordingID(t *testing.T) {
	t.Parallel()
	r := newTestRecorder(t, &fakeLauncher{})

	session, err := r.Start(context.Background(), "", Medium, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	paused, err := r.Pause(context.Background())
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.Status != Paused {
		t.Fatalf("expected Paused, got %v", paused.Status)
	}

	resumed, err := r.Resume(context.Background())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.RecordingID != session.RecordingID {
		t.Fatalf("expected resume to keep the same recording id")
	}
	if resumed.Status != Recording {
		t.Fatalf("expected Recording after resume, got %v", resumed.Status)
	}
	if resumed.FilePath == session.FilePath {
		t.Fatalf("expected resume to write a new segment file")
	}
}

func TestDelete_RemovesHistoryEntryAndFile(t *testing.T) {
	t.Parallel()
	r := newTestRecorder(t, &fakeLauncher{})

	if _, err := r.Start(context.Background(), "", Low, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	stopped, err := r.Stop(context.Background(), false)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}

	if err := r.Delete(stopped.RecordingID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(stopped.FilePath); !os.IsNotExist(err) {
		t.Fatalf("expected recording file removed")
	}
	if len(r.List()) != 0 {
		t.Fatalf("expected history empty after delete")
	}
}

func TestDelete_UnknownIDReturnsError(t *testing.T) {
	t.Parallel()
	r := newTestRecorder(t, &fakeLauncher{})
	if err := r.Delete("nonexistent"); !errors.Is(err, ErrUnknownRecording) {
		t.Fatalf("expected ErrUnknownRecording, got %v", err)
	}
}

func TestMonitor_DetectsSilentFailure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	outPath := filepath.Join(dir, "held")
	r := newTestRecorder(t, &fakeLauncher{
		exitAfter: 10 * time.Millisecond,
		writesTo: func(path string) {
			_ = os.WriteFile(path, []byte("same-size-forever"), 0o644)
			outPath = path
		},
	})

	if _, err := r.Start(context.Background(), "", Low, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = outPath

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := r.Current(); s != nil && s.Status == Error {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected monitor to mark the session Error after silent failure")
}

var _ io.WriteCloser = (*fakeWriteCloser)(nil)
