package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"
)

type fakeWriteCloser struct {
	buf    []byte
	closed bool
}

func (f *fakeWriteCloser) Write(p []byte) (int, error) {
	f.buf = append(f.buf, p...)
	return len(p), nil
}
func (f *fakeWriteCloser) Close() error { f.closed = true; return nil }

type fakeLauncher struct {
	exitAfter time.Duration // if 0, never exits on its own
	exitErr   error
	stderr    string
	launched  chan struct{}
}

func (f *fakeLauncher) Launch(ctx context.Context, path string, args []string) (*process, error) {
	stdin := &fakeWriteCloser{}
	exited := make(chan struct{})
	if f.launched != nil {
		close(f.launched)
	}
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
		pid:    1234,
		stdin:  stdin,
		stderr: func() string { return f.stderr },
		wait: func() error {
			<-exited
			return f.exitErr
		},
		kill: func() error { return nil },
	}, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestSupervisor(t *testing.T, l launcher) *FFmpegSupervisor {
	t.Helper()
	s, err := NewFFmpegSupervisor("ffmpeg", ":0", 16000, 1,
		WithLauncher(l),
		WithClock(fixedClock{t: time.Unix(1700000000, 0)}),
		WithTempDir(t.TempDir()),
		WithStopTimeout(200*time.Millisecond),
		WithExtractionTimeout(300*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewFFmpegSupervisor: %v", err)
	}
	return s
}

func TestStartBuffering_TransitionsToRunning(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, &fakeLauncher{})

	if err := s.StartBuffering(context.Background()); err != nil {
		t.Fatalf("StartBuffering: %v", err)
	}
	if !s.IsRunning() {
		t.Fatal("expected Running after settle delay")
	}
	path, ok := s.CurrentBufferPath()
	if !ok || path == "" {
		t.Fatal("expected a current buffer path")
	}
}

func TestStartBuffering_IdempotentWhileRunning(t *testing.T) {
	t.Parallel()
	l := &fakeLauncher{}
	s := newTestSupervisor(t, l)

	if err := s.StartBuffering(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	firstPath, _ := s.CurrentBufferPath()

	if err := s.StartBuffering(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	secondPath, _ := s.CurrentBufferPath()

	if firstPath != secondPath {
		t.Fatalf("expected idempotent start to keep the same buffer, got %q and %q", firstPath, secondPath)
	}
}

func TestStartBuffering_ImmediateExitClassifiesError(t *testing.T) {
	t.Parallel()
	l := &fakeLauncher{
		exitAfter: 10 * time.Millisecond,
		exitErr:   errors.New("exit status 1"),
		stderr:    "avfoundation: Input/output error",
	}
	s := newTestSupervisor(t, l)

	err := s.StartBuffering(context.Background())
	if err == nil {
		t.Fatal("expected error when process exits before settling")
	}
	if !errors.Is(err, ErrNoAudioDevice) {
		t.Fatalf("expected ErrNoAudioDevice, got %v", err)
	}
	if s.IsRunning() {
		t.Fatal("should not be running after immediate exit")
	}
}

func TestStopBuffering_ReturnsToIdleAndUnlinksFile(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, &fakeLauncher{})

	if err := s.StartBuffering(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	path, _ := s.CurrentBufferPath()
	if err := os.WriteFile(path, []byte("pcm"), 0o600); err != nil {
		t.Fatalf("write buffer file: %v", err)
	}
	if err := s.StopBuffering(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.IsRunning() {
		t.Fatal("expected not running after stop")
	}
	if _, ok := s.CurrentBufferPath(); ok {
		t.Fatal("expected no current buffer path after stop")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected buffer file %s to be removed, stat err = %v", path, err)
	}
}

func TestStopBufferingForExtraction_KeepsFile(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, &fakeLauncher{})

	if err := s.StartBuffering(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	path, _ := s.CurrentBufferPath()

	if err := s.StopBufferingForExtraction(context.Background()); err != nil {
		t.Fatalf("stop for extraction: %v", err)
	}

	keptPath, ok := s.CurrentBufferPath()
	if !ok || keptPath != path {
		t.Fatalf("expected extraction stop to preserve the buffer path, got %q ok=%v", keptPath, ok)
	}
}

func TestStopBuffering_NoopWhenNotRunning(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, &fakeLauncher{})
	if err := s.StopBuffering(context.Background()); err != nil {
		t.Fatalf("expected no-op stop to succeed, got %v", err)
	}
}

func TestNormalizeDeviceString(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		":0":    "none:0",
		":3":    "none:3",
		"1:0":   "1:0",
		"hw:0":  "hw:0",
	}
	for in, want := range cases {
		if got := NormalizeDeviceString(in); got != want {
			t.Errorf("NormalizeDeviceString(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClassifyStderr(t *testing.T) {
	t.Parallel()
	if err := classifyStderr("random unrelated noise"); err != nil {
		t.Fatalf("expected nil classification, got %v", err)
	}
	if err := classifyStderr("Operation not permitted"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

var _ io.WriteCloser = (*fakeWriteCloser)(nil)
