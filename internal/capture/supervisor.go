// Package capture owns the long-running external capture process that
// keeps a rolling window of recent microphone audio on disk.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meetingcore/meetingcore/internal/ffmpeg"
)

// State is the lifecycle state of a BufferHandle.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Draining
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Draining:
		return "Draining"
	case Closed:
		return "Closed"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// BufferHandle describes the currently-active rolling buffer, if any.
// Owned exclusively by Supervisor; callers only ever see a copy.
type BufferHandle struct {
	Path      string
	StartedAt time.Time
	WriterPID int
	State     State
}

const (
	defaultStopTimeout      = 5 * time.Second
	defaultExtractTimeout   = 10 * time.Second
	extractionFinalizeDelay = 300 * time.Millisecond
	settleDelay             = 500 * time.Millisecond
)

// clock abstracts time.Now for deterministic tests.
type clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// process is the handle a launcher hands back for an already-started
// capture subprocess.
type process struct {
	pid    int
	stdin  io.WriteCloser
	stderr func() string
	wait   func() error // blocks until exit; safe to call from one goroutine
	kill   func() error
}

// launcher starts the capture subprocess. Abstracted so tests can avoid
// spawning a real ffmpeg binary.
type launcher interface {
	Launch(ctx context.Context, path string, args []string) (*process, error)
}

type execLauncher struct{}

func (execLauncher) Launch(ctx context.Context, path string, args []string) (*process, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, err
	}
	return &process{
		pid:    cmd.Process.Pid,
		stdin:  stdin,
		stderr: stderr.String,
		wait:   cmd.Wait,
		kill:   cmd.Process.Kill,
	}, nil
}

// Supervisor is implemented by FFmpegSupervisor; it is the C1 public API.
type Supervisor interface {
	StartBuffering(ctx context.Context) error
	StopBuffering(ctx context.Context) error
	StopBufferingForExtraction(ctx context.Context) error
	IsRunning() bool
	CurrentBufferPath() (string, bool)
}

var _ Supervisor = (*FFmpegSupervisor)(nil)

// Option configures an FFmpegSupervisor.
type Option func(*FFmpegSupervisor)

// WithClock overrides the clock, for tests.
func WithClock(c clock) Option {
	return func(s *FFmpegSupervisor) { s.clock = c }
}

// WithLauncher overrides the subprocess launcher, for tests.
func WithLauncher(l launcher) Option {
	return func(s *FFmpegSupervisor) { s.launcher = l }
}

// WithLogger overrides the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(s *FFmpegSupervisor) { s.log = l }
}

// WithTempDir overrides where buffer files are written.
func WithTempDir(dir string) Option {
	return func(s *FFmpegSupervisor) { s.tempDir = dir }
}

// WithStopTimeout overrides the graceful-stop timeout used by StopBuffering.
func WithStopTimeout(d time.Duration) Option {
	return func(s *FFmpegSupervisor) { s.stopTimeout = d }
}

// WithExtractionTimeout overrides the (longer) timeout used by
// StopBufferingForExtraction.
func WithExtractionTimeout(d time.Duration) Option {
	return func(s *FFmpegSupervisor) { s.extractTimeout = d }
}

// FFmpegSupervisor implements Supervisor using ffmpeg as the capture tool.
type FFmpegSupervisor struct {
	ffmpegPath string
	device     string // raw, un-normalized configured device string
	sampleRate int
	channels   int

	clock          clock
	launcher       launcher
	log            *logrus.Logger
	tempDir        string
	stopTimeout    time.Duration
	extractTimeout time.Duration

	mu     sync.Mutex
	handle *BufferHandle
	cancel context.CancelFunc
	done   chan error
}

// NewFFmpegSupervisor creates a capture supervisor for the given device.
// device is either ":N" or "V:N"; sampleRate/channels configure the PCM
// capture format.
func NewFFmpegSupervisor(ffmpegPath, device string, sampleRate, channels int, opts ...Option) (*FFmpegSupervisor, error) {
	if ffmpegPath == "" {
		return nil, fmt.Errorf("ffmpegPath cannot be empty: %w", ffmpeg.ErrNotFound)
	}
	s := &FFmpegSupervisor{
		ffmpegPath:     ffmpegPath,
		device:         device,
		sampleRate:     sampleRate,
		channels:       channels,
		clock:          realClock{},
		launcher:       execLauncher{},
		log:            logrus.StandardLogger(),
		tempDir:        os.TempDir(),
		stopTimeout:    defaultStopTimeout,
		extractTimeout: defaultExtractTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StartBuffering is idempotent: a no-op if a handle is already Starting or
// Running.
func (s *FFmpegSupervisor) StartBuffering(ctx context.Context) error {
	s.mu.Lock()
	if s.handle != nil && (s.handle.State == Starting || s.handle.State == Running) {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	path := filepath.Join(s.tempDir, fmt.Sprintf("buffer_%d.wav", s.clock.Now().UnixMilli()))
	args := s.buildArgs(path)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	s.mu.Lock()
	s.handle = &BufferHandle{Path: path, StartedAt: s.clock.Now(), State: Starting}
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	proc, err := s.launcher.Launch(runCtx, s.ffmpegPath, args)
	if err != nil {
		cancel()
		s.transitionFailed()
		return &deviceError{wrapped: ErrNoAudioDevice, help: "failed to start capture process: " + err.Error()}
	}
	s.mu.Lock()
	s.handle.WriterPID = proc.pid
	s.mu.Unlock()

	go func() {
		done <- waitGraceful(runCtx, proc, s.stopTimeout)
	}()

	// Settle probe: give the process a moment, then check it hasn't already died.
	timer := time.NewTimer(settleDelay)
	defer timer.Stop()
	select {
	case err := <-done:
		// Process exited before settling — classify and surface.
		s.transitionFailed()
		if classified := classifyStderr(proc.stderr()); classified != nil {
			return classified
		}
		return fmt.Errorf("capture process exited immediately: %w", err)
	case <-timer.C:
		s.mu.Lock()
		s.handle.State = Running
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{"component": "capture", "path": path}).Info("capture running")
		return nil
	}
}

// StopBuffering performs a graceful stop and unlinks the buffer file.
func (s *FFmpegSupervisor) StopBuffering(ctx context.Context) error {
	return s.stop(ctx, s.stopTimeout, false)
}

// StopBufferingForExtraction performs a graceful stop with a longer timeout
// and a finalization delay, and does not unlink the file.
func (s *FFmpegSupervisor) StopBufferingForExtraction(ctx context.Context) error {
	return s.stop(ctx, s.extractTimeout, true)
}

func (s *FFmpegSupervisor) stop(ctx context.Context, timeout time.Duration, forExtraction bool) error {
	s.mu.Lock()
	if s.handle == nil || s.handle.State != Running {
		s.mu.Unlock()
		return nil
	}
	s.handle.State = Draining
	cancel := s.cancel
	done := s.done
	path := s.handle.Path
	s.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-time.After(timeout + time.Second):
		// Belt-and-braces: waitGraceful already bounds itself by timeout;
		// this guards against it never reading runCtx.Done() for some reason.
	case <-ctx.Done():
		return ctx.Err()
	}

	if forExtraction {
		time.Sleep(extractionFinalizeDelay)
	}

	s.mu.Lock()
	s.handle.State = Closed
	s.mu.Unlock()

	if !forExtraction {
		_ = os.Remove(path)
		s.mu.Lock()
		s.handle = nil
		s.mu.Unlock()
	}

	return nil
}

func (s *FFmpegSupervisor) transitionFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		s.handle.State = Failed
	}
}

// IsRunning reports whether the buffer handle is in the Running state.
func (s *FFmpegSupervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil && s.handle.State == Running
}

// CurrentBufferPath returns the active buffer's path, if any.
func (s *FFmpegSupervisor) CurrentBufferPath() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return "", false
	}
	return s.handle.Path, true
}

func (s *FFmpegSupervisor) buildArgs(outputPath string) []string {
	format := inputFormat()
	normalized := NormalizeDeviceString(s.device)
	inputArg := formatInputArg(format, normalized)
	return []string{
		"-y",
		"-f", format,
		"-i", inputArg,
		"-ar", strconv.Itoa(s.sampleRate),
		"-ac", strconv.Itoa(s.channels),
		"-c:a", "pcm_s16le",
		outputPath,
	}
}

// waitGraceful races the process's exit against ctx cancellation, sending
// 'q' on its stdin for a clean exit and force-killing past timeout. It
// operates on an already-started process so the supervisor can probe
// liveness between start and stop.
func waitGraceful(ctx context.Context, proc *process, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- proc.wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_, _ = io.WriteString(proc.stdin, "q")
		_ = proc.stdin.Close()
		select {
		case err := <-done:
			return err
		case <-time.After(timeout):
			_ = proc.kill()
			<-done
			return fmt.Errorf("%w: killed after %v", ffmpeg.ErrTimeout, timeout)
		}
	}
}
