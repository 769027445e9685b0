package recording

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/meetingcore/meetingcore/internal/ffmpeg"
	"github.com/meetingcore/meetingcore/internal/format"
)

const (
	defaultStopTimeout      = 10 * time.Second
	defaultMonitorInterval  = 10 * time.Second
	monitorWarmupObserves   = 2
	monitorFailureThreshold = 3
	smallOutputFloorBytes   = 4096
)

type clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// process mirrors capture's subprocess abstraction: a long-running ffmpeg
// child whose stdin carries the graceful-stop control character.
type process struct {
	pid    int
	stdin  io.WriteCloser
	stderr func() string
	wait   func() error
	kill   func() error
}

type launcher interface {
	Launch(ctx context.Context, path string, args []string) (*process, error)
}

type execLauncher struct{}

func (execLauncher) Launch(ctx context.Context, path string, args []string) (*process, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &process{
		pid:    cmd.Process.Pid,
		stdin:  stdin,
		stderr: func() string { return stderrBuf.String() },
		wait:   cmd.Wait,
		kill:   func() error { return cmd.Process.Kill() },
	}, nil
}

// completionFunc is invoked asynchronously when a recording finishes
// cleanly and passes output validation; it is the narrow hand-off into
// the post-processing pipeline (C6).
type completionFunc func(ctx context.Context, filePath string, durationS float64)

// Recorder owns the single active full-meeting recording session (I1).
type Recorder struct {
	ffmpegPath string
	device     string
	outputDir  string

	clock       clock
	launcher    launcher
	log         *logrus.Logger
	stopTimeout time.Duration
	monitorTick time.Duration
	onComplete  completionFunc

	mu           sync.Mutex
	current      *Session
	lastTerminal *Session
	proc         *process
	procAlive    bool
	cancel       context.CancelFunc
	done         chan error
	monitorStop  chan struct{}
	history      []*Session
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithClock(c clock) Option            { return func(r *Recorder) { r.clock = c } }
func WithLauncher(l launcher) Option      { return func(r *Recorder) { r.launcher = l } }
func WithLogger(l *logrus.Logger) Option  { return func(r *Recorder) { r.log = l } }
func WithOutputDir(dir string) Option     { return func(r *Recorder) { r.outputDir = dir } }
func WithStopTimeout(d time.Duration) Option {
	return func(r *Recorder) { r.stopTimeout = d }
}
func WithMonitorInterval(d time.Duration) Option {
	return func(r *Recorder) { r.monitorTick = d }
}
func WithOnComplete(f completionFunc) Option {
	return func(r *Recorder) { r.onComplete = f }
}

// NewRecorder creates a Recorder that writes full-meeting recordings for
// the given input device into outputDir.
func NewRecorder(ffmpegPath, device, outputDir string, opts ...Option) (*Recorder, error) {
	if ffmpegPath == "" {
		return nil, fmt.Errorf("ffmpegPath cannot be empty: %w", ffmpeg.ErrNotFound)
	}
	r := &Recorder{
		ffmpegPath:  ffmpegPath,
		device:      device,
		outputDir:   outputDir,
		clock:       realClock{},
		launcher:    execLauncher{},
		log:         logrus.StandardLogger(),
		stopTimeout: defaultStopTimeout,
		monitorTick: defaultMonitorInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start begins a new full-meeting recording. Returns ErrAlreadyRecording if
// one is already active.
func (r *Recorder) Start(ctx context.Context, title string, quality Quality, enhanced bool) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && isActive(r.current.Status) {
		return nil, ErrAlreadyRecording
	}

	id := uuid.NewString()
	outPath := filepath.Join(r.outputDir, fmt.Sprintf("recording_%s.wav", id))
	session := &Session{
		RecordingID: id,
		FilePath:    outPath,
		StartedAt:   r.clock.Now(),
		Status:      Starting,
		Quality:     quality,
		Enhanced:    enhanced,
		Format:      "wav",
		Metadata: map[string]string{
			"title":    title,
			"quality":  quality.String(),
			"enhanced": strconv.FormatBool(enhanced),
		},
	}

	if err := r.launchSegment(ctx, session, outPath); err != nil {
		return nil, err
	}

	session.Status = Recording
	r.current = session
	r.startMonitor(session)
	r.log.WithFields(logrus.Fields{"component": "recording", "recording_id": id}).Info("recording started")
	return session.clone(), nil
}

func (r *Recorder) launchSegment(ctx context.Context, session *Session, outPath string) error {
	runCtx, cancel := context.WithCancel(context.Background())
	proc, err := r.launcher.Launch(runCtx, r.ffmpegPath, r.buildArgs(session, outPath))
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start recorder: %w", err)
	}
	done := make(chan error, 1)
	r.procAlive = true
	go func() {
		err := proc.wait()
		r.mu.Lock()
		r.procAlive = false
		r.mu.Unlock()
		done <- err
	}()

	r.cancel = cancel
	r.done = done
	r.proc = proc
	return nil
}

func (r *Recorder) buildArgs(session *Session, outPath string) []string {
	profile := session.Quality.Resolve()
	format := inputFormat()
	args := []string{
		"-y",
		"-f", format,
		"-i", formatInputArg(format, r.device),
		"-ar", strconv.Itoa(profile.SampleRate),
		"-sample_fmt", profile.SampleFormat,
	}
	if af := buildAudioFilterArgs(session.Enhanced); af != nil {
		args = append(args, af...)
	}
	args = append(args, "-c:a", profile.Codec, outPath)
	return args
}

func inputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "alsa"
	}
}

func formatInputArg(format, device string) string {
	if format == "dshow" {
		return "audio=" + device
	}
	return device
}

// Stop halts the active recording. Calling Stop twice is a no-op that
// returns the same terminal session rather than erroring. Once Stop
// finalizes a session, Current reports nil: no child recording process
// remains and the session lives on only in History/lastTerminal.
func (r *Recorder) Stop(ctx context.Context, force bool) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		if r.lastTerminal != nil {
			return r.lastTerminal.clone(), nil
		}
		return nil, ErrNotRecording
	}
	if r.current.Status == Stopped || r.current.Status == Error {
		return r.current.clone(), nil
	}

	r.current.Status = Stopping
	r.stopMonitor()

	timeout := r.stopTimeout
	if force {
		timeout = 0
	}
	if err := r.stopSegment(ctx, timeout); err != nil {
		r.log.WithError(err).Warn("recorder stop did not exit cleanly")
	}

	ended := r.clock.Now()
	r.current.EndedAt = &ended
	r.current.DurationS = ended.Sub(r.current.StartedAt).Seconds()

	if err := r.validateOutput(r.current); err != nil {
		r.current.Status = Error
		r.current.StatusMsg = err.Error()
		r.log.WithError(err).WithField("recording_id", r.current.RecordingID).Error("recording failed validation")
	} else {
		r.current.Status = Stopped
		r.log.WithFields(logrus.Fields{
			"component":    "recording",
			"recording_id": r.current.RecordingID,
			"duration":     format.Duration(time.Duration(r.current.DurationS * float64(time.Second))),
			"size":         format.Size(r.current.SizeBytes),
		}).Info("recording stopped")
		if r.onComplete != nil {
			session := r.current.clone()
			go r.onComplete(context.Background(), session.FilePath, session.DurationS)
		}
	}

	terminal := r.current.clone()
	r.history = append(r.history, terminal.clone())
	r.lastTerminal = terminal.clone()
	r.current = nil
	return terminal, nil
}

func (r *Recorder) stopSegment(ctx context.Context, timeout time.Duration) error {
	if r.proc == nil {
		return nil
	}
	proc, cancel, done := r.proc, r.cancel, r.done
	r.proc, r.cancel, r.done = nil, nil, nil

	if timeout <= 0 {
		_ = proc.kill()
		cancel()
		<-done
		return nil
	}

	_, _ = io.WriteString(proc.stdin, "q")
	_ = proc.stdin.Close()

	select {
	case err := <-done:
		cancel()
		return err
	case <-time.After(timeout):
		_ = proc.kill()
		cancel()
		<-done
		return fmt.Errorf("%w: killed after %v", ffmpeg.ErrTimeout, timeout)
	case <-ctx.Done():
		_ = proc.kill()
		cancel()
		<-done
		return ctx.Err()
	}
}

func (r *Recorder) validateOutput(s *Session) error {
	info, err := os.Stat(s.FilePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmptyOutput, err)
	}
	s.SizeBytes = info.Size()
	if info.Size() == 0 {
		return ErrEmptyOutput
	}
	if info.Size() < smallOutputFloorBytes && s.DurationS > 60 {
		r.log.WithFields(logrus.Fields{
			"recording_id": s.RecordingID,
			"size":         format.Size(info.Size()),
			"duration":     format.Duration(time.Duration(s.DurationS * float64(time.Second))),
		}).Warn("recording output is suspiciously small for its duration")
	}
	return nil
}

// Pause stops the underlying capture process without finalizing the
// session, so Resume can continue under the same recording id.
func (r *Recorder) Pause(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil || r.current.Status != Recording {
		return nil, ErrNotRecording
	}
	r.stopMonitor()
	if err := r.stopSegment(ctx, r.stopTimeout); err != nil {
		r.log.WithError(err).Warn("pause did not stop cleanly")
	}
	r.current.Status = Paused
	return r.current.clone(), nil
}

// Resume restarts capture into a new segment file under the same
// recording id: pause/resume is implemented as stop/start, not a true
// subprocess suspend.
func (r *Recorder) Resume(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil || r.current.Status != Paused {
		return nil, ErrNotRecording
	}
	partN := len(r.history) + 2
	segmentPath := fmt.Sprintf("%s.part%d.wav", trimExt(r.current.FilePath), partN)
	if err := r.launchSegment(ctx, r.current, segmentPath); err != nil {
		return nil, err
	}
	r.current.FilePath = segmentPath
	r.current.Status = Recording
	r.startMonitor(r.current)
	return r.current.clone(), nil
}

func trimExt(path string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)]
}

// Current returns the session that has not yet been finalized by Stop
// (recording, paused, or marked Error by the monitor), or nil when there is
// none. Once Stop finalizes a session, Current returns nil.
func (r *Recorder) Current() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.clone()
}

// List returns every completed (or failed) session in start order.
func (r *Recorder) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, len(r.history))
	for i, s := range r.history {
		out[i] = s.clone()
	}
	return out
}

// Delete removes a completed session's recording file by id.
func (r *Recorder) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.history {
		if s.RecordingID == id {
			if err := os.Remove(s.FilePath); err != nil && !os.IsNotExist(err) {
				return err
			}
			r.history = append(r.history[:i], r.history[i+1:]...)
			return nil
		}
	}
	return ErrUnknownRecording
}

func isActive(s Status) bool {
	return s == Starting || s == Recording || s == Paused
}
