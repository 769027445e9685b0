// Package coordinator wires the capture, clip, recording, transcription,
// diarization, and post-processing components into the single entry
// point the out-of-scope hotkey/CLI layer calls into.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meetingcore/meetingcore/internal/capture"
	"github.com/meetingcore/meetingcore/internal/clip"
	"github.com/meetingcore/meetingcore/internal/config"
	"github.com/meetingcore/meetingcore/internal/diarize"
	"github.com/meetingcore/meetingcore/internal/pipeline"
	"github.com/meetingcore/meetingcore/internal/recording"
	"github.com/meetingcore/meetingcore/internal/transcribe"
)

// defaultExtractTranscriptName is the file name ResolveOutputPath falls back
// to when the requested output path is empty.
const defaultExtractTranscriptName = "extract.txt"

// HotkeyKind identifies one of the discrete events the hotkey collaborator
// emits. Unrecognized kinds are forwarded nowhere and logged, not erred on
// — the core only reacts to the two it owns.
type HotkeyKind int

const (
	ExtractRecentAudio HotkeyKind = iota
	CancelCurrent
	OtherHotkey
)

// HotkeyEvent is the discrete event the hotkey collaborator delivers.
type HotkeyEvent struct {
	Kind          HotkeyKind
	RequestedSecs float64
	Deadline      time.Time

	// OutputPath, when set, asks ExtractRecentAudio to also write the
	// transcribed clip text to disk, resolved against OutputDir the same
	// way the CLI resolves any user-supplied output file.
	OutputPath string
}

// staleTempFileAge is how old a leftover buffer/clip temp file must be
// before the startup sweep removes it.
const staleTempFileAge = time.Hour

var staleTempFilePrefixes = []string{"buffer_", "captured_", "fixed_buffer_"}

// Coordinator owns exactly one instance of each pipeline stage and is the
// single point of contact for the out-of-scope hotkey/CLI/UI collaborators.
// No method relies on process-wide state; everything hangs off the struct.
type Coordinator struct {
	supervisor capture.Supervisor
	extractor  *clip.Extractor
	recorder   *recording.Recorder
	router     *transcribe.Router
	engine     *diarize.Engine
	pipe       *pipeline.Pipeline
	log        *logrus.Logger
	outputDir  string

	mu            sync.Mutex
	extractCancel context.CancelFunc
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

func WithLogger(l *logrus.Logger) Option { return func(c *Coordinator) { c.log = l } }

// WithOutputDir sets the directory relative output paths (HotkeyEvent's
// OutputPath) resolve against.
func WithOutputDir(dir string) Option { return func(c *Coordinator) { c.outputDir = dir } }

// New assembles a Coordinator from already-constructed stage components.
// Stage construction (ffmpeg path resolution, device selection, API key
// wiring) is the caller's job — New only wires what it's handed together
// and runs the startup temp-file sweep.
func New(
	supervisor capture.Supervisor,
	extractor *clip.Extractor,
	recorder *recording.Recorder,
	router *transcribe.Router,
	engine *diarize.Engine,
	pipe *pipeline.Pipeline,
	tempDir string,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		supervisor: supervisor,
		extractor:  extractor,
		recorder:   recorder,
		router:     router,
		engine:     engine,
		pipe:       pipe,
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	sweepStaleTempFiles(tempDir, c.log)
	return c
}

// sweepStaleTempFiles best-effort removes leftover buffer/clip files older
// than an hour. Logged, never fatal: a crashed prior run can leave these
// behind and they should not block a fresh start.
func sweepStaleTempFiles(tempDir string, log *logrus.Logger) {
	if tempDir == "" {
		return
	}
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warn("temp-dir sweep: failed to list directory")
		}
		return
	}

	cutoff := time.Now().Add(-staleTempFileAge)
	for _, entry := range entries {
		if entry.IsDir() || !hasStalePrefix(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(tempDir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.WithError(err).WithField("path", path).Warn("temp-dir sweep: failed to remove stale file")
		} else {
			log.WithField("path", path).Debug("temp-dir sweep: removed stale file")
		}
	}
}

func hasStalePrefix(name string) bool {
	for _, prefix := range staleTempFilePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// HandleHotkeyEvent is the single entry point the hotkey collaborator
// calls. One event maps to at most one in-flight operation: extra events
// while already extracting are dropped with a warning, per the core's
// documented contract.
func (c *Coordinator) HandleHotkeyEvent(ctx context.Context, ev HotkeyEvent) error {
	switch ev.Kind {
	case ExtractRecentAudio:
		return c.extractRecentAudio(ctx, ev)
	case CancelCurrent:
		c.cancelCurrentExtraction()
		return nil
	default:
		c.log.WithField("kind", ev.Kind).Debug("hotkey event has no core handler, ignoring")
		return nil
	}
}

func (c *Coordinator) extractRecentAudio(ctx context.Context, ev HotkeyEvent) error {
	var (
		extractCtx context.Context
		cancel     context.CancelFunc
	)
	if ev.Deadline.IsZero() {
		extractCtx, cancel = context.WithCancel(ctx)
	} else {
		extractCtx, cancel = context.WithDeadline(ctx, ev.Deadline)
	}
	c.setExtractCancel(cancel)
	defer func() {
		c.setExtractCancel(nil)
		cancel()
	}()

	clipResult, err := c.extractor.Extract(extractCtx, clip.Request{
		RequestedSecs: ev.RequestedSecs,
		Deadline:      ev.Deadline,
	})
	if err != nil {
		if err == clip.ErrAlreadyExtracting {
			c.log.Warn("extraction already in progress, dropping hotkey event")
			return nil
		}
		return fmt.Errorf("extract recent audio: %w", err)
	}

	text, backend, err := c.router.Transcribe(ctx, clipResult.Path)
	if err != nil {
		return fmt.Errorf("transcribe clip: %w", err)
	}
	c.log.WithField("backend", backend.String()).WithField("chars", len(text)).
		Info("clip transcribed")

	if ev.OutputPath != "" {
		c.writeExtractTranscript(ev.OutputPath, text)
	}
	return nil
}

// writeExtractTranscript resolves the requested output path against the
// coordinator's output directory and writes the transcribed text there.
// Failure is logged, not returned: the extraction itself already succeeded.
func (c *Coordinator) writeExtractTranscript(requested, text string) {
	resolved := config.ResolveOutputPath(requested, c.outputDir, defaultExtractTranscriptName)
	resolved = config.EnsureExtension(resolved, ".txt")
	if err := os.WriteFile(resolved, []byte(text), 0o644); err != nil { //nolint:gosec // resolved path is user-requested, same trust boundary as any CLI output flag
		c.log.WithError(err).WithField("path", resolved).Warn("failed to write extracted transcript")
		return
	}
	c.log.WithField("path", resolved).Info("wrote extracted transcript")
}

func (c *Coordinator) setExtractCancel(cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extractCancel = cancel
}

func (c *Coordinator) cancelCurrentExtraction() {
	c.mu.Lock()
	cancel := c.extractCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// EnsureCapturing starts the rolling capture buffer if it isn't already
// running. Safe to call repeatedly.
func (c *Coordinator) EnsureCapturing(ctx context.Context) error {
	if c.supervisor.IsRunning() {
		return nil
	}
	return c.supervisor.StartBuffering(ctx)
}

// StartRecording begins a full-meeting recording.
func (c *Coordinator) StartRecording(ctx context.Context, title string, quality recording.Quality, enhanced bool) (*recording.Session, error) {
	return c.recorder.Start(ctx, title, quality, enhanced)
}

// StopRecording stops the active recording and, on a clean stop, fires the
// post-processing pipeline asynchronously so the caller isn't blocked on
// transcription and diarization.
func (c *Coordinator) StopRecording(ctx context.Context, force bool) (*recording.Session, error) {
	session, err := c.recorder.Stop(ctx, force)
	if err != nil {
		return nil, err
	}
	if session.Status == recording.Stopped {
		go c.runPipelineAsync(session)
	}
	return session, nil
}

func (c *Coordinator) runPipelineAsync(session *recording.Session) {
	ctx := context.Background()
	if _, err := c.pipe.Run(ctx, session.FilePath, session.DurationS); err != nil {
		c.log.WithError(err).WithField("recording_id", session.RecordingID).
			Error("post-processing pipeline failed")
	}
}
