// Package clip implements on-demand extraction of the most-recent N
// seconds of the rolling capture buffer into a self-contained file,
// restarting capture immediately afterward so no observable gap remains.
package clip

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/meetingcore/meetingcore/internal/capture"
	"github.com/meetingcore/meetingcore/internal/ffmpeg"
)

const (
	minCaptureDuration = 500 * time.Millisecond
	outerStopTimeout   = 12 * time.Second
	probeTimeout       = 10 * time.Second
	remuxTimeout       = 15 * time.Second
	sliceTimeout       = 15 * time.Second
)

// Request describes a hotkey-triggered clip extraction.
type Request struct {
	RequestID       string
	RequestedSecs   float64
	Deadline        time.Time
}

// Clip is the result of a successful extraction.
type Clip struct {
	Path      string
	Duration  time.Duration
}

// prober is the probe/remux/slice seam, letting tests exercise the
// extraction algorithm without spawning real ffmpeg.
type prober interface {
	Probe(ctx context.Context, path string) (time.Duration, error)
	Remux(ctx context.Context, src, dst string, timeout time.Duration) error
	Slice(ctx context.Context, src, dst string, start, duration, timeout time.Duration) error
}

type ffmpegProber struct{ ffmpegPath string }

func (p ffmpegProber) Probe(ctx context.Context, path string) (time.Duration, error) {
	return ffmpeg.Probe(ctx, p.ffmpegPath, path)
}

func (p ffmpegProber) Remux(ctx context.Context, src, dst string, timeout time.Duration) error {
	return ffmpeg.Remux(ctx, p.ffmpegPath, src, dst, timeout)
}

func (p ffmpegProber) Slice(ctx context.Context, src, dst string, start, duration, timeout time.Duration) error {
	return ffmpeg.Slice(ctx, p.ffmpegPath, src, dst, start, duration, timeout)
}

// Extractor implements C2 against a single capture.Supervisor.
type Extractor struct {
	supervisor capture.Supervisor
	probe      prober
	tempDir    string
	log        *logrus.Logger

	extracting atomic.Bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger overrides the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(e *Extractor) { e.log = l }
}

// WithTempDir overrides the directory clip files are written to.
func WithTempDir(dir string) Option {
	return func(e *Extractor) { e.tempDir = dir }
}

// withProber overrides the probe/remux/slice implementation; unexported
// because only tests in this package need to fake ffmpeg.
func withProber(p prober) Option {
	return func(e *Extractor) { e.probe = p }
}

// NewExtractor creates a clip Extractor bound to a single capture supervisor.
func NewExtractor(ffmpegPath string, sup capture.Supervisor, opts ...Option) *Extractor {
	e := &Extractor{
		supervisor: sup,
		probe:      ffmpegProber{ffmpegPath: ffmpegPath},
		tempDir:    os.TempDir(),
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs the extraction algorithm. Returns ErrAlreadyExtracting
// immediately (without touching capture) on re-entry. Returns
// ErrNoClipAvailable when the buffer is empty, too short, or unrecoverable
// — this is not a failure the caller should alarm on.
func (e *Extractor) Extract(ctx context.Context, req Request) (*Clip, error) {
	if !e.extracting.CompareAndSwap(false, true) {
		return nil, ErrAlreadyExtracting
	}
	defer e.extracting.Store(false)

	// Step 1: ensure capture is running.
	if !e.supervisor.IsRunning() {
		if err := e.supervisor.StartBuffering(ctx); err != nil {
			return nil, fmt.Errorf("%w: restart failed: %v", ErrNoClipAvailable, err)
		}
	}

	bufferPath, ok := e.supervisor.CurrentBufferPath()
	if !ok {
		return nil, ErrNoClipAvailable
	}

	// Step 2: halt capture for extraction, bounded.
	stopCtx, cancel := context.WithTimeout(ctx, outerStopTimeout)
	err := e.supervisor.StopBufferingForExtraction(stopCtx)
	cancel()
	if err != nil {
		e.log.WithError(err).Warn("stop-for-extraction timed out; proceeding best-effort")
	}

	// Step 3: probe duration, repairing via remux if the probe fails.
	duration, probeErr := e.probeWithRepair(ctx, bufferPath)
	if probeErr != nil {
		e.restartCapture(ctx)
		return nil, fmt.Errorf("%w: buffer unreadable: %v", ErrNoClipAvailable, probeErr)
	}

	// Step 4: minimum-duration floor.
	if duration < minCaptureDuration {
		e.restartCapture(ctx)
		return nil, fmt.Errorf("%w: buffer too short (%v)", ErrNoClipAvailable, duration)
	}

	// Step 5: compute slice window and extract.
	captureSecs := req.RequestedSecs
	if captureSecs <= 0 || time.Duration(captureSecs*float64(time.Second)) > duration {
		captureSecs = duration.Seconds()
	}
	captureDur := time.Duration(captureSecs * float64(time.Second))
	startOffset := duration - captureDur
	if startOffset < 0 {
		startOffset = 0
	}

	clipPath := filepath.Join(e.tempDir, fmt.Sprintf("captured_%d.wav", time.Now().UnixMilli()))
	sliceErr := e.probe.Slice(ctx, bufferPath, clipPath, startOffset, captureDur, sliceTimeout)

	// Step 6: restart capture BEFORE inspecting the slice result.
	e.restartCapture(ctx)

	if sliceErr != nil {
		return nil, fmt.Errorf("%w: slice failed: %v", ErrNoClipAvailable, sliceErr)
	}

	// Step 7: verify the slice and unlink the old buffer.
	if _, err := os.Stat(clipPath); err != nil {
		return nil, fmt.Errorf("%w: slice not found after extraction", ErrNoClipAvailable)
	}
	if _, err := e.probe.Probe(ctx, clipPath); err != nil {
		return nil, fmt.Errorf("%w: slice not probe-readable", ErrNoClipAvailable)
	}
	_ = os.Remove(bufferPath)

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	return &Clip{Path: clipPath, Duration: captureDur}, nil
}

// probeWithRepair probes path's duration, and on failure assumes a
// malformed trailing WAV header: remuxes to a fresh container and retries
// the probe, replacing the original on success.
func (e *Extractor) probeWithRepair(ctx context.Context, path string) (time.Duration, error) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	duration, err := e.probe.Probe(probeCtx, path)
	cancel()
	if err == nil {
		return duration, nil
	}

	fixedPath := filepath.Join(filepath.Dir(path), fmt.Sprintf("fixed_buffer_%d.wav", time.Now().UnixMilli()))
	if remuxErr := e.probe.Remux(ctx, path, fixedPath, remuxTimeout); remuxErr != nil {
		return 0, fmt.Errorf("probe failed (%v) and remux repair failed: %w", err, remuxErr)
	}

	probeCtx2, cancel2 := context.WithTimeout(ctx, probeTimeout)
	duration, err = e.probe.Probe(probeCtx2, fixedPath)
	cancel2()
	if err != nil {
		_ = os.Remove(fixedPath)
		return 0, fmt.Errorf("probe failed after remux repair: %w", err)
	}

	if renameErr := os.Rename(fixedPath, path); renameErr != nil {
		return 0, fmt.Errorf("repaired buffer but failed to replace original: %w", renameErr)
	}
	return duration, nil
}

func (e *Extractor) restartCapture(ctx context.Context) {
	if err := e.supervisor.StartBuffering(ctx); err != nil {
		e.log.WithError(err).Error("failed to restart capture after extraction")
	}
}
