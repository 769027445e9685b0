package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/meetingcore/meetingcore/internal/diarize"
	"github.com/meetingcore/meetingcore/internal/transcribe"
)

// transcriber is the narrow slice of transcribe.Router the pipeline needs,
// so tests can fake it without standing up a real Router.
type transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, transcribe.Backend, error)
}

// diarizer is the narrow slice of diarize.Engine the pipeline needs.
type diarizer interface {
	Diarize(ctx context.Context, wavPath string) ([]diarize.DiarizedSegment, error)
}

// Pipeline runs the post-processing stage of a completed recording:
// transcribe, diarize, align the two, persist the result, and notify.
// One Pipeline is shared across every recording; the busy flags guard each
// stage against overlapping invocations rather than serializing the whole
// pipeline, since transcription and diarization for different recordings
// would otherwise race on the same underlying process pools.
type Pipeline struct {
	router        transcriber
	engine        diarizer
	notifier      Notifier
	transcriptDir string
	log           *logrus.Logger

	transcribeBusy atomic.Bool
	diarizeBusy    atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithNotifier(n Notifier) Option      { return func(p *Pipeline) { p.notifier = n } }
func WithTranscriptDir(dir string) Option { return func(p *Pipeline) { p.transcriptDir = dir } }
func WithLogger(l *logrus.Logger) Option  { return func(p *Pipeline) { p.log = l } }

// New builds a Pipeline wired to the given router and diarization engine.
func New(router *transcribe.Router, engine *diarize.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		router:   router,
		engine:   engine,
		notifier: NoopNotifier{},
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the four stages in sequence for one completed recording.
// A transcription failure is fatal (no transcript to persist); a
// diarization failure degrades gracefully to a single synthetic speaker
// spanning the whole recording, per the same fallback diarize.Engine uses
// internally when VAD finds nothing.
func (p *Pipeline) Run(ctx context.Context, recordingPath string, durationS float64) (*DiarizedTranscript, error) {
	text, backend, err := p.runTranscribe(ctx, recordingPath)
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrTranscriptionExhausted, err)
		p.notifier.OnError(recordingPath, wrapped)
		return nil, wrapped
	}

	segments, err := p.runDiarize(ctx, recordingPath)
	if err != nil {
		p.log.WithError(err).Warn("diarization failed, falling back to single-speaker transcript")
		segments = []diarize.DiarizedSegment{{StartS: 0, EndS: durationS, SpeakerID: "Speaker 1", Confidence: 0}}
	}

	aligned := Align(segments, text)

	transcript := &DiarizedTranscript{
		ID:              uuid.NewString(),
		SourceAudioPath: recordingPath,
		CreatedAt:       time.Now(),
		TotalDurationS:  durationS,
		Speakers:        summarizeSpeakers(aligned),
		Segments:        aligned,
		FullText:        joinText(aligned),
		MeanConfidence:  meanConfidence(aligned),
		BackendUsed:     backend.String(),
	}

	if p.transcriptDir != "" {
		if _, err := persist(p.transcriptDir, transcript); err != nil {
			p.log.WithError(err).Error("failed to persist transcript")
			transcript.TranscriptionErr = err.Error()
		}
	}

	p.notifier.OnComplete(transcript)
	return transcript, nil
}

func (p *Pipeline) runTranscribe(ctx context.Context, audioPath string) (string, transcribe.Backend, error) {
	if !p.transcribeBusy.CompareAndSwap(false, true) {
		return "", 0, ErrTranscriptionBusy
	}
	defer p.transcribeBusy.Store(false)

	return p.router.Transcribe(ctx, audioPath)
}

func (p *Pipeline) runDiarize(ctx context.Context, wavPath string) ([]diarize.DiarizedSegment, error) {
	if !p.diarizeBusy.CompareAndSwap(false, true) {
		return nil, ErrDiarizationBusy
	}
	defer p.diarizeBusy.Store(false)

	return p.engine.Diarize(ctx, wavPath)
}
