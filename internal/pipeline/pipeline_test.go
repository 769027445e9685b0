package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/meetingcore/meetingcore/internal/diarize"
	"github.com/meetingcore/meetingcore/internal/transcribe"
)

type fakeTranscriber struct {
	text    string
	backend transcribe.Backend
	err     error
	started chan struct{}
	block   chan struct{}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (string, transcribe.Backend, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	return f.text, f.backend, f.err
}

type fakeDiarizer struct {
	segments []diarize.DiarizedSegment
	err      error
}

func (f *fakeDiarizer) Diarize(ctx context.Context, wavPath string) ([]diarize.DiarizedSegment, error) {
	return f.segments, f.err
}

type fakeNotifier struct {
	mu        sync.Mutex
	completed []*DiarizedTranscript
	errored   []error
}

func (f *fakeNotifier) OnComplete(t *DiarizedTranscript) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, t)
}

func (f *fakeNotifier) OnError(sourceAudioPath string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errored = append(f.errored, err)
}

func newTestPipeline(tr transcriber, di diarizer, dir string, notifier Notifier) *Pipeline {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Pipeline{
		router:        tr,
		engine:        di,
		notifier:      notifier,
		transcriptDir: dir,
		log:           log,
	}
}

func TestPipeline_Run_HappyPath(t *testing.T) {
	tr := &fakeTranscriber{text: "hello there", backend: transcribe.BackendNativeCPP}
	di := &fakeDiarizer{segments: []diarize.DiarizedSegment{
		{StartS: 0, EndS: 3, SpeakerID: "Speaker 1"},
	}}
	notifier := &fakeNotifier{}
	p := newTestPipeline(tr, di, t.TempDir(), notifier)

	transcript, err := p.Run(context.Background(), "/tmp/rec.wav", 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if transcript.FullText != "hello there" {
		t.Fatalf("unexpected full text: %q", transcript.FullText)
	}
	if transcript.BackendUsed != "native-cpp" {
		t.Fatalf("unexpected backend: %q", transcript.BackendUsed)
	}
	if len(notifier.completed) != 1 {
		t.Fatalf("expected one completion notification, got %d", len(notifier.completed))
	}
}

func TestPipeline_Run_TranscriptionFailureIsFatal(t *testing.T) {
	tr := &fakeTranscriber{err: errors.New("no engine")}
	di := &fakeDiarizer{}
	notifier := &fakeNotifier{}
	p := newTestPipeline(tr, di, t.TempDir(), notifier)

	_, err := p.Run(context.Background(), "/tmp/rec.wav", 3)
	if !errors.Is(err, ErrTranscriptionExhausted) {
		t.Fatalf("expected ErrTranscriptionExhausted, got %v", err)
	}
	if len(notifier.errored) != 1 {
		t.Fatalf("expected one error notification, got %d", len(notifier.errored))
	}
}

func TestPipeline_Run_DiarizationFailureDegradesGracefully(t *testing.T) {
	tr := &fakeTranscriber{text: "just one speaker", backend: transcribe.BackendCloud}
	di := &fakeDiarizer{err: errors.New("vad blew up")}
	notifier := &fakeNotifier{}
	p := newTestPipeline(tr, di, t.TempDir(), notifier)

	transcript, err := p.Run(context.Background(), "/tmp/rec.wav", 9)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(transcript.Segments) != 1 || transcript.Segments[0].SpeakerID != "Speaker 1" {
		t.Fatalf("expected single fallback speaker segment, got %v", transcript.Segments)
	}
}

func TestPipeline_Run_TranscribeBusyRejectsOverlap(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	tr := &fakeTranscriber{text: "x", block: block, started: started}
	di := &fakeDiarizer{segments: []diarize.DiarizedSegment{{StartS: 0, EndS: 1, SpeakerID: "Speaker 1"}}}
	p := newTestPipeline(tr, di, t.TempDir(), &fakeNotifier{})

	done := make(chan struct{})
	go func() {
		_, _ = p.Run(context.Background(), "/tmp/a.wav", 1)
		close(done)
	}()

	<-started // first call has entered the busy section

	_, _, err := p.runTranscribe(context.Background(), "/tmp/b.wav")
	if !errors.Is(err, ErrTranscriptionBusy) {
		t.Fatalf("expected ErrTranscriptionBusy, got %v", err)
	}

	close(block)
	<-done
}
