package diarize

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	mergeMaxGapS    = 2.0
	minSegmentDurS  = 0.5
	fallbackSpeaker = "Speaker 1"
)

// Engine runs the three-phase diarization pipeline over a completed WAV
// file: robust profile induction, fine-grained segmentation against those
// profiles, then a same-speaker merge pass.
type Engine struct {
	workingSampleRate int
	log               *logrus.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithWorkingSampleRate(rate int) Option { return func(e *Engine) { e.workingSampleRate = rate } }
func WithLogger(l *logrus.Logger) Option    { return func(e *Engine) { e.log = l } }

// NewEngine builds a diarization Engine with sensible defaults.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		workingSampleRate: DefaultWorkingSampleRate,
		log:               logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type extractedSegment struct {
	run      speechRun
	features []float64
	vc       VoiceCharacteristics
}

// Diarize loads wavPath, runs the three phases, and returns a strictly
// time-ordered, non-overlapping list of DiarizedSegments. It never returns
// an empty slice: when VAD finds no speech at all, a single synthetic
// "Speaker 1" segment spanning the whole file is returned instead.
func (e *Engine) Diarize(ctx context.Context, wavPath string) ([]DiarizedSegment, error) {
	samples, err := loadWAV(wavPath, e.workingSampleRate)
	if err != nil {
		return nil, fmt.Errorf("load wav: %w", err)
	}
	durationS := float64(len(samples)) / float64(e.workingSampleRate)

	phase1Runs := detectSpeechRuns(samples, e.workingSampleRate, ConservativeVADConfig())
	if len(phase1Runs) == 0 {
		e.log.Debug("vad found no speech, returning synthetic single-speaker segment")
		return []DiarizedSegment{{
			StartS:     0,
			EndS:       durationS,
			SpeakerID:  fallbackSpeaker,
			Confidence: 0.8,
		}}, nil
	}

	extractedP1, err := e.extractAll(ctx, samples, phase1Runs)
	if err != nil {
		return nil, err
	}
	store := newProfileStore()
	for _, seg := range extractedP1 {
		at := time.Now()
		store.assign(at, seg.run.durationS(e.workingSampleRate), seg.features, seg.vc)
	}

	phase2Runs := detectSpeechRuns(samples, e.workingSampleRate, SensitiveVADConfig())
	extractedP2, err := e.extractAll(ctx, samples, phase2Runs)
	if err != nil {
		return nil, err
	}

	var segments []DiarizedSegment
	for _, seg := range extractedP2 {
		profile := store.matchExisting(seg.features, seg.vc)
		if profile == nil {
			continue
		}
		sim := combinedSimilarity(seg.features, seg.vc, profile)
		segments = append(segments, DiarizedSegment{
			StartS:     float64(seg.run.startSample) / float64(e.workingSampleRate),
			EndS:       float64(seg.run.endSample) / float64(e.workingSampleRate),
			SpeakerID:  profile.ID,
			Confidence: clamp01(sim),
		})
	}

	if len(segments) == 0 {
		return []DiarizedSegment{{
			StartS:     0,
			EndS:       durationS,
			SpeakerID:  fallbackSpeaker,
			Confidence: 0.8,
		}}, nil
	}

	return mergeSameSpeaker(segments), nil
}

// extractAll computes features for every run concurrently, bounded to
// GOMAXPROCS, while preserving run order in the result.
func (e *Engine) extractAll(ctx context.Context, samples []float64, runs []speechRun) ([]extractedSegment, error) {
	sem := semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0)))
	out := make([]extractedSegment, len(runs))
	errCh := make(chan error, len(runs))

	for i, run := range runs {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("acquire extraction slot: %w", err)
		}
		go func(i int, run speechRun) {
			defer sem.Release(1)
			segSamples := samples[run.startSample:run.endSample]
			features, vc := extractSegmentFeatures(segSamples, e.workingSampleRate)
			out[i] = extractedSegment{run: run, features: features, vc: vc}
			errCh <- nil
		}(i, run)
	}

	for range runs {
		if err := <-errCh; err != nil {
			return nil, err
		}
	}
	return out, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// mergeSameSpeaker implements Phase 3: sort by start time, merge adjacent
// same-speaker segments within mergeMaxGapS of each other, then drop
// anything left shorter than minSegmentDurS. Idempotent: running it twice
// produces the same result as running it once.
func mergeSameSpeaker(segments []DiarizedSegment) []DiarizedSegment {
	sort.Slice(segments, func(i, j int) bool { return segments[i].StartS < segments[j].StartS })

	merged := []DiarizedSegment{segments[0]}
	for _, seg := range segments[1:] {
		last := &merged[len(merged)-1]
		if seg.SpeakerID == last.SpeakerID && seg.StartS-last.EndS <= mergeMaxGapS {
			if seg.EndS > last.EndS {
				last.EndS = seg.EndS
			}
			last.Confidence = (last.Confidence + seg.Confidence) / 2
			continue
		}
		merged = append(merged, seg)
	}

	var out []DiarizedSegment
	for _, seg := range merged {
		if seg.duration() < minSegmentDurS {
			continue
		}
		// Dropping a short segment can leave two same-speaker segments next
		// to each other; join them here so a second pass has nothing to merge.
		if n := len(out); n > 0 && out[n-1].SpeakerID == seg.SpeakerID && seg.StartS-out[n-1].EndS <= mergeMaxGapS {
			if seg.EndS > out[n-1].EndS {
				out[n-1].EndS = seg.EndS
			}
			out[n-1].Confidence = (out[n-1].Confidence + seg.Confidence) / 2
			continue
		}
		out = append(out, seg)
	}
	if len(out) == 0 {
		return merged
	}
	return out
}
