package voicechat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tinybuddy/buddy-core/core/audio"
	"github.com/tinybuddy/buddy-core/core/texttospeech"
)

// AudioArtifact is one synthesized clip of reply speech queued for playback.
type AudioArtifact struct {
	ID   string
	Clip []byte
	// Text is the sentence the clip was synthesized from.
	Text  string
	Final bool
	// MediaURL marks clips that carry fetched media instead of speech.
	MediaURL string
}

// synthesisStage turns queued sentence units into audio clips, strictly one
// synthesis call at a time, and hands the clips to the playback queue in
// order. A failed synthesis skips that sentence and moves on.
type synthesisStage struct {
	synthesizer texttospeech.Synthesizer
	voiceID     string
	// encoding is the playback device's format, requested from the
	// synthesizer so clips can go to the device without transcoding.
	encoding    audio.EncodingInfo
	tracker     *drainTracker
	emit        func(AudioArtifact)
	onFirstClip func(time.Duration)

	mu           sync.Mutex
	queue        []SentenceUnit
	closed       bool
	updateSignal chan struct{}
}

func newSynthesisStage(
	synthesizer texttospeech.Synthesizer,
	voiceID string,
	tracker *drainTracker,
	emit func(AudioArtifact),
) *synthesisStage {
	return &synthesisStage{
		synthesizer:  synthesizer,
		voiceID:      voiceID,
		tracker:      tracker,
		emit:         emit,
		updateSignal: make(chan struct{}, 1),
	}
}

// Enqueue adds a sentence to the synthesis queue. Units enqueued after Close
// are dropped.
func (s *synthesisStage) Enqueue(unit SentenceUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, unit)
	s.tracker.textQueued()
	s.signal()
}

// Close marks the end of the sentence stream. Run returns once everything
// already queued has been synthesized.
func (s *synthesisStage) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.signal()
}

func (s *synthesisStage) signal() {
	select {
	case s.updateSignal <- struct{}{}:
	default:
	}
}

func (s *synthesisStage) next() (SentenceUnit, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return SentenceUnit{}, false, s.closed
	}
	unit := s.queue[0]
	s.queue = s.queue[1:]
	return unit, true, s.closed
}

// Run drains the queue until Close and the queue is empty, or the context
// ends.
func (s *synthesisStage) Run(ctx context.Context) error {
	for {
		unit, ok, closed := s.next()
		if !ok {
			if closed {
				return nil
			}
			select {
			case <-s.updateSignal:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		s.tracker.synthesisStarted()
		s.tracker.textTaken()
		s.synthesize(ctx, unit)
	}
}

func (s *synthesisStage) synthesize(ctx context.Context, unit SentenceUnit) {
	ctx, span := tracer.Start(ctx, "synthesize sentence")
	defer span.End()
	span.SetAttributes(
		attribute.Int("sentence.length", len(unit.Text)),
		attribute.Bool("sentence.final", unit.Final),
	)

	opts := []texttospeech.SynthesisOption{}
	if s.voiceID != "" {
		opts = append(opts, texttospeech.WithVoice(s.voiceID))
	}
	if unit.ContainsCJK {
		opts = append(opts, texttospeech.WithLanguageHint("zh"))
	}
	if !s.encoding.IsZero() {
		opts = append(opts, texttospeech.WithEncodingInfo(s.encoding))
	}

	start := time.Now()
	clip, err := s.synthesizer.Synthesize(ctx, unit.Text, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to synthesize sentence")
		logger.WarnContext(ctx, "skipping sentence after synthesis failure",
			"error", err, "sentence", unit.Text)
		s.tracker.synthesisEnded()
		return
	}

	if s.onFirstClip != nil {
		s.onFirstClip(time.Since(start))
		s.onFirstClip = nil
	}
	if bps := s.encoding.BytesPerSecond(); bps > 0 {
		span.SetAttributes(attribute.Float64("clip.duration_seconds",
			float64(len(clip))/float64(bps)))
	}

	s.emit(AudioArtifact{
		ID:    uuid.NewString(),
		Clip:  clip,
		Text:  unit.Text,
		Final: unit.Final,
	})
	// The clip is counted as pending playback before the synthesis flag
	// drops, so the drain tracker never sees a gap between the stages.
	s.tracker.synthesisEnded()
}
