package voicechat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tinybuddy/buddy-core/core/audio"
	"github.com/tinybuddy/buddy-core/core/texttospeech"
)

type fakeSynthesizer struct {
	mu       sync.Mutex
	requests []string
	options  []texttospeech.SynthesisOptions
	failOn   map[string]bool
}

func (s *fakeSynthesizer) Synthesize(_ context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	options := texttospeech.SynthesisOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, text)
	s.options = append(s.options, options)
	if s.failOn[text] {
		return nil, fmt.Errorf("synthesis backend unavailable")
	}
	return []byte("clip:" + text), nil
}

func (s *fakeSynthesizer) requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func TestSynthesisStageEmitsClipsInOrder(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	tracker := &drainTracker{}
	var emitted []AudioArtifact
	stage := newSynthesisStage(synthesizer, "voice-1", tracker, func(artifact AudioArtifact) {
		emitted = append(emitted, artifact)
	})

	stage.Enqueue(SentenceUnit{Text: "First sentence. "})
	stage.Enqueue(SentenceUnit{Text: "Second sentence.", Final: true})
	stage.Close()

	if err := stage.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(emitted) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(emitted))
	}
	if emitted[0].Text != "First sentence. " || string(emitted[0].Clip) != "clip:First sentence. " {
		t.Errorf("unexpected first clip: %#v", emitted[0])
	}
	if !emitted[1].Final {
		t.Error("final flag should carry through to the clip")
	}
	if emitted[0].ID == emitted[1].ID {
		t.Error("clips should get distinct ids")
	}
	if synthesizer.options[0].VoiceID != "voice-1" {
		t.Errorf("voice should be passed through, got %q", synthesizer.options[0].VoiceID)
	}
}

func TestSynthesisStageSkipsFailedSentence(t *testing.T) {
	synthesizer := &fakeSynthesizer{failOn: map[string]bool{"Bad sentence. ": true}}
	var emitted []AudioArtifact
	stage := newSynthesisStage(synthesizer, "", &drainTracker{}, func(artifact AudioArtifact) {
		emitted = append(emitted, artifact)
	})

	stage.Enqueue(SentenceUnit{Text: "Bad sentence. "})
	stage.Enqueue(SentenceUnit{Text: "Good sentence."})
	stage.Close()

	if err := stage.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(emitted) != 1 || emitted[0].Text != "Good sentence." {
		t.Errorf("failed sentence should be skipped, got %#v", emitted)
	}
	if requested := synthesizer.requested(); len(requested) != 2 {
		t.Errorf("both sentences should be attempted, got %v", requested)
	}
}

func TestSynthesisStageRequestsDeviceEncoding(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	stage := newSynthesisStage(synthesizer, "", &drainTracker{}, func(AudioArtifact) {})
	stage.encoding = audio.EncodingInfo{SampleRate: 8000, Format: audio.EncodingMulaw}

	stage.Enqueue(SentenceUnit{Text: "Match the speaker, please."})
	stage.Close()
	if err := stage.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := synthesizer.options[0].EncodingInfo; got != stage.encoding {
		t.Errorf("device encoding should reach the synthesizer, got %#v", got)
	}
}

func TestSynthesisStagePassesLanguageHintForCJK(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	stage := newSynthesisStage(synthesizer, "", &drainTracker{}, func(AudioArtifact) {})

	stage.Enqueue(SentenceUnit{Text: "你好，今天天气很好！", ContainsCJK: true})
	stage.Close()
	if err := stage.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if hint := synthesizer.options[0].LanguageHint; hint == "" {
		t.Error("CJK sentences should carry a language hint")
	}
}

func TestSynthesisStageDrainTrackerNeverGaps(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	tracker := &drainTracker{}
	sequencer := newPlaybackSequencer(&fakeDevice{}, tracker, nil, nil)
	stage := newSynthesisStage(synthesizer, "", tracker, sequencer.Enqueue)

	stage.Enqueue(SentenceUnit{Text: "Only sentence here."})

	// A waiter registered while the unit is queued must stay blocked
	// through the synthesis to playback handoff.
	released := make(chan struct{})
	go func() {
		defer close(released)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		tracker.await(ctx)
	}()

	stage.Close()
	if err := stage.Run(context.Background()); err != nil {
		t.Fatalf("synthesis run failed: %v", err)
	}

	select {
	case <-released:
		t.Fatal("tracker drained before playback happened")
	default:
	}

	sequencer.Close()
	if err := sequencer.Run(context.Background()); err != nil {
		t.Fatalf("playback run failed: %v", err)
	}
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("tracker never drained after playback")
	}
}

func TestSynthesisStageRecordsFirstClipTime(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	stage := newSynthesisStage(synthesizer, "", &drainTracker{}, func(AudioArtifact) {})
	recorded := 0
	stage.onFirstClip = func(time.Duration) { recorded++ }

	stage.Enqueue(SentenceUnit{Text: "One. "})
	stage.Enqueue(SentenceUnit{Text: "Two."})
	stage.Close()
	if err := stage.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if recorded != 1 {
		t.Errorf("first clip time should be recorded exactly once, got %d", recorded)
	}
}
