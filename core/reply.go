package voicechat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tinybuddy/buddy-core/core/catalog"
	"github.com/tinybuddy/buddy-core/core/chat"
)

// ReplySession is one in-flight reply turn. It is created by StartReply and
// runs until the reply has been spoken, the turn fails, or it is cancelled
// or superseded.
type ReplySession struct {
	controller *Controller
	cancel     context.CancelFunc
	cancelled  atomic.Bool
	done       chan struct{}

	segmenter   *sentenceSegmenter
	accumulator *toolCallAccumulator
	tracker     *drainTracker
	synthesis   *synthesisStage
	sequencer   *playbackSequencer
	gate        *mediaGate

	metrics  ReplyMetrics
	fullText strings.Builder
}

// StartReply begins streaming a reply to the given conversation and speaking
// it as it arrives. A reply already in flight is cancelled first. The
// returned session can be cancelled or waited on; completion and errors are
// also reported through the controller's callbacks.
func (c *Controller) StartReply(ctx context.Context, messages []chat.Message, settings chat.Settings) (*ReplySession, error) {
	if c == nil {
		return nil, fmt.Errorf("controller is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	session := &ReplySession{
		controller:  c,
		cancel:      cancel,
		done:        make(chan struct{}),
		segmenter:   newSentenceSegmenter(c.segmenterConfig),
		accumulator: newToolCallAccumulator(),
		tracker:     &drainTracker{},
	}
	session.synthesis = newSynthesisStage(c.synthesizer, c.voiceID, session.tracker, func(artifact AudioArtifact) {
		session.sequencer.Enqueue(artifact)
	})
	session.synthesis.encoding = c.device.EncodingInfo()
	session.synthesis.onFirstClip = func(elapsed time.Duration) {
		session.metrics.FirstSynthesisTime = elapsed
	}
	session.sequencer = newPlaybackSequencer(c.device, session.tracker, c.onStatus, c.onError)
	session.gate = newMediaGate(session.tracker, session.dispatchMedia)

	c.mu.Lock()
	previous := c.active
	c.active = session
	c.state = StateStreaming
	// A transcription that immediately preceded this turn belongs to it.
	session.metrics.TranscriptionTime = c.lastTranscriptionTime
	c.lastTranscriptionTime = 0
	c.mu.Unlock()
	if previous != nil {
		previous.Cancel()
	}

	go session.run(ctx, messages, settings)
	return session, nil
}

// Cancel abandons the turn: the stream read is aborted, queued sentences
// and clips are discarded, and the clip being played is interrupted. Safe
// to call any number of times.
func (s *ReplySession) Cancel() {
	if s == nil || !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	s.cancel()
	s.sequencer.Stop()
}

// Wait blocks until the turn has finished, for any reason.
func (s *ReplySession) Wait() {
	if s == nil {
		return
	}
	<-s.done
}

// Metrics returns the turn's latency measurements. Call after Wait.
func (s *ReplySession) Metrics() ReplyMetrics {
	if s == nil {
		return ReplyMetrics{}
	}
	return s.metrics
}

func (s *ReplySession) run(ctx context.Context, messages []chat.Message, settings chat.Settings) {
	defer close(s.done)

	ctx, span := tracer.Start(ctx, "reply turn")
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var workerErr error
	workerErrMu := sync.Mutex{}
	addWorkerErr := func(err error) {
		if err == nil {
			return
		}
		workerErrMu.Lock()
		workerErr = errors.Join(workerErr, err)
		workerErrMu.Unlock()
	}

	run := func(name string, f func(context.Context) error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				addWorkerErr(fmt.Errorf("%s worker panicked: %v", name, recovered))
				cancel()
			}
		}()

		if err := f(ctx); err != nil {
			addWorkerErr(fmt.Errorf("%s worker failed: %w", name, err))
			cancel()
		}
	}

	wg := &sync.WaitGroup{}
	wg.Add(4)
	go func() {
		defer wg.Done()
		run("chat streaming", func(ctx context.Context) error {
			return s.readStream(ctx, messages, settings)
		})
	}()
	go func() {
		defer wg.Done()
		run("speech synthesis", func(ctx context.Context) error {
			defer s.sequencer.Close()
			return s.synthesis.Run(ctx)
		})
	}()
	go func() {
		defer wg.Done()
		run("audio playback", s.sequencer.Run)
	}()
	go func() {
		defer wg.Done()
		run("media dispatch", s.gate.Run)
	}()
	wg.Wait()

	c := s.controller
	fullText := s.fullText.String()

	if s.cancelled.Load() {
		c.setState(StateIdle, s)
		c.finishSession(s, "")
		return
	}
	if workerErr != nil {
		err := fmt.Errorf("reply turn failed: %w", workerErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.setState(StateFailed, s)
		c.finishSession(s, "")
		if c.onError != nil {
			c.onError(err)
		}
		return
	}

	span.SetAttributes(attribute.Int("reply.length", len(fullText)))
	c.setState(StateIdle, s)
	c.finishSession(s, fullText)
	if c.onComplete != nil {
		c.onComplete(fullText)
	}
	if c.onMetrics != nil {
		c.onMetrics(s.metrics)
	}
}

func (s *ReplySession) readStream(ctx context.Context, messages []chat.Message, settings chat.Settings) (err error) {
	s.tracker.streamStarted()
	defer func() {
		s.synthesis.Close()
		// A failed stream aborts the whole turn. Deferred media must go
		// down with it, not play over the error.
		if err != nil {
			s.gate.Discard()
		} else {
			s.gate.Close()
		}
		s.tracker.streamEnded()
	}()

	ctx, span := tracer.Start(ctx, "stream reply text")
	defer span.End()

	requestedAt := time.Now()
	stream := s.controller.chat.OpenStream(ctx, messages, settings,
		chat.WithTools(mediaTools()...),
		chat.WithFirstChunkCallback(func() {
			s.metrics.TimeToFirstChunk = time.Since(requestedAt)
		}),
	)

	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reply stream failed")
			return err
		}

		switch chunk := chunk.(type) {
		case chat.StreamContentChunk:
			if delta := chunk.Content(); delta != "" {
				s.fullText.WriteString(delta)
				if s.controller.onText != nil {
					s.controller.onText(delta)
				}
				for _, unit := range s.segmenter.Feed(delta) {
					s.synthesis.Enqueue(unit)
				}
			}
		case chat.StreamToolCallChunk:
			if call := s.accumulator.Ingest(ctx, chunk.ToolCall()); call != nil {
				s.deferMedia(ctx, call)
			}
		}
	}

	for _, unit := range s.segmenter.Flush() {
		s.synthesis.Enqueue(unit)
	}
	for _, call := range s.accumulator.FinishStream(ctx) {
		s.deferMedia(ctx, call)
	}
	s.controller.setState(StateDraining, s)
	return nil
}

func (s *ReplySession) deferMedia(ctx context.Context, call *CompletedToolCall) {
	c := s.controller

	var resolver catalog.Resolver
	var kind MediaEventKind
	switch call.Name {
	case toolPlayMusic:
		resolver, kind = c.songs, MediaEventSong
	case toolPlaySoundEffect:
		resolver, kind = c.soundEffects, MediaEventSoundEffect
	default:
		logger.WarnContext(ctx, "ignoring unknown tool call", "name", call.Name, "id", call.ID)
		return
	}
	if resolver == nil {
		logger.WarnContext(ctx, "no catalog configured for tool call", "name", call.Name)
		return
	}

	mediaID := call.MediaID()
	if mediaID == "" {
		logger.WarnContext(ctx, "tool call carries no media id", "name", call.Name, "id", call.ID)
		return
	}
	item, ok := resolver.Resolve(ctx, mediaID)
	if !ok {
		logger.WarnContext(ctx, "media id not found in catalog", "name", call.Name, "media_id", mediaID)
		return
	}

	s.gate.Defer(MediaEvent{Kind: kind, ID: item.ID, Name: item.Name, URL: item.URL})
}

func (s *ReplySession) dispatchMedia(ctx context.Context, event MediaEvent) {
	c := s.controller
	if c.onMedia != nil {
		c.onMedia(event)
	}
	if c.mediaPlayer == nil {
		return
	}
	if err := c.mediaPlayer.PlayMedia(ctx, event); err != nil {
		logger.WarnContext(ctx, "failed to play media", "media_id", event.ID, "error", err)
	}
}
