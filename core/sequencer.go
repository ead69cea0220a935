package voicechat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tinybuddy/buddy-core/core/audio"
)

// PlaybackStatus reports whether reply audio is currently being played.
type PlaybackStatus string

const (
	PlaybackIdle    PlaybackStatus = "idle"
	PlaybackPlaying PlaybackStatus = "playing"
)

const playbackRetryDelay = 100 * time.Millisecond

// playbackSequencer plays queued clips back to back in arrival order, one at
// a time. A clip that fails to play is retried once after a short delay and
// then skipped so the queue keeps moving.
type playbackSequencer struct {
	device   audio.Device
	tracker  *drainTracker
	onStatus func(PlaybackStatus)
	onError  func(error)

	mu           sync.Mutex
	queue        []AudioArtifact
	closed       bool
	stopped      bool
	sessionID    string
	cancelClip   context.CancelFunc
	updateSignal chan struct{}
}

func newPlaybackSequencer(
	device audio.Device,
	tracker *drainTracker,
	onStatus func(PlaybackStatus),
	onError func(error),
) *playbackSequencer {
	return &playbackSequencer{
		device:       device,
		tracker:      tracker,
		onStatus:     onStatus,
		onError:      onError,
		updateSignal: make(chan struct{}, 1),
	}
}

// Enqueue appends a clip to the playback queue. Clips enqueued after Close
// or Stop are dropped.
func (p *playbackSequencer) Enqueue(artifact AudioArtifact) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.stopped {
		return
	}
	p.queue = append(p.queue, artifact)
	p.tracker.audioQueued()
	p.signal()
}

// Close marks the end of the clip stream. Run returns after everything
// already queued has played.
func (p *playbackSequencer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.signal()
}

// Stop discards the queue and interrupts the clip being played. It is safe
// to call any number of times, including when nothing is playing.
func (p *playbackSequencer) Stop() {
	p.mu.Lock()
	for range p.queue {
		p.tracker.audioTaken()
	}
	p.queue = nil
	p.stopped = true
	cancel := p.cancelClip
	p.signal()
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := p.device.Stop(); err != nil {
		logger.Warn("failed to stop playback device", "error", err)
	}
}

func (p *playbackSequencer) signal() {
	select {
	case p.updateSignal <- struct{}{}:
	default:
	}
}

func (p *playbackSequencer) next() (AudioArtifact, bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return AudioArtifact{}, false, true
	}
	if len(p.queue) == 0 {
		return AudioArtifact{}, false, p.closed
	}
	artifact := p.queue[0]
	p.queue = p.queue[1:]
	return artifact, true, p.closed
}

// Run plays queued clips until Close and the queue is empty, Stop, or the
// context ends.
func (p *playbackSequencer) Run(ctx context.Context) error {
	playing := false
	defer func() {
		if playing {
			p.setStatus(PlaybackIdle)
		}
	}()
	for {
		artifact, ok, done := p.next()
		if !ok {
			if done {
				return nil
			}
			if playing {
				playing = false
				p.setStatus(PlaybackIdle)
			}
			select {
			case <-p.updateSignal:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if !playing {
			playing = true
			p.setStatus(PlaybackPlaying)
		}
		p.tracker.playbackStarted()
		p.play(ctx, artifact)
		p.tracker.audioTaken()
		p.tracker.playbackEnded()
	}
}

func (p *playbackSequencer) play(ctx context.Context, artifact AudioArtifact) {
	ctx, span := tracer.Start(ctx, "play audio clip")
	defer span.End()

	clipCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.mu.Lock()
	p.sessionID = uuid.NewString()
	p.cancelClip = cancel
	p.mu.Unlock()
	span.SetAttributes(
		attribute.String("playback.session_id", p.sessionID),
		attribute.Int("playback.clip_bytes", len(artifact.Clip)),
	)
	defer func() {
		p.mu.Lock()
		p.cancelClip = nil
		p.mu.Unlock()
	}()

	err := p.device.Play(clipCtx, artifact.Clip)
	if err == nil || clipCtx.Err() != nil {
		return
	}

	logger.WarnContext(ctx, "retrying clip after playback failure", "error", err)
	select {
	case <-time.After(playbackRetryDelay):
	case <-clipCtx.Done():
		return
	}
	if err := p.device.Play(clipCtx, artifact.Clip); err != nil && clipCtx.Err() == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to play audio clip")
		logger.ErrorContext(ctx, "skipping clip after playback retry failed", "error", err)
		if p.onError != nil {
			p.onError(err)
		}
	}
}

func (p *playbackSequencer) setStatus(status PlaybackStatus) {
	if p.onStatus != nil {
		p.onStatus(status)
	}
}
