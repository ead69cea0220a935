package voicechat

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
)

// MediaEventKind distinguishes the two media tool families.
type MediaEventKind string

const (
	MediaEventSong        MediaEventKind = "song"
	MediaEventSoundEffect MediaEventKind = "sound_effect"
)

// MediaEvent is a resolved media tool call, ready to be dispatched once the
// spoken reply has fully played out.
type MediaEvent struct {
	Kind MediaEventKind
	ID   string
	Name string
	URL  string
}

// drainTracker mirrors how much reply audio is still in flight: sentences
// waiting for synthesis, a synthesis call in progress, clips waiting for
// playback, and a clip currently playing. Waiters are woken on the
// transition to fully drained instead of polling.
type drainTracker struct {
	mu           sync.Mutex
	streaming    bool
	pendingText  int
	synthesizing bool
	pendingAudio int
	playing      bool
	waiters      []chan struct{}
}

// streamStarted holds the tracker undrained for the whole stream so a tool
// call arriving before the first sentence cannot slip past the reply.
func (t *drainTracker) streamStarted() { t.adjust(func() { t.streaming = true }) }
func (t *drainTracker) streamEnded()   { t.adjust(func() { t.streaming = false }) }

func (t *drainTracker) textQueued() { t.adjust(func() { t.pendingText++ }) }
func (t *drainTracker) textTaken()  { t.adjust(func() { t.pendingText-- }) }

func (t *drainTracker) synthesisStarted() { t.adjust(func() { t.synthesizing = true }) }
func (t *drainTracker) synthesisEnded()   { t.adjust(func() { t.synthesizing = false }) }

func (t *drainTracker) audioQueued() { t.adjust(func() { t.pendingAudio++ }) }
func (t *drainTracker) audioTaken()  { t.adjust(func() { t.pendingAudio-- }) }

func (t *drainTracker) playbackStarted() { t.adjust(func() { t.playing = true }) }
func (t *drainTracker) playbackEnded()   { t.adjust(func() { t.playing = false }) }

func (t *drainTracker) adjust(apply func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	apply()
	if !t.drainedLocked() {
		return
	}
	for _, waiter := range t.waiters {
		close(waiter)
	}
	t.waiters = nil
}

func (t *drainTracker) drainedLocked() bool {
	return !t.streaming && t.pendingText == 0 && !t.synthesizing && t.pendingAudio == 0 && !t.playing
}

// await blocks until no reply audio is pending or in flight, or the context
// ends.
func (t *drainTracker) await(ctx context.Context) error {
	t.mu.Lock()
	if t.drainedLocked() {
		t.mu.Unlock()
		return nil
	}
	waiter := make(chan struct{})
	t.waiters = append(t.waiters, waiter)
	t.mu.Unlock()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mediaGate holds media events back until the reply they arrived in has
// been spoken to the end, then dispatches them in arrival order. The queue
// is unbounded so deferring never blocks the stream reader, no matter how
// many media calls one reply carries.
type mediaGate struct {
	tracker  *drainTracker
	dispatch func(context.Context, MediaEvent)

	mu           sync.Mutex
	queue        []MediaEvent
	closed       bool
	discarded    bool
	updateSignal chan struct{}
}

func newMediaGate(tracker *drainTracker, dispatch func(context.Context, MediaEvent)) *mediaGate {
	return &mediaGate{
		tracker:      tracker,
		dispatch:     dispatch,
		updateSignal: make(chan struct{}, 1),
	}
}

// Defer queues an event for dispatch after the reply drains. Events
// deferred after Close or Discard are dropped.
func (g *mediaGate) Defer(event MediaEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.queue = append(g.queue, event)
	g.signal()
}

// Close marks that no more events will arrive. Run exits once the queue is
// empty.
func (g *mediaGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	g.signal()
}

// Discard closes the gate and throws away every queued event. A turn that
// failed or was cancelled must not play media after the fact.
func (g *mediaGate) Discard() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.discarded = true
	g.queue = nil
	g.signal()
}

func (g *mediaGate) signal() {
	select {
	case g.updateSignal <- struct{}{}:
	default:
	}
}

func (g *mediaGate) next() (MediaEvent, bool, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) == 0 {
		return MediaEvent{}, false, g.closed
	}
	event := g.queue[0]
	g.queue = g.queue[1:]
	return event, true, g.closed
}

// Run dispatches deferred events one at a time, each after the reply audio
// has drained. It returns when Close has been called and the queue is empty,
// or the context ends.
func (g *mediaGate) Run(ctx context.Context) error {
	for {
		event, ok, closed := g.next()
		if !ok {
			if closed {
				return nil
			}
			select {
			case <-g.updateSignal:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := g.tracker.await(ctx); err != nil {
			return err
		}
		g.mu.Lock()
		discarded := g.discarded
		g.mu.Unlock()
		if discarded {
			return nil
		}

		dispatchCtx, span := tracer.Start(ctx, "dispatch media event")
		span.SetAttributes(
			attribute.String("media.kind", string(event.Kind)),
			attribute.String("media.id", event.ID),
		)
		g.dispatch(dispatchCtx, event)
		span.End()
	}
}
