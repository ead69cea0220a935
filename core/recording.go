package voicechat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tinybuddy/buddy-core/core/audio"
	"github.com/tinybuddy/buddy-core/core/speechtotext"
)

// CaptureDevice records microphone audio, delivering raw frames to the
// callback until capture is stopped.
type CaptureDevice interface {
	StartCapture(ctx context.Context, onFrame func([]byte)) error
	StopCapture() error
	EncodingInfo() audio.EncodingInfo
}

type recordingSession struct {
	mu     sync.Mutex
	frames []byte
}

func (r *recordingSession) append(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame...)
}

func (r *recordingSession) bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// StartRecording begins capturing microphone audio for the next user turn.
// A reply in flight is cancelled first so the user is never recorded over
// reply playback. It fails when a recording is already in progress.
func (c *Controller) StartRecording(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("controller is required")
	}
	if c.capture == nil {
		return fmt.Errorf("no capture device configured")
	}

	c.recordingMu.Lock()
	defer c.recordingMu.Unlock()
	if c.recording != nil {
		return fmt.Errorf("a recording is already in progress")
	}

	c.Cancel()

	session := &recordingSession{}
	if err := c.capture.StartCapture(ctx, session.append); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}
	c.recording = session
	return nil
}

// StopRecording stops the capture and transcribes what was recorded. The
// previous reply is passed to the transcriber as context. It returns the
// transcript and how long transcription took.
func (c *Controller) StopRecording(ctx context.Context) (string, time.Duration, error) {
	if c == nil {
		return "", 0, fmt.Errorf("controller is required")
	}

	c.recordingMu.Lock()
	session := c.recording
	c.recording = nil
	c.recordingMu.Unlock()
	if session == nil {
		return "", 0, fmt.Errorf("no recording in progress")
	}

	ctx, span := tracer.Start(ctx, "transcribe recording")
	defer span.End()

	if err := c.capture.StopCapture(); err != nil {
		err = fmt.Errorf("failed to stop capture: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", 0, err
	}

	pcm := session.bytes()
	span.SetAttributes(attribute.Int("recording.bytes", len(pcm)))
	if len(pcm) == 0 {
		return "", 0, fmt.Errorf("recording captured no audio")
	}
	if c.transcriber == nil {
		return "", 0, fmt.Errorf("no transcriber configured")
	}

	recording := audio.WrapWAV(pcm, c.capture.EncodingInfo())

	opts := []speechtotext.TranscriptionOption{}
	if previous := c.LastReply(); previous != "" {
		opts = append(opts, speechtotext.WithContextSentence(previous))
	}

	start := time.Now()
	transcript, err := c.transcriber.Transcribe(ctx, recording, opts...)
	if err != nil {
		err = fmt.Errorf("failed to transcribe recording: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", 0, err
	}
	elapsed := time.Since(start)
	span.SetAttributes(attribute.Float64("transcription.time", elapsed.Seconds()))

	c.mu.Lock()
	c.lastTranscriptionTime = elapsed
	c.mu.Unlock()

	return transcript, elapsed, nil
}
