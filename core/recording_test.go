package voicechat

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/tinybuddy/buddy-core/core/audio"
	"github.com/tinybuddy/buddy-core/core/chat"
	"github.com/tinybuddy/buddy-core/core/speechtotext"
)

type fakeCaptureDevice struct {
	mu      sync.Mutex
	frames  [][]byte
	onFrame func([]byte)
	started bool
}

func (d *fakeCaptureDevice) StartCapture(_ context.Context, onFrame func([]byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onFrame = onFrame
	d.started = true
	return nil
}

func (d *fakeCaptureDevice) StopCapture() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	return nil
}

func (d *fakeCaptureDevice) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (d *fakeCaptureDevice) emit(frame []byte) {
	d.mu.Lock()
	onFrame := d.onFrame
	d.mu.Unlock()
	onFrame(frame)
}

type fakeTranscriber struct {
	transcript string
	recording  []byte
	options    speechtotext.TranscriptionOptions
	err        error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, recording []byte, opts ...speechtotext.TranscriptionOption) (string, error) {
	f.recording = recording
	for _, opt := range opts {
		opt(&f.options)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.transcript, nil
}

func newRecordingController(t *testing.T, capture *fakeCaptureDevice, transcriber *fakeTranscriber) *Controller {
	t.Helper()
	controller, err := NewController(
		WithStreamingChat(&fakeChatClient{}),
		WithSynthesizer(&fakeSynthesizer{}),
		WithPlaybackDevice(&loggingDevice{log: &eventLog{}}),
		WithCaptureDevice(capture),
		WithTranscriber(transcriber),
	)
	if err != nil {
		t.Fatalf("failed to build controller: %v", err)
	}
	return controller
}

func TestRecordingCapturesAndTranscribes(t *testing.T) {
	capture := &fakeCaptureDevice{}
	transcriber := &fakeTranscriber{transcript: "sing me a song"}
	controller := newRecordingController(t, capture, transcriber)

	if err := controller.StartRecording(context.Background()); err != nil {
		t.Fatalf("failed to start recording: %v", err)
	}
	capture.emit([]byte{1, 2})
	capture.emit([]byte{3, 4})

	transcript, elapsed, err := controller.StopRecording(context.Background())
	if err != nil {
		t.Fatalf("failed to stop recording: %v", err)
	}
	if transcript != "sing me a song" {
		t.Errorf("unexpected transcript: %q", transcript)
	}
	if elapsed <= 0 {
		t.Error("transcription time should be measured")
	}
	if !bytes.HasPrefix(transcriber.recording, []byte("RIFF")) {
		t.Error("recording should be wrapped in a WAV container")
	}
	if !bytes.HasSuffix(transcriber.recording, []byte{1, 2, 3, 4}) {
		t.Error("captured frames should end up in the recording in order")
	}
}

func TestRecordingPassesPreviousReplyAsContext(t *testing.T) {
	capture := &fakeCaptureDevice{}
	transcriber := &fakeTranscriber{transcript: "yes please"}
	controller := newRecordingController(t, capture, transcriber)
	controller.lastReply = "Do you want to hear a lullaby?"

	if err := controller.StartRecording(context.Background()); err != nil {
		t.Fatalf("failed to start recording: %v", err)
	}
	capture.emit([]byte{9})
	if _, _, err := controller.StopRecording(context.Background()); err != nil {
		t.Fatalf("failed to stop recording: %v", err)
	}

	if transcriber.options.ContextSentence != "Do you want to hear a lullaby?" {
		t.Errorf("previous reply should be passed as context, got %q", transcriber.options.ContextSentence)
	}
}

func TestRecordingLifecycleErrors(t *testing.T) {
	capture := &fakeCaptureDevice{}
	controller := newRecordingController(t, capture, &fakeTranscriber{})

	if _, _, err := controller.StopRecording(context.Background()); err == nil {
		t.Error("stopping without a recording should fail")
	}
	if err := controller.StartRecording(context.Background()); err != nil {
		t.Fatalf("failed to start recording: %v", err)
	}
	if err := controller.StartRecording(context.Background()); err == nil {
		t.Error("starting twice should fail")
	}
	if _, _, err := controller.StopRecording(context.Background()); err == nil {
		t.Error("an empty recording should fail")
	}
}

func TestTranscriptionTimeCarriesIntoNextReply(t *testing.T) {
	capture := &fakeCaptureDevice{}
	controller := newRecordingController(t, capture, &fakeTranscriber{transcript: "hello"})
	controller.chat = &fakeChatClient{chunks: []scriptedChunk{
		{content: "Hello to you too, friend!", done: true},
	}}

	if err := controller.StartRecording(context.Background()); err != nil {
		t.Fatalf("failed to start recording: %v", err)
	}
	capture.emit([]byte{1})
	if _, _, err := controller.StopRecording(context.Background()); err != nil {
		t.Fatalf("failed to stop recording: %v", err)
	}

	session, err := controller.StartReply(context.Background(), nil, chat.Settings{})
	if err != nil {
		t.Fatalf("failed to start reply: %v", err)
	}
	session.Wait()
	if session.Metrics().TranscriptionTime <= 0 {
		t.Error("transcription time should attach to the following reply")
	}

	second, err := controller.StartReply(context.Background(), nil, chat.Settings{})
	if err != nil {
		t.Fatalf("failed to start second reply: %v", err)
	}
	second.Wait()
	if second.Metrics().TranscriptionTime != 0 {
		t.Error("transcription time must not leak into later replies")
	}
}

func TestRecordingSurfacesTranscriberFailure(t *testing.T) {
	capture := &fakeCaptureDevice{}
	transcriber := &fakeTranscriber{err: fmt.Errorf("model overloaded")}
	controller := newRecordingController(t, capture, transcriber)

	if err := controller.StartRecording(context.Background()); err != nil {
		t.Fatalf("failed to start recording: %v", err)
	}
	capture.emit([]byte{5})
	if _, _, err := controller.StopRecording(context.Background()); err == nil {
		t.Error("transcriber failures should surface")
	}
}
