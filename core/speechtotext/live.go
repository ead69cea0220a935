package speechtotext

import (
	"context"

	"github.com/tinybuddy/buddy-core/core/audio"
)

// LiveTranscriber transcribes audio as it is captured instead of waiting
// for the full recording. Results arrive through the callbacks configured
// at Start.
type LiveTranscriber interface {
	Start(ctx context.Context, opts ...LiveOption) error
	SendAudio(frame []byte) error
	Stop() error
}

type LiveOptions struct {
	// TranscriptCallback receives each finalized utterance transcript.
	TranscriptCallback func(transcript string)
	// InterimCallback receives mutable partial transcripts, when the
	// backend produces them.
	InterimCallback func(transcript string)
	// SpeechEndedCallback fires when the recognizer decides the speaker
	// finished an utterance.
	SpeechEndedCallback func()

	Language     string
	EncodingInfo audio.EncodingInfo
}

type LiveOption func(*LiveOptions)

func WithTranscriptCallback(callback func(string)) LiveOption {
	return func(o *LiveOptions) { o.TranscriptCallback = callback }
}

func WithInterimCallback(callback func(string)) LiveOption {
	return func(o *LiveOptions) { o.InterimCallback = callback }
}

func WithSpeechEndedCallback(callback func()) LiveOption {
	return func(o *LiveOptions) { o.SpeechEndedCallback = callback }
}

func WithLiveLanguage(language string) LiveOption {
	return func(o *LiveOptions) { o.Language = language }
}

func WithLiveEncodingInfo(encodingInfo audio.EncodingInfo) LiveOption {
	return func(o *LiveOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}
