package texttospeech

import (
	"context"

	"github.com/tinybuddy/buddy-core/core/audio"
)

// Synthesizer converts one span of text into a playable audio clip. Calls
// are serialized by the pipeline; implementations do not need to support
// concurrent synthesis.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts ...SynthesisOption) ([]byte, error)
}

type SynthesisOptions struct {
	// VoiceID selects the voice; empty means the client default.
	VoiceID string
	// LanguageHint carries a best-effort language signal derived from the
	// text (for example "zh" when it contains CJK script).
	LanguageHint string

	EncodingInfo audio.EncodingInfo
}

type SynthesisOption func(*SynthesisOptions)

func WithVoice(voiceID string) SynthesisOption {
	return func(o *SynthesisOptions) { o.VoiceID = voiceID }
}

func WithLanguageHint(hint string) SynthesisOption {
	return func(o *SynthesisOptions) { o.LanguageHint = hint }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) {
		if encodingInfo.IsZero() {
			return
		}

		o.EncodingInfo = encodingInfo
	}
}
