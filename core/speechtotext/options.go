package speechtotext

import "context"

// Transcriber turns one recorded utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, recording []byte, opts ...TranscriptionOption) (string, error)
}

type TranscriptionOptions struct {
	// Language is an optional hint, e.g. "en". Empty lets the backend
	// detect the language.
	Language string
	// ContextSentence is the previous assistant sentence, given to the
	// recognizer as conversational context.
	ContextSentence string
}

type TranscriptionOption func(*TranscriptionOptions)

func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.Language = language }
}

func WithContextSentence(sentence string) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.ContextSentence = sentence }
}
