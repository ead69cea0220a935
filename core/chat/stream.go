package chat

import "context"

// StreamingClient opens one streamed reply per call. Implementations must
// not share mutable state between streams.
type StreamingClient interface {
	OpenStream(ctx context.Context, messages []Message, settings Settings, opts ...StreamOption) Stream
}

type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	// Done reports whether the backend flagged this record as the last
	// one carrying content.
	Done() bool
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

type StreamToolCallChunk interface {
	StreamChunk
	ToolCall() ToolCallFragment
}

type StreamOptions struct {
	Tools []Tool
	// FirstChunkCallback is called once, when the first non-empty record
	// arrives.
	FirstChunkCallback func()
}

type StreamOption func(*StreamOptions)

func WithTools(tools ...Tool) StreamOption {
	return func(o *StreamOptions) { o.Tools = append(o.Tools, tools...) }
}

func WithFirstChunkCallback(callback func()) StreamOption {
	return func(o *StreamOptions) { o.FirstChunkCallback = callback }
}
