package voicechat

import "time"

// ReplyMetrics collects the latency measurements for one reply turn.
// Durations left at zero were not observed during the turn.
type ReplyMetrics struct {
	// TranscriptionTime is how long the transcription of the preceding
	// recording took, when the reply was started from one.
	TranscriptionTime time.Duration
	// TimeToFirstChunk is the time between sending the chat request and
	// the first streamed payload arriving.
	TimeToFirstChunk time.Duration
	// FirstSynthesisTime is how long the first sentence took to
	// synthesize.
	FirstSynthesisTime time.Duration
}
