package voicechat

import (
	"github.com/tinybuddy/buddy-core/core/audio"
	"github.com/tinybuddy/buddy-core/core/catalog"
	"github.com/tinybuddy/buddy-core/core/chat"
	"github.com/tinybuddy/buddy-core/core/speechtotext"
	"github.com/tinybuddy/buddy-core/core/texttospeech"
)

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithStreamingChat sets the chat backend replies are streamed from.
func WithStreamingChat(client chat.StreamingClient) ControllerOption {
	return func(c *Controller) { c.chat = client }
}

// WithSynthesizer sets the text to speech backend.
func WithSynthesizer(synthesizer texttospeech.Synthesizer) ControllerOption {
	return func(c *Controller) { c.synthesizer = synthesizer }
}

// WithPlaybackDevice sets the audio device reply speech is played on.
func WithPlaybackDevice(device audio.Device) ControllerOption {
	return func(c *Controller) { c.device = device }
}

// WithVoice sets the voice used for reply synthesis.
func WithVoice(voiceID string) ControllerOption {
	return func(c *Controller) { c.voiceID = voiceID }
}

// WithSegmenterConfig overrides the sentence segmentation thresholds.
func WithSegmenterConfig(config SegmenterConfig) ControllerOption {
	return func(c *Controller) { c.segmenterConfig = config }
}

// WithSongCatalog sets the catalog play_music tool calls are resolved
// against.
func WithSongCatalog(resolver catalog.Resolver) ControllerOption {
	return func(c *Controller) { c.songs = resolver }
}

// WithSoundEffectCatalog sets the catalog play_sfx tool calls are resolved
// against.
func WithSoundEffectCatalog(resolver catalog.Resolver) ControllerOption {
	return func(c *Controller) { c.soundEffects = resolver }
}

// WithMediaPlayer overrides how resolved media events are played once the
// reply has been spoken. The default fetches the media URL and plays it on
// the playback device.
func WithMediaPlayer(player MediaPlayer) ControllerOption {
	return func(c *Controller) { c.mediaPlayer = player }
}

// WithTranscriber sets the backend recordings are transcribed with.
func WithTranscriber(transcriber speechtotext.Transcriber) ControllerOption {
	return func(c *Controller) { c.transcriber = transcriber }
}

// WithCaptureDevice sets the device microphone audio is captured from.
func WithCaptureDevice(device CaptureDevice) ControllerOption {
	return func(c *Controller) { c.capture = device }
}

// WithResponseCallback registers a callback invoked with every streamed
// text delta as it arrives.
func WithResponseCallback(callback func(delta string)) ControllerOption {
	return func(c *Controller) { c.onText = callback }
}

// WithCompletionCallback registers a callback invoked with the full reply
// text once the turn has fully drained.
func WithCompletionCallback(callback func(fullText string)) ControllerOption {
	return func(c *Controller) { c.onComplete = callback }
}

// WithPlaybackStatusCallback registers a callback invoked when reply
// playback starts and stops.
func WithPlaybackStatusCallback(callback func(status PlaybackStatus)) ControllerOption {
	return func(c *Controller) { c.onStatus = callback }
}

// WithMediaCallback registers a callback invoked when a media event is
// dispatched, alongside playback.
func WithMediaCallback(callback func(event MediaEvent)) ControllerOption {
	return func(c *Controller) { c.onMedia = callback }
}

// WithErrorCallback registers a callback invoked when a turn fails or a
// clip cannot be played.
func WithErrorCallback(callback func(err error)) ControllerOption {
	return func(c *Controller) { c.onError = callback }
}

// WithMetricsCallback registers a callback invoked with the turn's latency
// measurements once it completes.
func WithMetricsCallback(callback func(metrics ReplyMetrics)) ControllerOption {
	return func(c *Controller) { c.onMetrics = callback }
}
