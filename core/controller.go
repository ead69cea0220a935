package voicechat

import (
	"fmt"
	"sync"
	"time"

	"github.com/tinybuddy/buddy-core/core/audio"
	"github.com/tinybuddy/buddy-core/core/catalog"
	"github.com/tinybuddy/buddy-core/core/chat"
	"github.com/tinybuddy/buddy-core/core/speechtotext"
	"github.com/tinybuddy/buddy-core/core/texttospeech"
)

// ReplyState describes where the controller is in a reply turn.
type ReplyState string

const (
	// StateIdle means no reply is in flight.
	StateIdle ReplyState = "idle"
	// StateStreaming means reply text is still arriving from the chat
	// backend.
	StateStreaming ReplyState = "streaming"
	// StateDraining means the stream has ended but synthesized audio is
	// still queued or playing.
	StateDraining ReplyState = "draining"
	// StateFailed means the last turn ended with a transport failure.
	StateFailed ReplyState = "failed"
)

const (
	toolPlayMusic       = "play_music"
	toolPlaySoundEffect = "play_sfx"
)

type playMediaArguments struct {
	ID string `json:"id" jsonschema:"description=Catalog identifier of the media to play"`
}

func mediaTools() []chat.Tool {
	return []chat.Tool{
		{
			Name:        toolPlayMusic,
			Description: "Play a song from the song catalog after finishing the spoken reply",
			Parameters:  playMediaArguments{},
		},
		{
			Name:        toolPlaySoundEffect,
			Description: "Play a sound effect from the catalog after finishing the spoken reply",
			Parameters:  playMediaArguments{},
		},
	}
}

// Controller drives voice reply turns: it streams reply text from the chat
// backend, speaks it sentence by sentence, and holds media tool calls back
// until the reply has been spoken. At most one reply is in flight; starting
// a new one supersedes the previous.
type Controller struct {
	chat        chat.StreamingClient
	synthesizer texttospeech.Synthesizer
	device      audio.Device
	transcriber speechtotext.Transcriber
	capture     CaptureDevice

	songs        catalog.Resolver
	soundEffects catalog.Resolver
	mediaPlayer  MediaPlayer

	voiceID         string
	segmenterConfig SegmenterConfig

	onText     func(string)
	onComplete func(string)
	onStatus   func(PlaybackStatus)
	onMedia    func(MediaEvent)
	onError    func(error)
	onMetrics  func(ReplyMetrics)

	mu                    sync.Mutex
	state                 ReplyState
	active                *ReplySession
	lastReply             string
	lastTranscriptionTime time.Duration

	recordingMu sync.Mutex
	recording   *recordingSession
}

// NewController assembles a controller from its collaborators. A chat
// backend, a synthesizer, and a playback device are required.
func NewController(opts ...ControllerOption) (*Controller, error) {
	c := &Controller{
		state:           StateIdle,
		segmenterConfig: DefaultSegmenterConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.chat == nil {
		return nil, fmt.Errorf("a streaming chat client is required")
	}
	if c.synthesizer == nil {
		return nil, fmt.Errorf("a speech synthesizer is required")
	}
	if c.device == nil {
		return nil, fmt.Errorf("a playback device is required")
	}
	if c.mediaPlayer == nil {
		c.mediaPlayer = &fetchingMediaPlayer{device: c.device}
	}
	return c, nil
}

// State reports the current reply state.
func (c *Controller) State() ReplyState {
	if c == nil {
		return StateIdle
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cancel cancels the reply in flight, if any. It is safe to call at any
// time.
func (c *Controller) Cancel() {
	if c == nil {
		return
	}
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active != nil {
		active.Cancel()
	}
}

// LastReply returns the full text of the most recently completed reply.
func (c *Controller) LastReply() string {
	if c == nil {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReply
}

func (c *Controller) setState(state ReplyState, session *ReplySession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != session {
		// A superseding turn owns the state now.
		return
	}
	c.state = state
}

func (c *Controller) finishSession(session *ReplySession, fullText string) {
	c.mu.Lock()
	if c.active == session {
		c.active = nil
		if fullText != "" {
			c.lastReply = fullText
		}
	}
	c.mu.Unlock()
}
