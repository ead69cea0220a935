package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/tinybuddy/buddy-core/core/audio"
	"github.com/tinybuddy/buddy-core/core/speechtotext"
)

// LiveTranscriber streams microphone audio to Deepgram over a websocket
// and reports transcripts through the configured callbacks. It is an
// optional low-latency alternative to uploading the finished recording.
type LiveTranscriber struct {
	connMu sync.Mutex
	conn   *websocket.Conn

	accumulated    string
	unendedSegment bool
}

func NewLiveTranscriber() *LiveTranscriber {
	return &LiveTranscriber{}
}

func (t *LiveTranscriber) Start(ctx context.Context, opts ...speechtotext.LiveOption) error {
	options := speechtotext.LiveOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&options)
	}

	conn, err := connectWebsocket(options)
	if err != nil {
		return fmt.Errorf("failed to open websocket: %w", err)
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
	go t.readAndProcessMessages(ctx, conn, options)

	return nil
}

func connectWebsocket(options speechtotext.LiveOptions) (*websocket.Conn, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	language := options.Language
	if language == "" {
		language = "en-US"
	}

	listenURL, _ := url.Parse("wss://api.deepgram.com/v1/listen")
	queryParams := listenURL.Query()
	queryParams.Set("encoding", options.EncodingInfo.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", "nova-3")
	queryParams.Set("language", language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("endpointing", "300")
	if options.TranscriptCallback != nil || options.SpeechEndedCallback != nil {
		queryParams.Set("utterance_end_ms", "1000")
		queryParams.Set("interim_results", "true")
	} else if options.InterimCallback != nil {
		queryParams.Set("interim_results", "true")
	}

	listenURL.RawQuery = queryParams.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(listenURL.String(),
		http.Header{"Authorization": {"Token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (t *LiveTranscriber) SendAudio(frame []byte) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn == nil {
		return fmt.Errorf("transcriber not started")
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (t *LiveTranscriber) Stop() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn != nil {
		if err := t.conn.WriteJSON(struct {
			Type string `json:"type"`
		}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
			return fmt.Errorf("failed to close deepgram stream: %w", err)
		}
	}
	return nil
}

func (t *LiveTranscriber) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, options speechtotext.LiveOptions) {
	keepAliveCtx, keepAliveCancel := context.WithCancel(ctx)
	defer keepAliveCancel()
	go t.keepAlive(keepAliveCtx)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if err.Error() != "websocket: close 1000 (normal)" {
				log.Println("Failed to read deepgram websocket message", "error", err)
			}

			t.connMu.Lock()
			t.conn = nil
			t.connMu.Unlock()
			conn.Close()
			return
		}
		if msgType != websocket.BinaryMessage {
			t.processMessage(msg, options)
		}
	}
}

func (t *LiveTranscriber) processMessage(msg []byte, options speechtotext.LiveOptions) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		log.Println("Failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			log.Println("Failed to unmarshal deepgram message", err)
			return
		}
		if len(msgResp.Channel.Alternatives) == 0 {
			return
		}
		transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		if transcript == "" {
			return
		}

		if msgResp.IsFinal {
			t.unendedSegment = true
			t.accumulated = strings.TrimSpace(t.accumulated + " " + transcript)
			if msgResp.SpeechFinal {
				t.finishUtterance(options)
			}
		} else if options.InterimCallback != nil {
			options.InterimCallback(strings.TrimSpace(t.accumulated + " " + transcript))
		}

	case api.TypeUtteranceEndResponse:
		if t.unendedSegment {
			t.finishUtterance(options)
		}
	}
}

func (t *LiveTranscriber) finishUtterance(options speechtotext.LiveOptions) {
	t.unendedSegment = false
	transcript := strings.TrimSpace(t.accumulated)
	t.accumulated = ""
	if transcript != "" && options.TranscriptCallback != nil {
		options.TranscriptCallback(transcript)
	}
	if options.SpeechEndedCallback != nil {
		options.SpeechEndedCallback()
	}
}

// keepAlive keeps the socket open across capture gaps. Deepgram drops the
// connection after ~10s without traffic.
func (t *LiveTranscriber) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.connMu.Lock()
			conn := t.conn
			if conn != nil {
				if err := conn.WriteJSON(struct {
					Type string `json:"type"`
				}{Type: "KeepAlive"}); err != nil {
					log.Println("Failed to write to deepgram client", "error", err)
				}
			}
			t.connMu.Unlock()
			if conn == nil {
				return
			}
		}
	}
}
