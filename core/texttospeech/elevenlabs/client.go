package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tinybuddy/buddy-core/core/audio"
	"github.com/tinybuddy/buddy-core/core/identity"
	"github.com/tinybuddy/buddy-core/core/texttospeech"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultVoiceID = "fQj4gJSexpu8RDE2Ii5m"

type Config struct {
	// DefaultVoiceID is used when a synthesis call does not pick a voice.
	DefaultVoiceID string
	// OutputFormat is the requested audio encoding, e.g. "pcm_16000".
	// Defaults to PCM at the library's default sample rate so clips can go
	// straight to a playback device.
	OutputFormat string
	// Timeout bounds a single synthesis call. Zero means no client-side
	// timeout beyond the request context.
	Timeout time.Duration
}

// Client synthesizes speech through the per-user backend host, which fronts
// the ElevenLabs voices. The host is resolved per call via the identity
// provider and missing identity is an immediate error.
type Client struct {
	cfg      Config
	identity identity.Provider
}

func NewClient(cfg Config, provider identity.Provider) *Client {
	if strings.TrimSpace(cfg.DefaultVoiceID) == "" {
		cfg.DefaultVoiceID = DefaultVoiceID
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = fmt.Sprintf("pcm_%d", audio.DefaultSampleRate)
	}
	return &Client{cfg: cfg, identity: provider}
}

// outputFormatFor maps a device encoding onto the backend's format names.
// A zero or unknown encoding returns "" and the client default applies.
func outputFormatFor(info audio.EncodingInfo) string {
	if info.IsZero() {
		return ""
	}
	switch info.Format {
	case audio.EncodingLinear16:
		return fmt.Sprintf("pcm_%d", info.SampleRate)
	case audio.EncodingMulaw:
		return fmt.Sprintf("ulaw_%d", info.SampleRate)
	case audio.EncodingALaw:
		return fmt.Sprintf("alaw_%d", info.SampleRate)
	}
	return ""
}

type synthesisRequest struct {
	Text         string `json:"text"`
	VoiceID      string `json:"voiceId"`
	OutputFormat string `json:"output_format,omitempty"`
}

func (c *Client) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	options := texttospeech.SynthesisOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()
	span.SetAttributes(attribute.Int("request.text_length", len(text)))

	id, err := c.identity.Identity()
	if err != nil {
		err = fmt.Errorf("cannot address synthesis backend: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	voiceID := options.VoiceID
	if voiceID == "" {
		voiceID = c.cfg.DefaultVoiceID
	}
	span.SetAttributes(attribute.String("request.voice_id", voiceID))

	outputFormat := outputFormatFor(options.EncodingInfo)
	if outputFormat == "" {
		outputFormat = c.cfg.OutputFormat
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	bodyBytes, err := json.Marshal(synthesisRequest{
		Text:         text,
		VoiceID:      voiceID,
		OutputFormat: outputFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	url := id.BaseURL() + "/api/tts"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	resp, err := client.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, readErr := io.ReadAll(resp.Body); readErr == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	clip, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("error reading audio body: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(clip) == 0 {
		err := fmt.Errorf("synthesis returned no audio")
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("response.audio_bytes", len(clip)))
	return clip, nil
}
