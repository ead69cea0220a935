package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/tinybuddy/buddy-core/core/speechtotext"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultURL   = "https://api.openai.com/v1/audio/transcriptions"
	defaultModel = "gpt-4o-transcribe"
)

type Config struct {
	APIKey string
	// URL overrides the transcription endpoint, for proxying backends.
	URL string
	// Model selects the recognition model.
	Model string
	// PromptTemplate builds the context prompt; %s receives the previous
	// assistant sentence. Empty uses the client default.
	PromptTemplate string
}

// Client transcribes recorded utterances through a Whisper-style HTTP API.
// The recording is uploaded as a multipart form together with a context
// prompt built from the previous assistant sentence.
type Client struct {
	cfg Config
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("transcription api key is required")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = defaultURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if strings.TrimSpace(cfg.PromptTemplate) == "" {
		cfg.PromptTemplate = "This transcript might contain both English and Chinese. " +
			"The speaker is responding to this sentence: '%s'"
	}
	return &Client{cfg: cfg}, nil
}

func (c *Client) Transcribe(ctx context.Context, recording []byte, opts ...speechtotext.TranscriptionOption) (string, error) {
	options := speechtotext.TranscriptionOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracer.Start(ctx, "transcribe recording")
	defer span.End()
	span.SetAttributes(attribute.Int("request.audio_bytes", len(recording)))

	if len(recording) == 0 {
		return "", fmt.Errorf("no audio to transcribe")
	}

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	filePart, err := form.CreateFormFile("file", "recording.wav")
	if err != nil {
		return "", fmt.Errorf("error building form file: %w", err)
	}
	if _, err := filePart.Write(recording); err != nil {
		return "", fmt.Errorf("error writing recording to form: %w", err)
	}

	fields := map[string]string{
		"model":           c.cfg.Model,
		"response_format": "json",
		"temperature":     "0",
		"prompt":          fmt.Sprintf(c.cfg.PromptTemplate, options.ContextSentence),
	}
	if options.Language != "" {
		fields["language"] = options.Language
	}
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return "", fmt.Errorf("error writing form field %q: %w", name, err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("error finalizing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.URL, body)
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	resp, err := client.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
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
		return "", err
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		err = fmt.Errorf("error decoding response: %w", err)
		span.RecordError(err)
		return "", err
	}

	span.SetAttributes(attribute.Int("response.text_length", len(parsed.Text)))
	return parsed.Text, nil
}
