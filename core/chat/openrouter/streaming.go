package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tinybuddy/buddy-core/core/chat"
	"github.com/tinybuddy/buddy-core/core/identity"
	"github.com/tinybuddy/buddy-core/internal/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	chunkPrefix = "data:"
	endMessage  = "[DONE]"
)

// Client talks to the per-user chat backend. Every call resolves the user
// id and host through the identity provider and fails fast when either is
// missing.
type Client struct {
	apiKey   string
	identity identity.Provider
}

func NewClient(apiKey string, provider identity.Provider) *Client {
	return &Client{apiKey: apiKey, identity: provider}
}

func (c *Client) OpenStream(_ context.Context, messages []chat.Message, settings chat.Settings, opts ...chat.StreamOption) chat.Stream {
	options := chat.StreamOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return &Stream{
		client:   c,
		settings: settings,
		messages: toMessages(messages),
		tools:    toTools(options.Tools),
		onFirstChunk: func() {
			if options.FirstChunkCallback != nil {
				options.FirstChunkCallback()
			}
		},
	}
}

type Stream struct {
	client *Client

	settings     chat.Settings
	messages     []message
	tools        []tool
	onFirstChunk func()
}

func (s *Stream) Chunks(ctx context.Context) func(func(chat.StreamChunk, error) bool) {
	requestTime := time.Time{}
	firstChunkSeen := false
	markFirstChunk := func(span trace.Span) {
		if firstChunkSeen {
			return
		}
		firstChunkSeen = true
		span.SetAttributes(attribute.Float64("response.request_to_first_chunk_time", time.Since(requestTime).Seconds()))
		span.AddEvent("received first chunk")
		s.onFirstChunk()
	}

	return func(yield func(chat.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt chat stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.settings.Model))

		req, err := s.client.newRequest(ctx, requestBody{
			Model:       s.settings.Model,
			Messages:    s.messages,
			Stream:      true,
			Temperature: s.settings.EffectiveTemperature(),
			TopP:        s.settings.EffectiveTopP(),
			Tools:       s.tools,
		}, s.settings)
		if err != nil {
			span.RecordError(err)
			yield(nil, err)
			return
		}
		span.SetAttributes(attribute.String("request.url", req.URL.String()))

		client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)}
		requestTime = time.Now()
		span.AddEvent("request started")
		resp, err := client.Do(req)
		if err != nil {
			err = fmt.Errorf("error sending request: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			if errorBody, err := io.ReadAll(resp.Body); err == nil {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}

			err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			payload := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(scanner.Text()), chunkPrefix))
			if len(payload) == 0 {
				continue
			}
			markFirstChunk(span)

			if payload == endMessage {
				break
			}

			var record streamRecord
			if err := json.Unmarshal([]byte(payload), &record); err != nil {
				// Malformed records are dropped, the stream continues.
				logger.WarnContext(ctx, "skipping malformed stream record", "error", err)
				continue
			}
			if record.Error != nil {
				logger.WarnContext(ctx, "skipping error-shaped stream record", "error", record.Error.Message)
				continue
			}

			if !yieldRecord(record, yield) {
				return
			}

			if record.Done {
				break
			}
		}
		if err := scanner.Err(); err != nil {
			err = fmt.Errorf("error reading stream: %w", err)
			span.RecordError(err)
			yield(nil, err)
		}
	}
}

func yieldRecord(record streamRecord, yield func(chat.StreamChunk, error) bool) bool {
	fragments := append([]toolCall(nil), record.ToolCalls...)
	content := record.Text

	if len(record.Choices) > 0 {
		delta := record.Choices[0].Delta
		fragments = append(fragments, delta.ToolCalls...)
		if delta.Content != "" {
			content = delta.Content
		}
	}

	for _, fragment := range fragments {
		if !yield(streamToolCallChunk{
			done: record.Done,
			fragment: chat.ToolCallFragment{
				ID:        fragment.ID,
				Name:      fragment.Function.Name,
				Arguments: fragment.Function.Arguments,
			},
		}, nil) {
			return false
		}
	}

	if content != "" || record.Done {
		return yield(streamContentChunk{done: record.Done, content: content}, nil)
	}

	return true
}

// Chat sends a non-streaming request and returns the full reply text.
func (c *Client) Chat(ctx context.Context, messages []chat.Message, settings chat.Settings) (string, error) {
	ctx, span := tracer.Start(ctx, "prompt chat")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", settings.Model))

	req, err := c.newRequest(ctx, requestBody{
		Model:       settings.Model,
		Messages:    toMessages(messages),
		Stream:      false,
		Temperature: settings.EffectiveTemperature(),
		TopP:        settings.EffectiveTopP(),
	}, settings)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	resp, err := client.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		return "", err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		return "", err
	}

	var body responseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		err = fmt.Errorf("error decoding response: %w", err)
		span.RecordError(err)
		return "", err
	}
	if len(body.Choices) == 0 {
		err := fmt.Errorf("response contained no choices")
		span.RecordError(err)
		return "", err
	}

	return body.Choices[0].Message.Content, nil
}

func (c *Client) newRequest(ctx context.Context, body requestBody, settings chat.Settings) (*http.Request, error) {
	id, err := c.identity.Identity()
	if err != nil {
		return nil, fmt.Errorf("cannot address chat backend: %w", err)
	}

	body.UserID = id.UserID
	if bio := strings.TrimSpace(settings.UserBio); bio != "" {
		body.Context = &promptContext{UserBio: bio}
	}
	if body.Tools != nil {
		body.ToolChoice = utils.Ptr("auto")
	}

	requestBodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	url := id.BaseURL() + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

type streamContentChunk struct {
	done    bool
	content string
}

func (c streamContentChunk) Done() bool      { return c.done }
func (c streamContentChunk) Content() string { return c.content }

type streamToolCallChunk struct {
	done     bool
	fragment chat.ToolCallFragment
}

func (c streamToolCallChunk) Done() bool                      { return c.done }
func (c streamToolCallChunk) ToolCall() chat.ToolCallFragment { return c.fragment }
