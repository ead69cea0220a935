package voicechat

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tinybuddy/buddy-core/core/audio"
)

// MediaPlayer plays a resolved media event. Implementations are invoked
// only after the spoken reply has fully drained.
type MediaPlayer interface {
	PlayMedia(ctx context.Context, event MediaEvent) error
}

// fetchingMediaPlayer downloads the media payload and plays it on the reply
// playback device.
type fetchingMediaPlayer struct {
	device audio.Device
}

func (p *fetchingMediaPlayer) PlayMedia(ctx context.Context, event MediaEvent) error {
	ctx, span := tracer.Start(ctx, "play media")
	defer span.End()
	span.SetAttributes(
		attribute.String("media.kind", string(event.Kind)),
		attribute.String("media.id", event.ID),
	)

	req, err := http.NewRequestWithContext(ctx, "GET", event.URL, nil)
	if err != nil {
		return fmt.Errorf("error creating media request: %w", err)
	}

	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	resp, err := client.Do(req)
	if err != nil {
		err = fmt.Errorf("error fetching media: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("non-OK HTTP status fetching media: %s", resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("error reading media payload: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return p.device.Play(ctx, payload)
}
