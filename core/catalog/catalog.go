// Package catalog resolves opaque media ids from the backend's song and
// sound-effect listings to playable URLs. Catalogs are explicit values
// injected into the pipeline, never package singletons, so tests can swap
// in fakes.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/tinybuddy/buddy-core/core/identity"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Item is one playable media resource.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Resolver maps a media id to a playable item.
type Resolver interface {
	Resolve(ctx context.Context, id string) (Item, bool)
}

// Catalog is an HTTP-loaded Resolver. The listing is fetched once on first
// use; a failed load is retried on the next lookup.
type Catalog struct {
	url string
	// envelopeKey names the JSON array holding the items, e.g. "songs".
	envelopeKey string

	mu     sync.Mutex
	items  map[string]Item
	loaded bool
}

// NewSongs lists the backend's songs, e.g. for play_music tool calls.
func NewSongs(host string) *Catalog {
	return &Catalog{
		url:         identity.BaseURL(host) + "/api/songs",
		envelopeKey: "songs",
	}
}

// NewSoundEffects lists the backend's sound effects for play_sfx calls.
func NewSoundEffects(host string) *Catalog {
	return &Catalog{
		url:         identity.BaseURL(host) + "/api/sound_effects",
		envelopeKey: "sound_effects",
	}
}

func (c *Catalog) Resolve(ctx context.Context, id string) (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		if err := c.loadLocked(ctx); err != nil {
			logger.WarnContext(ctx, "failed to load media catalog", "url", c.url, "error", err)
			return Item{}, false
		}
	}

	item, ok := c.items[id]
	return item, ok
}

func (c *Catalog) loadLocked(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "load media catalog")
	defer span.End()
	span.SetAttributes(attribute.String("request.url", c.url))

	req, err := http.NewRequestWithContext(ctx, "GET", c.url, nil)
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	resp, err := client.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	var envelope map[string][]Item
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		err = fmt.Errorf("error decoding catalog: %w", err)
		span.RecordError(err)
		return err
	}

	items := map[string]Item{}
	for _, item := range envelope[c.envelopeKey] {
		items[item.ID] = item
	}

	c.items = items
	c.loaded = true
	span.SetAttributes(attribute.Int("catalog.size", len(items)))
	return nil
}

// StaticResolver resolves from a fixed item set; used in tests and for
// embedding bundled media.
type StaticResolver map[string]Item

func (r StaticResolver) Resolve(_ context.Context, id string) (Item, bool) {
	item, ok := r[id]
	return item, ok
}
