package voicechat

import (
	"context"
	"testing"

	"github.com/tinybuddy/buddy-core/core/chat"
)

func TestAccumulatorCompletesSplitArguments(t *testing.T) {
	accumulator := newToolCallAccumulator()
	ctx := context.Background()

	if call := accumulator.Ingest(ctx, chat.ToolCallFragment{
		ID: "call_1", Name: "play_music", Arguments: `{"id":"abc`,
	}); call != nil {
		t.Fatalf("arguments are incomplete, got %#v", call)
	}

	call := accumulator.Ingest(ctx, chat.ToolCallFragment{Arguments: `123"}`})
	if call == nil {
		t.Fatal("expected a completed call")
	}
	if call.ID != "call_1" {
		t.Errorf("fragment without an id should attach to the last call, got %q", call.ID)
	}
	if call.Name != "play_music" {
		t.Errorf("unexpected name: %q", call.Name)
	}
	if got := call.MediaID(); got != "abc123" {
		t.Errorf("unexpected media id: %q", got)
	}
}

func TestAccumulatorInterleavedCalls(t *testing.T) {
	accumulator := newToolCallAccumulator()
	ctx := context.Background()

	accumulator.Ingest(ctx, chat.ToolCallFragment{ID: "a", Name: "play_music", Arguments: `{"id":`})
	accumulator.Ingest(ctx, chat.ToolCallFragment{ID: "b", Name: "play_sfx", Arguments: `{"id":"boom"}`})

	call := accumulator.Ingest(ctx, chat.ToolCallFragment{ID: "a", Arguments: `"song-1"}`})
	if call == nil || call.MediaID() != "song-1" {
		t.Fatalf("expected call a to complete with song-1, got %#v", call)
	}
}

func TestAccumulatorIgnoresBracesInsideStrings(t *testing.T) {
	accumulator := newToolCallAccumulator()
	ctx := context.Background()

	if call := accumulator.Ingest(ctx, chat.ToolCallFragment{
		ID: "c", Arguments: `{"id":"weird}{value`,
	}); call != nil {
		t.Fatalf("braces inside a string must not complete the call, got %#v", call)
	}
	call := accumulator.Ingest(ctx, chat.ToolCallFragment{Arguments: `"}`})
	if call == nil || call.MediaID() != "weird}{value" {
		t.Fatalf("expected completion with the literal value, got %#v", call)
	}
}

func TestAccumulatorDropsOrphanFragment(t *testing.T) {
	accumulator := newToolCallAccumulator()

	if call := accumulator.Ingest(context.Background(), chat.ToolCallFragment{Arguments: `{"id":"x"}`}); call != nil {
		t.Fatalf("fragment with no id and no prior call should be dropped, got %#v", call)
	}
	if recovered := accumulator.FinishStream(context.Background()); recovered != nil {
		t.Errorf("nothing should be recoverable, got %#v", recovered)
	}
}

func TestFinishStreamPadsMissingBraces(t *testing.T) {
	accumulator := newToolCallAccumulator()
	ctx := context.Background()

	accumulator.Ingest(ctx, chat.ToolCallFragment{ID: "d", Name: "play_music", Arguments: `{"id":"song-2"`})

	recovered := accumulator.FinishStream(ctx)
	if len(recovered) != 1 {
		t.Fatalf("expected 1 recovered call, got %#v", recovered)
	}
	if recovered[0].MediaID() != "song-2" {
		t.Errorf("unexpected media id: %q", recovered[0].MediaID())
	}
}

func TestFinishStreamFallsBackToIDExtraction(t *testing.T) {
	accumulator := newToolCallAccumulator()
	ctx := context.Background()

	// Padding braces does not help here, the trailing value is cut off
	// mid-token.
	accumulator.Ingest(ctx, chat.ToolCallFragment{
		ID: "e", Name: "play_sfx", Arguments: `{"id":"boing","volume":0.`,
	})

	recovered := accumulator.FinishStream(ctx)
	if len(recovered) != 1 {
		t.Fatalf("expected 1 recovered call, got %#v", recovered)
	}
	if recovered[0].MediaID() != "boing" {
		t.Errorf("unexpected media id: %q", recovered[0].MediaID())
	}
}

func TestFinishStreamSkipsCompletedAndHopelessCalls(t *testing.T) {
	accumulator := newToolCallAccumulator()
	ctx := context.Background()

	if call := accumulator.Ingest(ctx, chat.ToolCallFragment{ID: "f", Name: "play_music", Arguments: `{"id":"done"}`}); call == nil {
		t.Fatal("expected completion")
	}
	// No argument text at all.
	accumulator.Ingest(ctx, chat.ToolCallFragment{ID: "g", Name: "play_music"})

	if recovered := accumulator.FinishStream(ctx); recovered != nil {
		t.Errorf("completed and empty calls should not be recovered, got %#v", recovered)
	}
}

func TestScanArgumentObjectStates(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		want argumentState
	}{
		{`{"id":"x"}`, argumentsComplete},
		{`{"id":"x"`, argumentsIncomplete},
		{`{"nested":{"id":"x"}`, argumentsIncomplete},
		{`{"escaped":"a\"}b"}`, argumentsComplete},
		{``, argumentsIncomplete},
		{`  `, argumentsIncomplete},
		{`["id"]`, argumentsInvalid},
		{`{"id":"x"}}`, argumentsInvalid},
	} {
		if got := scanArgumentObject(tc.raw); got != tc.want {
			t.Errorf("scanArgumentObject(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
