package elevenlabs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tinybuddy/buddy-core/core/audio"
	"github.com/tinybuddy/buddy-core/core/identity"
	"github.com/tinybuddy/buddy-core/core/texttospeech"
)

func TestSynthesizeSendsRequestAndReturnsClip(t *testing.T) {
	var request synthesisRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tts" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &request); err != nil {
			t.Errorf("unreadable request body: %v", err)
		}
		w.Write([]byte{1, 2, 3, 4})
	}))
	defer server.Close()

	client := NewClient(Config{}, identity.Static{UserID: "u", Host: server.URL})
	clip, err := client.Synthesize(context.Background(), "Hello there, friend.",
		texttospeech.WithVoice("voice-7"))
	if err != nil {
		t.Fatalf("synthesis failed: %v", err)
	}
	if len(clip) != 4 {
		t.Errorf("unexpected clip: %v", clip)
	}
	if request.Text != "Hello there, friend." {
		t.Errorf("unexpected text: %q", request.Text)
	}
	if request.VoiceID != "voice-7" {
		t.Errorf("voice option should override the default, got %q", request.VoiceID)
	}
	if request.OutputFormat != "pcm_16000" {
		t.Errorf("unexpected output format: %q", request.OutputFormat)
	}
}

func TestSynthesizeDerivesOutputFormatFromEncoding(t *testing.T) {
	var request synthesisRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &request)
		w.Write([]byte{1})
	}))
	defer server.Close()

	client := NewClient(Config{}, identity.Static{UserID: "u", Host: server.URL})
	_, err := client.Synthesize(context.Background(), "Hi.",
		texttospeech.WithEncodingInfo(audio.EncodingInfo{SampleRate: 8000, Format: audio.EncodingMulaw}))
	if err != nil {
		t.Fatalf("synthesis failed: %v", err)
	}
	if request.OutputFormat != "ulaw_8000" {
		t.Errorf("output format should follow the requested encoding, got %q", request.OutputFormat)
	}

	_, err = client.Synthesize(context.Background(), "Hi.",
		texttospeech.WithEncodingInfo(audio.EncodingInfo{SampleRate: 24000, Format: audio.EncodingLinear16}))
	if err != nil {
		t.Fatalf("synthesis failed: %v", err)
	}
	if request.OutputFormat != "pcm_24000" {
		t.Errorf("output format should follow the requested sample rate, got %q", request.OutputFormat)
	}
}

func TestSynthesizeUsesDefaultVoice(t *testing.T) {
	var request synthesisRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &request)
		w.Write([]byte{1})
	}))
	defer server.Close()

	client := NewClient(Config{}, identity.Static{UserID: "u", Host: server.URL})
	if _, err := client.Synthesize(context.Background(), "Hi."); err != nil {
		t.Fatalf("synthesis failed: %v", err)
	}
	if request.VoiceID != DefaultVoiceID {
		t.Errorf("expected the default voice, got %q", request.VoiceID)
	}
}

func TestSynthesizeFailsOnErrorAndEmptyClip(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "voice not found", http.StatusNotFound)
	}))
	defer failing.Close()

	client := NewClient(Config{}, identity.Static{UserID: "u", Host: failing.URL})
	if _, err := client.Synthesize(context.Background(), "Hi."); err == nil {
		t.Error("expected an error for a non-OK response")
	}

	empty := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer empty.Close()

	client = NewClient(Config{}, identity.Static{UserID: "u", Host: empty.URL})
	if _, err := client.Synthesize(context.Background(), "Hi."); err == nil {
		t.Error("expected an error for an empty clip")
	}

	client = NewClient(Config{}, identity.Static{})
	if _, err := client.Synthesize(context.Background(), "Hi."); err == nil {
		t.Error("expected an error when no identity is configured")
	}
}
