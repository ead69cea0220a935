package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tinybuddy/buddy-core/core/speechtotext"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("missing api key should fail")
	}
	client, err := NewClient(Config{APIKey: "key"})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	if client.cfg.Model != defaultModel {
		t.Errorf("unexpected default model: %q", client.cfg.Model)
	}
}

func TestTranscribeUploadsFormAndParsesText(t *testing.T) {
	var auth string
	fields := map[string]string{}
	var uploaded []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		for name, values := range r.MultipartForm.Value {
			fields[name] = values[0]
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing recording file: %v", err)
		} else {
			uploaded, _ = io.ReadAll(file)
			file.Close()
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "sing the wheels on the bus"})
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "key", URL: server.URL})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	transcript, err := client.Transcribe(context.Background(), []byte("RIFFaudio"),
		speechtotext.WithContextSentence("What should we sing?"),
		speechtotext.WithLanguage("en"))
	if err != nil {
		t.Fatalf("transcription failed: %v", err)
	}

	if transcript != "sing the wheels on the bus" {
		t.Errorf("unexpected transcript: %q", transcript)
	}
	if auth != "Bearer key" {
		t.Errorf("unexpected authorization header: %q", auth)
	}
	if !bytes.Equal(uploaded, []byte("RIFFaudio")) {
		t.Error("recording should upload unchanged")
	}
	if fields["model"] != defaultModel || fields["response_format"] != "json" || fields["temperature"] != "0" {
		t.Errorf("unexpected form fields: %v", fields)
	}
	if fields["language"] != "en" {
		t.Errorf("language option should be forwarded, got %q", fields["language"])
	}
	if !strings.Contains(fields["prompt"], "What should we sing?") {
		t.Errorf("context sentence should ride in the prompt, got %q", fields["prompt"])
	}
}

func TestTranscribeFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "key", URL: server.URL})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	if _, err := client.Transcribe(context.Background(), []byte("audio")); err == nil {
		t.Error("expected an error for a non-OK response")
	}
	if _, err := client.Transcribe(context.Background(), nil); err == nil {
		t.Error("expected an error for an empty recording")
	}
}
