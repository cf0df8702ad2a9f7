package narration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHTTPSpeechClient_Success(t *testing.T) {
	var received speechRequest
	var receivedAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speech" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("missing request id")
		}
		receivedAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)

		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFFdata"))
	}))
	defer server.Close()

	client := NewHTTPSpeechClient(server.URL+"/", "secret", "narrator", testLogger())
	audio, format, err := client.GenerateSpeech(context.Background(), "Once upon a time")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "RIFFdata" {
		t.Errorf("audio = %q", audio)
	}
	if format != "wav" {
		t.Errorf("format = %q, want wav", format)
	}
	if receivedAuth != "Bearer secret" {
		t.Errorf("auth = %q", receivedAuth)
	}
	if received.Text != "Once upon a time" || received.Voice != "narrator" || received.Format != "mp3" {
		t.Errorf("unexpected request: %+v", received)
	}
}

func TestHTTPSpeechClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("overloaded"))
	}))
	defer server.Close()

	client := NewHTTPSpeechClient(server.URL, "", "", testLogger())
	_, _, err := client.GenerateSpeech(context.Background(), "hello")

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if svcErr.StatusCode != http.StatusServiceUnavailable || svcErr.Body != "overloaded" {
		t.Errorf("unexpected error: %+v", svcErr)
	}
	if !svcErr.Retryable() {
		t.Error("503 should be retryable")
	}
}

func TestHTTPSpeechClient_EmptyAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPSpeechClient(server.URL, "", "", testLogger())
	if _, _, err := client.GenerateSpeech(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for empty audio")
	}
}

func TestServiceError_Retryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, true},
		{400, false},
		{401, false},
		{404, false},
		{429, true},
		{500, true},
		{502, true},
	}
	for _, tt := range tests {
		err := &ServiceError{StatusCode: tt.status}
		if got := err.Retryable(); got != tt.want {
			t.Errorf("Retryable(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestFormatFor(t *testing.T) {
	tests := map[string]string{
		"audio/mpeg":               "mp3",
		"audio/wav":                "wav",
		"audio/x-wav; charset=foo": "wav",
		"audio/ogg":                "ogg",
		"":                         "mp3",
	}
	for ct, want := range tests {
		if got := formatFor(ct); got != want {
			t.Errorf("formatFor(%q) = %q, want %q", ct, got, want)
		}
	}
}
