// Package narration generates segment voice tracks through an external
// speech service and estimates word timings for them.
package narration

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
)

const maxAudioBytes = 50 << 20

// SpeechService turns narration text into audio.
type SpeechService interface {
	// GenerateSpeech returns the encoded audio and its format ("mp3", "wav").
	GenerateSpeech(ctx context.Context, text string) ([]byte, string, error)
}

// ServiceError is a failed call to the speech service.
type ServiceError struct {
	StatusCode int // 0 for transport errors
	Body       string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("speech service unreachable: %v", e.Err)
	}
	return fmt.Sprintf("speech service failed: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Retryable is true for transport errors, throttling and server errors.
// Other client errors are permanent.
func (e *ServiceError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type speechRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice,omitempty"`
	Format string `json:"format"`
}

// HTTPSpeechClient posts narration text to a speech service endpoint.
type HTTPSpeechClient struct {
	baseURL    string
	apiKey     string
	voice      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPSpeechClient(baseURL, apiKey, voice string, logger *slog.Logger) *HTTPSpeechClient {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HTTPSpeechClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		voice:   voice,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

func (c *HTTPSpeechClient) GenerateSpeech(ctx context.Context, text string) ([]byte, string, error) {
	body, err := json.Marshal(speechRequest{Text: text, Voice: c.voice, Format: "mp3"})
	if err != nil {
		return nil, "", fmt.Errorf("marshal speech request: %w", err)
	}

	url := c.baseURL + "/v1/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg, audio/wav")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("X-Request-Id", generateRequestID())

	c.logger.Debug("requesting speech", "url", url, "chars", len(text))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", &ServiceError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", &ServiceError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, "", &ServiceError{StatusCode: resp.StatusCode, Err: err}
	}
	if len(audio) == 0 {
		return nil, "", &ServiceError{StatusCode: resp.StatusCode, Body: "empty audio"}
	}
	return audio, formatFor(resp.Header.Get("Content-Type")), nil
}

func formatFor(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "mp3"
	}
	switch mt {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/ogg":
		return "ogg"
	default:
		return "mp3"
	}
}

func generateRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
