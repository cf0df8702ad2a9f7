// Package stock searches an external stock media library for clips to place
// on segments.
package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/storyreel/storyreel-agent/internal/timeline"
)

type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
	OrientationSquare    Orientation = "square"
)

// ParseOrientation defaults to portrait, the render profile's shape.
func ParseOrientation(s string) (Orientation, error) {
	switch o := Orientation(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return OrientationPortrait, nil
	case OrientationPortrait, OrientationLandscape, OrientationSquare:
		return o, nil
	}
	return "", fmt.Errorf("unknown orientation %q", s)
}

// Result is one stock item. FullResURL is what gets rendered; PreviewURL is
// for the picker.
type Result struct {
	ID         string             `json:"id"`
	PreviewURL string             `json:"previewUrl"`
	FullResURL string             `json:"fullResUrl"`
	Kind       timeline.MediaType `json:"kind"`
}

// Clip converts the result into a media clip with a fresh id.
func (r Result) Clip() timeline.MediaClip {
	return timeline.MediaClip{ID: timeline.NewID(), URL: r.FullResURL, Type: r.Kind}
}

type Searcher interface {
	Search(ctx context.Context, query string, orientation Orientation) ([]Result, error)
}

// SearchError is a non-2xx response from the stock service.
type SearchError struct {
	StatusCode int
	Body       string
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("stock search failed: HTTP %d: %s", e.StatusCode, e.Body)
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// HTTPSearcher queries a stock search endpoint over JSON.
type HTTPSearcher struct {
	baseURL    string
	apiKey     string
	limit      int
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPSearcher(baseURL, apiKey string, logger *slog.Logger) *HTTPSearcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HTTPSearcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		limit:   20,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (s *HTTPSearcher) Search(ctx context.Context, query string, orientation Orientation) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("orientation", string(orientation))
	q.Set("per_page", fmt.Sprint(s.limit))
	endpoint := s.baseURL + "/v1/search?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	s.logger.Debug("stock search", "query", query, "orientation", orientation)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stock search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &SearchError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode stock results: %w", err)
	}

	results := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.ID == "" || r.FullResURL == "" {
			continue
		}
		if r.Kind != timeline.MediaVideo {
			r.Kind = timeline.MediaImage
		}
		if r.PreviewURL == "" {
			r.PreviewURL = r.FullResURL
		}
		results = append(results, r)
	}
	return results, nil
}
