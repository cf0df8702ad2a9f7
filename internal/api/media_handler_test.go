package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/storyreel/storyreel-agent/internal/render"
	"github.com/storyreel/storyreel-agent/internal/stock"
	"github.com/storyreel/storyreel-agent/internal/timeline"
)

func TestPreviewHandler(t *testing.T) {
	env := newTestEnv(t)
	p := env.seed(t)
	base := "/api/projects/" + p.ID + "/preview"

	rr := env.do(t, http.MethodGet, base+"?t=6", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var frame render.Frame
	if err := json.NewDecoder(rr.Body).Decode(&frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if frame.Position.SegmentIndex != 1 || frame.Position.SegmentID != p.Segments[1].ID {
		t.Errorf("t=6 resolved to %+v", frame.Position)
	}
	if frame.Position.LocalTime != 1 {
		t.Errorf("local time = %v, want 1", frame.Position.LocalTime)
	}
	if len(frame.Layers) == 0 {
		t.Errorf("frame has no picture layers")
	}

	for _, q := range []string{"?t=9", "?t=-1", "?t=abc", ""} {
		if rr := env.do(t, http.MethodGet, base+q, nil); rr.Code != http.StatusBadRequest {
			t.Errorf("preview%s = %d, want 400", q, rr.Code)
		}
	}
}

func TestNarrationHandler_Unconfigured(t *testing.T) {
	env := newTestEnv(t)
	p := env.seed(t)

	rr := env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/narration", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestNarrationHandler_PartialFailure(t *testing.T) {
	env := newTestEnv(t)
	p := env.seed(t)
	env.cfg.Voices = &fakeVoices{fail: map[string]error{p.Segments[1].ID: errors.New("voice unavailable")}}
	env.rebuild()

	rr := env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/narration", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp NarrationResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Applied != 1 || len(resp.Voices) != 2 {
		t.Fatalf("applied = %d voices = %d", resp.Applied, len(resp.Voices))
	}
	if resp.Voices[1].Error == "" || resp.Voices[1].AudioURL != "" {
		t.Errorf("failed voice reported as %+v", resp.Voices[1])
	}

	first, second := resp.Project.Segments[0], resp.Project.Segments[1]
	if first.AudioURL == "" || first.Duration != 2 {
		t.Errorf("first segment not narrated: url=%q duration=%v", first.AudioURL, first.Duration)
	}
	if second.AudioURL != "" || second.Duration != 4 {
		t.Errorf("failed segment changed: url=%q duration=%v", second.AudioURL, second.Duration)
	}
}

func TestNarrationHandler_SelectedSegments(t *testing.T) {
	env := newTestEnv(t)
	p := env.seed(t)
	env.cfg.Voices = &fakeVoices{}
	env.rebuild()
	path := "/api/projects/" + p.ID + "/narration"

	rr := env.do(t, http.MethodPost, path, NarrationRequest{SegmentIDs: []string{p.Segments[1].ID}})
	var resp NarrationResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Voices) != 1 || resp.Voices[0].SegmentID != p.Segments[1].ID {
		t.Errorf("voiced %+v", resp.Voices)
	}
	if resp.Project.Segments[0].AudioURL != "" {
		t.Errorf("unselected segment was narrated")
	}

	rr = env.do(t, http.MethodPost, path, NarrationRequest{SegmentIDs: []string{"missing"}})
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown segment ids = %d, want 404", rr.Code)
	}
}

func TestSegmentAudioHandler(t *testing.T) {
	env := newTestEnv(t)
	p := env.seed(t)
	ed, err := env.projects.Open(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	base := "/api/projects/" + p.ID + "/segments/"

	if rr := env.do(t, http.MethodGet, base+p.Segments[0].ID+"/audio", nil); rr.Code != http.StatusNotFound {
		t.Errorf("segment without audio = %d, want 404", rr.Code)
	}

	path := filepath.Join(t.TempDir(), "voice.mp3")
	if err := os.WriteFile(path, []byte("ID3audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ed.UpdateAudio(p.Segments[0].ID, "file://"+filepath.ToSlash(path), 0); err != nil {
		t.Fatal(err)
	}
	rr := env.do(t, http.MethodGet, base+p.Segments[0].ID+"/audio", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "ID3audio" {
		t.Errorf("local audio = %d %q", rr.Code, rr.Body.String())
	}

	if err := ed.UpdateAudio(p.Segments[1].ID, "https://cdn.example.com/v.mp3", 0); err != nil {
		t.Fatal(err)
	}
	rr = env.do(t, http.MethodGet, base+p.Segments[1].ID+"/audio", nil)
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "https://cdn.example.com/v.mp3" {
		t.Errorf("remote audio = %d %q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestStockSearchHandler(t *testing.T) {
	env := newTestEnv(t)

	if rr := env.do(t, http.MethodGet, "/api/stock?query=fox", nil); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured = %d, want 503", rr.Code)
	}

	fake := &fakeStock{results: []stock.Result{{
		ID: "1", PreviewURL: "https://cdn.example.com/p.jpg", FullResURL: "https://cdn.example.com/f.jpg", Kind: timeline.MediaImage,
	}}}
	env.cfg.Stock = fake
	env.rebuild()

	rr := env.do(t, http.MethodGet, "/api/stock?query=fox&orientation=landscape", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp StockResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 1 || fake.query != "fox" {
		t.Errorf("results = %+v query = %q", resp.Results, fake.query)
	}

	if rr := env.do(t, http.MethodGet, "/api/stock?query=fox&orientation=diagonal", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad orientation = %d, want 400", rr.Code)
	}

	fake.err = &stock.SearchError{StatusCode: http.StatusTooManyRequests, Body: "slow down"}
	rr = env.do(t, http.MethodGet, "/api/stock?query=fox", nil)
	if rr.Code != http.StatusBadGateway || decodeError(t, rr).Code != "UPSTREAM_ERROR" {
		t.Errorf("upstream failure = %d %s", rr.Code, rr.Body.String())
	}
}
