package api

import (
	"net/http"
	"net/url"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storyreel/storyreel-agent/internal/narration"
	"github.com/storyreel/storyreel-agent/internal/render"
	"github.com/storyreel/storyreel-agent/internal/stock"
	"github.com/storyreel/storyreel-agent/internal/timeline"
)

// previewHandler describes the composited frame at ?t= seconds, the same
// plan the exporter renders from.
func previewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "t must be a number of seconds", "BAD_REQUEST")
			return
		}
		ed, err := cfg.Projects.Open(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		plan := render.BuildPlan(ed.Snapshot().State, cfg.Profile)
		frame, ok := render.FrameAt(plan, t, nil)
		if !ok {
			WriteError(w, http.StatusBadRequest, "t is outside the timeline", "BAD_REQUEST")
			return
		}
		WriteJSON(w, http.StatusOK, frame)
	}
}

// narrationHandler voices the requested segments, or all of them, and
// attaches each successful track. Failed segments keep their previous audio.
func narrationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Voices == nil {
			WriteError(w, http.StatusServiceUnavailable, "no speech service is configured", "UPSTREAM_ERROR")
			return
		}
		var req NarrationRequest
		if r.ContentLength != 0 {
			if err := decode(r, &req); err != nil {
				writeServiceError(w, err)
				return
			}
		}
		ed, err := cfg.Projects.Open(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		var segments []timeline.Segment
		for _, seg := range ed.Snapshot().Segments {
			if len(req.SegmentIDs) == 0 || slices.Contains(req.SegmentIDs, seg.ID) {
				segments = append(segments, seg)
			}
		}
		if len(segments) == 0 {
			writeServiceError(w, timeline.ErrSegmentNotFound)
			return
		}

		voices := cfg.Voices.Generate(r.Context(), segments)
		applied, err := narration.Apply(ed, voices)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := NarrationResponse{Voices: make([]VoiceResponse, len(voices)), Applied: applied}
		for i, v := range voices {
			resp.Voices[i] = VoiceResponse{SegmentID: v.SegmentID, AudioURL: v.AudioURL, Duration: v.Duration}
			if v.Err != nil {
				resp.Voices[i] = VoiceResponse{SegmentID: v.SegmentID, Error: v.Err.Error()}
			}
		}
		resp.ProjectResponse = projectResponse(ed)
		WriteJSON(w, http.StatusOK, resp)
	}
}

// segmentAudioHandler plays a segment's narration track. Local tracks are
// streamed with range support; remote ones are redirected to.
func segmentAudioHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ed, err := cfg.Projects.Open(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		seg, ok := ed.Snapshot().Segment(chi.URLParam(r, "segmentID"))
		if !ok {
			writeServiceError(w, timeline.ErrSegmentNotFound)
			return
		}
		if seg.AudioURL == "" {
			WriteError(w, http.StatusNotFound, "segment has no narration audio", "NOT_FOUND")
			return
		}

		u, err := url.Parse(seg.AudioURL)
		if err != nil {
			WriteError(w, http.StatusNotFound, "segment audio url is invalid", "NOT_FOUND")
			return
		}
		switch strings.ToLower(u.Scheme) {
		case "file":
			if err := cfg.Files.ServeFile(w, r, filepath.FromSlash(u.Path), ""); err != nil {
				cfg.Logger.Error("narration playback error", "error", err, "segment_id", seg.ID)
			}
		case "http", "https":
			http.Redirect(w, r, seg.AudioURL, http.StatusFound)
		default:
			WriteError(w, http.StatusNotFound, "segment audio is not playable here", "NOT_FOUND")
		}
	}
}

func stockSearchHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Stock == nil {
			WriteError(w, http.StatusServiceUnavailable, "no stock search service is configured", "UPSTREAM_ERROR")
			return
		}
		orientation, err := stock.ParseOrientation(r.URL.Query().Get("orientation"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		results, err := cfg.Stock.Search(r.Context(), r.URL.Query().Get("query"), orientation)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, StockResponse{Results: results})
	}
}
