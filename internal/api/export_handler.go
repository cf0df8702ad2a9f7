package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/storyreel/storyreel-agent/internal/captions"
	"github.com/storyreel/storyreel-agent/internal/export"
	"github.com/storyreel/storyreel-agent/internal/render"
)

const eventWriteTimeout = 5 * time.Second

func startExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ed, err := cfg.Projects.Open(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		snapshot := ed.Snapshot()
		if err := snapshot.Validate(); err != nil {
			writeServiceError(w, err)
			return
		}
		e, err := cfg.Exports.Start(r.Context(), snapshot)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, e)
	}
}

func cancelExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := cfg.Exports.Cancel(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, e)
	}
}

func exportStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "projectID")
		if _, err := cfg.Projects.Open(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		e, err := cfg.Exports.Status(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, e)
	}
}

func getExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := cfg.Exports.Get(r.Context(), chi.URLParam(r, "exportID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, e)
	}
}

func downloadExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "exportID")
		path, filename, err := cfg.Exports.Output(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if err := cfg.Files.ServeFile(w, r, path, filename); err != nil {
			cfg.Logger.Error("download error", "error", err, "export_id", id)
		}
	}
}

// edlHandler hands the story timeline to an NLE as a CMX 3600 EDL.
func edlHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ed, err := cfg.Projects.Open(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		p := ed.Snapshot()
		plan := render.BuildPlan(p.State, cfg.Profile)
		edl := export.GenerateEDL(export.EventsFromPlan(plan), p.Title, float64(cfg.Profile.FPS))
		writeAttachment(w, "text/plain; charset=utf-8", export.SanitizeName(p.Title, 100, "story")+".edl", []byte(edl))
	}
}

func srtHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ed, err := cfg.Projects.Open(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		p := ed.Snapshot()
		var buf bytes.Buffer
		if err := captions.WriteSRT(&buf, captions.Tracks(p.State, cfg.Profile.Width, cfg.Profile.CaptionWidth)); err != nil {
			writeServiceError(w, err)
			return
		}
		writeAttachment(w, "application/x-subrip", export.SanitizeName(p.Title, 100, "story")+".srt", buf.Bytes())
	}
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// eventsHandler streams export events over a websocket. An optional
// projectId query parameter narrows the stream to one project.
func eventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.URL.Query().Get("projectId")

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns(cfg.AllowedOrigins),
		})
		if err != nil {
			cfg.Logger.Warn("websocket accept failed", "error", err)
			return
		}
		defer conn.Close(websocket.StatusInternalError, "closing")

		events, unsubscribe := cfg.Exports.Subscribe()
		defer unsubscribe()

		// Clients only listen; CloseRead handles their pings and close frames.
		ctx := conn.CloseRead(r.Context())

		if projectID != "" {
			if e, err := cfg.Exports.Status(ctx, projectID); err == nil {
				if err := writeEvent(ctx, conn, export.Event{Type: export.EventStatus, Export: e}); err != nil {
					return
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case ev, ok := <-events:
				if !ok {
					conn.Close(websocket.StatusGoingAway, "server shutting down")
					return
				}
				if projectID != "" && ev.Export.ProjectID != projectID {
					continue
				}
				if err := writeEvent(ctx, conn, ev); err != nil {
					cfg.Logger.Debug("websocket write failed", "error", err)
					return
				}
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev export.Event) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}

// originPatterns lists the hosts allowed to open the event stream, in the
// host[:port] form websocket.AcceptOptions matches against.
func originPatterns(extra []string) []string {
	patterns := []string{"localhost", "localhost:*", "127.0.0.1", "127.0.0.1:*"}
	for _, origin := range extra {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return patterns
}
