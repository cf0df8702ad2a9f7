package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storyreel/storyreel-agent/internal/export"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist(cfg.AllowedOrigins...))

	r.Get("/health", healthHandler(cfg))

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/events", eventsHandler(cfg))
		r.Get("/stock", stockSearchHandler(cfg))

		r.Get("/projects", listProjectsHandler(cfg))
		r.Post("/projects", createProjectHandler(cfg))

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Get("/", getProjectHandler(cfg))
			r.Delete("/", deleteProjectHandler(cfg))
			r.Put("/title", setTitleHandler(cfg))
			r.Put("/script", applyScriptHandler(cfg))
			r.Post("/undo", undoHandler(cfg))
			r.Post("/redo", redoHandler(cfg))
			r.Get("/preview", previewHandler(cfg))
			r.Post("/narration", narrationHandler(cfg))
			r.Get("/captions.srt", srtHandler(cfg))
			r.Get("/timeline.edl", edlHandler(cfg))

			r.Get("/export", exportStatusHandler(cfg))
			r.Post("/export", startExportHandler(cfg))
			r.Delete("/export", cancelExportHandler(cfg))

			r.Post("/segments", addSegmentHandler(cfg))
			r.Put("/segments/order", reorderSegmentsHandler(cfg))
			r.Route("/segments/{segmentID}", func(r chi.Router) {
				r.Delete("/", deleteSegmentHandler(cfg))
				r.Post("/select", selectSegmentHandler(cfg))
				r.Put("/narration", updateNarrationHandler(cfg))
				r.Put("/duration", updateDurationHandler(cfg))
				r.Put("/transition", updateTransitionHandler(cfg))
				r.Put("/style", updateStyleHandler(cfg))
				r.Put("/volume", updateVolumeHandler(cfg))
				r.Put("/timings", setTimingsHandler(cfg))
				r.Post("/subtitles", autoSubtitlesHandler(cfg))
				r.Post("/nudge", nudgeHandler(cfg))
				r.Post("/split", splitHandler(cfg))
				r.Get("/audio", segmentAudioHandler(cfg))
				r.Post("/clips", addClipHandler(cfg))
				r.Put("/clips/order", reorderClipsHandler(cfg))
				r.Delete("/clips/{clipID}", removeClipHandler(cfg))
			})

			r.Post("/audio", addAudioTrackHandler(cfg))
			r.Put("/audio/{trackID}/start", moveAudioTrackHandler(cfg))
			r.Put("/audio/{trackID}/volume", audioTrackVolumeHandler(cfg))
			r.Delete("/audio/{trackID}", removeAudioTrackHandler(cfg))
		})

		r.Get("/exports/{exportID}", getExportHandler(cfg))
		r.Get("/exports/{exportID}/download", downloadExportHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		active := cfg.Exports.Active()
		if active == nil {
			active = []export.Export{}
		}
		resp := StatusResponse{
			State:         "idle",
			ActiveExports: active,
			Narration:     cfg.Voices != nil,
			Stock:         cfg.Stock != nil,
		}
		if len(active) > 0 {
			resp.State = "rendering"
		}
		resp.OpenProjects = cfg.Projects.OpenSessions()

		if cfg.Doctor != nil {
			caps, err := cfg.Doctor.Get(ctx)
			if err != nil || caps == nil {
				resp.FFmpeg = &FFmpegStatus{OK: false, Missing: []string{"ffmpeg"}}
				resp.State = "error"
			} else {
				missing := caps.Missing(cfg.Profile.VideoCodec, cfg.Profile.AudioCodec)
				resp.FFmpeg = &FFmpegStatus{
					Version: caps.FFmpegVersion,
					OK:      caps.FFmpegVersion != "" && len(missing) == 0,
					Missing: missing,
				}
				if !caps.ProbedAt.IsZero() {
					resp.FFmpeg.LastProbeAt = caps.ProbedAt.Format(time.RFC3339)
				}
				if !resp.FFmpeg.OK && resp.State == "idle" {
					resp.State = "error"
				}
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}
