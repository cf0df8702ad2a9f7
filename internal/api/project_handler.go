package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storyreel/storyreel-agent/internal/narration"
	"github.com/storyreel/storyreel-agent/internal/project"
	"github.com/storyreel/storyreel-agent/internal/timeline"
)

// editFunc applies one named operation to an open editor.
type editFunc func(r *http.Request, ed *timeline.Editor) error

// editHandler opens the project, runs fn and answers with the new state.
func editHandler(cfg ServerConfig, fn editFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ed, err := cfg.Projects.Open(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if err := fn(r, ed); err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, projectResponse(ed))
	}
}

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := cfg.Projects.List(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list projects", "INTERNAL_ERROR")
			return
		}
		if projects == nil {
			projects = []project.Summary{}
		}
		WriteJSON(w, http.StatusOK, ProjectsResponse{Projects: projects})
	}
}

func createProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req project.CreateRequest
		if err := decode(r, &req); err != nil {
			writeServiceError(w, err)
			return
		}
		ed, err := cfg.Projects.Create(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, projectResponse(ed))
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error { return nil })
}

func deleteProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Projects.Delete(r.Context(), chi.URLParam(r, "projectID")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func setTitleHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		var req TitleRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		return ed.SetTitle(req.Title)
	})
}

func applyScriptHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		var req ScriptRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		return ed.ApplyScript(req.Text)
	})
}

func undoHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error { return ed.Undo() })
}

func redoHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error { return ed.Redo() })
}

func addSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		var seg timeline.Segment
		if err := decode(r, &seg); err != nil {
			return err
		}
		id, err := ed.AddSegment(seg)
		if err != nil {
			return err
		}
		return ed.Select(id)
	})
}

func reorderSegmentsHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		var req OrderRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		return ed.ReorderSegments(req.Order)
	})
}

func deleteSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		_, err := ed.DeleteSegment(chi.URLParam(r, "segmentID"))
		return err
	})
}

func selectSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		return ed.Select(chi.URLParam(r, "segmentID"))
	})
}

func updateNarrationHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		var req NarrationTextRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		return ed.UpdateNarration(chi.URLParam(r, "segmentID"), req.Text)
	})
}

func updateDurationHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		var req DurationRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		return ed.UpdateDuration(chi.URLParam(r, "segmentID"), req.Duration)
	})
}

func updateTransitionHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		var req TransitionRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		return ed.UpdateTransition(chi.URLParam(r, "segmentID"), req.Transition)
	})
}

func updateStyleHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		var req StyleRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		return ed.UpdateStyle(chi.URLParam(r, "segmentID"), req.Style)
	})
}

func updateVolumeHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		var req VolumeRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		return ed.UpdateVolume(chi.URLParam(r, "segmentID"), req.Volume)
	})
}

func setTimingsHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		var req TimingsRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		return ed.SetWordTimings(chi.URLParam(r, "segmentID"), req.WordTimings)
	})
}

// autoSubtitlesHandler estimates word timings from the narration text. It
// only runs on explicit request; segments are never captioned implicitly.
func autoSubtitlesHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		id := chi.URLParam(r, "segmentID")
		seg, ok := ed.Snapshot().Segment(id)
		if !ok {
			return timeline.ErrSegmentNotFound
		}
		timings := narration.EstimateWordTimings(seg.NarrationText, seg.Duration)
		if len(timings) == 0 {
			return &timeline.ValidationError{Field: "narration_text", Message: "segment has no narration text to caption"}
		}
		return ed.SetWordTimings(id, timings)
	})
}

func nudgeHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		var req NudgeRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		dir, err := timeline.ParseDirection(req.Direction)
		if err != nil {
			return err
		}
		return ed.Nudge(chi.URLParam(r, "segmentID"), dir)
	})
}

func splitHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		var req SplitRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		_, err := ed.SplitSegment(chi.URLParam(r, "segmentID"), req.At)
		return err
	})
}

func addClipHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		var clip timeline.MediaClip
		if err := decode(r, &clip); err != nil {
			return err
		}
		return ed.AddClip(chi.URLParam(r, "segmentID"), clip)
	})
}

func reorderClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		var req OrderRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		return ed.ReorderClips(chi.URLParam(r, "segmentID"), req.Order)
	})
}

func removeClipHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		return ed.RemoveClip(chi.URLParam(r, "segmentID"), chi.URLParam(r, "clipID"))
	})
}

func addAudioTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		var track timeline.AudioClip
		if err := decode(r, &track); err != nil {
			return err
		}
		_, err := ed.AddAudioTrack(track)
		return err
	})
}

func moveAudioTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		var req AudioStartRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		return ed.MoveAudioTrack(chi.URLParam(r, "trackID"), req.StartTime)
	})
}

func audioTrackVolumeHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		var req VolumeRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		return ed.UpdateAudioTrackVolume(chi.URLParam(r, "trackID"), req.Volume)
	})
}

func removeAudioTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return editHandler(cfg, func(r *http.Request, ed *timeline.Editor) error {
		return ed.RemoveAudioTrack(chi.URLParam(r, "trackID"))
	})
}
