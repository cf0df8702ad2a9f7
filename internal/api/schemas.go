package api

import (
	"github.com/storyreel/storyreel-agent/internal/export"
	"github.com/storyreel/storyreel-agent/internal/project"
	"github.com/storyreel/storyreel-agent/internal/stock"
	"github.com/storyreel/storyreel-agent/internal/timeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State         string          `json:"state"`
	OpenProjects  int             `json:"open_projects"`
	ActiveExports []export.Export `json:"active_exports"`
	FFmpeg        *FFmpegStatus   `json:"ffmpeg,omitempty"`
	Narration     bool            `json:"narration_enabled"`
	Stock         bool            `json:"stock_enabled"`
}

type FFmpegStatus struct {
	Version     string   `json:"version"`
	OK          bool     `json:"ok"`
	Missing     []string `json:"missing,omitempty"`
	LastProbeAt string   `json:"last_probe_at,omitempty"`
}

type ProjectsResponse struct {
	Projects []project.Summary `json:"projects"`
}

// ProjectResponse is returned by every read and mutation of a project.
type ProjectResponse struct {
	Project  timeline.Project `json:"project"`
	Duration float64          `json:"duration"`
	Selected string           `json:"selectedSegmentId,omitempty"`
	CanUndo  bool             `json:"canUndo"`
	CanRedo  bool             `json:"canRedo"`
}

type TitleRequest struct {
	Title string `json:"title"`
}

type ScriptRequest struct {
	Text string `json:"text"`
}

type OrderRequest struct {
	Order []string `json:"order"`
}

type NarrationTextRequest struct {
	Text string `json:"text"`
}

type DurationRequest struct {
	Duration float64 `json:"duration"`
}

type TransitionRequest struct {
	Transition timeline.Transition `json:"transition"`
}

type StyleRequest struct {
	Style timeline.TextOverlayStyle `json:"textOverlayStyle"`
}

type VolumeRequest struct {
	Volume float64 `json:"volume"`
}

type TimingsRequest struct {
	WordTimings []timeline.WordTiming `json:"wordTimings"`
}

type NudgeRequest struct {
	Direction string `json:"direction"`
}

type SplitRequest struct {
	At float64 `json:"at"`
}

type AudioStartRequest struct {
	StartTime float64 `json:"startTime"`
}

type NarrationRequest struct {
	SegmentIDs []string `json:"segmentIds,omitempty"`
}

type VoiceResponse struct {
	SegmentID string  `json:"segmentId"`
	AudioURL  string  `json:"audioUrl,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Error     string  `json:"error,omitempty"`
}

type NarrationResponse struct {
	Voices  []VoiceResponse `json:"voices"`
	Applied int             `json:"applied"`
	ProjectResponse
}

type StockResponse struct {
	Results []stock.Result `json:"results"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func projectResponse(ed *timeline.Editor) ProjectResponse {
	p := ed.Snapshot()
	return ProjectResponse{
		Project:  p,
		Duration: p.TotalDuration(),
		Selected: ed.Selected(),
		CanUndo:  ed.CanUndo(),
		CanRedo:  ed.CanRedo(),
	}
}
