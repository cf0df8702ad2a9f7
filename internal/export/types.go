package export

import (
	"errors"
	"time"
)

// Status is the export state machine: idle -> rendering -> complete | error,
// with complete|error -> rendering on re-export and rendering -> idle on
// cancel.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRendering Status = "rendering"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

var (
	ErrExportInProgress = errors.New("an export is already rendering for this project")
	ErrNotRendering     = errors.New("no export is rendering for this project")
	ErrNoOutput         = errors.New("export has no output")
	ErrNotFound         = errors.New("export not found")
)

// Export is one render attempt of a project.
type Export struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"projectId"`
	Status       Status     `json:"status"`
	Progress     float64    `json:"progress"`
	Message      string     `json:"message"`
	OutputPath   string     `json:"-"`
	Filename     string     `json:"filename,omitempty"`
	DownloadURL  string     `json:"downloadUrl,omitempty"`
	PublishedURL string     `json:"publishedUrl,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Event is pushed to subscribers on every state or progress change.
type Event struct {
	Type   string `json:"type"`
	Export Export `json:"export"`
}

const (
	EventProgress = "progress"
	EventStatus   = "status"
)
