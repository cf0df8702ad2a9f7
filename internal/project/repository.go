// Package project persists story projects and keeps one live editing
// session per open project.
package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/storyreel/storyreel-agent/internal/timeline"
)

var ErrNotFound = errors.New("project not found")

// timeLayout is fixed width so stored timestamps order as strings.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Summary is the listing view of a project.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Segments  int       `json:"segments"`
	Duration  float64   `json:"duration"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Repository interface {
	SaveProject(ctx context.Context, p *timeline.Project) error
	GetProject(ctx context.Context, id string) (*timeline.Project, error)
	ListProjects(ctx context.Context) ([]Summary, error)
	DeleteProject(ctx context.Context, id string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveProject inserts or replaces the project document.
func (r *SQLiteRepository) SaveProject(ctx context.Context, p *timeline.Project) error {
	doc, err := json.Marshal(p.State)
	if err != nil {
		return fmt.Errorf("marshal project %s: %w", p.ID, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO projects (id, title, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, document = excluded.document, updated_at = excluded.updated_at
	`, p.ID, p.Title, string(doc), formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	return err
}

// GetProject returns nil, nil when the project does not exist.
func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (*timeline.Project, error) {
	var p timeline.Project
	var doc, createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, document, created_at, updated_at FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Title, &doc, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(doc), &p.State); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", id, err)
	}
	if p.AudioTracks == nil {
		p.AudioTracks = []timeline.AudioClip{}
	}
	p.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	p.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &p, nil
}

// ListProjects returns projects most recently edited first.
func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, document, created_at, updated_at FROM projects ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var doc, createdAt, updatedAt string
		if err := rows.Scan(&s.ID, &s.Title, &doc, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		var st timeline.State
		if err := json.Unmarshal([]byte(doc), &st); err == nil {
			s.Segments = len(st.Segments)
			s.Duration = st.TotalDuration()
		}
		s.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		s.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteProject(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
