package export

import (
	"context"
	"database/sql"
	"time"
)

// Repository persists export records.
type Repository interface {
	CreateExport(ctx context.Context, e *Export) error
	UpdateExport(ctx context.Context, e *Export) error
	GetExport(ctx context.Context, id string) (*Export, error)
	LatestExport(ctx context.Context, projectID string) (*Export, error)
	ListExports(ctx context.Context, projectID string, limit int) ([]*Export, error)
	ListExpiredExports(ctx context.Context, before time.Time) ([]*Export, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const exportColumns = `id, project_id, status, progress, message, output_path, filename, published_url, error, created_at, updated_at, completed_at`

func (r *SQLiteRepository) CreateExport(ctx context.Context, e *Export) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exports (`+exportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ProjectID, string(e.Status), e.Progress, e.Message, e.OutputPath, e.Filename, e.PublishedURL, e.Error,
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt), nullTime(e.CompletedAt))
	return err
}

func (r *SQLiteRepository) UpdateExport(ctx context.Context, e *Export) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE exports SET status = ?, progress = ?, message = ?, output_path = ?, filename = ?, published_url = ?,
			error = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`, string(e.Status), e.Progress, e.Message, e.OutputPath, e.Filename, e.PublishedURL, e.Error,
		formatTime(e.UpdatedAt), nullTime(e.CompletedAt), e.ID)
	return err
}

// GetExport returns nil, nil when the export does not exist.
func (r *SQLiteRepository) GetExport(ctx context.Context, id string) (*Export, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+exportColumns+` FROM exports WHERE id = ?`, id)
	return scanExport(row)
}

func (r *SQLiteRepository) LatestExport(ctx context.Context, projectID string) (*Export, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+exportColumns+` FROM exports WHERE project_id = ?
		ORDER BY created_at DESC LIMIT 1
	`, projectID)
	return scanExport(row)
}

func (r *SQLiteRepository) ListExports(ctx context.Context, projectID string, limit int) ([]*Export, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+exportColumns+` FROM exports WHERE project_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExports(rows)
}

// ListExpiredExports returns completed exports that still reference an
// output file and finished before the cutoff.
func (r *SQLiteRepository) ListExpiredExports(ctx context.Context, before time.Time) ([]*Export, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+exportColumns+` FROM exports
		WHERE status = ? AND output_path != '' AND completed_at IS NOT NULL AND completed_at < ?
		ORDER BY completed_at
	`, string(StatusComplete), formatTime(before))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExports(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExport(row scanner) (*Export, error) {
	var e Export
	var status, createdAt, updatedAt string
	var completedAt sql.NullString
	err := row.Scan(&e.ID, &e.ProjectID, &status, &e.Progress, &e.Message, &e.OutputPath, &e.Filename,
		&e.PublishedURL, &e.Error, &createdAt, &updatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Status = Status(status)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completedAt.String); err == nil {
			e.CompletedAt = &t
		}
	}
	return &e, nil
}

func scanExports(rows *sql.Rows) ([]*Export, error) {
	var out []*Export
	for rows.Next() {
		e, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// timeLayout is fixed width so stored timestamps compare as strings.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
