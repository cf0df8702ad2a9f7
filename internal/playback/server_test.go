package playback

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "story.mp4")
	if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func TestServer_ServeFile(t *testing.T) {
	path := writeTestFile(t)
	srv := NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)))

	tests := []struct {
		name       string
		rangeHdr   string
		wantStatus int
		wantBody   string
	}{
		{"whole file", "", http.StatusOK, "0123456789"},
		{"partial", "bytes=2-4", http.StatusPartialContent, "234"},
		{"malformed range ignored", "lines=1-2", http.StatusOK, "0123456789"},
		{"unsatisfiable", "bytes=20-", http.StatusRequestedRangeNotSatisfiable, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/download", nil)
			if tt.rangeHdr != "" {
				req.Header.Set("Range", tt.rangeHdr)
			}
			rec := httptest.NewRecorder()
			if err := srv.ServeFile(rec, req, path, "My_Story.mp4"); err != nil {
				t.Fatalf("ServeFile() error = %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestServer_ServeFile_Headers(t *testing.T) {
	path := writeTestFile(t)
	srv := NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	srv.ServeFile(rec, httptest.NewRequest(http.MethodGet, "/download", nil), path, "My_Story.mp4")

	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename=My_Story.mp4` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestServer_ServeFile_Missing(t *testing.T) {
	srv := NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	err := srv.ServeFile(rec, httptest.NewRequest(http.MethodGet, "/", nil), filepath.Join(t.TempDir(), "nope.mp4"), "")
	if err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
