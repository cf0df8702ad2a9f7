package playback

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

// FileServer streams rendered outputs and sidecars to the browser.
type FileServer interface {
	ServeFile(w http.ResponseWriter, r *http.Request, filePath, downloadName string) error
}

var contentTypes = map[string]string{
	".mp4": "video/mp4",
	".srt": "application/x-subrip",
	".ass": "text/x-ssa",
	".edl": "text/plain; charset=utf-8",
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// ServeFile writes the file honouring a single byte range. A non-empty
// downloadName is sent as an attachment filename.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath, downloadName string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	size := stat.Size()

	ext := filepath.Ext(filePath)
	contentType := contentTypes[ext]
	if contentType == "" {
		contentType = mime.TypeByExtension(ext)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType)
	if downloadName != "" {
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": downloadName}))
	}

	rng, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrInvalidRange):
		// Malformed ranges are ignored and the whole file is sent.
		rng = nil
	case err != nil:
		return err
	}

	var body io.Reader = file
	if rng == nil {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
	} else {
		if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek: %w", err)
		}
		h.Set("Content-Length", strconv.FormatInt(rng.ContentLength(), 10))
		h.Set("Content-Range", rng.ContentRange(size))
		w.WriteHeader(http.StatusPartialContent)
		body = io.LimitReader(file, rng.ContentLength())
	}

	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := io.Copy(w, body); err != nil {
		s.logger.Debug("download interrupted", "path", filepath.Base(filePath), "error", err)
	}
	return nil
}
