package project

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/storyreel/storyreel-agent/internal/timeline"
)

const saveTimeout = 5 * time.Second

// CreateRequest seeds a new project. Segments win over Script; with neither
// the project starts with one empty segment.
type CreateRequest struct {
	Title       string               `json:"title"`
	Script      string               `json:"script,omitempty"`
	Segments    []timeline.Segment   `json:"segments,omitempty"`
	AudioTracks []timeline.AudioClip `json:"audioTracks,omitempty"`
}

type session struct {
	editor *timeline.Editor
	mu     sync.Mutex
	saved  time.Time
}

// Service owns the live editor of every open project and writes each
// change back to the repository.
type Service struct {
	repo   Repository
	depth  int
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func NewService(repo Repository, historyDepth int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		repo:     repo,
		depth:    historyDepth,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*timeline.Editor, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, &timeline.ValidationError{Field: "title", Message: "title is required"}
	}

	segments := req.Segments
	if len(segments) == 0 {
		for _, para := range timeline.SplitScript(req.Script) {
			segments = append(segments, timeline.NewSegment(para, timeline.DefaultSegmentDuration))
		}
	}
	if len(segments) == 0 {
		segments = []timeline.Segment{timeline.NewSegment("", timeline.DefaultSegmentDuration)}
	}

	p := timeline.NewProject(title, withIDs(segments)...)
	for _, a := range req.AudioTracks {
		if a.ID == "" {
			a.ID = timeline.NewID()
		}
		p.AudioTracks = append(p.AudioTracks, a)
	}

	if err := s.repo.SaveProject(ctx, &p); err != nil {
		return nil, err
	}
	s.logger.Info("project created", "project_id", p.ID, "segments", len(p.Segments))
	return s.register(p).editor, nil
}

// Open returns the live editor for a project, loading it on first use.
func (s *Service) Open(ctx context.Context, id string) (*timeline.Editor, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		return sess.editor, nil
	}
	s.mu.Unlock()

	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return s.register(*p).editor, nil
}

func (s *Service) List(ctx context.Context) ([]Summary, error) {
	return s.repo.ListProjects(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	s.logger.Info("project deleted", "project_id", id)
	return nil
}

// OpenSessions is the number of projects with a live editor.
func (s *Service) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) register(p timeline.Project) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A concurrent Open may have won the race.
	if sess, ok := s.sessions[p.ID]; ok {
		return sess
	}
	sess := &session{editor: timeline.NewEditor(p, s.depth), saved: p.UpdatedAt}
	sess.editor.OnChange(func(p timeline.Project) { s.persist(sess, p) })
	s.sessions[p.ID] = sess
	return sess
}

// persist writes a changed project. Change callbacks run outside the editor
// lock, so a stale snapshot arriving after a newer one is dropped.
func (s *Service) persist(sess *session, p timeline.Project) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if p.UpdatedAt.Before(sess.saved) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.repo.SaveProject(ctx, &p); err != nil {
		s.logger.Error("failed to save project", "project_id", p.ID, "error", err)
		return
	}
	sess.saved = p.UpdatedAt
}

func withIDs(segments []timeline.Segment) []timeline.Segment {
	out := make([]timeline.Segment, len(segments))
	for i, seg := range segments {
		seg = seg.Clone()
		if seg.ID == "" {
			seg.ID = timeline.NewID()
		}
		for k := range seg.Media {
			if seg.Media[k].ID == "" {
				seg.Media[k].ID = timeline.NewID()
			}
		}
		out[i] = seg
	}
	return out
}
