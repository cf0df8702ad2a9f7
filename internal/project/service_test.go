package project

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/storyreel/storyreel-agent/internal/db"
	"github.com/storyreel/storyreel-agent/internal/timeline"
)

func newTestService(t *testing.T) (*Service, *SQLiteRepository) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	repo := NewRepository(database.Conn())
	return NewService(repo, 10, nil), repo
}

func TestService_CreateFromScript(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	ed, err := svc.Create(ctx, CreateRequest{Title: " My Story ", Script: "First.\n\nSecond.\n\n\nThird."})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	p := ed.Snapshot()
	if p.Title != "My Story" {
		t.Errorf("title = %q", p.Title)
	}
	if len(p.Segments) != 3 || p.Segments[2].NarrationText != "Third." {
		t.Fatalf("unexpected segments: %+v", p.Segments)
	}

	stored, err := repo.GetProject(ctx, p.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetProject() = %v, %v", stored, err)
	}
	if len(stored.Segments) != 3 {
		t.Errorf("stored segments = %d", len(stored.Segments))
	}
}

func TestService_CreateDefaults(t *testing.T) {
	svc, _ := newTestService(t)

	ed, err := svc.Create(context.Background(), CreateRequest{Title: "Empty"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	p := ed.Snapshot()
	if len(p.Segments) != 1 || p.Segments[0].Duration != timeline.DefaultSegmentDuration {
		t.Errorf("expected one default segment, got %+v", p.Segments)
	}
	if p.AudioTracks == nil {
		t.Error("audio tracks should be an empty list, not nil")
	}
}

func TestService_CreateAssignsIDs(t *testing.T) {
	svc, _ := newTestService(t)

	seg := timeline.Segment{
		NarrationText: "hi",
		Duration:      4,
		Media:         []timeline.MediaClip{{URL: "https://cdn.example.com/a.jpg", Type: timeline.MediaImage}},
		AudioVolume:   1,
		Transition:    timeline.TransitionFade,
	}
	ed, err := svc.Create(context.Background(), CreateRequest{
		Title:       "Imported",
		Segments:    []timeline.Segment{seg},
		AudioTracks: []timeline.AudioClip{{URL: "https://cdn.example.com/m.mp3", Type: timeline.AudioMusic, Duration: 4, Volume: 0.5}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	p := ed.Snapshot()
	if p.Segments[0].ID == "" || p.Segments[0].Media[0].ID == "" || p.AudioTracks[0].ID == "" {
		t.Errorf("ids not assigned: %+v", p)
	}
}

func TestService_CreateRequiresTitle(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateRequest{Title: "  "})
	if !errors.Is(err, timeline.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_PersistsMutations(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	ed, err := svc.Create(ctx, CreateRequest{Title: "Story", Script: "One.\n\nTwo."})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	id := ed.Snapshot().Segments[0].ID

	if err := ed.UpdateNarration(id, "Changed."); err != nil {
		t.Fatalf("UpdateNarration() error = %v", err)
	}
	if err := ed.SetTitle("Renamed"); err != nil {
		t.Fatalf("SetTitle() error = %v", err)
	}

	stored, _ := repo.GetProject(ctx, ed.ID())
	if stored.Title != "Renamed" || stored.Segments[0].NarrationText != "Changed." {
		t.Errorf("mutation not persisted: %+v", stored)
	}

	if err := ed.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	stored, _ = repo.GetProject(ctx, ed.ID())
	if stored.Segments[0].NarrationText != "One." {
		t.Errorf("undo not persisted: %q", stored.Segments[0].NarrationText)
	}
}

func TestService_OpenReusesSession(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	ed, _ := svc.Create(ctx, CreateRequest{Title: "Story"})
	again, err := svc.Open(ctx, ed.ID())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if again != ed {
		t.Error("Open should return the live editor")
	}

	// A fresh service loads from the database.
	other := NewService(repo, 10, nil)
	loaded, err := other.Open(ctx, ed.ID())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if loaded.Snapshot().Title != "Story" {
		t.Errorf("loaded title = %q", loaded.Snapshot().Title)
	}
	if other.OpenSessions() != 1 {
		t.Errorf("OpenSessions() = %d", other.OpenSessions())
	}
}

func TestService_OpenMissing(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Open(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ListAndDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, _ := svc.Create(ctx, CreateRequest{Title: "A", Script: "one\n\ntwo"})
	b, _ := svc.Create(ctx, CreateRequest{Title: "B"})
	b.SetTitle("B2")

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(list))
	}
	if list[0].Title != "B2" {
		t.Errorf("most recently edited should be first, got %q", list[0].Title)
	}
	if list[1].Segments != 2 || list[1].Duration != 2*timeline.DefaultSegmentDuration {
		t.Errorf("unexpected summary: %+v", list[1])
	}

	if err := svc.Delete(ctx, a.ID()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.Open(ctx, a.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted project still opens: %v", err)
	}
	if err := svc.Delete(ctx, a.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestRepository_Config(t *testing.T) {
	_, repo := newTestService(t)
	ctx := context.Background()

	if v, err := repo.GetConfig(ctx, "auth_token"); err != nil || v != "" {
		t.Fatalf("GetConfig() = %q, %v", v, err)
	}
	if err := repo.SetConfig(ctx, "auth_token", "abc"); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}
	if err := repo.SetConfig(ctx, "auth_token", "def"); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}
	if v, _ := repo.GetConfig(ctx, "auth_token"); v != "def" {
		t.Errorf("GetConfig() = %q, want def", v)
	}
}
