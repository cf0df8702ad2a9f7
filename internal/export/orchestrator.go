// Package export runs render jobs for projects through the export state
// machine and keeps their records, outputs and subscribers in step.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storyreel/storyreel-agent/internal/render"
	"github.com/storyreel/storyreel-agent/internal/timeline"
)

// Renderer writes a project snapshot to outPath.
type Renderer interface {
	Render(ctx context.Context, p timeline.Project, outPath string, progress render.ProgressFunc) error
}

// Publisher copies a finished export somewhere shareable.
type Publisher interface {
	Publish(ctx context.Context, localPath, name, contentType string) (string, error)
}

type Options struct {
	OutputDir string
	Publisher Publisher
	Logger    *slog.Logger
}

// Orchestrator owns at most one rendering export per project.
type Orchestrator struct {
	renderer  Renderer
	repo      Repository
	publisher Publisher
	outDir    string
	logger    *slog.Logger

	mu   sync.Mutex
	jobs map[string]*job // by project id
	subs map[chan Event]struct{}
	wg   sync.WaitGroup
}

type job struct {
	export    Export
	cancel    context.CancelFunc
	done      chan struct{}
	cancelled bool
	persisted float64
}

func NewOrchestrator(renderer Renderer, repo Repository, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{
		renderer:  renderer,
		repo:      repo,
		publisher: opts.Publisher,
		outDir:    opts.OutputDir,
		logger:    opts.Logger,
		jobs:      make(map[string]*job),
		subs:      make(map[chan Event]struct{}),
	}
}

// Start snapshots the project and begins rendering it. Edits made to the
// project afterwards do not reach this export.
func (o *Orchestrator) Start(ctx context.Context, p timeline.Project) (Export, error) {
	snapshot := p.Clone()
	now := time.Now().UTC()
	e := Export{
		ID:        uuid.NewString(),
		ProjectID: p.ID,
		Status:    StatusRendering,
		Message:   "Starting export",
		CreatedAt: now,
		UpdatedAt: now,
	}

	o.mu.Lock()
	prev := o.jobs[p.ID]
	if prev != nil && prev.export.Status == StatusRendering {
		o.mu.Unlock()
		return Export{}, ErrExportInProgress
	}
	runCtx, cancel := context.WithCancel(context.Background())
	j := &job{export: e, cancel: cancel, done: make(chan struct{})}
	o.jobs[p.ID] = j
	o.mu.Unlock()

	if err := o.repo.CreateExport(ctx, &e); err != nil {
		cancel()
		o.mu.Lock()
		if prev != nil {
			o.jobs[p.ID] = prev
		} else {
			delete(o.jobs, p.ID)
		}
		o.mu.Unlock()
		return Export{}, fmt.Errorf("record export: %w", err)
	}

	o.logger.Info("export started", "export_id", e.ID, "project_id", p.ID, "segments", len(snapshot.Segments))
	o.mu.Lock()
	o.broadcast(EventStatus, j.export)
	o.mu.Unlock()

	o.wg.Add(1)
	go o.run(runCtx, j, snapshot)
	return e, nil
}

func (o *Orchestrator) run(ctx context.Context, j *job, snapshot timeline.Project) {
	defer o.wg.Done()
	defer close(j.done)
	defer j.cancel()

	id := j.export.ID
	tmp := filepath.Join(o.outDir, id+".part.mp4")
	log := o.logger.With("export_id", id, "project_id", snapshot.ID)

	defer func() {
		if r := recover(); r != nil {
			os.Remove(tmp)
			log.Error("export worker panicked", "panic", r, "stack", string(debug.Stack()))
			o.fail(j, fmt.Errorf("internal error: %v", r))
		}
	}()

	if err := os.MkdirAll(o.outDir, 0755); err != nil {
		o.fail(j, fmt.Errorf("create exports dir: %w", err))
		return
	}

	start := time.Now()
	err := o.renderer.Render(ctx, snapshot, tmp, func(fraction float64, message string) {
		o.progress(j, fraction, message)
	})
	if err != nil {
		os.Remove(tmp)
		if ctx.Err() != nil {
			log.Info("export cancelled")
			o.settle(j, func(e *Export) {
				e.Status = StatusIdle
				e.Message = "Export cancelled"
			})
			return
		}
		log.Warn("export failed", "error", err)
		o.fail(j, err)
		return
	}

	final := filepath.Join(o.outDir, id+".mp4")
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		o.fail(j, fmt.Errorf("finalize output: %w", err))
		return
	}

	filename := SuggestedFilename(snapshot.Title)
	var published string
	var publishErr error
	if o.publisher != nil {
		published, publishErr = o.publisher.Publish(ctx, final, id+"/"+filename, "video/mp4")
		if publishErr != nil {
			log.Warn("export publish failed", "error", publishErr)
		}
	}

	kept := o.settle(j, func(e *Export) {
		now := time.Now().UTC()
		e.Status = StatusComplete
		e.Progress = 1
		e.Message = "Export complete"
		if publishErr != nil {
			e.Message = "Export complete (publish failed)"
		}
		e.OutputPath = final
		e.Filename = filename
		e.PublishedURL = published
		e.CompletedAt = &now
	})
	if !kept {
		os.Remove(final)
		return
	}
	log.Info("export complete", "duration_ms", time.Since(start).Milliseconds())
}

func (o *Orchestrator) fail(j *job, err error) {
	o.settle(j, func(e *Export) {
		e.Status = StatusError
		e.Message = "Export failed"
		e.Error = err.Error()
	})
}

// settle moves a rendering job to its final state. A cancel requested
// before settle wins: the job becomes idle and settle reports false.
func (o *Orchestrator) settle(j *job, apply func(e *Export)) bool {
	o.mu.Lock()
	if j.export.Status != StatusRendering {
		o.mu.Unlock()
		return false
	}
	kept := true
	if j.cancelled {
		j.export.Status = StatusIdle
		j.export.Message = "Export cancelled"
		kept = false
	} else {
		apply(&j.export)
	}
	if j.export.Status == StatusIdle {
		j.export.Progress = 0
		j.export.OutputPath = ""
	}
	j.export.UpdatedAt = time.Now().UTC()
	e := j.export
	o.broadcast(EventStatus, e)
	o.mu.Unlock()

	if err := o.repo.UpdateExport(context.Background(), &e); err != nil {
		o.logger.Warn("failed to persist export", "export_id", e.ID, "error", err)
	}
	return kept && e.Status != StatusIdle
}

// progress records monotonic progress below 1 while rendering.
func (o *Orchestrator) progress(j *job, fraction float64, message string) {
	o.mu.Lock()
	if j.export.Status != StatusRendering || j.cancelled {
		o.mu.Unlock()
		return
	}
	fraction = min(max(fraction, j.export.Progress), 0.99)
	newMessage := message != j.export.Message
	changed := newMessage || fraction != j.export.Progress
	j.export.Progress = fraction
	j.export.Message = message
	j.export.UpdatedAt = time.Now().UTC()
	e := j.export
	persist := newMessage || fraction-j.persisted >= 0.05
	if persist {
		j.persisted = fraction
	}
	if changed {
		o.broadcast(EventProgress, e)
	}
	o.mu.Unlock()

	if persist {
		if err := o.repo.UpdateExport(context.Background(), &e); err != nil {
			o.logger.Warn("failed to persist export progress", "export_id", e.ID, "error", err)
		}
	}
}

// Cancel stops the rendering export of a project and waits until its
// worker has released its resources.
func (o *Orchestrator) Cancel(ctx context.Context, projectID string) (Export, error) {
	o.mu.Lock()
	j := o.jobs[projectID]
	if j == nil || j.export.Status != StatusRendering {
		o.mu.Unlock()
		return Export{}, ErrNotRendering
	}
	j.cancelled = true
	j.cancel()
	o.mu.Unlock()

	select {
	case <-j.done:
	case <-ctx.Done():
		return Export{}, ctx.Err()
	}
	return o.Status(ctx, projectID)
}

// Status returns the project's current export state. Projects that never
// exported report idle.
func (o *Orchestrator) Status(ctx context.Context, projectID string) (Export, error) {
	o.mu.Lock()
	j := o.jobs[projectID]
	if j != nil {
		e := j.export
		o.mu.Unlock()
		return withDownload(e), nil
	}
	o.mu.Unlock()

	e, err := o.repo.LatestExport(ctx, projectID)
	if err != nil {
		return Export{}, err
	}
	if e == nil {
		return Export{ProjectID: projectID, Status: StatusIdle}, nil
	}
	return withDownload(*e), nil
}

// Get returns an export by id.
func (o *Orchestrator) Get(ctx context.Context, id string) (Export, error) {
	o.mu.Lock()
	for _, j := range o.jobs {
		if j.export.ID == id {
			e := j.export
			o.mu.Unlock()
			return withDownload(e), nil
		}
	}
	o.mu.Unlock()

	e, err := o.repo.GetExport(ctx, id)
	if err != nil {
		return Export{}, err
	}
	if e == nil {
		return Export{}, ErrNotFound
	}
	return withDownload(*e), nil
}

// Output returns the file of a completed export and its download name.
func (o *Orchestrator) Output(ctx context.Context, id string) (string, string, error) {
	e, err := o.Get(ctx, id)
	if err != nil {
		return "", "", err
	}
	if e.Status != StatusComplete || e.OutputPath == "" {
		return "", "", ErrNoOutput
	}
	if _, err := os.Stat(e.OutputPath); err != nil {
		return "", "", ErrNoOutput
	}
	return e.OutputPath, e.Filename, nil
}

// Active lists exports currently rendering.
func (o *Orchestrator) Active() []Export {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Export
	for _, j := range o.jobs {
		if j.export.Status == StatusRendering {
			out = append(out, j.export)
		}
	}
	return out
}

// Subscribe returns a channel of export events and a function to stop
// receiving them. Slow subscribers miss events rather than block renders.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	o.mu.Lock()
	o.subs[ch] = struct{}{}
	o.mu.Unlock()

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if _, ok := o.subs[ch]; ok {
			delete(o.subs, ch)
			close(ch)
		}
	}
}

// broadcast must be called with o.mu held.
func (o *Orchestrator) broadcast(kind string, e Export) {
	ev := Event{Type: kind, Export: withDownload(e)}
	for ch := range o.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Purge deletes output files of exports completed longer ago than
// retention. It returns how many outputs were removed.
func (o *Orchestrator) Purge(ctx context.Context, retention time.Duration) (int, error) {
	expired, err := o.repo.ListExpiredExports(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range expired {
		if err := os.Remove(e.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			o.logger.Warn("failed to remove expired export", "export_id", e.ID, "error", err)
			continue
		}
		e.OutputPath = ""
		e.Message = "Output expired"
		e.UpdatedAt = time.Now().UTC()
		if err := o.repo.UpdateExport(ctx, e); err != nil {
			return n, err
		}

		o.mu.Lock()
		if j := o.jobs[e.ProjectID]; j != nil && j.export.ID == e.ID {
			j.export.OutputPath = ""
			j.export.Message = e.Message
		}
		o.mu.Unlock()
		n++
	}
	return n, nil
}

// Shutdown cancels every rendering export and waits for the workers.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	for _, j := range o.jobs {
		if j.export.Status == StatusRendering {
			j.cancelled = true
			j.cancel()
		}
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func withDownload(e Export) Export {
	if e.Status == StatusComplete && e.OutputPath != "" {
		e.DownloadURL = "/api/exports/" + e.ID + "/download"
	}
	return e
}
