package timeline

import (
	"strings"
	"sync"
	"time"
)

// Editor is the single-writer editing session for one project. Mutations go
// through named operations that record history; readers get deep copies.
type Editor struct {
	mu        sync.RWMutex
	id        string
	title     string
	createdAt time.Time
	updatedAt time.Time
	history   *History
	selected  string
	onChange  func(Project)
}

func NewEditor(p Project, depth int) *Editor {
	e := &Editor{
		id:        p.ID,
		title:     p.Title,
		createdAt: p.CreatedAt,
		updatedAt: p.UpdatedAt,
		history:   NewHistory(p.State, depth),
	}
	if len(p.Segments) > 0 {
		e.selected = p.Segments[0].ID
	}
	return e
}

// OnChange registers a callback invoked, outside the lock, after every
// successful mutation.
func (e *Editor) OnChange(fn func(Project)) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

func (e *Editor) ID() string { return e.id }

// Snapshot returns a deep copy of the current project.
func (e *Editor) Snapshot() Project {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

func (e *Editor) snapshotLocked() Project {
	return Project{
		ID:        e.id,
		Title:     e.title,
		State:     e.history.Present(),
		CreatedAt: e.createdAt,
		UpdatedAt: e.updatedAt,
	}
}

func (e *Editor) Selected() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.selected
}

func (e *Editor) Select(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.history.present.indexOf(id) < 0 {
		return ErrSegmentNotFound
	}
	e.selected = id
	return nil
}

func (e *Editor) CanUndo() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.history.CanUndo()
}

func (e *Editor) CanRedo() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.history.CanRedo()
}

func (e *Editor) SetTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return invalid("title", "title is required")
	}
	e.mu.Lock()
	e.title = title
	e.updatedAt = time.Now().UTC()
	p, fn := e.snapshotLocked(), e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn(p)
	}
	return nil
}

// apply runs a pure operation against the present state and records the
// result. A failing operation leaves history untouched.
func (e *Editor) apply(op func(State) (State, error)) error {
	return e.applySelect(func(s State) (State, string, error) {
		next, err := op(s)
		return next, "", err
	})
}

// applySelect is apply for operations that also move the selection. A
// non-empty id is selected under the same lock that commits the state.
func (e *Editor) applySelect(op func(State) (State, string, error)) error {
	e.mu.Lock()
	next, sel, err := op(e.history.present)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.history.Push(next)
	if sel != "" {
		e.selected = sel
	}
	e.touchLocked()
	p, fn := e.snapshotLocked(), e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn(p)
	}
	return nil
}

func (e *Editor) touchLocked() {
	e.updatedAt = time.Now().UTC()
	if e.history.present.indexOf(e.selected) < 0 && len(e.history.present.Segments) > 0 {
		e.selected = e.history.present.Segments[0].ID
	}
}

func (e *Editor) UpdateDuration(id string, d float64) error {
	return e.apply(func(s State) (State, error) { return UpdateDuration(s, id, d) })
}

func (e *Editor) UpdateAudio(id, url string, measured float64) error {
	return e.apply(func(s State) (State, error) { return UpdateAudio(s, id, url, measured) })
}

func (e *Editor) SetWordTimings(id string, timings []WordTiming) error {
	return e.apply(func(s State) (State, error) { return SetWordTimings(s, id, timings) })
}

func (e *Editor) UpdateNarration(id, text string) error {
	return e.apply(func(s State) (State, error) { return UpdateNarration(s, id, text) })
}

func (e *Editor) UpdateTransition(id string, t Transition) error {
	return e.apply(func(s State) (State, error) { return UpdateTransition(s, id, t) })
}

func (e *Editor) UpdateStyle(id string, st TextOverlayStyle) error {
	return e.apply(func(s State) (State, error) { return UpdateStyle(s, id, st) })
}

func (e *Editor) UpdateVolume(id string, v float64) error {
	return e.apply(func(s State) (State, error) { return UpdateVolume(s, id, v) })
}

func (e *Editor) ReorderClips(id string, order []string) error {
	return e.apply(func(s State) (State, error) { return ReorderClips(s, id, order) })
}

func (e *Editor) ReorderSegments(order []string) error {
	return e.apply(func(s State) (State, error) { return ReorderSegments(s, order) })
}

func (e *Editor) Nudge(id string, dir Direction) error {
	return e.apply(func(s State) (State, error) { return Nudge(s, id, dir) })
}

// SplitSegment splits a segment and selects the new second half.
func (e *Editor) SplitSegment(id string, at float64) (string, error) {
	var newID string
	err := e.applySelect(func(s State) (State, string, error) {
		next, created, err := SplitSegment(s, id, at)
		newID = created
		return next, created, err
	})
	if err != nil {
		return "", err
	}
	return newID, nil
}

// DeleteSegment removes a segment and selects the neighbour that took its
// place, or the previous one when the last segment was removed.
func (e *Editor) DeleteSegment(id string) (string, error) {
	var sel string
	err := e.applySelect(func(s State) (State, string, error) {
		next, neighbour, err := DeleteSegment(s, id)
		sel = neighbour
		return next, neighbour, err
	})
	if err != nil {
		return "", err
	}
	return sel, nil
}

func (e *Editor) AddSegment(seg Segment) (string, error) {
	var id string
	err := e.apply(func(s State) (State, error) {
		next, err := AddSegment(s, seg)
		if err == nil {
			id = next.Segments[len(next.Segments)-1].ID
		}
		return next, err
	})
	return id, err
}

func (e *Editor) AddClip(segmentID string, clip MediaClip) error {
	return e.apply(func(s State) (State, error) { return AddClip(s, segmentID, clip) })
}

func (e *Editor) RemoveClip(segmentID, clipID string) error {
	return e.apply(func(s State) (State, error) { return RemoveClip(s, segmentID, clipID) })
}

func (e *Editor) ApplyScript(text string) error {
	return e.apply(func(s State) (State, error) { return ApplyScript(s, text) })
}

func (e *Editor) AddAudioTrack(a AudioClip) (string, error) {
	var id string
	err := e.apply(func(s State) (State, error) {
		next, err := AddAudioTrack(s, a)
		if err == nil {
			id = next.AudioTracks[len(next.AudioTracks)-1].ID
		}
		return next, err
	})
	return id, err
}

func (e *Editor) MoveAudioTrack(id string, start float64) error {
	return e.apply(func(s State) (State, error) { return MoveAudioTrack(s, id, start) })
}

func (e *Editor) UpdateAudioTrackVolume(id string, v float64) error {
	return e.apply(func(s State) (State, error) { return UpdateAudioTrackVolume(s, id, v) })
}

func (e *Editor) RemoveAudioTrack(id string) error {
	return e.apply(func(s State) (State, error) { return RemoveAudioTrack(s, id) })
}

func (e *Editor) Undo() error {
	return e.step(e.history.Undo)
}

func (e *Editor) Redo() error {
	return e.step(e.history.Redo)
}

func (e *Editor) step(move func() (State, error)) error {
	e.mu.Lock()
	if _, err := move(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.touchLocked()
	p, fn := e.snapshotLocked(), e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn(p)
	}
	return nil
}
