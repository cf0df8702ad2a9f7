package timeline

import (
	"errors"
	"sync"
	"testing"
)

func newTestEditor(durations ...float64) *Editor {
	s := testState(durations...)
	return NewEditor(NewProject("Test Story", s.Segments...), 0)
}

func TestEditor_UndoRedo(t *testing.T) {
	e := newTestEditor(5)
	id := e.Snapshot().Segments[0].ID

	if err := e.UpdateDuration(id, 8); err != nil {
		t.Fatalf("UpdateDuration() error = %v", err)
	}
	if err := e.UpdateDuration(id, 9); err != nil {
		t.Fatalf("UpdateDuration() error = %v", err)
	}

	if err := e.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got := e.Snapshot().Segments[0].Duration; got != 8 {
		t.Errorf("after undo duration = %v, want 8", got)
	}
	if err := e.Redo(); err != nil {
		t.Fatalf("Redo() error = %v", err)
	}
	if got := e.Snapshot().Segments[0].Duration; got != 9 {
		t.Errorf("after redo duration = %v, want 9", got)
	}

	e.Undo()
	e.UpdateDuration(id, 2)
	if e.CanRedo() {
		t.Error("a new mutation should clear the redo stack")
	}
}

func TestEditor_EmptyHistory(t *testing.T) {
	e := newTestEditor(5)
	if err := e.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("Undo() err = %v, want ErrNothingToUndo", err)
	}
	if err := e.Redo(); !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("Redo() err = %v, want ErrNothingToRedo", err)
	}
}

func TestEditor_FailedOpLeavesHistory(t *testing.T) {
	e := newTestEditor(5)
	id := e.Snapshot().Segments[0].ID

	if _, err := e.DeleteSegment(id); !errors.Is(err, ErrValidation) {
		t.Fatalf("DeleteSegment() err = %v, want ErrValidation", err)
	}
	if e.CanUndo() {
		t.Error("rejected operation should not be recorded")
	}
}

func TestEditor_SnapshotIsDetached(t *testing.T) {
	e := newTestEditor(5)
	snap := e.Snapshot()
	snap.Segments[0].Duration = 99
	snap.Segments[0].Media[0].URL = "mutated"

	again := e.Snapshot()
	if again.Segments[0].Duration != 5 || again.Segments[0].Media[0].URL == "mutated" {
		t.Error("mutating a snapshot leaked into the editor")
	}
}

func TestEditor_SelectionFollowsSplitAndDelete(t *testing.T) {
	e := newTestEditor(4, 4)
	first := e.Snapshot().Segments[0].ID

	newID, err := e.SplitSegment(first, 2)
	if err != nil {
		t.Fatalf("SplitSegment() error = %v", err)
	}
	if e.Selected() != newID {
		t.Errorf("selected = %s, want split half %s", e.Selected(), newID)
	}

	sel, err := e.DeleteSegment(newID)
	if err != nil {
		t.Fatalf("DeleteSegment() error = %v", err)
	}
	if e.Selected() != sel {
		t.Errorf("selected = %s, want %s", e.Selected(), sel)
	}
}

func TestEditor_SelectionValidUnderConcurrentEdits(t *testing.T) {
	e := newTestEditor(8, 8, 8, 8)
	selectionValid := func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.history.present.indexOf(e.selected) >= 0
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				segs := e.Snapshot().Segments
				if w%2 == 0 {
					seg := segs[len(segs)/2]
					newID, err := e.SplitSegment(seg.ID, seg.Duration/2)
					if err == nil && newID == "" {
						t.Error("split returned no id")
					}
				} else if len(segs) > 1 {
					e.DeleteSegment(segs[len(segs)-1].ID)
				}
				if !selectionValid() {
					t.Error("selection points at a segment that no longer exists")
					return
				}
			}
		}(w)
	}
	wg.Wait()
}

func TestEditor_OnChange(t *testing.T) {
	e := newTestEditor(5)
	var calls int
	e.OnChange(func(p Project) { calls++ })

	id := e.Snapshot().Segments[0].ID
	e.UpdateVolume(id, 0.3)
	e.UpdateVolume(id, 2)
	e.Undo()

	if calls != 3 {
		t.Errorf("OnChange called %d times, want 3", calls)
	}
	if got := e.Snapshot().Segments[0].AudioVolume; got != 0.3 {
		t.Errorf("volume = %v, want 0.3", got)
	}
}

func TestHistory_BoundedDepth(t *testing.T) {
	h := NewHistory(testState(1), 3)
	for i := 0; i < 10; i++ {
		h.Push(testState(float64(i + 2)))
	}
	undos := 0
	for h.CanUndo() {
		h.Undo()
		undos++
	}
	if undos != 3 {
		t.Errorf("undo steps = %d, want 3", undos)
	}
}
