package timeline

// DefaultHistoryDepth bounds how many undo steps are retained.
const DefaultHistoryDepth = 100

// History is a snapshot undo/redo stack. Every recorded state is a deep copy.
type History struct {
	past    []State
	present State
	future  []State
	depth   int
}

func NewHistory(initial State, depth int) *History {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	return &History{present: initial.Clone(), depth: depth}
}

func (h *History) Present() State {
	return h.present.Clone()
}

// Push records next as the present state and clears the redo stack.
func (h *History) Push(next State) {
	h.past = append(h.past, h.present)
	if len(h.past) > h.depth {
		h.past = h.past[len(h.past)-h.depth:]
	}
	h.present = next.Clone()
	h.future = nil
}

func (h *History) Undo() (State, error) {
	if len(h.past) == 0 {
		return h.Present(), ErrNothingToUndo
	}
	prev := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append(h.future, h.present)
	h.present = prev
	return h.Present(), nil
}

func (h *History) Redo() (State, error) {
	if len(h.future) == 0 {
		return h.Present(), ErrNothingToRedo
	}
	next := h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]
	h.past = append(h.past, h.present)
	h.present = next
	return h.Present(), nil
}

func (h *History) CanUndo() bool { return len(h.past) > 0 }
func (h *History) CanRedo() bool { return len(h.future) > 0 }
