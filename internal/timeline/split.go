package timeline

import (
	"fmt"
	"math"
	"strings"
)

// SplitSegment cuts a segment at a segment-relative time. The first half
// keeps the original id and clips; the second half gets copies of the clips
// under fresh ids and is inserted right after it. Both halves drop their
// narration track. Returns the new state and the second half's id.
func SplitSegment(s State, id string, at float64) (State, string, error) {
	i := s.indexOf(id)
	if i < 0 {
		return s, "", ErrSegmentNotFound
	}
	orig := s.Segments[i]
	if math.IsNaN(at) || at < SplitEdgeGuard || at > orig.Duration-SplitEdgeGuard {
		return s, "", invalid("splitTime", fmt.Sprintf(
			"split point must be at least %.1fs from both segment edges", SplitEdgeGuard))
	}

	a := orig.Clone()
	b := orig.Clone()
	b.ID = NewID()
	for k := range b.Media {
		b.Media[k].ID = NewID()
	}
	a.Duration = at
	b.Duration = orig.Duration - at
	a.AudioURL = ""
	b.AudioURL = ""

	if len(orig.WordTimings) > 0 {
		a.WordTimings, b.WordTimings = partitionTimings(orig.WordTimings, at)
		a.NarrationText = joinWords(a.WordTimings)
		b.NarrationText = joinWords(b.WordTimings)
	} else {
		a.NarrationText, b.NarrationText = splitTextAt(orig.NarrationText, at/orig.Duration)
	}

	next := s.Clone()
	segs := make([]Segment, 0, len(next.Segments)+1)
	segs = append(segs, next.Segments[:i]...)
	segs = append(segs, a, b)
	segs = append(segs, next.Segments[i+1:]...)
	next.Segments = segs
	return next, b.ID, nil
}

// partitionTimings assigns words ending at or before the cut to the first
// half and rebases the rest onto the cut.
func partitionTimings(timings []WordTiming, at float64) (head, tail []WordTiming) {
	for _, w := range timings {
		if w.End <= at {
			head = append(head, w)
			continue
		}
		tail = append(tail, WordTiming{
			Word:  w.Word,
			Start: math.Max(0, w.Start-at),
			End:   w.End - at,
		})
	}
	return head, tail
}

func joinWords(timings []WordTiming) string {
	words := make([]string, len(timings))
	for i, w := range timings {
		words[i] = w.Word
	}
	return strings.Join(words, " ")
}

// splitTextAt splits untimed narration by word count in proportion to the cut.
func splitTextAt(text string, ratio float64) (string, string) {
	words := strings.Fields(text)
	n := int(math.Round(float64(len(words)) * ratio))
	n = max(0, min(len(words), n))
	return strings.Join(words[:n], " "), strings.Join(words[n:], " ")
}
