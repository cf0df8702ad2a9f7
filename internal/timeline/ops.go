package timeline

import (
	"fmt"
	"math"
	"strings"
)

type Direction int

const (
	Left  Direction = -1
	Right Direction = 1
)

// UpdateDuration sets a segment duration, clamped to MinSegmentDuration. No
// other segment moves.
func UpdateDuration(s State, id string, duration float64) (State, error) {
	i := s.indexOf(id)
	if i < 0 {
		return s, ErrSegmentNotFound
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) {
		return s, invalid("duration", "duration must be a finite number")
	}
	next := s.Clone()
	next.Segments[i].Duration = math.Max(MinSegmentDuration, duration)
	return next, nil
}

// UpdateAudio attaches a narration track. A measured duration shorter than
// the segment shrinks it; a longer one never grows it. measured <= 0 means
// unknown.
func UpdateAudio(s State, id, url string, measured float64) (State, error) {
	i := s.indexOf(id)
	if i < 0 {
		return s, ErrSegmentNotFound
	}
	next := s.Clone()
	seg := &next.Segments[i]
	seg.AudioURL = url
	if measured > 0 && measured < seg.Duration {
		seg.Duration = measured
	}
	return next, nil
}

// SetWordTimings replaces a segment's caption timings.
func SetWordTimings(s State, id string, timings []WordTiming) (State, error) {
	i := s.indexOf(id)
	if i < 0 {
		return s, ErrSegmentNotFound
	}
	if err := ValidateTimings(timings); err != nil {
		return s, err
	}
	next := s.Clone()
	next.Segments[i].WordTimings = append([]WordTiming(nil), timings...)
	return next, nil
}

// UpdateNarration edits the text of one segment. Changed text makes the
// existing voice track and timings stale.
func UpdateNarration(s State, id, text string) (State, error) {
	i := s.indexOf(id)
	if i < 0 {
		return s, ErrSegmentNotFound
	}
	next := s.Clone()
	seg := &next.Segments[i]
	if seg.NarrationText != text {
		seg.NarrationText = text
		seg.AudioURL = ""
		seg.WordTimings = nil
	}
	return next, nil
}

func UpdateTransition(s State, id string, t Transition) (State, error) {
	i := s.indexOf(id)
	if i < 0 {
		return s, ErrSegmentNotFound
	}
	if err := validateTransition(t); err != nil {
		return s, err
	}
	next := s.Clone()
	next.Segments[i].Transition = t
	return next, nil
}

func UpdateStyle(s State, id string, style TextOverlayStyle) (State, error) {
	i := s.indexOf(id)
	if i < 0 {
		return s, ErrSegmentNotFound
	}
	if err := ValidateStyle(style); err != nil {
		return s, err
	}
	next := s.Clone()
	next.Segments[i].TextOverlayStyle = style
	return next, nil
}

func UpdateVolume(s State, id string, volume float64) (State, error) {
	i := s.indexOf(id)
	if i < 0 {
		return s, ErrSegmentNotFound
	}
	next := s.Clone()
	next.Segments[i].AudioVolume = clamp01(volume)
	return next, nil
}

// ReorderClips applies a permutation of the segment's clip ids.
func ReorderClips(s State, segmentID string, order []string) (State, error) {
	i := s.indexOf(segmentID)
	if i < 0 {
		return s, ErrSegmentNotFound
	}
	media := s.Segments[i].Media
	byID := make(map[string]MediaClip, len(media))
	for _, c := range media {
		byID[c.ID] = c
	}
	if len(order) != len(media) {
		return s, invalid("media", "clip order must list every clip exactly once")
	}
	reordered := make([]MediaClip, 0, len(order))
	for _, id := range order {
		c, ok := byID[id]
		if !ok {
			return s, invalid("media", "clip order must list every clip exactly once")
		}
		delete(byID, id)
		reordered = append(reordered, c)
	}
	next := s.Clone()
	next.Segments[i].Media = reordered
	return next, nil
}

// ReorderSegments applies a full permutation of segment ids. Transitions stay
// with their owning segment.
func ReorderSegments(s State, order []string) (State, error) {
	if len(order) != len(s.Segments) {
		return s, invalid("segments", "segment order must list every segment exactly once")
	}
	byID := make(map[string]Segment, len(s.Segments))
	for _, seg := range s.Segments {
		byID[seg.ID] = seg
	}
	next := State{AudioTracks: append([]AudioClip{}, s.AudioTracks...)}
	for _, id := range order {
		seg, ok := byID[id]
		if !ok {
			return s, invalid("segments", "segment order must list every segment exactly once")
		}
		delete(byID, id)
		next.Segments = append(next.Segments, seg.Clone())
	}
	return next, nil
}

// Nudge swaps a segment with its neighbour; a no-op at either boundary.
func Nudge(s State, id string, dir Direction) (State, error) {
	i := s.indexOf(id)
	if i < 0 {
		return s, ErrSegmentNotFound
	}
	j := i + int(dir)
	if dir != Left && dir != Right {
		return s, invalid("direction", "direction must be left or right")
	}
	next := s.Clone()
	if j < 0 || j >= len(s.Segments) {
		return next, nil
	}
	next.Segments[i], next.Segments[j] = next.Segments[j], next.Segments[i]
	return next, nil
}

// DeleteSegment removes a segment and reports the neighbour to select. The
// last remaining segment cannot be deleted.
func DeleteSegment(s State, id string) (State, string, error) {
	i := s.indexOf(id)
	if i < 0 {
		return s, "", ErrSegmentNotFound
	}
	if len(s.Segments) == 1 {
		return s, "", invalid("segments", "cannot delete the only remaining segment")
	}
	next := s.Clone()
	next.Segments = append(next.Segments[:i], next.Segments[i+1:]...)
	sel := i
	if sel >= len(next.Segments) {
		sel = len(next.Segments) - 1
	}
	return next, next.Segments[sel].ID, nil
}

// AddSegment appends a segment, minting ids where missing.
func AddSegment(s State, seg Segment) (State, error) {
	if len(seg.Media) == 0 {
		return s, invalid("media", "a segment needs at least one media clip")
	}
	seg = seg.Clone()
	if seg.ID == "" || s.indexOf(seg.ID) >= 0 {
		seg.ID = NewID()
	}
	for i := range seg.Media {
		if seg.Media[i].ID == "" {
			seg.Media[i].ID = NewID()
		}
	}
	seg.Duration = math.Max(MinSegmentDuration, seg.Duration)
	if seg.Transition == "" {
		seg.Transition = TransitionFade
	}
	if seg.TextOverlayStyle == (TextOverlayStyle{}) {
		seg.TextOverlayStyle = DefaultStyle()
	}
	seg.AudioVolume = clamp01(seg.AudioVolume)
	if err := (Project{State: State{Segments: []Segment{seg}}}).Validate(); err != nil {
		return s, err
	}
	next := s.Clone()
	next.Segments = append(next.Segments, seg)
	return next, nil
}

func AddClip(s State, segmentID string, clip MediaClip) (State, error) {
	i := s.indexOf(segmentID)
	if i < 0 {
		return s, ErrSegmentNotFound
	}
	if clip.Type != MediaImage && clip.Type != MediaVideo {
		return s, invalid("media", "media clip type must be image or video")
	}
	if strings.TrimSpace(clip.URL) == "" {
		return s, invalid("media", "media clip url is required")
	}
	clip.ID = NewID()
	next := s.Clone()
	next.Segments[i].Media = append(next.Segments[i].Media, clip)
	return next, nil
}

// RemoveClip drops a clip; the last clip of a segment cannot be removed.
func RemoveClip(s State, segmentID, clipID string) (State, error) {
	i := s.indexOf(segmentID)
	if i < 0 {
		return s, ErrSegmentNotFound
	}
	media := s.Segments[i].Media
	k := -1
	for j, c := range media {
		if c.ID == clipID {
			k = j
		}
	}
	if k < 0 {
		return s, ErrClipNotFound
	}
	if len(media) == 1 {
		return s, invalid("media", "cannot remove the last media clip of a segment")
	}
	next := s.Clone()
	m := next.Segments[i].Media
	next.Segments[i].Media = append(m[:k], m[k+1:]...)
	return next, nil
}

func AddAudioTrack(s State, a AudioClip) (State, error) {
	if a.ID == "" || s.audioIndexOf(a.ID) >= 0 {
		a.ID = NewID()
	}
	a.StartTime = math.Max(0, a.StartTime)
	a.Volume = clamp01(a.Volume)
	if err := validateAudioClip(a); err != nil {
		return s, err
	}
	next := s.Clone()
	next.AudioTracks = append(next.AudioTracks, a)
	return next, nil
}

// MoveAudioTrack repositions a track on the absolute timeline.
func MoveAudioTrack(s State, id string, startTime float64) (State, error) {
	i := s.audioIndexOf(id)
	if i < 0 {
		return s, ErrAudioTrackNotFound
	}
	if math.IsNaN(startTime) {
		return s, invalid("startTime", "start time must be a number")
	}
	next := s.Clone()
	next.AudioTracks[i].StartTime = math.Max(0, startTime)
	return next, nil
}

func UpdateAudioTrackVolume(s State, id string, volume float64) (State, error) {
	i := s.audioIndexOf(id)
	if i < 0 {
		return s, ErrAudioTrackNotFound
	}
	next := s.Clone()
	next.AudioTracks[i].Volume = clamp01(volume)
	return next, nil
}

func RemoveAudioTrack(s State, id string) (State, error) {
	i := s.audioIndexOf(id)
	if i < 0 {
		return s, ErrAudioTrackNotFound
	}
	next := s.Clone()
	next.AudioTracks = append(next.AudioTracks[:i], next.AudioTracks[i+1:]...)
	return next, nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultAudioVolume
	}
	return math.Min(1, math.Max(0, v))
}

// ParseDirection accepts "left"/"right".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	}
	return 0, invalid("direction", fmt.Sprintf("unknown direction %q", s))
}
