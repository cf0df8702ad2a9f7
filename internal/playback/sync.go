// Package playback maps a timeline cursor to the segment and clip on screen
// and serves rendered files over HTTP with byte-range support.
package playback

import (
	"math"

	"github.com/storyreel/storyreel-agent/internal/timeline"
)

// Position is what is on screen at one timeline instant.
type Position struct {
	SegmentIndex  int                `json:"segmentIndex"`
	Segment       timeline.Segment   `json:"-"`
	SegmentID     string             `json:"segmentId"`
	SegmentStart  float64            `json:"segmentStart"`
	LocalTime     float64            `json:"localTime"`
	ClipIndex     int                `json:"clipIndex"`
	Clip          timeline.MediaClip `json:"clip"`
	ClipLocalTime float64            `json:"clipLocalTime"`
}

// Resolve walks the segments accumulating elapsed time and returns the
// segment with elapsed <= t < elapsed+duration. It reports false for negative
// times and at or past the end of the timeline.
func Resolve(s timeline.State, t float64) (Position, bool) {
	if t < 0 || math.IsNaN(t) {
		return Position{}, false
	}
	elapsed := 0.0
	for i, seg := range s.Segments {
		if t >= elapsed && t < elapsed+seg.Duration {
			return locate(i, seg, elapsed, t-elapsed), true
		}
		elapsed += seg.Duration
	}
	return Position{}, false
}

func locate(i int, seg timeline.Segment, start, local float64) Position {
	p := Position{
		SegmentIndex: i,
		Segment:      seg,
		SegmentID:    seg.ID,
		SegmentStart: start,
		LocalTime:    local,
	}
	if len(seg.Media) == 0 {
		return p
	}
	slice := seg.ClipSlice()
	p.ClipIndex = min(len(seg.Media)-1, int(math.Floor(local/slice)))
	p.Clip = seg.Media[p.ClipIndex]
	p.ClipLocalTime = local - float64(p.ClipIndex)*slice
	return p
}

// Locate resolves a segment-local time within the segment at index i.
func Locate(s timeline.State, i int, local float64) (Position, bool) {
	if i < 0 || i >= len(s.Segments) {
		return Position{}, false
	}
	seg := s.Segments[i]
	local = math.Max(0, math.Min(local, seg.Duration))
	return locate(i, seg, s.SegmentStart(i), local), true
}
