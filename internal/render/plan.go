// Package render turns a timeline snapshot into output. BuildPlan lays the
// project out on the absolute timeline once; FrameAt (live preview) and the
// ffmpeg graph builder (export) both read that plan, so they agree on what is
// on screen and audible at any instant.
package render

import (
	"math"

	"github.com/storyreel/storyreel-agent/internal/captions"
	"github.com/storyreel/storyreel-agent/internal/config"
	"github.com/storyreel/storyreel-agent/internal/timeline"
)

// ClipSlot is one clip's place inside its segment, in segment-local seconds.
// FadeIn is the cross-fade from the previous slot; zero means a hard cut.
type ClipSlot struct {
	Clip           timeline.MediaClip `json:"clip"`
	Start          float64            `json:"start"`
	RenderDuration float64            `json:"renderDuration"`
	FadeIn         float64            `json:"fadeIn"`
}

func (c ClipSlot) End() float64 { return c.Start + c.RenderDuration }

type SegmentPlan struct {
	Index    int                       `json:"index"`
	ID       string                    `json:"id"`
	Start    float64                   `json:"start"`
	Duration float64                   `json:"duration"`
	Slots    []ClipSlot                `json:"slots"`
	Style    timeline.TextOverlayStyle `json:"style"`
	Chunks   []captions.Chunk          `json:"-"`

	// Outgoing transition. Only fade blends; slide and zoom cut.
	Transition timeline.Transition `json:"transition"`
	FadeOut    float64             `json:"fadeOut"`
	FadeTo     *timeline.MediaClip `json:"fadeTo,omitempty"`
}

func (s SegmentPlan) End() float64 { return s.Start + s.Duration }

// NarrationPiece is one segment's voice track on the absolute timeline. An
// empty URL is generated silence.
type NarrationPiece struct {
	SegmentID string  `json:"segmentId"`
	URL       string  `json:"url,omitempty"`
	Offset    float64 `json:"offset"`
	Duration  float64 `json:"duration"`
	Volume    float64 `json:"volume"`
}

func (n NarrationPiece) Silent() bool { return n.URL == "" }

// BackgroundPlacement is a music or sfx track clipped to the video length.
type BackgroundPlacement struct {
	ID       string             `json:"id"`
	URL      string             `json:"url"`
	Kind     timeline.AudioKind `json:"kind"`
	Delay    float64            `json:"delay"`
	Duration float64            `json:"duration"`
	Volume   float64            `json:"volume"`
}

type Plan struct {
	Profile    config.Profile        `json:"profile"`
	State      timeline.State        `json:"-"`
	Duration   float64               `json:"duration"`
	Segments   []SegmentPlan         `json:"segments"`
	Narration  []NarrationPiece      `json:"narration"`
	Background []BackgroundPlacement `json:"background"`
	Captions   []captions.Track      `json:"-"`
}

// BuildPlan lays out a state snapshot. The state is cloned; later edits to
// the caller's copy do not reach the plan.
func BuildPlan(s timeline.State, profile config.Profile) *Plan {
	s = s.Clone()
	p := &Plan{
		Profile:  profile,
		State:    s,
		Duration: s.TotalDuration(),
		Captions: captions.Tracks(s, profile.Width, profile.CaptionWidth),
	}

	offset := 0.0
	for i, seg := range s.Segments {
		sp := SegmentPlan{
			Index:      i,
			ID:         seg.ID,
			Start:      offset,
			Duration:   seg.Duration,
			Slots:      clipSlots(seg, profile),
			Style:      seg.TextOverlayStyle,
			Chunks:     p.Captions[i].Chunks,
			Transition: timeline.TransitionFade,
		}
		if seg.Transition != timeline.TransitionFade {
			sp.Transition = seg.Transition
		}
		if i+1 < len(s.Segments) && seg.Transition == timeline.TransitionFade && profile.TransitionWindow > 0 {
			next := s.Segments[i+1]
			if len(next.Media) > 0 {
				clip := next.Media[0]
				sp.FadeTo = &clip
				sp.FadeOut = math.Min(profile.TransitionWindow, seg.Duration/2)
			}
		}
		p.Segments = append(p.Segments, sp)

		piece := NarrationPiece{SegmentID: seg.ID, Offset: offset, Duration: seg.Duration}
		if src, ok := seg.AudioSource(); ok {
			piece.URL = src.URL
			piece.Volume = src.Volume
		}
		p.Narration = append(p.Narration, piece)

		offset += seg.Duration
	}

	p.Background = backgroundPlacements(s.AudioTracks, p.Duration)
	return p
}

// clipSlots divides a segment between its clips. With clip cross-fades each
// slot is inflated to (D+(N-1)W)/N and slot k starts at k(r-W), so the
// visible time still sums to D.
func clipSlots(seg timeline.Segment, profile config.Profile) []ClipSlot {
	n := len(seg.Media)
	if n == 0 {
		return nil
	}
	slice := seg.Duration / float64(n)
	w := 0.0
	if profile.ClipCrossfade && n > 1 {
		w = math.Min(profile.TransitionWindow, slice/2)
	}

	slots := make([]ClipSlot, n)
	if w <= 0 {
		for k, clip := range seg.Media {
			slots[k] = ClipSlot{Clip: clip, Start: float64(k) * slice, RenderDuration: slice}
		}
		return slots
	}

	r := PerClipRenderDuration(seg.Duration, n, w)
	for k, clip := range seg.Media {
		slots[k] = ClipSlot{Clip: clip, Start: float64(k) * (r - w), RenderDuration: r}
		if k > 0 {
			slots[k].FadeIn = w
		}
	}
	return slots
}

// PerClipRenderDuration is the inflated length of each of n clips sharing a
// segment of duration d with cross-fades of length w between them.
func PerClipRenderDuration(d float64, n int, w float64) float64 {
	if n <= 0 {
		return 0
	}
	return (d + float64(n-1)*w) / float64(n)
}

// backgroundPlacements drops tracks that start after the video ends and
// trims the rest to the video length. Every track keeps its own placement.
func backgroundPlacements(tracks []timeline.AudioClip, total float64) []BackgroundPlacement {
	var out []BackgroundPlacement
	for _, a := range tracks {
		if a.StartTime >= total || a.Duration <= 0 {
			continue
		}
		out = append(out, BackgroundPlacement{
			ID:       a.ID,
			URL:      a.URL,
			Kind:     a.Type,
			Delay:    a.StartTime,
			Duration: math.Min(a.Duration, total-a.StartTime),
			Volume:   a.Volume,
		})
	}
	return out
}

// URLs lists every distinct asset the plan needs, in timeline order.
func (p *Plan) URLs() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	for _, sp := range p.Segments {
		for _, slot := range sp.Slots {
			add(slot.Clip.URL)
		}
	}
	for _, n := range p.Narration {
		add(n.URL)
	}
	for _, b := range p.Background {
		add(b.URL)
	}
	return out
}

// HasFades reports whether any xfade is needed.
func (p *Plan) HasFades() bool {
	for _, sp := range p.Segments {
		if sp.FadeTo != nil {
			return true
		}
		for _, slot := range sp.Slots {
			if slot.FadeIn > 0 {
				return true
			}
		}
	}
	return false
}

// HasCaptions reports whether any segment carries word timings.
func (p *Plan) HasCaptions() bool {
	for _, sp := range p.Segments {
		if len(sp.Chunks) > 0 {
			return true
		}
	}
	return false
}
