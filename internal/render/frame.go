package render

import (
	"math"

	"github.com/storyreel/storyreel-agent/internal/captions"
	"github.com/storyreel/storyreel-agent/internal/playback"
	"github.com/storyreel/storyreel-agent/internal/timeline"
)

// Rect is a placement inside the output frame, in pixels.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Letterbox fits a src-sized picture inside dst preserving aspect ratio.
// The uncovered area is black padding; the picture is never cropped or
// stretched.
func Letterbox(srcW, srcH, dstW, dstH int) Rect {
	if srcW <= 0 || srcH <= 0 {
		return Rect{W: dstW, H: dstH}
	}
	scale := math.Min(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
	w := int(math.Round(float64(srcW) * scale))
	h := int(math.Round(float64(srcH) * scale))
	return Rect{X: (dstW - w) / 2, Y: (dstH - h) / 2, W: w, H: h}
}

// Size is a source picture's pixel dimensions.
type Size struct {
	W int
	H int
}

// Layer is one picture composited into a frame, bottom first.
type Layer struct {
	Clip      timeline.MediaClip `json:"clip"`
	LocalTime float64            `json:"localTime"`
	Alpha     float64            `json:"alpha"`
	Rect      *Rect              `json:"rect,omitempty"`
}

// AudioGain is one audible source at an instant.
type AudioGain struct {
	Kind      timeline.AudioKind `json:"kind"`
	URL       string             `json:"url"`
	LocalTime float64            `json:"localTime"`
	Gain      float64            `json:"gain"`
}

// Frame describes everything composited at one instant of the timeline.
type Frame struct {
	Time     float64           `json:"time"`
	Position playback.Position `json:"position"`
	Layers   []Layer           `json:"layers"`
	Caption  *captions.Frame   `json:"caption,omitempty"`
	Audio    []AudioGain       `json:"audio"`
}

// FrameAt resolves the frame at absolute time t. It reports false past the
// end of the timeline. sizes, when non-nil, supplies source dimensions by
// URL for letterbox placement.
//
// The opaque base layer is always the clip playback.Resolve reports, at its
// clip-local time. Cross-fades are drawn as translucent layers above it.
func FrameAt(p *Plan, t float64, sizes map[string]Size) (Frame, bool) {
	pos, ok := playback.Resolve(p.State, t)
	if !ok {
		return Frame{}, false
	}
	sp := p.Segments[pos.SegmentIndex]
	local := pos.LocalTime
	f := Frame{Time: t, Position: pos}

	if len(sp.Slots) > 0 {
		f.Layers = append(f.Layers, p.layer(pos.Clip, pos.ClipLocalTime, 1, sizes))
		if next := pos.ClipIndex + 1; next < len(sp.Slots) && sp.Slots[next].FadeIn > 0 {
			w := sp.Slots[next].FadeIn
			edge := float64(next) * pos.Segment.ClipSlice()
			if local >= edge-w && local < edge {
				// the incoming clip is held on its first frame until the cut
				f.Layers = append(f.Layers, p.layer(sp.Slots[next].Clip, 0, (local-(edge-w))/w, sizes))
			}
		}
	}

	if sp.FadeTo != nil && local >= sp.Duration-sp.FadeOut {
		alpha := (local - (sp.Duration - sp.FadeOut)) / sp.FadeOut
		f.Layers = append(f.Layers, p.layer(*sp.FadeTo, 0, math.Min(1, alpha), sizes))
	}

	if cf, ok := captions.At(sp.Chunks, sp.Style, local); ok {
		f.Caption = &cf
	}

	if n := p.Narration[pos.SegmentIndex]; !n.Silent() {
		f.Audio = append(f.Audio, AudioGain{Kind: timeline.AudioNarration, URL: n.URL, LocalTime: local, Gain: n.Volume})
	}
	for _, b := range p.Background {
		if t >= b.Delay && t < b.Delay+b.Duration {
			f.Audio = append(f.Audio, AudioGain{Kind: b.Kind, URL: b.URL, LocalTime: t - b.Delay, Gain: b.Volume})
		}
	}
	return f, true
}

func (p *Plan) layer(clip timeline.MediaClip, local, alpha float64, sizes map[string]Size) Layer {
	l := Layer{Clip: clip, LocalTime: local, Alpha: alpha}
	if sz, ok := sizes[clip.URL]; ok {
		r := Letterbox(sz.W, sz.H, p.Profile.Width, p.Profile.Height)
		l.Rect = &r
	}
	return l
}

// Top returns the uppermost fully opaque layer, or the last layer when none
// is fully opaque.
func (f Frame) Top() (Layer, bool) {
	if len(f.Layers) == 0 {
		return Layer{}, false
	}
	for i := len(f.Layers) - 1; i >= 0; i-- {
		if f.Layers[i].Alpha >= 1 {
			return f.Layers[i], true
		}
	}
	return f.Layers[len(f.Layers)-1], true
}
