// Package timeline holds the editable story project: ordered segments, their
// media clips and captions, and the independently positioned audio tracks.
// Every mutation is a pure function over State; Editor applies them through
// the undo/redo history.
package timeline

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

type Transition string

const (
	TransitionFade  Transition = "fade"
	TransitionSlide Transition = "slide"
	TransitionZoom  Transition = "zoom"
)

type Position string

const (
	PositionTop    Position = "top"
	PositionCenter Position = "center"
	PositionBottom Position = "bottom"
)

type Animation string

const (
	AnimationNone      Animation = "none"
	AnimationScale     Animation = "scale"
	AnimationSlideUp   Animation = "slide-up"
	AnimationHighlight Animation = "highlight"
)

// AudioKind discriminates every audio entity in the model. Segment narration
// is always AudioNarration; audio tracks are music or sfx.
type AudioKind string

const (
	AudioNarration AudioKind = "narration"
	AudioMusic     AudioKind = "music"
	AudioSFX       AudioKind = "sfx"
)

const (
	MinSegmentDuration     = 1.0
	DefaultSegmentDuration = 5.0
	SplitEdgeGuard         = 0.5
	DefaultAudioVolume     = 1.0
)

// WordTiming is one spoken word, in seconds relative to its segment start.
type WordTiming struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type MediaClip struct {
	ID   string    `json:"id"`
	URL  string    `json:"url"`
	Type MediaType `json:"type"`
}

type TextOverlayStyle struct {
	FontFamily      string    `json:"fontFamily"`
	FontSize        float64   `json:"fontSize"`
	Color           string    `json:"color"`
	BackgroundColor string    `json:"backgroundColor"`
	Position        Position  `json:"position"`
	Animation       Animation `json:"animation"`
	MaxCaptionLines int       `json:"maxCaptionLines"`
}

func DefaultStyle() TextOverlayStyle {
	return TextOverlayStyle{
		FontFamily:      "Arial",
		FontSize:        64,
		Color:           "#FFFFFF",
		BackgroundColor: "",
		Position:        PositionBottom,
		Animation:       AnimationHighlight,
		MaxCaptionLines: 2,
	}
}

type Segment struct {
	ID                     string           `json:"id"`
	NarrationText          string           `json:"narration_text"`
	SearchKeywordsForMedia string           `json:"search_keywords_for_media,omitempty"`
	Media                  []MediaClip      `json:"media"`
	Duration               float64          `json:"duration"`
	AudioURL               string           `json:"audioUrl,omitempty"`
	WordTimings            []WordTiming     `json:"wordTimings,omitempty"`
	AudioVolume            float64          `json:"audioVolume"`
	Transition             Transition       `json:"transition"`
	TextOverlayStyle       TextOverlayStyle `json:"textOverlayStyle"`
}

// UnmarshalJSON fills defaults for fields older project documents omit.
func (s *Segment) UnmarshalJSON(data []byte) error {
	type alias Segment
	a := alias{
		AudioVolume:      DefaultAudioVolume,
		Transition:       TransitionFade,
		TextOverlayStyle: DefaultStyle(),
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = Segment(a)
	return nil
}

// AudioSource is the narration voice track of a segment, if any.
type AudioSource struct {
	Kind   AudioKind
	URL    string
	Volume float64
}

func (s Segment) AudioSource() (AudioSource, bool) {
	if s.AudioURL == "" {
		return AudioSource{}, false
	}
	return AudioSource{Kind: AudioNarration, URL: s.AudioURL, Volume: s.AudioVolume}, true
}

// ClipSlice is the naive equal share of the segment each clip is shown for.
func (s Segment) ClipSlice() float64 {
	if len(s.Media) == 0 {
		return s.Duration
	}
	return s.Duration / float64(len(s.Media))
}

func (s Segment) Clone() Segment {
	c := s
	c.Media = append([]MediaClip(nil), s.Media...)
	if s.WordTimings != nil {
		c.WordTimings = append([]WordTiming(nil), s.WordTimings...)
	}
	return c
}

// AudioClip is a background music or sound effect track positioned on the
// absolute timeline.
type AudioClip struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Name      string    `json:"name"`
	Type      AudioKind `json:"type"`
	StartTime float64   `json:"startTime"`
	Duration  float64   `json:"duration"`
	Volume    float64   `json:"volume"`
}

func (a AudioClip) End() float64 {
	return a.StartTime + a.Duration
}

// State is the part of a project the history snapshots.
type State struct {
	Segments    []Segment   `json:"segments"`
	AudioTracks []AudioClip `json:"audioTracks"`
}

func (s State) Clone() State {
	c := State{
		Segments:    make([]Segment, len(s.Segments)),
		AudioTracks: append([]AudioClip{}, s.AudioTracks...),
	}
	for i, seg := range s.Segments {
		c.Segments[i] = seg.Clone()
	}
	return c
}

func (s State) TotalDuration() float64 {
	total := 0.0
	for _, seg := range s.Segments {
		total += seg.Duration
	}
	return total
}

// SegmentStart returns the timeline-absolute start of the segment at index i.
func (s State) SegmentStart(i int) float64 {
	start := 0.0
	for j := 0; j < i && j < len(s.Segments); j++ {
		start += s.Segments[j].Duration
	}
	return start
}

func (s State) indexOf(id string) int {
	for i, seg := range s.Segments {
		if seg.ID == id {
			return i
		}
	}
	return -1
}

func (s State) audioIndexOf(id string) int {
	for i, a := range s.AudioTracks {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// Segment returns a copy of the segment with the given id.
func (s State) Segment(id string) (Segment, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return Segment{}, false
	}
	return s.Segments[i].Clone(), true
}

type Project struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	State
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (p Project) Clone() Project {
	c := p
	c.State = p.State.Clone()
	return c
}

// Validate checks every structural invariant of a project document.
func (p Project) Validate() error {
	if len(p.Segments) == 0 {
		return invalid("segments", "project must contain at least one segment")
	}
	seen := make(map[string]bool)
	for _, seg := range p.Segments {
		if seg.ID == "" {
			return invalid("segments", "segment id is required")
		}
		if !(seg.Duration > 0) || math.IsInf(seg.Duration, 0) {
			return invalid("duration", "segment "+seg.ID+" must have a positive duration")
		}
		if len(seg.Media) == 0 {
			return invalid("media", "segment "+seg.ID+" must have at least one media clip")
		}
		for _, clip := range seg.Media {
			if clip.ID == "" || seen[clip.ID] {
				return invalid("media", "media clip ids must be present and unique")
			}
			seen[clip.ID] = true
			if clip.Type != MediaImage && clip.Type != MediaVideo {
				return invalid("media", "media clip type must be image or video")
			}
		}
		if err := ValidateTimings(seg.WordTimings); err != nil {
			return err
		}
		if seg.AudioVolume < 0 || seg.AudioVolume > 1 {
			return invalid("audioVolume", "audio volume must be within [0,1]")
		}
		if err := validateTransition(seg.Transition); err != nil {
			return err
		}
		if err := ValidateStyle(seg.TextOverlayStyle); err != nil {
			return err
		}
	}
	for _, a := range p.AudioTracks {
		if err := validateAudioClip(a); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTimings enforces non-negative, sorted, non-overlapping timings with
// start < end.
func ValidateTimings(timings []WordTiming) error {
	prevEnd := 0.0
	for i, w := range timings {
		if w.Start < 0 || !(w.Start < w.End) {
			return invalid("wordTimings", "word timings must satisfy 0 <= start < end")
		}
		if i > 0 && w.Start < prevEnd {
			return invalid("wordTimings", "word timings must be sorted and non-overlapping")
		}
		prevEnd = w.End
	}
	return nil
}

func ValidateStyle(st TextOverlayStyle) error {
	if st.FontSize <= 0 {
		return invalid("textOverlayStyle", "font size must be positive")
	}
	if st.MaxCaptionLines < 1 {
		return invalid("textOverlayStyle", "maxCaptionLines must be at least 1")
	}
	switch st.Position {
	case PositionTop, PositionCenter, PositionBottom:
	default:
		return invalid("textOverlayStyle", "position must be top, center or bottom")
	}
	switch st.Animation {
	case AnimationNone, AnimationScale, AnimationSlideUp, AnimationHighlight:
	default:
		return invalid("textOverlayStyle", "animation must be none, scale, slide-up or highlight")
	}
	return nil
}

func validateTransition(t Transition) error {
	switch t {
	case TransitionFade, TransitionSlide, TransitionZoom:
		return nil
	}
	return invalid("transition", "transition must be fade, slide or zoom")
}

func validateAudioClip(a AudioClip) error {
	if a.ID == "" || a.URL == "" {
		return invalid("audioTracks", "audio track id and url are required")
	}
	if a.Type != AudioMusic && a.Type != AudioSFX {
		return invalid("audioTracks", "audio track type must be music or sfx")
	}
	if a.StartTime < 0 || !(a.Duration > 0) {
		return invalid("audioTracks", "audio track needs startTime >= 0 and a positive duration")
	}
	if a.Volume < 0 || a.Volume > 1 {
		return invalid("audioTracks", "audio track volume must be within [0,1]")
	}
	return nil
}

func NewID() string {
	return uuid.NewString()
}

// NewSegment builds a segment with default style, volume and transition.
func NewSegment(text string, duration float64, media ...MediaClip) Segment {
	return Segment{
		ID:               NewID(),
		NarrationText:    text,
		Media:            media,
		Duration:         duration,
		AudioVolume:      DefaultAudioVolume,
		Transition:       TransitionFade,
		TextOverlayStyle: DefaultStyle(),
	}
}

// NewProject wraps segments into a fresh project document.
func NewProject(title string, segments ...Segment) Project {
	now := time.Now().UTC()
	return Project{
		ID:        NewID(),
		Title:     title,
		State:     State{Segments: segments, AudioTracks: []AudioClip{}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
