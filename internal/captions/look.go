package captions

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/storyreel/storyreel-agent/internal/timeline"
)

type WordTiming = timeline.WordTiming

// DefaultWidthRatio is the share of the frame width a caption line may use.
const DefaultWidthRatio = 0.9

const (
	HighlightColor = "#FFFF00"
	activeScale    = 1.25
)

type WordState int

const (
	Upcoming WordState = iota
	Active
	Past
)

func (s WordState) String() string {
	switch s {
	case Active:
		return "active"
	case Past:
		return "past"
	}
	return "upcoming"
}

// StateAt places a word relative to a segment-local time.
func StateAt(w WordTiming, t float64) WordState {
	switch {
	case t < w.Start:
		return Upcoming
	case t < w.End:
		return Active
	}
	return Past
}

// WordLook is how a word is drawn. Alpha is 0 (hidden) to 1 (opaque).
type WordLook struct {
	Color string  `json:"color"`
	Alpha float64 `json:"alpha"`
	Scale float64 `json:"scale"`
	Bold  bool    `json:"bold"`
}

// Look maps a word state to its appearance under the style's animation mode.
func Look(style timeline.TextOverlayStyle, state WordState) WordLook {
	base := WordLook{Color: style.Color, Alpha: 1, Scale: 1}
	switch style.Animation {
	case timeline.AnimationHighlight:
		if state == Active {
			base.Color = HighlightColor
			base.Bold = true
		}
	case timeline.AnimationScale:
		if state == Active {
			base.Scale = activeScale
		}
	case timeline.AnimationSlideUp:
		if state == Upcoming {
			base.Alpha = 0
		}
	}
	return base
}

// ActiveChunk returns the chunk covering t, or the first chunk while t is
// inside the fallback window.
func ActiveChunk(chunks []Chunk, t float64) (Chunk, bool) {
	for _, c := range chunks {
		if c.Start <= t && t <= c.End {
			return c, true
		}
	}
	if len(chunks) > 0 && t < FallbackWindow {
		return chunks[0], true
	}
	return Chunk{}, false
}

// MaxWidth is the pixel budget of one caption line for a frame width.
func MaxWidth(frameWidth int, ratio float64) float64 {
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultWidthRatio
	}
	return float64(frameWidth) * ratio
}

// ForSegment chunks a segment's own word timings with its own style.
func ForSegment(seg timeline.Segment, frameWidth int, ratio float64) []Chunk {
	st := seg.TextOverlayStyle
	return ChunkWords(seg.WordTimings, st.FontSize, st.MaxCaptionLines, MaxWidth(frameWidth, ratio))
}

// StyledWord is one word of a caption frame with its resolved look.
type StyledWord struct {
	Word  string    `json:"word"`
	State WordState `json:"-"`
	Look  WordLook  `json:"look"`
}

// Frame is the caption overlay at one instant.
type Frame struct {
	Lines           [][]StyledWord `json:"lines"`
	FontFamily      string         `json:"fontFamily"`
	FontSize        float64        `json:"fontSize"`
	Position        string         `json:"position"`
	BackgroundColor string         `json:"backgroundColor,omitempty"`
}

// At resolves the caption overlay for a segment-local time.
func At(chunks []Chunk, style timeline.TextOverlayStyle, t float64) (Frame, bool) {
	c, ok := ActiveChunk(chunks, t)
	if !ok {
		return Frame{}, false
	}
	f := Frame{
		FontFamily:      style.FontFamily,
		FontSize:        style.FontSize,
		Position:        string(style.Position),
		BackgroundColor: style.BackgroundColor,
	}
	for _, line := range c.Lines {
		words := make([]StyledWord, len(line))
		for i, w := range line {
			st := StateAt(w, t)
			words[i] = StyledWord{Word: w.Word, State: st, Look: Look(style, st)}
		}
		f.Lines = append(f.Lines, words)
	}
	return f, true
}

// ParseHex parses #RGB or #RRGGBB colors.
func ParseHex(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}, nil
}
