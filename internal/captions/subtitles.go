package captions

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/storyreel/storyreel-agent/internal/timeline"
)

// Track is the captions of one segment placed on the absolute timeline.
type Track struct {
	Offset   float64
	Duration float64
	Style    timeline.TextOverlayStyle
	Chunks   []Chunk
}

// Tracks lays out every segment's captions back to back.
func Tracks(s timeline.State, frameWidth int, ratio float64) []Track {
	tracks := make([]Track, len(s.Segments))
	offset := 0.0
	for i, seg := range s.Segments {
		tracks[i] = Track{
			Offset:   offset,
			Duration: seg.Duration,
			Style:    seg.TextOverlayStyle,
			Chunks:   ForSegment(seg, frameWidth, ratio),
		}
		offset += seg.Duration
	}
	return tracks
}

// Event is a span of constant caption appearance in segment-local time.
type Event struct {
	Start float64
	End   float64
	At    float64
}

// Events splits a track into spans over which no word changes state. At is
// the instant the span's appearance is sampled from; inside a chunk that is
// the span midpoint so a shared chunk boundary resolves to the later chunk.
func Events(tr Track) []Event {
	var out []Event
	if len(tr.Chunks) == 0 {
		return nil
	}
	if first := tr.Chunks[0]; first.Start > 0 {
		end := math.Min(FallbackWindow, first.Start)
		out = append(out, Event{Start: 0, End: end, At: 0})
	}
	for _, c := range tr.Chunks {
		cuts := []float64{c.Start, c.End}
		for _, w := range c.Timings {
			cuts = append(cuts, w.Start, w.End)
		}
		sort.Float64s(cuts)
		for i := 0; i+1 < len(cuts); i++ {
			a, b := cuts[i], math.Min(cuts[i+1], tr.Duration)
			if b-a < 1e-6 || a < c.Start || a >= tr.Duration {
				continue
			}
			out = append(out, Event{Start: a, End: b, At: (a + b) / 2})
		}
	}
	return out
}

// WriteASS writes an Advanced SubStation script with one style per segment
// and override tags carrying each word's look.
func WriteASS(w io.Writer, width, height int, tracks []Track) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "[Script Info]")
	fmt.Fprintln(bw, "Title: StoryReel captions")
	fmt.Fprintln(bw, "ScriptType: v4.00+")
	fmt.Fprintf(bw, "PlayResX: %d\n", width)
	fmt.Fprintf(bw, "PlayResY: %d\n", height)
	fmt.Fprintln(bw, "WrapStyle: 2")
	fmt.Fprintln(bw, "ScaledBorderAndShadow: yes")
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "[V4+ Styles]")
	fmt.Fprintln(bw, "Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding")
	marginV := int(math.Round(float64(height) * 0.1))
	for i, tr := range tracks {
		st := tr.Style
		borderStyle, back := 1, "&H00000000"
		if st.BackgroundColor != "" {
			borderStyle, back = 3, assColor(st.BackgroundColor, "&H00")
		}
		fmt.Fprintf(bw, "Style: %s,%s,%d,%s,%s,&H00000000,%s,0,0,0,0,100,100,0,0,%d,3,0,%d,40,40,%d,1\n",
			styleName(i), st.FontFamily, int(math.Round(st.FontSize)),
			assColor(st.Color, "&H00"), assColor(st.Color, "&H00"), back,
			borderStyle, alignment(st.Position), marginV)
	}
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "[Events]")
	fmt.Fprintln(bw, "Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text")
	for i, tr := range tracks {
		for _, ev := range Events(tr) {
			f, ok := At(tr.Chunks, tr.Style, ev.At)
			if !ok {
				continue
			}
			fmt.Fprintf(bw, "Dialogue: 0,%s,%s,%s,,0,0,0,,%s\n",
				formatASSTimestamp(tr.Offset+ev.Start),
				formatASSTimestamp(tr.Offset+ev.End),
				styleName(i), assText(f))
		}
	}
	return bw.Flush()
}

func assText(f Frame) string {
	lines := make([]string, len(f.Lines))
	for i, line := range f.Lines {
		words := make([]string, len(line))
		for j, w := range line {
			words[j] = assTags(w.Look) + sanitizeASS(w.Word)
		}
		lines[i] = strings.Join(words, " ")
	}
	return strings.Join(lines, `\N`)
}

func assTags(l WordLook) string {
	bold := 0
	if l.Bold {
		bold = 1
	}
	pct := int(math.Round(l.Scale * 100))
	alpha := 255 - int(math.Round(math.Max(0, math.Min(1, l.Alpha))*255))
	return fmt.Sprintf(`{\c%s&\alpha&H%02X&\fscx%d\fscy%d\b%d}`, assColor(l.Color, "&H"), alpha, pct, pct, bold)
}

// assColor renders #RRGGBB as ASS BGR hex behind the given prefix.
func assColor(hex, prefix string) string {
	c, err := ParseHex(hex)
	if err != nil {
		c.R, c.G, c.B = 0xFF, 0xFF, 0xFF
	}
	return fmt.Sprintf("%s%02X%02X%02X", prefix, c.B, c.G, c.R)
}

func alignment(p timeline.Position) int {
	switch p {
	case timeline.PositionTop:
		return 8
	case timeline.PositionCenter:
		return 5
	}
	return 2
}

func styleName(i int) string {
	return fmt.Sprintf("Seg%d", i+1)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	return strings.TrimSpace(s)
}

// formatASSTimestamp renders seconds as h:mm:ss.cc.
func formatASSTimestamp(seconds float64) string {
	cs := int(math.Round(math.Max(0, seconds) * 100))
	return fmt.Sprintf("%d:%02d:%02d.%02d", cs/360000, cs/6000%60, cs/100%60, cs%100)
}

// WriteSRT writes one cue per caption chunk in timeline-absolute time.
func WriteSRT(w io.Writer, tracks []Track) error {
	bw := bufio.NewWriter(w)
	n := 0
	for _, tr := range tracks {
		for _, c := range tr.Chunks {
			if c.Start >= tr.Duration {
				continue
			}
			n++
			lines := make([]string, len(c.Lines))
			for i, l := range c.Lines {
				lines[i] = joinWords(l)
			}
			fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n", n,
				formatSRTTimestamp(tr.Offset+c.Start),
				formatSRTTimestamp(tr.Offset+math.Min(c.End, tr.Duration)),
				strings.Join(lines, "\n"))
		}
	}
	return bw.Flush()
}

func joinWords(ws []WordTiming) string {
	parts := make([]string, len(ws))
	for i, w := range ws {
		parts[i] = w.Word
	}
	return strings.Join(parts, " ")
}

// formatSRTTimestamp renders seconds as hh:mm:ss,mmm.
func formatSRTTimestamp(seconds float64) string {
	ms := int(math.Round(math.Max(0, seconds) * 1000))
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}
