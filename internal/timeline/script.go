package timeline

import (
	"regexp"
	"strings"
)

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// ScriptText joins segment narration into one blank-line delimited blob.
func ScriptText(s State) string {
	parts := make([]string, len(s.Segments))
	for i, seg := range s.Segments {
		parts[i] = seg.NarrationText
	}
	return strings.Join(parts, "\n\n")
}

// SplitScript breaks a script blob into trimmed, non-empty paragraphs.
func SplitScript(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var parts []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// ApplyScript zips the paragraphs of an edited script against the existing
// segments by index. Changed text invalidates the narration track and word
// timings. Surplus paragraphs become new segments that reuse the last
// segment's media; surplus segments keep their media with empty text.
func ApplyScript(s State, text string) (State, error) {
	if len(s.Segments) == 0 {
		return s, invalid("segments", "project has no segments")
	}
	parts := SplitScript(text)
	next := s.Clone()
	for i := range next.Segments {
		part := ""
		if i < len(parts) {
			part = parts[i]
		}
		seg := &next.Segments[i]
		if seg.NarrationText == part {
			continue
		}
		seg.NarrationText = part
		seg.AudioURL = ""
		seg.WordTimings = nil
	}
	last := next.Segments[len(next.Segments)-1]
	for i := len(next.Segments); i < len(parts); i++ {
		seg := last.Clone()
		seg.ID = NewID()
		for k := range seg.Media {
			seg.Media[k].ID = NewID()
		}
		seg.NarrationText = parts[i]
		seg.Duration = DefaultSegmentDuration
		seg.AudioURL = ""
		seg.WordTimings = nil
		next.Segments = append(next.Segments, seg)
	}
	return next, nil
}
