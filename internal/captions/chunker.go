// Package captions pages word timings into on-screen caption chunks and
// decides how each word looks at a given instant. The preview compositor and
// the subtitle writers both go through these functions, so a frame shows the
// same words in the same state whichever path draws it.
package captions

import "unicode/utf8"

const (
	// Estimated glyph advance as a fraction of the font size.
	charWidthFactor  = 0.6
	spaceWidthFactor = 0.3

	// FallbackWindow is how long the first chunk is shown before its own
	// start when nothing else is active.
	FallbackWindow = 0.1
)

// Chunk is one page of caption text.
type Chunk struct {
	Start   float64
	End     float64
	Timings []WordTiming
	Lines   [][]WordTiming
}

// WordWidth estimates the rendered width of a word in pixels.
func WordWidth(word string, fontSize float64) float64 {
	return float64(utf8.RuneCountInString(word)) * fontSize * charWidthFactor
}

// ChunkWords greedily packs words into lines no wider than maxWidth and closes a
// chunk every maxLines lines. A word wider than maxWidth gets a line of its
// own. The result is deterministic for identical input.
func ChunkWords(timings []WordTiming, fontSize float64, maxLines int, maxWidth float64) []Chunk {
	if len(timings) == 0 {
		return nil
	}
	if maxLines < 1 {
		maxLines = 1
	}
	space := fontSize * spaceWidthFactor

	var (
		chunks []Chunk
		lines  [][]WordTiming
		line   []WordTiming
		width  float64
	)
	flushChunk := func() {
		if len(lines) == 0 {
			return
		}
		c := Chunk{Lines: lines}
		for _, l := range lines {
			c.Timings = append(c.Timings, l...)
		}
		c.Start = c.Timings[0].Start
		c.End = c.Timings[len(c.Timings)-1].End
		chunks = append(chunks, c)
		lines = nil
	}
	flushLine := func() {
		if len(line) == 0 {
			return
		}
		lines = append(lines, line)
		line, width = nil, 0
		if len(lines) == maxLines {
			flushChunk()
		}
	}

	for _, w := range timings {
		ww := WordWidth(w.Word, fontSize)
		if len(line) > 0 && width+space+ww > maxWidth {
			flushLine()
		}
		if len(line) > 0 {
			width += space
		}
		line = append(line, w)
		width += ww
	}
	flushLine()
	flushChunk()
	return chunks
}
