package narration

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/storyreel/storyreel-agent/internal/timeline"
)

const (
	// charsPerSecond approximates a neutral speaking pace.
	charsPerSecond = 15.0
	// wordGap is the share of each word's slot left silent.
	wordGap = 0.1
)

// EstimateDuration guesses how long text takes to speak.
func EstimateDuration(text string) float64 {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	return math.Max(timeline.MinSegmentDuration, float64(n)/charsPerSecond)
}

// EstimateWordTimings spreads the words of text over total seconds in
// proportion to their length. The result is sorted, non-overlapping and
// deterministic. It is never used to caption a segment implicitly.
func EstimateWordTimings(text string, total float64) []timeline.WordTiming {
	words := strings.Fields(text)
	if len(words) == 0 || !(total > 0) {
		return nil
	}

	weights := make([]float64, len(words))
	sum := 0.0
	for i, w := range words {
		weights[i] = float64(utf8.RuneCountInString(w)) + 1
		sum += weights[i]
	}

	out := make([]timeline.WordTiming, len(words))
	cursor := 0.0
	for i, w := range words {
		slot := total * weights[i] / sum
		out[i] = timeline.WordTiming{
			Word:  w,
			Start: round3(cursor),
			End:   round3(cursor + slot*(1-wordGap)),
		}
		cursor += slot
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
