package captions

import (
	"testing"

	"github.com/storyreel/storyreel-agent/internal/timeline"
)

func TestStateAt(t *testing.T) {
	w := WordTiming{Word: "x", Start: 1, End: 2}
	cases := map[float64]WordState{0.5: Upcoming, 1: Active, 1.99: Active, 2: Past, 3: Past}
	for at, want := range cases {
		if got := StateAt(w, at); got != want {
			t.Errorf("StateAt(%v) = %v, want %v", at, got, want)
		}
	}
}

func TestLook(t *testing.T) {
	style := timeline.DefaultStyle()

	tests := []struct {
		anim  timeline.Animation
		state WordState
		want  WordLook
	}{
		{timeline.AnimationHighlight, Active, WordLook{Color: HighlightColor, Alpha: 1, Scale: 1, Bold: true}},
		{timeline.AnimationHighlight, Past, WordLook{Color: "#FFFFFF", Alpha: 1, Scale: 1}},
		{timeline.AnimationScale, Active, WordLook{Color: "#FFFFFF", Alpha: 1, Scale: 1.25}},
		{timeline.AnimationSlideUp, Upcoming, WordLook{Color: "#FFFFFF", Alpha: 0, Scale: 1}},
		{timeline.AnimationSlideUp, Active, WordLook{Color: "#FFFFFF", Alpha: 1, Scale: 1}},
		{timeline.AnimationNone, Active, WordLook{Color: "#FFFFFF", Alpha: 1, Scale: 1}},
	}
	for _, tt := range tests {
		t.Run(string(tt.anim)+"/"+tt.state.String(), func(t *testing.T) {
			style.Animation = tt.anim
			if got := Look(style, tt.state); got != tt.want {
				t.Errorf("Look() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAt_ResolvesWordStates(t *testing.T) {
	style := timeline.DefaultStyle()
	in := []WordTiming{{Word: "a", Start: 0, End: 1}, {Word: "b", Start: 1, End: 2}}
	chunks := ChunkWords(in, style.FontSize, style.MaxCaptionLines, 900)

	f, ok := At(chunks, style, 1.5)
	if !ok {
		t.Fatal("At() found no caption")
	}
	line := f.Lines[0]
	if line[0].State != Past || line[1].State != Active {
		t.Errorf("states = %v, %v", line[0].State, line[1].State)
	}
	if line[1].Look.Color != HighlightColor {
		t.Errorf("active word color = %s", line[1].Look.Color)
	}
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#FF8000")
	if err != nil || c.R != 0xFF || c.G != 0x80 || c.B != 0 {
		t.Errorf("ParseHex(#FF8000) = %+v, %v", c, err)
	}
	if c, err := ParseHex("#fff"); err != nil || c.B != 0xFF {
		t.Errorf("ParseHex(#fff) = %+v, %v", c, err)
	}
	if _, err := ParseHex("red"); err == nil {
		t.Error("ParseHex(red) should fail")
	}
}
