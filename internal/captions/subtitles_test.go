package captions

import (
	"bytes"
	"strings"
	"testing"

	"github.com/storyreel/storyreel-agent/internal/timeline"
)

func testTracks() []Track {
	seg1 := timeline.NewSegment("hello world", 2)
	seg1.WordTimings = []WordTiming{{Word: "hello", Start: 0.2, End: 0.8}, {Word: "world", Start: 0.9, End: 1.6}}
	seg2 := timeline.NewSegment("again", 3)
	seg2.WordTimings = []WordTiming{{Word: "again", Start: 0, End: 1}}
	seg2.TextOverlayStyle.Position = timeline.PositionTop
	return Tracks(timeline.State{Segments: []timeline.Segment{seg1, seg2}}, 1080, DefaultWidthRatio)
}

func TestTracks_Offsets(t *testing.T) {
	tracks := testTracks()
	if tracks[0].Offset != 0 || tracks[1].Offset != 2 {
		t.Errorf("offsets = %v, %v", tracks[0].Offset, tracks[1].Offset)
	}
}

func TestEvents_FallbackAndWordSpans(t *testing.T) {
	evs := Events(testTracks()[0])
	if len(evs) == 0 || evs[0].Start != 0 || evs[0].End != 0.1 {
		t.Fatalf("first event = %+v, want fallback [0,0.1)", evs)
	}
	for _, ev := range evs[1:] {
		if ev.Start < 0.2 || ev.End > 1.6 {
			t.Errorf("event %+v outside chunk span", ev)
		}
	}
}

func TestWriteASS(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteASS(&buf, 1080, 1920, testTracks()); err != nil {
		t.Fatalf("WriteASS() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"PlayResX: 1080",
		"PlayResY: 1920",
		"Style: Seg1,Arial,64,&H00FFFFFF",
		",8,40,40,192,1",
		`{\c&H00FFFF&\alpha&H00&\fscx100\fscy100\b1}hello`,
		"Dialogue: 0,0:00:02.00,0:00:03.00,Seg2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("ASS output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSRT(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSRT(&buf, testTracks()); err != nil {
		t.Fatalf("WriteSRT() error = %v", err)
	}
	want := "1\n00:00:00,200 --> 00:00:01,600\nhello world\n\n2\n00:00:02,000 --> 00:00:03,000\nagain\n\n"
	if buf.String() != want {
		t.Errorf("WriteSRT() = %q, want %q", buf.String(), want)
	}
}

func TestFormatASSTimestamp(t *testing.T) {
	tests := map[float64]string{0: "0:00:00.00", 1.5: "0:00:01.50", 61.25: "0:01:01.25", 3600: "1:00:00.00"}
	for in, want := range tests {
		if got := formatASSTimestamp(in); got != want {
			t.Errorf("formatASSTimestamp(%v) = %q, want %q", in, got, want)
		}
	}
}
