package render

import (
	"math"
	"testing"

	"github.com/storyreel/storyreel-agent/internal/config"
	"github.com/storyreel/storyreel-agent/internal/timeline"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func image(id string) timeline.MediaClip {
	return timeline.MediaClip{ID: id, URL: "https://cdn.example.com/" + id + ".jpg", Type: timeline.MediaImage}
}

func video(id string) timeline.MediaClip {
	return timeline.MediaClip{ID: id, URL: "https://cdn.example.com/" + id + ".mp4", Type: timeline.MediaVideo}
}

func TestPerClipRenderDuration(t *testing.T) {
	r := PerClipRenderDuration(10, 2, 0.5)
	if !approx(r, 5.25) {
		t.Errorf("PerClipRenderDuration(10, 2, 0.5) = %v, want 5.25", r)
	}
	if !approx(r-0.5, 4.75) {
		t.Errorf("second clip offset = %v, want 4.75", r-0.5)
	}
	if got := PerClipRenderDuration(6, 1, 0.5); !approx(got, 6) {
		t.Errorf("single clip = %v, want 6", got)
	}
}

func TestBuildPlan_ClipCrossfadeInflation(t *testing.T) {
	seg := timeline.NewSegment("a b", 10, image("c1"), image("c2"))
	plan := BuildPlan(timeline.State{Segments: []timeline.Segment{seg}}, config.DefaultProfile())

	slots := plan.Segments[0].Slots
	if len(slots) != 2 {
		t.Fatalf("slots = %d, want 2", len(slots))
	}
	if !approx(slots[0].RenderDuration, 5.25) || !approx(slots[1].RenderDuration, 5.25) {
		t.Errorf("render durations = %v, %v", slots[0].RenderDuration, slots[1].RenderDuration)
	}
	if !approx(slots[1].Start, 4.75) || !approx(slots[1].FadeIn, 0.5) || slots[0].FadeIn != 0 {
		t.Errorf("slot 1 = %+v", slots[1])
	}
	if !approx(slots[1].End(), 10) {
		t.Errorf("last slot ends at %v, want 10", slots[1].End())
	}
}

func TestBuildPlan_VisibleTimeSumsToDuration(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		var media []timeline.MediaClip
		for i := 0; i < n; i++ {
			media = append(media, image(string(rune('a'+i))))
		}
		seg := timeline.NewSegment("", 7, media...)
		slots := BuildPlan(timeline.State{Segments: []timeline.Segment{seg}}, config.DefaultProfile()).Segments[0].Slots

		visible := 0.0
		for k, s := range slots {
			end := s.End()
			if k+1 < len(slots) {
				end = slots[k+1].Start
			}
			visible += end - s.Start
		}
		if !approx(visible, 7) {
			t.Errorf("n=%d: visible time = %v, want 7", n, visible)
		}
	}
}

func TestBuildPlan_WindowCappedAtHalfSlice(t *testing.T) {
	seg := timeline.NewSegment("", 1, image("a"), image("b"), image("c"), image("d"))
	slots := BuildPlan(timeline.State{Segments: []timeline.Segment{seg}}, config.DefaultProfile()).Segments[0].Slots
	if !approx(slots[1].FadeIn, 0.125) {
		t.Errorf("fade = %v, want 0.125", slots[1].FadeIn)
	}
}

func TestBuildPlan_EqualSlicesWithoutCrossfade(t *testing.T) {
	prof := config.DefaultProfile()
	prof.ClipCrossfade = false
	seg := timeline.NewSegment("", 9, image("a"), image("b"), image("c"))
	slots := BuildPlan(timeline.State{Segments: []timeline.Segment{seg}}, prof).Segments[0].Slots
	for k, s := range slots {
		if !approx(s.Start, float64(k)*3) || !approx(s.RenderDuration, 3) || s.FadeIn != 0 {
			t.Errorf("slot %d = %+v", k, s)
		}
	}
}

func TestBuildPlan_SegmentTransitions(t *testing.T) {
	a := timeline.NewSegment("", 4, image("a"))
	b := timeline.NewSegment("", 4, video("b"))
	b.Transition = timeline.TransitionSlide
	c := timeline.NewSegment("", 4, image("c"))
	plan := BuildPlan(timeline.State{Segments: []timeline.Segment{a, b, c}}, config.DefaultProfile())

	if plan.Segments[0].FadeTo == nil || plan.Segments[0].FadeTo.ID != "b" || !approx(plan.Segments[0].FadeOut, 0.5) {
		t.Errorf("fade segment = %+v", plan.Segments[0])
	}
	if plan.Segments[1].FadeTo != nil || plan.Segments[1].Transition != timeline.TransitionSlide {
		t.Errorf("slide should cut, got %+v", plan.Segments[1])
	}
	if plan.Segments[2].FadeTo != nil {
		t.Error("last segment has no next segment to fade into")
	}
	if !approx(plan.Segments[2].Start, 8) || !approx(plan.Duration, 12) {
		t.Errorf("start = %v, duration = %v", plan.Segments[2].Start, plan.Duration)
	}
}

func TestBuildPlan_NarrationSilenceKeepsAlignment(t *testing.T) {
	a := timeline.NewSegment("one", 3, image("a"))
	a.AudioURL = "https://cdn.example.com/a.mp3"
	a.AudioVolume = 0.8
	b := timeline.NewSegment("two", 2, image("b"))
	c := timeline.NewSegment("three", 4, image("c"))
	c.AudioURL = "https://cdn.example.com/c.mp3"

	plan := BuildPlan(timeline.State{Segments: []timeline.Segment{a, b, c}}, config.DefaultProfile())
	if len(plan.Narration) != 3 {
		t.Fatalf("narration pieces = %d, want 3", len(plan.Narration))
	}
	if plan.Narration[0].Silent() || plan.Narration[0].Volume != 0.8 {
		t.Errorf("piece 0 = %+v", plan.Narration[0])
	}
	if !plan.Narration[1].Silent() || !approx(plan.Narration[1].Offset, 3) || !approx(plan.Narration[1].Duration, 2) {
		t.Errorf("piece 1 = %+v", plan.Narration[1])
	}
	if !approx(plan.Narration[2].Offset, 5) {
		t.Errorf("piece 2 offset = %v, want 5", plan.Narration[2].Offset)
	}
}

func TestBuildPlan_BackgroundPlacement(t *testing.T) {
	a := timeline.NewSegment("", 10, image("a"))
	b := timeline.NewSegment("", 5, image("b"))
	music := timeline.AudioClip{ID: "m", URL: "https://cdn.example.com/m.mp3", Type: timeline.AudioMusic, StartTime: 12, Duration: 10, Volume: 0.3}
	late := timeline.AudioClip{ID: "x", URL: "https://cdn.example.com/x.mp3", Type: timeline.AudioSFX, StartTime: 15, Duration: 1, Volume: 1}
	dup := music
	dup.ID = "m2"

	plan := BuildPlan(timeline.State{
		Segments:    []timeline.Segment{a, b},
		AudioTracks: []timeline.AudioClip{music, late, dup},
	}, config.DefaultProfile())

	if len(plan.Background) != 2 {
		t.Fatalf("background = %+v, want one placement per track", plan.Background)
	}
	for i, id := range []string{"m", "m2"} {
		bg := plan.Background[i]
		if bg.ID != id || !approx(bg.Delay, 12) || !approx(bg.Duration, 3) || !approx(bg.Volume, 0.3) {
			t.Errorf("placement %d = %+v", i, bg)
		}
	}
}

func TestBuildPlan_SnapshotIsDetached(t *testing.T) {
	seg := timeline.NewSegment("", 5, image("a"))
	s := timeline.State{Segments: []timeline.Segment{seg}}
	plan := BuildPlan(s, config.DefaultProfile())

	s.Segments[0].Media[0].URL = "https://elsewhere/changed.jpg"
	s.Segments[0].Duration = 99

	if plan.State.Segments[0].Media[0].URL != image("a").URL || plan.Duration != 5 {
		t.Error("plan changed after the source state was edited")
	}
}

func TestPlan_URLsAndFlags(t *testing.T) {
	a := timeline.NewSegment("", 4, image("a"), image("a2"))
	a.AudioURL = "https://cdn.example.com/n.mp3"
	a.WordTimings = []timeline.WordTiming{{Word: "hi", Start: 0, End: 0.5}}
	b := timeline.NewSegment("", 4, image("a"))
	plan := BuildPlan(timeline.State{Segments: []timeline.Segment{a, b}}, config.DefaultProfile())

	urls := plan.URLs()
	if len(urls) != 3 {
		t.Errorf("URLs() = %v, want 3 distinct", urls)
	}
	if !plan.HasFades() || !plan.HasCaptions() {
		t.Error("expected fades and captions")
	}
}
