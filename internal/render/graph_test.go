package render

import (
	"strings"
	"testing"

	"github.com/storyreel/storyreel-agent/internal/config"
	"github.com/storyreel/storyreel-agent/internal/timeline"
)

func localPaths(p *Plan) map[string]string {
	paths := make(map[string]string)
	for i, u := range p.URLs() {
		paths[u] = "/assets/" + string(rune('a'+i)) + u[strings.LastIndex(u, "."):]
	}
	return paths
}

func TestGraphBuilder_Args(t *testing.T) {
	a := timeline.NewSegment("", 10, image("c1"), video("c2"))
	a.AudioURL = "https://cdn.example.com/n.mp3"
	b := timeline.NewSegment("", 5, image("c3"))
	music := timeline.AudioClip{ID: "m", URL: "https://cdn.example.com/m.mp3", Type: timeline.AudioMusic, StartTime: 12, Duration: 10, Volume: 0.5}
	plan := BuildPlan(timeline.State{Segments: []timeline.Segment{a, b}, AudioTracks: []timeline.AudioClip{music}}, config.DefaultProfile())

	gb := &GraphBuilder{Plan: plan, Paths: localPaths(plan), Subtitles: "/tmp/work/captions.ass"}
	args, err := gb.Args("/tmp/out.mp4")
	if err != nil {
		t.Fatalf("Args() error = %v", err)
	}
	cmd := strings.Join(args, " ")

	for _, want := range []string{
		"xfade",
		"offset=4.750", // clip cross-fade inside segment one
		"offset=9.500", // segment fade into the next segment
		"duration=0.500",
		"stop_mode=clone",
		"anullsrc=r=44100:cl=stereo",
		"amix",
		"duration=first",
		"delays=12000",
		"loudnorm",
		"ass=",
		"concat",
		"-c:v libx264",
		"-t 15.000",
		"/tmp/out.mp4",
	} {
		if !strings.Contains(cmd, want) {
			t.Errorf("command missing %q:\n%s", want, cmd)
		}
	}
	if !strings.Contains(cmd, "-filter_complex") {
		t.Errorf("expected a filter graph:\n%s", cmd)
	}
}

func TestGraphBuilder_BackgroundDelay(t *testing.T) {
	a := timeline.NewSegment("", 10, image("c1"))
	b := timeline.NewSegment("", 10, image("c2"))
	music := timeline.AudioClip{ID: "m", URL: "https://cdn.example.com/m.mp3", Type: timeline.AudioMusic, StartTime: 12, Duration: 5, Volume: 0.5}
	plan := BuildPlan(timeline.State{Segments: []timeline.Segment{a, b}, AudioTracks: []timeline.AudioClip{music}}, config.DefaultProfile())

	args, err := (&GraphBuilder{Plan: plan, Paths: localPaths(plan)}).Args("/tmp/out.mp4")
	if err != nil {
		t.Fatalf("Args() error = %v", err)
	}
	cmd := strings.Join(args, " ")
	for _, want := range []string{"atrim=duration=5.000", "volume=0.500", "delays=12000", "amix", "-t 20.000"} {
		if !strings.Contains(cmd, want) {
			t.Errorf("command missing %q:\n%s", want, cmd)
		}
	}
}

func TestGraphBuilder_HardCutWithoutFades(t *testing.T) {
	prof := config.DefaultProfile()
	prof.ClipCrossfade = false
	a := timeline.NewSegment("", 4, image("c1"), image("c2"))
	a.Transition = timeline.TransitionSlide
	b := timeline.NewSegment("", 4, image("c3"))
	plan := BuildPlan(timeline.State{Segments: []timeline.Segment{a, b}}, prof)

	args, err := (&GraphBuilder{Plan: plan, Paths: localPaths(plan)}).Args("/tmp/out.mp4")
	if err != nil {
		t.Fatalf("Args() error = %v", err)
	}
	cmd := strings.Join(args, " ")
	if strings.Contains(cmd, "xfade") {
		t.Errorf("slide transition should cut, got:\n%s", cmd)
	}
	if strings.Contains(cmd, "ass=") || strings.Contains(cmd, "amix") {
		t.Errorf("unexpected subtitle or mix filter:\n%s", cmd)
	}
}

func TestGraphBuilder_MissingAsset(t *testing.T) {
	seg := timeline.NewSegment("", 4, image("c1"))
	plan := BuildPlan(timeline.State{Segments: []timeline.Segment{seg}}, config.DefaultProfile())
	_, err := (&GraphBuilder{Plan: plan, Paths: map[string]string{}}).Args("/tmp/out.mp4")
	if err == nil || !strings.Contains(err.Error(), image("c1").URL) {
		t.Errorf("Args() error = %v, want missing asset error", err)
	}
}
