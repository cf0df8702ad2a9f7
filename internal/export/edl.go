package export

import (
	"fmt"
	"math"
	"path"
	"strings"

	"github.com/storyreel/storyreel-agent/internal/render"
)

// EDLEvent is one video event of a CMX 3600 edit decision list, in
// milliseconds. DissolveFrames > 0 marks a dissolve from the previous event.
type EDLEvent struct {
	ClipName       string
	MediaPath      string
	SrcInMs        int
	SrcOutMs       int
	RecInMs        int
	RecOutMs       int
	DissolveFrames int
}

// EventsFromPlan lists one event per clip slot on the absolute timeline.
// Clip cross-fades and segment fades become dissolves into the next event.
func EventsFromPlan(p *render.Plan) []EDLEvent {
	fps := float64(p.Profile.FPS)
	var events []EDLEvent
	fadeIn := 0.0
	for _, sp := range p.Segments {
		for k, slot := range sp.Slots {
			dissolve := slot.FadeIn
			if k == 0 {
				dissolve = fadeIn
			}
			start := sp.Start + slot.Start
			events = append(events, EDLEvent{
				ClipName:       clipName(slot.Clip.URL, slot.Clip.ID),
				MediaPath:      slot.Clip.URL,
				SrcInMs:        0,
				SrcOutMs:       ms(slot.RenderDuration),
				RecInMs:        ms(start),
				RecOutMs:       ms(start + slot.RenderDuration),
				DissolveFrames: int(math.Round(dissolve * fps)),
			})
		}
		fadeIn = 0
		if sp.FadeTo != nil {
			fadeIn = sp.FadeOut
		}
	}
	return events
}

func GenerateEDL(events []EDLEvent, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	for i, ev := range events {
		transition := fmt.Sprintf("%-9s", "C")
		if ev.DissolveFrames > 0 {
			transition = fmt.Sprintf("D    %03d ", ev.DissolveFrames)
		}
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s %s%s %s %s %s", i+1, "AX", "V", transition,
				msToTimecode(ev.SrcInMs, fps), msToTimecode(ev.SrcOutMs, fps),
				msToTimecode(ev.RecInMs, fps), msToTimecode(ev.RecOutMs, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", ev.ClipName),
			fmt.Sprintf("* MEDIA PATH:  %s", ev.MediaPath),
		)
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func msToTimecode(ms int, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}

func ms(seconds float64) int {
	return int(math.Round(seconds * 1000))
}

func clipName(url, fallback string) string {
	name := path.Base(url)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if name == "" || name == "." || name == "/" {
		return fallback
	}
	return name
}
