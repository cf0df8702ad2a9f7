package render

import (
	"fmt"
	"path/filepath"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/storyreel/storyreel-agent/internal/timeline"
)

// GraphBuilder compiles a plan into a single ffmpeg invocation. Paths maps
// every asset URL of the plan to a local file; Subtitles is an optional ASS
// script burned in after the segments are joined.
type GraphBuilder struct {
	Plan      *Plan
	Paths     map[string]string
	Subtitles string

	err error
}

// Args returns the ffmpeg argument vector (without the binary) writing the
// rendered video to outPath.
func (b *GraphBuilder) Args(outPath string) ([]string, error) {
	p := b.Plan
	if p == nil || len(p.Segments) == 0 {
		return nil, fmt.Errorf("nothing to render")
	}

	video := b.video()
	audio := b.audio()
	if b.err != nil {
		return nil, b.err
	}

	prof := p.Profile
	out := ffmpeg.Output([]*ffmpeg.Stream{video, audio}, outPath, ffmpeg.KwArgs{
		"c:v":      prof.VideoCodec,
		"preset":   prof.Preset,
		"crf":      prof.CRF,
		"pix_fmt":  prof.PixelFormat,
		"r":        prof.FPS,
		"c:a":      prof.AudioCodec,
		"b:a":      prof.AudioBitrate,
		"ar":       prof.SampleRate,
		"t":        secs(p.Duration),
		"movflags": "+faststart",
	}).OverWriteOutput()
	return out.GetArgs(), nil
}

func (b *GraphBuilder) video() *ffmpeg.Stream {
	segments := make([]*ffmpeg.Stream, 0, len(b.Plan.Segments))
	for _, sp := range b.Plan.Segments {
		segments = append(segments, b.segment(sp))
	}
	v := concat(segments, 1, 0)
	if b.Subtitles != "" {
		v = v.Filter("ass", ffmpeg.Args{filepath.ToSlash(b.Subtitles)})
	}
	return v.Filter("format", ffmpeg.Args{b.Plan.Profile.PixelFormat})
}

// segment chains the clip slots and, for a fade, blends in a still of the
// next segment's first clip over the last FadeOut seconds. The result is
// exactly sp.Duration long.
func (b *GraphBuilder) segment(sp SegmentPlan) *ffmpeg.Stream {
	var v *ffmpeg.Stream
	var cuts []*ffmpeg.Stream
	for _, slot := range sp.Slots {
		s := b.clip(slot.Clip, sp.Start+slot.Start, slot.RenderDuration)
		switch {
		case v == nil:
			v = s
		case slot.FadeIn > 0:
			v = xfade(v, s, slot.FadeIn, slot.Start)
		default:
			cuts = append(cuts, s)
		}
	}
	if len(cuts) > 0 {
		v = concat(append([]*ffmpeg.Stream{v}, cuts...), 1, 0)
	}

	if sp.FadeTo != nil {
		still := b.still(*sp.FadeTo, sp.End()-sp.FadeOut, sp.FadeOut)
		v = xfade(v, still, sp.FadeOut, sp.Duration-sp.FadeOut)
	}
	return v
}

// clip renders one media clip from its time zero for d seconds. Inputs are
// offset to their timeline position, which also keeps media reused in
// several slots as distinct graph nodes.
func (b *GraphBuilder) clip(c timeline.MediaClip, at, d float64) *ffmpeg.Stream {
	kw := ffmpeg.KwArgs{"t": secs(d), "itsoffset": secs(at)}
	if c.Type == timeline.MediaImage {
		kw["loop"] = 1
		kw["framerate"] = b.Plan.Profile.FPS
	} else {
		kw["stream_loop"] = -1
	}
	in := ffmpeg.Input(b.path(c.URL), kw).Video()
	return b.normalize(in).
		Filter("trim", nil, ffmpeg.KwArgs{"duration": secs(d)}).
		Filter("setpts", ffmpeg.Args{"PTS-STARTPTS"})
}

// still holds the first frame of a clip for d seconds.
func (b *GraphBuilder) still(c timeline.MediaClip, at, d float64) *ffmpeg.Stream {
	var in *ffmpeg.Stream
	if c.Type == timeline.MediaImage {
		in = ffmpeg.Input(b.path(c.URL), ffmpeg.KwArgs{
			"loop":      1,
			"framerate": b.Plan.Profile.FPS,
			"t":         secs(d),
			"itsoffset": secs(at),
		}).Video()
	} else {
		in = ffmpeg.Input(b.path(c.URL), ffmpeg.KwArgs{"itsoffset": secs(at)}).Video().
			Filter("trim", nil, ffmpeg.KwArgs{"end_frame": 1}).
			Filter("tpad", nil, ffmpeg.KwArgs{"stop_mode": "clone", "stop_duration": secs(d)})
	}
	return b.normalize(in).
		Filter("trim", nil, ffmpeg.KwArgs{"duration": secs(d)}).
		Filter("setpts", ffmpeg.Args{"PTS-STARTPTS"})
}

// normalize letterboxes into the output frame and fixes rate and format so
// xfade and concat accept the streams.
func (b *GraphBuilder) normalize(s *ffmpeg.Stream) *ffmpeg.Stream {
	prof := b.Plan.Profile
	w, h := strconv.Itoa(prof.Width), strconv.Itoa(prof.Height)
	return s.
		Filter("scale", ffmpeg.Args{w, h}, ffmpeg.KwArgs{"force_original_aspect_ratio": "decrease"}).
		Filter("pad", ffmpeg.Args{w, h, "(ow-iw)/2", "(oh-ih)/2"}, ffmpeg.KwArgs{"color": "black"}).
		Filter("setsar", ffmpeg.Args{"1"}).
		Filter("fps", ffmpeg.Args{strconv.Itoa(prof.FPS)}).
		Filter("format", ffmpeg.Args{prof.PixelFormat})
}

// audio concatenates narration (or silence) per segment, mixes background
// tracks over it and normalizes loudness. The mix follows the narration
// length.
func (b *GraphBuilder) audio() *ffmpeg.Stream {
	p := b.Plan
	pieces := make([]*ffmpeg.Stream, 0, len(p.Narration))
	for _, n := range p.Narration {
		pieces = append(pieces, b.narration(n))
	}
	mix := concat(pieces, 0, 1)

	if len(p.Background) > 0 {
		inputs := []*ffmpeg.Stream{mix}
		for _, bg := range p.Background {
			inputs = append(inputs, b.background(bg))
		}
		mix = ffmpeg.Filter(inputs, "amix", nil, ffmpeg.KwArgs{
			"inputs":             len(inputs),
			"duration":           "first",
			"dropout_transition": 0,
		})
	}

	return mix.
		Filter("loudnorm", nil, ffmpeg.KwArgs{
			"I":   strconv.FormatFloat(p.Profile.LoudnessTarget, 'f', 1, 64),
			"TP":  "-1.5",
			"LRA": "11",
		}).
		Filter("aresample", ffmpeg.Args{strconv.Itoa(p.Profile.SampleRate)}).
		Filter("atrim", nil, ffmpeg.KwArgs{"duration": secs(p.Duration)}).
		Filter("asetpts", ffmpeg.Args{"PTS-STARTPTS"})
}

func (b *GraphBuilder) narration(n NarrationPiece) *ffmpeg.Stream {
	var s *ffmpeg.Stream
	if n.Silent() {
		src := fmt.Sprintf("anullsrc=r=%d:cl=stereo", b.Plan.Profile.SampleRate)
		s = ffmpeg.Input(src, ffmpeg.KwArgs{"f": "lavfi", "t": secs(n.Duration), "itsoffset": secs(n.Offset)}).Audio().
			Filter("asetpts", ffmpeg.Args{"PTS-STARTPTS"})
	} else {
		s = ffmpeg.Input(b.path(n.URL), ffmpeg.KwArgs{"itsoffset": secs(n.Offset)}).Audio().
			Filter("atrim", nil, ffmpeg.KwArgs{"duration": secs(n.Duration)}).
			Filter("asetpts", ffmpeg.Args{"PTS-STARTPTS"}).
			Filter("volume", ffmpeg.Args{secs(n.Volume)}).
			Filter("apad", nil, ffmpeg.KwArgs{"whole_dur": secs(n.Duration)})
	}
	return b.audioFormat(s)
}

func (b *GraphBuilder) background(bg BackgroundPlacement) *ffmpeg.Stream {
	s := ffmpeg.Input(b.path(bg.URL), ffmpeg.KwArgs{"itsoffset": secs(bg.Delay)}).Audio().
		Filter("atrim", nil, ffmpeg.KwArgs{"duration": secs(bg.Duration)}).
		Filter("asetpts", ffmpeg.Args{"PTS-STARTPTS"}).
		Filter("volume", ffmpeg.Args{secs(bg.Volume)}).
		Filter("adelay", nil, ffmpeg.KwArgs{
			"delays": strconv.FormatInt(int64(bg.Delay*1000+0.5), 10),
			"all":    1,
		})
	return b.audioFormat(s)
}

func (b *GraphBuilder) audioFormat(s *ffmpeg.Stream) *ffmpeg.Stream {
	return s.Filter("aformat", nil, ffmpeg.KwArgs{
		"sample_fmts":     "fltp",
		"sample_rates":    b.Plan.Profile.SampleRate,
		"channel_layouts": "stereo",
	})
}

func (b *GraphBuilder) path(url string) string {
	p, ok := b.Paths[url]
	if !ok && b.err == nil {
		b.err = fmt.Errorf("asset %s was not fetched", url)
	}
	return p
}

func xfade(a, b *ffmpeg.Stream, duration, offset float64) *ffmpeg.Stream {
	return ffmpeg.Filter([]*ffmpeg.Stream{a, b}, "xfade", nil, ffmpeg.KwArgs{
		"transition": "fade",
		"duration":   secs(duration),
		"offset":     secs(offset),
	})
}

func concat(streams []*ffmpeg.Stream, v, a int) *ffmpeg.Stream {
	if len(streams) == 1 {
		return streams[0]
	}
	return ffmpeg.Concat(streams, ffmpeg.KwArgs{"v": v, "a": a})
}

func secs(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}
