// Package pipeline runs the ffmpeg and ffprobe executables as subprocesses:
// encode jobs with streamed progress, media probing and capability checks.
package pipeline

import (
	"strconv"
	"time"
)

// Capabilities is what the installed ffmpeg build can do, as far as the
// renderer cares.
type Capabilities struct {
	FFmpegVersion  string    `json:"ffmpeg_version"`
	FFprobeVersion string    `json:"ffprobe_version"`
	Encoders       []string  `json:"encoders"`
	Filters        []string  `json:"filters"`
	ProbedAt       time.Time `json:"probed_at"`

	HasXfade     bool `json:"has_xfade"`
	HasSubtitles bool `json:"has_subtitles"`
	HasLoudnorm  bool `json:"has_loudnorm"`
}

// RequiredFilters are the filters the render graph uses.
var RequiredFilters = []string{"xfade", "concat", "scale", "pad", "tpad", "ass", "amix", "adelay", "loudnorm", "atrim", "apad", "anullsrc"}

// Missing lists required filters and the given encoders the build lacks.
func (c *Capabilities) Missing(encoders ...string) []string {
	var missing []string
	for _, f := range RequiredFilters {
		if !contains(c.Filters, f) {
			missing = append(missing, "filter:"+f)
		}
	}
	for _, e := range encoders {
		if !contains(c.Encoders, e) {
			missing = append(missing, "encoder:"+e)
		}
	}
	return missing
}

// OK reports whether the build can render with the given encoders.
func (c *Capabilities) OK(encoders ...string) bool {
	return c != nil && c.FFmpegVersion != "" && len(c.Missing(encoders...)) == 0
}

// RunResult is the structured outcome of executing an ffmpeg subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// Progress is one block of ffmpeg's -progress output.
type Progress struct {
	OutTime time.Duration
	Frame   int64
	Speed   string
	Done    bool
}

// ProbeResult mirrors the parts of ffprobe's JSON the agent reads.
type ProbeResult struct {
	Format  FormatInfo   `json:"format"`
	Streams []StreamInfo `json:"streams"`
}

type FormatInfo struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	Bitrate    string `json:"bit_rate"`
}

type StreamInfo struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
}

// DurationSeconds is the container duration, or 0 when unknown.
func (r *ProbeResult) DurationSeconds() float64 {
	d, err := strconv.ParseFloat(r.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return d
}

// VideoSize returns the first video stream's dimensions.
func (r *ProbeResult) VideoSize() (int, int, bool) {
	for _, s := range r.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			return s.Width, s.Height, true
		}
	}
	return 0, 0, false
}

func (r *ProbeResult) HasAudio() bool {
	for _, s := range r.Streams {
		if s.CodecType == "audio" {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
