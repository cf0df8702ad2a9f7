package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is the fixed output configuration every export renders with.
type Profile struct {
	Width            int     `yaml:"width" json:"width"`
	Height           int     `yaml:"height" json:"height"`
	FPS              int     `yaml:"fps" json:"fps"`
	VideoCodec       string  `yaml:"video_codec" json:"videoCodec"`
	Preset           string  `yaml:"preset" json:"preset"`
	CRF              int     `yaml:"crf" json:"crf"`
	PixelFormat      string  `yaml:"pixel_format" json:"pixelFormat"`
	AudioCodec       string  `yaml:"audio_codec" json:"audioCodec"`
	AudioBitrate     string  `yaml:"audio_bitrate" json:"audioBitrate"`
	SampleRate       int     `yaml:"sample_rate" json:"sampleRate"`
	TransitionWindow float64 `yaml:"transition_window" json:"transitionWindow"`
	ClipCrossfade    bool    `yaml:"clip_crossfade" json:"clipCrossfade"`
	LoudnessTarget   float64 `yaml:"loudness_target" json:"loudnessTarget"`
	CaptionWidth     float64 `yaml:"caption_width" json:"captionWidth"`
}

func DefaultProfile() Profile {
	return Profile{
		Width:            1080,
		Height:           1920,
		FPS:              30,
		VideoCodec:       "libx264",
		Preset:           "medium",
		CRF:              20,
		PixelFormat:      "yuv420p",
		AudioCodec:       "aac",
		AudioBitrate:     "192k",
		SampleRate:       44100,
		TransitionWindow: 0.5,
		ClipCrossfade:    true,
		LoudnessTarget:   -16,
		CaptionWidth:     0.9,
	}
}

// LoadProfile reads a YAML profile layered over the defaults.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to read render profile: %w", err)
	}
	p := DefaultProfile()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("failed to parse render profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("invalid render profile %s: %w", path, err)
	}
	return p, nil
}

func (p Profile) Validate() error {
	var errs []error
	if p.Width <= 0 || p.Height <= 0 || p.Width%2 != 0 || p.Height%2 != 0 {
		errs = append(errs, fmt.Errorf("width and height must be positive and even, got %dx%d", p.Width, p.Height))
	}
	if p.FPS <= 0 || p.FPS > 120 {
		errs = append(errs, fmt.Errorf("fps must be within 1..120, got %d", p.FPS))
	}
	if p.VideoCodec == "" || p.AudioCodec == "" {
		errs = append(errs, errors.New("video_codec and audio_codec are required"))
	}
	if p.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", p.SampleRate))
	}
	if p.TransitionWindow < 0 || p.TransitionWindow > 2 {
		errs = append(errs, fmt.Errorf("transition_window must be within 0..2 seconds, got %g", p.TransitionWindow))
	}
	if p.CaptionWidth <= 0 || p.CaptionWidth > 1 {
		errs = append(errs, fmt.Errorf("caption_width must be within (0,1], got %g", p.CaptionWidth))
	}
	if p.LoudnessTarget < -70 || p.LoudnessTarget > -5 {
		errs = append(errs, fmt.Errorf("loudness_target must be within -70..-5 LUFS, got %g", p.LoudnessTarget))
	}
	return errors.Join(errs...)
}
