package narration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/storyreel/storyreel-agent/internal/pipeline"
	"github.com/storyreel/storyreel-agent/internal/timeline"
)

var ErrNoText = errors.New("segment has no narration text")

// Prober measures generated audio.
type Prober interface {
	Probe(ctx context.Context, path string) (*pipeline.ProbeResult, error)
}

// Voice is a generated narration track ready to attach to a segment.
type Voice struct {
	SegmentID string  `json:"segmentId"`
	AudioURL  string  `json:"audioUrl"`
	Duration  float64 `json:"duration"`
	Err       error   `json:"-"`
}

// Generator produces narration audio for segments and stores it under dir.
type Generator struct {
	speech SpeechService
	prober Prober
	queue  *Queue
	dir    string
	logger *slog.Logger
}

func NewGenerator(speech SpeechService, prober Prober, queue *Queue, dir string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Generator{
		speech: speech,
		prober: prober,
		queue:  queue,
		dir:    dir,
		logger: logger,
	}
}

// Generate voices every segment through the queue. Results come back in
// segment order; a failed segment carries Err and nothing else.
func (g *Generator) Generate(ctx context.Context, segments []timeline.Segment) []Voice {
	voices := make([]Voice, len(segments))
	tasks := make([]Task, len(segments))
	for i, seg := range segments {
		voices[i].SegmentID = seg.ID
		tasks[i] = Task{
			Key: seg.ID,
			Run: func(ctx context.Context) error {
				v, err := g.voice(ctx, seg)
				if err != nil {
					return err
				}
				voices[i] = v
				return nil
			},
		}
	}

	for i, res := range g.queue.Run(ctx, tasks) {
		if res.Err != nil {
			voices[i] = Voice{SegmentID: res.Key, Err: res.Err}
			g.logger.Warn("narration failed", "segment_id", res.Key, "attempts", res.Attempts, "error", res.Err)
		}
	}
	return voices
}

// Apply attaches each successful voice to its segment. Failed voices leave
// their segment untouched.
func Apply(ed *timeline.Editor, voices []Voice) (applied int, err error) {
	for _, v := range voices {
		if v.Err != nil {
			continue
		}
		if err := ed.UpdateAudio(v.SegmentID, v.AudioURL, v.Duration); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func (g *Generator) voice(ctx context.Context, seg timeline.Segment) (Voice, error) {
	text := strings.TrimSpace(seg.NarrationText)
	if text == "" {
		return Voice{}, ErrNoText
	}

	audio, format, err := g.speech.GenerateSpeech(ctx, text)
	if err != nil {
		return Voice{}, err
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return Voice{}, fmt.Errorf("create narration dir: %w", err)
	}
	path := filepath.Join(g.dir, fileName(seg.ID, text, format))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, audio, 0o644); err != nil {
		return Voice{}, fmt.Errorf("write narration audio: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return Voice{}, fmt.Errorf("write narration audio: %w", err)
	}

	duration := 0.0
	if probe, err := g.prober.Probe(ctx, path); err != nil {
		g.logger.Warn("narration probe failed, estimating duration", "segment_id", seg.ID, "error", err)
	} else {
		duration = probe.DurationSeconds()
	}
	if !(duration > 0) {
		duration = EstimateDuration(text)
	}

	g.logger.Info("narration generated", "segment_id", seg.ID, "duration", duration, "bytes", len(audio))
	return Voice{
		SegmentID: seg.ID,
		AudioURL:  "file://" + filepath.ToSlash(path),
		Duration:  duration,
	}, nil
}

// fileName keys audio by segment and text so regenerated narration never
// overwrites a file a rendered export might still reference.
func fileName(segmentID, text, format string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s-%s.%s", segmentID, hex.EncodeToString(sum[:])[:8], format)
}
