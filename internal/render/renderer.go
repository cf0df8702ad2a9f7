package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/storyreel/storyreel-agent/internal/captions"
	"github.com/storyreel/storyreel-agent/internal/config"
	"github.com/storyreel/storyreel-agent/internal/pipeline"
	"github.com/storyreel/storyreel-agent/internal/playback"
	"github.com/storyreel/storyreel-agent/internal/timeline"
)

// Progress phases. Progress never reaches 1 here; the caller reports
// completion once the output is in place.
const (
	fetchShare  = 0.10
	renderShare = 0.89
)

// ProgressFunc receives a fraction in [0,1) and a status line.
type ProgressFunc func(fraction float64, message string)

// AssetFetcher resolves asset URLs to local files.
type AssetFetcher interface {
	FetchAll(ctx context.Context, urls []string) (map[string]string, error)
}

// CapabilityChecker reports what the local ffmpeg build supports.
type CapabilityChecker interface {
	Get(ctx context.Context) (*pipeline.Capabilities, error)
}

type Renderer struct {
	runner  pipeline.Runner
	doctor  CapabilityChecker
	fetcher AssetFetcher
	profile config.Profile
	workDir string
	logger  *slog.Logger
}

func NewRenderer(runner pipeline.Runner, doctor CapabilityChecker, fetcher AssetFetcher, profile config.Profile, workDir string, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Renderer{
		runner:  runner,
		doctor:  doctor,
		fetcher: fetcher,
		profile: profile,
		workDir: workDir,
		logger:  logger,
	}
}

func (r *Renderer) Profile() config.Profile { return r.profile }

// Render writes the project to outPath. Any asset that cannot be fetched or
// decoded fails the whole render; nothing is written to outPath on failure.
func (r *Renderer) Render(ctx context.Context, p timeline.Project, outPath string, progress ProgressFunc) error {
	if progress == nil {
		progress = func(float64, string) {}
	}
	if err := p.Validate(); err != nil {
		return err
	}
	plan := BuildPlan(p.State, r.profile)
	log := r.logger.With("project_id", p.ID)

	progress(0, "Loading assets")
	paths, err := r.fetcher.FetchAll(ctx, plan.URLs())
	if err != nil {
		return fmt.Errorf("load assets: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	progress(fetchShare/2, "Checking assets")
	if err := r.checkAssets(ctx, plan, paths); err != nil {
		return err
	}
	if err := r.checkCapabilities(ctx); err != nil {
		return err
	}
	progress(fetchShare, "Preparing render")

	if err := os.MkdirAll(r.workDir, 0755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	gb := &GraphBuilder{Plan: plan, Paths: paths}
	if plan.HasCaptions() {
		subs, err := r.writeSubtitles(plan)
		if err != nil {
			return err
		}
		defer os.Remove(subs)
		gb.Subtitles = subs
	}

	args, err := gb.Args(outPath)
	if err != nil {
		return err
	}

	tracker := newProgressTracker(plan, progress)
	log.Info("rendering project",
		"segments", len(plan.Segments),
		"duration", plan.Duration,
		"background_tracks", len(plan.Background),
	)
	if _, err := r.runner.Run(ctx, args, tracker.update); err != nil {
		os.Remove(outPath)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("render failed: %w", err)
	}
	return nil
}

// checkAssets probes every fetched file so a corrupt download fails before
// the long ffmpeg run starts.
func (r *Renderer) checkAssets(ctx context.Context, plan *Plan, paths map[string]string) error {
	want := make(map[string]string)
	for _, sp := range plan.Segments {
		for _, slot := range sp.Slots {
			if slot.Clip.Type == timeline.MediaVideo {
				want[slot.Clip.URL] = "video"
			}
		}
	}
	for _, n := range plan.Narration {
		if !n.Silent() {
			want[n.URL] = "audio"
		}
	}
	for _, b := range plan.Background {
		want[b.URL] = "audio"
	}

	for url, kind := range want {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := r.runner.Probe(ctx, paths[url])
		if err != nil {
			return fmt.Errorf("asset %s is unreadable: %w", url, err)
		}
		if kind == "audio" && !res.HasAudio() {
			return fmt.Errorf("asset %s has no audio stream", url)
		}
		if _, _, ok := res.VideoSize(); kind == "video" && !ok {
			return fmt.Errorf("asset %s has no video stream", url)
		}
	}
	return nil
}

func (r *Renderer) checkCapabilities(ctx context.Context) error {
	if r.doctor == nil {
		return nil
	}
	caps, err := r.doctor.Get(ctx)
	if err != nil {
		return fmt.Errorf("ffmpeg unavailable: %w", err)
	}
	missing := caps.Missing(r.profile.VideoCodec, r.profile.AudioCodec)
	if len(missing) > 0 {
		return fmt.Errorf("ffmpeg build lacks required components: %v", missing)
	}
	return nil
}

func (r *Renderer) writeSubtitles(plan *Plan) (string, error) {
	f, err := os.CreateTemp(r.workDir, "captions-*.ass")
	if err != nil {
		return "", fmt.Errorf("create subtitles: %w", err)
	}
	err = captions.WriteASS(f, plan.Profile.Width, plan.Profile.Height, plan.Captions)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write subtitles: %w", err)
	}
	return filepath.Clean(f.Name()), nil
}

// progressTracker turns ffmpeg out_time reports into monotonic progress with
// a per-segment status line.
type progressTracker struct {
	mu     sync.Mutex
	plan   *Plan
	report ProgressFunc
	last   float64
}

func newProgressTracker(plan *Plan, report ProgressFunc) *progressTracker {
	return &progressTracker{plan: plan, report: report, last: fetchShare}
}

func (t *progressTracker) update(p pipeline.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.plan.Duration <= 0 {
		return
	}
	at := p.OutTime.Seconds()
	frac := fetchShare + renderShare*min(1, at/t.plan.Duration)
	if frac < t.last {
		frac = t.last
	}
	t.last = frac

	seg := len(t.plan.Segments)
	if pos, ok := playback.Resolve(t.plan.State, at); ok {
		seg = pos.SegmentIndex + 1
	}
	t.report(frac, fmt.Sprintf("Rendering segment %d of %d", seg, len(t.plan.Segments)))
}
