package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// CachedDoctor keeps the last ffmpeg capability probe for a TTL. The status
// endpoint and every export read through it.
type CachedDoctor struct {
	runner   Runner
	ttl      time.Duration
	logger   *slog.Logger
	encoders []string

	mu     sync.RWMutex
	cached *Capabilities
}

// NewCachedDoctor wraps runner. encoders are the codecs the render profile
// needs; each refresh logs whether the build still provides them.
func NewCachedDoctor(runner Runner, logger *slog.Logger, encoders ...string) *CachedDoctor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CachedDoctor{
		runner:   runner,
		ttl:      defaultCacheTTL,
		logger:   logger,
		encoders: encoders,
	}
}

func (d *CachedDoctor) fresh() bool {
	return d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl
}

// Get returns the cached capabilities while fresh. Concurrent callers that
// find the cache expired share a single probe.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.fresh() {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fresh() {
		return d.cached, nil
	}
	return d.probe(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh probes regardless of cache age. A failed probe keeps serving the
// previous result when there is one.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.probe(ctx)
}

// probe runs the doctor with d.mu held.
func (d *CachedDoctor) probe(ctx context.Context) (*Capabilities, error) {
	start := time.Now()
	caps, err := d.runner.Doctor(ctx)
	if err != nil {
		if d.cached != nil {
			d.logger.Warn("ffmpeg probe failed, keeping previous capabilities",
				"error", err,
				"ffmpeg", d.cached.FFmpegVersion,
				"probed_at", d.cached.ProbedAt)
			return d.cached, nil
		}
		d.logger.Warn("ffmpeg probe failed", "error", err)
		return nil, err
	}

	missing := caps.Missing(d.encoders...)
	attrs := []any{
		"ffmpeg", caps.FFmpegVersion,
		"ffprobe", caps.FFprobeVersion,
		"encoders", len(caps.Encoders),
		"filters", len(caps.Filters),
		"xfade", caps.HasXfade,
		"subtitles", caps.HasSubtitles,
		"loudnorm", caps.HasLoudnorm,
		"took", time.Since(start),
	}
	if len(missing) > 0 {
		d.logger.Warn("ffmpeg build lacks render components", append(attrs, "missing", missing)...)
	} else {
		d.logger.Info("ffmpeg capabilities probed", attrs...)
	}
	if prev := d.cached; prev != nil && prev.FFmpegVersion != caps.FFmpegVersion {
		d.logger.Info("ffmpeg version changed", "from", prev.FFmpegVersion, "to", caps.FFmpegVersion)
	}

	d.cached = caps
	return caps, nil
}

// Invalidate drops the cached probe; the next Get runs ffmpeg again.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
