package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics

	defaultProbeTimeout  = 30 * time.Second
	defaultDoctorTimeout = 30 * time.Second
)

// Runner executes ffmpeg and ffprobe. It is the single implementation of
// subprocess execution used throughout the agent.
type Runner interface {
	// Run executes ffmpeg with the given arguments. When onProgress is set,
	// "-progress pipe:1" is injected and each block is reported.
	Run(ctx context.Context, args []string, onProgress func(Progress)) (RunResult, error)

	// Probe runs ffprobe on a local file.
	Probe(ctx context.Context, path string) (*ProbeResult, error)

	// Doctor inspects the ffmpeg build.
	Doctor(ctx context.Context) (*Capabilities, error)
}

// Config holds the runner's configuration.
type Config struct {
	FFmpegPath    string
	FFprobePath   string
	ProbeTimeout  time.Duration
	DoctorTimeout time.Duration
	Logger        *slog.Logger
	DebugPaths    bool // if true, log full file paths; otherwise sanitise
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(ffmpeg, ffprobe string, logger *slog.Logger) Config {
	return Config{
		FFmpegPath:    ffmpeg,
		FFprobePath:   ffprobe,
		ProbeTimeout:  defaultProbeTimeout,
		DoctorTimeout: defaultDoctorTimeout,
		Logger:        logger,
	}
}

// SubprocessRunner is the production implementation of Runner.
type SubprocessRunner struct {
	cfg Config
}

func NewRunner(cfg Config) *SubprocessRunner {
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.DoctorTimeout == 0 {
		cfg.DoctorTimeout = defaultDoctorTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SubprocessRunner{cfg: cfg}
}

func (r *SubprocessRunner) Run(ctx context.Context, args []string, onProgress func(Progress)) (RunResult, error) {
	start := time.Now()
	if onProgress != nil {
		args = append([]string{"-progress", "pipe:1", "-nostats"}, args...)
	}
	cmd := exec.CommandContext(ctx, r.cfg.FFmpegPath, args...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}

	var stdout io.ReadCloser
	if onProgress != nil {
		pipe, err := cmd.StdoutPipe()
		if err != nil {
			return RunResult{ExitCode: -1}, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
		}
		stdout = pipe
	} else {
		cmd.Stdout = io.Discard
	}

	r.cfg.Logger.Info("executing ffmpeg", "args_count", len(args))
	if err := cmd.Start(); err != nil {
		return RunResult{ExitCode: -1, Duration: time.Since(start)}, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	if stdout != nil {
		ParseProgress(stdout, onProgress)
	}
	err := cmd.Wait()
	elapsed := time.Since(start)

	result := RunResult{ExitCode: exitCode(err), StderrTail: stderrBuf.String(), Duration: elapsed}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if !result.IsSuccess() {
		r.cfg.Logger.Warn("ffmpeg failed",
			"exit_code", result.ExitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(result.StderrTail, 512),
		)
		return result, fmt.Errorf("ffmpeg exited %d: %s", result.ExitCode, truncate(lastLine(result.StderrTail), 300))
	}
	r.cfg.Logger.Info("ffmpeg succeeded", "duration_ms", elapsed.Milliseconds())
	return result, nil
}

func (r *SubprocessRunner) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cfg.FFprobePath,
		"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w", r.safePath(path), err)
	}
	var result ProbeResult
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &result, nil
}

func (r *SubprocessRunner) Doctor(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.DoctorTimeout)
	defer cancel()

	version, err := r.output(ctx, r.cfg.FFmpegPath, "-hide_banner", "-version")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not usable: %w", err)
	}
	caps := &Capabilities{FFmpegVersion: parseVersion(version), ProbedAt: time.Now()}

	if v, err := r.output(ctx, r.cfg.FFprobePath, "-hide_banner", "-version"); err == nil {
		caps.FFprobeVersion = parseVersion(v)
	}
	if enc, err := r.output(ctx, r.cfg.FFmpegPath, "-hide_banner", "-encoders"); err == nil {
		caps.Encoders = parseListing(enc)
	}
	if flt, err := r.output(ctx, r.cfg.FFmpegPath, "-hide_banner", "-filters"); err == nil {
		caps.Filters = parseListing(flt)
	}
	caps.HasXfade = contains(caps.Filters, "xfade")
	caps.HasSubtitles = contains(caps.Filters, "ass")
	caps.HasLoudnorm = contains(caps.Filters, "loudnorm")

	r.cfg.Logger.Info("ffmpeg doctor complete",
		"version", caps.FFmpegVersion,
		"encoders", len(caps.Encoders),
		"filters", len(caps.Filters),
		"xfade", caps.HasXfade,
		"ass", caps.HasSubtitles,
	)
	return caps, nil
}

func (r *SubprocessRunner) output(ctx context.Context, bin string, args ...string) (string, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStderrBytes}
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", filepath.Base(bin), strings.Join(args, " "), err)
	}
	return string(out), nil
}

func (r *SubprocessRunner) safePath(path string) string {
	if r.cfg.DebugPaths {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Base(path)
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return filepath.Base(path)
}

// ParseProgress reads key=value blocks from ffmpeg's -progress output and
// reports each completed block.
func ParseProgress(r io.Reader, fn func(Progress)) {
	sc := bufio.NewScanner(r)
	var p Progress
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "frame":
			p.Frame, _ = strconv.ParseInt(value, 10, 64)
		case "out_time_us", "out_time_ms":
			// out_time_ms is microseconds too, despite its name.
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				p.OutTime = time.Duration(us) * time.Microsecond
			}
		case "speed":
			p.Speed = value
		case "progress":
			p.Done = value == "end"
			if fn != nil {
				fn(p)
			}
		}
	}
}

// parseVersion extracts "6.1.1" from "ffmpeg version 6.1.1 Copyright ...".
func parseVersion(out string) string {
	line, _, _ := strings.Cut(out, "\n")
	fields := strings.Fields(line)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return strings.TrimSpace(line)
}

// parseListing extracts names from `ffmpeg -encoders` / `-filters` tables:
// rows of a flags column followed by the name. Legend rows ("V..... = Video")
// and separators are skipped.
func parseListing(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[1] == "=" {
			continue
		}
		if strings.Trim(fields[0], "TSCVAFXBDN|.") != "" {
			continue
		}
		names = append(names, fields[1])
	}
	return names
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
