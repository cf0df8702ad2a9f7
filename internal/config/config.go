// Package config provides configuration management for the StoryReel agent.
// Configuration is loaded from environment variables (optionally seeded from
// .env files) with sensible defaults; the fixed render profile can be
// overridden from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort     = 8787
	DefaultLogLevel = "info"
	DefaultDataDir  = ".storyreel"

	// Database filename
	DBFilename = "storyreel.db"

	DefaultFFmpegPath           = "ffmpeg"
	DefaultFFprobePath          = "ffprobe"
	DefaultDownloadConcurrency  = 4
	DefaultDownloadRetries      = 2
	DefaultDownloadTimeout      = 60 * time.Second
	DefaultNarrationConcurrency = 2
	DefaultNarrationRate        = 1.0 // requests per second
	DefaultNarrationRetries     = 3
	DefaultExportRetention      = 7 * 24 * time.Hour
	DefaultRetentionSchedule    = "@hourly"
	DefaultHistoryDepth         = 100
	DefaultServiceTimeout       = 30 * time.Second
	DefaultSpeechVoice          = "narrator"

	// Environment variable names
	EnvPort                 = "STORYREEL_PORT"
	EnvLogLevel             = "STORYREEL_LOG_LEVEL"
	EnvDataDir              = "STORYREEL_DATA_DIR"
	EnvHeadless             = "STORYREEL_HEADLESS"
	EnvFFmpegPath           = "STORYREEL_FFMPEG"
	EnvFFprobePath          = "STORYREEL_FFPROBE"
	EnvDownloadConcurrency  = "STORYREEL_DOWNLOAD_CONCURRENCY"
	EnvDownloadRetries      = "STORYREEL_DOWNLOAD_RETRIES"
	EnvDownloadTimeout      = "STORYREEL_DOWNLOAD_TIMEOUT"
	EnvS3Region             = "STORYREEL_S3_REGION"
	EnvS3Profile            = "STORYREEL_S3_PROFILE"
	EnvS3Endpoint           = "STORYREEL_S3_ENDPOINT"
	EnvS3PathStyle          = "STORYREEL_S3_PATH_STYLE"
	EnvPublishBucket        = "STORYREEL_PUBLISH_BUCKET"
	EnvPublishPrefix        = "STORYREEL_PUBLISH_PREFIX"
	EnvSpeechURL            = "STORYREEL_SPEECH_URL"
	EnvSpeechAPIKey         = "STORYREEL_SPEECH_API_KEY"
	EnvSpeechVoice          = "STORYREEL_SPEECH_VOICE"
	EnvAllowedOrigins       = "STORYREEL_ALLOWED_ORIGINS"
	EnvStockURL             = "STORYREEL_STOCK_URL"
	EnvStockAPIKey          = "STORYREEL_STOCK_API_KEY"
	EnvNarrationConcurrency = "STORYREEL_NARRATION_CONCURRENCY"
	EnvNarrationRate        = "STORYREEL_NARRATION_RATE"
	EnvNarrationRetries     = "STORYREEL_NARRATION_RETRIES"
	EnvExportRetention      = "STORYREEL_EXPORT_RETENTION"
	EnvRetentionSchedule    = "STORYREEL_RETENTION_SCHEDULE"
	EnvRenderProfile        = "STORYREEL_RENDER_PROFILE"
	EnvHistoryDepth         = "STORYREEL_HISTORY_DEPTH"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	AssetsDir() string
	ExportsDir() string
	Headless() bool
	FFmpegPath() string
	FFprobePath() string
	DownloadConcurrency() int
	DownloadRetries() int
	DownloadTimeout() time.Duration
	S3Region() string
	S3Profile() string
	S3Endpoint() string
	S3UsePathStyle() bool
	PublishBucket() string
	PublishPrefix() string
	SpeechURL() string
	SpeechAPIKey() string
	SpeechVoice() string
	StockURL() string
	StockAPIKey() string
	NarrationConcurrency() int
	NarrationRate() float64
	NarrationRetries() int
	ExportRetention() time.Duration
	RetentionSchedule() string
	HistoryDepth() int
	AllowedOrigins() []string
	Render() Profile
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	headless bool

	ffmpegPath  string
	ffprobePath string

	downloadConcurrency int
	downloadRetries     int
	downloadTimeout     time.Duration

	s3Region      string
	s3Profile     string
	s3Endpoint    string
	s3PathStyle   bool
	publishBucket string
	publishPrefix string

	speechURL    string
	speechAPIKey string
	speechVoice  string
	stockURL     string
	stockAPIKey  string

	narrationConcurrency int
	narrationRate        float64
	narrationRetries     int

	exportRetention   time.Duration
	retentionSchedule string
	historyDepth      int

	allowedOrigins []string

	render Profile
}

// LoadDotEnv seeds the process environment from .env files. Missing files
// are skipped; variables already set are never overridden.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:                 DefaultPort,
		logLevel:             DefaultLogLevel,
		dataDir:              defaultDataDir(),
		ffmpegPath:           DefaultFFmpegPath,
		ffprobePath:          DefaultFFprobePath,
		downloadConcurrency:  DefaultDownloadConcurrency,
		downloadRetries:      DefaultDownloadRetries,
		downloadTimeout:      DefaultDownloadTimeout,
		narrationConcurrency: DefaultNarrationConcurrency,
		narrationRate:        DefaultNarrationRate,
		narrationRetries:     DefaultNarrationRetries,
		exportRetention:      DefaultExportRetention,
		retentionSchedule:    DefaultRetentionSchedule,
		historyDepth:         DefaultHistoryDepth,
		render:               DefaultProfile(),
	}

	var err error
	if cfg.port, err = envInt(EnvPort, cfg.port); err != nil {
		return nil, err
	}
	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
	}

	cfg.logLevel = envString(EnvLogLevel, cfg.logLevel)
	cfg.dataDir = envString(EnvDataDir, cfg.dataDir)
	cfg.ffmpegPath = envString(EnvFFmpegPath, cfg.ffmpegPath)
	cfg.ffprobePath = envString(EnvFFprobePath, cfg.ffprobePath)
	if cfg.headless, err = envBool(EnvHeadless, false); err != nil {
		return nil, err
	}

	if cfg.downloadConcurrency, err = envInt(EnvDownloadConcurrency, cfg.downloadConcurrency); err != nil {
		return nil, err
	}
	if cfg.downloadConcurrency < 1 {
		return nil, fmt.Errorf("invalid %s: must be at least 1", EnvDownloadConcurrency)
	}
	if cfg.downloadRetries, err = envInt(EnvDownloadRetries, cfg.downloadRetries); err != nil {
		return nil, err
	}
	if cfg.downloadRetries < 0 || cfg.downloadRetries > 10 {
		return nil, fmt.Errorf("invalid %s: must be between 0 and 10", EnvDownloadRetries)
	}
	if cfg.downloadTimeout, err = envDuration(EnvDownloadTimeout, cfg.downloadTimeout); err != nil {
		return nil, err
	}

	cfg.s3Region = os.Getenv(EnvS3Region)
	cfg.s3Profile = os.Getenv(EnvS3Profile)
	cfg.s3Endpoint = os.Getenv(EnvS3Endpoint)
	if cfg.s3PathStyle, err = envBool(EnvS3PathStyle, false); err != nil {
		return nil, err
	}
	cfg.publishBucket = os.Getenv(EnvPublishBucket)
	cfg.publishPrefix = envString(EnvPublishPrefix, "exports/")

	cfg.speechURL = os.Getenv(EnvSpeechURL)
	cfg.speechAPIKey = os.Getenv(EnvSpeechAPIKey)
	cfg.speechVoice = envString(EnvSpeechVoice, DefaultSpeechVoice)
	cfg.stockURL = os.Getenv(EnvStockURL)
	cfg.stockAPIKey = os.Getenv(EnvStockAPIKey)

	if cfg.narrationConcurrency, err = envInt(EnvNarrationConcurrency, cfg.narrationConcurrency); err != nil {
		return nil, err
	}
	if cfg.narrationConcurrency < 1 {
		return nil, fmt.Errorf("invalid %s: must be at least 1", EnvNarrationConcurrency)
	}
	if cfg.narrationRate, err = envFloat(EnvNarrationRate, cfg.narrationRate); err != nil {
		return nil, err
	}
	if cfg.narrationRate <= 0 {
		return nil, fmt.Errorf("invalid %s: must be positive", EnvNarrationRate)
	}
	if cfg.narrationRetries, err = envInt(EnvNarrationRetries, cfg.narrationRetries); err != nil {
		return nil, err
	}

	if cfg.exportRetention, err = envDuration(EnvExportRetention, cfg.exportRetention); err != nil {
		return nil, err
	}
	cfg.retentionSchedule = envString(EnvRetentionSchedule, cfg.retentionSchedule)
	if cfg.historyDepth, err = envInt(EnvHistoryDepth, cfg.historyDepth); err != nil {
		return nil, err
	}

	for _, origin := range strings.Split(os.Getenv(EnvAllowedOrigins), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.allowedOrigins = append(cfg.allowedOrigins, origin)
		}
	}

	if path := os.Getenv(EnvRenderProfile); path != "" {
		profile, err := LoadProfile(path)
		if err != nil {
			return nil, err
		}
		cfg.render = profile
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// AssetsDir holds downloaded media and generated narration.
func (c *EnvConfig) AssetsDir() string {
	return filepath.Join(c.dataDir, "assets")
}

// ExportsDir holds rendered videos and their sidecars.
func (c *EnvConfig) ExportsDir() string {
	return filepath.Join(c.dataDir, "exports")
}

func (c *EnvConfig) Headless() bool                 { return c.headless }
func (c *EnvConfig) FFmpegPath() string             { return c.ffmpegPath }
func (c *EnvConfig) FFprobePath() string            { return c.ffprobePath }
func (c *EnvConfig) DownloadConcurrency() int       { return c.downloadConcurrency }
func (c *EnvConfig) DownloadRetries() int           { return c.downloadRetries }
func (c *EnvConfig) DownloadTimeout() time.Duration { return c.downloadTimeout }

func (c *EnvConfig) S3Region() string      { return c.s3Region }
func (c *EnvConfig) S3Profile() string     { return c.s3Profile }
func (c *EnvConfig) S3Endpoint() string    { return c.s3Endpoint }
func (c *EnvConfig) S3UsePathStyle() bool  { return c.s3PathStyle }
func (c *EnvConfig) PublishBucket() string { return c.publishBucket }
func (c *EnvConfig) PublishPrefix() string { return c.publishPrefix }

func (c *EnvConfig) SpeechURL() string    { return c.speechURL }
func (c *EnvConfig) SpeechAPIKey() string { return c.speechAPIKey }
func (c *EnvConfig) SpeechVoice() string  { return c.speechVoice }
func (c *EnvConfig) StockURL() string     { return c.stockURL }
func (c *EnvConfig) StockAPIKey() string  { return c.stockAPIKey }

func (c *EnvConfig) NarrationConcurrency() int { return c.narrationConcurrency }
func (c *EnvConfig) NarrationRate() float64    { return c.narrationRate }
func (c *EnvConfig) NarrationRetries() int     { return c.narrationRetries }

// ExportRetention is how long finished exports are kept on disk. Zero
// disables the sweeper.
func (c *EnvConfig) ExportRetention() time.Duration {
	return c.exportRetention
}

func (c *EnvConfig) RetentionSchedule() string { return c.retentionSchedule }
func (c *EnvConfig) HistoryDepth() int         { return c.historyDepth }

// AllowedOrigins lists browser origins trusted in addition to loopback.
func (c *EnvConfig) AllowedOrigins() []string { return c.allowedOrigins }

// Render returns the fixed render profile.
func (c *EnvConfig) Render() Profile {
	return c.render
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
