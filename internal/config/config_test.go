package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv(EnvPort, "")
	t.Setenv(EnvDataDir, "")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.DownloadRetries() != DefaultDownloadRetries {
		t.Errorf("DownloadRetries() = %d, want %d", cfg.DownloadRetries(), DefaultDownloadRetries)
	}
	if cfg.Render() != DefaultProfile() {
		t.Errorf("Render() = %+v, want defaults", cfg.Render())
	}
	if !strings.HasSuffix(cfg.DBPath(), DBFilename) {
		t.Errorf("DBPath() = %s", cfg.DBPath())
	}
}

func TestNew_FromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvDataDir, dir)
	t.Setenv(EnvHeadless, "true")
	t.Setenv(EnvDownloadTimeout, "15s")
	t.Setenv(EnvNarrationRate, "0.5")
	t.Setenv(EnvAllowedOrigins, " https://studio.example.com, ,https://app.example.com")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9000 || !cfg.Headless() {
		t.Errorf("Port() = %d, Headless() = %v", cfg.Port(), cfg.Headless())
	}
	if cfg.AssetsDir() != filepath.Join(dir, "assets") {
		t.Errorf("AssetsDir() = %s", cfg.AssetsDir())
	}
	if cfg.DownloadTimeout() != 15*time.Second {
		t.Errorf("DownloadTimeout() = %v", cfg.DownloadTimeout())
	}
	if cfg.NarrationRate() != 0.5 {
		t.Errorf("NarrationRate() = %v", cfg.NarrationRate())
	}
	origins := cfg.AllowedOrigins()
	if len(origins) != 2 || origins[0] != "https://studio.example.com" || origins[1] != "https://app.example.com" {
		t.Errorf("AllowedOrigins() = %v", origins)
	}
	if cfg.SpeechVoice() != DefaultSpeechVoice {
		t.Errorf("SpeechVoice() = %q", cfg.SpeechVoice())
	}
}

func TestNew_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{EnvPort, "abc"},
		{EnvPort, "70000"},
		{EnvDownloadConcurrency, "0"},
		{EnvDownloadRetries, "50"},
		{EnvHeadless, "maybe"},
		{EnvNarrationRate, "-1"},
		{EnvExportRetention, "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := New(); err == nil {
				t.Errorf("New() should fail for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	data := "width: 1920\nheight: 1080\nfps: 25\nclip_crossfade: false\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write profile: %v", err)
	}

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if p.Width != 1920 || p.Height != 1080 || p.FPS != 25 || p.ClipCrossfade {
		t.Errorf("LoadProfile() = %+v", p)
	}
	if p.VideoCodec != "libx264" || p.TransitionWindow != 0.5 {
		t.Errorf("unset fields should keep defaults: %+v", p)
	}
}

func TestLoadProfile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	os.WriteFile(path, []byte("width: 1081\nfps: 0\n"), 0644)

	_, err := LoadProfile(path)
	if err == nil {
		t.Fatal("LoadProfile() should reject odd width and zero fps")
	}
	if !strings.Contains(err.Error(), "even") || !strings.Contains(err.Error(), "fps") {
		t.Errorf("error should report every problem, got %v", err)
	}
}

func TestNew_RenderProfileFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	os.WriteFile(path, []byte("fps: 60\n"), 0644)
	t.Setenv(EnvRenderProfile, path)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Render().FPS != 60 {
		t.Errorf("Render().FPS = %d, want 60", cfg.Render().FPS)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(path, []byte("STORYREEL_TEST_DOTENV=loaded\n"), 0644)
	t.Setenv("STORYREEL_TEST_DOTENV", "")
	os.Unsetenv("STORYREEL_TEST_DOTENV")

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("STORYREEL_TEST_DOTENV"); got != "loaded" {
		t.Errorf("STORYREEL_TEST_DOTENV = %q, want loaded", got)
	}
}
