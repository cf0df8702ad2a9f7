package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/storyreel/storyreel-agent/internal/api"
	"github.com/storyreel/storyreel-agent/internal/assets"
	"github.com/storyreel/storyreel-agent/internal/cloud"
	"github.com/storyreel/storyreel-agent/internal/config"
	"github.com/storyreel/storyreel-agent/internal/db"
	"github.com/storyreel/storyreel-agent/internal/export"
	"github.com/storyreel/storyreel-agent/internal/logging"
	"github.com/storyreel/storyreel-agent/internal/narration"
	"github.com/storyreel/storyreel-agent/internal/pipeline"
	"github.com/storyreel/storyreel-agent/internal/playback"
	"github.com/storyreel/storyreel-agent/internal/project"
	"github.com/storyreel/storyreel-agent/internal/render"
	"github.com/storyreel/storyreel-agent/internal/stock"
	"github.com/storyreel/storyreel-agent/internal/ui"
)

var Version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		return err
	}
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.AssetsDir(), cfg.ExportsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting storyreel agent", "version", Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	projectRepo := project.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(projectRepo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                  STORYREEL AGENT v%-8s                ║\n", Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// S3 is only needed for s3:// media and for publishing finished exports.
	var store cloud.ObjectStore
	var publisher export.Publisher
	if cfg.PublishBucket() != "" || cfg.S3Region() != "" || cfg.S3Endpoint() != "" {
		s3Client, err := cloud.NewS3(ctx, cloud.S3Config{
			Region:       cfg.S3Region(),
			Profile:      cfg.S3Profile(),
			Endpoint:     cfg.S3Endpoint(),
			UsePathStyle: cfg.S3UsePathStyle(),
		})
		if err != nil {
			logger.Warn("s3 unavailable, s3:// assets and publishing disabled", "error", err)
		} else {
			store = s3Client
			if cfg.PublishBucket() != "" {
				publisher = cloud.NewPublisher(s3Client, cfg.PublishBucket(), cfg.PublishPrefix())
				logger.Info("export publishing enabled", "bucket", cfg.PublishBucket(), "prefix", cfg.PublishPrefix())
			}
		}
	}

	runner := pipeline.NewRunner(pipeline.DefaultConfig(cfg.FFmpegPath(), cfg.FFprobePath(), logger))
	profile := cfg.Render()
	doctor := pipeline.NewCachedDoctor(runner, logger, profile.VideoCodec, profile.AudioCodec)

	initCtx, initCancel := context.WithTimeout(ctx, config.DefaultServiceTimeout)
	if _, err := doctor.Refresh(initCtx); err != nil {
		logger.Warn("exports will fail until ffmpeg is installed")
	}
	initCancel()

	fetcher := assets.New(assets.Options{
		Dir:         cfg.AssetsDir(),
		Store:       store,
		Concurrency: cfg.DownloadConcurrency(),
		Retries:     cfg.DownloadRetries(),
		Timeout:     cfg.DownloadTimeout(),
		Logger:      logger,
	})
	renderer := render.NewRenderer(runner, doctor, fetcher, profile, filepath.Join(cfg.DataDir(), "work"), logger)

	orch := export.NewOrchestrator(renderer, export.NewRepository(database.Conn()), export.Options{
		OutputDir: cfg.ExportsDir(),
		Publisher: publisher,
		Logger:    logger,
	})

	sweeper := export.NewSweeper(orch, cfg.ExportRetention(), logger)
	if err := sweeper.Start(cfg.RetentionSchedule()); err != nil {
		return fmt.Errorf("failed to schedule export retention: %w", err)
	}
	defer sweeper.Stop()

	projects := project.NewService(projectRepo, cfg.HistoryDepth(), logger)

	serverCfg := api.ServerConfig{
		Port:           cfg.Port(),
		Version:        Version,
		Profile:        cfg.Render(),
		Projects:       projects,
		Exports:        orch,
		Files:          playback.NewServer(logger),
		Doctor:         doctor,
		Tokens:         projectRepo,
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         logger,
		StartTime:      startTime,
	}

	if cfg.SpeechURL() != "" {
		speech := narration.NewHTTPSpeechClient(cfg.SpeechURL(), cfg.SpeechAPIKey(), cfg.SpeechVoice(), logger)
		queue := narration.NewQueue(narration.QueueOptions{
			Concurrency: cfg.NarrationConcurrency(),
			Rate:        cfg.NarrationRate(),
			Retries:     cfg.NarrationRetries(),
			Logger:      logger,
		})
		serverCfg.Voices = narration.NewGenerator(speech, runner, queue, filepath.Join(cfg.AssetsDir(), "narration"), logger)
		logger.Info("narration enabled", "speech_url", cfg.SpeechURL())
	}
	if cfg.StockURL() != "" {
		serverCfg.Stock = stock.NewHTTPSearcher(cfg.StockURL(), cfg.StockAPIKey(), logger)
		logger.Info("stock search enabled", "stock_url", cfg.StockURL())
	}

	apiServer := api.NewServer(serverCfg)

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Exports: orch,
			APIURL:  fmt.Sprintf("http://127.0.0.1:%d", cfg.Port()),
			Logger:  logger,
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Error("exports did not stop in time", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(repo project.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}
