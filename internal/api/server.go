package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/storyreel/storyreel-agent/internal/config"
	"github.com/storyreel/storyreel-agent/internal/export"
	"github.com/storyreel/storyreel-agent/internal/narration"
	"github.com/storyreel/storyreel-agent/internal/pipeline"
	"github.com/storyreel/storyreel-agent/internal/playback"
	"github.com/storyreel/storyreel-agent/internal/project"
	"github.com/storyreel/storyreel-agent/internal/stock"
	"github.com/storyreel/storyreel-agent/internal/timeline"
)

// ProjectService opens live editing sessions.
type ProjectService interface {
	Create(ctx context.Context, req project.CreateRequest) (*timeline.Editor, error)
	Open(ctx context.Context, id string) (*timeline.Editor, error)
	List(ctx context.Context) ([]project.Summary, error)
	Delete(ctx context.Context, id string) error
	OpenSessions() int
}

type ExportService interface {
	Start(ctx context.Context, p timeline.Project) (export.Export, error)
	Cancel(ctx context.Context, projectID string) (export.Export, error)
	Status(ctx context.Context, projectID string) (export.Export, error)
	Get(ctx context.Context, id string) (export.Export, error)
	Output(ctx context.Context, id string) (string, string, error)
	Active() []export.Export
	Subscribe() (<-chan export.Event, func())
}

type VoiceGenerator interface {
	Generate(ctx context.Context, segments []timeline.Segment) []narration.Voice
}

type CapabilityChecker interface {
	Get(ctx context.Context) (*pipeline.Capabilities, error)
}

// TokenStore holds the API bearer token.
type TokenStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port           int
	Version        string
	Profile        config.Profile
	Projects       ProjectService
	Exports        ExportService
	Files          playback.FileServer
	Voices         VoiceGenerator // nil when no speech service is configured
	Stock          stock.Searcher // nil when no stock service is configured
	Doctor         CapabilityChecker
	Tokens         TokenStore
	AllowedOrigins []string
	Logger         *slog.Logger
	StartTime      time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
