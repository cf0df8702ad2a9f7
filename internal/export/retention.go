package export

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically purges expired export outputs.
type Sweeper struct {
	orch      *Orchestrator
	retention time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cronID cron.EntryID
}

func NewSweeper(orch *Orchestrator, retention time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		orch:      orch,
		retention: retention,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start schedules the sweep with a standard five-field cron spec.
func (s *Sweeper) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(schedule, s.Sweep)
	if err != nil {
		return fmt.Errorf("failed to add retention job: %w", err)
	}
	s.cronID = id
	s.cron.Start()
	s.logger.Info("export retention sweeper started", "schedule", schedule, "retention", s.retention.String())
	return nil
}

func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.orch.Purge(ctx, s.retention)
	if err != nil {
		s.logger.Warn("export retention sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("purged expired exports", "count", n)
	}
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	<-s.cron.Stop().Done()
}
