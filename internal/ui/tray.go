package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/storyreel/storyreel-agent/internal/export"
)

const cancelTimeout = 5 * time.Second

// ExportMonitor is the slice of the export orchestrator the tray needs.
type ExportMonitor interface {
	Active() []export.Export
	Subscribe() (<-chan export.Event, func())
	Cancel(ctx context.Context, projectID string) (export.Export, error)
}

type Tray struct {
	exports ExportMonitor
	apiURL  string
	logger  *slog.Logger

	statusItem *systray.MenuItem
	lastItem   *systray.MenuItem
	cancelItem *systray.MenuItem

	mu sync.Mutex

	onQuit func()
}

type TrayConfig struct {
	Exports ExportMonitor
	APIURL  string
	Logger  *slog.Logger
	OnQuit  func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		exports: cfg.Exports,
		apiURL:  cfg.APIURL,
		logger:  cfg.Logger,
		onQuit:  cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("StoryReel")
	systray.SetTooltip("StoryReel Agent " + t.apiURL)

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current export status")
	t.statusItem.Disable()

	t.lastItem = systray.AddMenuItem("No exports yet", "Most recent export")
	t.lastItem.Disable()

	systray.AddSeparator()

	t.cancelItem = systray.AddMenuItem("Cancel Exports", "Cancel every rendering export")
	t.cancelItem.Disable()

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit StoryReel Agent")

	events, unsubscribe := t.exports.Subscribe()
	t.refresh()

	go func() {
		defer unsubscribe()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				t.handleEvent(ev)
			case <-t.cancelItem.ClickedCh:
				t.cancelAll()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) handleEvent(ev export.Event) {
	if ev.Type == export.EventStatus {
		t.mu.Lock()
		t.lastItem.SetTitle(lastExportTitle(ev.Export))
		t.mu.Unlock()
	}
	t.refresh()
}

// refresh re-derives the status line from the orchestrator's live exports.
func (t *Tray) refresh() {
	active := t.exports.Active()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusItem.SetTitle(statusTitle(active))
	if len(active) > 0 {
		t.cancelItem.Enable()
	} else {
		t.cancelItem.Disable()
	}
}

func (t *Tray) cancelAll() {
	for _, e := range t.exports.Active() {
		ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
		if _, err := t.exports.Cancel(ctx, e.ProjectID); err != nil {
			t.logger.Warn("failed to cancel export from tray", "project_id", e.ProjectID, "error", err)
		}
		cancel()
	}
	t.refresh()
}

func statusTitle(active []export.Export) string {
	switch len(active) {
	case 0:
		return "Status: Idle"
	case 1:
		return fmt.Sprintf("Status: Rendering %.0f%%", active[0].Progress*100)
	}
	return fmt.Sprintf("Status: Rendering %d exports", len(active))
}

func lastExportTitle(e export.Export) string {
	switch e.Status {
	case export.StatusComplete:
		return "Last export: " + e.Filename
	case export.StatusError:
		return "Last export failed: " + e.Error
	case export.StatusIdle:
		return "Last export cancelled"
	}
	return "Last export: " + string(e.Status)
}

func (t *Tray) Quit() {
	systray.Quit()
}
