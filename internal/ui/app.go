package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/zsprackett/claude-usage/internal/db"
	"github.com/zsprackett/claude-usage/internal/events"
	"github.com/zsprackett/claude-usage/internal/ui/dialogs"
)

const listLimit = 200

// RefreshFunc probes the CLI and stores the result.
type RefreshFunc func(ctx context.Context) (db.UsageRecord, error)

// App is the `top` dashboard. It implements events.Broadcaster so the poller
// can push new records into it.
type App struct {
	tapp    *tview.Application
	pages   *tview.Pages
	home    *Home
	usage   *dialogs.UsageDialog
	store   *db.DB
	refresh RefreshFunc
	logger  *slog.Logger
	ctx     context.Context

	mu         sync.Mutex
	refreshing bool
}

func NewApp(store *db.DB, refresh RefreshFunc, logger *slog.Logger) *App {
	a := &App{
		store:   store,
		refresh: refresh,
		logger:  logger,
		ctx:     context.Background(),
	}

	a.tapp = tview.NewApplication()
	a.pages = tview.NewPages()
	a.home = NewHome()

	a.pages.AddPage("home", a.home, true, true)
	a.tapp.SetRoot(a.pages, true).EnableMouse(false)
	a.tapp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == '?' {
			a.showHelp()
			return nil
		}
		return event
	})

	a.home.SetCallbacks(a.showUsage, a.onRefresh, func() { a.tapp.Stop() })
	return a
}

// Run blocks until the user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.ctx = ctx
	go func() {
		<-ctx.Done()
		a.tapp.Stop()
	}()
	a.reload()
	return a.tapp.Run()
}

// Broadcast implements events.Broadcaster.
func (a *App) Broadcast(e events.Event) {
	switch e.Type {
	case events.SnapshotRecorded:
		a.tapp.QueueUpdateDraw(a.reload)
	case events.QuotaLow:
		if e.Remaining == nil {
			return
		}
		msg := fmt.Sprintf("%s quota low: %d%% left", e.Quota, *e.Remaining)
		a.tapp.QueueUpdateDraw(func() { a.home.SetStatus(msg) })
	}
}

func (a *App) reload() {
	records, err := a.store.GetUsageHistory(listLimit)
	if err != nil {
		a.logger.Error("load usage history", "err", err)
		a.home.SetStatus("Could not read history: " + err.Error())
		return
	}
	a.home.Update(records)
	if a.usage != nil {
		a.usage.Reload()
	}
}

func (a *App) onRefresh() {
	a.mu.Lock()
	if a.refreshing || a.refresh == nil {
		a.mu.Unlock()
		return
	}
	a.refreshing = true
	a.mu.Unlock()

	a.home.SetStatus("Probing Claude CLI...")
	go func() {
		_, err := a.refresh(a.ctx)
		a.mu.Lock()
		a.refreshing = false
		a.mu.Unlock()
		a.tapp.QueueUpdateDraw(func() {
			if err != nil {
				a.logger.Warn("manual refresh failed", "err", err)
				a.home.SetStatus("Refresh failed: " + err.Error())
				return
			}
			a.reload()
		})
	}()
}

func (a *App) showDialog(name string, widget tview.Primitive, width, height int) {
	modal := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexColumn).
			AddItem(nil, 0, 1, false).
			AddItem(widget, width, 0, true).
			AddItem(nil, 0, 1, false), height, 0, true).
		AddItem(nil, 0, 1, false)
	a.pages.AddPage(name, modal, true, true)
	a.tapp.SetFocus(widget)
}

func (a *App) closeDialog(name string) {
	a.pages.RemovePage(name)
	a.tapp.SetFocus(a.home.table)
}

func (a *App) showHelp() {
	help := dialogs.HelpDialog(func() {
		a.closeDialog("help")
	})
	a.showDialog("help", help, 60, 18)
}

func (a *App) showUsage() {
	a.usage = dialogs.NewUsageDialog(a.store,
		func() {
			a.usage = nil
			a.closeDialog("usage")
		},
		func() {
			// Called off the UI goroutine; onRefresh queues its own redraw.
			a.tapp.QueueUpdateDraw(a.onRefresh)
		},
	)
	a.showDialog("usage", a.usage, 64, 30)
}
