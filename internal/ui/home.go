package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/zsprackett/claude-usage/internal/db"
	"github.com/zsprackett/claude-usage/internal/format"
	"github.com/zsprackett/claude-usage/internal/usage"
)

// Home is the main screen: recorded probes on the left, the selected record
// in detail on the right.
type Home struct {
	*tview.Flex
	table   *tview.Table
	preview *tview.TextView
	header  *tview.TextView
	footer  *tview.TextView

	records  []db.UsageRecord
	selected int
	now      func() time.Time

	onUsage   func()
	onRefresh func()
	onQuit    func()
}

func NewHome() *Home {
	h := &Home{now: time.Now}

	h.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	h.header.SetBackgroundColor(ColorBackgroundPanel)

	h.table = tview.NewTable().
		SetSelectable(true, false).
		SetSelectedStyle(tcell.StyleDefault.
			Background(ColorSelected).
			Foreground(ColorSelectedText))
	h.table.SetBackgroundColor(ColorBackground)
	h.table.SetBorderPadding(0, 0, 0, 0)
	h.table.SetSelectionChangedFunc(func(row, col int) {
		h.selected = row
		h.updatePreview()
	})

	h.preview = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true)
	h.preview.SetBackgroundColor(ColorBackground)

	h.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	h.footer.SetBackgroundColor(ColorBackgroundPanel)
	h.footer.SetText(
		"[green]↑↓[-] navigate  [green]Enter/u[-] usage  [green]r[-] refresh  " +
			"[green]?[-] help  [green]q[-] quit")

	separator := tview.NewBox().SetBackgroundColor(ColorBorder)

	content := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(h.table, 0, 45, true).
		AddItem(separator, 1, 0, false).
		AddItem(h.preview, 0, 55, false)

	h.Flex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(h.header, 1, 0, false).
		AddItem(content, 0, 1, true).
		AddItem(h.footer, 1, 0, false)

	h.setupInput()
	return h
}

func (h *Home) SetCallbacks(onUsage, onRefresh, onQuit func()) {
	h.onUsage = onUsage
	h.onRefresh = onRefresh
	h.onQuit = onQuit
}

// Update replaces the displayed records. records is newest first.
func (h *Home) Update(records []db.UsageRecord) {
	h.records = records
	h.renderTable()
	h.updateHeader()
	h.updatePreview()
}

// SetStatus shows a transient message in the header, e.g. while probing.
func (h *Home) SetStatus(msg string) {
	h.updateHeader()
	if msg != "" {
		h.header.SetText(h.header.GetText(false) + "   [yellow]" + tview.Escape(msg) + "[-]")
	}
}

func (h *Home) renderTable() {
	h.table.Clear()
	now := h.now()
	for i, r := range h.records {
		h.table.SetCell(i, 0, tview.NewTableCell(rowText(r, now)).
			SetTextColor(rowColor(r.Snapshot)).
			SetBackgroundColor(ColorBackground).
			SetExpansion(1).
			SetSelectable(true))
	}

	// Clamp selection
	if h.selected >= len(h.records) && len(h.records) > 0 {
		h.selected = len(h.records) - 1
	}
	if len(h.records) > 0 {
		h.table.Select(h.selected, 0)
	}
}

func rowText(r db.UsageRecord, now time.Time) string {
	s := r.Snapshot
	icon, _ := ClassIcon(snapshotClass(s))
	when := humanize.RelTime(r.Time(), now, "ago", "from now")
	if s.HasError() {
		return fmt.Sprintf(" %s %-16s failed", icon, when)
	}
	return fmt.Sprintf(" %s %-16s S %-4s W %-4s", icon, when, pct(s.SessionPercent), pct(s.WeeklyPercent))
}

func rowColor(s usage.Snapshot) tcell.Color {
	_, color := ClassIcon(snapshotClass(s))
	return color
}

func snapshotClass(s usage.Snapshot) string {
	if s.HasError() {
		return format.ClassError
	}
	return format.Class(s.Primary())
}

func pct(p *int) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d%%", *p)
}

func (h *Home) updateHeader() {
	text := "[blue]CLAUDE USAGE[-]"
	if len(h.records) == 0 {
		h.header.SetText(text + "   [gray]no probes recorded[-]")
		return
	}
	latest := h.records[0].Snapshot
	if latest.AccountTier != nil {
		text += "   Claude " + tview.Escape(*latest.AccountTier)
	}
	icon, _ := ClassIcon(snapshotClass(latest))
	switch {
	case latest.HasError():
		text += fmt.Sprintf("   [red]%s last probe failed[-]", icon)
	case latest.Primary() != nil:
		text += fmt.Sprintf("   %s %d%% left", icon, *latest.Primary())
	}
	text += fmt.Sprintf("   %d records", len(h.records))
	h.header.SetText(text)
}

func (h *Home) updatePreview() {
	r, ok := h.selectedRecord()
	if !ok {
		h.preview.Clear()
		return
	}
	h.preview.SetText(recordDetail(r))
	h.preview.ScrollToBeginning()
}

// recordDetail renders one record as the plain output plus its timestamp
// and reset times.
func recordDetail(r db.UsageRecord) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[gray]%s[-]\n\n", r.Time().Local().Format(time.DateTime)))
	if r.Snapshot.HasError() {
		sb.WriteString("[red]Error:[-] " + tview.Escape(*r.Snapshot.Error) + "\n")
		return sb.String()
	}
	sb.WriteString(tview.Escape(format.Plain(r.Snapshot)) + "\n")
	if reset := r.Snapshot.SessionReset; reset != nil {
		sb.WriteString("\nSession resets " + tview.Escape(format.HumanReset(*reset)) + "\n")
	}
	if reset := r.Snapshot.WeeklyReset; reset != nil {
		sb.WriteString("Weekly resets " + tview.Escape(format.HumanReset(*reset)) + "\n")
	}
	return sb.String()
}

func (h *Home) selectedRecord() (db.UsageRecord, bool) {
	if h.selected < 0 || h.selected >= len(h.records) {
		return db.UsageRecord{}, false
	}
	return h.records[h.selected], true
}

func (h *Home) setupInput() {
	h.table.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEnter {
			if h.onUsage != nil {
				h.onUsage()
			}
			return nil
		}

		switch event.Rune() {
		case 'u':
			if h.onUsage != nil {
				h.onUsage()
			}
			return nil
		case 'r':
			if h.onRefresh != nil {
				h.onRefresh()
			}
			return nil
		case 'q':
			if h.onQuit != nil {
				h.onQuit()
			}
			return nil
		}
		return event
	})
}
