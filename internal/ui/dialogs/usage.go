package dialogs

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/zsprackett/claude-usage/internal/db"
	"github.com/zsprackett/claude-usage/internal/format"
	"github.com/zsprackett/claude-usage/internal/usage"
)

const (
	sparkChars   = "▁▂▃▄▅▆▇█"
	historyLimit = 48
	barWidth     = 30
)

// UsageDialog shows gauges for every quota in the latest record plus
// sparklines of recent history.
type UsageDialog struct {
	*tview.TextView
	store   *db.DB
	onClose func()
}

// NewUsageDialog creates a usage dialog that loads data from the DB.
// onClose is called when the user presses Q or Escape.
// onRefresh is called when the user presses R; it should probe the CLI, store
// the record, then call Reload to redisplay.
func NewUsageDialog(store *db.DB, onClose func(), onRefresh func()) *UsageDialog {
	d := &UsageDialog{
		TextView: tview.NewTextView(),
		store:    store,
		onClose:  onClose,
	}
	d.SetBorder(true).SetTitle(" Claude Usage ").SetTitleAlign(tview.AlignLeft)
	d.SetDynamicColors(true)
	d.SetBackgroundColor(tcell.ColorDefault)

	d.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch {
		case event.Key() == tcell.KeyEscape, event.Rune() == 'q', event.Rune() == 'Q':
			onClose()
			return nil
		case event.Rune() == 'r', event.Rune() == 'R':
			d.SetText(d.GetText(false) + "\n\n  [yellow]Refreshing...[-]")
			go onRefresh()
			return nil
		}
		return event
	})

	d.Reload()
	return d
}

// Reload re-reads the DB and updates the displayed text.
func (d *UsageDialog) Reload() {
	latest, _ := d.store.GetLatestUsage()
	history, _ := d.store.GetUsageHistory(historyLimit)
	d.SetText(BuildUsageText(latest, history))
}

// BuildUsageText renders the dialog body. history is newest first.
func BuildUsageText(latest *db.UsageRecord, history []db.UsageRecord) string {
	var sb strings.Builder

	if latest == nil {
		sb.WriteString("\n  [yellow]No usage data yet.[-]\n\n")
		sb.WriteString("  Press [green]R[-] to probe the Claude CLI.\n")
		sb.WriteString("\n  [dim]Press Q or Esc to close.[-]")
		return sb.String()
	}

	s := latest.Snapshot
	sb.WriteString("\n")
	if s.HasError() {
		sb.WriteString(fmt.Sprintf("  [red]Last probe failed:[-] %s\n\n", tview.Escape(*s.Error)))
	}

	writeQuota(&sb, "Current Session", s.SessionPercent, s.SessionReset)
	writeQuota(&sb, "Current Week", s.WeeklyPercent, s.WeeklyReset)
	writeQuota(&sb, "Opus (week)", s.OpusPercent, nil)

	if s.AccountTier != nil || s.AccountEmail != nil {
		sb.WriteString("  [yellow]Account[-]\n")
		if s.AccountTier != nil {
			sb.WriteString(fmt.Sprintf("  Claude %s\n", tview.Escape(*s.AccountTier)))
		}
		if s.AccountEmail != nil {
			sb.WriteString(fmt.Sprintf("  %s\n", tview.Escape(*s.AccountEmail)))
		}
		sb.WriteString("\n")
	}

	// Sparklines (oldest left)
	if len(history) > 1 {
		sb.WriteString("  [yellow]Remaining (newest right)[-]\n")
		sb.WriteString(fmt.Sprintf("  session %s\n", buildSparkline(history, func(s usage.Snapshot) *int { return s.SessionPercent })))
		sb.WriteString(fmt.Sprintf("  weekly  %s\n", buildSparkline(history, func(s usage.Snapshot) *int { return s.WeeklyPercent })))

		oldest := history[len(history)-1].Time()
		newest := history[0].Time()
		sb.WriteString(fmt.Sprintf("  [dim]%s  →  %s[-]\n",
			oldest.Local().Format("Jan 2 15:04"),
			newest.Local().Format("Jan 2 15:04")))
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("  [dim]Last updated: %s[-]\n", latest.Time().Local().Format(time.DateTime)))
	sb.WriteString("\n  [green]R[-] refresh  [green]Q/Esc[-] close")

	return sb.String()
}

func writeQuota(sb *strings.Builder, title string, percent *int, reset *string) {
	if percent == nil {
		return
	}
	sb.WriteString(fmt.Sprintf("  [yellow]%s[-]\n", title))
	sb.WriteString(fmt.Sprintf("  %s  %s\n", progressBar(percent, barWidth), formatPercent(percent)))
	if reset != nil {
		sb.WriteString(fmt.Sprintf("  Resets %s\n", tview.Escape(format.HumanReset(*reset))))
	}
	sb.WriteString("\n")
}

// classColor maps a remaining percentage to a tview color tag name.
func classColor(percent *int) string {
	switch format.Class(percent) {
	case format.ClassGood:
		return "green"
	case format.ClassWarning:
		return "yellow"
	case format.ClassCritical:
		return "red"
	default:
		return "gray"
	}
}

// formatPercent formats a remaining percentage as a colored string.
func formatPercent(percent *int) string {
	if percent == nil {
		return "[gray]?[-]"
	}
	return fmt.Sprintf("[%s]%d%% left[-]", classColor(percent), *percent)
}

// progressBar fills in proportion to the remaining percentage.
func progressBar(percent *int, width int) string {
	v := 0
	if percent != nil {
		v = min(max(*percent, 0), 100)
	}
	filled := v * width / 100
	empty := width - filled
	return fmt.Sprintf("[%s]%s%s[-]", classColor(percent), strings.Repeat("█", filled), strings.Repeat("░", empty))
}

// buildSparkline builds a sparkline from records (history[0] is newest).
// Records without a value, failed probes included, render as a gap.
func buildSparkline(history []db.UsageRecord, val func(usage.Snapshot) *int) string {
	runes := []rune(sparkChars)
	var sb strings.Builder
	for i := len(history) - 1; i >= 0; i-- {
		p := val(history[i].Snapshot)
		if p == nil {
			sb.WriteRune(' ')
			continue
		}
		v := min(max(*p, 0), 100)
		sb.WriteRune(runes[v*(len(runes)-1)/100])
	}
	return sb.String()
}
