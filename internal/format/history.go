package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/zsprackett/claude-usage/internal/db"
	"github.com/zsprackett/claude-usage/internal/usage"
)

var historyHeader = []string{"WHEN", "SESSION", "WEEKLY", "OPUS", "TIER", "NOTE"}

// History renders records as an aligned table, one row per record, with
// capture times relative to now. Lines wider than width are truncated;
// width <= 0 means no limit.
func History(records []db.UsageRecord, now time.Time, width int) string {
	if len(records) == 0 {
		return "No usage history recorded"
	}

	rows := [][]string{historyHeader}
	for _, r := range records {
		s := r.Snapshot
		note := ""
		if s.HasError() {
			note = *s.Error
		}
		tier := ""
		if s.AccountTier != nil {
			tier = *s.AccountTier
		}
		rows = append(rows, []string{
			humanize.RelTime(r.Time(), now, "ago", "from now"),
			percentCell(s, s.SessionPercent),
			percentCell(s, s.WeeklyPercent),
			percentCell(s, s.OpusPercent),
			tier,
			note,
		})
	}

	widths := make([]int, len(historyHeader))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	var b strings.Builder
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			if i == len(row)-1 {
				cells[i] = cell
				continue
			}
			cells[i] = runewidth.FillRight(cell, widths[i])
		}
		line := strings.TrimRight(strings.Join(cells, "  "), " ")
		if width > 0 && runewidth.StringWidth(line) > width {
			line = runewidth.Truncate(line, width, "…")
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func percentCell(s usage.Snapshot, p *int) string {
	if s.HasError() || p == nil {
		return "-"
	}
	return fmt.Sprintf("%d%%", *p)
}
