// Package format renders usage snapshots for Waybar, terminals and other
// programs. Every function is pure: the same snapshot always yields the same
// output.
package format

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/zsprackett/claude-usage/internal/usage"
)

// Severity classes, used as the Waybar CSS class.
const (
	ClassGood     = "good"
	ClassWarning  = "warning"
	ClassCritical = "critical"
	ClassUnknown  = "unknown"
	ClassError    = "error"
)

// Class buckets a remaining percentage. Higher means more quota left.
func Class(percent *int) string {
	switch {
	case percent == nil:
		return ClassUnknown
	case *percent > 50:
		return ClassGood
	case *percent >= 20:
		return ClassWarning
	default:
		return ClassCritical
	}
}

// WaybarOutput is the record read by a Waybar custom module with
// "return-type": "json". All four keys are always present.
type WaybarOutput struct {
	Text       string `json:"text"`
	Tooltip    string `json:"tooltip"`
	Percentage int    `json:"percentage"`
	Class      string `json:"class"`
}

// Waybar builds the status-bar record for s.
func Waybar(s usage.Snapshot) WaybarOutput {
	if s.HasError() {
		return WaybarOutput{
			Text:       "⚠",
			Tooltip:    "Error: " + *s.Error,
			Percentage: 0,
			Class:      ClassError,
		}
	}

	primary := s.Primary()
	if primary == nil {
		return WaybarOutput{
			Text:       "?",
			Tooltip:    "Could not parse usage data",
			Percentage: 0,
			Class:      ClassUnknown,
		}
	}

	var parts []string
	if s.AccountTier != nil {
		parts = append(parts, "Claude "+*s.AccountTier)
	}
	if s.SessionPercent != nil {
		parts = append(parts, fmt.Sprintf("Session: %d%%%s", *s.SessionPercent, resetSuffix(s.SessionReset)))
	}
	if s.WeeklyPercent != nil {
		parts = append(parts, fmt.Sprintf("Weekly: %d%%%s", *s.WeeklyPercent, resetSuffix(s.WeeklyReset)))
	}
	tooltip := "Claude Usage"
	if len(parts) > 0 {
		tooltip = strings.Join(parts, "\n")
	}

	return WaybarOutput{
		Text:       fmt.Sprintf("%d%%", *primary),
		Tooltip:    tooltip,
		Percentage: *primary,
		Class:      Class(primary),
	}
}

// WaybarJSON is Waybar encoded as a single JSON line.
func WaybarJSON(s usage.Snapshot) ([]byte, error) {
	return json.Marshal(Waybar(s))
}

func resetSuffix(reset *string) string {
	if reset == nil {
		return ""
	}
	return " (resets " + HumanReset(*reset) + ")"
}

var (
	zoneSuffixRe = regexp.MustCompile(`\s*\((?:[A-Za-z][A-Za-z0-9_+\-]*(?:/[A-Za-z0-9_+\-]+)+|[A-Z]{2,5}|UTC[+\-]\d{1,2}(?::?\d{2})?)\)\s*$`)
	clock12Re    = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
)

// HumanReset shortens a reset time as printed by the CLI: a trailing zone
// such as "(Region/City)" or "(UTC)" is dropped and 12-hour times become
// 24-hour. Other parentheticals are kept.
//
//	"4pm (Europe/Tallinn)"              -> "16:00"
//	"Jan 1, 2026, 10:59am (Europe/Tallinn)" -> "Jan 1, 2026, 10:59"
func HumanReset(s string) string {
	s = zoneSuffixRe.ReplaceAllString(strings.TrimSpace(s), "")
	return clock12Re.ReplaceAllStringFunc(s, func(m string) string {
		g := clock12Re.FindStringSubmatch(m)
		h, err := strconv.Atoi(g[1])
		if err != nil || h < 1 || h > 12 {
			return m
		}
		mins := 0
		if g[2] != "" {
			mins, _ = strconv.Atoi(g[2])
		}
		if mins > 59 {
			return m
		}
		h %= 12
		if strings.EqualFold(g[3], "pm") {
			h += 12
		}
		return fmt.Sprintf("%02d:%02d", h, mins)
	})
}

// Plain renders one "Label: value" line per present field.
func Plain(s usage.Snapshot) string {
	if s.HasError() {
		return "Error: " + *s.Error
	}

	var lines []string
	if s.AccountTier != nil {
		lines = append(lines, "Tier: Claude "+*s.AccountTier)
	}
	if s.AccountEmail != nil {
		lines = append(lines, "Account: "+*s.AccountEmail)
	}
	if s.WeeklyPercent != nil {
		lines = append(lines, fmt.Sprintf("Weekly: %d%%", *s.WeeklyPercent))
	}
	if s.SessionPercent != nil {
		lines = append(lines, fmt.Sprintf("Session: %d%%", *s.SessionPercent))
	}
	if s.OpusPercent != nil {
		lines = append(lines, fmt.Sprintf("Opus: %d%%", *s.OpusPercent))
	}
	if len(lines) == 0 {
		return "No usage data available"
	}
	return strings.Join(lines, "\n")
}

// JSON renders every field of s, absent ones as null.
func JSON(s usage.Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
