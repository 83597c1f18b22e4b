// Package screen describes the on-screen text of the claude CLI that the probe
// waits for and the parser reads. A change in the CLI's layout should only
// need an edit here.
package screen

import (
	"regexp"
	"strings"
)

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]|\x1b\].*?\x07|\x1b\[\?[0-9]+[hl]`)

// StripANSI removes CSI, private-mode and OSC escape sequences.
func StripANSI(s string) string {
	if s == "" {
		return s
	}
	return ansiRe.ReplaceAllString(s, "")
}

// Keystrokes sent to the CLI.
const (
	KeyEnter  = "\r"
	KeyTab    = "\t"
	KeyEscape = "\x1b"
)

// Layout is the set of patterns and commands for one version of the CLI.
type Layout struct {
	// Ready matches once the input prompt is usable.
	Ready []*regexp.Regexp
	// Confirm matches startup questions that are answered with Accept.
	Confirm []*regexp.Regexp
	// UsageShown matches once the usage screen has started rendering.
	UsageShown []*regexp.Regexp
	// StatusShown matches once the status tab is on screen.
	StatusShown []*regexp.Regexp

	SessionHeading string
	WeekHeading    string
	OpusHeading    string

	Email *regexp.Regexp
	Tier  *regexp.Regexp

	UsageCommand string
	ExitCommand  string
	Accept       string
}

// Default returns the layout of the current claude CLI release.
func Default() Layout {
	return Layout{
		Ready: []*regexp.Regexp{
			regexp.MustCompile(`\? for shortcuts`),
			regexp.MustCompile(`[>›]`),
		},
		Confirm: []*regexp.Regexp{
			regexp.MustCompile(`trust this`),
			regexp.MustCompile(`Do you want`),
		},
		UsageShown: []*regexp.Regexp{
			regexp.MustCompile(`\d+\s*%`),
			regexp.MustCompile(`remaining`),
			regexp.MustCompile(`used`),
			regexp.MustCompile(`\? for shortcuts`),
		},
		StatusShown: []*regexp.Regexp{
			regexp.MustCompile(`Login method`),
			regexp.MustCompile(`Version`),
		},
		SessionHeading: "Current session",
		WeekHeading:    "Current week",
		OpusHeading:    "Opus",
		Email:          regexp.MustCompile(`(?i)(?:Account|Email|Logged in as)[:\s]+(\S+@\S+)`),
		Tier:           regexp.MustCompile(`(?i)Login method:\s*Claude\s+(\w+)\s+Account`),
		UsageCommand:   "/usage",
		ExitCommand:    "/exit",
		Accept:         "y",
	}
}

// Match reports which pattern matched first in text: the index into
// patterns of the earliest match, or -1.
func Match(patterns []*regexp.Regexp, text string) int {
	best, bestPos := -1, len(text)+1
	for i, p := range patterns {
		loc := p.FindStringIndex(text)
		if loc != nil && loc[0] < bestPos {
			best, bestPos = i, loc[0]
		}
	}
	return best
}

// Tail returns the last n lines of text with escape sequences removed and
// trailing blank lines dropped. Used for error context.
func Tail(text string, n int) string {
	lines := strings.Split(strings.ReplaceAll(StripANSI(text), "\r", ""), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
