package usage_test

import (
	"strconv"
	"testing"

	"github.com/zsprackett/claude-usage/internal/usage"
)

// rawProOutput is a capture of the usage and status tabs, escape sequences
// included.
const rawProOutput = "\n" +
	"\x1b[?2026l\x1b[?25l\x1b[?2004h\x1b[?1004h\x1b[?2026h\x1b[2K\x1b[1A\x1b[2K\x1b[1A\x1b[2K\x1b[G\n" +
	"────────────────────────────────────────────────────────────────────────────────\n" +
	"> /usage\n" +
	"\n" +
	"────────────────────────────────────────────────────────────────────────────────\n" +
	"  /usage           Show plan usage limits\n" +
	"\x1b[?2026l\x1b[?2026h\x1b[2K\x1b[1A\x1b[2K\x1b[1A\x1b[2K\x1b[G\n" +
	"> /usage\n" +
	"────────────────────────────────────────────────────────────────────────────────\n" +
	" Settings:  Status   Config   Usage  (tab to cycle)\n" +
	"\n" +
	" Current session\n" +
	" \x1b[38;5;75m██████████████████████████████████████████████████\x1b[39m 74% used\n" +
	" Resets 4pm (Europe/Tallinn)\n" +
	"\n" +
	" Current week (all models)\n" +
	" ███████▌                                           15% used\n" +
	" Resets Jan 1, 2026, 10:59am (Europe/Tallinn)\n" +
	"\n" +
	" Extra usage\n" +
	" Extra usage not enabled • /extra-usage to enable\n" +
	"\n" +
	" Esc to cancel\n" +
	"\x1b[?2026l\n" +
	": 2.0.74\n" +
	" Session ID: b2f8ef7e-a764-42e5-91e6-86ac1bc302db\n" +
	" cwd: /home/jane/src/claude-usage\n" +
	" Login method: Claude Pro Account\n" +
	" Organization: jane@example.org's Organization\n" +
	" Email: jane@example.org\n" +
	"\n" +
	" Model: Default Sonnet 4.5 · Best for everyday tasks\n" +
	" Esc to cancel\n" +
	"\x1b[?2026l\n"

const rawMaxOutput = `
> /usage
────────────────────────────────────────────────────────────────────────────────
 Settings:  Status   Config   Usage  (tab to cycle)

 Current session
 █████████████                                      26% used
 Resets 4pm (Europe/Tallinn)

 Current week (all models)
 ██████████████████████████████████████████████▌    94% used
 Resets Jan 5, 2026

 Opus
 ███████████████████████████████████████████████    95% used
 Resets Jan 5, 2026

 Login method: Claude Max Account
 Email: user@example.com
`

func intVal(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func strVal(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func TestParse_ProAccount(t *testing.T) {
	s := usage.Parse(rawProOutput)

	if got := intVal(s.SessionPercent); got != 26 {
		t.Errorf("session: got %v want 26", got)
	}
	if got := intVal(s.WeeklyPercent); got != 85 {
		t.Errorf("weekly: got %v want 85", got)
	}
	if s.OpusPercent != nil {
		t.Errorf("opus: got %v want nil", *s.OpusPercent)
	}
	if got := strVal(s.SessionReset); got != "4pm (Europe/Tallinn)" {
		t.Errorf("session reset: got %v", got)
	}
	if got := strVal(s.WeeklyReset); got != "Jan 1, 2026, 10:59am (Europe/Tallinn)" {
		t.Errorf("weekly reset: got %v", got)
	}
	if got := strVal(s.AccountTier); got != "Pro" {
		t.Errorf("tier: got %v want Pro", got)
	}
	if got := strVal(s.AccountEmail); got != "jane@example.org" {
		t.Errorf("email: got %v", got)
	}
	if s.Error != nil {
		t.Errorf("unexpected error: %s", *s.Error)
	}
	if s.RawText != rawProOutput {
		t.Error("raw text not preserved")
	}
}

func TestParse_MaxAccountWithOpus(t *testing.T) {
	s := usage.Parse(rawMaxOutput)

	if got := intVal(s.SessionPercent); got != 74 {
		t.Errorf("session: got %v want 74", got)
	}
	if got := intVal(s.WeeklyPercent); got != 6 {
		t.Errorf("weekly: got %v want 6", got)
	}
	if got := intVal(s.OpusPercent); got != 5 {
		t.Errorf("opus: got %v want 5", got)
	}
	if got := strVal(s.AccountTier); got != "Max" {
		t.Errorf("tier: got %v want Max", got)
	}
	if got := strVal(s.AccountEmail); got != "user@example.com" {
		t.Errorf("email: got %v", got)
	}
	if got := strVal(s.WeeklyReset); got != "Jan 5, 2026" {
		t.Errorf("weekly reset: got %v", got)
	}
}

func TestParse_SeparatedSections(t *testing.T) {
	raw := "Current session\n█████ 26% used\nResets 4pm (Europe/Tallinn)\n" +
		"Current week (all models)\n███ 94% used\nResets Jan 5, 2026\n" +
		"Login method: Claude Max Account\n" +
		"Email: user@example.com\n"
	s := usage.Parse(raw)
	if intVal(s.SessionPercent) != 74 || intVal(s.WeeklyPercent) != 6 {
		t.Errorf("got session=%v weekly=%v", intVal(s.SessionPercent), intVal(s.WeeklyPercent))
	}
	if strVal(s.AccountTier) != "Max" || strVal(s.AccountEmail) != "user@example.com" {
		t.Errorf("got tier=%v email=%v", strVal(s.AccountTier), strVal(s.AccountEmail))
	}
}

func TestParse_EmptyInput(t *testing.T) {
	s := usage.Parse("")
	if s.HasData() {
		t.Errorf("expected no data, got %+v", s)
	}
	if s.Error != nil {
		t.Error("empty input must not be an error")
	}
}

func TestParse_PartialData(t *testing.T) {
	raw := `
        Current session
        █████████████ 50% used
        Resets 4pm
        `
	s := usage.Parse(raw)
	if got := intVal(s.SessionPercent); got != 50 {
		t.Errorf("session: got %v want 50", got)
	}
	if s.WeeklyPercent != nil {
		t.Errorf("weekly: got %v want nil", *s.WeeklyPercent)
	}
	if got := strVal(s.SessionReset); got != "4pm" {
		t.Errorf("session reset: got %v", got)
	}
}

func TestParse_UsedConvertedToRemaining(t *testing.T) {
	for used := 0; used <= 100; used++ {
		raw := "Current session\n█ " + strconv.Itoa(used) + "% used\n"
		s := usage.Parse(raw)
		if got := intVal(s.SessionPercent); got != 100-used {
			t.Fatalf("%d%% used: got %v want %d", used, got, 100-used)
		}
	}
}

func TestParse_RemainingKeptAsIs(t *testing.T) {
	s := usage.Parse("Current session\n█████ 30% remaining\nCurrent week\n█ 40% left\n")
	if got := intVal(s.SessionPercent); got != 30 {
		t.Errorf("session: got %v want 30", got)
	}
	if got := intVal(s.WeeklyPercent); got != 40 {
		t.Errorf("weekly: got %v want 40", got)
	}
}

func TestParse_OutOfRangeClamped(t *testing.T) {
	s := usage.Parse("Current session\n█ 250% used\n")
	if got := intVal(s.SessionPercent); got != 0 {
		t.Errorf("got %v want 0", got)
	}
}

func TestParse_FirstHeadingWins(t *testing.T) {
	raw := "Current session\n█ 10% used\n\nCurrent session\n█ 90% used\n"
	s := usage.Parse(raw)
	if got := intVal(s.SessionPercent); got != 90 {
		t.Errorf("got %v want 90 (100-10)", got)
	}
}

func TestSectionPercent(t *testing.T) {
	cases := []struct {
		name string
		text string
		want int
		used bool
	}{
		{"single digit", "Current session\n█ 5% used", 5, true},
		{"hundred", "Current session\n██████████ 100% used", 100, true},
		{"remaining", "Current session\n█████ 30% remaining", 30, false},
		{"bare", "Current session\n█████ 12%", 12, true},
		{"case insensitive", "CURRENT SESSION\n█ 7% USED", 7, true},
	}
	for _, tc := range cases {
		r := usage.SectionPercent(tc.text, "Current session")
		if r == nil {
			t.Errorf("%s: got nil", tc.name)
			continue
		}
		if r.Value != tc.want || r.Used != tc.used {
			t.Errorf("%s: got %+v want value=%d used=%v", tc.name, *r, tc.want, tc.used)
		}
	}
	if r := usage.SectionPercent("Current session\nno numbers", "Current session"); r != nil {
		t.Errorf("expected nil, got %+v", *r)
	}
}

func TestSectionReset_MissingSection(t *testing.T) {
	if got := usage.SectionReset(rawMaxOutput, "Nonexistent section"); got != nil {
		t.Errorf("expected nil, got %q", *got)
	}
}

func TestParse_EmailLabels(t *testing.T) {
	cases := map[string]string{
		"Account: user@example.com":       "user@example.com",
		"Email: someone@example.net":      "someone@example.net",
		"Logged in as dev@example.io":     "dev@example.io",
		"Some text without email":         "",
		"Organization: org@example.com's": "",
	}
	for input, want := range cases {
		got := strVal(usage.Parse(input).AccountEmail)
		if want == "" {
			if got != nil {
				t.Errorf("%q: expected no email, got %v", input, got)
			}
			continue
		}
		if got != want {
			t.Errorf("%q: got %v want %q", input, got, want)
		}
	}
}

func TestParse_TierMissing(t *testing.T) {
	if s := usage.Parse("Some text without tier info"); s.AccountTier != nil {
		t.Errorf("expected nil tier, got %q", *s.AccountTier)
	}
}
