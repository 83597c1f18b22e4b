package screen_test

import (
	"regexp"
	"testing"

	"github.com/zsprackett/claude-usage/internal/screen"
)

func TestStripANSI(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"color", "\x1b[31mred text\x1b[0m", "red text"},
		{"multiple", "\x1b[1m\x1b[32mbold green\x1b[0m normal", "bold green normal"},
		{"private mode", "\x1b[?2026l\x1b[?25lhello\x1b[?2026h", "hello"},
		{"clear line", "\x1b[2K\x1b[1A\x1b[2Kcontent", "content"},
		{"osc title", "\x1b]0;claude\x07prompt", "prompt"},
		{"plain", "plain text without codes", "plain text without codes"},
		{"empty", "", ""},
		{"unicode", "█████ 50% used", "█████ 50% used"},
	}
	for _, tc := range cases {
		if got := screen.StripANSI(tc.input); got != tc.want {
			t.Errorf("%s: StripANSI(%q) = %q, want %q", tc.name, tc.input, got, tc.want)
		}
	}
}

func TestMatch_EarliestWins(t *testing.T) {
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`later`),
		regexp.MustCompile(`first`),
	}
	if got := screen.Match(patterns, "first then later"); got != 1 {
		t.Errorf("got %d want 1", got)
	}
	if got := screen.Match(patterns, "nothing here"); got != -1 {
		t.Errorf("got %d want -1", got)
	}
}

func TestDefaultLayout_ReadyAndConfirm(t *testing.T) {
	l := screen.Default()
	if screen.Match(l.Ready, "  ? for shortcuts") < 0 {
		t.Error("expected help hint to count as ready")
	}
	if screen.Match(l.Ready, "› ") < 0 {
		t.Error("expected prompt glyph to count as ready")
	}
	if screen.Match(l.Confirm, "Do you trust this folder?") < 0 {
		t.Error("expected trust prompt to match confirm patterns")
	}
	if screen.Match(l.StatusShown, " Login method: Claude Pro Account") < 0 {
		t.Error("expected status tab label to match")
	}
}

func TestTail(t *testing.T) {
	got := screen.Tail("a\r\nb\nc\n\n\n", 2)
	if got != "b\nc" {
		t.Errorf("got %q", got)
	}
}
