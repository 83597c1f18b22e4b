package usage

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/zsprackett/claude-usage/internal/screen"
)

// Parse extracts a Snapshot from raw CLI output using the default screen
// layout. It never fails: missing data leaves fields nil.
func Parse(raw string) Snapshot {
	return ParseWith(screen.Default(), raw)
}

// ParseWith is Parse with an explicit layout.
func ParseWith(l screen.Layout, raw string) Snapshot {
	clean := screen.StripANSI(raw)
	return Snapshot{
		SessionPercent: remaining(SectionPercent(clean, l.SessionHeading)),
		WeeklyPercent:  remaining(SectionPercent(clean, l.WeekHeading)),
		OpusPercent:    remaining(SectionPercent(clean, l.OpusHeading)),
		SessionReset:   SectionReset(clean, l.SessionHeading),
		WeeklyReset:    SectionReset(clean, l.WeekHeading),
		AccountEmail:   firstGroup(l.Email, clean),
		AccountTier:    firstGroup(l.Tier, clean),
		RawText:        raw,
	}
}

// Reading is a percentage as printed under a section heading.
type Reading struct {
	Value int
	// Used is true for "N% used" and for a bare "N%"; false for
	// "N% remaining" and "N% left".
	Used bool
}

// SectionPercent finds the first percentage after the line containing
// heading. Only the first occurrence of heading is considered.
//
// The CLI prints:
//
//	Current session
//	█████████████                                      26% used
func SectionPercent(text, heading string) *Reading {
	if heading == "" {
		return nil
	}
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(heading) + `[^\n]*\n[^%]*?(\d{1,3})\s*%\s*(used|remaining|left)?`)
	if err != nil {
		return nil
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	suffix := strings.ToLower(m[2])
	return &Reading{Value: n, Used: suffix != "remaining" && suffix != "left"}
}

// SectionReset finds a "Resets <when>" line within four lines of heading.
func SectionReset(text, heading string) *string {
	if heading == "" {
		return nil
	}
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(heading) + `[^\n]*\n(?:[^\n]*\n){0,3}[^\n]*Resets?\s+([^\n]+)`)
	if err != nil {
		return nil
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	when := strings.TrimSpace(m[1])
	if when == "" {
		return nil
	}
	return &when
}

// remaining converts a reading to the remaining share, clamped to 0-100.
func remaining(r *Reading) *int {
	if r == nil {
		return nil
	}
	v := r.Value
	if r.Used {
		v = 100 - v
	}
	v = max(0, min(100, v))
	return &v
}

func firstGroup(re *regexp.Regexp, text string) *string {
	if re == nil {
		return nil
	}
	m := re.FindStringSubmatch(text)
	if len(m) < 2 || m[1] == "" {
		return nil
	}
	v := m[1]
	return &v
}
