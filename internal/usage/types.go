package usage

// Snapshot is the result of one usage query. Percentages are the share of
// quota remaining, 0-100. Absent values are nil and serialize as null.
type Snapshot struct {
	SessionPercent *int    `json:"session_percent"`
	WeeklyPercent  *int    `json:"weekly_percent"`
	OpusPercent    *int    `json:"opus_percent"`
	SessionReset   *string `json:"session_reset"`
	WeeklyReset    *string `json:"weekly_reset"`
	AccountEmail   *string `json:"account_email"`
	AccountTier    *string `json:"account_tier"` // e.g. "Pro", "Max"
	RawText        string  `json:"-"`
	Error          *string `json:"error"`
}

// Failed returns a snapshot carrying only an error message.
func Failed(msg string) Snapshot {
	return Snapshot{Error: String(msg)}
}

func Int(v int) *int { return &v }

func String(v string) *string { return &v }

// HasError reports whether the snapshot describes a failed query. When true,
// the other fields must be treated as absent.
func (s Snapshot) HasError() bool {
	return s.Error != nil
}

// HasData reports whether any structured field was recovered.
func (s Snapshot) HasData() bool {
	if s.HasError() {
		return false
	}
	return s.SessionPercent != nil || s.WeeklyPercent != nil || s.OpusPercent != nil ||
		s.SessionReset != nil || s.WeeklyReset != nil ||
		s.AccountEmail != nil || s.AccountTier != nil
}

// Primary is the percentage shown in compact displays: the session quota,
// falling back to the weekly quota.
func (s Snapshot) Primary() *int {
	if s.SessionPercent != nil {
		return s.SessionPercent
	}
	return s.WeeklyPercent
}
