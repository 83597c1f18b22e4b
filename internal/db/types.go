package db

import (
	"time"

	"github.com/zsprackett/claude-usage/internal/usage"
)

// UsageRecord is one stored probe result. The raw CLI text is not kept.
type UsageRecord struct {
	ID       int64          `json:"id"`
	TsMs     int64          `json:"ts_ms"`
	Snapshot usage.Snapshot `json:"snapshot"`
}

func (r UsageRecord) Time() time.Time {
	return time.UnixMilli(r.TsMs)
}
