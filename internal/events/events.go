package events

import "github.com/zsprackett/claude-usage/internal/db"

// Event types.
const (
	// Snapshot carries the latest record and is sent when a client connects.
	Snapshot         = "snapshot"
	SnapshotRecorded = "snapshot_recorded"
	QuotaLow         = "quota_low"
)

// Event is a real-time update pushed to web clients, the TUI and the
// watch printer.
type Event struct {
	Type   string          `json:"type"`
	Record *db.UsageRecord `json:"record,omitempty"`
	// Quota and Remaining are set for QuotaLow.
	Quota     string `json:"quota,omitempty"`
	Remaining *int   `json:"remaining,omitempty"`
}

// Broadcaster receives events from the poller. The poller skips a nil
// Broadcaster.
type Broadcaster interface {
	Broadcast(e Event)
}
