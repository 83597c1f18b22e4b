package db

import (
	"database/sql"
	"errors"

	"github.com/zsprackett/claude-usage/internal/usage"
)

const usageColumns = `id, ts_ms, session_percent, weekly_percent, opus_percent,
	session_reset, weekly_reset, account_email, account_tier, error`

// InsertUsage stores s captured at tsMs and returns the new row id.
func (d *DB) InsertUsage(tsMs int64, s usage.Snapshot) (int64, error) {
	res, err := d.sql.Exec(`
		INSERT INTO usage_snapshots (
			ts_ms, session_percent, weekly_percent, opus_percent,
			session_reset, weekly_reset, account_email, account_tier, error
		) VALUES (?,?,?,?,?,?,?,?,?)`,
		tsMs, nullInt(s.SessionPercent), nullInt(s.WeeklyPercent), nullInt(s.OpusPercent),
		nullString(s.SessionReset), nullString(s.WeeklyReset),
		nullString(s.AccountEmail), nullString(s.AccountTier), nullString(s.Error),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetLatestUsage returns the most recent record, or nil if none exist.
func (d *DB) GetLatestUsage() (*UsageRecord, error) {
	row := d.sql.QueryRow(`SELECT ` + usageColumns + ` FROM usage_snapshots ORDER BY ts_ms DESC, id DESC LIMIT 1`)
	r, err := scanUsage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetUsageHistory returns up to limit records, newest first.
func (d *DB) GetUsageHistory(limit int) ([]UsageRecord, error) {
	rows, err := d.sql.Query(`SELECT `+usageColumns+` FROM usage_snapshots ORDER BY ts_ms DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		r, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// PruneUsage deletes all but the newest keep records and reports how many
// were removed. keep <= 0 disables pruning.
func (d *DB) PruneUsage(keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := d.sql.Exec(`
		DELETE FROM usage_snapshots WHERE id NOT IN (
			SELECT id FROM usage_snapshots ORDER BY ts_ms DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// rowScanner is implemented by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUsage(row rowScanner) (UsageRecord, error) {
	var r UsageRecord
	var session, weekly, opus sql.NullInt64
	var sessionReset, weeklyReset, email, tier, errMsg sql.NullString
	err := row.Scan(
		&r.ID, &r.TsMs, &session, &weekly, &opus,
		&sessionReset, &weeklyReset, &email, &tier, &errMsg,
	)
	if err != nil {
		return r, err
	}
	r.Snapshot = usage.Snapshot{
		SessionPercent: intPtr(session),
		WeeklyPercent:  intPtr(weekly),
		OpusPercent:    intPtr(opus),
		SessionReset:   stringPtr(sessionReset),
		WeeklyReset:    stringPtr(weeklyReset),
		AccountEmail:   stringPtr(email),
		AccountTier:    stringPtr(tier),
		Error:          stringPtr(errMsg),
	}
	return r, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return usage.Int(int(v.Int64))
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return usage.String(v.String)
}
