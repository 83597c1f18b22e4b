package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, err
	}
	return &DB{sql: conn}, nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) Migrate() error {
	_, err := d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create metadata: %w", err)
	}

	_, err = d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS usage_snapshots (
			id              INTEGER PRIMARY KEY,
			ts_ms           INTEGER NOT NULL,
			session_percent INTEGER,
			weekly_percent  INTEGER,
			session_reset   TEXT,
			weekly_reset    TEXT,
			account_email   TEXT,
			account_tier    TEXT,
			error           TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create usage_snapshots: %w", err)
	}

	// Add opus_percent column to existing DBs; ignore "duplicate column" errors.
	if _, alterErr := d.sql.Exec(`ALTER TABLE usage_snapshots ADD COLUMN opus_percent INTEGER`); alterErr != nil {
		if !isDuplicateColumnError(alterErr) {
			return fmt.Errorf("alter usage_snapshots add opus_percent: %w", alterErr)
		}
	}

	if _, err := d.sql.Exec(`CREATE INDEX IF NOT EXISTS idx_usage_snapshots_ts ON usage_snapshots(ts_ms DESC)`); err != nil {
		return fmt.Errorf("index usage_snapshots: %w", err)
	}

	return nil
}

func isDuplicateColumnError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}

func (d *DB) SetMeta(key, value string) error {
	_, err := d.sql.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES (?,?)", key, value)
	return err
}

func (d *DB) GetMeta(key string) (string, error) {
	var value string
	err := d.sql.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Touch records the current time as the last write.
func (d *DB) Touch() error {
	return d.SetMeta("last_modified", fmt.Sprintf("%d", time.Now().UnixMilli()))
}

// LastModified returns the unix ms of the last Touch, or 0.
func (d *DB) LastModified() int64 {
	v, _ := d.GetMeta("last_modified")
	if v == "" {
		return 0
	}
	var ts int64
	fmt.Sscanf(v, "%d", &ts)
	return ts
}
