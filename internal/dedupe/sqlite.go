package dedupe

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Journal is an append-only SQLite record of scans and the files they
// removed. The engine never reads it back; it exists for auditing.
type Journal struct {
	db *sql.DB
}

// Removal is one journaled deletion.
type Removal struct {
	ScanID    string
	Duplicate string
	Original  string
	SHA256    string
	Size      int64
	RemovedAt time.Time
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS scans (
  scan_id TEXT PRIMARY KEY,
  root TEXT,
  started_at TEXT,
  finished_at TEXT,
  files_scanned INTEGER DEFAULT 0,
  duplicates_removed INTEGER DEFAULT 0,
  hash_failures INTEGER DEFAULT 0,
  delete_failures INTEGER DEFAULT 0,
  skipped INTEGER DEFAULT 0,
  bytes_reclaimed INTEGER DEFAULT 0,
  dry_run INTEGER DEFAULT 0
);`,
	`CREATE TABLE IF NOT EXISTS removals (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  scan_id TEXT NOT NULL,
  duplicate TEXT NOT NULL,
  original TEXT NOT NULL,
  sha256 TEXT NOT NULL,
  size INTEGER,
  removed_at TEXT
);`,
	`CREATE INDEX IF NOT EXISTS removals_scan ON removals(scan_id);`,
}

// OpenJournal opens (creating if needed) the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, err
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// BeginScan registers a scan.
func (j *Journal) BeginScan(ctx context.Context, scanID, root string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := j.db.ExecContext(ctx, `INSERT INTO scans(scan_id, root, started_at) VALUES(?,?,?)
ON CONFLICT(scan_id) DO UPDATE SET root=excluded.root, started_at=excluded.started_at;`, scanID, root, now)
	return err
}

// Record stores one removal.
func (j *Journal) Record(ctx context.Context, rec Removal) error {
	at := rec.RemovedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `INSERT INTO removals(scan_id, duplicate, original, sha256, size, removed_at)
VALUES(?,?,?,?,?,?);`,
		rec.ScanID, rec.Duplicate, rec.Original, rec.SHA256, rec.Size, at.UTC().Format(time.RFC3339))
	return err
}

// FinishScan stores the final counters of a scan.
func (j *Journal) FinishScan(ctx context.Context, scanID string, st Stats) error {
	now := time.Now().UTC().Format(time.RFC3339)
	dry := 0
	if st.DryRun {
		dry = 1
	}
	_, err := j.db.ExecContext(ctx, `UPDATE scans SET finished_at=?, files_scanned=?, duplicates_removed=?,
hash_failures=?, delete_failures=?, skipped=?, bytes_reclaimed=?, dry_run=? WHERE scan_id=?;`,
		now, st.FilesScanned, st.DuplicatesRemoved, st.HashFailures, st.DeleteFailures, st.Skipped, st.BytesReclaimed, dry, scanID)
	return err
}

// Removals lists the removals of one scan in insertion order.
func (j *Journal) Removals(ctx context.Context, scanID string) ([]Removal, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT scan_id, duplicate, original, sha256, size, removed_at
FROM removals WHERE scan_id=? ORDER BY id`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Removal
	for rows.Next() {
		var r Removal
		var at string
		if err := rows.Scan(&r.ScanID, &r.Duplicate, &r.Original, &r.SHA256, &r.Size, &at); err != nil {
			return nil, err
		}
		if r.RemovedAt, err = time.Parse(time.RFC3339, at); err != nil {
			return nil, fmt.Errorf("removal of %s: removed_at: %w", r.Duplicate, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ScanStats returns the counters stored by FinishScan.
func (j *Journal) ScanStats(ctx context.Context, scanID string) (Stats, bool, error) {
	row := j.db.QueryRowContext(ctx, `SELECT files_scanned, duplicates_removed, hash_failures, delete_failures,
skipped, bytes_reclaimed, dry_run FROM scans WHERE scan_id=?`, scanID)
	var st Stats
	var dry int
	switch err := row.Scan(&st.FilesScanned, &st.DuplicatesRemoved, &st.HashFailures, &st.DeleteFailures,
		&st.Skipped, &st.BytesReclaimed, &dry); err {
	case nil:
		st.DryRun = dry == 1
		return st, true, nil
	case sql.ErrNoRows:
		return Stats{}, false, nil
	default:
		return Stats{}, false, err
	}
}

// GC deletes scans and removals older than the given number of days.
func (j *Journal) GC(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, nil
	}
	threshold := time.Now().AddDate(0, 0, -olderThanDays).UTC().Format(time.RFC3339)
	res, err := j.db.ExecContext(ctx, `DELETE FROM removals WHERE removed_at < ?`, threshold)
	if err != nil {
		return 0, err
	}
	if _, err := j.db.ExecContext(ctx, `DELETE FROM scans WHERE started_at < ?`, threshold); err != nil {
		return 0, err
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}
