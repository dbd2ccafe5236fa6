package services

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fishset/fishdedup/models"
)

// runTimeLayout is fixed-width so started_at sorts correctly as text.
const runTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Storage struct {
	db *sql.DB
}

func NewStorage(dbPath string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode so the server can read history while a run writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Storage{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS fingerprints (
    path        TEXT NOT NULL,
    hash_size   INTEGER NOT NULL,
    size        INTEGER NOT NULL,
    mod_time    INTEGER NOT NULL,
    bits        INTEGER NOT NULL,
    hash        BLOB NOT NULL,
    updated_at  TEXT NOT NULL,
    PRIMARY KEY (path, hash_size)
);

CREATE INDEX IF NOT EXISTS idx_fingerprints_updated ON fingerprints(updated_at);

CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    directory       TEXT NOT NULL,
    mode            TEXT NOT NULL,
    dry_run         INTEGER NOT NULL,
    threshold       REAL NOT NULL,
    strategy        TEXT NOT NULL,
    total_images    INTEGER NOT NULL,
    unique_count    INTEGER NOT NULL,
    duplicate_count INTEGER NOT NULL,
    removed         INTEGER NOT NULL,
    reclaimed_bytes INTEGER NOT NULL,
    started_at      TEXT NOT NULL,
    finished_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

CREATE TABLE IF NOT EXISTS settings (
    key         TEXT PRIMARY KEY,
    value       TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);
`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (s *Storage) DB() *sql.DB {
	return s.db
}

// LookupFingerprint returns a cached fingerprint if one exists for path at
// hashSize and the file's size and modification time still match.
func (s *Storage) LookupFingerprint(path string, size int64, modTime time.Time, hashSize int) (Fingerprint, bool, error) {
	var (
		cachedSize int64
		cachedMod  int64
		bits       int
		blob       []byte
	)
	err := s.db.QueryRow(
		`SELECT size, mod_time, bits, hash FROM fingerprints WHERE path = ? AND hash_size = ?`,
		path, hashSize,
	).Scan(&cachedSize, &cachedMod, &bits, &blob)
	if err == sql.ErrNoRows {
		return Fingerprint{}, false, nil
	}
	if err != nil {
		return Fingerprint{}, false, fmt.Errorf("querying fingerprint: %w", err)
	}
	if cachedSize != size || cachedMod != modTime.UnixNano() {
		return Fingerprint{}, false, nil
	}
	return NewFingerprint(BytesToWords(blob), bits), true, nil
}

func (s *Storage) PutFingerprint(path string, size int64, modTime time.Time, hashSize int, fp Fingerprint) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO fingerprints
		(path, hash_size, size, mod_time, bits, hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		path, hashSize, size, modTime.UnixNano(), fp.Bits(), WordsToBytes(fp.Words()),
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// Cleanup drops cached fingerprints last written before olderThan.
func (s *Storage) Cleanup(olderThan time.Time) (int64, error) {
	ts := olderThan.UTC().Format(time.RFC3339)
	res, err := s.db.Exec("DELETE FROM fingerprints WHERE updated_at < ?", ts)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Storage) RecordRun(report *models.RunReport) error {
	var (
		dryRun    bool
		removed   int
		reclaimed int64
	)
	if report.Deletion != nil {
		dryRun = report.Deletion.DryRun
		removed = report.Deletion.Removed
		reclaimed = report.Deletion.ReclaimedBytes
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO runs
		(id, directory, mode, dry_run, threshold, strategy, total_images,
		 unique_count, duplicate_count, removed, reclaimed_bytes, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.Directory, report.Mode, dryRun, report.Threshold, report.Strategy,
		report.TotalImages, report.UniqueCount, report.DuplicateCount, removed, reclaimed,
		report.StartedAt.UTC().Format(runTimeLayout), report.FinishedAt.UTC().Format(runTimeLayout))
	if err != nil {
		return fmt.Errorf("recording run %s: %w", report.ID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *Storage) ListRuns(limit int) ([]models.RunRecord, error) {
	rows, err := s.db.Query(`SELECT id, directory, mode, dry_run, threshold, strategy,
		total_images, unique_count, duplicate_count, removed, reclaimed_bytes, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		var r models.RunRecord
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Directory, &r.Mode, &r.DryRun, &r.Threshold, &r.Strategy,
			&r.TotalImages, &r.UniqueCount, &r.DuplicateCount, &r.Removed, &r.ReclaimedBytes,
			&started, &finished); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.StartedAt, _ = time.Parse(runTimeLayout, started)
		r.FinishedAt, _ = time.Parse(runTimeLayout, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// WordsToBytes packs hash words as little-endian uint64s for BLOB storage.
func WordsToBytes(words []uint64) []byte {
	buf := make([]byte, len(words)*8)
	for i, w := range words {
		binary.LittleEndian.PutUint64(buf[i*8:], w)
	}
	return buf
}

func BytesToWords(buf []byte) []uint64 {
	words := make([]uint64, len(buf)/8)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return words
}
