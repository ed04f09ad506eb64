package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite-based store.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteStorage{db: db}

	if err := storage.init(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// init creates the necessary tables.
func (s *SQLiteStorage) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		servo_id INTEGER NOT NULL,
		register TEXT NOT NULL,
		value INTEGER NOT NULL,
		taken_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_samples_servo ON samples(servo_id, taken_at);

	CREATE TABLE IF NOT EXISTS scans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		found TEXT NOT NULL,
		scanned_at DATETIME NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// SaveSample appends one reading.
func (s *SQLiteStorage) SaveSample(sample Sample) error {
	_, err := s.db.Exec(
		`INSERT INTO samples (servo_id, register, value, taken_at) VALUES (?, ?, ?, ?)`,
		sample.ServoID, sample.Register, sample.Value, sample.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save sample: %w", err)
	}
	return nil
}

// ListSamples returns the newest readings for one servo, newest first.
func (s *SQLiteStorage) ListSamples(servoID uint8, limit int) ([]Sample, error) {
	rows, err := s.db.Query(
		`SELECT servo_id, register, value, taken_at FROM samples
		 WHERE servo_id = ? ORDER BY taken_at DESC LIMIT ?`,
		servoID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	samples := []Sample{}
	for rows.Next() {
		var sample Sample
		if err := rows.Scan(&sample.ServoID, &sample.Register, &sample.Value, &sample.TakenAt); err != nil {
			continue
		}
		samples = append(samples, sample)
	}

	return samples, rows.Err()
}

// SaveScan appends one bus sweep result.
func (s *SQLiteStorage) SaveScan(scan Scan) error {
	found, err := json.Marshal(scan.Found)
	if err != nil {
		return fmt.Errorf("failed to marshal scan: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO scans (found, scanned_at) VALUES (?, ?)`,
		string(found), scan.ScannedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save scan: %w", err)
	}
	return nil
}

// ListScans returns the newest sweeps, newest first.
func (s *SQLiteStorage) ListScans(limit int) ([]Scan, error) {
	rows, err := s.db.Query(
		`SELECT found, scanned_at FROM scans ORDER BY scanned_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	scans := []Scan{}
	for rows.Next() {
		var found string
		var scan Scan
		if err := rows.Scan(&found, &scan.ScannedAt); err != nil {
			continue
		}
		if err := json.Unmarshal([]byte(found), &scan.Found); err != nil {
			continue
		}
		scans = append(scans, scan)
	}

	return scans, rows.Err()
}

// Prune drops telemetry older than the cutoff.
func (s *SQLiteStorage) Prune(olderThan time.Time) error {
	if _, err := s.db.Exec(`DELETE FROM samples WHERE taken_at < ?`, olderThan); err != nil {
		return fmt.Errorf("failed to prune samples: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM scans WHERE scanned_at < ?`, olderThan); err != nil {
		return fmt.Errorf("failed to prune scans: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
