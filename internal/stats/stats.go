// Package stats persists per-file request statistics in a SQLite database so
// slow translation units can be identified across sessions.
package stats

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"ccd/internal/logging"
)

// FileStats aggregates requests served for one file.
type FileStats struct {
	Path            string `json:"path"`
	Parses          int64  `json:"parses"`
	Reparses        int64  `json:"reparses"`
	Hits            int64  `json:"hits"`
	Failures        int64  `json:"failures"`
	TotalDurationMs int64  `json:"totalDurationMs"`
	LastDurationMs  int64  `json:"lastDurationMs"`
	LastOutcome     string `json:"lastOutcome"`
	LastError       string `json:"lastError,omitempty"`
	UpdatedAt       string `json:"updatedAt"`
}

// Store provides persistence for request statistics.
type Store struct {
	conn   *sql.DB
	logger *logging.Logger
	dbPath string
}

// Open opens or creates the stats database under dir.
func Open(dir string, logger *logging.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create stats directory: %w", err)
	}

	dbPath := filepath.Join(dir, "stats.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	store := &Store{
		conn:   conn,
		logger: logger,
		dbPath: dbPath,
	}
	if err := store.initializeSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize stats schema: %w", err)
	}
	return store, nil
}

func (s *Store) initializeSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS request_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file TEXT NOT NULL,
			kind TEXT NOT NULL,
			outcome TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			error_code TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_file ON request_events(file);
		CREATE INDEX IF NOT EXISTS idx_events_created_at ON request_events(created_at);

		CREATE TABLE IF NOT EXISTS file_stats (
			path TEXT PRIMARY KEY,
			parses INTEGER NOT NULL DEFAULT 0,
			reparses INTEGER NOT NULL DEFAULT 0,
			hits INTEGER NOT NULL DEFAULT 0,
			failures INTEGER NOT NULL DEFAULT 0,
			total_duration_ms INTEGER NOT NULL DEFAULT 0,
			last_duration_ms INTEGER NOT NULL DEFAULT 0,
			last_outcome TEXT,
			last_error TEXT,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);
		INSERT OR REPLACE INTO schema_version (version) VALUES (1);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// RecordRequest persists one served request. errCode is empty on success.
func (s *Store) RecordRequest(file, kind, outcome string, duration time.Duration, errCode string) {
	now := time.Now().UTC().Format(time.RFC3339)
	ms := duration.Milliseconds()

	_, err := s.conn.Exec(
		`INSERT INTO request_events (file, kind, outcome, duration_ms, error_code, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		file, kind, outcome, ms, nullString(errCode), now,
	)
	if err != nil {
		s.logger.Warn("Failed to record request event", map[string]interface{}{
			"file":  file,
			"error": err.Error(),
		})
		return
	}

	parses, reparses, hits, failures := 0, 0, 0, 0
	switch {
	case errCode != "":
		failures = 1
	case outcome == "parsed":
		parses = 1
	case outcome == "reparsed":
		reparses = 1
	case outcome == "hit":
		hits = 1
	}

	_, err = s.conn.Exec(
		`INSERT INTO file_stats (path, parses, reparses, hits, failures, total_duration_ms, last_duration_ms, last_outcome, last_error, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			parses = parses + excluded.parses,
			reparses = reparses + excluded.reparses,
			hits = hits + excluded.hits,
			failures = failures + excluded.failures,
			total_duration_ms = total_duration_ms + excluded.total_duration_ms,
			last_duration_ms = excluded.last_duration_ms,
			last_outcome = excluded.last_outcome,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		file, parses, reparses, hits, failures, ms, ms, outcome, nullString(errCode), now,
	)
	if err != nil {
		s.logger.Warn("Failed to update file stats", map[string]interface{}{
			"file":  file,
			"error": err.Error(),
		})
	}
}

// FileStats returns the aggregate row for one file, or nil if none exists.
func (s *Store) FileStats(path string) (*FileStats, error) {
	row := s.conn.QueryRow(
		`SELECT path, parses, reparses, hits, failures, total_duration_ms, last_duration_ms,
			COALESCE(last_outcome, ''), COALESCE(last_error, ''), updated_at
		 FROM file_stats WHERE path = ?`, path)

	var fs FileStats
	err := row.Scan(&fs.Path, &fs.Parses, &fs.Reparses, &fs.Hits, &fs.Failures,
		&fs.TotalDurationMs, &fs.LastDurationMs, &fs.LastOutcome, &fs.LastError, &fs.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query file stats: %w", err)
	}
	return &fs, nil
}

// SlowestFiles returns up to limit files ordered by total time spent.
func (s *Store) SlowestFiles(limit int) ([]FileStats, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.conn.Query(
		`SELECT path, parses, reparses, hits, failures, total_duration_ms, last_duration_ms,
			COALESCE(last_outcome, ''), COALESCE(last_error, ''), updated_at
		 FROM file_stats ORDER BY total_duration_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query slowest files: %w", err)
	}
	defer rows.Close()

	var out []FileStats
	for rows.Next() {
		var fs FileStats
		if err := rows.Scan(&fs.Path, &fs.Parses, &fs.Reparses, &fs.Hits, &fs.Failures,
			&fs.TotalDurationMs, &fs.LastDurationMs, &fs.LastOutcome, &fs.LastError, &fs.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}

// Totals returns aggregate counters across all files.
func (s *Store) Totals() (map[string]int64, error) {
	row := s.conn.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(parses), 0), COALESCE(SUM(reparses), 0),
			COALESCE(SUM(hits), 0), COALESCE(SUM(failures), 0), COALESCE(SUM(total_duration_ms), 0)
		 FROM file_stats`)

	var files, parses, reparses, hits, failures, totalMs int64
	if err := row.Scan(&files, &parses, &reparses, &hits, &failures, &totalMs); err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	return map[string]int64{
		"files":           files,
		"parses":          parses,
		"reparses":        reparses,
		"hits":            hits,
		"failures":        failures,
		"totalDurationMs": totalMs,
	}, nil
}

// Prune deletes request events older than the cutoff.
func (s *Store) Prune(before time.Time) (int64, error) {
	res, err := s.conn.Exec(
		`DELETE FROM request_events WHERE created_at < ?`,
		before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
