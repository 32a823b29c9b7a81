package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run represents one prepare invocation.
type Run struct {
	RunID           int64
	StartedAt       time.Time
	FinishedAt      sql.NullTime
	RootURL         string
	OutputDir       string
	Status          string
	RegionCount     int
	DownloadCount   int
	FilterCount     int
	ConversionCount int
	FailureCount    int
	MigrationCount  int
	PrunedCount     int
	BytesDownloaded int64
}

// RunStats are the counters written when a run finishes.
type RunStats struct {
	Status          string
	RegionCount     int
	DownloadCount   int
	FilterCount     int
	ConversionCount int
	FailureCount    int
	MigrationCount  int
	PrunedCount     int
	BytesDownloaded int64
}

// RegionRow is the ledger's view of a discovered region.
type RegionRow struct {
	Directory  string
	Name       string
	ListingURL string
	SourceURL  string
	Depth      int
}

// StageAttempt is one recorded pipeline decision.
type StageAttempt struct {
	RunID        int64
	RegionID     int64
	Stage        string
	Outcome      string
	ArtifactPath string
	SizeBytes    int64
	DurationMS   int64
	ErrorMessage string
}

// StartRun inserts a run row in the running state and returns its ID.
func (db *DB) StartRun(rootURL, outputDir string) (int64, error) {
	result, err := db.Exec(`
		INSERT INTO runs (root_url, output_dir) VALUES (?, ?)
	`, rootURL, outputDir)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run ID: %w", err)
	}
	return runID, nil
}

// FinishRun stores final counters and status for a run.
func (db *DB) FinishRun(runID int64, stats RunStats) error {
	_, err := db.Exec(`
		UPDATE runs
		SET finished_at = CURRENT_TIMESTAMP, status = ?, region_count = ?, download_count = ?,
		    filter_count = ?, conversion_count = ?, failure_count = ?, migration_count = ?,
		    pruned_count = ?, bytes_downloaded = ?
		WHERE run_id = ?
	`, stats.Status, stats.RegionCount, stats.DownloadCount, stats.FilterCount, stats.ConversionCount,
		stats.FailureCount, stats.MigrationCount, stats.PrunedCount, stats.BytesDownloaded, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// UpsertRegion inserts a region or refreshes it, returning the region_id.
// Regions are keyed by directory, which is stable across runs.
func (db *DB) UpsertRegion(r RegionRow) (int64, error) {
	var existingID int64
	err := db.QueryRow("SELECT region_id FROM regions WHERE directory = ?", r.Directory).Scan(&existingID)
	if err == nil {
		_, err = db.Exec(`
			UPDATE regions
			SET name = ?, listing_url = ?, source_url = ?, depth = ?, last_seen_at = CURRENT_TIMESTAMP
			WHERE region_id = ?
		`, r.Name, r.ListingURL, NewNullString(r.SourceURL), r.Depth, existingID)
		if err != nil {
			return 0, fmt.Errorf("failed to update region: %w", err)
		}
		return existingID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to check existing region: %w", err)
	}

	result, err := db.Exec(`
		INSERT INTO regions (directory, name, listing_url, source_url, depth)
		VALUES (?, ?, ?, ?, ?)
	`, r.Directory, r.Name, r.ListingURL, NewNullString(r.SourceURL), r.Depth)
	if err != nil {
		return 0, fmt.Errorf("failed to insert region: %w", err)
	}
	regionID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get region ID: %w", err)
	}
	return regionID, nil
}

// RecordStageAttempt records a pipeline stage decision.
func (db *DB) RecordStageAttempt(a StageAttempt) error {
	_, err := db.Exec(`
		INSERT INTO stage_attempts (run_id, region_id, stage, outcome, artifact_path, size_bytes, duration_ms, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.RunID, a.RegionID, a.Stage, a.Outcome, NewNullString(a.ArtifactPath), a.SizeBytes, a.DurationMS, NewNullString(a.ErrorMessage))
	if err != nil {
		return fmt.Errorf("failed to record stage attempt: %w", err)
	}
	return nil
}

// RecordMigration records a legacy artifact moved into place.
func (db *DB) RecordMigration(runID, regionID int64, kind, from, to string) error {
	_, err := db.Exec(`
		INSERT INTO migrations (run_id, region_id, kind, from_path, to_path)
		VALUES (?, ?, ?, ?, ?)
	`, runID, regionID, kind, from, to)
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return nil
}

// RecordVisit records the end state of a region visit (upsert per run).
func (db *DB) RecordVisit(runID, regionID int64, pruned bool, errorMessage string) error {
	_, err := db.Exec(`
		INSERT INTO visits (run_id, region_id, pruned, error_message)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, region_id) DO UPDATE SET pruned = excluded.pruned, error_message = excluded.error_message
	`, runID, regionID, pruned, NewNullString(errorMessage))
	if err != nil {
		return fmt.Errorf("failed to record visit: %w", err)
	}
	return nil
}

// ListRuns retrieves runs ordered by most recent first
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := `
		SELECT run_id, started_at, finished_at, root_url, output_dir, status, region_count,
		       download_count, filter_count, conversion_count, failure_count, migration_count,
		       pruned_count, bytes_downloaded
		FROM runs
		ORDER BY run_id DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.RootURL, &r.OutputDir, &r.Status,
			&r.RegionCount, &r.DownloadCount, &r.FilterCount, &r.ConversionCount, &r.FailureCount,
			&r.MigrationCount, &r.PrunedCount, &r.BytesDownloaded); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

// StageCounts returns outcome counts per stage for a run: counts[stage][outcome].
func (db *DB) StageCounts(runID int64) (map[string]map[string]int, error) {
	rows, err := db.Query(`
		SELECT stage, outcome, COUNT(*)
		FROM stage_attempts
		WHERE run_id = ?
		GROUP BY stage, outcome
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count stage attempts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]map[string]int)
	for rows.Next() {
		var stage, outcome string
		var n int
		if err := rows.Scan(&stage, &outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan stage count: %w", err)
		}
		if counts[stage] == nil {
			counts[stage] = make(map[string]int)
		}
		counts[stage][outcome] = n
	}
	return counts, rows.Err()
}

// FailedRegions lists region directories whose visit in runID ended with an error.
func (db *DB) FailedRegions(runID int64) (map[string]string, error) {
	rows, err := db.Query(`
		SELECT r.directory, v.error_message
		FROM visits v JOIN regions r ON r.region_id = v.region_id
		WHERE v.run_id = ? AND v.error_message IS NOT NULL
		ORDER BY r.directory
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed regions: %w", err)
	}
	defer rows.Close()

	failed := make(map[string]string)
	for rows.Next() {
		var dir, msg string
		if err := rows.Scan(&dir, &msg); err != nil {
			return nil, fmt.Errorf("failed to scan failed region: %w", err)
		}
		failed[dir] = msg
	}
	return failed, rows.Err()
}

// NewNullString creates a sql.NullString from a string value.
func NewNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
