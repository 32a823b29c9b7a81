package db

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;

-- Runs: one row per prepare invocation
CREATE TABLE IF NOT EXISTS runs (
    run_id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    finished_at TIMESTAMP,
    root_url TEXT NOT NULL,
    output_dir TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',   -- running, success, partial_failure, failed
    region_count INTEGER DEFAULT 0,
    download_count INTEGER DEFAULT 0,
    filter_count INTEGER DEFAULT 0,
    conversion_count INTEGER DEFAULT 0,
    failure_count INTEGER DEFAULT 0,
    migration_count INTEGER DEFAULT 0,
    pruned_count INTEGER DEFAULT 0,
    bytes_downloaded INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

-- Regions: every node ever discovered, keyed by its output directory
CREATE TABLE IF NOT EXISTS regions (
    region_id INTEGER PRIMARY KEY AUTOINCREMENT,
    directory TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    listing_url TEXT NOT NULL,
    source_url TEXT,
    depth INTEGER NOT NULL DEFAULT 0,
    first_seen_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    last_seen_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_regions_name ON regions(name);

-- Stage attempts: every pipeline decision per region per run
CREATE TABLE IF NOT EXISTS stage_attempts (
    attempt_id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL,
    region_id INTEGER NOT NULL,
    stage TEXT NOT NULL,                      -- acquire, filter, convert
    outcome TEXT NOT NULL,                    -- skipped, done, failed, missing_input, no_source
    artifact_path TEXT,
    size_bytes INTEGER,
    duration_ms INTEGER,
    error_message TEXT,
    attempted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE,
    FOREIGN KEY (region_id) REFERENCES regions(region_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_attempts_run ON stage_attempts(run_id);
CREATE INDEX IF NOT EXISTS idx_attempts_region ON stage_attempts(region_id);
CREATE INDEX IF NOT EXISTS idx_attempts_outcome ON stage_attempts(outcome);

-- Migrations: legacy artifacts moved to canonical paths
CREATE TABLE IF NOT EXISTS migrations (
    migration_id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL,
    region_id INTEGER NOT NULL,
    kind TEXT NOT NULL,
    from_path TEXT NOT NULL,
    to_path TEXT NOT NULL,
    migrated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE,
    FOREIGN KEY (region_id) REFERENCES regions(region_id) ON DELETE CASCADE
);

-- Visits: per-run region outcome, including pruning
CREATE TABLE IF NOT EXISTS visits (
    visit_id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL,
    region_id INTEGER NOT NULL,
    pruned BOOLEAN NOT NULL DEFAULT 0,
    error_message TEXT,
    visited_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE,
    FOREIGN KEY (region_id) REFERENCES regions(region_id) ON DELETE CASCADE,
    UNIQUE(run_id, region_id)
);

CREATE INDEX IF NOT EXISTS idx_visits_run ON visits(run_id);
`
