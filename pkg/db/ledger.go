package db

import (
	"context"

	"github.com/dtnitsch/region-maps/models"
	"github.com/dtnitsch/region-maps/pkg/pipeline"
	"github.com/dtnitsch/region-maps/pkg/walker"
)

// Ledger records one run's stage decisions and region visits.
// It satisfies pipeline.Recorder and walker.VisitRecorder.
type Ledger struct {
	db      *DB
	runID   int64
	regions map[string]int64 // directory -> region_id
}

// NewLedger starts a run row and returns a ledger bound to it.
func NewLedger(db *DB, rootURL, outputDir string) (*Ledger, error) {
	runID, err := db.StartRun(rootURL, outputDir)
	if err != nil {
		return nil, err
	}
	return &Ledger{db: db, runID: runID, regions: make(map[string]int64)}, nil
}

// RunID returns the ID of the run this ledger writes to.
func (l *Ledger) RunID() int64 {
	return l.runID
}

func (l *Ledger) regionID(r models.Region) (int64, error) {
	if id, ok := l.regions[r.Directory]; ok {
		return id, nil
	}
	id, err := l.db.UpsertRegion(RegionRow{
		Directory:  r.Directory,
		Name:       r.Name,
		ListingURL: r.ListingURL,
		SourceURL:  r.SourceURL,
		Depth:      r.Depth,
	})
	if err != nil {
		return 0, err
	}
	l.regions[r.Directory] = id
	return id, nil
}

func (l *Ledger) RecordStage(ctx context.Context, rec pipeline.StageRecord) error {
	regionID, err := l.regionID(rec.Region)
	if err != nil {
		return err
	}
	attempt := StageAttempt{
		RunID:        l.runID,
		RegionID:     regionID,
		Stage:        string(rec.Stage),
		Outcome:      string(rec.Outcome),
		ArtifactPath: rec.Path,
		SizeBytes:    rec.SizeBytes,
		DurationMS:   rec.Duration.Milliseconds(),
	}
	if rec.Err != nil {
		attempt.ErrorMessage = rec.Err.Error()
	}
	return l.db.RecordStageAttempt(attempt)
}

func (l *Ledger) RecordVisit(ctx context.Context, v walker.Visit) error {
	regionID, err := l.regionID(v.Region)
	if err != nil {
		return err
	}
	for _, m := range v.Moves {
		if err := l.db.RecordMigration(l.runID, regionID, m.Kind.String(), m.From, m.To); err != nil {
			return err
		}
	}
	var msg string
	if v.Err != nil {
		msg = v.Err.Error()
	}
	return l.db.RecordVisit(l.runID, regionID, v.Pruned, msg)
}

// Finish writes the traversal summary onto the run row.
func (l *Ledger) Finish(summary *walker.Summary, status string) error {
	stats := RunStats{Status: status}
	if summary != nil {
		stats.RegionCount = summary.Regions
		stats.DownloadCount = summary.Downloads
		stats.FilterCount = summary.Filters
		stats.ConversionCount = summary.Conversions
		stats.FailureCount = summary.Failures
		stats.MigrationCount = summary.Migrations
		stats.PrunedCount = summary.Pruned
		stats.BytesDownloaded = summary.Bytes
	}
	return l.db.FinishRun(l.runID, stats)
}
