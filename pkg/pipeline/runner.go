package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dtnitsch/region-maps/models"
	"github.com/dtnitsch/region-maps/pkg/artifact_manager"
	"github.com/dtnitsch/region-maps/pkg/storage"
	"github.com/dustin/go-humanize"
)

// Downloader streams a remote extract to a local path.
type Downloader interface {
	Download(ctx context.Context, url, dest string) (int64, error)
}

// Filter reduces an extract to transit-relevant records.
type Filter interface {
	Filter(ctx context.Context, input, output string) error
}

// Converter produces the final map from a filtered extract.
type Converter interface {
	Convert(ctx context.Context, input, output string) error
}

// StageRecord describes one stage decision for a region.
type StageRecord struct {
	Region    models.Region
	Stage     models.Stage
	Outcome   models.Outcome
	Path      string
	SizeBytes int64
	Duration  time.Duration
	Err       error
}

// Recorder receives every stage decision (the run ledger implements it).
type Recorder interface {
	RecordStage(ctx context.Context, rec StageRecord) error
}

// Report collects stage outcomes for one region visit.
type Report struct {
	Outcomes map[models.Stage]models.Outcome
	Bytes    int64
}

// Ran reports whether any stage did work (done or failed) during the visit.
func (r Report) Ran() bool {
	for _, o := range r.Outcomes {
		if o == models.OutcomeDone || o == models.OutcomeFailed {
			return true
		}
	}
	return false
}

// Runner executes acquire, filter and convert for one region.
// Every stage checks its own output and every downstream output before running.
type Runner struct {
	Downloader Downloader
	Filter     Filter
	Converter  Converter
	Recorder   Recorder
	Logger     *slog.Logger
	Out        io.Writer // progress lines; nil discards

	// KeepFiltered retains the filtered extract after a successful conversion.
	KeepFiltered bool
}

// Run advances the region as far as the pipeline allows. Stage failures are
// joined into the returned error; artifacts are always left in a state the
// next run can resume from.
func (r *Runner) Run(ctx context.Context, region models.Region, p artifact_manager.Paths) (Report, error) {
	report := Report{Outcomes: make(map[models.Stage]models.Outcome, len(models.Stages))}
	var errs []error

	for _, stage := range models.Stages {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		start := time.Now()
		rec := r.runStage(ctx, stage, region, p)
		rec.Duration = time.Since(start)
		report.Outcomes[stage] = rec.Outcome
		if stage == models.StageAcquire && rec.Outcome == models.OutcomeDone {
			report.Bytes = rec.SizeBytes
		}
		if rec.Err != nil {
			errs = append(errs, rec.Err)
		}
		r.record(ctx, rec)
	}

	return report, errors.Join(errs...)
}

func (r *Runner) runStage(ctx context.Context, stage models.Stage, region models.Region, p artifact_manager.Paths) StageRecord {
	rec := StageRecord{Region: region, Stage: stage, Outcome: models.OutcomeSkipped}
	switch stage {
	case models.StageAcquire:
		rec.Path = p.Raw
		if storage.Exists(p.Result) || storage.Exists(p.Filtered) || storage.Exists(p.Raw) {
			return rec
		}
		if !region.HasSource() {
			rec.Outcome = models.OutcomeNoSource
			return rec
		}
		r.progress("Downloading %s...\n", p.Raw)
		n, err := r.Downloader.Download(ctx, region.SourceURL, p.Raw)
		if err != nil {
			rec.Outcome = models.OutcomeFailed
			rec.Err = fmt.Errorf("%w: acquire %s: %w", ErrNetwork, region.Name, err)
			r.logger().Error("Extract download failed", "region", region.Name, "url", region.SourceURL, "error", err)
			r.progress("Error: %v\n", err)
			return rec
		}
		rec.Outcome = models.OutcomeDone
		rec.SizeBytes = n
		r.logger().Info("Extract downloaded", "region", region.Name, "path", p.Raw, "size", humanize.Bytes(uint64(n)))

	case models.StageFilter:
		rec.Path = p.Filtered
		if storage.Exists(p.Result) || storage.Exists(p.Filtered) {
			return rec
		}
		if !storage.Exists(p.Raw) {
			rec.Outcome = models.OutcomeMissingInput
			return rec
		}
		r.progress("Filtering %s...\n", p.Raw)
		if err := r.runTool(ctx, p.Filtered, func() error { return r.Filter.Filter(ctx, p.Raw, p.Filtered) }); err != nil {
			rec.Outcome = models.OutcomeFailed
			rec.Err = fmt.Errorf("filter %s: %w", region.Name, err)
			r.logger().Error("Filter failed", "region", region.Name, "input", p.Raw, "error", err)
			return rec
		}
		if err := storage.RemoveIfExists(p.Raw); err != nil {
			rec.Err = fmt.Errorf("%w: remove raw extract %s: %w", ErrFilesystem, p.Raw, err)
			r.logger().Warn("Failed to remove raw extract after filtering", "region", region.Name, "path", p.Raw, "error", err)
		}
		rec.Outcome = models.OutcomeDone
		rec.SizeBytes = fileSize(p.Filtered)

	case models.StageConvert:
		rec.Path = p.Result
		if storage.Exists(p.Result) {
			return rec
		}
		if !storage.Exists(p.Filtered) {
			rec.Outcome = models.OutcomeMissingInput
			return rec
		}
		r.progress("Generating %s...\n", p.Result)
		if err := r.runTool(ctx, p.Result, func() error { return r.Converter.Convert(ctx, p.Filtered, p.Result) }); err != nil {
			rec.Outcome = models.OutcomeFailed
			rec.Err = fmt.Errorf("convert %s: %w", region.Name, err)
			r.logger().Error("Conversion failed", "region", region.Name, "input", p.Filtered, "error", err)
			return rec
		}
		if !r.KeepFiltered {
			if err := storage.RemoveIfExists(p.Filtered); err != nil {
				r.logger().Warn("Failed to remove filtered extract after conversion", "region", region.Name, "path", p.Filtered, "error", err)
			}
		}
		rec.Outcome = models.OutcomeDone
		rec.SizeBytes = fileSize(p.Result)
	}

	if rec.Outcome == models.OutcomeDone {
		r.logger().Info("Stage complete", "region", region.Name, "stage", stage, "path", rec.Path)
	}
	return rec
}

// runTool invokes an external tool that writes output. Any stale output is
// removed first; success needs both a clean exit and the output on disk.
// A failed run never leaves a partial output behind.
func (r *Runner) runTool(ctx context.Context, output string, invoke func() error) error {
	if err := storage.RemoveIfExists(output); err != nil {
		return fmt.Errorf("%w: clear stale output: %w", ErrFilesystem, err)
	}

	runErr := invoke()
	if runErr == nil && storage.Exists(output) {
		return nil
	}

	_ = storage.RemoveIfExists(output)
	if runErr != nil {
		return fmt.Errorf("%w: %w", ErrToolFailure, runErr)
	}
	return fmt.Errorf("%w: no output written to %s", ErrToolFailure, output)
}

func (r *Runner) record(ctx context.Context, rec StageRecord) {
	if r.Recorder == nil {
		return
	}
	if err := r.Recorder.RecordStage(ctx, rec); err != nil {
		r.logger().Warn("Failed to record stage", "region", rec.Region.Name, "stage", rec.Stage, "error", err)
	}
}

func (r *Runner) progress(format string, args ...any) {
	if r.Out != nil {
		fmt.Fprintf(r.Out, format, args...)
	}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.Logger
}

func fileSize(path string) int64 {
	stats, err := storage.GetFileStats(path)
	if err != nil {
		return 0
	}
	return stats.SizeBytes
}
