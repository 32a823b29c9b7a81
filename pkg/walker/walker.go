package walker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/region-maps/models"
	"github.com/dtnitsch/region-maps/pkg/artifact_manager"
	"github.com/dtnitsch/region-maps/pkg/pipeline"
	"github.com/dtnitsch/region-maps/pkg/storage"
)

// ListingSource fetches a listing page as an HTML document.
type ListingSource interface {
	GetHtml(ctx context.Context, url string) (*goquery.Document, error)
}

// ListingParser turns a listing page into its child regions.
type ListingParser interface {
	ParseListing(doc *goquery.Document, pageURL string) ([]models.Region, error)
}

// StageRunner runs the per-region pipeline.
type StageRunner interface {
	Run(ctx context.Context, region models.Region, p artifact_manager.Paths) (pipeline.Report, error)
}

// Visit summarizes what happened to one region.
type Visit struct {
	Region models.Region
	Moves  []artifact_manager.Move
	Report pipeline.Report
	Pruned bool
	Err    error
}

// VisitRecorder receives each completed region visit (the run ledger implements it).
type VisitRecorder interface {
	RecordVisit(ctx context.Context, v Visit) error
}

// RegionError ties a failure to the region it happened in.
type RegionError struct {
	Region string
	Err    error
}

// Summary counts the work done by one traversal.
type Summary struct {
	Regions     int
	Downloads   int
	Filters     int
	Conversions int
	Failures    int
	Migrations  int
	Pruned      int
	Bytes       int64
	Errors      []RegionError
}

// Walker drives the depth-first traversal of the region tree.
type Walker struct {
	Source   ListingSource
	Parser   ListingParser
	Runner   StageRunner
	Recorder VisitRecorder
	Logger   *slog.Logger
	Out      io.Writer // tree progress lines; nil discards
	MaxDepth int       // levels of children to process; 0 means unlimited

	summary *Summary
}

// Run walks the whole tree below rootURL, writing into outputDir.
// Only a failure to load the root listing (or cancellation) is returned;
// per-region failures are logged and collected in the summary.
func (w *Walker) Run(ctx context.Context, rootURL, outputDir string) (*Summary, error) {
	w.summary = &Summary{}
	err := w.Walk(ctx, rootURL, 0, outputDir)
	return w.summary, err
}

// Walk processes every child listed on listingURL: each child's directory is
// created, its artifacts migrated and its pipeline run before recursing into
// its own listing, and the child's directory is pruned once the recursion returns.
// Siblings are visited in listing order.
func (w *Walker) Walk(ctx context.Context, listingURL string, depth int, parentDir string) error {
	if w.summary == nil {
		w.summary = &Summary{}
	}

	doc, err := w.Source.GetHtml(ctx, listingURL)
	if err != nil {
		return fmt.Errorf("%w: fetch listing %s: %w", pipeline.ErrNetwork, listingURL, err)
	}
	children, err := w.Parser.ParseListing(doc, listingURL)
	if err != nil {
		return fmt.Errorf("parse listing %s: %w", listingURL, err)
	}
	w.logger().Debug("Listing parsed", "url", listingURL, "depth", depth, "children", len(children))

	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.visit(ctx, child, depth, parentDir); err != nil {
			return err
		}
	}
	return nil
}

// visit handles one child region. It returns an error only on cancellation.
func (w *Walker) visit(ctx context.Context, region models.Region, depth int, parentDir string) error {
	region.Depth = depth
	region.Directory = filepath.Join(parentDir, region.Name)
	v := Visit{Region: region}
	w.summary.Regions++

	if w.Out != nil {
		fmt.Fprintf(w.Out, "%s%s %s\n", strings.Repeat(" ", depth), region.Name, region.ListingURL)
	}

	defer func() {
		if v.Err != nil {
			w.summary.Errors = append(w.summary.Errors, RegionError{Region: region.Directory, Err: v.Err})
		}
		w.record(ctx, v)
	}()

	if err := storage.EnsureDir(region.Directory); err != nil {
		v.Err = fmt.Errorf("%w: %w", pipeline.ErrFilesystem, err)
		w.logger().Error("Skipping region subtree", "region", region.Name, "dir", region.Directory, "error", err)
		return nil
	}

	paths := artifact_manager.Resolve(parentDir, region.Name)
	moves, err := artifact_manager.Migrate(paths)
	v.Moves = moves
	w.summary.Migrations += len(moves)
	for _, m := range moves {
		w.logger().Info("Migrated legacy artifact", "region", region.Name, "kind", m.Kind.String(), "from", m.From, "to", m.To)
	}
	if err != nil {
		v.Err = fmt.Errorf("%w: %w", pipeline.ErrFilesystem, err)
		w.logger().Error("Skipping region subtree", "region", region.Name, "error", err)
		return nil
	}

	report, runErr := w.Runner.Run(ctx, region, paths)
	v.Report = report
	w.tally(report)
	if runErr != nil {
		v.Err = runErr
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}

	if w.MaxDepth == 0 || depth+1 < w.MaxDepth {
		if err := w.Walk(ctx, region.ListingURL, depth+1, region.Directory); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			v.Err = errors.Join(v.Err, err)
			w.logger().Error("Subregion listing failed", "region", region.Name, "url", region.ListingURL, "error", err)
		}
	}

	pruned, err := artifact_manager.PruneIfEmpty(region.Directory)
	if err != nil {
		v.Err = errors.Join(v.Err, fmt.Errorf("%w: %w", pipeline.ErrFilesystem, err))
		w.logger().Error("Prune failed", "region", region.Name, "dir", region.Directory, "error", err)
		return nil
	}
	if pruned {
		v.Pruned = true
		w.summary.Pruned++
		w.logger().Info("Pruned region without maps", "region", region.Name, "dir", region.Directory)
	}
	return nil
}

func (w *Walker) tally(r pipeline.Report) {
	count := func(stage models.Stage, done *int) {
		switch r.Outcomes[stage] {
		case models.OutcomeDone:
			*done++
		case models.OutcomeFailed:
			w.summary.Failures++
		}
	}
	count(models.StageAcquire, &w.summary.Downloads)
	count(models.StageFilter, &w.summary.Filters)
	count(models.StageConvert, &w.summary.Conversions)
	w.summary.Bytes += r.Bytes
}

func (w *Walker) record(ctx context.Context, v Visit) {
	if w.Recorder == nil {
		return
	}
	if err := w.Recorder.RecordVisit(ctx, v); err != nil {
		w.logger().Warn("Failed to record visit", "region", v.Region.Name, "error", err)
	}
}

func (w *Walker) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return w.Logger
}
