package prepare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/dtnitsch/region-maps/internal/common"
	"github.com/dtnitsch/region-maps/models"
	"github.com/dtnitsch/region-maps/pkg/caching"
	"github.com/dtnitsch/region-maps/pkg/db"
	"github.com/dtnitsch/region-maps/pkg/fetcher"
	"github.com/dtnitsch/region-maps/pkg/manifest"
	"github.com/dtnitsch/region-maps/pkg/parser"
	"github.com/dtnitsch/region-maps/pkg/pipeline"
	"github.com/dtnitsch/region-maps/pkg/storage"
	"github.com/dtnitsch/region-maps/pkg/tools"
	"github.com/dtnitsch/region-maps/pkg/walker"
	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/urfave/cli/v2"
)

const (
	StatusSuccess        = "success"
	StatusPartialFailure = "partial_failure"
	StatusFailed         = "failed"
)

// ConfigFromContext loads the optional config file and applies flag overrides.
func ConfigFromContext(c *cli.Context) (*models.PrepareConfig, error) {
	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("root-url") {
		cfg.RootURL = c.String("root-url")
	}
	if c.IsSet("output-dir") {
		cfg.OutputDir = c.String("output-dir")
	}
	if c.IsSet("osmium") {
		cfg.OsmiumBinary = c.String("osmium")
	}
	if c.IsSet("filter") {
		cfg.FilterCriteria = c.StringSlice("filter")
	}
	if c.IsSet("java") {
		cfg.JavaBinary = c.String("java")
	}
	if c.IsSet("converter-jar") {
		cfg.ConverterJar = c.String("converter-jar")
	}
	if c.IsSet("keep-filtered") {
		cfg.KeepFiltered = c.Bool("keep-filtered")
	}
	if c.IsSet("max-depth") {
		cfg.MaxDepth = c.Int("max-depth")
	}
	if c.IsSet("listing-cache-dir") {
		cfg.ListingCacheDir = c.String("listing-cache-dir")
	}
	if c.IsSet("listing-max-age") {
		cfg.ListingMaxAge = c.Duration("listing-max-age")
	}
	if c.IsSet("user-agent") {
		cfg.UserAgent = c.String("user-agent")
	}
	if c.IsSet("http-timeout") {
		cfg.HTTPTimeout = c.Duration("http-timeout")
	}
	if c.IsSet("db") {
		cfg.DBPath = c.String("db")
	}

	cfg.RootURL = common.SanitizeURL(cfg.RootURL)
	if cfg.ListingCacheDir == "" {
		cfg.ListingCacheDir = filepath.Join(cfg.OutputDir, ".listing-cache")
	}
	return cfg, cfg.Validate()
}

func PrepareAction(c *cli.Context) error {
	logger := common.NewLogger(c)

	cfg, err := ConfigFromContext(c)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return cli.Exit(fmt.Sprintf("Error: %v", err), 2)
	}

	if err := storage.EnsureDir(cfg.OutputDir); err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 2)
	}

	lockPath := filepath.Join(cfg.OutputDir, models.DefaultLockFileName)
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: acquire lock %s: %v", lockPath, err), 2)
	}
	if !locked {
		return cli.Exit(fmt.Sprintf("Error: another run is already using %s", cfg.OutputDir), 2)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", "lock", lockPath, "error", err)
		}
	}()

	database, err := db.Open(cfg.DBPath, cfg.OutputDir)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return cli.Exit(fmt.Sprintf("Error: %v", err), 2)
	}
	defer database.Close()

	ledger, err := db.NewLedger(database, cfg.RootURL, cfg.OutputDir)
	if err != nil {
		logger.Error("failed to start run", "error", err)
		return cli.Exit(fmt.Sprintf("Error: %v", err), 2)
	}

	w, err := buildWalker(cfg, ledger, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 2)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting traversal", "run_id", ledger.RunID(), "root_url", cfg.RootURL, "output_dir", cfg.OutputDir, "max_depth", cfg.MaxDepth)
	summary, runErr := w.Run(ctx, cfg.RootURL, cfg.OutputDir)

	status := StatusSuccess
	switch {
	case runErr != nil:
		status = StatusFailed
	case len(summary.Errors) > 0:
		status = StatusPartialFailure
	}
	if err := ledger.Finish(summary, status); err != nil {
		logger.Warn("failed to record run summary", "run_id", ledger.RunID(), "error", err)
	}

	if runErr == nil {
		if err := writeManifest(cfg, ledger.RunID(), status, summary); err != nil {
			logger.Warn("failed to write manifest", "output_dir", cfg.OutputDir, "error", err)
		}
	}

	fmt.Println()
	fmt.Println(RenderSummary(summary))
	for _, e := range summary.Errors {
		fmt.Fprintf(os.Stderr, "  - %s: %v\n", e.Region, e.Err)
	}
	fmt.Printf("Run %d: %s\n", ledger.RunID(), status)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return cli.Exit("Interrupted; re-run to resume", 1)
		}
		logger.Error("traversal failed", "error", runErr)
		return cli.Exit(fmt.Sprintf("Error: %v", runErr), 2)
	}
	if status == StatusPartialFailure {
		return cli.Exit("", 1)
	}
	return nil
}

func buildWalker(cfg *models.PrepareConfig, ledger *db.Ledger, logger *slog.Logger) (*walker.Walker, error) {
	opts := []fetcher.Option{
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithTimeout(cfg.HTTPTimeout),
	}
	if cfg.ListingMaxAge > 0 {
		cache, err := caching.NewListingCache(cfg.ListingCacheDir, cfg.ListingMaxAge)
		if err != nil {
			return nil, err
		}
		opts = append(opts, fetcher.WithListingCache(cache))
	}
	f := fetcher.NewFetcher(opts...)

	exec := tools.CommandExecutor{Logger: logger}
	osmium, err := tools.NewOsmium(cfg.OsmiumBinary, cfg.FilterCriteria, exec)
	if err != nil {
		return nil, err
	}
	converter, err := tools.NewConverter(cfg.JavaBinary, cfg.ConverterJar, exec)
	if err != nil {
		return nil, err
	}

	runner := &pipeline.Runner{
		Downloader: f,
		Filter:     osmium,
		Converter:  converter,
		Recorder:   ledger,
		Logger:     logger,
		Out:        os.Stdout,

		KeepFiltered: cfg.KeepFiltered,
	}
	return &walker.Walker{
		Source:   f,
		Parser:   &parser.Parser{},
		Runner:   runner,
		Recorder: ledger,
		Logger:   logger,
		Out:      os.Stdout,
		MaxDepth: cfg.MaxDepth,
	}, nil
}

func writeManifest(cfg *models.PrepareConfig, runID int64, status string, summary *walker.Summary) error {
	m, err := manifest.Generate(cfg.OutputDir, runID, cfg.RootURL, status, summary)
	if err != nil {
		return err
	}
	path, err := manifest.Write(cfg.OutputDir, m)
	if err != nil {
		return err
	}
	fmt.Printf("Manifest: %s (%d maps, %s)\n", path, m.Totals.Maps, humanize.Bytes(uint64(m.Totals.MapBytes)))
	return nil
}

// RenderSummary formats traversal counters as a table.
func RenderSummary(s *walker.Summary) string {
	rows := [][]string{
		{"Regions visited", strconv.Itoa(s.Regions)},
		{"Downloads", strconv.Itoa(s.Downloads)},
		{"Downloaded", humanize.Bytes(uint64(s.Bytes))},
		{"Filtered", strconv.Itoa(s.Filters)},
		{"Converted", strconv.Itoa(s.Conversions)},
		{"Stage failures", strconv.Itoa(s.Failures)},
		{"Legacy migrations", strconv.Itoa(s.Migrations)},
		{"Pruned directories", strconv.Itoa(s.Pruned)},
		{"Regions with errors", strconv.Itoa(len(s.Errors))},
	}
	return common.RenderTable([]string{"Metric", "Value"}, rows, 1)
}
