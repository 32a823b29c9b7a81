package status

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dtnitsch/region-maps/internal/common"
	"github.com/dtnitsch/region-maps/models"
	dbpkg "github.com/dtnitsch/region-maps/pkg/db"
	"github.com/dtnitsch/region-maps/pkg/storage"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// RunView is the YAML shape of a run in `status --format yaml`.
type RunView struct {
	RunID       int64                     `yaml:"run_id"`
	Started     string                    `yaml:"started"`
	Finished    string                    `yaml:"finished,omitempty"`
	RootURL     string                    `yaml:"root_url"`
	OutputDir   string                    `yaml:"output_dir"`
	Status      string                    `yaml:"status"`
	Regions     int                       `yaml:"regions"`
	Downloads   int                       `yaml:"downloads"`
	Filters     int                       `yaml:"filters"`
	Conversions int                       `yaml:"conversions"`
	Failures    int                       `yaml:"failures"`
	Migrations  int                       `yaml:"migrations"`
	Pruned      int                       `yaml:"pruned"`
	Downloaded  string                    `yaml:"downloaded"`
	Stages      map[string]map[string]int `yaml:"stages,omitempty"`
	Failed      map[string]string         `yaml:"failed_regions,omitempty"`
}

func StatusAction(c *cli.Context) error {
	w := c.App.Writer

	// Reading status never creates a ledger.
	if !storage.Exists(dbpkg.ResolvePath(c.String("db"), c.String("output-dir"))) {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	database, err := dbpkg.Open(c.String("db"), c.String("output-dir"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	runs, err := database.ListRuns(c.Int("limit"))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	views := make([]RunView, 0, len(runs))
	for _, r := range runs {
		v := newRunView(r)
		if c.Bool("details") {
			if v.Stages, err = database.StageCounts(r.RunID); err != nil {
				return err
			}
			if v.Failed, err = database.FailedRegions(r.RunID); err != nil {
				return err
			}
		}
		views = append(views, v)
	}

	if strings.EqualFold(c.String("format"), "yaml") {
		out, err := yaml.Marshal(views)
		if err != nil {
			return fmt.Errorf("failed to marshal runs: %w", err)
		}
		fmt.Fprint(w, string(out))
		return nil
	}

	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{
			strconv.FormatInt(v.RunID, 10), v.Started, v.Status, strconv.Itoa(v.Regions),
			strconv.Itoa(v.Downloads), strconv.Itoa(v.Filters), strconv.Itoa(v.Conversions),
			strconv.Itoa(v.Failures), strconv.Itoa(v.Pruned), v.Downloaded,
		})
	}
	fmt.Fprintln(w, common.RenderTable(
		[]string{"ID", "Started", "Status", "Regions", "Downloads", "Filtered", "Converted", "Failures", "Pruned", "Bytes"},
		rows, 0, 3, 4, 5, 6, 7, 8, 9,
	))

	if c.Bool("details") {
		for _, v := range views {
			printDetails(w, v)
		}
	}
	return nil
}

func newRunView(r dbpkg.Run) RunView {
	v := RunView{
		RunID:       r.RunID,
		Started:     r.StartedAt.Format("2006-01-02 15:04:05"),
		RootURL:     r.RootURL,
		OutputDir:   r.OutputDir,
		Status:      r.Status,
		Regions:     r.RegionCount,
		Downloads:   r.DownloadCount,
		Filters:     r.FilterCount,
		Conversions: r.ConversionCount,
		Failures:    r.FailureCount,
		Migrations:  r.MigrationCount,
		Pruned:      r.PrunedCount,
		Downloaded:  humanize.Bytes(uint64(r.BytesDownloaded)),
	}
	if r.FinishedAt.Valid {
		v.Finished = r.FinishedAt.Time.Format("2006-01-02 15:04:05")
	}
	return v
}

func printDetails(w io.Writer, v RunView) {
	fmt.Fprintf(w, "\nRun %d stages:\n", v.RunID)
	var rows [][]string
	for _, stage := range models.Stages {
		outcomes := v.Stages[string(stage)]
		keys := make([]string, 0, len(outcomes))
		for k := range outcomes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			rows = append(rows, []string{string(stage), k, strconv.Itoa(outcomes[k])})
		}
	}
	fmt.Fprintln(w, common.RenderTable([]string{"Stage", "Outcome", "Count"}, rows, 2))

	if len(v.Failed) > 0 {
		dirs := make([]string, 0, len(v.Failed))
		for d := range v.Failed {
			dirs = append(dirs, d)
		}
		sort.Strings(dirs)
		fmt.Fprintf(w, "Regions with errors:\n")
		for _, d := range dirs {
			fmt.Fprintf(w, "  - %s: %s\n", d, v.Failed[d])
		}
	}
}
