package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dtnitsch/region-maps/pkg/artifact_manager"
	"github.com/dtnitsch/region-maps/pkg/storage"
	"github.com/dtnitsch/region-maps/pkg/walker"
	"gopkg.in/yaml.v3"
)

const FileName = "manifest.yaml"

// Manifest lists every map present in the output tree after a run.
type Manifest struct {
	GeneratedAt string     `yaml:"generated_at"`
	RunID       int64      `yaml:"run_id,omitempty"`
	RootURL     string     `yaml:"root_url"`
	Status      string     `yaml:"status"`
	Totals      Totals     `yaml:"totals"`
	Maps        []MapEntry `yaml:"maps"`
}

// Totals mirrors the run summary counters.
type Totals struct {
	Maps            int   `yaml:"maps"`
	MapBytes        int64 `yaml:"map_bytes"`
	Regions         int   `yaml:"regions_visited"`
	Downloads       int   `yaml:"downloads"`
	Conversions     int   `yaml:"conversions"`
	Failures        int   `yaml:"failures"`
	BytesDownloaded int64 `yaml:"bytes_downloaded"`
}

// MapEntry describes one result file. Path is relative to the output dir.
type MapEntry struct {
	Region     string `yaml:"region"`
	Path       string `yaml:"path"`
	SizeBytes  int64  `yaml:"size_bytes"`
	ModifiedAt string `yaml:"modified_at"`
}

// Generate scans outputDir for result files and combines them with the run summary.
func Generate(outputDir string, runID int64, rootURL, status string, summary *walker.Summary) (*Manifest, error) {
	m := &Manifest{
		GeneratedAt: time.Now().Format(time.RFC3339),
		RunID:       runID,
		RootURL:     rootURL,
		Status:      status,
	}

	err := filepath.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), artifact_manager.ResultSuffix) {
			return nil
		}
		stats, err := storage.GetFileStats(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(outputDir, path)
		if err != nil {
			return err
		}
		m.Maps = append(m.Maps, MapEntry{
			Region:     strings.TrimSuffix(rel, artifact_manager.ResultSuffix),
			Path:       filepath.ToSlash(rel),
			SizeBytes:  stats.SizeBytes,
			ModifiedAt: stats.ModTime.UTC().Format(time.RFC3339),
		})
		m.Totals.MapBytes += stats.SizeBytes
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan output tree: %w", err)
	}

	sort.Slice(m.Maps, func(i, j int) bool { return m.Maps[i].Path < m.Maps[j].Path })
	m.Totals.Maps = len(m.Maps)
	if summary != nil {
		m.Totals.Regions = summary.Regions
		m.Totals.Downloads = summary.Downloads
		m.Totals.Conversions = summary.Conversions
		m.Totals.Failures = summary.Failures
		m.Totals.BytesDownloaded = summary.Bytes
	}
	return m, nil
}

// Write saves the manifest as outputDir/manifest.yaml and returns its path.
func Write(outputDir string, m *Manifest) (string, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("error marshalling manifest: %w", err)
	}

	path := filepath.Join(outputDir, FileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("error saving manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("error saving manifest: %w", err)
	}
	return path, nil
}
