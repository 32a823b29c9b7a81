// Package models defines data structures for configuration and region traversal.
package models

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRootURL        = "https://download.geofabrik.de/"
	DefaultOutputDir      = "."
	DefaultOsmiumBinary   = "/usr/local/bin/osmium"
	DefaultJavaBinary     = "java"
	DefaultConverterJar   = "osm-tickettoride.jar"
	DefaultUserAgent      = "region-maps/1.0"
	DefaultHTTPTimeout    = 2 * time.Minute
	DefaultListingMaxAge  = 24 * time.Hour
	DefaultLockFileName   = ".region-maps.lock"
	DefaultLedgerFileName = "region-maps.db"
)

// DefaultFilterCriteria selects rail, station and stop records.
var DefaultFilterCriteria = []string{
	"railway=rail,halt,station,stop",
	"public_transport=stop_position",
	"route=railway,train,tracks",
}

// PrepareConfig holds runtime configuration for a prepare run.
// Values come from an optional YAML file, then CLI flags / environment override them.
type PrepareConfig struct {
	RootURL         string        `yaml:"root_url"`
	OutputDir       string        `yaml:"output_dir"`
	OsmiumBinary    string        `yaml:"osmium_binary"`
	FilterCriteria  []string      `yaml:"filter_criteria"`
	JavaBinary      string        `yaml:"java_binary"`
	ConverterJar    string        `yaml:"converter_jar"`
	KeepFiltered    bool          `yaml:"keep_filtered"`
	MaxDepth        int           `yaml:"max_depth"` // 0 means unlimited
	ListingCacheDir string        `yaml:"listing_cache_dir"`
	ListingMaxAge   time.Duration `yaml:"listing_max_age"`
	UserAgent       string        `yaml:"user_agent"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
	DBPath          string        `yaml:"db_path"`
}

// DefaultPrepareConfig returns a config populated with built-in defaults.
func DefaultPrepareConfig() *PrepareConfig {
	criteria := make([]string, len(DefaultFilterCriteria))
	copy(criteria, DefaultFilterCriteria)
	return &PrepareConfig{
		RootURL:        DefaultRootURL,
		OutputDir:      DefaultOutputDir,
		OsmiumBinary:   DefaultOsmiumBinary,
		FilterCriteria: criteria,
		JavaBinary:     DefaultJavaBinary,
		ConverterJar:   DefaultConverterJar,
		ListingMaxAge:  DefaultListingMaxAge,
		UserAgent:      DefaultUserAgent,
		HTTPTimeout:    DefaultHTTPTimeout,
	}
}

// LoadConfig reads a YAML config file on top of the defaults.
// An empty path returns the defaults unchanged.
func LoadConfig(path string) (*PrepareConfig, error) {
	cfg := DefaultPrepareConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the config can drive a run.
func (c *PrepareConfig) Validate() error {
	parsed, err := url.Parse(strings.TrimSpace(c.RootURL))
	if err != nil {
		return fmt.Errorf("invalid root_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid root_url %q: scheme must be http or https", c.RootURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid root_url %q: missing host", c.RootURL)
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("output_dir is required")
	}
	if strings.TrimSpace(c.OsmiumBinary) == "" {
		return fmt.Errorf("osmium_binary is required")
	}
	if len(c.FilterCriteria) == 0 {
		return fmt.Errorf("filter_criteria must name at least one tag expression")
	}
	if strings.TrimSpace(c.JavaBinary) == "" || strings.TrimSpace(c.ConverterJar) == "" {
		return fmt.Errorf("java_binary and converter_jar are required")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must be >= 0, got %d", c.MaxDepth)
	}
	return nil
}
