package main

import (
	"fmt"
	"os"

	"github.com/dtnitsch/region-maps/internal/paths"
	"github.com/dtnitsch/region-maps/internal/prepare"
	"github.com/dtnitsch/region-maps/internal/status"
	"github.com/dtnitsch/region-maps/models"
	"github.com/dtnitsch/region-maps/pkg/help"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// .env is optional; flags read REGION_MAPS_* from the environment.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	outputDirFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "output-dir",
			Aliases: []string{"o"},
			Usage:   "Root of the region tree on disk",
			Value:   models.DefaultOutputDir,
			EnvVars: []string{"REGION_MAPS_OUTPUT_DIR"},
		}
	}
	dbFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "db",
			Usage:   "Run ledger path (default: <output-dir>/region-maps.db)",
			EnvVars: []string{"REGION_MAPS_DB"},
		}
	}

	return &cli.App{
		Name:  "region-maps",
		Usage: "Mirror a regional extract catalog and build a transit map for every region",
		Commands: []*cli.Command{
			{
				Name:   "prepare",
				Usage:  "Walk the region catalog and download, filter and convert every region",
				Action: prepare.PrepareAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "YAML config file; flags override its values",
						EnvVars: []string{"REGION_MAPS_CONFIG"},
					},
					&cli.StringFlag{
						Name:    "root-url",
						Usage:   "Root listing page",
						Value:   models.DefaultRootURL,
						EnvVars: []string{"REGION_MAPS_ROOT_URL"},
					},
					outputDirFlag(),
					dbFlag(),
					&cli.StringFlag{
						Name:    "osmium",
						Usage:   "Path to the osmium binary",
						Value:   models.DefaultOsmiumBinary,
						EnvVars: []string{"REGION_MAPS_OSMIUM"},
					},
					&cli.StringSliceFlag{
						Name:  "filter",
						Usage: "osmium tags-filter expression (repeatable)",
						Value: cli.NewStringSlice(models.DefaultFilterCriteria...),
					},
					&cli.StringFlag{
						Name:    "java",
						Usage:   "Java binary used to run the converter",
						Value:   models.DefaultJavaBinary,
						EnvVars: []string{"REGION_MAPS_JAVA"},
					},
					&cli.StringFlag{
						Name:    "converter-jar",
						Usage:   "Converter jar",
						Value:   models.DefaultConverterJar,
						EnvVars: []string{"REGION_MAPS_CONVERTER_JAR"},
					},
					&cli.BoolFlag{
						Name:  "keep-filtered",
						Usage: "Keep the filtered extract after the map is generated",
					},
					&cli.IntFlag{
						Name:  "max-depth",
						Usage: "Levels of subregions to process (0 = unlimited)",
					},
					&cli.StringFlag{
						Name:  "listing-cache-dir",
						Usage: "Listing page cache (default: <output-dir>/.listing-cache)",
					},
					&cli.DurationFlag{
						Name:  "listing-max-age",
						Usage: "Reuse cached listing pages younger than this (0 disables the cache)",
						Value: models.DefaultListingMaxAge,
					},
					&cli.StringFlag{
						Name:  "user-agent",
						Usage: "User-Agent header for listing and extract requests",
						Value: models.DefaultUserAgent,
					},
					&cli.DurationFlag{
						Name:  "http-timeout",
						Usage: "Listing request timeout; for extracts, the connect, header and idle-read limit",
						Value: models.DefaultHTTPTimeout,
					},
					&cli.BoolFlag{
						Name:    "quiet",
						Aliases: []string{"q"},
						Usage:   "Only log errors",
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Log debug output, including tool output",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show recent runs from the ledger",
				Action: status.StatusAction,
				Flags: []cli.Flag{
					outputDirFlag(),
					dbFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of runs to show",
						Value: 10,
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format: table or yaml",
						Value: "table",
					},
					&cli.BoolFlag{
						Name:  "details",
						Usage: "Include per-stage outcome counts and failed regions",
					},
				},
			},
			{
				Name:  "quickstart",
				Usage: "Print a YAML cheat sheet of commands, layout and resume rules",
				Action: func(c *cli.Context) error {
					fmt.Print(help.QuickstartYAML)
					return nil
				},
			},
			{
				Name:      "paths",
				Usage:     "Print canonical and legacy artifact paths for a region",
				ArgsUsage: "<parent-dir> <region-name>",
				Action:    paths.PathsAction,
			},
		},
	}
}
