package paths

import (
	"fmt"

	"github.com/dtnitsch/region-maps/internal/common"
	"github.com/dtnitsch/region-maps/pkg/artifact_manager"
	"github.com/dtnitsch/region-maps/pkg/storage"
	"github.com/urfave/cli/v2"
)

// PathsAction prints canonical and legacy artifact paths for a region and
// whether each one is present on disk.
func PathsAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("Usage: region-maps paths <parent-dir> <region-name>", 1)
	}
	p := artifact_manager.Resolve(c.Args().Get(0), c.Args().Get(1))

	var rows [][]string
	for _, k := range artifact_manager.Kinds {
		rows = append(rows,
			[]string{k.String(), "canonical", p.Canonical(k), present(p.Canonical(k))},
			[]string{k.String(), "legacy", p.Legacy(k), present(p.Legacy(k))},
		)
	}
	fmt.Fprintln(c.App.Writer, common.RenderTable([]string{"Kind", "Layout", "Path", "Present"}, rows))
	return nil
}

func present(path string) string {
	if storage.Exists(path) {
		return "yes"
	}
	return "no"
}
