package artifact_manager

import (
	"fmt"
	"path/filepath"
)

const (
	RawSuffix      = ".osm.pbf"
	FilteredSuffix = ".filtered.osm.pbf"
	ResultSuffix   = ".map"

	// Legacy per-region subfolder layout. Raw and filtered extracts shared one file name.
	LegacyExtractName = "map-filtered.osm.pbf"
	LegacyResultName  = "generated.map"
)

// Kind identifies one of the three artifacts a region can produce.
type Kind int

const (
	KindRaw Kind = iota
	KindFiltered
	KindResult
)

// Kinds lists artifact kinds in migration order.
var Kinds = []Kind{KindRaw, KindFiltered, KindResult}

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindFiltered:
		return "filtered"
	case KindResult:
		return "result"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Paths holds every on-disk location a region's artifacts may occupy.
type Paths struct {
	ParentDir string
	Name      string

	Raw      string
	Filtered string
	Result   string

	LegacyRaw      string
	LegacyFiltered string
	LegacyResult   string
}

// Resolve computes canonical and legacy artifact paths for a region.
// It performs no I/O and depends only on its arguments.
// Example: Resolve("out/europe", "Germany").Result == "out/europe/Germany.map"
func Resolve(parentDir, name string) Paths {
	base := filepath.Join(parentDir, name)
	return Paths{
		ParentDir:      parentDir,
		Name:           name,
		Raw:            base + RawSuffix,
		Filtered:       base + FilteredSuffix,
		Result:         base + ResultSuffix,
		LegacyRaw:      filepath.Join(base, LegacyExtractName),
		LegacyFiltered: filepath.Join(base, LegacyExtractName),
		LegacyResult:   filepath.Join(base, LegacyResultName),
	}
}

// Dir returns the region's own output directory (parentDir/name).
func (p Paths) Dir() string {
	return filepath.Join(p.ParentDir, p.Name)
}

// Canonical returns the current path for an artifact kind.
func (p Paths) Canonical(k Kind) string {
	switch k {
	case KindRaw:
		return p.Raw
	case KindFiltered:
		return p.Filtered
	default:
		return p.Result
	}
}

// Legacy returns the old-layout path for an artifact kind.
func (p Paths) Legacy(k Kind) string {
	switch k {
	case KindRaw:
		return p.LegacyRaw
	case KindFiltered:
		return p.LegacyFiltered
	default:
		return p.LegacyResult
	}
}
