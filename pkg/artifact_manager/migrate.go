package artifact_manager

import (
	"fmt"
	"os"

	"github.com/dtnitsch/region-maps/pkg/storage"
)

// Move records one legacy artifact relocated to its canonical path.
type Move struct {
	Kind Kind
	From string
	To   string
}

// Migrate relocates legacy-layout artifacts to their canonical paths.
//
// Kinds are handled in the order raw, filtered, result. A move happens only
// when the legacy file exists and the canonical target does not, so existing
// canonical data is never overwritten. Raw and filtered share one legacy file:
// presence is re-checked before each move, so whichever kind moves first
// consumes it. The raw move is also skipped when the filtered or result
// artifact already exists, otherwise it would resurrect a stage that is done.
func Migrate(p Paths) ([]Move, error) {
	var moves []Move
	for _, k := range Kinds {
		from, to := p.Legacy(k), p.Canonical(k)
		if !storage.Exists(from) || storage.Exists(to) {
			continue
		}
		if k == KindRaw && (storage.Exists(p.Filtered) || storage.Exists(p.Result)) {
			continue
		}
		if err := os.Rename(from, to); err != nil {
			return moves, fmt.Errorf("failed to migrate %s artifact %s -> %s: %w", k, from, to, err)
		}
		moves = append(moves, Move{Kind: k, From: from, To: to})
	}
	return moves, nil
}
