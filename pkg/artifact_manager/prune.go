package artifact_manager

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var errFoundResult = errors.New("result found")

// HasResult reports whether dir contains a result artifact at any depth.
func HasResult(dir string) (bool, error) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ResultSuffix) {
			return errFoundResult
		}
		return nil
	})
	switch {
	case errors.Is(err, errFoundResult):
		return true, nil
	case err != nil:
		return false, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	return false, nil
}

// PruneIfEmpty removes dir and everything under it unless some file in the
// subtree ends in the result suffix. It returns true when dir was removed.
// A missing dir is not an error.
func PruneIfEmpty(dir string) (bool, error) {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	found, err := HasResult(dir)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}

	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	return true, nil
}
