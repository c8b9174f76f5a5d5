package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// LocalEnumerator lists Parquet files in a local directory.
type LocalEnumerator struct {
	// Dir is the directory to scan.
	Dir string

	// Recursive walks subdirectories when set; otherwise only the top
	// level of Dir is scanned.
	Recursive bool
}

// Enumerate returns the Parquet files under Dir in sorted path order.
func (e *LocalEnumerator) Enumerate(ctx context.Context) ([]Locator, error) {
	info, err := os.Stat(e.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, e.Dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceUnavailable, e.Dir)
	}

	var locators []Locator

	if e.Recursive {
		err = filepath.WalkDir(e.Dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() || !isParquet(d.Name()) {
				return nil
			}
			locators = append(locators, Locator{Path: path})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: walking %s: %v", ErrSourceUnavailable, e.Dir, err)
		}
	} else {
		entries, err := os.ReadDir(e.Dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, e.Dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !isParquet(entry.Name()) {
				continue
			}
			locators = append(locators, Locator{Path: filepath.Join(e.Dir, entry.Name())})
		}
	}

	// WalkDir and ReadDir both return lexical order already; sort anyway so
	// the ordering contract does not depend on that detail.
	sort.Slice(locators, func(i, j int) bool {
		return locators[i].Path < locators[j].Path
	})

	return locators, nil
}
