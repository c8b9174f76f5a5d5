// Package fetch materializes file locators into local readable paths.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"

	"github.com/icelift/icelift/pkg/source"
)

// ErrFetchFailed is returned when a remote object cannot be downloaded.
// It is a per-file failure; the run continues with remaining files.
var ErrFetchFailed = errors.New("fetch: download failed")

// Materialized is a locator plus a guaranteed-local readable path.
type Materialized struct {
	Locator source.Locator

	// LocalPath is always readable after Materialize succeeds.
	LocalPath string

	// Fetched is true when the file was downloaded into the staging
	// directory (as opposed to already being local).
	Fetched bool
}

// ObjectGetter is the subset of the S3 client the fetcher needs.
type ObjectGetter interface {
	Reader(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)
}

// Fetcher materializes locators. Local locators are passed through; remote
// locators are downloaded into Dir.
type Fetcher struct {
	// Getter downloads remote objects. May be nil when only local
	// locators are expected.
	Getter ObjectGetter

	// Dir is the staging directory for downloads.
	Dir string

	// KeepFetched retains downloaded files after a successful apply.
	// Set when the staging directory was explicitly chosen by the user.
	KeepFetched bool

	// ShowProgress renders a progress bar during downloads.
	ShowProgress bool
}

// Materialize ensures loc is readable at a local path.
func (f *Fetcher) Materialize(ctx context.Context, loc source.Locator) (*Materialized, error) {
	if loc.IsLocal() {
		return &Materialized{Locator: loc, LocalPath: loc.Path}, nil
	}

	if f.Getter == nil {
		return nil, fmt.Errorf("%w: no object store client configured for %s", ErrFetchFailed, loc)
	}

	localPath, err := f.download(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, loc, err)
	}

	return &Materialized{Locator: loc, LocalPath: localPath, Fetched: true}, nil
}

// download fetches the object into the staging directory, preserving the
// key's path structure so identical basenames under different prefixes do
// not collide. The file is written to a .partial path and renamed into
// place only once the full body has been copied.
func (f *Fetcher) download(ctx context.Context, loc source.Locator) (string, error) {
	localPath := filepath.Join(f.Dir, filepath.FromSlash(loc.Key))
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return "", err
	}

	body, size, err := f.Getter.Reader(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return "", err
	}
	defer body.Close()

	partial := localPath + ".partial"
	file, err := os.Create(partial)
	if err != nil {
		return "", err
	}

	var dst io.Writer = file
	if f.ShowProgress {
		bar := progressbar.DefaultBytes(size, filepath.Base(loc.Key))
		dst = io.MultiWriter(file, bar)
	}

	if _, err := io.Copy(dst, body); err != nil {
		file.Close()
		os.Remove(partial)
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(partial)
		return "", err
	}

	if err := os.Rename(partial, localPath); err != nil {
		os.Remove(partial)
		return "", err
	}

	return localPath, nil
}

// Cleanup removes a fetched file after a successful apply, honoring the
// retention policy. Files that were local to begin with are never touched.
func (f *Fetcher) Cleanup(m *Materialized) error {
	if m == nil || !m.Fetched || f.KeepFetched {
		return nil
	}
	return os.Remove(m.LocalPath)
}
