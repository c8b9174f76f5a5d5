// Package checkpoint records successfully committed files so repeated runs
// of the same ingest skip work that is already durable in the catalog.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry records one committed file.
type Entry struct {
	// Locator is the rendered file locator (path or s3:// URL).
	Locator string `json:"locator"`

	// ETag and Size identify the object version that was ingested. A
	// re-listed object with a different etag or size is treated as new.
	ETag string `json:"etag,omitempty"`
	Size int64  `json:"size,omitempty"`

	// SnapshotID is the catalog snapshot the file landed in.
	SnapshotID int64 `json:"snapshot_id"`

	IngestedAt time.Time `json:"ingested_at"`
}

// Ledger is the ingest bookkeeping surface. Lookups that fail degrade to
// "not ingested" at the call site; recording failures are surfaced.
type Ledger interface {
	// Seen reports whether the locator was already committed with the
	// same etag and size.
	Seen(ctx context.Context, locator, etag string, size int64) (bool, error)

	// Record persists a committed entry.
	Record(ctx context.Context, e Entry) error

	Close() error
}

// Nop is a Ledger that remembers nothing. Used when idempotent re-runs are
// not enabled.
type Nop struct{}

func (Nop) Seen(context.Context, string, string, int64) (bool, error) { return false, nil }
func (Nop) Record(context.Context, Entry) error                      { return nil }
func (Nop) Close() error                                             { return nil }

// FileLedger persists entries in a local JSON file, rewritten atomically on
// every record.
type FileLedger struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
}

// OpenFileLedger loads (or initializes) a file-backed ledger.
func OpenFileLedger(path string) (*FileLedger, error) {
	l := &FileLedger{
		path:    path,
		entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &l.entries); err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", path, err)
	}
	return l, nil
}

// Seen implements Ledger.
func (l *FileLedger) Seen(_ context.Context, locator, etag string, size int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[locator]
	if !ok {
		return false, nil
	}
	return matches(e, etag, size), nil
}

// Record implements Ledger.
func (l *FileLedger) Record(_ context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[e.Locator] = e
	return l.flushLocked()
}

func (l *FileLedger) flushLocked() error {
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

// Close implements Ledger.
func (l *FileLedger) Close() error {
	return nil
}

// matches compares the recorded entry against the listed object identity.
// Local files carry no etag; size alone decides then (zero means unknown
// and matches).
func matches(e Entry, etag string, size int64) bool {
	if e.ETag != "" && etag != "" && e.ETag != etag {
		return false
	}
	if e.Size != 0 && size != 0 && e.Size != size {
		return false
	}
	return true
}
