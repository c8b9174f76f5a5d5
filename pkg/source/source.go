// Package source discovers candidate Parquet files on local disk or S3.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ParquetExtension is the file suffix used to select input files.
const ParquetExtension = ".parquet"

// ErrSourceUnavailable is returned when the configured source cannot be
// enumerated at all (missing directory, inaccessible bucket or prefix).
// It is fatal: there is nothing to process.
var ErrSourceUnavailable = errors.New("source: unavailable")

// Locator identifies one input file. Exactly one of Path or Bucket/Key is
// set. Locators are immutable value types.
type Locator struct {
	// Path is set for local files.
	Path string

	// Bucket and Key are set for S3 objects.
	Bucket string
	Key    string

	// Size and ETag are populated for S3 objects from the listing.
	Size int64
	ETag string
}

// IsLocal reports whether the locator points at the local filesystem.
func (l Locator) IsLocal() bool {
	return l.Path != ""
}

// String renders the locator as a path or s3:// URL.
func (l Locator) String() string {
	if l.IsLocal() {
		return l.Path
	}
	return fmt.Sprintf("s3://%s/%s", l.Bucket, l.Key)
}

// ID returns a stable identity for ledger keys: the rendered locator.
func (l Locator) ID() string {
	return l.String()
}

// Enumerator produces the finite, stably ordered sequence of input files.
// No locator is yielded twice within one enumeration.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Locator, error)
}

// isParquet reports whether a name carries the Parquet extension.
func isParquet(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ParquetExtension)
}
