// Package catalog talks to an Iceberg REST catalog: idempotent namespace
// and table creation, and append commits.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/icelift/icelift/pkg/schema"
)

var (
	// ErrCatalogUnreachable is returned when the catalog cannot be
	// reached at setup. Fatal: the run stops before touching any file.
	ErrCatalogUnreachable = errors.New("catalog: unreachable")

	// ErrCreateFailed is returned when namespace or table creation fails
	// for a reason other than already-exists.
	ErrCreateFailed = errors.New("catalog: create failed")

	// ErrSchemaConflict is returned when the table exists with a schema
	// the input files cannot be appended to. Nothing is altered.
	ErrSchemaConflict = errors.New("catalog: table schema conflict")

	// ErrAppendFailed is returned when an append commit is rejected after
	// its single local retry. The table stays at its prior snapshot.
	ErrAppendFailed = errors.New("catalog: append failed")
)

// Target identifies where data lands. Immutable; passed explicitly from the
// CLI down to the gateway, never read from ambient state.
type Target struct {
	Endpoint  string
	Token     string
	Warehouse string
	Namespace string
	Table     string
}

// Identifier returns namespace.table for log output.
func (t Target) Identifier() string {
	return t.Namespace + "." + t.Table
}

// DataFile describes one Parquet file to commit.
type DataFile struct {
	// Path is the file location recorded in the commit.
	Path string

	// Rows and SizeBytes are taken from the file metadata.
	Rows      int64
	SizeBytes int64
}

// Catalog is the raw catalog surface. Implementations must make create
// operations idempotent: creating something that exists is success.
type Catalog interface {
	EnsureNamespace(ctx context.Context) error
	EnsureTable(ctx context.Context, s schema.Schema) error
	Append(ctx context.Context, df DataFile) (snapshotID int64, err error)
}

// readiness is the per-run target state machine:
// absent -> namespace ready -> table ready -> (append)*.
type readiness int

const (
	stateAbsent readiness = iota
	stateNamespaceReady
	stateTableReady
)

// Gateway wraps a Catalog and memoizes target readiness so namespace and
// table creation happen at most once per run, not once per file.
type Gateway struct {
	inner Catalog
	state readiness
}

// NewGateway wraps a raw catalog.
func NewGateway(inner Catalog) *Gateway {
	return &Gateway{inner: inner}
}

// Ready drives the target to TABLE_READY. Safe to call once per file; only
// the first call performs network round-trips.
func (g *Gateway) Ready(ctx context.Context, s schema.Schema) error {
	if g.state == stateAbsent {
		if err := g.inner.EnsureNamespace(ctx); err != nil {
			return err
		}
		g.state = stateNamespaceReady
	}
	if g.state == stateNamespaceReady {
		if err := g.inner.EnsureTable(ctx, s); err != nil {
			return err
		}
		g.state = stateTableReady
	}
	return nil
}

// Append commits one data file. The target must be ready.
func (g *Gateway) Append(ctx context.Context, df DataFile) (int64, error) {
	if g.state != stateTableReady {
		return 0, fmt.Errorf("%w: target not ready", ErrAppendFailed)
	}
	return g.inner.Append(ctx, df)
}
