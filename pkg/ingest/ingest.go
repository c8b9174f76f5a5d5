// Package ingest drives the pipeline: enumerate, materialize, normalize,
// ensure the catalog target, append, report.
package ingest

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/icelift/icelift/pkg/catalog"
	"github.com/icelift/icelift/pkg/checkpoint"
	"github.com/icelift/icelift/pkg/fetch"
	"github.com/icelift/icelift/pkg/schema"
	"github.com/icelift/icelift/pkg/source"
	"github.com/icelift/icelift/pkg/telemetry"
)

// Materializer is the fetch surface the runner needs.
type Materializer interface {
	Materialize(ctx context.Context, loc source.Locator) (*fetch.Materialized, error)
	Cleanup(m *fetch.Materialized) error
}

// TargetGateway is the catalog surface the runner needs.
type TargetGateway interface {
	Ready(ctx context.Context, s schema.Schema) error
	Append(ctx context.Context, df catalog.DataFile) (int64, error)
}

// Result is the per-file outcome.
type Result struct {
	Locator    source.Locator
	Rows       int64
	SnapshotID int64
	Skipped    bool
	Duration   time.Duration
	Err        error
}

// Report aggregates per-file results for the final summary.
type Report struct {
	Results []Result
}

// Succeeded counts files committed in this run.
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil && !res.Skipped {
			n++
		}
	}
	return n
}

// Failed counts per-file failures.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Skipped counts files the ledger recognized as already ingested.
func (r *Report) Skipped() int {
	n := 0
	for _, res := range r.Results {
		if res.Skipped {
			n++
		}
	}
	return n
}

// Runner wires the pipeline components. Files are processed one at a time
// in enumeration order; a per-file failure is recorded and the run moves
// on. Failures while readying the catalog target are fatal: every
// remaining file would hit the same wall.
type Runner struct {
	Enumerator source.Enumerator
	Fetcher    Materializer
	Gateway    TargetGateway
	Ledger     checkpoint.Ledger
	Telemetry  *telemetry.Telemetry

	// ListOnly stops after enumeration: no fetch, no catalog calls.
	ListOnly bool

	// OnResult, when set, observes each result as it happens.
	OnResult func(Result)

	// Schema hooks; overridable in tests. Nil means the real parquet
	// implementations.
	Inspect func(path string) (schema.Schema, int64, error)
	Rewrite func(ctx context.Context, path string, rewrites []schema.Rewrite) error

	// tableSchema is the normalized schema the target was readied with.
	// Set by the first processed file.
	tableSchema *schema.Schema
}

// Run executes the pipeline. The returned error is non-nil only for fatal
// conditions (source unavailable, catalog target cannot be readied,
// context canceled); per-file failures live in the report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	ctx, span := r.Telemetry.Start(ctx, "ingest.run")
	defer span.End()

	locators, err := r.enumerate(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	if r.ListOnly {
		for _, loc := range locators {
			report.Results = append(report.Results, Result{Locator: loc, Skipped: false})
		}
		return report, nil
	}

	for _, loc := range locators {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		res, fatal := r.process(ctx, loc)
		report.Results = append(report.Results, res)
		if r.OnResult != nil {
			r.OnResult(res)
		}
		if fatal != nil {
			return report, fatal
		}
	}

	return report, nil
}

func (r *Runner) enumerate(ctx context.Context) ([]source.Locator, error) {
	ctx, span := r.Telemetry.Start(ctx, "ingest.enumerate")
	defer span.End()
	return r.Enumerator.Enumerate(ctx)
}

// process handles one file. The second return value is non-nil when the
// failure poisons the whole run rather than this file alone.
func (r *Runner) process(ctx context.Context, loc source.Locator) (Result, error) {
	start := time.Now()
	res := Result{Locator: loc}
	defer func() { res.Duration = time.Since(start) }()

	ctx, span := r.Telemetry.Start(ctx, "ingest.file",
		attribute.String("file", loc.String()))
	defer span.End()

	ledger := r.Ledger
	if ledger == nil {
		ledger = checkpoint.Nop{}
	}

	// A ledger read failure is not worth failing the file over; it only
	// costs us a redundant (idempotent) re-check downstream.
	if seen, err := ledger.Seen(ctx, loc.ID(), loc.ETag, loc.Size); err == nil && seen {
		res.Skipped = true
		return res, nil
	}

	m, err := r.Fetcher.Materialize(ctx, loc)
	if err != nil {
		res.Err = err
		return res, nil
	}

	inspect := r.Inspect
	if inspect == nil {
		inspect = schema.InspectFile
	}
	fileSchema, rows, err := inspect(m.LocalPath)
	if err != nil {
		res.Err = err
		return res, nil
	}
	res.Rows = rows

	normalized, rewrites, err := schema.Normalize(fileSchema)
	if err != nil {
		res.Err = err
		return res, nil
	}

	// The target is readied once, with the first file's normalized
	// schema. Later files must agree with it.
	if r.tableSchema == nil {
		if err := r.Gateway.Ready(ctx, normalized); err != nil {
			res.Err = err
			return res, err
		}
		r.tableSchema = &normalized
	} else if !normalized.Equal(*r.tableSchema) {
		res.Err = fmt.Errorf("%w: file schema %s does not match table schema %s",
			schema.ErrSchemaIncompatible, normalized, *r.tableSchema)
		return res, nil
	}

	rewrite := r.Rewrite
	if rewrite == nil {
		rewrite = schema.RewriteFile
	}
	if err := rewrite(ctx, m.LocalPath, rewrites); err != nil {
		res.Err = err
		return res, nil
	}

	var size int64
	if info, err := os.Stat(m.LocalPath); err == nil {
		size = info.Size()
	}

	snapshotID, err := r.Gateway.Append(ctx, catalog.DataFile{
		Path:      m.LocalPath,
		Rows:      rows,
		SizeBytes: size,
	})
	if err != nil {
		res.Err = err
		return res, nil
	}
	res.SnapshotID = snapshotID

	if err := ledger.Record(ctx, checkpoint.Entry{
		Locator:    loc.ID(),
		ETag:       loc.ETag,
		Size:       loc.Size,
		SnapshotID: snapshotID,
		IngestedAt: time.Now(),
	}); err != nil {
		// The append is durable; a ledger write failure only costs a
		// skipped optimization on the next run.
		fmt.Fprintf(os.Stderr, "warning: ledger record failed for %s: %v\n", loc, err)
	}

	if err := r.Fetcher.Cleanup(m); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cleanup failed for %s: %v\n", m.LocalPath, err)
	}

	return res, nil
}
