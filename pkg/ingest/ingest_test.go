package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/icelift/icelift/pkg/catalog"
	"github.com/icelift/icelift/pkg/checkpoint"
	"github.com/icelift/icelift/pkg/fetch"
	"github.com/icelift/icelift/pkg/schema"
	"github.com/icelift/icelift/pkg/source"
)

type fakeEnumerator struct {
	locators []source.Locator
	err      error
}

func (f *fakeEnumerator) Enumerate(context.Context) ([]source.Locator, error) {
	return f.locators, f.err
}

type fakeFetcher struct {
	materialized int
	cleaned      int
	failOn       map[string]bool
}

func (f *fakeFetcher) Materialize(_ context.Context, loc source.Locator) (*fetch.Materialized, error) {
	if f.failOn[loc.String()] {
		return nil, fetch.ErrFetchFailed
	}
	f.materialized++
	return &fetch.Materialized{Locator: loc, LocalPath: loc.String(), Fetched: false}, nil
}

func (f *fakeFetcher) Cleanup(*fetch.Materialized) error {
	f.cleaned++
	return nil
}

type fakeGateway struct {
	readyCalls  int
	appendCalls int
	readyErr    error
	appendErr   error
}

func (g *fakeGateway) Ready(context.Context, schema.Schema) error {
	g.readyCalls++
	return g.readyErr
}

func (g *fakeGateway) Append(context.Context, catalog.DataFile) (int64, error) {
	g.appendCalls++
	if g.appendErr != nil {
		return 0, g.appendErr
	}
	return int64(g.appendCalls), nil
}

func stringSchema() schema.Schema {
	return schema.Schema{Columns: []schema.Column{
		{Name: "id", Type: schema.Type{Kind: schema.KindString}, Nullable: true},
	}}
}

func locators(paths ...string) []source.Locator {
	out := make([]source.Locator, 0, len(paths))
	for _, p := range paths {
		out = append(out, source.Locator{Path: p})
	}
	return out
}

func newRunner(enum *fakeEnumerator, f *fakeFetcher, g *fakeGateway) *Runner {
	return &Runner{
		Enumerator: enum,
		Fetcher:    f,
		Gateway:    g,
		Inspect: func(string) (schema.Schema, int64, error) {
			return stringSchema(), 10, nil
		},
		Rewrite: func(context.Context, string, []schema.Rewrite) error {
			return nil
		},
	}
}

func TestRun_ContinuesPastPerFileFailure(t *testing.T) {
	enum := &fakeEnumerator{locators: locators("a.parquet", "b.parquet", "c.parquet")}
	fetcher := &fakeFetcher{failOn: map[string]bool{"b.parquet": true}}
	gw := &fakeGateway{}

	report, err := newRunner(enum, fetcher, gw).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() fatal error: %v", err)
	}

	if got := report.Succeeded(); got != 2 {
		t.Errorf("Succeeded() = %d, want 2", got)
	}
	if got := report.Failed(); got != 1 {
		t.Errorf("Failed() = %d, want 1", got)
	}
	if !errors.Is(report.Results[1].Err, fetch.ErrFetchFailed) {
		t.Errorf("second result error = %v, want ErrFetchFailed", report.Results[1].Err)
	}
	if gw.appendCalls != 2 {
		t.Errorf("appendCalls = %d, want 2", gw.appendCalls)
	}
	if gw.readyCalls != 1 {
		t.Errorf("readyCalls = %d, want 1 (once per run)", gw.readyCalls)
	}
}

func TestRun_ListOnlyTouchesNothing(t *testing.T) {
	enum := &fakeEnumerator{locators: locators("a.parquet", "b.parquet")}
	fetcher := &fakeFetcher{}
	gw := &fakeGateway{}

	r := newRunner(enum, fetcher, gw)
	r.ListOnly = true

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(report.Results))
	}
	if fetcher.materialized != 0 {
		t.Errorf("list-only run materialized %d files", fetcher.materialized)
	}
	if gw.readyCalls != 0 || gw.appendCalls != 0 {
		t.Errorf("list-only run touched the catalog: ready=%d append=%d",
			gw.readyCalls, gw.appendCalls)
	}
}

func TestRun_EnumerationFailureIsFatal(t *testing.T) {
	enum := &fakeEnumerator{err: source.ErrSourceUnavailable}
	fetcher := &fakeFetcher{}

	_, err := newRunner(enum, fetcher, &fakeGateway{}).Run(context.Background())
	if !errors.Is(err, source.ErrSourceUnavailable) {
		t.Fatalf("Run() error = %v, want ErrSourceUnavailable", err)
	}
	if fetcher.materialized != 0 {
		t.Errorf("materialized %d files after fatal enumeration failure", fetcher.materialized)
	}
}

func TestRun_ReadyFailureAbortsRun(t *testing.T) {
	enum := &fakeEnumerator{locators: locators("a.parquet", "b.parquet", "c.parquet")}
	fetcher := &fakeFetcher{}
	gw := &fakeGateway{readyErr: catalog.ErrCatalogUnreachable}

	report, err := newRunner(enum, fetcher, gw).Run(context.Background())
	if !errors.Is(err, catalog.ErrCatalogUnreachable) {
		t.Fatalf("Run() error = %v, want ErrCatalogUnreachable", err)
	}
	// The first file reached the gateway; the rest were never attempted.
	if len(report.Results) != 1 {
		t.Errorf("len(Results) = %d, want 1", len(report.Results))
	}
	if fetcher.materialized != 1 {
		t.Errorf("materialized = %d, want 1", fetcher.materialized)
	}
	if gw.appendCalls != 0 {
		t.Errorf("appendCalls = %d, want 0", gw.appendCalls)
	}
}

func TestRun_LedgerSkipsCommittedFiles(t *testing.T) {
	enum := &fakeEnumerator{locators: locators("a.parquet", "b.parquet")}
	fetcher := &fakeFetcher{}
	gw := &fakeGateway{}

	ledger, err := checkpoint.OpenFileLedger(t.TempDir() + "/ledger.json")
	if err != nil {
		t.Fatal(err)
	}
	if err := ledger.Record(context.Background(), checkpoint.Entry{Locator: "a.parquet"}); err != nil {
		t.Fatal(err)
	}

	r := newRunner(enum, fetcher, gw)
	r.Ledger = ledger

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := report.Skipped(); got != 1 {
		t.Errorf("Skipped() = %d, want 1", got)
	}
	if got := report.Succeeded(); got != 1 {
		t.Errorf("Succeeded() = %d, want 1", got)
	}
	if fetcher.materialized != 1 {
		t.Errorf("materialized = %d, want 1 (skipped file must not be fetched)", fetcher.materialized)
	}
}

func TestRun_LaterFileSchemaMismatch(t *testing.T) {
	enum := &fakeEnumerator{locators: locators("a.parquet", "b.parquet")}
	fetcher := &fakeFetcher{}
	gw := &fakeGateway{}

	other := schema.Schema{Columns: []schema.Column{
		{Name: "id", Type: schema.Type{Kind: schema.KindInteger, Width: 64}, Nullable: true},
	}}

	r := newRunner(enum, fetcher, gw)
	calls := 0
	r.Inspect = func(string) (schema.Schema, int64, error) {
		calls++
		if calls == 1 {
			return stringSchema(), 10, nil
		}
		return other, 10, nil
	}

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() fatal error: %v", err)
	}
	if got := report.Succeeded(); got != 1 {
		t.Errorf("Succeeded() = %d, want 1", got)
	}
	if !errors.Is(report.Results[1].Err, schema.ErrSchemaIncompatible) {
		t.Errorf("second result error = %v, want ErrSchemaIncompatible", report.Results[1].Err)
	}
	if gw.appendCalls != 1 {
		t.Errorf("appendCalls = %d, want 1", gw.appendCalls)
	}
}

func TestRun_CanceledContextStopsLoop(t *testing.T) {
	enum := &fakeEnumerator{locators: locators("a.parquet", "b.parquet")}
	fetcher := &fakeFetcher{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newRunner(enum, fetcher, &fakeGateway{}).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(report.Results) != 0 {
		t.Errorf("len(Results) = %d, want 0", len(report.Results))
	}
}
