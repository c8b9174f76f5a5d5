package fetch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/icelift/icelift/pkg/source"
)

type fakeGetter struct {
	data map[string]string
	err  error
}

func (g *fakeGetter) Reader(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	if g.err != nil {
		return nil, 0, g.err
	}
	body, ok := g.data[key]
	if !ok {
		return nil, 0, errors.New("no such key")
	}
	return io.NopCloser(strings.NewReader(body)), int64(len(body)), nil
}

func TestMaterialize_LocalIsIdentity(t *testing.T) {
	f := &Fetcher{}
	loc := source.Locator{Path: "/data/a.parquet"}

	m, err := f.Materialize(context.Background(), loc)
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if m.LocalPath != loc.Path {
		t.Errorf("LocalPath = %q, want %q", m.LocalPath, loc.Path)
	}
	if m.Fetched {
		t.Error("local locator must not be marked fetched")
	}
}

func TestMaterialize_DownloadPreservesKeyStructure(t *testing.T) {
	dir := t.TempDir()
	f := &Fetcher{
		Getter: &fakeGetter{data: map[string]string{"pre/one/a.parquet": "hello"}},
		Dir:    dir,
	}
	loc := source.Locator{Bucket: "bkt", Key: "pre/one/a.parquet"}

	m, err := f.Materialize(context.Background(), loc)
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}

	want := filepath.Join(dir, "pre", "one", "a.parquet")
	if m.LocalPath != want {
		t.Errorf("LocalPath = %q, want %q", m.LocalPath, want)
	}
	data, err := os.ReadFile(m.LocalPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("downloaded content = %q, want %q", data, "hello")
	}
	if !m.Fetched {
		t.Error("remote locator must be marked fetched")
	}

	// No .partial file left behind.
	if _, err := os.Stat(m.LocalPath + ".partial"); !os.IsNotExist(err) {
		t.Error("partial file left behind after successful download")
	}
}

func TestMaterialize_DownloadFailure(t *testing.T) {
	f := &Fetcher{
		Getter: &fakeGetter{err: errors.New("connection reset")},
		Dir:    t.TempDir(),
	}
	loc := source.Locator{Bucket: "bkt", Key: "a.parquet"}

	_, err := f.Materialize(context.Background(), loc)
	if !errors.Is(err, ErrFetchFailed) {
		t.Errorf("Materialize() error = %v, want ErrFetchFailed", err)
	}
}

func TestCleanup_Policy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.parquet")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	// Explicit directory: retain.
	keep := &Fetcher{Dir: dir, KeepFetched: true}
	if err := keep.Cleanup(&Materialized{LocalPath: path, Fetched: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("file removed despite KeepFetched")
	}

	// Temporary directory: delete.
	del := &Fetcher{Dir: dir}
	if err := del.Cleanup(&Materialized{LocalPath: path, Fetched: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("fetched file not removed from temporary staging")
	}

	// Never touch files that were local inputs.
	local := filepath.Join(dir, "b.parquet")
	if err := os.WriteFile(local, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := del.Cleanup(&Materialized{LocalPath: local, Fetched: false}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(local); err != nil {
		t.Error("local input file was removed")
	}
}
