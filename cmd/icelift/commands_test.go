package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/icelift/icelift/pkg/config"
)

func TestLoadConfig_ExplicitDirectoryRetainsFetched(t *testing.T) {
	dir := t.TempDir()
	stagingDir = dir
	t.Cleanup(func() { stagingDir = "" })

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.Fetch.Dir != dir {
		t.Errorf("Fetch.Dir = %q, want %q", cfg.Fetch.Dir, dir)
	}
	if !cfg.Fetch.KeepFetched {
		t.Error("explicit --directory must retain fetched files")
	}
}

func TestLoadConfig_DefaultStagingNotRetained(t *testing.T) {
	stagingDir = ""
	keepFetched = false

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Fetch.KeepFetched {
		t.Error("temporary staging directory marked for retention")
	}
}

func TestCleanupStaging(t *testing.T) {
	base := t.TempDir()

	temp := filepath.Join(base, "staging")
	if err := os.MkdirAll(filepath.Join(temp, "pre"), 0755); err != nil {
		t.Fatal(err)
	}
	leftover := filepath.Join(temp, "pre", "a.parquet.partial")
	if err := os.WriteFile(leftover, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.Fetch.Dir = temp
	cleanupStaging(cfg)
	if _, err := os.Stat(temp); !os.IsNotExist(err) {
		t.Error("temporary staging tree not removed after run")
	}

	kept := filepath.Join(base, "explicit")
	if err := os.MkdirAll(kept, 0755); err != nil {
		t.Fatal(err)
	}
	cfg.Fetch.Dir = kept
	cfg.Fetch.KeepFetched = true
	cleanupStaging(cfg)
	if _, err := os.Stat(kept); err != nil {
		t.Error("retained staging directory was removed")
	}
}
