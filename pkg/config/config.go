// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/icelift/icelift/pkg/telemetry"
)

// Config holds all icelift configuration.
type Config struct {
	Version int `yaml:"version"`

	Source    SourceConfig     `yaml:"source"`
	Catalog   CatalogConfig    `yaml:"catalog"`
	Fetch     FetchConfig      `yaml:"fetch"`
	Ledger    LedgerConfig     `yaml:"ledger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// SourceConfig controls where parquet files are read from.
type SourceConfig struct {
	LocalPath string `yaml:"local_path"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"` // S3-compatible endpoint override
	Anonymous bool   `yaml:"anonymous"`
	Recursive bool   `yaml:"recursive"`
}

// CatalogConfig controls the REST catalog target.
type CatalogConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Token     string `yaml:"token"`
	Warehouse string `yaml:"warehouse"`
	Namespace string `yaml:"namespace"`
	Table     string `yaml:"table"`
}

// FetchConfig controls download staging.
type FetchConfig struct {
	Dir         string `yaml:"dir"`
	KeepFetched bool   `yaml:"keep_fetched"`
}

// LedgerConfig controls idempotent re-run bookkeeping.
type LedgerConfig struct {
	// Backend is "none", "file", or "redis".
	Backend string `yaml:"backend"`

	Path string `yaml:"path"` // file backend

	RedisAddress  string        `yaml:"redis_address"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDatabase int           `yaml:"redis_database"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	iceliftDir := filepath.Join(homeDir, ".icelift")

	return &Config{
		Version: 1,
		Source: SourceConfig{
			Region: "us-east-1",
		},
		Fetch: FetchConfig{
			Dir: filepath.Join(os.TempDir(), "icelift"),
		},
		Ledger: LedgerConfig{
			Backend: "none",
			Path:    filepath.Join(iceliftDir, "ledger.json"),
		},
		Telemetry: telemetry.Config{
			Enabled: false,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Start with defaults
	m.config = Default()

	// Load from paths in order (later overrides earlier)
	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	// Override with environment variables
	m.loadEnv()

	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/icelift/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".icelift", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".icelift.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	// Source
	if src.Source.LocalPath != "" {
		m.config.Source.LocalPath = src.Source.LocalPath
	}
	if src.Source.Bucket != "" {
		m.config.Source.Bucket = src.Source.Bucket
	}
	if src.Source.Prefix != "" {
		m.config.Source.Prefix = src.Source.Prefix
	}
	if src.Source.Region != "" {
		m.config.Source.Region = src.Source.Region
	}
	if src.Source.Endpoint != "" {
		m.config.Source.Endpoint = src.Source.Endpoint
	}
	if src.Source.Anonymous {
		m.config.Source.Anonymous = true
	}
	if src.Source.Recursive {
		m.config.Source.Recursive = true
	}

	// Catalog
	if src.Catalog.Endpoint != "" {
		m.config.Catalog.Endpoint = src.Catalog.Endpoint
	}
	if src.Catalog.Token != "" {
		m.config.Catalog.Token = src.Catalog.Token
	}
	if src.Catalog.Warehouse != "" {
		m.config.Catalog.Warehouse = src.Catalog.Warehouse
	}
	if src.Catalog.Namespace != "" {
		m.config.Catalog.Namespace = src.Catalog.Namespace
	}
	if src.Catalog.Table != "" {
		m.config.Catalog.Table = src.Catalog.Table
	}

	// Fetch
	if src.Fetch.Dir != "" {
		m.config.Fetch.Dir = src.Fetch.Dir
	}
	if src.Fetch.KeepFetched {
		m.config.Fetch.KeepFetched = true
	}

	// Ledger
	if src.Ledger.Backend != "" {
		m.config.Ledger.Backend = src.Ledger.Backend
	}
	if src.Ledger.Path != "" {
		m.config.Ledger.Path = src.Ledger.Path
	}
	if src.Ledger.RedisAddress != "" {
		m.config.Ledger.RedisAddress = src.Ledger.RedisAddress
	}
	if src.Ledger.RedisPassword != "" {
		m.config.Ledger.RedisPassword = src.Ledger.RedisPassword
	}
	if src.Ledger.RedisDatabase != 0 {
		m.config.Ledger.RedisDatabase = src.Ledger.RedisDatabase
	}
	if src.Ledger.RedisTTL != 0 {
		m.config.Ledger.RedisTTL = src.Ledger.RedisTTL
	}

	// Telemetry
	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	if v := os.Getenv("ICELIFT_CATALOG_ENDPOINT"); v != "" {
		m.config.Catalog.Endpoint = v
	}
	if v := os.Getenv("ICELIFT_CATALOG_TOKEN"); v != "" {
		m.config.Catalog.Token = v
	}
	if v := os.Getenv("ICELIFT_WAREHOUSE"); v != "" {
		m.config.Catalog.Warehouse = v
	}
	if v := os.Getenv("ICELIFT_NAMESPACE"); v != "" {
		m.config.Catalog.Namespace = v
	}
	if v := os.Getenv("ICELIFT_TABLE"); v != "" {
		m.config.Catalog.Table = v
	}
	if v := os.Getenv("ICELIFT_BUCKET"); v != "" {
		m.config.Source.Bucket = v
	}
	if v := os.Getenv("ICELIFT_PREFIX"); v != "" {
		m.config.Source.Prefix = v
	}
	if v := os.Getenv("ICELIFT_REGION"); v != "" {
		m.config.Source.Region = v
	}
	if v := os.Getenv("ICELIFT_S3_ENDPOINT"); v != "" {
		m.config.Source.Endpoint = v
	}
	if v := os.Getenv("ICELIFT_LEDGER"); v != "" {
		m.config.Ledger.Backend = v
	}
	if v := os.Getenv("ICELIFT_REDIS_ADDRESS"); v != "" {
		m.config.Ledger.RedisAddress = v
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".icelift")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}
