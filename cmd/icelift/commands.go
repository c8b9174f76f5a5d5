package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/icelift/icelift/pkg/catalog"
	"github.com/icelift/icelift/pkg/checkpoint"
	"github.com/icelift/icelift/pkg/config"
	"github.com/icelift/icelift/pkg/fetch"
	"github.com/icelift/icelift/pkg/ingest"
	"github.com/icelift/icelift/pkg/source"
	"github.com/icelift/icelift/pkg/storage/s3"
	"github.com/icelift/icelift/pkg/telemetry"
	"github.com/icelift/icelift/pkg/tui"
)

// CLI flags
var (
	localPath  string
	bucket     string
	prefix     string
	region     string
	s3Endpoint string
	anonymous  bool
	recursive  bool

	catalogEndpoint string
	catalogToken    string
	warehouse       string
	namespace       string
	tableName       string

	stagingDir  string
	keepFetched bool
	ledgerFlag  string
	verbose     bool
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load Parquet files into the catalog table",
	Long: `Discover Parquet files, normalize their schemas, and append them to
the target table. Remote objects are staged locally before reading.
Files already recorded in the ledger are skipped; each file is committed
independently, so one bad file does not abort the run.

Examples:
  icelift load -L ./exports -E http://localhost:8181 -w s3://warehouse/ -N analytics -t events
  icelift load -b data-lake -p daily/ --recursive -E http://localhost:8181 -w s3://warehouse/ -N analytics -t events
  icelift load -b public-data -p samples/ --anonymous -E http://localhost:8181 -w s3://warehouse/ -N demo -t samples`,
	RunE: runLoad,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the Parquet files a load would ingest",
	Long: `Enumerate the source and print the Parquet files that a load with the
same source flags would process. No files are fetched and the catalog is
not contacted.`,
	RunE: runList,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	for _, cmd := range []*cobra.Command{loadCmd, listCmd} {
		cmd.Flags().StringVarP(&localPath, "local-path", "L", "", "Local directory with parquet files")
		cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "S3 bucket with parquet files")
		cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "S3 key prefix to enumerate")
		cmd.Flags().StringVar(&region, "region", "", "S3 region")
		cmd.Flags().StringVar(&s3Endpoint, "s3-endpoint", "", "S3-compatible endpoint override")
		cmd.Flags().BoolVar(&anonymous, "anonymous", false, "Access S3 without credentials")
		cmd.Flags().BoolVar(&recursive, "recursive", false, "Recurse into subdirectories (local source)")
	}

	loadCmd.Flags().StringVarP(&catalogEndpoint, "endpoint", "E", "", "Catalog REST endpoint (required)")
	loadCmd.Flags().StringVarP(&catalogToken, "token", "T", "", "Catalog bearer token")
	loadCmd.Flags().StringVarP(&warehouse, "warehouse", "w", "", "Warehouse location or identifier (required)")
	loadCmd.Flags().StringVarP(&namespace, "namespace", "N", "", "Target namespace (required)")
	loadCmd.Flags().StringVarP(&tableName, "table-name", "t", "", "Target table name (required)")
	loadCmd.Flags().StringVarP(&stagingDir, "directory", "d", "", "Staging directory for fetched files")
	loadCmd.Flags().BoolVar(&keepFetched, "keep-fetched", false, "Keep staged downloads after ingest")
	loadCmd.Flags().StringVar(&ledgerFlag, "ledger", "", "Ledger backend: none, file, redis")

	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(listCmd)
}

// loadConfig merges file/env config with command-line flags. Flags win.
func loadConfig() (*config.Config, error) {
	mgr := config.NewManager()
	if err := mgr.Load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := mgr.Get()

	if localPath != "" {
		cfg.Source.LocalPath = localPath
	}
	if bucket != "" {
		cfg.Source.Bucket = bucket
	}
	if prefix != "" {
		cfg.Source.Prefix = prefix
	}
	if region != "" {
		cfg.Source.Region = region
	}
	if s3Endpoint != "" {
		cfg.Source.Endpoint = s3Endpoint
	}
	if anonymous {
		cfg.Source.Anonymous = true
	}
	if recursive {
		cfg.Source.Recursive = true
	}
	if catalogEndpoint != "" {
		cfg.Catalog.Endpoint = catalogEndpoint
	}
	if catalogToken != "" {
		cfg.Catalog.Token = catalogToken
	}
	if warehouse != "" {
		cfg.Catalog.Warehouse = warehouse
	}
	if namespace != "" {
		cfg.Catalog.Namespace = namespace
	}
	if tableName != "" {
		cfg.Catalog.Table = tableName
	}
	if stagingDir != "" {
		cfg.Fetch.Dir = stagingDir
		// An explicitly chosen staging directory retains its downloads;
		// only the process-temporary default is cleaned up.
		cfg.Fetch.KeepFetched = true
	}
	if keepFetched {
		cfg.Fetch.KeepFetched = true
	}
	if ledgerFlag != "" {
		cfg.Ledger.Backend = ledgerFlag
	}

	return cfg, nil
}

// validateSource checks that exactly one source is usable. A local path
// takes precedence when both are set.
func validateSource(cfg *config.Config) error {
	if cfg.Source.LocalPath == "" && cfg.Source.Bucket == "" {
		return fmt.Errorf("no source specified: use --local-path or --bucket")
	}
	return nil
}

func validateTarget(cfg *config.Config) error {
	var missing []string
	if cfg.Catalog.Endpoint == "" {
		missing = append(missing, "--endpoint")
	}
	if cfg.Catalog.Warehouse == "" {
		missing = append(missing, "--warehouse")
	}
	if cfg.Catalog.Namespace == "" {
		missing = append(missing, "--namespace")
	}
	if cfg.Catalog.Table == "" {
		missing = append(missing, "--table-name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	return nil
}

// buildSource returns the enumerator and, for S3 sources, the client used
// for downloads and metadata uploads.
func buildSource(ctx context.Context, cfg *config.Config) (source.Enumerator, *s3.Client, error) {
	if cfg.Source.LocalPath != "" {
		return &source.LocalEnumerator{
			Dir:       cfg.Source.LocalPath,
			Recursive: cfg.Source.Recursive,
		}, nil, nil
	}

	s3cfg := s3.DefaultConfig(cfg.Source.Region)
	s3cfg.Endpoint = cfg.Source.Endpoint
	s3cfg.Anonymous = cfg.Source.Anonymous
	if cfg.Source.Endpoint != "" {
		s3cfg.UsePathStyle = true
	}

	client, err := s3.NewClient(ctx, s3cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &source.S3Enumerator{
		Lister: client,
		Bucket: cfg.Source.Bucket,
		Prefix: cfg.Source.Prefix,
	}, client, nil
}

func buildLedger(cfg *config.Config) (checkpoint.Ledger, error) {
	switch cfg.Ledger.Backend {
	case "", "none":
		return checkpoint.Nop{}, nil
	case "file":
		return checkpoint.OpenFileLedger(cfg.Ledger.Path)
	case "redis":
		rcfg := checkpoint.DefaultRedisConfig(cfg.Ledger.RedisAddress)
		rcfg.Password = cfg.Ledger.RedisPassword
		rcfg.Database = cfg.Ledger.RedisDatabase
		rcfg.TTL = cfg.Ledger.RedisTTL
		return checkpoint.NewRedisLedger(rcfg)
	default:
		return nil, fmt.Errorf("unknown ledger backend: %s", cfg.Ledger.Backend)
	}
}

// cleanupStaging removes the staging tree after a run. The per-file
// cleanup already deleted applied downloads; this clears directories and
// partial files left by failures. A staging directory marked for
// retention is left alone.
func cleanupStaging(cfg *config.Config) {
	if cfg.Fetch.KeepFetched || cfg.Fetch.Dir == "" {
		return
	}
	os.RemoveAll(cfg.Fetch.Dir)
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupted, cleaning up...")
		cancel()
	}()

	return ctx, cancel
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := validateSource(cfg); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	enumerator, _, err := buildSource(ctx, cfg)
	if err != nil {
		return err
	}

	locators, err := enumerator.Enumerate(ctx)
	if err != nil {
		return err
	}

	tui.PrintListing(locators)
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := validateSource(cfg); err != nil {
		return err
	}
	if err := validateTarget(cfg); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	tel, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background())

	enumerator, s3client, err := buildSource(ctx, cfg)
	if err != nil {
		return err
	}

	ledger, err := buildLedger(cfg)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer ledger.Close()

	target := catalog.Target{
		Endpoint:  cfg.Catalog.Endpoint,
		Token:     cfg.Catalog.Token,
		Warehouse: cfg.Catalog.Warehouse,
		Namespace: cfg.Catalog.Namespace,
		Table:     cfg.Catalog.Table,
	}

	// The catalog is contacted before any file is fetched so an
	// unreachable endpoint fails fast.
	var store catalog.ObjectStore
	if s3client != nil {
		store = s3client
	}
	restCatalog, err := catalog.NewRestCatalog(ctx, target, store)
	if err != nil {
		tui.PrintError(err)
		os.Exit(1)
	}

	fetcher := &fetch.Fetcher{
		Dir:          cfg.Fetch.Dir,
		KeepFetched:  cfg.Fetch.KeepFetched,
		ShowProgress: verbose,
	}
	if s3client != nil {
		fetcher.Getter = s3client
	}

	if verbose {
		tui.PrintHeader(version)
		fmt.Printf("  Target: %s\n\n", target.Identifier())
	}

	runner := &ingest.Runner{
		Enumerator: enumerator,
		Fetcher:    fetcher,
		Gateway:    catalog.NewGateway(restCatalog),
		Ledger:     ledger,
		Telemetry:  tel,
		OnResult:   tui.PrintResult,
	}

	start := time.Now()
	report, err := runner.Run(ctx)
	cleanupStaging(cfg)
	if err != nil {
		tui.PrintError(err)
		os.Exit(1)
	}

	tui.PrintSummary(report, time.Since(start))

	if report.Failed() > 0 {
		os.Exit(1)
	}
	return nil
}
