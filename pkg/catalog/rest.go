package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/icelift/icelift/pkg/schema"
)

// ObjectStore uploads catalog metadata objects to the warehouse bucket.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// RestCatalog implements Catalog against an Iceberg REST catalog service
// (Lakekeeper and compatible).
type RestCatalog struct {
	target Target
	store  ObjectStore

	// setup does no automatic retries: setup failures are fatal and
	// should surface immediately. commit retries any non-success
	// response exactly once, which is the append policy.
	setup  *retryablehttp.Client
	commit *retryablehttp.Client

	// Resolved during New from GET /v1/config.
	prefix string

	// Populated by EnsureTable.
	table loadTableResponse
}

// NewRestCatalog connects to the catalog and resolves the warehouse prefix.
// A failure here means the catalog is unreachable or the credentials are
// bad; the caller aborts before materializing any file.
func NewRestCatalog(ctx context.Context, target Target, store ObjectStore) (*RestCatalog, error) {
	setup := retryablehttp.NewClient()
	setup.RetryMax = 0
	setup.Logger = nil

	commit := retryablehttp.NewClient()
	commit.RetryMax = 1
	commit.RetryWaitMin = 0
	commit.RetryWaitMax = 100 * time.Millisecond
	commit.Logger = nil
	commit.CheckRetry = func(_ context.Context, resp *http.Response, err error) (bool, error) {
		if err != nil {
			return true, nil
		}
		return resp.StatusCode >= 300, nil
	}
	commit.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &RestCatalog{
		target: target,
		store:  store,
		setup:  setup,
		commit: commit,
	}

	cfg, err := c.fetchConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCatalogUnreachable, target.Endpoint, err)
	}
	if p, ok := cfg.Overrides["prefix"]; ok {
		c.prefix = p
	} else if p, ok := cfg.Defaults["prefix"]; ok {
		c.prefix = p
	}

	return c, nil
}

func (c *RestCatalog) fetchConfig(ctx context.Context) (*configResponse, error) {
	u := strings.TrimRight(c.target.Endpoint, "/") + "/v1/config"
	if c.target.Warehouse != "" {
		u += "?warehouse=" + url.QueryEscape(c.target.Warehouse)
	}

	resp, err := c.do(ctx, c.setup, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var cfg configResponse
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("bad config response: %w", err)
	}
	return &cfg, nil
}

// route builds a /v1/{prefix}/... URL.
func (c *RestCatalog) route(parts ...string) string {
	segments := []string{strings.TrimRight(c.target.Endpoint, "/"), "v1"}
	if c.prefix != "" {
		segments = append(segments, url.PathEscape(c.prefix))
	}
	for _, p := range parts {
		segments = append(segments, url.PathEscape(p))
	}
	return strings.Join(segments, "/")
}

func (c *RestCatalog) do(ctx context.Context, client *retryablehttp.Client, method, u string, body any) (*http.Response, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.target.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.target.Token)
	}

	return client.Do(req)
}

// statusError extracts the service's error message for a non-2xx response.
func (c *RestCatalog) statusError(resp *http.Response) error {
	var er errorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &er) == nil && er.Error.Message != "" {
		return fmt.Errorf("%s: %s", resp.Status, er.Error.Message)
	}
	return fmt.Errorf("%s", resp.Status)
}

// EnsureNamespace creates the target namespace if absent. Already-exists
// (409) is success.
func (c *RestCatalog) EnsureNamespace(ctx context.Context) error {
	body := createNamespaceRequest{Namespace: []string{c.target.Namespace}}
	resp, err := c.do(ctx, c.setup, http.MethodPost, c.route("namespaces"), body)
	if err != nil {
		return fmt.Errorf("%w: namespace %q: %v", ErrCreateFailed, c.target.Namespace, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300, resp.StatusCode == http.StatusConflict:
		return nil
	default:
		return fmt.Errorf("%w: namespace %q: %v", ErrCreateFailed, c.target.Namespace, c.statusError(resp))
	}
}

// EnsureTable creates the target table with the given schema if absent.
// An existing table is accepted only when its schema matches; otherwise
// the target is in schema conflict and nothing is altered.
func (c *RestCatalog) EnsureTable(ctx context.Context, s schema.Schema) error {
	loaded, err := c.loadTable(ctx)
	if err != nil {
		return err
	}
	if loaded != nil {
		return c.acceptExisting(*loaded, s)
	}

	body := createTableRequest{
		Name:       c.target.Table,
		Schema:     toIcebergSchema(s),
		Properties: map[string]string{"write.format.default": "parquet"},
	}
	resp, err := c.do(ctx, c.setup, http.MethodPost, c.route("namespaces", c.target.Namespace, "tables"), body)
	if err != nil {
		return fmt.Errorf("%w: table %s: %v", ErrCreateFailed, c.target.Identifier(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		if err := json.NewDecoder(resp.Body).Decode(&c.table); err != nil {
			return fmt.Errorf("%w: table %s: bad create response: %v", ErrCreateFailed, c.target.Identifier(), err)
		}
		return nil
	case resp.StatusCode == http.StatusConflict:
		// Created concurrently since our load; accept it if compatible.
		loaded, err := c.loadTable(ctx)
		if err != nil {
			return err
		}
		if loaded == nil {
			return fmt.Errorf("%w: table %s: conflict on create but table not found", ErrCreateFailed, c.target.Identifier())
		}
		return c.acceptExisting(*loaded, s)
	default:
		return fmt.Errorf("%w: table %s: %v", ErrCreateFailed, c.target.Identifier(), c.statusError(resp))
	}
}

// loadTable fetches the table, returning nil when it does not exist.
func (c *RestCatalog) loadTable(ctx context.Context) (*loadTableResponse, error) {
	u := c.route("namespaces", c.target.Namespace, "tables", c.target.Table)
	resp, err := c.do(ctx, c.setup, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: table %s: %v", ErrCreateFailed, c.target.Identifier(), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var loaded loadTableResponse
		if err := json.NewDecoder(resp.Body).Decode(&loaded); err != nil {
			return nil, fmt.Errorf("%w: table %s: bad load response: %v", ErrCreateFailed, c.target.Identifier(), err)
		}
		return &loaded, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: table %s: %v", ErrCreateFailed, c.target.Identifier(), c.statusError(resp))
	}
}

func (c *RestCatalog) acceptExisting(loaded loadTableResponse, s schema.Schema) error {
	current := currentSchema(loaded.Metadata)
	if current == nil || !schemaMatches(*current, s) {
		return fmt.Errorf("%w: table %s exists with a different schema", ErrSchemaConflict, c.target.Identifier())
	}
	c.table = loaded
	return nil
}

func currentSchema(md tableMetadata) *icebergSchema {
	for i := range md.Schemas {
		if md.Schemas[i].SchemaID == md.CurrentSchemaID {
			return &md.Schemas[i]
		}
	}
	return nil
}

// Append commits one data file as a new snapshot. The catalog applies the
// commit atomically; any non-success response after the single retry leaves
// the table at its prior snapshot and is reported as ErrAppendFailed.
func (c *RestCatalog) Append(ctx context.Context, df DataFile) (int64, error) {
	snapshotID := time.Now().UnixMilli()

	manifestList, err := c.writeManifestList(ctx, snapshotID, df)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrAppendFailed, df.Path, err)
	}

	commit := commitTableRequest{
		Requirements: []tableRequirement{
			{Type: "assert-table-uuid", UUID: c.table.Metadata.TableUUID},
		},
		Updates: []tableUpdate{
			{
				Action: "add-snapshot",
				Snapshot: &snapshot{
					SnapshotID:  snapshotID,
					TimestampMs: snapshotID,
					Summary: map[string]string{
						"operation":        "append",
						"added-data-files": "1",
						"added-records":    fmt.Sprintf("%d", df.Rows),
					},
					ManifestList: manifestList,
					SchemaID:     c.table.Metadata.CurrentSchemaID,
				},
			},
			{
				Action:     "set-snapshot-ref",
				RefName:    "main",
				Type:       "branch",
				SnapshotID: snapshotID,
			},
		},
	}

	u := c.route("namespaces", c.target.Namespace, "tables", c.target.Table)
	resp, err := c.do(ctx, c.commit, http.MethodPost, u, commit)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrAppendFailed, df.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: %s: %v", ErrAppendFailed, df.Path, c.statusError(resp))
	}
	return snapshotID, nil
}

// writeManifestList stores the snapshot's file list under the table's
// metadata location and returns its full path. Entries are encoded as JSON
// (simplified - the Iceberg spec uses Avro manifests).
func (c *RestCatalog) writeManifestList(ctx context.Context, snapshotID int64, df DataFile) (string, error) {
	entries := []manifestEntry{{
		Status:   1, // ADDED
		FilePath: df.Path,
		Format:   "PARQUET",
		Rows:     df.Rows,
		Size:     df.SizeBytes,
	}}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("snap-%d-%s.avro", snapshotID, uuid.NewString())
	location := strings.TrimRight(c.table.Metadata.Location, "/") + "/metadata/" + name

	if bucket, key, ok := splitS3Location(location); ok {
		if c.store == nil {
			return "", fmt.Errorf("table location %s requires an object store client", location)
		}
		if err := c.store.Upload(ctx, bucket, key, data, "application/octet-stream"); err != nil {
			return "", err
		}
		return location, nil
	}

	// Local warehouse location (file path or file:// URL).
	path := strings.TrimPrefix(location, "file://")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return location, nil
}

// splitS3Location parses s3://bucket/key into its parts.
func splitS3Location(location string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(location, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
