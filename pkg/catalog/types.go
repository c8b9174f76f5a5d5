package catalog

import (
	"github.com/icelift/icelift/pkg/schema"
)

// REST payload shapes, limited to the fields the loader reads and writes.
// Field names follow the Iceberg REST catalog specification.

type configResponse struct {
	Defaults  map[string]string `json:"defaults"`
	Overrides map[string]string `json:"overrides"`
}

type createNamespaceRequest struct {
	Namespace []string `json:"namespace"`
}

type icebergField struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Type     string `json:"type"`
}

type icebergSchema struct {
	Type     string         `json:"type"`
	SchemaID int            `json:"schema-id"`
	Fields   []icebergField `json:"fields"`
}

type createTableRequest struct {
	Name       string            `json:"name"`
	Schema     icebergSchema     `json:"schema"`
	Properties map[string]string `json:"properties,omitempty"`
}

type tableMetadata struct {
	TableUUID       string          `json:"table-uuid"`
	Location        string          `json:"location"`
	CurrentSchemaID int             `json:"current-schema-id"`
	Schemas         []icebergSchema `json:"schemas"`
}

type loadTableResponse struct {
	MetadataLocation string        `json:"metadata-location"`
	Metadata         tableMetadata `json:"metadata"`
}

type snapshot struct {
	SnapshotID   int64             `json:"snapshot-id"`
	TimestampMs  int64             `json:"timestamp-ms"`
	Summary      map[string]string `json:"summary"`
	ManifestList string            `json:"manifest-list"`
	SchemaID     int               `json:"schema-id"`
}

type tableRequirement struct {
	Type string `json:"type"`
	UUID string `json:"uuid,omitempty"`
}

type tableUpdate struct {
	Action     string    `json:"action"`
	Snapshot   *snapshot `json:"snapshot,omitempty"`
	RefName    string    `json:"ref-name,omitempty"`
	Type       string    `json:"type,omitempty"`
	SnapshotID int64     `json:"snapshot-id,omitempty"`
}

type commitTableRequest struct {
	Requirements []tableRequirement `json:"requirements"`
	Updates      []tableUpdate      `json:"updates"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// manifestEntry records one data file in the snapshot's manifest list.
type manifestEntry struct {
	Status   int    `json:"status"` // 1 = ADDED
	FilePath string `json:"file_path"`
	Format   string `json:"file_format"`
	Rows     int64  `json:"record_count"`
	Size     int64  `json:"file_size_in_bytes"`
}

// toIcebergSchema converts the normalized column model to the catalog's
// schema JSON. Field IDs are assigned by position, 1-based.
func toIcebergSchema(s schema.Schema) icebergSchema {
	fields := make([]icebergField, len(s.Columns))
	for i, col := range s.Columns {
		fields[i] = icebergField{
			ID:       i + 1,
			Name:     col.Name,
			Required: !col.Nullable,
			Type:     col.Type.String(),
		}
	}
	return icebergSchema{Type: "struct", Fields: fields}
}

// schemaMatches reports whether an existing table schema accepts the file
// schema: same column names and logical types in the same order.
func schemaMatches(existing icebergSchema, s schema.Schema) bool {
	if len(existing.Fields) != len(s.Columns) {
		return false
	}
	for i, f := range existing.Fields {
		col := s.Columns[i]
		if f.Name != col.Name || f.Type != col.Type.String() {
			return false
		}
	}
	return true
}
