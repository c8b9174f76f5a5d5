// Package schema models Parquet column schemas as a closed set of typed
// variants and normalizes them against what the catalog accepts.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
)

// ErrSchemaIncompatible is returned when a file's schema cannot be
// represented in the catalog, even after normalization. Per-file failure.
var ErrSchemaIncompatible = errors.New("schema: incompatible with catalog")

// Kind enumerates the physical column types the loader understands.
// Keeping the set closed lets the normalizer's rules stay exhaustive.
type Kind int

const (
	KindBoolean Kind = iota
	KindInteger
	KindFloat
	KindDecimal
	KindString
	KindBinary
	KindTimestamp
	KindDate
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindDecimal:
		return "decimal"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindTimestamp:
		return "timestamp"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// Type is one column type variant. Only the fields relevant to Kind are set.
type Type struct {
	Kind Kind

	// Width is the bit width for Integer (32 or 64) and Float (32 or 64).
	Width int

	// Precision and Scale apply to Decimal.
	Precision int32
	Scale     int32

	// ByteWidth is the decimal storage width: 16 (decimal128) or 32
	// (decimal256).
	ByteWidth int

	// FixedLen marks a decimal stored as FIXED_LEN_BYTE_ARRAY in the
	// Parquet file rather than int32/int64 physical storage.
	FixedLen bool

	// Unit and UTC apply to Timestamp.
	Unit arrow.TimeUnit
	UTC  bool
}

// String renders the type the way catalogs spell it.
func (t Type) String() string {
	switch t.Kind {
	case KindInteger:
		if t.Width == 64 {
			return "long"
		}
		return "int"
	case KindFloat:
		if t.Width == 64 {
			return "double"
		}
		return "float"
	case KindDecimal:
		return fmt.Sprintf("decimal(%d, %d)", t.Precision, t.Scale)
	case KindTimestamp:
		if t.UTC {
			return "timestamptz"
		}
		return "timestamp"
	default:
		return t.Kind.String()
	}
}

// Equal reports whether two types are the same logical type. Physical
// storage details (FixedLen, ByteWidth) do not participate: a table with
// decimal(10, 2) accepts a file with decimal(10, 2) however it is stored.
func (t Type) Equal(other Type) bool {
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case KindInteger, KindFloat:
		return t.Width == other.Width
	case KindDecimal:
		return t.Precision == other.Precision && t.Scale == other.Scale
	case KindTimestamp:
		return t.UTC == other.UTC
	default:
		return true
	}
}

// Column is one (name, type) pair of a file schema.
type Column struct {
	Name     string
	Type     Type
	Nullable bool
}

// Schema is the ordered column sequence read from one Parquet file.
type Schema struct {
	Columns []Column
}

// Equal reports logical equality of two schemas: same columns, same order,
// same logical types.
func (s Schema) Equal(other Schema) bool {
	if len(s.Columns) != len(other.Columns) {
		return false
	}
	for i, c := range s.Columns {
		o := other.Columns[i]
		if c.Name != o.Name || !c.Type.Equal(o.Type) {
			return false
		}
	}
	return true
}

// String renders the schema for log output.
func (s Schema) String() string {
	parts := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		parts[i] = c.Name + ": " + c.Type.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
