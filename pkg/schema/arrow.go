package schema

import (
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
)

// FromArrow converts an Arrow schema into the closed column model.
// Arrow types with no catalog representation (nested types, float16,
// intervals) fail with ErrSchemaIncompatible.
func FromArrow(as *arrow.Schema) (Schema, error) {
	columns := make([]Column, 0, as.NumFields())
	for _, field := range as.Fields() {
		typ, err := fromArrowType(field.Type)
		if err != nil {
			return Schema{}, fmt.Errorf("%w: column %q: %v", ErrSchemaIncompatible, field.Name, err)
		}
		columns = append(columns, Column{
			Name:     field.Name,
			Type:     typ,
			Nullable: field.Nullable,
		})
	}
	return Schema{Columns: columns}, nil
}

func fromArrowType(dt arrow.DataType) (Type, error) {
	switch t := dt.(type) {
	case *arrow.BooleanType:
		return Type{Kind: KindBoolean}, nil
	case *arrow.Int8Type, *arrow.Int16Type, *arrow.Int32Type,
		*arrow.Uint8Type, *arrow.Uint16Type:
		return Type{Kind: KindInteger, Width: 32}, nil
	case *arrow.Int64Type, *arrow.Uint32Type, *arrow.Uint64Type:
		return Type{Kind: KindInteger, Width: 64}, nil
	case *arrow.Float32Type:
		return Type{Kind: KindFloat, Width: 32}, nil
	case *arrow.Float64Type:
		return Type{Kind: KindFloat, Width: 64}, nil
	case *arrow.StringType, *arrow.LargeStringType:
		return Type{Kind: KindString}, nil
	case *arrow.BinaryType, *arrow.LargeBinaryType, *arrow.FixedSizeBinaryType:
		return Type{Kind: KindBinary}, nil
	case *arrow.Date32Type, *arrow.Date64Type:
		return Type{Kind: KindDate}, nil
	case *arrow.TimestampType:
		return Type{Kind: KindTimestamp, Unit: t.Unit, UTC: t.TimeZone != ""}, nil
	case *arrow.Decimal128Type:
		return Type{Kind: KindDecimal, Precision: t.Precision, Scale: t.Scale, ByteWidth: 16}, nil
	case *arrow.Decimal256Type:
		return Type{Kind: KindDecimal, Precision: t.Precision, Scale: t.Scale, ByteWidth: 32}, nil
	default:
		return Type{}, fmt.Errorf("unsupported type %s", dt.Name())
	}
}

// toArrowType maps a normalized column type back to the Arrow type used
// when rewriting a file. Only types FromArrow produces are handled.
func toArrowType(t Type) arrow.DataType {
	switch t.Kind {
	case KindBoolean:
		return arrow.FixedWidthTypes.Boolean
	case KindInteger:
		if t.Width == 64 {
			return arrow.PrimitiveTypes.Int64
		}
		return arrow.PrimitiveTypes.Int32
	case KindFloat:
		if t.Width == 64 {
			return arrow.PrimitiveTypes.Float64
		}
		return arrow.PrimitiveTypes.Float32
	case KindDecimal:
		if t.ByteWidth == 32 {
			return &arrow.Decimal256Type{Precision: t.Precision, Scale: t.Scale}
		}
		return &arrow.Decimal128Type{Precision: t.Precision, Scale: t.Scale}
	case KindString:
		return arrow.BinaryTypes.String
	case KindBinary:
		return arrow.BinaryTypes.Binary
	case KindDate:
		return arrow.FixedWidthTypes.Date32
	case KindTimestamp:
		tz := ""
		if t.UTC {
			tz = "UTC"
		}
		return &arrow.TimestampType{Unit: t.Unit, TimeZone: tz}
	default:
		return arrow.BinaryTypes.String
	}
}

// InspectFile reads the schema and row count of a Parquet file, including
// the physical storage of decimal columns, without loading column data.
func InspectFile(path string) (Schema, int64, error) {
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return Schema{}, 0, fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}
	defer pf.Close()

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return Schema{}, 0, fmt.Errorf("failed to read parquet schema %s: %w", path, err)
	}

	as, err := reader.Schema()
	if err != nil {
		return Schema{}, 0, fmt.Errorf("failed to decode arrow schema %s: %w", path, err)
	}

	s, err := FromArrow(as)
	if err != nil {
		return Schema{}, 0, err
	}

	// Flat schemas map leaf columns 1:1 onto fields, so the physical type
	// of each decimal column can be read off the parquet descriptor.
	// Nested schemas never get here: FromArrow rejects them above.
	parquetSchema := pf.MetaData().Schema
	if parquetSchema.NumColumns() == len(s.Columns) {
		for i := range s.Columns {
			if s.Columns[i].Type.Kind != KindDecimal {
				continue
			}
			if parquetSchema.Column(i).PhysicalType() == parquet.Types.FixedLenByteArray {
				s.Columns[i].Type.FixedLen = true
			}
		}
	}

	return s, pf.NumRows(), nil
}
