package schema

import "fmt"

// Catalog decimal bounds. Iceberg caps decimal precision at 38; decimals
// with precision up to 18 must be stored int-backed rather than as
// fixed-length byte arrays for the catalog reader to accept them.
const (
	MaxPrecision           = 38
	MaxIntegerBackedLength = 18
)

// Rewrite records one column whose type was normalized. The data rewrite
// step uses it to recompute values for that column.
type Rewrite struct {
	Index int
	Name  string
	From  Type
	To    Type
}

// Normalize rewrites decimal columns that the catalog would reject into the
// nearest accepted representation. It is pure and deterministic: the same
// input always yields the same output, and normalizing an already
// normalized schema returns it unchanged with no rewrites.
//
// Rules, exhaustive over the decimal variants:
//   - precision > 38: no representable target, ErrSchemaIncompatible.
//   - decimal256-stored with precision <= 38: narrowed to decimal128 at
//     the same (precision, scale).
//   - precision <= 18 stored as fixed-length byte array: re-marked for
//     int-backed storage at the same (precision, scale).
//   - anything else: untouched.
//
// Non-decimal columns are never coerced.
func Normalize(s Schema) (Schema, []Rewrite, error) {
	out := Schema{Columns: make([]Column, len(s.Columns))}
	copy(out.Columns, s.Columns)

	var rewrites []Rewrite
	for i, col := range out.Columns {
		if col.Type.Kind != KindDecimal {
			continue
		}

		if col.Type.Precision > MaxPrecision {
			return Schema{}, nil, fmt.Errorf(
				"%w: column %q requires decimal precision %d, catalog maximum is %d",
				ErrSchemaIncompatible, col.Name, col.Type.Precision, MaxPrecision)
		}

		to := col.Type
		if to.ByteWidth == 32 {
			to.ByteWidth = 16
		}
		if to.Precision <= MaxIntegerBackedLength {
			to.FixedLen = false
		}

		if to == col.Type {
			continue
		}

		rewrites = append(rewrites, Rewrite{
			Index: i,
			Name:  col.Name,
			From:  col.Type,
			To:    to,
		})
		out.Columns[i].Type = to
	}

	return out, rewrites, nil
}
