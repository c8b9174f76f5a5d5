package schema

import (
	"context"
	"fmt"
	"math/big"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/decimal128"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
)

// RewriteFile rewrites a Parquet file so its rewritten columns carry the
// normalized types. Values are recomputed through their unscaled integer
// representation, never reinterpreted from raw bytes. The file is replaced
// atomically; with no rewrites the call is a no-op.
func RewriteFile(ctx context.Context, path string, rewrites []Rewrite) error {
	if len(rewrites) == 0 {
		return nil
	}

	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		pf.Close()
		return fmt.Errorf("failed to read parquet file %s: %w", path, err)
	}

	tbl, err := reader.ReadTable(ctx)
	if err != nil {
		pf.Close()
		return fmt.Errorf("failed to read parquet table %s: %w", path, err)
	}
	defer tbl.Release()

	rewritten := make(map[int]Rewrite, len(rewrites))
	for _, rw := range rewrites {
		rewritten[rw.Index] = rw
	}

	oldSchema := tbl.Schema()
	fields := make([]arrow.Field, oldSchema.NumFields())
	cols := make([]arrow.Column, oldSchema.NumFields())

	for i := 0; i < oldSchema.NumFields(); i++ {
		field := oldSchema.Field(i)
		rw, ok := rewritten[i]
		if !ok {
			fields[i] = field
			cols[i] = *arrow.NewColumn(field, tbl.Column(i).Data())
			continue
		}

		field.Type = toArrowType(rw.To)
		fields[i] = field

		chunks := make([]arrow.Array, 0, len(tbl.Column(i).Data().Chunks()))
		for _, chunk := range tbl.Column(i).Data().Chunks() {
			converted, err := convertDecimalChunk(chunk, rw.From, rw.To)
			if err != nil {
				pf.Close()
				return fmt.Errorf("column %q: %w", rw.Name, err)
			}
			chunks = append(chunks, converted)
		}
		chunked := arrow.NewChunked(field.Type, chunks)
		cols[i] = *arrow.NewColumn(field, chunked)
		for _, c := range chunks {
			c.Release()
		}
		chunked.Release()
	}

	newSchema := arrow.NewSchema(fields, nil)
	out := array.NewTable(newSchema, cols, tbl.NumRows())
	defer out.Release()
	for i := range cols {
		cols[i].Release()
	}

	// Done reading; the original must be closed before the rename below
	// can replace it on all platforms.
	if err := pf.Close(); err != nil {
		return err
	}

	return writeTable(out, path)
}

// writeTable writes the table next to path and renames it into place.
func writeTable(tbl arrow.Table, path string) error {
	tmp := path + ".rewrite"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithDictionaryDefault(true),
		// Low-precision decimals land as int32/int64 physical storage,
		// which is what the catalog reader requires.
		parquet.WithStoreDecimalAsInteger(true),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	// WriteTable closes the sink itself; closing again here would fail
	// with os.ErrClosed.
	if err := pqarrow.WriteTable(tbl, f, tbl.NumRows(), writerProps, arrowProps); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write parquet table: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// convertDecimalChunk casts one decimal column chunk to the target decimal
// type, rescaling unscaled values when the scale changes and verifying each
// value fits the target precision.
func convertDecimalChunk(chunk arrow.Array, from, to Type) (arrow.Array, error) {
	builder := array.NewDecimal128Builder(memory.DefaultAllocator, &arrow.Decimal128Type{
		Precision: to.Precision,
		Scale:     to.Scale,
	})
	defer builder.Release()
	builder.Reserve(chunk.Len())

	for i := 0; i < chunk.Len(); i++ {
		if chunk.IsNull(i) {
			builder.AppendNull()
			continue
		}

		var unscaled *big.Int
		switch a := chunk.(type) {
		case *array.Decimal128:
			unscaled = a.Value(i).BigInt()
		case *array.Decimal256:
			unscaled = a.Value(i).BigInt()
		default:
			return nil, fmt.Errorf("%w: expected decimal data, got %s",
				ErrSchemaIncompatible, chunk.DataType().Name())
		}

		scaled, exact := rescaleUnscaled(unscaled, from.Scale, to.Scale)
		if !exact {
			return nil, fmt.Errorf("%w: value at row %d does not fit scale %d",
				ErrSchemaIncompatible, i, to.Scale)
		}

		num := decimal128.FromBigInt(scaled)
		if !num.FitsInPrecision(to.Precision) {
			return nil, fmt.Errorf("%w: value at row %d exceeds decimal(%d, %d)",
				ErrSchemaIncompatible, i, to.Precision, to.Scale)
		}
		builder.Append(num)
	}

	return builder.NewArray(), nil
}

// rescaleUnscaled moves an unscaled decimal integer between scales.
// Increasing the scale multiplies by a power of ten and is always exact;
// decreasing it divides and reports whether precision was lost.
func rescaleUnscaled(v *big.Int, fromScale, toScale int32) (*big.Int, bool) {
	if fromScale == toScale {
		return new(big.Int).Set(v), true
	}

	diff := int64(toScale - fromScale)
	if diff > 0 {
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(diff), nil)
		return new(big.Int).Mul(v, factor), true
	}

	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(-diff), nil)
	quo, rem := new(big.Int).QuoRem(v, factor, new(big.Int))
	return quo, rem.Sign() == 0
}
