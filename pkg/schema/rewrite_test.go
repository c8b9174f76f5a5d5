package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/decimal128"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
)

func buildDecimal128Array(t *testing.T, precision, scale int32, values []int64, nulls []bool) arrow.Array {
	t.Helper()
	builder := array.NewDecimal128Builder(memory.DefaultAllocator, &arrow.Decimal128Type{
		Precision: precision,
		Scale:     scale,
	})
	defer builder.Release()
	for i, v := range values {
		if nulls != nil && nulls[i] {
			builder.AppendNull()
			continue
		}
		builder.Append(decimal128.FromI64(v))
	}
	return builder.NewArray()
}

func TestConvertDecimalChunk_ValuesPreserved(t *testing.T) {
	values := []int64{12345, -9900, 0, 1}
	nulls := []bool{false, false, false, true}
	chunk := buildDecimal128Array(t, 12, 2, values, nulls)
	defer chunk.Release()

	from := Type{Kind: KindDecimal, Precision: 12, Scale: 2, ByteWidth: 16, FixedLen: true}
	to := Type{Kind: KindDecimal, Precision: 12, Scale: 2, ByteWidth: 16}

	got, err := convertDecimalChunk(chunk, from, to)
	if err != nil {
		t.Fatalf("convertDecimalChunk() error = %v", err)
	}
	defer got.Release()

	dec, ok := got.(*array.Decimal128)
	if !ok {
		t.Fatalf("converted chunk is %T, want *array.Decimal128", got)
	}
	for i, want := range values {
		if nulls[i] {
			if !dec.IsNull(i) {
				t.Errorf("row %d: null not preserved", i)
			}
			continue
		}
		if got := dec.Value(i).BigInt().Int64(); got != want {
			t.Errorf("row %d: value = %d, want %d", i, got, want)
		}
	}
}

func TestConvertDecimalChunk_OverflowRejected(t *testing.T) {
	chunk := buildDecimal128Array(t, 10, 0, []int64{1234567890}, nil)
	defer chunk.Release()

	from := Type{Kind: KindDecimal, Precision: 10, Scale: 0, ByteWidth: 16}
	to := Type{Kind: KindDecimal, Precision: 5, Scale: 0, ByteWidth: 16}

	if _, err := convertDecimalChunk(chunk, from, to); err == nil {
		t.Error("expected overflow error casting 1234567890 into decimal(5, 0)")
	}
}

func writeTestParquet(t *testing.T, dir string) string {
	t.Helper()

	decType := &arrow.Decimal128Type{Precision: 12, Scale: 2}
	as := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "amount", Type: decType, Nullable: true},
	}, nil)

	mem := memory.DefaultAllocator
	idB := array.NewInt64Builder(mem)
	defer idB.Release()
	idB.AppendValues([]int64{1, 2, 3}, nil)
	ids := idB.NewArray()
	defer ids.Release()

	amountB := array.NewDecimal128Builder(mem, decType)
	defer amountB.Release()
	amountB.Append(decimal128.FromI64(12345))
	amountB.Append(decimal128.FromI64(-500))
	amountB.AppendNull()
	amounts := amountB.NewArray()
	defer amounts.Release()

	rec := array.NewRecord(as, []arrow.Array{ids, amounts}, 3)
	defer rec.Release()
	tbl := array.NewTableFromRecords(as, []arrow.Record{rec})
	defer tbl.Release()

	path := filepath.Join(dir, "input.parquet")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	// Defaults store the decimal column as FIXED_LEN_BYTE_ARRAY, which is
	// exactly the input the normalizer exists to fix.
	props := parquet.NewWriterProperties(parquet.WithDictionaryDefault(true))
	// WriteTable closes f itself.
	if err := pqarrow.WriteTable(tbl, f, 3, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRewriteFile_EndToEnd(t *testing.T) {
	path := writeTestParquet(t, t.TempDir())

	s, rows, err := InspectFile(path)
	if err != nil {
		t.Fatalf("InspectFile() error = %v", err)
	}
	if rows != 3 {
		t.Errorf("rows = %d, want 3", rows)
	}
	if !s.Columns[1].Type.FixedLen {
		t.Fatal("test file's decimal column is not fixed-length; writer defaults changed")
	}

	_, rewrites, err := Normalize(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(rewrites) != 1 {
		t.Fatalf("Normalize() produced %d rewrites, want 1", len(rewrites))
	}

	if err := RewriteFile(context.Background(), path, rewrites); err != nil {
		t.Fatalf("RewriteFile() error = %v", err)
	}

	// After the rewrite the schema is already normalized: same logical
	// types, int-backed storage, nothing further to do.
	after, rows, err := InspectFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if rows != 3 {
		t.Errorf("rows after rewrite = %d, want 3", rows)
	}
	if after.Columns[1].Type.FixedLen {
		t.Error("decimal column still fixed-length after rewrite")
	}
	if !after.Columns[1].Type.Equal(s.Columns[1].Type) {
		t.Errorf("logical type changed: %s -> %s", s.Columns[1].Type, after.Columns[1].Type)
	}
	if _, rewrites, _ := Normalize(after); len(rewrites) != 0 {
		t.Error("rewritten file still needs normalization")
	}
}

func TestFromArrow_RejectsNested(t *testing.T) {
	as := arrow.NewSchema([]arrow.Field{
		{Name: "tags", Type: arrow.ListOf(arrow.BinaryTypes.String)},
	}, nil)

	if _, err := FromArrow(as); err == nil {
		t.Error("expected error for nested list column")
	}
}

func TestFromArrow_TypeMapping(t *testing.T) {
	as := arrow.NewSchema([]arrow.Field{
		{Name: "b", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "i", Type: arrow.PrimitiveTypes.Int32},
		{Name: "l", Type: arrow.PrimitiveTypes.Int64},
		{Name: "d", Type: arrow.PrimitiveTypes.Float64},
		{Name: "s", Type: arrow.BinaryTypes.String},
		{Name: "ts", Type: &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}},
	}, nil)

	s, err := FromArrow(as)
	if err != nil {
		t.Fatalf("FromArrow() error = %v", err)
	}

	want := []string{"boolean", "int", "long", "double", "string", "timestamptz"}
	for i, w := range want {
		if got := s.Columns[i].Type.String(); got != w {
			t.Errorf("column %d type = %q, want %q", i, got, w)
		}
	}
}
