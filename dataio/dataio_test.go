package dataio

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/go-cmp/cmp"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/lgbmgo/lightgbm"
	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
)

const sampleCSV = `x1,y,x2,w
1,0,2,1
3,1,NA,2
5,1,6,0.5
`

func TestReadCSVFromReader(t *testing.T) {
	buf, err := ReadCSVFromReader(strings.NewReader(sampleCSV), CSVOptions{Options: Options{Label: "y", Weight: "w"}})
	require.NoError(t, err)

	assert.Equal(t, 3, buf.NumInstances())
	assert.Equal(t, []string{"x1", "x2"}, buf.FeatureNames())
	assert.Equal(t, []float32{0, 1, 1}, buf.Labels())
	assert.Equal(t, []float32{1, 2, 0.5}, buf.Weights())
	row := buf.Row(1)
	assert.Equal(t, float32(3), row[0])
	assert.True(t, math.IsNaN(float64(row[1])))
}

func TestReadCSVWithoutLabel(t *testing.T) {
	buf, err := ReadCSVFromReader(strings.NewReader("a;b\n1;2\n3;4\n"), CSVOptions{Comma: ';'})
	require.NoError(t, err)
	assert.False(t, buf.HasLabels())
	assert.Equal(t, []float32{1, 2, 3, 4}, buf.Features())
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		opts CSVOptions
	}{
		{"empty", "", CSVOptions{}},
		{"header only", "a,b\n", CSVOptions{}},
		{"not a number", "a,b\n1,x\n", CSVOptions{}},
		{"missing label", "a,b\n1,2\n", CSVOptions{Options: Options{Label: "y"}}},
		{"missing weight", "a,y\n1,2\n", CSVOptions{Options: Options{Label: "y", Weight: "w"}}},
		{"only label", "y\n1\n", CSVOptions{Options: Options{Label: "y"}}},
		{"duplicate column", "a,a\n1,2\n", CSVOptions{}},
		{"space in name", "a b,c\n1,2\n", CSVOptions{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSVFromReader(strings.NewReader(tt.src), tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidArgument), "got %v", err)
		})
	}

	_, err := ReadCSVFromReader(strings.NewReader("a,b\n1,2,3\n"), CSVOptions{})
	assert.Error(t, err, "ragged record")
}

func wideBuffer(t *testing.T) *lightgbm.TabularBuffer {
	t.Helper()
	const nrow, ncol = 2500, 12
	features := make([]float32, nrow*ncol)
	labels := make([]float32, nrow)
	weights := make([]float32, nrow)
	for i := range features {
		features[i] = float32(i) / 7
	}
	for i := range labels {
		labels[i] = float32(i % 2)
		weights[i] = 1 + float32(i%3)
	}
	names := make([]string, ncol)
	for j := range names {
		names[j] = fmt.Sprintf("f%d", j)
	}
	buf, err := lightgbm.NewTabularBufferFromFlat(features, nrow, names, labels, weights)
	require.NoError(t, err)
	return buf
}

func assertSameBuffer(t *testing.T, want, got *lightgbm.TabularBuffer) {
	t.Helper()
	assert.Equal(t, want.FeatureNames(), got.FeatureNames())
	if diff := cmp.Diff(want.Features(), got.Features()); diff != "" {
		t.Errorf("features differ (-want +got):\n%s", diff)
	}
	assert.Equal(t, want.Labels(), got.Labels())
	assert.Equal(t, want.Weights(), got.Weights())
}

// More than ten features so that name order and schema order differ.
func TestParquetRoundTripKeepsFeatureOrder(t *testing.T) {
	want := wideBuffer(t)

	var out bytes.Buffer
	require.NoError(t, WriteParquetToWriter(&out, want))

	got, err := ReadParquetFromReader(bytes.NewReader(out.Bytes()), int64(out.Len()),
		Options{Label: labelColumn, Weight: weightColumn})
	require.NoError(t, err)
	assertSameBuffer(t, want, got)
}

func TestParquetFile(t *testing.T) {
	want := wideBuffer(t)
	path := filepath.Join(t.TempDir(), "train.parquet")
	require.NoError(t, WriteParquet(path, want))

	got, err := Load(path, Options{Label: "label", Weight: "weight"})
	require.NoError(t, err)
	assertSameBuffer(t, want, got)
}

func TestReadParquetRejectsStrings(t *testing.T) {
	schema := parquet.NewSchema("t", parquet.Group{
		"name": parquet.Leaf(parquet.ByteArrayType),
		"x":    parquet.Leaf(parquet.FloatType),
	})
	var out bytes.Buffer
	w := parquet.NewWriter(&out, schema)
	_, err := w.WriteRows([]parquet.Row{{
		parquet.ByteArrayValue([]byte("a")).Level(0, 0, 0),
		parquet.FloatValue(1).Level(0, 0, 1),
	}})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = ReadParquetFromReader(bytes.NewReader(out.Bytes()), int64(out.Len()), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument), "got %v", err)
}

func TestWriteParquetRejectsNameCollision(t *testing.T) {
	buf, err := lightgbm.NewTabularBuffer([][]float32{{1}}, []string{"label"}, []float32{1}, nil)
	require.NoError(t, err)
	err = WriteParquetToWriter(&bytes.Buffer{}, buf)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestFromArrowRecord(t *testing.T) {
	mem := memory.NewGoAllocator()

	f64 := array.NewFloat64Builder(mem)
	defer f64.Release()
	f64.Append(1.5)
	f64.AppendNull()
	f64.Append(-2)

	i32 := array.NewInt32Builder(mem)
	defer i32.Release()
	i32.AppendValues([]int32{1, 2, 3}, nil)

	flag := array.NewBooleanBuilder(mem)
	defer flag.Release()
	flag.AppendValues([]bool{true, false, true}, nil)

	target := array.NewFloat32Builder(mem)
	defer target.Release()
	target.AppendValues([]float32{0, 1, 0}, nil)

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "a", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "b", Type: arrow.PrimitiveTypes.Int32},
		{Name: "c", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "target", Type: arrow.PrimitiveTypes.Float32},
	}, nil)
	arrays := []arrow.Array{f64.NewArray(), i32.NewArray(), flag.NewArray(), target.NewArray()}
	rec := array.NewRecord(schema, arrays, 3)
	defer rec.Release()
	for _, a := range arrays {
		a.Release()
	}

	buf, err := FromArrowRecord(rec, Options{Label: "target"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, buf.FeatureNames())
	assert.Equal(t, []float32{0, 1, 0}, buf.Labels())
	assert.Equal(t, []float32{1.5, 1, 1}, buf.Row(0))
	assert.True(t, math.IsNaN(float64(buf.Row(1)[0])))
	assert.Equal(t, []float32{-2, 3, 1}, buf.Row(2))
}

func TestFromArrowRecordRejectsStrings(t *testing.T) {
	mem := memory.NewGoAllocator()
	sb := array.NewStringBuilder(mem)
	defer sb.Release()
	sb.AppendValues([]string{"x"}, nil)
	arr := sb.NewArray()
	defer arr.Release()

	schema := arrow.NewSchema([]arrow.Field{{Name: "s", Type: arrow.BinaryTypes.String}}, nil)
	rec := array.NewRecord(schema, []arrow.Array{arr}, 1)
	defer rec.Release()

	_, err := FromArrowRecord(rec, Options{})
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	_, err = FromArrowRecord(nil, Options{})
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestArrowFileRoundTrip(t *testing.T) {
	want := wideBuffer(t)
	mem := memory.NewGoAllocator()
	rec := ToArrowRecord(want, mem)
	defer rec.Release()

	path := filepath.Join(t.TempDir(), "train.arrow")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	require.NoError(t, err)
	// two batches of the same record
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	got, err := Load(path, Options{Label: "label", Weight: "weight"})
	require.NoError(t, err)
	assert.Equal(t, 2*want.NumInstances(), got.NumInstances())
	assert.Equal(t, want.Row(5), got.Row(5))
	assert.Equal(t, want.Row(5), got.Row(want.NumInstances()+5))
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	_, err := Load("data.xlsx", Options{})
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}
