package dataio

import (
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/YuminosukeSato/lgbmgo/lightgbm"
	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
)

// FromArrowRecord builds a TabularBuffer from the columns of rec.
// Float32, Float64, Int32, Int64 and Boolean arrays are accepted.
func FromArrowRecord(rec arrow.Record, opts Options) (*lightgbm.TabularBuffer, error) {
	if rec == nil {
		return nil, errors.NewValidationError("rec", "must not be nil", nil)
	}
	cols, err := arrowColumns(rec.Schema())
	if err != nil {
		return nil, err
	}
	if err := appendRecord(cols, rec); err != nil {
		return nil, err
	}
	return assemble("arrow", cols, int(rec.NumRows()), opts)
}

// ReadArrowFile reads every record batch of an Arrow IPC file.
func ReadArrowFile(path string, opts Options) (*lightgbm.TabularBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	fr, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, errors.Wrapf(err, "open arrow file %s", path)
	}
	defer fr.Close()

	cols, err := arrowColumns(fr.Schema())
	if err != nil {
		return nil, err
	}
	nrow := 0
	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			return nil, errors.Wrapf(err, "read record %d of %s", i, path)
		}
		if err := appendRecord(cols, rec); err != nil {
			return nil, err
		}
		nrow += int(rec.NumRows())
	}
	return assemble(path, cols, nrow, opts)
}

func arrowColumns(schema *arrow.Schema) ([]column, error) {
	cols := make([]column, schema.NumFields())
	for i, f := range schema.Fields() {
		switch f.Type.ID() {
		case arrow.FLOAT32, arrow.FLOAT64, arrow.INT32, arrow.INT64, arrow.BOOL:
		default:
			return nil, errors.NewValidationError(f.Name, "column is not numeric", f.Type.String())
		}
		cols[i].name = f.Name
	}
	return cols, nil
}

func appendRecord(cols []column, rec arrow.Record) error {
	for j := range cols {
		vals, err := arrowFloats(cols[j].name, rec.Column(j))
		if err != nil {
			return err
		}
		cols[j].values = append(cols[j].values, vals...)
	}
	return nil
}

func arrowFloats(name string, arr arrow.Array) ([]float32, error) {
	out := make([]float32, arr.Len())
	switch a := arr.(type) {
	case *array.Float32:
		for i := range out {
			out[i] = a.Value(i)
		}
	case *array.Float64:
		for i := range out {
			out[i] = float32(a.Value(i))
		}
	case *array.Int32:
		for i := range out {
			out[i] = float32(a.Value(i))
		}
	case *array.Int64:
		for i := range out {
			out[i] = float32(a.Value(i))
		}
	case *array.Boolean:
		for i := range out {
			if a.Value(i) {
				out[i] = 1
			}
		}
	default:
		return nil, errors.NewValidationError(name, "column is not numeric", arr.DataType().String())
	}
	for i := range out {
		if arr.IsNull(i) {
			out[i] = nan32
		}
	}
	return out, nil
}

// ToArrowRecord exports buf as a record with one Float32 column per feature
// plus "label" and "weight" when present. The caller must Release it.
func ToArrowRecord(buf *lightgbm.TabularBuffer, mem memory.Allocator) arrow.Record {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	names := buf.FeatureNames()
	nrow, ncol := buf.NumInstances(), buf.NumFeatures()
	features := buf.Features()

	var fields []arrow.Field
	var arrays []arrow.Array
	add := func(name string, values []float32) {
		b := array.NewFloat32Builder(mem)
		defer b.Release()
		b.AppendValues(values, nil)
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float32})
		arrays = append(arrays, b.NewArray())
	}
	col := make([]float32, nrow)
	for j, name := range names {
		for i := range col {
			col[i] = features[i*ncol+j]
		}
		add(name, col)
	}
	if buf.HasLabels() {
		add(labelColumn, buf.Labels())
	}
	if buf.HasWeights() {
		add(weightColumn, buf.Weights())
	}

	rec := array.NewRecord(arrow.NewSchema(fields, nil), arrays, int64(nrow))
	for _, a := range arrays {
		a.Release()
	}
	return rec
}
