package dataio

import (
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/YuminosukeSato/lgbmgo/lightgbm"
	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
)

// columnOrderKey stores the feature order in the file metadata, since a
// parquet group sorts its fields by name.
const columnOrderKey = "lgbm.columns"

const (
	labelColumn  = "label"
	weightColumn = "weight"
)

// ReadParquet reads a Parquet file into a TabularBuffer.
func ReadParquet(path string, opts Options) (*lightgbm.TabularBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	return readParquet(path, f, stat.Size(), opts)
}

// ReadParquetFromReader reads Parquet data of the given size from r.
func ReadParquetFromReader(r io.ReaderAt, size int64, opts Options) (*lightgbm.TabularBuffer, error) {
	return readParquet("parquet", r, size, opts)
}

func readParquet(source string, r io.ReaderAt, size int64, opts Options) (*lightgbm.TabularBuffer, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, errors.Wrapf(err, "open parquet %s", source)
	}

	leaves := pf.Schema().Columns()
	cols := make([]column, len(leaves))
	nrow := int(pf.NumRows())
	for j, path := range leaves {
		if len(path) != 1 {
			return nil, errors.NewValidationError(strings.Join(path, "."), "nested columns are not supported", nil)
		}
		cols[j] = column{name: path[0], values: make([]float32, 0, nrow)}
	}

	rowBuf := make([]parquet.Row, 1024)
	for _, rg := range pf.RowGroups() {
		if err := readRowGroup(rg, rowBuf, cols); err != nil {
			return nil, errors.Wrapf(err, "read parquet %s", source)
		}
	}

	if order, ok := pf.Lookup(columnOrderKey); ok {
		cols = reorder(cols, strings.Split(order, ","))
	}
	return assemble(source, cols, nrow, opts)
}

func readRowGroup(rg parquet.RowGroup, rowBuf []parquet.Row, cols []column) error {
	rows := rg.Rows()
	defer rows.Close()
	for {
		n, err := rows.ReadRows(rowBuf)
		for _, row := range rowBuf[:n] {
			for j := range cols {
				if j >= len(row) {
					cols[j].values = append(cols[j].values, nan32)
					continue
				}
				v, verr := parquetFloat(cols[j].name, row[j])
				if verr != nil {
					return verr
				}
				cols[j].values = append(cols[j].values, v)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func parquetFloat(name string, v parquet.Value) (float32, error) {
	if v.IsNull() {
		return nan32, nil
	}
	switch v.Kind() {
	case parquet.Float:
		return v.Float(), nil
	case parquet.Double:
		return float32(v.Double()), nil
	case parquet.Int32:
		return float32(v.Int32()), nil
	case parquet.Int64:
		return float32(v.Int64()), nil
	case parquet.Boolean:
		if v.Boolean() {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, errors.NewValidationError(name, "column is not numeric", v.Kind().String())
	}
}

// reorder puts the columns named in order first, in that order, followed by
// any others in their existing order.
func reorder(cols []column, order []string) []column {
	byName := make(map[string]int, len(cols))
	for i, c := range cols {
		byName[c.name] = i
	}
	out := make([]column, 0, len(cols))
	used := make([]bool, len(cols))
	for _, name := range order {
		if i, ok := byName[name]; ok && !used[i] {
			out = append(out, cols[i])
			used[i] = true
		}
	}
	for i, c := range cols {
		if !used[i] {
			out = append(out, c)
		}
	}
	return out
}

// WriteParquet writes buf to path as float columns, with "label" and
// "weight" columns when present.
func WriteParquet(path string, buf *lightgbm.TabularBuffer) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := WriteParquetToWriter(f, buf); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteParquetToWriter writes buf to w in Parquet format.
func WriteParquetToWriter(w io.Writer, buf *lightgbm.TabularBuffer) error {
	if buf == nil {
		return errors.NewValidationError("buf", "must not be nil", nil)
	}
	names := buf.FeatureNames()
	order := append([]string(nil), names...)
	if buf.HasLabels() {
		order = append(order, labelColumn)
	}
	if buf.HasWeights() {
		order = append(order, weightColumn)
	}

	group := make(parquet.Group, len(order))
	for _, name := range order {
		if _, dup := group[name]; dup {
			return errors.NewValidationError("column", "name collides with another column", name)
		}
		group[name] = parquet.Leaf(parquet.FloatType)
	}
	schema := parquet.NewSchema("lgbm", group)

	// schema column index of every name
	index := make(map[string]int, len(order))
	for i, path := range schema.Columns() {
		index[path[0]] = i
	}

	pw := parquet.NewWriter(w, schema,
		parquet.Compression(&parquet.Snappy),
		parquet.KeyValueMetadata(columnOrderKey, strings.Join(order, ",")),
	)

	features := buf.Features()
	labels := buf.Labels()
	weights := buf.Weights()
	ncol := buf.NumFeatures()
	width := len(order)

	const batchSize = 1000
	rows := make([]parquet.Row, 0, batchSize)
	value := func(row parquet.Row, name string, v float32) {
		c := index[name]
		row[c] = parquet.FloatValue(v).Level(0, 0, c)
	}
	for i := 0; i < buf.NumInstances(); i++ {
		row := make(parquet.Row, width)
		for j, name := range names {
			value(row, name, features[i*ncol+j])
		}
		if labels != nil {
			value(row, labelColumn, labels[i])
		}
		if weights != nil {
			value(row, weightColumn, weights[i])
		}
		rows = append(rows, row)
		if len(rows) == batchSize {
			if _, err := pw.WriteRows(rows); err != nil {
				return errors.Wrapf(err, "write rows before %d", i+1)
			}
			rows = rows[:0]
		}
	}
	if len(rows) > 0 {
		if _, err := pw.WriteRows(rows); err != nil {
			return errors.Wrap(err, "write final rows")
		}
	}
	return errors.Wrap(pw.Close(), "close parquet writer")
}
