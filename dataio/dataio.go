// Package dataio loads TabularBuffers from CSV, Parquet and Arrow data.
//
// Every loader reads named numeric columns, takes the label and weight
// columns out by name and keeps the remaining columns as features in file
// order. Missing values become NaN.
package dataio

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/YuminosukeSato/lgbmgo/lightgbm"
	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
	"github.com/YuminosukeSato/lgbmgo/pkg/log"
)

// Options names the optional label and weight columns.
type Options struct {
	Label  string
	Weight string
}

// column is one named float32 column of a file being loaded.
type column struct {
	name   string
	values []float32
}

var nan32 = float32(math.NaN())

// Load dispatches on the file extension: .csv, .parquet or .arrow/.ipc/.feather.
func Load(path string, opts Options) (*lightgbm.TabularBuffer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(path, CSVOptions{Options: opts})
	case ".parquet", ".pq":
		return ReadParquet(path, opts)
	case ".arrow", ".ipc", ".feather":
		return ReadArrowFile(path, opts)
	default:
		return nil, errors.NewValidationError("path", "unsupported file extension", filepath.Ext(path))
	}
}

// assemble turns columns of equal length nrow into a buffer.
func assemble(source string, cols []column, nrow int, opts Options) (*lightgbm.TabularBuffer, error) {
	var labels, weights []float32
	features := make([]column, 0, len(cols))
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if seen[c.name] {
			return nil, errors.NewValidationError("column", "duplicate column name", c.name)
		}
		seen[c.name] = true
		if len(c.values) != nrow {
			return nil, errors.NewDimensionError("column "+c.name, nrow, len(c.values), 0)
		}
		switch {
		case opts.Label != "" && c.name == opts.Label:
			labels = c.values
		case opts.Weight != "" && c.name == opts.Weight:
			weights = c.values
		default:
			features = append(features, c)
		}
	}
	if opts.Label != "" && labels == nil {
		return nil, errors.NewValidationError("label", "column not found", opts.Label)
	}
	if opts.Weight != "" && weights == nil {
		return nil, errors.NewValidationError("weight", "column not found", opts.Weight)
	}
	if len(features) == 0 {
		return nil, errors.NewValidationError("columns", "no feature columns", source)
	}

	ncol := len(features)
	flat := make([]float32, nrow*ncol)
	names := make([]string, ncol)
	for j, c := range features {
		names[j] = c.name
		for i, v := range c.values {
			flat[i*ncol+j] = v
		}
	}
	buf, err := lightgbm.NewTabularBufferFromFlat(flat, nrow, names, labels, weights)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", source)
	}
	log.GetLoggerWithName("dataio").Debug("Buffer loaded",
		log.SourceKey, source,
		log.SamplesKey, nrow,
		log.FeaturesKey, ncol,
		log.HasLabelsKey, labels != nil,
		log.HasWeightsKey, weights != nil,
	)
	return buf, nil
}
