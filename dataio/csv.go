package dataio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/lgbmgo/lightgbm"
	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
)

// CSVOptions configures CSV reading. The first record is always the header.
type CSVOptions struct {
	Options
	// Comma is the field delimiter, ',' when zero.
	Comma rune
	// NullValues are read as NaN. Defaults to "", "NA", "N/A", "NaN", "nan" and "null".
	NullValues []string
}

var defaultNullValues = []string{"", "NA", "N/A", "NaN", "nan", "null"}

// ReadCSV reads a CSV file into a TabularBuffer.
func ReadCSV(path string, opts CSVOptions) (*lightgbm.TabularBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return readCSV(path, f, opts)
}

// ReadCSVFromReader reads CSV data from r into a TabularBuffer.
func ReadCSVFromReader(r io.Reader, opts CSVOptions) (*lightgbm.TabularBuffer, error) {
	return readCSV("csv", r, opts)
}

func readCSV(source string, r io.Reader, opts CSVOptions) (*lightgbm.TabularBuffer, error) {
	reader := csv.NewReader(r)
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	nulls := opts.NullValues
	if nulls == nil {
		nulls = defaultNullValues
	}
	isNull := make(map[string]bool, len(nulls))
	for _, n := range nulls {
		isNull[n] = true
	}

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.NewValidationError("csv", "missing header", source)
		}
		return nil, errors.Wrapf(err, "read header of %s", source)
	}
	cols := make([]column, len(header))
	for j, name := range header {
		cols[j].name = strings.TrimSpace(name)
	}

	nrow := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", source)
		}
		for j, field := range record {
			field = strings.TrimSpace(field)
			if isNull[field] {
				cols[j].values = append(cols[j].values, nan32)
				continue
			}
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, errors.NewValidationError(cols[j].name,
					fmt.Sprintf("row %d is not a number", nrow+1), field)
			}
			cols[j].values = append(cols[j].values, float32(v))
		}
		nrow++
	}
	return assemble(source, cols, nrow, opts.Options)
}
