package lightgbm

import (
	"math"
	"strings"
	"unicode"

	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
)

// TabularBuffer is an immutable row-major float32 feature matrix with its
// feature names and optional per-row labels and weights, laid out the way
// LGBM_DatasetCreateFromMat expects.
type TabularBuffer struct {
	numInstances int
	numFeatures  int
	names        []string
	features     []float32
	labels       []float32
	weights      []float32
}

// NewTabularBuffer copies a rectangular matrix and its side vectors into
// flat buffers. labels and weights may be nil.
func NewTabularBuffer(data [][]float32, featureNames []string, labels, weights []float32) (*TabularBuffer, error) {
	if len(data) == 0 {
		return nil, errors.NewValidationError("data", "must contain at least one row", 0)
	}
	ncol := len(data[0])
	if ncol == 0 {
		return nil, errors.NewValidationError("data", "rows must contain at least one feature", 0)
	}
	for _, row := range data {
		if len(row) != ncol {
			return nil, errors.NewDimensionError("NewTabularBuffer", ncol, len(row), 1)
		}
	}
	if err := validateSides(len(data), ncol, featureNames, labels, weights); err != nil {
		return nil, err
	}

	features := make([]float32, 0, len(data)*ncol)
	for _, row := range data {
		features = append(features, row...)
	}
	return newBuffer(len(data), ncol, featureNames, features, labels, weights), nil
}

// NewTabularBufferFromFlat builds a buffer from an already row-major feature
// slice of numInstances rows.
func NewTabularBufferFromFlat(features []float32, numInstances int, featureNames []string, labels, weights []float32) (*TabularBuffer, error) {
	if numInstances <= 0 || len(features) == 0 {
		return nil, errors.NewValidationError("data", "must contain at least one row", numInstances)
	}
	if len(featureNames) == 0 {
		return nil, errors.NewValidationError("featureNames", "must name at least one feature", 0)
	}
	ncol := len(featureNames)
	if len(features) != numInstances*ncol {
		return nil, errors.NewDimensionError("NewTabularBufferFromFlat", numInstances*ncol, len(features), 0)
	}
	if err := validateSides(numInstances, ncol, featureNames, labels, weights); err != nil {
		return nil, err
	}
	return newBuffer(numInstances, ncol, featureNames, append([]float32(nil), features...), labels, weights), nil
}

func validateSides(nrow, ncol int, names []string, labels, weights []float32) error {
	// LGBM_DatasetCreateFromMat takes int32_t shapes.
	if nrow > math.MaxInt32 {
		return errors.NewValidationError("data", "row count exceeds the int32 range of the C API", nrow)
	}
	if ncol > math.MaxInt32 {
		return errors.NewValidationError("data", "feature count exceeds the int32 range of the C API", ncol)
	}
	if names == nil {
		return errors.NewValidationError("featureNames", "must not be nil", nil)
	}
	if len(names) != ncol {
		return errors.NewDimensionError("featureNames", ncol, len(names), 1)
	}
	for _, n := range names {
		if n == "" || strings.IndexFunc(n, unicode.IsSpace) >= 0 {
			return errors.NewValidationError("featureNames", "names must be non-empty and contain no whitespace", n)
		}
	}
	if labels != nil && len(labels) != nrow {
		return errors.NewDimensionError("labels", nrow, len(labels), 0)
	}
	if weights != nil && len(weights) != nrow {
		return errors.NewDimensionError("weights", nrow, len(weights), 0)
	}
	return nil
}

// newBuffer takes ownership of features and copies the rest.
func newBuffer(nrow, ncol int, names []string, features, labels, weights []float32) *TabularBuffer {
	b := &TabularBuffer{
		numInstances: nrow,
		numFeatures:  ncol,
		names:        append([]string(nil), names...),
		features:     features,
	}
	if labels != nil {
		b.labels = append([]float32(nil), labels...)
	}
	if weights != nil {
		b.weights = append([]float32(nil), weights...)
	}
	return b
}

func (b *TabularBuffer) NumInstances() int { return b.numInstances }
func (b *TabularBuffer) NumFeatures() int  { return b.numFeatures }
func (b *TabularBuffer) HasLabels() bool   { return b.labels != nil }
func (b *TabularBuffer) HasWeights() bool  { return b.weights != nil }

// FeatureNames returns a copy of the feature names.
func (b *TabularBuffer) FeatureNames() []string {
	return append([]string(nil), b.names...)
}

// Features returns a copy of the row-major feature matrix.
func (b *TabularBuffer) Features() []float32 {
	return append([]float32(nil), b.features...)
}

// Labels returns a copy of the labels, or nil.
func (b *TabularBuffer) Labels() []float32 {
	if b.labels == nil {
		return nil
	}
	return append([]float32(nil), b.labels...)
}

// Weights returns a copy of the weights, or nil.
func (b *TabularBuffer) Weights() []float32 {
	if b.weights == nil {
		return nil
	}
	return append([]float32(nil), b.weights...)
}

// Row returns a copy of row i.
func (b *TabularBuffer) Row(i int) []float32 {
	return append([]float32(nil), b.features[i*b.numFeatures:(i+1)*b.numFeatures]...)
}
