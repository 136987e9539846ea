package lightgbm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
)

func TestNewTabularBufferShapes(t *testing.T) {
	data := [][]float32{{1, 2, 3}, {4, 5, 6}}
	buf, err := NewTabularBuffer(data, []string{"a", "b", "c"}, []float32{0, 1}, []float32{1, 2})
	require.NoError(t, err)

	assert.Equal(t, 2, buf.NumInstances())
	assert.Equal(t, 3, buf.NumFeatures())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, buf.Features())
	assert.Equal(t, []float32{0, 1}, buf.Labels())
	assert.Equal(t, []float32{1, 2}, buf.Weights())
	assert.Equal(t, []float32{4, 5, 6}, buf.Row(1))
	assert.True(t, buf.HasLabels())
	assert.True(t, buf.HasWeights())
}

func TestNewTabularBufferCopiesInputs(t *testing.T) {
	data := [][]float32{{1, 2}, {3, 4}}
	names := []string{"x", "y"}
	labels := []float32{0, 1}
	buf, err := NewTabularBuffer(data, names, labels, nil)
	require.NoError(t, err)

	data[0][0] = 99
	names[0] = "changed"
	labels[0] = 7
	assert.Equal(t, []float32{1, 2, 3, 4}, buf.Features())
	assert.Equal(t, []string{"x", "y"}, buf.FeatureNames())
	assert.Equal(t, []float32{0, 1}, buf.Labels())

	got := buf.FeatureNames()
	got[1] = "mutated"
	assert.Equal(t, "y", buf.FeatureNames()[1])
	assert.False(t, buf.HasWeights())
	assert.Nil(t, buf.Weights())
}

func TestNewTabularBufferValidation(t *testing.T) {
	rows := [][]float32{{1, 2}, {3, 4}, {5, 6}}
	names := []string{"f0", "f1"}

	tests := []struct {
		name    string
		data    [][]float32
		names   []string
		labels  []float32
		weights []float32
	}{
		{"empty data", nil, names, nil, nil},
		{"zero columns", [][]float32{{}}, []string{}, nil, nil},
		{"ragged rows", [][]float32{{1, 2}, {3}}, names, nil, nil},
		{"nil names", rows, nil, nil, nil},
		{"too few names", rows, []string{"f0"}, nil, nil},
		{"too many names", rows, []string{"f0", "f1", "f2"}, nil, nil},
		{"empty name", rows, []string{"f0", ""}, nil, nil},
		{"name with space", rows, []string{"f0", "f 1"}, nil, nil},
		{"short labels", rows, names, []float32{0, 1}, nil},
		{"long labels", rows, names, []float32{0, 1, 0, 1}, nil},
		{"short weights", rows, names, []float32{0, 1, 0}, []float32{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := NewTabularBuffer(tt.data, tt.names, tt.labels, tt.weights)
			require.Error(t, err)
			assert.Nil(t, buf)
			assert.True(t, errors.Is(err, errors.ErrInvalidArgument), "got %v", err)
		})
	}
}

func TestNewTabularBufferFromFlat(t *testing.T) {
	buf, err := NewTabularBufferFromFlat([]float32{1, 2, 3, 4, 5, 6}, 3, []string{"a", "b"}, []float32{1, 0, 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, buf.NumInstances())
	assert.Equal(t, 2, buf.NumFeatures())
	assert.Equal(t, []float32{5, 6}, buf.Row(2))

	_, err = NewTabularBufferFromFlat([]float32{1, 2, 3}, 2, []string{"a", "b"}, nil, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	_, err = NewTabularBufferFromFlat([]float32{1, 2}, 0, []string{"a"}, nil, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	_, err = NewTabularBufferFromFlat([]float32{1, 2}, 2, nil, nil, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestValidateSidesRejectsInt32Overflow(t *testing.T) {
	tooMany := int(int64(math.MaxInt32) + 1)

	err := validateSides(tooMany, 1, []string{"a"}, nil, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	var verr *errors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "data", verr.ParamName)

	err = validateSides(1, tooMany, []string{"a"}, nil, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	assert.NoError(t, validateSides(math.MaxInt32, 1, []string{"a"}, nil, nil))
}
