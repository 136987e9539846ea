package lightgbm

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/lgbmgo/lightgbm/capi"
	"github.com/YuminosukeSato/lgbmgo/pkg/log"
)

// testOpts wires lib and a captured logger into a Dataset or Booster.
func testOpts(lib capi.Library) ([]Option, *log.TestLogger) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	return []Option{WithLibrary(lib), WithLogger(logger)}, logger
}

// randomBuffer builds nrow rows of uniform features with names f0..fN and,
// when labelled, labels 1 where f0+f1 > 1.
func randomBuffer(t *testing.T, nrow, ncol int, seed int64, labelled bool) *TabularBuffer {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	data := make([][]float32, nrow)
	var labels []float32
	if labelled {
		labels = make([]float32, nrow)
	}
	for i := range data {
		row := make([]float32, ncol)
		for j := range row {
			row[j] = rng.Float32()
		}
		data[i] = row
		if labelled && row[0]+row[1] > 1 {
			labels[i] = 1
		}
	}
	names := make([]string, ncol)
	for j := range names {
		names[j] = fmt.Sprintf("f%d", j)
	}
	buf, err := NewTabularBuffer(data, names, labels, nil)
	require.NoError(t, err)
	return buf
}

func binaryParams() *Params {
	return NewParams().
		SetString("objective", "binary").
		SetInt("num_class", 1).
		SetBool("force_col_wise", true)
}
