package capi

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// goDataset is the engine-side training matrix with its per-feature bins.
type goDataset struct {
	data   *mat.Dense
	nrow   int
	ncol   int
	label  []float32
	weight []float32
	names  []string
	bins   []featureBins
	// binned[f][i] is the bin of row i for feature f.
	binned [][]uint16
}

// featureBins holds the inclusive upper bound of every bin; the last bound
// is +Inf. A value v falls into the first bin whose bound is >= v.
type featureBins struct {
	upper    []float64
	min, max float64
}

func (b featureBins) numBins() int { return len(b.upper) }

func (b featureBins) binOf(v float64) uint16 {
	if math.IsNaN(v) {
		v = 0
	}
	return uint16(sort.SearchFloat64s(b.upper, v))
}

// featureInfo renders the "[min:max]" entry of feature_infos. Constant
// features are written as "none", the way LightGBM marks unused columns.
func (b featureBins) featureInfo() string {
	if b.numBins() <= 1 {
		return "none"
	}
	return fmt.Sprintf("[%s:%s]", formatFloat(b.min), formatFloat(b.max))
}

func newGoDataset(data []float32, nrow, ncol int, rowMajor bool, maxBin int) *goDataset {
	values := make([]float64, nrow*ncol)
	if rowMajor {
		for i, v := range data {
			values[i] = float64(v)
		}
	} else {
		for j := 0; j < ncol; j++ {
			for i := 0; i < nrow; i++ {
				values[i*ncol+j] = float64(data[j*nrow+i])
			}
		}
	}
	ds := &goDataset{
		data: mat.NewDense(nrow, ncol, values),
		nrow: nrow,
		ncol: ncol,
	}
	ds.names = make([]string, ncol)
	for j := range ds.names {
		ds.names[j] = fmt.Sprintf("Column_%d", j)
	}

	ds.bins = make([]featureBins, ncol)
	ds.binned = make([][]uint16, ncol)
	col := make([]float64, nrow)
	for j := 0; j < ncol; j++ {
		mat.Col(col, j, ds.data)
		ds.bins[j] = buildBins(col, maxBin)
		codes := make([]uint16, nrow)
		for i, v := range col {
			codes[i] = ds.bins[j].binOf(v)
		}
		ds.binned[j] = codes
	}
	return ds
}

// buildBins places bin boundaries at midpoints between distinct values, or
// at quantiles of the distinct values when there are more than maxBin.
// NaN is treated as zero.
func buildBins(col []float64, maxBin int) featureBins {
	sorted := make([]float64, len(col))
	for i, v := range col {
		if math.IsNaN(v) {
			v = 0
		}
		sorted[i] = v
	}
	sort.Float64s(sorted)

	distinct := sorted[:0:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			distinct = append(distinct, v)
		}
	}
	fb := featureBins{min: distinct[0], max: distinct[len(distinct)-1]}
	if len(distinct) == 1 {
		fb.upper = []float64{math.Inf(1)}
		return fb
	}

	var cuts []float64
	if len(distinct) <= maxBin {
		cuts = make([]float64, 0, len(distinct)-1)
		for i := 1; i < len(distinct); i++ {
			cuts = append(cuts, midpoint(distinct[i-1], distinct[i]))
		}
	} else {
		cuts = make([]float64, 0, maxBin-1)
		for b := 1; b < maxBin; b++ {
			i := b * len(distinct) / maxBin
			c := midpoint(distinct[i-1], distinct[i])
			if len(cuts) == 0 || c > cuts[len(cuts)-1] {
				cuts = append(cuts, c)
			}
		}
	}
	fb.upper = append(cuts, math.Inf(1))
	return fb
}

func midpoint(a, b float64) float64 {
	m := a + (b-a)/2
	if m >= b {
		return a
	}
	return m
}
