package capi

import (
	"math"

	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
)

// Decision type bits as stored in the model text.
const (
	categoricalMask = 1
	defaultLeftMask = 2

	missingNone = 0
	missingZero = 1
	missingNaN  = 2

	zeroThreshold = 1e-35
)

// tree is one regression tree in LightGBM's array layout: internal node i
// has children leftChild[i] and rightChild[i], and a negative child c refers
// to leaf ^c.
type tree struct {
	numLeaves     int
	splitFeature  []int
	splitGain     []float64
	threshold     []float64
	decisionType  []int8
	leftChild     []int
	rightChild    []int
	leafValue     []float64
	leafWeight    []float64
	leafCount     []int
	internalValue []float64
	internalWeigh []float64
	internalCount []int
	shrinkage     float64
}

// constantTree is a single-leaf tree returning v.
func constantTree(v float64, count int, weight float64) *tree {
	return &tree{
		numLeaves:  1,
		leafValue:  []float64{v},
		leafWeight: []float64{weight},
		leafCount:  []int{count},
		shrinkage:  1,
	}
}

func (t *tree) leafIndex(row []float64) int {
	if t.numLeaves <= 1 {
		return 0
	}
	node := 0
	for node >= 0 {
		if t.goLeft(node, row[t.splitFeature[node]]) {
			node = t.leftChild[node]
		} else {
			node = t.rightChild[node]
		}
	}
	return ^node
}

func (t *tree) predict(row []float64) float64 {
	return t.leafValue[t.leafIndex(row)]
}

func (t *tree) goLeft(node int, fval float64) bool {
	dt := t.decisionType[node]
	missing := (dt >> 2) & 3
	if math.IsNaN(fval) && missing != missingNaN {
		fval = 0
	}
	if (missing == missingZero && math.Abs(fval) <= zeroThreshold) || (missing == missingNaN && math.IsNaN(fval)) {
		return dt&defaultLeftMask != 0
	}
	return fval <= t.threshold[node]
}

// addBias folds the initial score into every leaf, as LightGBM does for the
// first tree when boost_from_average is set.
func (t *tree) addBias(v float64) {
	for i := range t.leafValue {
		t.leafValue[i] += v
	}
	for i := range t.internalValue {
		t.internalValue[i] += v
	}
}

// split turns leaf into an internal node with a new right leaf and returns
// the new leaf index. The left child keeps the old leaf index.
func (t *tree) split(leaf, feature int, threshold, gain float64, left, right leafStats) int {
	node := t.numLeaves - 1
	newLeaf := t.numLeaves

	// Re-point the parent at the new internal node.
	for i := 0; i < node; i++ {
		if t.leftChild[i] == ^leaf {
			t.leftChild[i] = node
		} else if t.rightChild[i] == ^leaf {
			t.rightChild[i] = node
		}
	}

	t.splitFeature = append(t.splitFeature, feature)
	t.splitGain = append(t.splitGain, gain)
	t.threshold = append(t.threshold, threshold)
	t.decisionType = append(t.decisionType, defaultLeftMask)
	t.leftChild = append(t.leftChild, ^leaf)
	t.rightChild = append(t.rightChild, ^newLeaf)
	t.internalValue = append(t.internalValue, t.leafValue[leaf])
	t.internalWeigh = append(t.internalWeigh, t.leafWeight[leaf])
	t.internalCount = append(t.internalCount, t.leafCount[leaf])

	t.leafValue[leaf] = left.output
	t.leafWeight[leaf] = left.sumHess
	t.leafCount[leaf] = left.count
	t.leafValue = append(t.leafValue, right.output)
	t.leafWeight = append(t.leafWeight, right.sumHess)
	t.leafCount = append(t.leafCount, right.count)

	t.numLeaves++
	return newLeaf
}

// leafStats summarises the rows of one leaf.
type leafStats struct {
	sumGrad float64
	sumHess float64
	count   int
	output  float64
}

func thresholdL1(s, l1 float64) float64 {
	reg := math.Max(0, math.Abs(s)-l1)
	if s < 0 {
		return -reg
	}
	return reg
}

// leafOutput is the unshrunk optimal leaf value.
func leafOutput(sumGrad, sumHess, l1, l2 float64) float64 {
	return -errors.SafeDivide(thresholdL1(sumGrad, l1), sumHess+l2)
}

// leafGain is the loss reduction of a leaf taking its optimal value.
func leafGain(sumGrad, sumHess, l1, l2 float64) float64 {
	sg := thresholdL1(sumGrad, l1)
	return errors.SafeDivide(sg*sg, sumHess+l2)
}
