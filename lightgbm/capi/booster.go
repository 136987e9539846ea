package capi

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/lgbmgo/core/parallel"
	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
)

// rows below this are predicted on the calling goroutine
const parallelPredictThreshold = 1024

// goBooster is a gradient boosted ensemble. A booster created from a dataset
// can train; one parsed from model text can only predict and be saved.
type goBooster struct {
	cfg          config
	obj          objective
	train        *goDataset
	numFeatures  int
	featureNames []string
	featureInfos []string
	trees        []*tree
	// scores caches the raw training score of every row.
	scores    []float64
	initScore float64
	// params holds the "[key: value]" lines of the parameters section.
	params []string
}

func newTrainingBooster(ds *goDataset, params string) (*goBooster, error) {
	cfg, raw, err := parseConfig(params)
	if err != nil {
		return nil, err
	}
	if ds.label == nil {
		return nil, errors.New("training dataset has no label field")
	}
	obj := newObjective(cfg)
	if err := checkLabels(obj, ds.label); err != nil {
		return nil, err
	}

	b := &goBooster{
		cfg:          cfg,
		obj:          obj,
		train:        ds,
		numFeatures:  ds.ncol,
		featureNames: append([]string(nil), ds.names...),
		featureInfos: make([]string, ds.ncol),
		scores:       make([]float64, ds.nrow),
		params:       paramLines(raw),
	}
	for j, fb := range ds.bins {
		b.featureInfos[j] = fb.featureInfo()
	}
	if cfg.boostFromAverage {
		b.initScore = obj.initScore(ds.label, ds.weight)
		for i := range b.scores {
			b.scores[i] = b.initScore
		}
	}
	return b, nil
}

// trainOneIter adds one tree and reports whether boosting is finished. When
// no leaf can be split the booster is finished; on the very first iteration a
// constant tree carrying the initial score is kept so the model still
// predicts the average.
func (b *goBooster) trainOneIter() (bool, error) {
	if b.train == nil {
		return false, errors.New("cannot train a booster loaded from a model")
	}
	iter := len(b.trees)
	n := b.train.nrow
	grad := make([]float64, n)
	hess := make([]float64, n)
	b.obj.gradients(b.scores, b.train.label, b.train.weight, grad, hess)
	if err := errors.CheckNumericalStability("gradients", grad, iter); err != nil {
		return false, err
	}

	tl := &treeLearner{cfg: b.cfg, data: b.train, grad: grad, hess: hess}
	t, err := tl.train()
	if err != nil {
		return false, err
	}
	if t == nil {
		if iter == 0 {
			b.trees = append(b.trees, constantTree(b.initScore, n, sum(hess)))
		}
		return true, nil
	}

	for i := 0; i < n; i++ {
		b.scores[i] += t.predict(b.train.data.RawRowView(i))
	}
	if iter == 0 && b.initScore != 0 {
		t.addBias(b.initScore)
	}
	b.trees = append(b.trees, t)
	return false, nil
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

// treeRange resolves the [start, start+num) iteration window; num <= 0 means
// every tree from start on. Negative starts are clamped to zero.
func (b *goBooster) treeRange(start, num int) []*tree {
	start = max(start, 0)
	if start > len(b.trees) {
		start = len(b.trees)
	}
	end := len(b.trees)
	if num > 0 && start+num < end {
		end = start + num
	}
	return b.trees[start:end]
}

// predict writes one value per row (one per row and tree for leaf indices)
// into out and returns the count written.
func (b *goBooster) predict(m *mat.Dense, ptype PredictType, start, num int, out []float64) (int, error) {
	nrow, _ := m.Dims()
	trees := b.treeRange(start, num)

	need := nrow
	switch ptype {
	case PredictNormal, PredictRawScore:
	case PredictLeafIndex:
		need = nrow * len(trees)
	case PredictContrib:
		return 0, errors.New("feature contributions are not supported by the go backend")
	default:
		return 0, errors.Newf("unknown predict type %d", ptype)
	}
	if len(out) < need {
		return 0, errors.Newf("output buffer holds %d values, need %d", len(out), need)
	}

	err := parallel.ParallelizeWithThreshold(nrow, parallelPredictThreshold, b.cfg.numThreads, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			row := m.RawRowView(i)
			if ptype == PredictLeafIndex {
				for k, t := range trees {
					out[i*len(trees)+k] = float64(t.leafIndex(row))
				}
				continue
			}
			var raw float64
			for _, t := range trees {
				raw += t.predict(row)
			}
			if ptype == PredictNormal {
				raw = b.obj.convert(raw)
			}
			out[i] = raw
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return need, nil
}

// featureImportance counts splits per feature, or sums their gains, over the
// first numIteration trees (all when numIteration <= 0).
func (b *goBooster) featureImportance(numIteration int, kind FeatureImportanceType) []float64 {
	imp := make([]float64, b.numFeatures)
	for _, t := range b.treeRange(0, numIteration) {
		for node := 0; node < t.numLeaves-1; node++ {
			f := t.splitFeature[node]
			if kind == FeatureImportanceGain {
				imp[f] += t.splitGain[node]
			} else {
				imp[f]++
			}
		}
	}
	return imp
}
