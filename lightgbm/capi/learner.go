package capi

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// histBin accumulates gradient statistics of the rows falling into one bin.
type histBin struct {
	sumGrad float64
	sumHess float64
	count   int
}

// splitInfo is the best split found for one leaf.
type splitInfo struct {
	feature int
	bin     int
	gain    float64
	left    leafStats
	right   leafStats
}

func (s splitInfo) valid() bool { return s.feature >= 0 }

// better orders candidates by gain, then by lower feature and bin index so
// the parallel search is deterministic.
func (s splitInfo) better(o splitInfo) bool {
	if !o.valid() {
		return s.valid()
	}
	if !s.valid() {
		return false
	}
	if s.gain != o.gain {
		return s.gain > o.gain
	}
	if s.feature != o.feature {
		return s.feature < o.feature
	}
	return s.bin < o.bin
}

// treeLearner grows one leaf-wise tree over binned data.
type treeLearner struct {
	cfg  config
	data *goDataset
	grad []float64
	hess []float64
}

type leafState struct {
	rows  []int
	stats leafStats
	depth int
	best  splitInfo
}

// train grows a tree. It returns nil when the root cannot be split.
func (tl *treeLearner) train() (*tree, error) {
	rows := make([]int, tl.data.nrow)
	for i := range rows {
		rows[i] = i
	}
	root := &leafState{rows: rows, stats: tl.sumStats(rows), depth: 0}
	if err := tl.findBestSplit(root); err != nil {
		return nil, err
	}
	if !root.best.valid() {
		return nil, nil
	}

	shrink := tl.cfg.learningRate
	t := &tree{
		numLeaves:  1,
		leafValue:  []float64{root.stats.output * shrink},
		leafWeight: []float64{root.stats.sumHess},
		leafCount:  []int{root.stats.count},
		shrinkage:  shrink,
	}
	leaves := []*leafState{root}

	for t.numLeaves < tl.cfg.numLeaves {
		bestLeaf := -1
		for i, l := range leaves {
			if !l.best.valid() {
				continue
			}
			if bestLeaf < 0 || l.best.gain > leaves[bestLeaf].best.gain {
				bestLeaf = i
			}
		}
		if bestLeaf < 0 {
			break
		}

		l := leaves[bestLeaf]
		s := l.best
		left, right := tl.partition(l.rows, s.feature, s.bin)
		s.left.output *= shrink
		s.right.output *= shrink
		threshold := tl.data.bins[s.feature].upper[s.bin]
		newLeaf := t.split(bestLeaf, s.feature, threshold, s.gain, s.left, s.right)

		leftState := &leafState{rows: left, stats: s.left, depth: l.depth + 1}
		rightState := &leafState{rows: right, stats: s.right, depth: l.depth + 1}
		// Stats carry the unshrunk output for the children's own searches.
		leftState.stats.output = leafOutput(s.left.sumGrad, s.left.sumHess, tl.cfg.lambdaL1, tl.cfg.lambdaL2)
		rightState.stats.output = leafOutput(s.right.sumGrad, s.right.sumHess, tl.cfg.lambdaL1, tl.cfg.lambdaL2)
		leaves[bestLeaf] = leftState
		if newLeaf != len(leaves) {
			panic("leaf bookkeeping out of sync")
		}
		leaves = append(leaves, rightState)

		if t.numLeaves >= tl.cfg.numLeaves {
			break
		}
		for _, child := range []*leafState{leftState, rightState} {
			if err := tl.findBestSplit(child); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

func (tl *treeLearner) sumStats(rows []int) leafStats {
	var s leafStats
	for _, r := range rows {
		s.sumGrad += tl.grad[r]
		s.sumHess += tl.hess[r]
	}
	s.count = len(rows)
	s.output = leafOutput(s.sumGrad, s.sumHess, tl.cfg.lambdaL1, tl.cfg.lambdaL2)
	return s
}

func (tl *treeLearner) partition(rows []int, feature, bin int) (left, right []int) {
	codes := tl.data.binned[feature]
	for _, r := range rows {
		if int(codes[r]) <= bin {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	return left, right
}

// findBestSplit scans every feature histogram of leaf in parallel and keeps
// the best candidate. A leaf too small or too deep gets no candidate.
func (tl *treeLearner) findBestSplit(leaf *leafState) error {
	leaf.best = splitInfo{feature: -1}
	cfg := tl.cfg
	if leaf.stats.count < 2*cfg.minDataInLeaf || leaf.stats.count < 2 {
		return nil
	}
	if cfg.maxDepth > 0 && leaf.depth >= cfg.maxDepth {
		return nil
	}

	candidates := make([]splitInfo, tl.data.ncol)
	var g errgroup.Group
	workers := cfg.numThreads
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)
	for f := 0; f < tl.data.ncol; f++ {
		g.Go(func() error {
			candidates[f] = tl.bestSplitForFeature(leaf, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, c := range candidates {
		if c.better(leaf.best) {
			leaf.best = c
		}
	}
	return nil
}

func (tl *treeLearner) bestSplitForFeature(leaf *leafState, f int) splitInfo {
	best := splitInfo{feature: -1}
	fb := tl.data.bins[f]
	nb := fb.numBins()
	if nb <= 1 {
		return best
	}

	hist := make([]histBin, nb)
	codes := tl.data.binned[f]
	for _, r := range leaf.rows {
		b := &hist[codes[r]]
		b.sumGrad += tl.grad[r]
		b.sumHess += tl.hess[r]
		b.count++
	}

	cfg := tl.cfg
	total := leaf.stats
	minGainShift := leafGain(total.sumGrad, total.sumHess, cfg.lambdaL1, cfg.lambdaL2) + cfg.minGainToSplit

	var left histBin
	for b := 0; b < nb-1; b++ {
		left.sumGrad += hist[b].sumGrad
		left.sumHess += hist[b].sumHess
		left.count += hist[b].count

		rightCount := total.count - left.count
		if left.count < cfg.minDataInLeaf || left.sumHess < cfg.minSumHessianInLeaf {
			continue
		}
		if rightCount < cfg.minDataInLeaf {
			break
		}
		rightGrad := total.sumGrad - left.sumGrad
		rightHess := total.sumHess - left.sumHess
		if rightHess < cfg.minSumHessianInLeaf {
			break
		}
		if left.count == 0 || rightCount == 0 {
			continue
		}

		gain := leafGain(left.sumGrad, left.sumHess, cfg.lambdaL1, cfg.lambdaL2) +
			leafGain(rightGrad, rightHess, cfg.lambdaL1, cfg.lambdaL2)
		if gain <= minGainShift {
			continue
		}
		cand := splitInfo{
			feature: f,
			bin:     b,
			gain:    gain - minGainShift + cfg.minGainToSplit,
			left: leafStats{
				sumGrad: left.sumGrad, sumHess: left.sumHess, count: left.count,
				output: leafOutput(left.sumGrad, left.sumHess, cfg.lambdaL1, cfg.lambdaL2),
			},
			right: leafStats{
				sumGrad: rightGrad, sumHess: rightHess, count: rightCount,
				output: leafOutput(rightGrad, rightHess, cfg.lambdaL1, cfg.lambdaL2),
			},
		}
		if cand.better(best) {
			best = cand
		}
	}
	return best
}
