package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
)

// logLossEps は log(0) を避けるための確率のクリップ幅です。
const logLossEps = 1e-15

func checkBinary(op string, y []float64) error {
	for _, v := range y {
		if v != 0 && v != 1 {
			return errors.NewValueError(op, "labels must be 0 or 1")
		}
	}
	return nil
}

// AUC は ROC 曲線下面積を計算します。同点のスコアは 0.5 として数えます。
// 正例か負例しか存在しない場合は 0.5 を返し、UndefinedMetricWarning を出します。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	y, s, err := pair("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("AUC", y); err != nil {
		return 0, err
	}

	idx := make([]int, len(s))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return s[idx[a]] < s[idx[b]] })

	// Mann-Whitney U: sum of positive ranks, ties get their mean rank
	var rankSum float64
	var pos int
	for i := 0; i < len(idx); {
		j := i
		for j < len(idx) && s[idx[j]] == s[idx[i]] {
			j++
		}
		mean := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if y[idx[k]] == 1 {
				rankSum += mean
				pos++
			}
		}
		i = j
	}
	neg := len(y) - pos
	if pos == 0 || neg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("AUC", "only one class present in yTrue", 0.5))
		return 0.5, nil
	}
	u := rankSum - float64(pos)*float64(pos+1)/2
	return u / (float64(pos) * float64(neg)), nil
}

// AUCMatrix は行列の先頭列に対する AUC です。
func AUCMatrix(yTrue, yScore mat.Matrix) (float64, error) {
	y, s, err := firstColumns("AUCMatrix", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	return AUC(y, s)
}

// BinaryLogLoss は二値交差エントロピーの平均です。確率は [eps, 1-eps] にクリップします。
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	y, p, err := pair("BinaryLogLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("BinaryLogLoss", y); err != nil {
		return 0, err
	}
	var sum float64
	for i, label := range y {
		q := errors.ClipValue(p[i], logLossEps, 1-logLossEps)
		if label == 1 {
			sum -= math.Log(q)
		} else {
			sum -= math.Log(1 - q)
		}
	}
	return sum / float64(len(y)), nil
}

// ClassificationError は yTrue と yPred が一致しない割合です。
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := accuracy("ClassificationError", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	return accuracy("Accuracy", yTrue, yPred)
}

func accuracy(op string, yTrue, yPred *mat.VecDense) (float64, error) {
	a, b, err := pair(op, yTrue, yPred)
	if err != nil {
		return 0, err
	}
	hits := 0
	for i := range a {
		if a[i] == b[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(a)), nil
}

// Threshold はスコアを threshold 以上なら 1、それ以外は 0 のラベルに変換します。
func Threshold(scores *mat.VecDense, threshold float64) *mat.VecDense {
	n := scores.Len()
	if n == 0 {
		return &mat.VecDense{}
	}
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if scores.AtVec(i) >= threshold {
			out.SetVec(i, 1)
		}
	}
	return out
}
