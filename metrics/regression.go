// Package metrics は予測値を評価する回帰・二値分類の指標を提供します。
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
)

// Vec は float32 のスライス（Booster.Predict の出力やラベル）を VecDense に変換します。
func Vec(xs []float32) *mat.VecDense {
	if len(xs) == 0 {
		return &mat.VecDense{}
	}
	data := make([]float64, len(xs))
	for i, x := range xs {
		data[i] = float64(x)
	}
	return mat.NewVecDense(len(data), data)
}

// pair は2つのベクトルを検証し、float64 スライスとして取り出します。
func pair(op string, yTrue, yPred *mat.VecDense) ([]float64, []float64, error) {
	if yTrue == nil || yPred == nil {
		return nil, nil, errors.NewValueError(op, "nil vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return nil, nil, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return nil, nil, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return toSlice(yTrue), toSlice(yPred), nil
}

func toSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// firstColumns は行列入力の先頭列をベクトルとして取り出します。
func firstColumns(op string, yTrue, yPred mat.Matrix) (*mat.VecDense, *mat.VecDense, error) {
	if yTrue == nil || yPred == nil {
		return nil, nil, errors.NewValueError(op, "nil matrix")
	}
	if d, ok := yTrue.(*mat.Dense); ok && d.IsEmpty() {
		return nil, nil, errors.NewValueError(op, "empty matrix")
	}
	if d, ok := yPred.(*mat.Dense); ok && d.IsEmpty() {
		return nil, nil, errors.NewValueError(op, "empty matrix")
	}
	rTrue, cTrue := yTrue.Dims()
	rPred, cPred := yPred.Dims()
	if rTrue == 0 || cTrue == 0 || cPred == 0 {
		return nil, nil, errors.NewValueError(op, "empty matrix")
	}
	if rTrue != rPred {
		return nil, nil, errors.NewDimensionError(op, rTrue, rPred, 0)
	}
	return mat.NewVecDense(rTrue, mat.Col(nil, 0, yTrue)), mat.NewVecDense(rPred, mat.Col(nil, 0, yPred)), nil
}

// MSE は平均二乗誤差を計算します。
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	a, b, err := pair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	d := floats.Distance(a, b, 2)
	return d * d / float64(len(a)), nil
}

// MSEMatrix は n×1 行列の MSE です。
func MSEMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	if yTrue != nil && yPred != nil {
		rTrue, cTrue := yTrue.Dims()
		rPred, cPred := yPred.Dims()
		if rTrue != rPred || cTrue != cPred {
			return 0, errors.NewDimensionError("MSEMatrix", rTrue, rPred, 0)
		}
		if cTrue > 1 {
			return 0, errors.NewValueError("MSEMatrix", "must be a column vector (n×1 matrix)")
		}
	}
	a, b, err := firstColumns("MSEMatrix", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return MSE(a, b)
}

func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差を計算します。
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	a, b, err := pair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return floats.Distance(a, b, 1) / float64(len(a)), nil
}

// R2Score は決定係数 1 - RSS/TSS を計算します。yTrue が定数の場合はエラーです。
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	a, b, err := pair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	mean := stat.Mean(a, nil)
	var tss float64
	for _, y := range a {
		tss += (y - mean) * (y - mean)
	}
	if tss == 0 {
		return 0, errors.NewValueError("R2Score", "total sum of squares is zero (no variance in yTrue)")
	}
	d := floats.Distance(a, b, 2)
	return 1 - d*d/tss, nil
}

// MAPE は yTrue が 0 でない要素についての平均絶対パーセント誤差（%）です。
func MAPE(yTrue, yPred *mat.VecDense) (float64, error) {
	a, b, err := pair("MAPE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	valid := 0
	for i, y := range a {
		if y == 0 {
			continue
		}
		sum += math.Abs(y-b[i]) / math.Abs(y)
		valid++
	}
	if valid == 0 {
		return 0, errors.NewValueError("MAPE", "all yTrue values are zero")
	}
	return sum / float64(valid) * 100, nil
}

// ExplainedVarianceScore は 1 - Var(yTrue-yPred)/Var(yTrue) です。
func ExplainedVarianceScore(yTrue, yPred *mat.VecDense) (float64, error) {
	a, b, err := pair("ExplainedVarianceScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if len(a) < 2 {
		return 0, errors.NewValueError("ExplainedVarianceScore", "need at least two samples")
	}
	v := stat.Variance(a, nil)
	if v == 0 {
		return 0, errors.NewValueError("ExplainedVarianceScore", "no variance in yTrue")
	}
	diff := make([]float64, len(a))
	floats.SubTo(diff, a, b)
	return 1 - stat.Variance(diff, nil)/v, nil
}
