package capi

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
)

// objective computes gradients of the training loss and converts raw
// scores into predictions.
type objective interface {
	name() string
	// String is the objective line written to the model text.
	String() string
	initScore(label, weight []float32) float64
	gradients(score []float64, label, weight []float32, grad, hess []float64)
	convert(raw float64) float64
}

func newObjective(cfg config) objective {
	if cfg.objective == "binary" {
		return binaryLogloss{sigmoid: cfg.sigmoid}
	}
	return regressionL2{}
}

// parseObjective reads the "objective=" header of a model text.
func parseObjective(line string) (objective, error) {
	var name string
	var sigmoid float64 = 1
	if _, err := fmt.Sscanf(line, "%s", &name); err != nil {
		return nil, errors.Newf("empty objective in model")
	}
	canonical, err := canonicalObjective(name)
	if err != nil {
		return nil, err
	}
	if canonical == "binary" {
		var s float64
		if _, err := fmt.Sscanf(line, "binary sigmoid:%g", &s); err == nil && s > 0 {
			sigmoid = s
		}
		return binaryLogloss{sigmoid: sigmoid}, nil
	}
	return regressionL2{}, nil
}

func weightAt(weight []float32, i int) float64 {
	if weight == nil {
		return 1
	}
	return float64(weight[i])
}

type regressionL2 struct{}

func (regressionL2) name() string   { return "regression" }
func (regressionL2) String() string { return "regression" }

// initScore is the weighted label mean.
func (regressionL2) initScore(label, weight []float32) float64 {
	var sum, sumW float64
	for i, y := range label {
		w := weightAt(weight, i)
		sum += w * float64(y)
		sumW += w
	}
	if sumW <= 0 {
		return 0
	}
	return sum / sumW
}

func (regressionL2) gradients(score []float64, label, weight []float32, grad, hess []float64) {
	for i := range score {
		w := weightAt(weight, i)
		grad[i] = (score[i] - float64(label[i])) * w
		hess[i] = w
	}
}

func (regressionL2) convert(raw float64) float64 { return raw }

type binaryLogloss struct {
	sigmoid float64
}

func (binaryLogloss) name() string { return "binary" }

func (o binaryLogloss) String() string {
	return "binary sigmoid:" + formatFloat(o.sigmoid)
}

// initScore is the log-odds of the weighted positive rate, divided by sigmoid.
func (o binaryLogloss) initScore(label, weight []float32) float64 {
	var pos, sumW float64
	for i, y := range label {
		w := weightAt(weight, i)
		if y > 0 {
			pos += w
		}
		sumW += w
	}
	if sumW <= 0 {
		return 0
	}
	p := math.Min(math.Max(pos/sumW, 1e-15), 1-1e-15)
	return math.Log(p/(1-p)) / o.sigmoid
}

func (o binaryLogloss) gradients(score []float64, label, weight []float32, grad, hess []float64) {
	for i := range score {
		w := weightAt(weight, i)
		p := o.convert(score[i])
		y := 0.0
		if label[i] > 0 {
			y = 1
		}
		grad[i] = o.sigmoid * (p - y) * w
		hess[i] = o.sigmoid * o.sigmoid * p * (1 - p) * w
	}
}

func (o binaryLogloss) convert(raw float64) float64 {
	x := o.sigmoid * raw
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// checkLabels validates label values for the objective.
func checkLabels(obj objective, label []float32) error {
	for i, y := range label {
		v := float64(y)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Newf("label at row %d is %v", i, v)
		}
		if obj.name() == "binary" && y != 0 && y != 1 {
			return errors.Newf("label at row %d is %v, binary objective expects 0 or 1", i, v)
		}
	}
	return nil
}
