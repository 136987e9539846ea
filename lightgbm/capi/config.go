package capi

import (
	"strconv"
	"strings"

	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
)

// config is the subset of LightGBM parameters understood by GoLibrary.
type config struct {
	objective           string
	numClass            int
	sigmoid             float64
	learningRate        float64
	numLeaves           int
	maxDepth            int
	minDataInLeaf       int
	minSumHessianInLeaf float64
	lambdaL1            float64
	lambdaL2            float64
	minGainToSplit      float64
	maxBin              int
	numThreads          int
	boostFromAverage    bool
	numIterations       int
}

func defaultConfig() config {
	return config{
		objective:           "regression",
		numClass:            1,
		sigmoid:             1.0,
		learningRate:        0.1,
		numLeaves:           31,
		maxDepth:            -1,
		minDataInLeaf:       20,
		minSumHessianInLeaf: 1e-3,
		maxBin:              255,
		boostFromAverage:    true,
		numIterations:       100,
	}
}

// aliases maps every accepted spelling to its canonical parameter name.
var aliases = func() map[string]string {
	canonical := map[string][]string{
		"objective":               {"objective_type", "app", "application", "loss"},
		"num_class":               {"num_classes"},
		"learning_rate":           {"shrinkage_rate", "eta"},
		"num_leaves":              {"num_leaf", "max_leaves", "max_leaf", "max_leaf_nodes"},
		"max_depth":               nil,
		"min_data_in_leaf":        {"min_data_per_leaf", "min_data", "min_child_samples", "min_samples_leaf"},
		"min_sum_hessian_in_leaf": {"min_sum_hessian_per_leaf", "min_sum_hessian", "min_hessian", "min_child_weight"},
		"lambda_l1":               {"reg_alpha", "l1_regularization"},
		"lambda_l2":               {"reg_lambda", "lambda", "l2_regularization"},
		"min_gain_to_split":       {"min_split_gain"},
		"max_bin":                 {"max_bins"},
		"num_threads":             {"num_thread", "nthread", "nthreads", "n_jobs"},
		"sigmoid":                 nil,
		"boost_from_average":      nil,
		"num_iterations": {"num_iteration", "n_iter", "num_tree", "num_trees", "num_round",
			"num_rounds", "nrounds", "num_boost_round", "n_estimators", "max_iter"},
	}
	m := make(map[string]string)
	for name, alts := range canonical {
		m[name] = name
		for _, a := range alts {
			m[a] = name
		}
	}
	return m
}()

// parseParams splits a "k1=v1 k2=v2" string. Tokens without '=' are an
// error; unknown keys are kept so callers can echo them into the model.
func parseParams(s string) (map[string]string, error) {
	params := make(map[string]string)
	for _, tok := range strings.Fields(s) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" {
			return nil, errors.Newf("Unknown token %q in parameter string", tok)
		}
		if name, known := aliases[k]; known {
			k = name
		}
		params[k] = v
	}
	return params, nil
}

func parseConfig(s string) (config, map[string]string, error) {
	cfg := defaultConfig()
	params, err := parseParams(s)
	if err != nil {
		return cfg, nil, err
	}

	for k, v := range params {
		var perr error
		switch k {
		case "objective":
			cfg.objective, perr = canonicalObjective(v)
		case "num_class":
			cfg.numClass, perr = strconv.Atoi(v)
		case "sigmoid":
			cfg.sigmoid, perr = strconv.ParseFloat(v, 64)
		case "learning_rate":
			cfg.learningRate, perr = strconv.ParseFloat(v, 64)
		case "num_leaves":
			cfg.numLeaves, perr = strconv.Atoi(v)
		case "max_depth":
			cfg.maxDepth, perr = strconv.Atoi(v)
		case "min_data_in_leaf":
			cfg.minDataInLeaf, perr = strconv.Atoi(v)
		case "min_sum_hessian_in_leaf":
			cfg.minSumHessianInLeaf, perr = strconv.ParseFloat(v, 64)
		case "lambda_l1":
			cfg.lambdaL1, perr = strconv.ParseFloat(v, 64)
		case "lambda_l2":
			cfg.lambdaL2, perr = strconv.ParseFloat(v, 64)
		case "min_gain_to_split":
			cfg.minGainToSplit, perr = strconv.ParseFloat(v, 64)
		case "max_bin":
			cfg.maxBin, perr = strconv.Atoi(v)
		case "num_threads":
			cfg.numThreads, perr = strconv.Atoi(v)
		case "boost_from_average":
			cfg.boostFromAverage, perr = strconv.ParseBool(v)
		case "num_iterations":
			cfg.numIterations, perr = strconv.Atoi(v)
		}
		if perr != nil {
			return cfg, nil, errors.Newf("Parameter %s should be of type %s, got %q", k, kindOf(k), v)
		}
	}
	return cfg, params, cfg.validate()
}

func kindOf(k string) string {
	switch k {
	case "objective":
		return "objective name"
	case "boost_from_average":
		return "bool"
	case "num_class", "num_leaves", "max_depth", "min_data_in_leaf", "max_bin", "num_threads", "num_iterations":
		return "int"
	default:
		return "double"
	}
}

func canonicalObjective(v string) (string, error) {
	switch v {
	case "regression", "regression_l2", "l2", "mean_squared_error", "mse", "l2_root",
		"root_mean_squared_error", "rmse":
		return "regression", nil
	case "binary":
		return "binary", nil
	default:
		return "", errors.Newf("Unknown objective type name: %s", v)
	}
}

func (c config) validate() error {
	switch {
	case c.numClass != 1:
		return errors.Newf("Number of classes must be 1 for non-multiclass training, got %d", c.numClass)
	case c.learningRate <= 0:
		return errors.Newf("learning_rate should be greater than zero, got %g", c.learningRate)
	case c.numLeaves < 2 || c.numLeaves > 131072:
		return errors.Newf("num_leaves should be in [2, 131072], got %d", c.numLeaves)
	case c.minDataInLeaf < 0:
		return errors.Newf("min_data_in_leaf should be non-negative, got %d", c.minDataInLeaf)
	case c.minSumHessianInLeaf < 0:
		return errors.Newf("min_sum_hessian_in_leaf should be non-negative, got %g", c.minSumHessianInLeaf)
	case c.lambdaL1 < 0 || c.lambdaL2 < 0:
		return errors.New("lambda_l1 and lambda_l2 should be non-negative")
	case c.minGainToSplit < 0:
		return errors.Newf("min_gain_to_split should be non-negative, got %g", c.minGainToSplit)
	case c.maxBin < 2 || c.maxBin > 65535:
		return errors.Newf("max_bin should be in [2, 65535], got %d", c.maxBin)
	case c.sigmoid <= 0:
		return errors.Newf("sigmoid should be greater than zero, got %g", c.sigmoid)
	}
	return nil
}
