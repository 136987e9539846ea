package capi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg, raw, err := parseConfig("objective=binary eta=0.3 num_leaf=7 min_child_samples=3 reg_lambda=1.5 n_estimators=9 verbosity=-1")
	require.NoError(t, err)
	assert.Equal(t, "binary", cfg.objective)
	assert.Equal(t, 0.3, cfg.learningRate)
	assert.Equal(t, 7, cfg.numLeaves)
	assert.Equal(t, 3, cfg.minDataInLeaf)
	assert.Equal(t, 1.5, cfg.lambdaL2)
	assert.Equal(t, 9, cfg.numIterations)
	assert.Equal(t, "-1", raw["verbosity"])
	assert.Equal(t, "0.3", raw["learning_rate"])
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, raw, err := parseConfig("")
	require.NoError(t, err)
	assert.Empty(t, raw)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestParseConfigErrors(t *testing.T) {
	for name, params := range map[string]string{
		"token without equals": "objective",
		"empty key":            "=3",
		"bad int":              "num_leaves=many",
		"bad float":            "learning_rate=fast",
		"unknown objective":    "objective=lambdarank",
		"multiclass":           "num_class=3",
		"zero learning rate":   "learning_rate=0",
		"one leaf":             "num_leaves=1",
		"max_bin too small":    "max_bin=1",
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := parseConfig(params)
			assert.Error(t, err)
		})
	}
}

func TestObjectiveAliases(t *testing.T) {
	for _, name := range []string{"regression", "l2", "mse", "rmse", "regression_l2"} {
		got, err := canonicalObjective(name)
		require.NoError(t, err)
		assert.Equal(t, "regression", got)
	}
}

func TestParseObjectiveLine(t *testing.T) {
	obj, err := parseObjective("binary sigmoid:2")
	require.NoError(t, err)
	assert.Equal(t, binaryLogloss{sigmoid: 2}, obj)
	assert.Equal(t, "binary sigmoid:2", obj.String())

	obj, err = parseObjective("regression")
	require.NoError(t, err)
	assert.Equal(t, "regression", obj.String())

	_, err = parseObjective("")
	assert.Error(t, err)
}

func TestBuildBins(t *testing.T) {
	fb := buildBins([]float64{3, 1, 2, 2, 1}, 255)
	require.Equal(t, 3, fb.numBins())
	assert.Equal(t, 1.5, fb.upper[0])
	assert.Equal(t, 2.5, fb.upper[1])
	assert.Equal(t, uint16(0), fb.binOf(1))
	assert.Equal(t, uint16(1), fb.binOf(2))
	assert.Equal(t, uint16(2), fb.binOf(3))
	assert.Equal(t, "[1:3]", fb.featureInfo())

	constant := buildBins([]float64{4, 4, 4}, 255)
	assert.Equal(t, 1, constant.numBins())
	assert.Equal(t, "none", constant.featureInfo())

	capped := buildBins([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 4)
	assert.LessOrEqual(t, capped.numBins(), 4)
}
