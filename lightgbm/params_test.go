package lightgbm

import (
	"math"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
	"github.com/YuminosukeSato/lgbmgo/pkg/log"
)

func TestParamsStringification(t *testing.T) {
	p := NewParams()
	require.NoError(t, p.Set("objective", "binary"))
	require.NoError(t, p.Set("num_leaves", 31))
	require.NoError(t, p.Set("max_bin", uint16(63)))
	require.NoError(t, p.Set("learning_rate", 0.1))
	require.NoError(t, p.Set("feature_fraction", float32(0.8)))
	require.NoError(t, p.Set("force_col_wise", true))
	require.NoError(t, p.Set("seed", int64(-7)))

	want := map[string]string{
		"objective":        "binary",
		"num_leaves":       "31",
		"max_bin":          "63",
		"learning_rate":    "0.1",
		"feature_fraction": "0.8",
		"force_col_wise":   "true",
		"seed":             "-7",
	}
	for k, v := range want {
		got, ok := p.Get(k)
		require.True(t, ok, k)
		assert.Equal(t, v, got, k)
	}
	assert.Equal(t, []string{"objective", "num_leaves", "max_bin", "learning_rate", "feature_fraction", "force_col_wise", "seed"}, p.Keys())
}

func TestParamsRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"empty key", "", 1},
		{"key with space", "num leaves", 1},
		{"key with equals", "a=b", 1},
		{"empty string value", "objective", ""},
		{"string value with space", "objective", "binary logloss"},
		{"NaN", "learning_rate", math.NaN()},
		{"Inf", "learning_rate", math.Inf(1)},
		{"float32 Inf", "learning_rate", float32(math.Inf(-1))},
		{"slice", "metric", []string{"auc"}},
		{"nil", "metric", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParams()
			err := p.Set(tt.key, tt.value)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
			assert.Equal(t, 0, p.Len())
		})
	}
}

func TestParamsTypedSetters(t *testing.T) {
	p := NewParams().
		SetString("objective", "regression").
		SetInt("num_leaves", 15).
		SetFloat("lambda_l2", 1.5).
		SetBool("boost_from_average", false)
	assert.Equal(t, 4, p.Len())
	assert.Equal(t, "num_iterations=5 objective=regression num_leaves=15 lambda_l2=1.5 boost_from_average=false", EncodeParams(5, p))

	assert.Panics(t, func() { NewParams().SetString("objective", "") })
}

func TestParamsOverwriteKeepsPosition(t *testing.T) {
	p := NewParams().SetInt("a", 1).SetInt("b", 2)
	p.SetInt("a", 3)
	assert.Equal(t, "num_iterations=1 a=3 b=2", EncodeParams(1, p))

	assert.True(t, p.Delete("a"))
	assert.False(t, p.Delete("a"))
	assert.Equal(t, "num_iterations=1 b=2", EncodeParams(1, p))
}

func TestEncodeParamsIsDeterministic(t *testing.T) {
	p, err := ParamsFromMap(map[string]any{
		"objective":      "binary",
		"num_class":      1,
		"force_col_wise": true,
	})
	require.NoError(t, err)

	first := EncodeParams(32, p)
	second := EncodeParams(32, p)
	assert.Equal(t, first, second)
	assert.Equal(t, "num_iterations=32 force_col_wise=true num_class=1 objective=binary", first)
	assert.Equal(t, 1, strings.Count(first, "num_iterations="))
	assert.False(t, strings.HasSuffix(first, " "))
}

func TestEncodeParamsDropsIterationAliases(t *testing.T) {
	provider, _ := log.NewTestLoggerProvider(log.LevelDebug)
	log.SetProvider(provider)
	t.Cleanup(func() { log.SetProvider(log.NewZerologProvider(os.Stderr, log.LevelInfo, log.FormatConsole)) })

	p := NewParams().
		SetInt("num_iterations", 500).
		SetInt("n_estimators", 100).
		SetInt("num_boost_round", 7).
		SetString("objective", "binary")

	got := EncodeParams(10, p)
	assert.Equal(t, "num_iterations=10 objective=binary", got)
	assert.Equal(t, 3, provider.Logger().CountMessage("Dropping iteration key from parameters, the explicit budget is used"))

	// the mapping itself is untouched
	assert.Equal(t, 4, p.Len())
}

func TestEncodeParamsNil(t *testing.T) {
	assert.Equal(t, "num_iterations=3", EncodeParams(3, nil))
	assert.Equal(t, "num_iterations=3", EncodeParams(3, NewParams()))
}

func TestParamsClone(t *testing.T) {
	p := NewParams().SetInt("a", 1)
	c := p.Clone()
	c.SetInt("b", 2)
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, 2, c.Len())
}

func TestParseParamsYAML(t *testing.T) {
	src := `
objective: binary
num_leaves: 15
learning_rate: 0.05
force_col_wise: true
metric: auc
`
	p, err := ParseParamsYAML(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "num_iterations=4 objective=binary num_leaves=15 learning_rate=0.05 force_col_wise=true metric=auc", EncodeParams(4, p))

	empty, err := ParseParamsYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	for name, bad := range map[string]string{
		"sequence":      "- a\n- b\n",
		"nested":        "objective:\n  name: binary\n",
		"null":          "metric: null\n",
		"spaced string": "objective: binary logloss\n",
		"malformed":     "objective: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseParamsYAML(strings.NewReader(bad))
			assert.Error(t, err)
		})
	}
}
