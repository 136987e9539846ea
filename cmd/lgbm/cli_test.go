package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/lgbmgo/lightgbm/capi"
)

func useGoLibrary(t *testing.T) *capi.GoLibrary {
	t.Helper()
	lib := capi.NewGoLibrary()
	prev := loadLibrary
	loadLibrary = func() (capi.Library, error) { return lib, nil }
	t.Cleanup(func() { loadLibrary = prev })
	return lib
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewCLI()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDemoTrainPredictEval(t *testing.T) {
	lib := useGoLibrary(t)
	dir := t.TempDir()

	out, err := run(t, "demo", "--rows", "400", "--features", "3", "--iterations", "5", "--seed", "3", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "model.txt"))
	data := filepath.Join(dir, "train.parquet")

	params := filepath.Join(dir, "params.yaml")
	require.NoError(t, os.WriteFile(params, []byte("objective: binary\nnum_leaves: 7\n"), 0o644))
	model := filepath.Join(dir, "retrained.txt")
	out, err = run(t, "train", "--data", data, "--iterations", "6", "--params", params,
		"--set", "learning_rate=0.2", "--out", model)
	require.NoError(t, err)
	assert.Contains(t, out, "ITERATIONS")
	saved, err := os.ReadFile(model)
	require.NoError(t, err)
	assert.Contains(t, string(saved), "[learning_rate: 0.2]")
	assert.Contains(t, string(saved), "[num_leaves: 7]")

	scores := filepath.Join(dir, "scores.csv")
	hist := filepath.Join(dir, "scores.png")
	_, err = run(t, "predict", "--model", model, "--data", data, "--label", "label", "--out", scores, "--histogram", hist)
	require.NoError(t, err)
	csvOut, err := os.ReadFile(scores)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvOut)), "\n")
	assert.Equal(t, "score", lines[0])
	assert.Len(t, lines, 401)
	info, err := os.Stat(hist)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	out, err = run(t, "eval", "--model", model, "--data", data)
	require.NoError(t, err)
	assert.Contains(t, out, "auc")
	assert.Contains(t, out, "binary_logloss")
	assert.NotContains(t, out, "error:")

	out, err = run(t, "importance", "--model", model, "--type", "gain")
	require.NoError(t, err)
	assert.Contains(t, out, "GAIN")
	assert.Contains(t, out, "feature_0")

	assert.Equal(t, capi.Stats{}, lib.Stats())
}

func TestPredictWithoutExcludingLabelFails(t *testing.T) {
	useGoLibrary(t)
	dir := t.TempDir()
	_, err := run(t, "demo", "--rows", "200", "--features", "2", "--iterations", "2", "--seed", "1", "--dir", dir)
	require.NoError(t, err)

	// the label column counts as a third feature
	_, err = run(t, "predict", "--model", filepath.Join(dir, "model.txt"), "--data", filepath.Join(dir, "train.parquet"))
	assert.Error(t, err)
}

func TestTrainRejectsBadSet(t *testing.T) {
	useGoLibrary(t)
	path := filepath.Join(t.TempDir(), "d.csv")
	require.NoError(t, os.WriteFile(path, []byte("x,label\n1,0\n2,1\n"), 0o644))
	_, err := run(t, "train", "--data", path, "--set", "novalue")
	assert.ErrorContains(t, err, "expected key=value")
}

func TestEnvAndVersion(t *testing.T) {
	useGoLibrary(t)
	t.Setenv("LGBM_NUM_THREADS", "3")
	out, err := run(t, "env")
	require.NoError(t, err)
	assert.Contains(t, out, "LGBM_NUM_THREADS")
	assert.Contains(t, out, "3")

	out, err = run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "backend go")
}

func TestModelFeatureNames(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, modelFeatureNames("version=v4\nfeature_names=a b\n", 2))
	assert.Equal(t, []string{"Column_0"}, modelFeatureNames("version=v4\n", 1))
}
