// Package demo runs the synthetic binary-classification round trip shared by
// the lgbm CLI and examples/binary_demo: random features and labels, train,
// serialise, reload, score a small test set.
package demo

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/YuminosukeSato/lgbmgo/dataio"
	"github.com/YuminosukeSato/lgbmgo/lightgbm"
	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
	"github.com/YuminosukeSato/lgbmgo/pkg/log"
)

type Config struct {
	Rows       int
	Features   int
	TestRows   int
	Iterations int
	Seed       int64
	// Dir receives model.txt and train.parquet when set.
	Dir     string
	Options []lightgbm.Option
}

// Default matches the original demo: 10247 rows of 8 features, 32 rounds,
// 4 test rows.
func Default() Config {
	return Config{Rows: 10247, Features: 8, TestRows: 4, Iterations: 32, Seed: 1}
}

type Result struct {
	Scores     []float32
	Iterations int
	Model      string
	ModelPath  string
	TrainPath  string
}

// Params are the hyperparameters of the demo booster.
func Params() *lightgbm.Params {
	return lightgbm.NewParams().
		SetString("objective", "binary").
		SetInt("num_class", 1).
		SetBool("force_col_wise", true)
}

// Run trains on cfg.Rows random rows, reloads the model from its string form
// and scores cfg.TestRows further random rows with the reloaded booster.
func Run(cfg Config) (*Result, error) {
	if cfg.Rows <= 0 || cfg.Features <= 0 || cfg.TestRows <= 0 || cfg.Iterations <= 0 {
		return nil, errors.NewValidationError("demo", "rows, features, test rows and iterations must be positive", cfg)
	}
	logger := log.GetLoggerWithName("demo")
	rng := rand.New(rand.NewSource(cfg.Seed))

	names := make([]string, cfg.Features)
	for j := range names {
		names[j] = fmt.Sprintf("feature_%d", j)
	}
	labels := make([]float32, cfg.Rows)
	for i := range labels {
		if rng.Float64() > 0.5 {
			labels[i] = 1
		}
	}
	trainBuf, err := lightgbm.NewTabularBufferFromFlat(randomFloats(rng, cfg.Rows*cfg.Features), cfg.Rows, names, labels, nil)
	if err != nil {
		return nil, err
	}
	testBuf, err := lightgbm.NewTabularBufferFromFlat(randomFloats(rng, cfg.TestRows*cfg.Features), cfg.TestRows, names, nil, nil)
	if err != nil {
		return nil, err
	}

	train, err := lightgbm.NewDataset(trainBuf, cfg.Options...)
	if err != nil {
		return nil, err
	}
	defer train.Close()
	test, err := lightgbm.NewDataset(testBuf, cfg.Options...)
	if err != nil {
		return nil, err
	}
	defer test.Close()

	trained, err := lightgbm.NewBooster(cfg.Iterations, Params(), cfg.Options...)
	if err != nil {
		return nil, err
	}
	defer trained.Close()
	if err := trained.Train(train); err != nil {
		return nil, err
	}
	model, err := trained.ModelString()
	if err != nil {
		return nil, err
	}

	reloaded, err := lightgbm.LoadBooster(model, cfg.Options...)
	if err != nil {
		return nil, err
	}
	defer reloaded.Close()
	scores, err := reloaded.Predict(test)
	if err != nil {
		return nil, err
	}

	res := &Result{Scores: scores, Iterations: reloaded.NumIterations(), Model: model}
	if cfg.Dir != "" {
		res.ModelPath = filepath.Join(cfg.Dir, "model.txt")
		if err := reloaded.SaveModel(res.ModelPath); err != nil {
			return nil, err
		}
		res.TrainPath = filepath.Join(cfg.Dir, "train.parquet")
		if err := dataio.WriteParquet(res.TrainPath, trainBuf); err != nil {
			return nil, err
		}
	}
	logger.Info("Demo finished", log.SamplesKey, cfg.Rows, log.IterationsKey, res.Iterations, log.PredsKey, len(scores))
	return res, nil
}

func randomFloats(rng *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = rng.Float32()
	}
	return out
}
