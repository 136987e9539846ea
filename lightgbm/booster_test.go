package lightgbm

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/lgbmgo/lightgbm/capi"
	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
	"github.com/YuminosukeSato/lgbmgo/pkg/log"
)

func trainedBooster(t *testing.T, lib *capi.GoLibrary, iters int) (*Booster, *Dataset) {
	t.Helper()
	opts, _ := testOpts(lib)
	ds, err := NewDataset(randomBuffer(t, 500, 4, 11, true), opts...)
	require.NoError(t, err)
	b, err := NewBooster(iters, binaryParams(), opts...)
	require.NoError(t, err)
	require.NoError(t, b.Train(ds))
	return b, ds
}

// The synthetic scenario of the demo program: random features and labels,
// 32 rounds, then four unseen rows scored.
func TestBoosterBinaryScenario(t *testing.T) {
	lib := capi.NewGoLibrary()
	opts, logger := testOpts(lib)

	train, err := NewDataset(randomBuffer(t, 10247, 8, 42, true), opts...)
	require.NoError(t, err)
	test, err := NewDataset(randomBuffer(t, 4, 8, 43, false), opts...)
	require.NoError(t, err)

	b, err := NewBooster(32, binaryParams(), opts...)
	require.NoError(t, err)
	assert.Equal(t, "num_iterations=32 objective=binary num_class=1 force_col_wise=true", b.ParamString())

	require.NoError(t, b.Train(train))
	assert.Equal(t, Trained, b.State())

	preds, err := b.Predict(test)
	require.NoError(t, err)
	require.Len(t, preds, 4)
	for _, p := range preds {
		assert.False(t, math.IsNaN(float64(p)) || math.IsInf(float64(p), 0))
		assert.True(t, p >= 0 && p <= 1)
	}

	assert.True(t, logger.ContainsMessage("Training started"))
	assert.True(t, logger.ContainsField(log.IterationsKey, float64(32)))
	assert.True(t, logger.ContainsField(log.EstimatorIDKey, b.ID()))

	require.NoError(t, b.Close())
	require.NoError(t, train.Close())
	require.NoError(t, test.Close())
	assert.Equal(t, capi.Stats{}, lib.Stats())
}

func TestBoosterRoundTripIsBitExact(t *testing.T) {
	lib := capi.NewGoLibrary()
	opts, _ := testOpts(lib)
	b, train := trainedBooster(t, lib, 20)
	defer train.Close()

	model, err := b.ModelString()
	require.NoError(t, err)

	loaded, err := LoadBooster(model, opts...)
	require.NoError(t, err)
	assert.Equal(t, Loaded, loaded.State())
	assert.Equal(t, 20, loaded.NumIterations())

	want, err := b.Predict(train)
	require.NoError(t, err)
	got, err := loaded.Predict(train)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("loaded model predictions differ (-want +got):\n%s", diff)
	}
	for i := range want {
		require.Equal(t, math.Float32bits(want[i]), math.Float32bits(got[i]))
	}

	again, err := loaded.ModelString()
	require.NoError(t, err)
	assert.Equal(t, model, again)

	require.NoError(t, b.Close())
	require.NoError(t, loaded.Close())
}

func TestBoosterSaveAndLoadFile(t *testing.T) {
	lib := capi.NewGoLibrary()
	opts, _ := testOpts(lib)
	b, train := trainedBooster(t, lib, 5)
	defer train.Close()
	defer b.Close()

	path := filepath.Join(t.TempDir(), "model.txt")
	require.NoError(t, b.SaveModel(path))

	loaded, err := LoadBoosterFromFile(path, opts...)
	require.NoError(t, err)
	defer loaded.Close()
	n, err := loaded.CurrentIteration()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = LoadBoosterFromFile(filepath.Join(t.TempDir(), "missing.txt"), opts...)
	assert.Error(t, err)
}

func TestBoosterStopsWhenFinished(t *testing.T) {
	const k = 3
	lib := capi.NewGoLibrary(capi.WithForcedFinish(k))
	opts, logger := testOpts(lib)
	ds, err := NewDataset(randomBuffer(t, 300, 3, 5, true), opts...)
	require.NoError(t, err)
	defer ds.Close()

	b, err := NewBooster(10, binaryParams(), opts...)
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.Train(ds))

	assert.Equal(t, k+1, lib.Calls(capi.OpBoosterUpdateOneIter), "no update after finished")
	n, err := b.CurrentIteration()
	require.NoError(t, err)
	assert.Equal(t, k, n)
	assert.True(t, logger.ContainsField(log.EarlyStopKey, true))
	assert.Equal(t, 0, lib.Stats().Allocations, "finished flag released")
}

func TestBoosterRunsFullBudget(t *testing.T) {
	lib := capi.NewGoLibrary()
	b, ds := trainedBooster(t, lib, 7)
	defer ds.Close()
	defer b.Close()
	assert.Equal(t, 7, lib.Calls(capi.OpBoosterUpdateOneIter))
	n, err := b.CurrentIteration()
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestBoosterRequiresTraining(t *testing.T) {
	lib := capi.NewGoLibrary()
	opts, _ := testOpts(lib)
	b, err := NewBooster(5, binaryParams(), opts...)
	require.NoError(t, err)
	ds, err := NewDataset(randomBuffer(t, 4, 2, 6, false), opts...)
	require.NoError(t, err)

	_, err = b.Predict(ds)
	assert.True(t, errors.Is(err, errors.ErrIllegalState), "got %v", err)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	_, err = b.ModelString()
	assert.True(t, errors.Is(err, errors.ErrIllegalState))
	_, err = b.FeatureImportance(capi.FeatureImportanceSplit)
	assert.True(t, errors.Is(err, errors.ErrIllegalState))
	_, err = b.CurrentIteration()
	assert.True(t, errors.Is(err, errors.ErrIllegalState))

	assert.Equal(t, 0, lib.Calls(capi.OpBoosterPredictForMat))
	assert.Equal(t, 0, lib.Calls(capi.OpMalloc))
}

func TestBoosterTrainTwiceFreesFirstHandle(t *testing.T) {
	lib := capi.NewGoLibrary()
	b, ds := trainedBooster(t, lib, 3)
	defer ds.Close()
	assert.Equal(t, 1, lib.Stats().Boosters)

	require.NoError(t, b.Train(ds))
	assert.Equal(t, 1, lib.Stats().Boosters)
	assert.Equal(t, 1, lib.Calls(capi.OpBoosterFree))
	assert.Equal(t, 1, lib.Calls(capi.OpDatasetCreateFromMat), "dataset bound once")

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, BoosterClosed, b.State())
	assert.Equal(t, 0, lib.Stats().Boosters)
	assert.Equal(t, 2, lib.Calls(capi.OpBoosterFree))
}

func TestNewBoosterValidation(t *testing.T) {
	lib := capi.NewGoLibrary()
	_, err := NewBooster(0, NewParams(), WithLibrary(lib))
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	_, err = NewBooster(5, nil, WithLibrary(lib))
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	_, err = LoadBooster("", WithLibrary(lib))
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	b, err := NewBooster(5, NewParams(), WithLibrary(lib))
	require.NoError(t, err)
	assert.True(t, errors.Is(b.Train(nil), errors.ErrInvalidArgument))
}

func TestLoadBoosterRejectsGarbage(t *testing.T) {
	lib := capi.NewGoLibrary()
	opts, _ := testOpts(lib)
	_, err := LoadBooster("not a model", opts...)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrModelLoad), "got %v", err)
	assert.Equal(t, 0, lib.Stats().Boosters)
}

func TestBoosterPredictFeatureMismatch(t *testing.T) {
	lib := capi.NewGoLibrary()
	opts, _ := testOpts(lib)
	b, train := trainedBooster(t, lib, 2)
	defer train.Close()
	defer b.Close()

	wide, err := NewDataset(randomBuffer(t, 3, 6, 7, false), opts...)
	require.NoError(t, err)
	_, err = b.Predict(wide)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument), "got %v", err)
	assert.Equal(t, 0, lib.Calls(capi.OpBoosterPredictForMat))
}

func TestBoosterFeatureImportance(t *testing.T) {
	lib := capi.NewGoLibrary()
	b, ds := trainedBooster(t, lib, 10)
	defer ds.Close()
	defer b.Close()

	split, err := b.FeatureImportance(capi.FeatureImportanceSplit)
	require.NoError(t, err)
	require.Len(t, split, 4)
	gain, err := b.FeatureImportance(capi.FeatureImportanceGain)
	require.NoError(t, err)
	// labels depend on f0 and f1 only
	assert.Greater(t, gain[0]+gain[1], gain[2]+gain[3])
}

// Every native entry point used by Train and Predict, failed in turn, must
// surface as its typed error and leave no scratch allocation behind.
func TestBoosterFailureInjection(t *testing.T) {
	tests := []struct {
		name string
		op   string
		nth  int
		kind error
		// iteration reported by a training failure, -1 when not applicable
		iteration int
		predict   bool
	}{
		{"dataset create", capi.OpDatasetCreateFromMat, 1, errors.ErrDatasetCreation, -1, false},
		{"set label", capi.OpDatasetSetField, 1, errors.ErrDatasetCreation, -1, false},
		{"set names", capi.OpDatasetSetFeatureNames, 1, errors.ErrDatasetCreation, -1, false},
		{"booster create", capi.OpBoosterCreate, 1, errors.ErrBoosterCreation, -1, false},
		{"first iteration", capi.OpBoosterUpdateOneIter, 1, errors.ErrTrainingIteration, 0, false},
		{"third iteration", capi.OpBoosterUpdateOneIter, 3, errors.ErrTrainingIteration, 2, false},
		{"finished flag alloc", capi.OpMalloc, 1, errors.ErrTrainingIteration, 0, false},
		{"predict", capi.OpBoosterPredictForMat, 1, errors.ErrPrediction, -1, true},
		{"num feature", capi.OpBoosterGetNumFeature, 1, errors.ErrPrediction, -1, true},
		{"num classes", capi.OpBoosterGetNumClasses, 1, errors.ErrPrediction, -1, true},
		// the first allocation is Train's finished flag
		{"output buffer alloc", capi.OpMalloc, 2, errors.ErrPrediction, -1, true},
		{"length alloc", capi.OpMalloc, 3, errors.ErrPrediction, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := capi.NewGoLibrary(capi.WithFault(tt.op, tt.nth))
			opts, _ := testOpts(lib)
			ds, err := NewDataset(randomBuffer(t, 200, 3, 8, true), opts...)
			require.NoError(t, err)
			defer ds.Close()
			b, err := NewBooster(5, binaryParams(), opts...)
			require.NoError(t, err)
			defer b.Close()

			err = b.Train(ds)
			if tt.predict {
				require.NoError(t, err)
				_, err = b.Predict(ds)
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)

			var nerr *errors.NativeError
			require.True(t, errors.As(err, &nerr))
			assert.Equal(t, tt.op, nerr.Op)
			assert.Equal(t, tt.iteration, nerr.Iteration)
			assert.Equal(t, 0, lib.Stats().Allocations, "scratch released")
		})
	}
}

func TestBoosterIterationFailureKeepsHandle(t *testing.T) {
	lib := capi.NewGoLibrary(capi.WithFault(capi.OpBoosterUpdateOneIter, 3))
	opts, _ := testOpts(lib)
	ds, err := NewDataset(randomBuffer(t, 200, 3, 9, true), opts...)
	require.NoError(t, err)
	defer ds.Close()
	b, err := NewBooster(5, binaryParams(), opts...)
	require.NoError(t, err)

	require.Error(t, b.Train(ds))
	assert.Equal(t, Trained, b.State())
	n, err := b.CurrentIteration()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, b.Close())
	assert.Equal(t, 0, lib.Stats().Boosters)
}

func TestLoadedBoosterCannotTrain(t *testing.T) {
	lib := capi.NewGoLibrary()
	opts, _ := testOpts(lib)
	b, train := trainedBooster(t, lib, 6)
	defer train.Close()
	defer b.Close()

	model, err := b.ModelString()
	require.NoError(t, err)
	loaded, err := LoadBooster(model, opts...)
	require.NoError(t, err)
	defer loaded.Close()
	assert.Empty(t, loaded.ParamString())

	created := lib.Calls(capi.OpBoosterCreate)
	err = loaded.Train(train)
	assert.True(t, errors.Is(err, errors.ErrIllegalState))
	assert.Equal(t, created, lib.Calls(capi.OpBoosterCreate))

	// the restored model is untouched
	assert.Equal(t, Loaded, loaded.State())
	again, err := loaded.ModelString()
	require.NoError(t, err)
	assert.Equal(t, model, again)
}

// scoreRewriter runs the Go library's prediction and then rewrites what it
// wrote, standing in for a misbehaving native library.
type scoreRewriter struct {
	*capi.GoLibrary
	rewrite func(outLen *int64, out []float64)
}

func (s *scoreRewriter) BoosterPredictForMat(h capi.Handle, data []float32, nrow, ncol int32, rowMajor bool,
	predictType capi.PredictType, startIteration, numIteration int, params string,
	outLen *int64, out []float64) error {
	err := s.GoLibrary.BoosterPredictForMat(h, data, nrow, ncol, rowMajor,
		predictType, startIteration, numIteration, params, outLen, out)
	if err != nil {
		return err
	}
	s.rewrite(outLen, out)
	return nil
}

func predictWith(t *testing.T, rewrite func(outLen *int64, out []float64)) (*capi.GoLibrary, []float32, error) {
	t.Helper()
	lib := capi.NewGoLibrary()
	opts, _ := testOpts(&scoreRewriter{GoLibrary: lib, rewrite: rewrite})
	train, err := NewDataset(randomBuffer(t, 300, 3, 21, true), opts...)
	require.NoError(t, err)
	defer train.Close()
	test, err := NewDataset(randomBuffer(t, 5, 3, 22, false), opts...)
	require.NoError(t, err)
	b, err := NewBooster(4, binaryParams(), opts...)
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.Train(train))

	preds, err := b.Predict(test)
	return lib, preds, err
}

func TestBoosterPredictRejectsShortOutput(t *testing.T) {
	lib, preds, err := predictWith(t, func(outLen *int64, _ []float64) { *outLen-- })
	require.Error(t, err)
	assert.Nil(t, preds)
	assert.True(t, errors.Is(err, errors.ErrPrediction))
	var nerr *errors.NativeError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, capi.OpBoosterPredictForMat, nerr.Op)
	assert.Contains(t, err.Error(), "wrote 4 predictions for 5 rows")
	assert.Zero(t, lib.Stats().Allocations)
}

func TestBoosterPredictWarnsOnFloat32Overflow(t *testing.T) {
	provider, _ := log.NewTestLoggerProvider(log.LevelDebug)
	log.SetProvider(provider)
	t.Cleanup(func() { log.SetProvider(log.NewZerologProvider(os.Stderr, log.LevelInfo, log.FormatConsole)) })

	_, preds, err := predictWith(t, func(_ *int64, out []float64) { out[1] = 1e300 })
	require.NoError(t, err)
	require.Len(t, preds, 5)
	assert.True(t, math.IsInf(float64(preds[1]), 1))
	for i, p := range preds {
		if i != 1 {
			assert.False(t, math.IsInf(float64(p), 0))
		}
	}
	assert.True(t, provider.Logger().ContainsMessage("prediction outside float32 range became infinite"))
}

func TestBoosterPredictNoWarningInRange(t *testing.T) {
	provider, _ := log.NewTestLoggerProvider(log.LevelDebug)
	log.SetProvider(provider)
	t.Cleanup(func() { log.SetProvider(log.NewZerologProvider(os.Stderr, log.LevelInfo, log.FormatConsole)) })

	_, _, err := predictWith(t, func(_ *int64, out []float64) { out[0] = math.Inf(-1) })
	require.NoError(t, err)
	assert.False(t, provider.Logger().ContainsMessage("prediction outside float32 range"))
}

func TestNewBoosterWarnsOnSessionLogger(t *testing.T) {
	opts, logger := testOpts(capi.NewGoLibrary())
	b, err := NewBooster(5, binaryParams().SetInt("n_estimators", 50), opts...)
	require.NoError(t, err)

	assert.Equal(t, "num_iterations=5 objective=binary num_class=1 force_col_wise=true", b.ParamString())
	assert.Equal(t, 1, logger.CountMessage("Dropping iteration key from parameters, the explicit budget is used"))
	assert.True(t, logger.ContainsField(log.EstimatorIDKey, b.ID()))
}
