package lightgbm

import (
	"context"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/lgbmgo/lightgbm/capi"
	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
	"github.com/YuminosukeSato/lgbmgo/pkg/log"
)

// predictParams is passed to every prediction call.
const predictParams = "verbosity=-1"

// BoosterState is the lifecycle state of a Booster.
type BoosterState int

const (
	Untrained BoosterState = iota
	Trained
	Loaded
	BoosterClosed
)

func (s BoosterState) String() string {
	switch s {
	case Trained:
		return "Trained"
	case Loaded:
		return "Loaded"
	case BoosterClosed:
		return "Closed"
	default:
		return "Untrained"
	}
}

// Booster is one model session: an iteration budget, an encoded parameter
// string and at most one native booster handle. A Booster is not safe for
// concurrent use.
type Booster struct {
	id            uuid.UUID
	lib           capi.Library
	logger        log.Logger
	numIterations int
	params        string
	handle        capi.Handle
	state         BoosterState
}

// NewBooster prepares a session that trains for at most numIterations
// rounds with params. The parameter string is encoded once, here.
func NewBooster(numIterations int, params *Params, opts ...Option) (*Booster, error) {
	if numIterations <= 0 {
		return nil, errors.NewValidationError("numIterations", "must be positive", numIterations)
	}
	if params == nil {
		return nil, errors.NewValidationError("params", "must not be nil", nil)
	}
	b, err := newBooster(numIterations, opts)
	if err != nil {
		return nil, err
	}
	b.params = encodeParams(numIterations, params, b.logger)
	return b, nil
}

// LoadBooster restores a session from a model string. The iteration count
// stored in the model becomes the session's budget.
func LoadBooster(model string, opts ...Option) (*Booster, error) {
	if model == "" {
		return nil, errors.NewValidationError("model", "must not be empty", "")
	}
	b, err := newBooster(0, opts)
	if err != nil {
		return nil, err
	}
	h, iters, err := b.lib.BoosterLoadModelFromString(model)
	if err != nil {
		return nil, errors.NewModelLoadError(capi.OpBoosterLoadModelFromString, err)
	}
	b.handle = h
	b.numIterations = iters
	b.state = Loaded
	runtime.SetFinalizer(b, (*Booster).finalize)
	b.logger.Debug("Model loaded",
		log.OperationKey, log.OperationLoad,
		log.IterationsKey, iters,
		log.HandleKey, uint64(h),
	)
	return b, nil
}

// LoadBoosterFromFile reads a model file written by SaveModel or LightGBM.
func LoadBoosterFromFile(path string, opts ...Option) (*Booster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read model %s", path)
	}
	return LoadBooster(string(data), opts...)
}

func newBooster(numIterations int, opts []Option) (*Booster, error) {
	o, err := resolveOptions("lightgbm.booster", opts)
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	return &Booster{
		id:            id,
		lib:           o.lib,
		logger:        o.logger.With(log.ModelNameKey, "Booster", log.EstimatorIDKey, id.String()),
		numIterations: numIterations,
	}, nil
}

func (b *Booster) ID() string            { return b.id.String() }
func (b *Booster) NumIterations() int    { return b.numIterations }
func (b *Booster) ParamString() string   { return b.params }
func (b *Booster) State() BoosterState   { return b.state }
func (b *Booster) Library() capi.Library { return b.lib }

// Train builds a new model on ds, replacing any existing one. It runs
// BoosterUpdateOneIter until the budget is spent or the library reports
// that no further boosting is possible.
//
// If an iteration fails the handle is kept with the trees built so far and
// the error carries the iteration index.
//
// A session restored with LoadBooster has no parameter string and cannot be
// trained; build a new session with NewBooster instead.
func (b *Booster) Train(ds *Dataset) error {
	if ds == nil {
		return errors.NewValidationError("ds", "must not be nil", nil)
	}
	if b.params == "" {
		return errors.Wrapf(errors.ErrIllegalState,
			"booster %s was loaded from a model and has no training parameters", b.ID())
	}
	if err := b.free(); err != nil {
		return err
	}
	b.state = Untrained
	dh, err := ds.Bind(b.params)
	if err != nil {
		return err
	}

	h, err := b.lib.BoosterCreate(dh, b.params)
	if err != nil {
		return errors.NewBoosterCreationError(capi.OpBoosterCreate, err)
	}
	b.handle = h
	b.state = Trained
	runtime.SetFinalizer(b, (*Booster).finalize)

	logger := b.logger.With(log.OperationKey, log.OperationTrain, log.PhaseKey, log.PhaseTraining)
	logger.Info("Training started",
		log.SamplesKey, ds.NumInstances(),
		log.FeaturesKey, ds.NumFeatures(),
		log.IterationsKey, b.numIterations,
		log.ParamsKey, b.params,
	)
	start := time.Now()

	sc := newScratch(b.lib)
	defer sc.release()
	finished, err := sc.int32()
	if err != nil {
		return errors.NewTrainingIterationError(capi.OpMalloc, 0, err)
	}

	ran := 0
	for iter := 0; iter < b.numIterations; iter++ {
		if err := b.lib.BoosterUpdateOneIter(h, finished); err != nil {
			return errors.NewTrainingIterationError(capi.OpBoosterUpdateOneIter, iter, err)
		}
		ran = iter + 1
		if logger.Enabled(context.Background(), log.LevelDebug) {
			logger.Debug("Boosting iteration done", log.IterationKey, iter, "finished", *finished == 1)
		}
		if *finished == 1 {
			break
		}
	}

	early := *finished == 1 && ran < b.numIterations
	if early {
		errors.Warn(errors.NewConvergenceWarning("LightGBM", ran, "no further splits with positive gain"))
	}
	logger.Info("Training finished",
		log.IterationsKey, ran,
		log.EarlyStopKey, early,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// Predict scores every row of ds with the first NumIterations iterations
// and narrows the results to float32.
func (b *Booster) Predict(ds *Dataset) ([]float32, error) {
	if b.handle == 0 {
		return nil, errors.NewNotFittedError("Booster", "Predict")
	}
	if ds == nil {
		return nil, errors.NewValidationError("ds", "must not be nil", nil)
	}
	nf, err := b.lib.BoosterGetNumFeature(b.handle)
	if err != nil {
		return nil, errors.NewPredictionError(capi.OpBoosterGetNumFeature, err)
	}
	if nf != ds.NumFeatures() {
		return nil, errors.NewDimensionError("Predict", nf, ds.NumFeatures(), 1)
	}
	nc, err := b.lib.BoosterGetNumClasses(b.handle)
	if err != nil {
		return nil, errors.NewPredictionError(capi.OpBoosterGetNumClasses, err)
	}
	if nc != 1 {
		return nil, errors.NewPredictionError(capi.OpBoosterGetNumClasses,
			errors.Newf("model has %d classes, only single-output models can be predicted", nc))
	}

	nrow, ncol := ds.NumInstances(), ds.NumFeatures()
	sc := newScratch(b.lib)
	defer sc.release()
	out, err := sc.float64s(nrow)
	if err != nil {
		return nil, errors.NewPredictionError(capi.OpMalloc, err)
	}
	outLen, err := sc.int64()
	if err != nil {
		return nil, errors.NewPredictionError(capi.OpMalloc, err)
	}
	*outLen = int64(nrow) * int64(ncol)

	err = b.lib.BoosterPredictForMat(b.handle, ds.features(), int32(nrow), int32(ncol), true,
		capi.PredictNormal, 0, b.numIterations, predictParams, outLen, out)
	if err != nil {
		return nil, errors.NewPredictionError(capi.OpBoosterPredictForMat, err)
	}
	if *outLen != int64(nrow) {
		return nil, errors.NewPredictionError(capi.OpBoosterPredictForMat,
			errors.Newf("library wrote %d predictions for %d rows", *outLen, nrow))
	}

	preds := make([]float32, nrow)
	overflow := 0
	for i, v := range out {
		preds[i] = float32(v)
		if !math.IsInf(v, 0) && math.IsInf(float64(preds[i]), 0) {
			overflow++
		}
	}
	if overflow > 0 {
		errors.Warn(errors.NewDataConversionWarning("float64", "float32",
			"prediction outside float32 range became infinite"))
	}
	b.logger.Debug("Predicted",
		log.OperationKey, log.OperationPredict,
		log.PhaseKey, log.PhaseInference,
		log.PredsKey, nrow,
	)
	return preds, nil
}

// ModelString serialises every iteration of the model in LightGBM's text
// format, with split-count feature importances.
func (b *Booster) ModelString() (string, error) {
	if b.handle == 0 {
		return "", errors.NewNotFittedError("Booster", "ModelString")
	}
	s, err := b.lib.BoosterSaveModelToString(b.handle, 0, -1, capi.FeatureImportanceSplit)
	if err != nil {
		return "", errors.NewModelError(capi.OpBoosterSaveModelToString, "save failed", err)
	}
	return s, nil
}

// SaveModel writes ModelString to path.
func (b *Booster) SaveModel(path string) error {
	s, err := b.ModelString()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
		return errors.Wrapf(err, "write model %s", path)
	}
	b.logger.Info("Model saved", log.OperationKey, log.OperationSave, "path", path)
	return nil
}

// FeatureImportance returns one value per feature over all iterations.
func (b *Booster) FeatureImportance(kind capi.FeatureImportanceType) ([]float64, error) {
	if b.handle == 0 {
		return nil, errors.NewNotFittedError("Booster", "FeatureImportance")
	}
	imp, err := b.lib.BoosterFeatureImportance(b.handle, 0, kind)
	if err != nil {
		return nil, errors.NewModelError(capi.OpBoosterFeatureImportance, "feature importance failed", err)
	}
	return imp, nil
}

// CurrentIteration is the number of iterations the model holds.
func (b *Booster) CurrentIteration() (int, error) {
	if b.handle == 0 {
		return 0, errors.NewNotFittedError("Booster", "CurrentIteration")
	}
	n, err := b.lib.BoosterGetCurrentIteration(b.handle)
	if err != nil {
		return 0, errors.NewModelError(capi.OpBoosterGetCurrentIteration, "query failed", err)
	}
	return n, nil
}

// Close frees the native booster. Calling it again is a no-op.
func (b *Booster) Close() error {
	if err := b.free(); err != nil {
		return err
	}
	b.state = BoosterClosed
	return nil
}

func (b *Booster) free() error {
	if b.handle == 0 {
		return nil
	}
	h := b.handle
	b.handle = 0
	runtime.SetFinalizer(b, nil)
	if err := b.lib.BoosterFree(h); err != nil {
		return errors.Wrap(err, capi.OpBoosterFree)
	}
	b.logger.Debug("Booster freed", log.OperationKey, log.OperationClose, log.HandleKey, uint64(h))
	return nil
}

func (b *Booster) finalize() {
	if b.handle != 0 {
		_ = b.lib.BoosterFree(b.handle)
	}
}
