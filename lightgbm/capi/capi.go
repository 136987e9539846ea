// Package capi is the contract between the binding layer and the LightGBM C
// API. Library mirrors the LGBM_* entry points the binding layer drives; two
// implementations exist:
//
//   - the cgo backend over <LightGBM/c_api.h>, compiled with -tags lightgbm
//   - GoLibrary, an in-process gradient boosting engine speaking the same
//     contract, used when the shared library is not linked and by tests
//
// Every entry point returns a plain error carrying the library's last error
// message when the C call reports its -1 sentinel. Mapping those failures to
// the typed errors in pkg/errors is the caller's job.
package capi

import (
	"sync"
	"unsafe"

	"github.com/YuminosukeSato/lgbmgo/pkg/envconfig"
	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
	"github.com/YuminosukeSato/lgbmgo/pkg/log"
)

// Handle is an opaque reference to a native dataset or booster. Zero is the
// null handle.
type Handle uint64

// Data type tags (C_API_DTYPE_*).
const (
	DTypeFloat32 = 0
	DTypeFloat64 = 1
	DTypeInt32   = 2
	DTypeInt64   = 3
)

// PredictType mirrors C_API_PREDICT_*.
type PredictType int

const (
	PredictNormal    PredictType = 0
	PredictRawScore  PredictType = 1
	PredictLeafIndex PredictType = 2
	PredictContrib   PredictType = 3
)

// FeatureImportanceType mirrors C_API_FEATURE_IMPORTANCE_*.
type FeatureImportanceType int

const (
	FeatureImportanceSplit FeatureImportanceType = 0
	FeatureImportanceGain  FeatureImportanceType = 1
)

func (t FeatureImportanceType) String() string {
	if t == FeatureImportanceGain {
		return "gain"
	}
	return "split"
}

// Entry point names, used in error messages, logs and fault injection.
const (
	OpDatasetCreateFromMat       = "LGBM_DatasetCreateFromMat"
	OpDatasetSetField            = "LGBM_DatasetSetField"
	OpDatasetSetFeatureNames     = "LGBM_DatasetSetFeatureNames"
	OpDatasetFree                = "LGBM_DatasetFree"
	OpBoosterCreate              = "LGBM_BoosterCreate"
	OpBoosterUpdateOneIter       = "LGBM_BoosterUpdateOneIter"
	OpBoosterFree                = "LGBM_BoosterFree"
	OpBoosterPredictForMat       = "LGBM_BoosterPredictForMat"
	OpBoosterSaveModelToString   = "LGBM_BoosterSaveModelToString"
	OpBoosterLoadModelFromString = "LGBM_BoosterLoadModelFromString"
	OpBoosterGetNumClasses       = "LGBM_BoosterGetNumClasses"
	OpBoosterGetNumFeature       = "LGBM_BoosterGetNumFeature"
	OpBoosterGetCurrentIteration = "LGBM_BoosterGetCurrentIteration"
	OpBoosterFeatureImportance   = "LGBM_BoosterFeatureImportance"
	OpMalloc                     = "malloc"
)

// Library is the set of native entry points consumed by the binding layer.
type Library interface {
	// Name identifies the backend ("native" or "go").
	Name() string

	DatasetCreateFromMat(data []float32, nrow, ncol int32, rowMajor bool, params string) (Handle, error)
	DatasetSetField(h Handle, field string, data []float32) error
	DatasetSetFeatureNames(h Handle, names []string) error
	DatasetFree(h Handle) error

	BoosterCreate(train Handle, params string) (Handle, error)
	// BoosterUpdateOneIter writes 1 to *finished when no further boosting is possible.
	BoosterUpdateOneIter(h Handle, finished *int32) error
	BoosterFree(h Handle) error
	// BoosterPredictForMat expects *outLen to hold nrow*ncol on entry and
	// overwrites it with the number of values written to out.
	BoosterPredictForMat(h Handle, data []float32, nrow, ncol int32, rowMajor bool,
		predictType PredictType, startIteration, numIteration int, params string,
		outLen *int64, out []float64) error
	BoosterSaveModelToString(h Handle, startIteration, numIteration int, importance FeatureImportanceType) (string, error)
	// BoosterLoadModelFromString returns the new handle and the number of
	// iterations stored in the model.
	BoosterLoadModelFromString(model string) (Handle, int, error)

	BoosterGetNumClasses(h Handle) (int, error)
	BoosterGetNumFeature(h Handle) (int, error)
	BoosterGetCurrentIteration(h Handle) (int, error)
	BoosterFeatureImportance(h Handle, numIteration int, importance FeatureImportanceType) ([]float64, error)

	// Malloc and Free manage scratch memory handed to the entry points above.
	Malloc(size uintptr) (unsafe.Pointer, error)
	Free(p unsafe.Pointer)
}

// ErrNotBuilt is returned by Native when the binary was built without the
// lightgbm build tag or without cgo.
var ErrNotBuilt = errors.New("capi: native LightGBM backend not built (rebuild with CGO_ENABLED=1 -tags lightgbm)")

var (
	loadOnce sync.Once
	loaded   Library
	loadErr  error
)

// Load returns the process-wide Library selected by LGBM_BACKEND. The choice
// is made once; a failure is sticky and returned to every later caller.
func Load() (Library, error) {
	loadOnce.Do(func() {
		loaded, loadErr = selectBackend(envconfig.Backend())
		logger := log.GetLoggerWithName("lightgbm.capi")
		if loadErr != nil {
			logger.Error("LightGBM backend unavailable", loadErr)
			return
		}
		logger.Debug("LightGBM backend loaded", log.BackendKey, loaded.Name())
	})
	return loaded, loadErr
}

func selectBackend(backend string) (Library, error) {
	switch backend {
	case envconfig.BackendNative:
		return Native()
	case envconfig.BackendGo:
		return NewGoLibrary(), nil
	default:
		lib, err := Native()
		if errors.Is(err, ErrNotBuilt) {
			return NewGoLibrary(), nil
		}
		return lib, err
	}
}
