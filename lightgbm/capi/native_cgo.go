//go:build cgo && lightgbm

package capi

/*
#cgo LDFLAGS: -l_lightgbm
#include <stdlib.h>
#include <stdint.h>
#include <LightGBM/c_api.h>
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
)

// nativeLibrary drives the LightGBM shared library. C handles are kept in
// registries so only opaque Handles leave the package.
type nativeLibrary struct {
	datasets *registry[C.DatasetHandle]
	boosters *registry[C.BoosterHandle]
}

var (
	nativeOnce sync.Once
	nativeLib  *nativeLibrary
)

// Native returns the cgo backend.
func Native() (Library, error) {
	nativeOnce.Do(func() {
		nativeLib = &nativeLibrary{
			datasets: newRegistry[C.DatasetHandle](),
			boosters: newRegistry[C.BoosterHandle](),
		}
	})
	return nativeLib, nil
}

func (l *nativeLibrary) Name() string { return "native" }

func lastError(op string) error {
	return errors.Newf("%s: %s", op, C.GoString(C.LGBM_GetLastError()))
}

func check(op string, rc C.int) error {
	if rc != 0 {
		return lastError(op)
	}
	return nil
}

func (l *nativeLibrary) dataset(op string, h Handle) (C.DatasetHandle, error) {
	ds, ok := l.datasets.get(h)
	if !ok {
		return nil, errors.Newf("%s: invalid dataset handle %d", op, h)
	}
	return ds, nil
}

func (l *nativeLibrary) booster(op string, h Handle) (C.BoosterHandle, error) {
	b, ok := l.boosters.get(h)
	if !ok {
		return nil, errors.Newf("%s: invalid booster handle %d", op, h)
	}
	return b, nil
}

func boolInt(v bool) C.int {
	if v {
		return 1
	}
	return 0
}

func (l *nativeLibrary) DatasetCreateFromMat(data []float32, nrow, ncol int32, rowMajor bool, params string) (Handle, error) {
	if len(data) == 0 {
		return 0, errors.Newf("%s: empty data", OpDatasetCreateFromMat)
	}
	cParams := C.CString(params)
	defer C.free(unsafe.Pointer(cParams))

	var out C.DatasetHandle
	rc := C.LGBM_DatasetCreateFromMat(unsafe.Pointer(&data[0]), C.C_API_DTYPE_FLOAT32,
		C.int32_t(nrow), C.int32_t(ncol), boolInt(rowMajor), cParams, nil, &out)
	if err := check(OpDatasetCreateFromMat, rc); err != nil {
		return 0, err
	}
	return l.datasets.put(out), nil
}

func (l *nativeLibrary) DatasetSetField(h Handle, field string, data []float32) error {
	ds, err := l.dataset(OpDatasetSetField, h)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.Newf("%s: empty %s", OpDatasetSetField, field)
	}
	cField := C.CString(field)
	defer C.free(unsafe.Pointer(cField))
	rc := C.LGBM_DatasetSetField(ds, cField, unsafe.Pointer(&data[0]), C.int(len(data)), C.C_API_DTYPE_FLOAT32)
	return check(OpDatasetSetField, rc)
}

func (l *nativeLibrary) DatasetSetFeatureNames(h Handle, names []string) error {
	ds, err := l.dataset(OpDatasetSetFeatureNames, h)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}
	ptrSize := unsafe.Sizeof((*C.char)(nil))
	arr := (**C.char)(C.malloc(C.size_t(uintptr(len(names)) * ptrSize)))
	defer C.free(unsafe.Pointer(arr))
	cNames := unsafe.Slice(arr, len(names))
	for i, n := range names {
		cNames[i] = C.CString(n)
	}
	defer func() {
		for _, p := range cNames {
			C.free(unsafe.Pointer(p))
		}
	}()
	rc := C.LGBM_DatasetSetFeatureNames(ds, arr, C.int(len(names)))
	return check(OpDatasetSetFeatureNames, rc)
}

func (l *nativeLibrary) DatasetFree(h Handle) error {
	ds, ok := l.datasets.del(h)
	if !ok {
		return errors.Newf("%s: invalid dataset handle %d", OpDatasetFree, h)
	}
	return check(OpDatasetFree, C.LGBM_DatasetFree(ds))
}

func (l *nativeLibrary) BoosterCreate(train Handle, params string) (Handle, error) {
	ds, err := l.dataset(OpBoosterCreate, train)
	if err != nil {
		return 0, err
	}
	cParams := C.CString(params)
	defer C.free(unsafe.Pointer(cParams))
	var out C.BoosterHandle
	if err := check(OpBoosterCreate, C.LGBM_BoosterCreate(ds, cParams, &out)); err != nil {
		return 0, err
	}
	return l.boosters.put(out), nil
}

func (l *nativeLibrary) BoosterUpdateOneIter(h Handle, finished *int32) error {
	b, err := l.booster(OpBoosterUpdateOneIter, h)
	if err != nil {
		return err
	}
	var fin C.int
	if err := check(OpBoosterUpdateOneIter, C.LGBM_BoosterUpdateOneIter(b, &fin)); err != nil {
		return err
	}
	*finished = int32(fin)
	return nil
}

func (l *nativeLibrary) BoosterFree(h Handle) error {
	b, ok := l.boosters.del(h)
	if !ok {
		return errors.Newf("%s: invalid booster handle %d", OpBoosterFree, h)
	}
	return check(OpBoosterFree, C.LGBM_BoosterFree(b))
}

func (l *nativeLibrary) BoosterPredictForMat(h Handle, data []float32, nrow, ncol int32, rowMajor bool,
	predictType PredictType, startIteration, numIteration int, params string,
	outLen *int64, out []float64) error {
	b, err := l.booster(OpBoosterPredictForMat, h)
	if err != nil {
		return err
	}
	if len(data) == 0 || len(out) == 0 {
		return errors.Newf("%s: empty buffer", OpBoosterPredictForMat)
	}
	cParams := C.CString(params)
	defer C.free(unsafe.Pointer(cParams))
	n := C.int64_t(*outLen)
	rc := C.LGBM_BoosterPredictForMat(b, unsafe.Pointer(&data[0]), C.C_API_DTYPE_FLOAT32,
		C.int32_t(nrow), C.int32_t(ncol), boolInt(rowMajor), C.int(predictType),
		C.int(startIteration), C.int(numIteration), cParams, &n, (*C.double)(unsafe.Pointer(&out[0])))
	if err := check(OpBoosterPredictForMat, rc); err != nil {
		return err
	}
	*outLen = int64(n)
	return nil
}

// BoosterSaveModelToString sizes the buffer with a first call and retries
// once when the model is larger.
func (l *nativeLibrary) BoosterSaveModelToString(h Handle, startIteration, numIteration int, importance FeatureImportanceType) (string, error) {
	b, err := l.booster(OpBoosterSaveModelToString, h)
	if err != nil {
		return "", err
	}
	bufLen := C.int64_t(1 << 20)
	for attempt := 0; attempt < 2; attempt++ {
		buf := (*C.char)(C.malloc(C.size_t(bufLen)))
		var outLen C.int64_t
		rc := C.LGBM_BoosterSaveModelToString(b, C.int(startIteration), C.int(numIteration),
			C.int(importance), bufLen, &outLen, buf)
		if rc != 0 {
			C.free(unsafe.Pointer(buf))
			return "", lastError(OpBoosterSaveModelToString)
		}
		if outLen <= bufLen {
			s := C.GoString(buf)
			C.free(unsafe.Pointer(buf))
			return s, nil
		}
		C.free(unsafe.Pointer(buf))
		bufLen = outLen
	}
	return "", errors.Newf("%s: model size changed between calls", OpBoosterSaveModelToString)
}

func (l *nativeLibrary) BoosterLoadModelFromString(model string) (Handle, int, error) {
	cModel := C.CString(model)
	defer C.free(unsafe.Pointer(cModel))
	var iters C.int
	var out C.BoosterHandle
	if err := check(OpBoosterLoadModelFromString, C.LGBM_BoosterLoadModelFromString(cModel, &iters, &out)); err != nil {
		return 0, 0, err
	}
	return l.boosters.put(out), int(iters), nil
}

func (l *nativeLibrary) BoosterGetNumClasses(h Handle) (int, error) {
	b, err := l.booster(OpBoosterGetNumClasses, h)
	if err != nil {
		return 0, err
	}
	var n C.int
	if err := check(OpBoosterGetNumClasses, C.LGBM_BoosterGetNumClasses(b, &n)); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (l *nativeLibrary) BoosterGetNumFeature(h Handle) (int, error) {
	b, err := l.booster(OpBoosterGetNumFeature, h)
	if err != nil {
		return 0, err
	}
	var n C.int
	if err := check(OpBoosterGetNumFeature, C.LGBM_BoosterGetNumFeature(b, &n)); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (l *nativeLibrary) BoosterGetCurrentIteration(h Handle) (int, error) {
	b, err := l.booster(OpBoosterGetCurrentIteration, h)
	if err != nil {
		return 0, err
	}
	var n C.int
	if err := check(OpBoosterGetCurrentIteration, C.LGBM_BoosterGetCurrentIteration(b, &n)); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (l *nativeLibrary) BoosterFeatureImportance(h Handle, numIteration int, importance FeatureImportanceType) ([]float64, error) {
	n, err := l.BoosterGetNumFeature(h)
	if err != nil {
		return nil, err
	}
	b, _ := l.booster(OpBoosterFeatureImportance, h)
	out := make([]float64, n)
	if n == 0 {
		return out, nil
	}
	rc := C.LGBM_BoosterFeatureImportance(b, C.int(numIteration), C.int(importance), (*C.double)(unsafe.Pointer(&out[0])))
	if err := check(OpBoosterFeatureImportance, rc); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *nativeLibrary) Malloc(size uintptr) (unsafe.Pointer, error) {
	p := C.malloc(C.size_t(size))
	if p == nil {
		return nil, errors.Newf("%s: out of memory allocating %d bytes", OpMalloc, size)
	}
	return p, nil
}

func (l *nativeLibrary) Free(p unsafe.Pointer) { C.free(p) }

var _ Library = (*nativeLibrary)(nil)
