package capi

import (
	"sync"
	"unsafe"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
)

// GoLibrary implements Library in-process. It keeps every dataset, booster
// and scratch allocation in registries so callers can assert that nothing
// leaked, and it can be told to fail a given call for fault-injection tests.
type GoLibrary struct {
	datasets *registry[*goDataset]
	boosters *registry[*goBooster]
	allocs   *registry[[]byte]

	mu           sync.Mutex
	calls        map[string]int
	faults       map[string]int
	forcedFinish int
	lastErr      string
	ptrs         map[unsafe.Pointer]Handle
}

// GoOption configures a GoLibrary.
type GoOption func(*GoLibrary)

// WithFault makes the nth call (1-based) to op fail.
func WithFault(op string, nth int) GoOption {
	return func(l *GoLibrary) { l.faults[op] = nth }
}

// WithForcedFinish makes BoosterUpdateOneIter report finished once the
// booster holds iter iterations, regardless of the data.
func WithForcedFinish(iter int) GoOption {
	return func(l *GoLibrary) { l.forcedFinish = iter }
}

// NewGoLibrary returns an empty in-process library.
func NewGoLibrary(opts ...GoOption) *GoLibrary {
	l := &GoLibrary{
		datasets:     newRegistry[*goDataset](),
		boosters:     newRegistry[*goBooster](),
		allocs:       newRegistry[[]byte](),
		calls:        make(map[string]int),
		faults:       make(map[string]int),
		forcedFinish: -1,
		ptrs:         make(map[unsafe.Pointer]Handle),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Stats counts live objects.
type Stats struct {
	Datasets    int
	Boosters    int
	Allocations int
}

func (l *GoLibrary) Name() string { return "go" }

// Stats reports how many datasets, boosters and scratch allocations are live.
func (l *GoLibrary) Stats() Stats {
	return Stats{
		Datasets:    l.datasets.len(),
		Boosters:    l.boosters.len(),
		Allocations: l.allocs.len(),
	}
}

// Calls returns how many times op was invoked.
func (l *GoLibrary) Calls(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op]
}

// LastError mirrors LGBM_GetLastError.
func (l *GoLibrary) LastError() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// enter counts the call and reports an injected fault.
func (l *GoLibrary) enter(op string) error {
	l.mu.Lock()
	l.calls[op]++
	n := l.calls[op]
	nth, ok := l.faults[op]
	l.mu.Unlock()
	if ok && n == nth {
		return l.fail(op, errors.Newf("injected failure on call %d", n))
	}
	return nil
}

func (l *GoLibrary) fail(op string, err error) error {
	l.mu.Lock()
	l.lastErr = err.Error()
	l.mu.Unlock()
	return errors.Wrap(err, op)
}

func (l *GoLibrary) dataset(op string, h Handle) (*goDataset, error) {
	ds, ok := l.datasets.get(h)
	if !ok {
		return nil, l.fail(op, errors.Newf("invalid dataset handle %d", h))
	}
	return ds, nil
}

func (l *GoLibrary) booster(op string, h Handle) (*goBooster, error) {
	b, ok := l.boosters.get(h)
	if !ok {
		return nil, l.fail(op, errors.Newf("invalid booster handle %d", h))
	}
	return b, nil
}

func (l *GoLibrary) DatasetCreateFromMat(data []float32, nrow, ncol int32, rowMajor bool, params string) (h Handle, err error) {
	const op = OpDatasetCreateFromMat
	defer errors.Recover(&err, op)
	if err := l.enter(op); err != nil {
		return 0, err
	}
	if nrow <= 0 || ncol <= 0 {
		return 0, l.fail(op, errors.Newf("invalid shape %dx%d", nrow, ncol))
	}
	if len(data) != int(nrow)*int(ncol) {
		return 0, l.fail(op, errors.Newf("data has %d values, expected %d", len(data), int(nrow)*int(ncol)))
	}
	cfg, _, err := parseConfig(params)
	if err != nil {
		return 0, l.fail(op, err)
	}
	return l.datasets.put(newGoDataset(data, int(nrow), int(ncol), rowMajor, cfg.maxBin)), nil
}

func (l *GoLibrary) DatasetSetField(h Handle, field string, data []float32) (err error) {
	const op = OpDatasetSetField
	defer errors.Recover(&err, op)
	if err := l.enter(op); err != nil {
		return err
	}
	ds, err := l.dataset(op, h)
	if err != nil {
		return err
	}
	if len(data) != ds.nrow {
		return l.fail(op, errors.Newf("length of %s is %d, expected %d", field, len(data), ds.nrow))
	}
	values := append([]float32(nil), data...)
	switch field {
	case "label":
		ds.label = values
	case "weight":
		for i, w := range values {
			if w < 0 {
				return l.fail(op, errors.Newf("weight at row %d is negative", i))
			}
		}
		ds.weight = values
	default:
		return l.fail(op, errors.Newf("unknown float field %q", field))
	}
	return nil
}

func (l *GoLibrary) DatasetSetFeatureNames(h Handle, names []string) (err error) {
	const op = OpDatasetSetFeatureNames
	defer errors.Recover(&err, op)
	if err := l.enter(op); err != nil {
		return err
	}
	ds, err := l.dataset(op, h)
	if err != nil {
		return err
	}
	if len(names) != ds.ncol {
		return l.fail(op, errors.Newf("got %d feature names, dataset has %d features", len(names), ds.ncol))
	}
	ds.names = append([]string(nil), names...)
	return nil
}

func (l *GoLibrary) DatasetFree(h Handle) error {
	const op = OpDatasetFree
	if err := l.enter(op); err != nil {
		return err
	}
	if _, ok := l.datasets.del(h); !ok {
		return l.fail(op, errors.Newf("invalid dataset handle %d", h))
	}
	return nil
}

func (l *GoLibrary) BoosterCreate(train Handle, params string) (h Handle, err error) {
	const op = OpBoosterCreate
	defer errors.Recover(&err, op)
	if err := l.enter(op); err != nil {
		return 0, err
	}
	ds, err := l.dataset(op, train)
	if err != nil {
		return 0, err
	}
	b, err := newTrainingBooster(ds, params)
	if err != nil {
		return 0, l.fail(op, err)
	}
	return l.boosters.put(b), nil
}

func (l *GoLibrary) BoosterUpdateOneIter(h Handle, finished *int32) (err error) {
	const op = OpBoosterUpdateOneIter
	defer errors.Recover(&err, op)
	if err := l.enter(op); err != nil {
		return err
	}
	b, err := l.booster(op, h)
	if err != nil {
		return err
	}
	if l.forcedFinish >= 0 && len(b.trees) >= l.forcedFinish {
		*finished = 1
		return nil
	}
	done, err := b.trainOneIter()
	if err != nil {
		return l.fail(op, err)
	}
	*finished = 0
	if done {
		*finished = 1
	}
	return nil
}

func (l *GoLibrary) BoosterFree(h Handle) error {
	const op = OpBoosterFree
	if err := l.enter(op); err != nil {
		return err
	}
	if _, ok := l.boosters.del(h); !ok {
		return l.fail(op, errors.Newf("invalid booster handle %d", h))
	}
	return nil
}

func (l *GoLibrary) BoosterPredictForMat(h Handle, data []float32, nrow, ncol int32, rowMajor bool,
	predictType PredictType, startIteration, numIteration int, params string,
	outLen *int64, out []float64) (err error) {
	const op = OpBoosterPredictForMat
	defer errors.Recover(&err, op)
	if err := l.enter(op); err != nil {
		return err
	}
	b, err := l.booster(op, h)
	if err != nil {
		return err
	}
	if _, err := parseParams(params); err != nil {
		return l.fail(op, err)
	}
	if int(ncol) != b.numFeatures {
		return l.fail(op, errors.Newf("The number of features in data (%d) is not the same as it was in training data (%d)", ncol, b.numFeatures))
	}
	if len(data) != int(nrow)*int(ncol) {
		return l.fail(op, errors.Newf("data has %d values, expected %d", len(data), int(nrow)*int(ncol)))
	}

	values := make([]float64, len(data))
	for i, v := range data {
		values[i] = float64(v)
	}
	m := mat.NewDense(int(nrow), int(ncol), values)
	if !rowMajor {
		m = mat.DenseCopyOf(mat.NewDense(int(ncol), int(nrow), values).T())
	}

	n, err := b.predict(m, predictType, startIteration, numIteration, out)
	if err != nil {
		return l.fail(op, err)
	}
	*outLen = int64(n)
	return nil
}

func (l *GoLibrary) BoosterSaveModelToString(h Handle, startIteration, numIteration int, importance FeatureImportanceType) (s string, err error) {
	const op = OpBoosterSaveModelToString
	defer errors.Recover(&err, op)
	if err := l.enter(op); err != nil {
		return "", err
	}
	b, err := l.booster(op, h)
	if err != nil {
		return "", err
	}
	return b.modelText(startIteration, numIteration, importance), nil
}

func (l *GoLibrary) BoosterLoadModelFromString(model string) (h Handle, iters int, err error) {
	const op = OpBoosterLoadModelFromString
	defer errors.Recover(&err, op)
	if err := l.enter(op); err != nil {
		return 0, 0, err
	}
	b, err := parseModelText(model)
	if err != nil {
		return 0, 0, l.fail(op, err)
	}
	return l.boosters.put(b), len(b.trees), nil
}

func (l *GoLibrary) BoosterGetNumClasses(h Handle) (int, error) {
	const op = OpBoosterGetNumClasses
	if err := l.enter(op); err != nil {
		return 0, err
	}
	if _, err := l.booster(op, h); err != nil {
		return 0, err
	}
	return 1, nil
}

func (l *GoLibrary) BoosterGetNumFeature(h Handle) (int, error) {
	const op = OpBoosterGetNumFeature
	if err := l.enter(op); err != nil {
		return 0, err
	}
	b, err := l.booster(op, h)
	if err != nil {
		return 0, err
	}
	return b.numFeatures, nil
}

func (l *GoLibrary) BoosterGetCurrentIteration(h Handle) (int, error) {
	const op = OpBoosterGetCurrentIteration
	if err := l.enter(op); err != nil {
		return 0, err
	}
	b, err := l.booster(op, h)
	if err != nil {
		return 0, err
	}
	return len(b.trees), nil
}

func (l *GoLibrary) BoosterFeatureImportance(h Handle, numIteration int, importance FeatureImportanceType) ([]float64, error) {
	const op = OpBoosterFeatureImportance
	if err := l.enter(op); err != nil {
		return nil, err
	}
	b, err := l.booster(op, h)
	if err != nil {
		return nil, err
	}
	return b.featureImportance(numIteration, importance), nil
}

// Malloc hands out Go-owned memory tracked until Free.
func (l *GoLibrary) Malloc(size uintptr) (unsafe.Pointer, error) {
	if err := l.enter(OpMalloc); err != nil {
		return nil, err
	}
	if size == 0 {
		size = 1
	}
	// Back the block with uint64 words so 8-byte values are aligned.
	words := make([]uint64, (size+7)/8)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*8)
	h := l.allocs.put(buf)
	p := unsafe.Pointer(&buf[0])
	l.mu.Lock()
	l.ptrs[p] = h
	l.mu.Unlock()
	return p, nil
}

// Free releases p. Freeing an unknown pointer panics, like a double free
// would abort in C.
func (l *GoLibrary) Free(p unsafe.Pointer) {
	l.mu.Lock()
	h, ok := l.ptrs[p]
	delete(l.ptrs, p)
	l.mu.Unlock()
	if !ok {
		panic("capi: free of unknown or already freed pointer")
	}
	l.allocs.del(h)
}

var _ Library = (*GoLibrary)(nil)
