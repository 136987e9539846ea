package lightgbm

import (
	"runtime"

	"github.com/YuminosukeSato/lgbmgo/lightgbm/capi"
	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
	"github.com/YuminosukeSato/lgbmgo/pkg/log"
)

// DatasetState is the lifecycle state of a Dataset.
type DatasetState int

const (
	// Unbound: no native dataset exists yet.
	Unbound DatasetState = iota
	// Bound: a native dataset handle is live.
	Bound
	// Closed: the native handle was freed. Bind may create a new one.
	Closed
)

func (s DatasetState) String() string {
	switch s {
	case Bound:
		return "Bound"
	case Closed:
		return "Closed"
	default:
		return "Unbound"
	}
}

// DataRef is what a Dataset hands out: the native handle for training, or a
// copy of the raw features for prediction.
type DataRef struct {
	Handle   capi.Handle
	Features []float32
}

// Dataset owns a TabularBuffer and at most one native dataset handle built
// from it. A Dataset is not safe for concurrent use.
type Dataset struct {
	buf    *TabularBuffer
	lib    capi.Library
	logger log.Logger

	handle capi.Handle
	params string
	state  DatasetState
}

// NewDataset wraps buf. No native call is made until Bind.
func NewDataset(buf *TabularBuffer, opts ...Option) (*Dataset, error) {
	if buf == nil {
		return nil, errors.NewValidationError("buf", "must not be nil", nil)
	}
	o, err := resolveOptions("lightgbm.dataset", opts)
	if err != nil {
		return nil, err
	}
	return &Dataset{
		buf: buf,
		lib: o.lib,
		logger: o.logger.With(
			log.ModelNameKey, "Dataset",
			log.SamplesKey, buf.NumInstances(),
			log.FeaturesKey, buf.NumFeatures(),
		),
	}, nil
}

func (d *Dataset) State() DatasetState    { return d.state }
func (d *Dataset) NumInstances() int      { return d.buf.NumInstances() }
func (d *Dataset) NumFeatures() int       { return d.buf.NumFeatures() }
func (d *Dataset) Buffer() *TabularBuffer { return d.buf }
func (d *Dataset) Handle() capi.Handle    { return d.handle }
func (d *Dataset) Library() capi.Library  { return d.lib }
func (d *Dataset) features() []float32    { return d.buf.features }
func (d *Dataset) Features() []float32    { return d.buf.Features() }

// DataHandle returns the native handle (binding it with params if needed)
// when includeLabels is set, and only the raw features otherwise. Features
// is a copy; writing to it does not change the buffer.
func (d *Dataset) DataHandle(params string, includeLabels bool) (DataRef, error) {
	if !includeLabels {
		return DataRef{Features: d.Features()}, nil
	}
	h, err := d.Bind(params)
	if err != nil {
		return DataRef{}, err
	}
	return DataRef{Handle: h, Features: d.Features()}, nil
}

// Bind creates the native dataset and attaches labels, weights and feature
// names. It returns the existing handle when already bound. If attaching a
// field fails the new handle is freed before the error is returned.
func (d *Dataset) Bind(params string) (capi.Handle, error) {
	if d.state == Bound {
		if params != d.params {
			d.logger.Debug("Dataset already bound, ignoring new parameters",
				log.ParamsKey, params,
				"bound_params", d.params,
			)
		}
		return d.handle, nil
	}

	buf := d.buf
	h, err := d.lib.DatasetCreateFromMat(buf.features, int32(buf.numInstances), int32(buf.numFeatures), true, params)
	if err != nil {
		return 0, errors.NewDatasetCreationError(capi.OpDatasetCreateFromMat, err)
	}

	if err := d.attach(h); err != nil {
		if ferr := d.lib.DatasetFree(h); ferr != nil {
			d.logger.Warn("Failed to free dataset after bind failure", ferr, log.HandleKey, uint64(h))
		}
		return 0, err
	}

	d.handle = h
	d.params = params
	d.state = Bound
	runtime.SetFinalizer(d, (*Dataset).finalize)
	d.logger.Debug("Dataset bound",
		log.OperationKey, log.OperationBind,
		log.HandleKey, uint64(h),
		log.HasLabelsKey, buf.HasLabels(),
		log.HasWeightsKey, buf.HasWeights(),
	)
	return h, nil
}

func (d *Dataset) attach(h capi.Handle) error {
	buf := d.buf
	if buf.labels != nil {
		if err := d.lib.DatasetSetField(h, "label", buf.labels); err != nil {
			return errors.NewDatasetCreationError(capi.OpDatasetSetField, err)
		}
	}
	if buf.weights != nil {
		if err := d.lib.DatasetSetField(h, "weight", buf.weights); err != nil {
			return errors.NewDatasetCreationError(capi.OpDatasetSetField, err)
		}
	}
	if err := d.lib.DatasetSetFeatureNames(h, buf.names); err != nil {
		return errors.NewDatasetCreationError(capi.OpDatasetSetFeatureNames, err)
	}
	return nil
}

// Close frees the native dataset. It is a no-op when nothing is bound, so it
// may be called any number of times. The buffer stays usable.
func (d *Dataset) Close() error {
	if d.state != Bound {
		return nil
	}
	h := d.handle
	d.handle = 0
	d.state = Closed
	runtime.SetFinalizer(d, nil)
	if err := d.lib.DatasetFree(h); err != nil {
		return errors.Wrap(err, capi.OpDatasetFree)
	}
	d.logger.Debug("Dataset freed", log.OperationKey, log.OperationClose, log.HandleKey, uint64(h))
	return nil
}

func (d *Dataset) finalize() {
	if d.state == Bound {
		_ = d.lib.DatasetFree(d.handle)
	}
}
