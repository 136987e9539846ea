// Standard attribute keys for the binding layer.
//
// Keys follow a hierarchical naming convention ("data.samples",
// "native.op") so log pipelines can filter on a prefix.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the component type, e.g. "Booster", "Dataset".
	ModelNameKey = "model.name"

	// EstimatorIDKey is the unique identifier of one Booster instance (a UUID).
	EstimatorIDKey = "estimator.id"

	// OperationKey is one of the Operation* values below.
	OperationKey = "ml.operation"

	// ComponentKey is set by GetLoggerWithName.
	ComponentKey = "ml.component"

	// PhaseKey indicates the lifecycle phase ("training", "inference").
	PhaseKey = "ml.phase"

	// BackendKey names the native collaborator in use ("native", "go").
	BackendKey = "lgbm.backend"
)

// Data shape.
const (
	// SamplesKey is the number of rows.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of feature columns.
	FeaturesKey = "data.features"

	// HasLabelsKey / HasWeightsKey report which optional fields a dataset carries.
	HasLabelsKey  = "data.has_labels"
	HasWeightsKey = "data.has_weights"

	// SourceKey is the file a buffer was loaded from.
	SourceKey = "data.source"
)

// Training and prediction.
const (
	// IterationKey records the boosting iteration index.
	IterationKey = "training.iteration"

	// IterationsKey records the iteration budget or the count actually run.
	IterationsKey = "training.iterations"

	// EarlyStopKey is true when the collaborator reported "finished" before the budget ran out.
	EarlyStopKey = "training.early_stop"

	// ParamsKey carries the encoded parameter string.
	ParamsKey = "training.params"

	// PredsKey is the number of predictions returned.
	PredsKey = "preds.count"

	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"
)

// Native resource context.
const (
	// NativeOpKey names the C API entry point, e.g. "LGBM_DatasetCreateFromMat".
	NativeOpKey = "native.op"

	// HandleKey is the opaque handle value of a dataset or booster.
	HandleKey = "native.handle"
)

// Error context.
const (
	// ErrorCodeKey provides a structured error code, one of the Error* values below.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey is the Go type of the error.
	ErrorTypeKey = "error.type"
)

// Standard attribute values.
const (
	OperationBind    = "bind"
	OperationTrain   = "train"
	OperationPredict = "predict"
	OperationSave    = "save"
	OperationLoad    = "load"
	OperationClose   = "close"

	PhaseTraining  = "training"
	PhaseInference = "inference"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorInvalidInput      = "INVALID_INPUT"
	ErrorNative            = "NATIVE_FAILURE"
)
