// Package lgbmgo is the root of the lgbmgo module, a Go binding layer over
// the LightGBM C API.
//
// The packages are:
//
//   - lightgbm: tabular buffers, datasets, boosters and training parameters
//   - lightgbm/capi: the Library contract, the native cgo backend and an
//     in-process Go backend selected through LGBM_BACKEND
//   - dataio: CSV, Parquet and Arrow loaders producing tabular buffers
//   - metrics: evaluation metrics for binary and regression scores
//   - pkg/errors, pkg/log, pkg/envconfig: error types, structured logging
//     and environment configuration shared by the packages above
//
// The lgbm command in cmd/lgbm exposes training, prediction, evaluation and
// feature importance from the shell.
package lgbmgo
