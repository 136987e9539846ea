// Package lightgbm binds Go programs to the LightGBM C API.
//
// A TabularBuffer holds validated float32 features with optional labels,
// weights and feature names. A Dataset lazily turns a buffer into a native
// dataset handle the first time a Booster trains on it. A Booster encodes
// its parameters once, trains for a fixed iteration budget (stopping early
// when the library reports that no split is possible), predicts, and
// serialises to and from LightGBM's text model format.
//
// The native side is a capi.Library. capi.Load selects it once per process:
// the cgo backend when the module is built with the lightgbm tag and
// libLightGBM is linked, otherwise the in-process Go engine. Tests pass a
// capi.GoLibrary through WithLibrary to inject faults and count calls.
//
//	buf, err := lightgbm.NewTabularBuffer(rows, names, labels, nil)
//	if err != nil {
//		return err
//	}
//	ds, _ := lightgbm.NewDataset(buf)
//	defer ds.Close()
//
//	params := lightgbm.NewParams().
//		SetString("objective", "binary").
//		SetInt("num_class", 1)
//	b, _ := lightgbm.NewBooster(32, params)
//	defer b.Close()
//	if err := b.Train(ds); err != nil {
//		return err
//	}
//	scores, err := b.Predict(test)
//
// Datasets and Boosters are not safe for concurrent use. Close releases the
// native handle; a finalizer frees it if Close is never called.
package lightgbm
