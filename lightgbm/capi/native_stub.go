//go:build !cgo || !lightgbm

package capi

// Native reports ErrNotBuilt; the cgo backend needs -tags lightgbm.
func Native() (Library, error) {
	return nil, ErrNotBuilt
}
