package lightgbm

import (
	"github.com/YuminosukeSato/lgbmgo/lightgbm/capi"
	"github.com/YuminosukeSato/lgbmgo/pkg/log"
)

type options struct {
	lib    capi.Library
	logger log.Logger
}

// Option configures a Dataset or Booster.
type Option func(*options)

// WithLibrary uses lib instead of the process-wide library from capi.Load.
func WithLibrary(lib capi.Library) Option {
	return func(o *options) { o.lib = lib }
}

// WithLogger replaces the component logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

func resolveOptions(component string, opts []Option) (options, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.lib == nil {
		lib, err := capi.Load()
		if err != nil {
			return o, err
		}
		o.lib = lib
	}
	if o.logger == nil {
		o.logger = log.GetLoggerWithName(component)
	}
	o.logger = o.logger.With(log.BackendKey, o.lib.Name())
	return o, nil
}
