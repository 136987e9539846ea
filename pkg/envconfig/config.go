// Package envconfig reads the LGBM_* environment variables.
//
// Every accessor reads the environment on each call so tests can use
// t.Setenv. Invalid values are reported through pkg/log and replaced by the
// documented default.
package envconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/lgbmgo/pkg/log"
)

// Backend values accepted by LGBM_BACKEND.
const (
	BackendAuto   = "auto"
	BackendNative = "native"
	BackendGo     = "go"
)

// Backend selects the native collaborator: "native" requires a binary built
// with -tags lightgbm, "go" forces the in-process engine and "auto" (default)
// prefers native when available.
func Backend() string {
	switch s := strings.ToLower(Var("LGBM_BACKEND")); s {
	case "":
		return BackendAuto
	case BackendAuto, BackendNative, BackendGo:
		return s
	default:
		log.GetLogger().Warn("invalid environment variable, using default", "key", "LGBM_BACKEND", "value", s, "default", BackendAuto)
		return BackendAuto
	}
}

// LogLevel returns LGBM_LOG_LEVEL, falling back to info. LGBM_DEBUG=1 forces debug.
func LogLevel() log.Level {
	if Debug() {
		return log.LevelDebug
	}
	s := Var("LGBM_LOG_LEVEL")
	level, err := log.ParseLevel(s)
	if err != nil {
		log.GetLogger().Warn("invalid environment variable, using default", "key", "LGBM_LOG_LEVEL", "value", s, "default", "info")
	}
	return level
}

// LogFormat returns LGBM_LOG_FORMAT: console (default), json or cloud.
func LogFormat() string {
	switch s := strings.ToLower(Var("LGBM_LOG_FORMAT")); s {
	case "", "console":
		return "console"
	case "json", "cloud":
		return s
	default:
		log.GetLogger().Warn("invalid environment variable, using default", "key", "LGBM_LOG_FORMAT", "value", s, "default", "console")
		return "console"
	}
}

var (
	// Debug enables debug logging regardless of LGBM_LOG_LEVEL.
	Debug = Bool("LGBM_DEBUG")
	// NumThreads is passed to the library as num_threads when non-zero.
	NumThreads = Uint("LGBM_NUM_THREADS", 0)
)

// Bool returns a reader for a boolean variable. Any non-empty value that
// does not parse as a bool counts as true.
func Bool(k string) func() bool {
	return func() bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return false
	}
}

// Uint returns a reader for an unsigned integer variable.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				log.GetLogger().Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Var returns the trimmed value of key with surrounding quotes removed.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap lists every supported variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"LGBM_BACKEND":     {"LGBM_BACKEND", Backend(), "Collaborator backend: auto, native or go (default auto)"},
		"LGBM_LOG_LEVEL":   {"LGBM_LOG_LEVEL", LogLevel(), "Minimum log level: debug, info, warn, error (default info)"},
		"LGBM_LOG_FORMAT":  {"LGBM_LOG_FORMAT", LogFormat(), "Log encoding: console, json or cloud (default console)"},
		"LGBM_DEBUG":       {"LGBM_DEBUG", Debug(), "Show additional debug information (e.g. LGBM_DEBUG=1)"},
		"LGBM_NUM_THREADS": {"LGBM_NUM_THREADS", NumThreads(), "num_threads passed to the library, 0 keeps its default"},
	}
}

// Values returns AsMap rendered as strings.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
