package envconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/YuminosukeSato/lgbmgo/pkg/log"
)

func TestBackend(t *testing.T) {
	cases := map[string]string{
		"":         BackendAuto,
		"native":   BackendNative,
		" GO ":     BackendGo,
		"'auto'":   BackendAuto,
		"tensorrt": BackendAuto,
	}
	for v, want := range cases {
		t.Run(v, func(t *testing.T) {
			t.Setenv("LGBM_BACKEND", v)
			assert.Equal(t, want, Backend())
		})
	}
}

func TestLogLevel(t *testing.T) {
	t.Setenv("LGBM_DEBUG", "")
	t.Setenv("LGBM_LOG_LEVEL", "warn")
	assert.Equal(t, log.LevelWarn, LogLevel())

	t.Setenv("LGBM_LOG_LEVEL", "chatty")
	assert.Equal(t, log.LevelInfo, LogLevel())

	t.Setenv("LGBM_DEBUG", "1")
	assert.Equal(t, log.LevelDebug, LogLevel())
}

func TestNumThreads(t *testing.T) {
	t.Setenv("LGBM_NUM_THREADS", "")
	assert.Equal(t, uint(0), NumThreads())

	t.Setenv("LGBM_NUM_THREADS", "4")
	assert.Equal(t, uint(4), NumThreads())

	t.Setenv("LGBM_NUM_THREADS", "-1")
	assert.Equal(t, uint(0), NumThreads())
}

func TestAsMap(t *testing.T) {
	t.Setenv("LGBM_BACKEND", "go")
	m := AsMap()
	assert.Len(t, m, 5)
	assert.Equal(t, "go", Values()["LGBM_BACKEND"])
}
