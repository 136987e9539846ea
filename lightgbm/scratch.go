package lightgbm

import (
	"unsafe"

	"github.com/YuminosukeSato/lgbmgo/lightgbm/capi"
)

// scratch tracks native allocations made for one call. release frees each
// of them exactly once and is deferred right after the arena is created.
type scratch struct {
	lib   capi.Library
	ptrs  []unsafe.Pointer
	freed bool
}

func newScratch(lib capi.Library) *scratch {
	return &scratch{lib: lib}
}

func (s *scratch) alloc(size uintptr) (unsafe.Pointer, error) {
	p, err := s.lib.Malloc(size)
	if err != nil {
		return nil, err
	}
	s.ptrs = append(s.ptrs, p)
	return p, nil
}

func (s *scratch) int32() (*int32, error) {
	p, err := s.alloc(unsafe.Sizeof(int32(0)))
	if err != nil {
		return nil, err
	}
	v := (*int32)(p)
	*v = 0
	return v, nil
}

func (s *scratch) int64() (*int64, error) {
	p, err := s.alloc(unsafe.Sizeof(int64(0)))
	if err != nil {
		return nil, err
	}
	v := (*int64)(p)
	*v = 0
	return v, nil
}

func (s *scratch) float64s(n int) ([]float64, error) {
	if n <= 0 {
		n = 1
	}
	p, err := s.alloc(uintptr(n) * unsafe.Sizeof(float64(0)))
	if err != nil {
		return nil, err
	}
	out := unsafe.Slice((*float64)(p), n)
	clear(out)
	return out, nil
}

func (s *scratch) release() {
	if s.freed {
		return
	}
	s.freed = true
	for _, p := range s.ptrs {
		s.lib.Free(p)
	}
	s.ptrs = nil
}
