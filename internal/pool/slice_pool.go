package pool

import "sync"

// int32SlicePool backs suffixarray's scratch arrays: the suffix array
// itself and the rank/bucket arrays used while constructing it.
// intSlicePool serves GetIntSlice, which no other package in this
// module calls; bsdiff allocates its own buffers. The pooled arrays are
// sized once per suffix sort and are large (O(n)), so pooling them
// avoids repeated multi-megabyte allocations when a process generates
// many patches in sequence.
var (
	int32SlicePool = sync.Pool{New: func() any { return &[]int32{} }}
	intSlicePool   = sync.Pool{New: func() any { return &[]int{} }}
)

// GetInt32Slice returns a []int32 of exactly length size, backed by a
// pooled array when one of sufficient capacity is available. The
// returned cleanup function must be called (typically via defer) to
// return the backing array to the pool.
func GetInt32Slice(size int) ([]int32, func()) {
	ptr, _ := int32SlicePool.Get().(*[]int32)
	s := (*ptr)[:0]
	if cap(s) < size {
		s = make([]int32, size)
	} else {
		s = s[:size]
	}
	*ptr = s

	return s, func() { int32SlicePool.Put(ptr) }
}

// GetIntSlice returns an []int of exactly length size; see GetInt32Slice.
func GetIntSlice(size int) ([]int, func()) {
	ptr, _ := intSlicePool.Get().(*[]int)
	s := (*ptr)[:0]
	if cap(s) < size {
		s = make([]int, size)
	} else {
		s = s[:size]
	}
	*ptr = s

	return s, func() { intSlicePool.Put(ptr) }
}
