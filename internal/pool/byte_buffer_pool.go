// Package pool provides sync.Pool-backed reuse of scratch buffers that
// archivepatch's hot paths (TempBlob staging, suffix array construction)
// allocate and discard constantly.
package pool

import (
	"io"
	"sync"
)

// Default and maximum sizes for the staging buffer pool. StagingDefaultSize
// matches the smallest ZIP entries archivepatch typically uncompresses
// inline; StagingMaxThreshold caps what Put will retain so one huge blob
// doesn't pin gigabytes of memory in the pool forever.
const (
	StagingDefaultSize  = 1024 * 64         // 64KiB
	StagingMaxThreshold = 1024 * 1024 * 512 // 512MiB
)

// ByteBuffer is a growable byte slice with a geometric growth policy
// tuned to avoid repeated reallocation for the multi-megabyte blobs
// archivepatch stages in memory before a TempBlob spills to disk.
type ByteBuffer struct {
	B []byte
}

// NewByteBuffer creates a ByteBuffer with the given starting capacity.
func NewByteBuffer(capacity int) *ByteBuffer {
	return &ByteBuffer{B: make([]byte, 0, capacity)}
}

// Bytes returns the buffer's current contents.
func (bb *ByteBuffer) Bytes() []byte { return bb.B }

// Len returns the number of bytes written so far.
func (bb *ByteBuffer) Len() int { return len(bb.B) }

// Cap returns the buffer's current capacity.
func (bb *ByteBuffer) Cap() int { return cap(bb.B) }

// Reset empties the buffer while retaining its backing array.
func (bb *ByteBuffer) Reset() { bb.B = bb.B[:0] }

// Grow ensures at least requiredBytes of spare capacity exist beyond the
// buffer's current length, growing by a fixed step for small buffers and
// by 25% of capacity for large ones to balance allocation count against
// wasted headroom.
func (bb *ByteBuffer) Grow(requiredBytes int) {
	if cap(bb.B)-len(bb.B) >= requiredBytes {
		return
	}

	growBy := StagingDefaultSize
	if cap(bb.B) > 4*StagingDefaultSize {
		growBy = cap(bb.B) / 4
	}
	if growBy < requiredBytes {
		growBy = requiredBytes
	}

	next := make([]byte, len(bb.B), len(bb.B)+growBy)
	copy(next, bb.B)
	bb.B = next
}

// Write appends data to the buffer, growing it as needed. It always
// returns len(data), nil: ByteBuffer never refuses a write.
func (bb *ByteBuffer) Write(data []byte) (int, error) {
	bb.Grow(len(data))
	bb.B = append(bb.B, data...)

	return len(data), nil
}

// WriteTo streams the buffer's contents to w.
func (bb *ByteBuffer) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(bb.B)
	return int64(n), err
}

// ByteBufferPool pools ByteBuffers of a common starting size, discarding
// ones that grew past maxThreshold rather than returning them to the pool.
type ByteBufferPool struct {
	pool         sync.Pool
	maxThreshold int
}

// NewByteBufferPool creates a pool whose buffers start at defaultSize and
// are discarded (not pooled) once they exceed maxThreshold in capacity.
func NewByteBufferPool(defaultSize, maxThreshold int) *ByteBufferPool {
	return &ByteBufferPool{
		pool:         sync.Pool{New: func() any { return NewByteBuffer(defaultSize) }},
		maxThreshold: maxThreshold,
	}
}

// Get retrieves a ByteBuffer from the pool, allocating one if empty.
func (p *ByteBufferPool) Get() *ByteBuffer {
	bb, _ := p.pool.Get().(*ByteBuffer)
	return bb
}

// Put returns bb to the pool after resetting it, unless it grew beyond
// maxThreshold, in which case it is left for the garbage collector.
func (p *ByteBufferPool) Put(bb *ByteBuffer) {
	if bb == nil {
		return
	}
	if p.maxThreshold > 0 && cap(bb.B) > p.maxThreshold {
		return
	}
	bb.Reset()
	p.pool.Put(bb)
}

// staging is the process-wide pool backing tempblob's in-memory stage.
var staging = NewByteBufferPool(StagingDefaultSize, StagingMaxThreshold)

// GetStagingBuffer retrieves a ByteBuffer from the shared staging pool.
func GetStagingBuffer() *ByteBuffer { return staging.Get() }

// PutStagingBuffer returns a ByteBuffer to the shared staging pool.
func PutStagingBuffer(bb *ByteBuffer) { staging.Put(bb) }
