package pool

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteBuffer_WriteAndGrow(t *testing.T) {
	bb := NewByteBuffer(4)

	n, err := bb.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(bb.Bytes()))
	require.Equal(t, 5, bb.Len())
	require.GreaterOrEqual(t, bb.Cap(), 5)
}

func TestByteBuffer_Reset(t *testing.T) {
	bb := NewByteBuffer(16)
	_, _ = bb.Write([]byte("data"))
	capBefore := bb.Cap()

	bb.Reset()

	require.Equal(t, 0, bb.Len())
	require.Equal(t, capBefore, bb.Cap())
}

func TestByteBuffer_GrowIsIdempotentWhenCapacitySufficient(t *testing.T) {
	bb := NewByteBuffer(1024)
	before := bb.Cap()

	bb.Grow(10)

	require.Equal(t, before, bb.Cap())
}

func TestByteBuffer_GrowUsesQuarterStepForLargeBuffers(t *testing.T) {
	bb := NewByteBuffer(8 * StagingDefaultSize)
	bb.B = bb.B[:cap(bb.B)] // pretend it's full
	before := cap(bb.B)

	bb.Grow(1)

	require.Greater(t, cap(bb.B), before)
}

func TestByteBuffer_WriteTo(t *testing.T) {
	bb := NewByteBuffer(8)
	_, _ = bb.Write([]byte("payload"))

	var dst bytes.Buffer
	n, err := bb.WriteTo(&dst)
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
	require.Equal(t, "payload", dst.String())
}

func TestByteBufferPool_GetPutReuse(t *testing.T) {
	p := NewByteBufferPool(64, 1024)

	bb := p.Get()
	_, _ = bb.Write(bytes.Repeat([]byte{1}, 32))
	p.Put(bb)

	bb2 := p.Get()
	require.Equal(t, 0, bb2.Len(), "Put should have reset the buffer")
}

func TestByteBufferPool_DiscardsOversizedBuffers(t *testing.T) {
	p := NewByteBufferPool(16, 32)

	bb := p.Get()
	bb.Grow(1024)
	_, _ = bb.Write(bytes.Repeat([]byte{1}, 1024))

	// Must not panic, and the oversized buffer is simply dropped.
	p.Put(bb)
}

func TestByteBufferPool_PutNilIsNoOp(t *testing.T) {
	p := NewByteBufferPool(16, 32)
	p.Put(nil)
}

func TestStagingBufferPool(t *testing.T) {
	bb := GetStagingBuffer()
	require.NotNil(t, bb)

	_, _ = bb.Write([]byte("staged"))
	PutStagingBuffer(bb)

	bb2 := GetStagingBuffer()
	require.Equal(t, 0, bb2.Len())
	PutStagingBuffer(bb2)
}
