package drange

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRange_End(t *testing.T) {
	r := NewRange(10, 5)
	require.Equal(t, int64(15), r.End())
}

func TestRange_Empty(t *testing.T) {
	require.True(t, NewRange(10, 0).Empty())
	require.False(t, NewRange(10, 1).Empty())
}

func TestRange_Overlaps(t *testing.T) {
	a := NewRange(0, 10)
	b := NewRange(5, 10)
	c := NewRange(10, 10)

	require.True(t, a.Overlaps(b))
	require.True(t, b.Overlaps(a))
	require.False(t, a.Overlaps(c), "half-open ranges touching at the boundary do not overlap")
}

func TestRange_String(t *testing.T) {
	require.Equal(t, "[10,15)", NewRange(10, 5).String())
}

func TestTypedRange(t *testing.T) {
	tr := NewTypedRange(0, 100, "level9")
	require.Equal(t, int64(0), tr.Offset)
	require.Equal(t, int64(100), tr.Length)
	require.Equal(t, "level9", tr.Metadata)
}

func TestStrictlyOrdered(t *testing.T) {
	require.True(t, StrictlyOrdered(nil))
	require.True(t, StrictlyOrdered([]Range{NewRange(0, 10)}))
	require.True(t, StrictlyOrdered([]Range{NewRange(0, 10), NewRange(10, 5)}))

	require.False(t, StrictlyOrdered([]Range{NewRange(0, 10), NewRange(5, 5)}), "overlap must be rejected")
	require.False(t, StrictlyOrdered([]Range{NewRange(10, 5), NewRange(0, 10)}), "out of order must be rejected")
	require.False(t, StrictlyOrdered([]Range{NewRange(0, 10), NewRange(0, 10)}), "duplicate offset must be rejected")
}

func TestStrictlyOrderedTyped(t *testing.T) {
	ranges := []TypedRange[int]{
		NewTypedRange(0, 10, 1),
		NewTypedRange(10, 10, 2),
	}
	require.True(t, StrictlyOrderedTyped(ranges))

	overlapping := []TypedRange[int]{
		NewTypedRange(0, 10, 1),
		NewTypedRange(5, 10, 2),
	}
	require.False(t, StrictlyOrderedTyped(overlapping))
}
