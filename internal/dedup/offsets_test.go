package dedup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewOffsetTracker(t *testing.T) {
	tr := NewOffsetTracker()

	require.NotNil(t, tr)
	require.Equal(t, 0, tr.Count())
}

func TestOffsetTracker_ClaimFirstTimeSucceeds(t *testing.T) {
	tr := NewOffsetTracker()

	require.True(t, tr.Claim(100))
	require.Equal(t, 1, tr.Count())
}

func TestOffsetTracker_ClaimSameOffsetTwiceFails(t *testing.T) {
	tr := NewOffsetTracker()

	require.True(t, tr.Claim(100))
	require.False(t, tr.Claim(100), "clone-and-recompress must not duplicate the old range")
	require.Equal(t, 1, tr.Count())
}

func TestOffsetTracker_DistinctOffsetsAllClaim(t *testing.T) {
	tr := NewOffsetTracker()

	require.True(t, tr.Claim(0))
	require.True(t, tr.Claim(128))
	require.True(t, tr.Claim(4096))
	require.Equal(t, 3, tr.Count())
}

func TestOffsetTracker_Reset(t *testing.T) {
	tr := NewOffsetTracker()
	tr.Claim(1)
	tr.Claim(2)
	require.Equal(t, 2, tr.Count())

	tr.Reset()

	require.Equal(t, 0, tr.Count())
	require.True(t, tr.Claim(1), "offset should be claimable again after Reset")
}
