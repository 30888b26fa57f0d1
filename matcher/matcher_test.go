package matcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchkit/archivepatch/suffixarray"
)

func buildSA(t *testing.T, data []byte) []int32 {
	t.Helper()

	a, err := suffixarray.Build(context.Background(), data)
	require.NoError(t, err)
	t.Cleanup(a.Release)

	return a.SA()
}

func TestMatcher_FindsExactCopy(t *testing.T) {
	old := []byte("the quick brown fox jumps over the lazy dog")
	newb := []byte("the quick brown fox jumps over the lazy dog")

	m := New(buildSA(t, old), old, newb, 4)
	pos, newPos, length, ok, err := m.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, len(newb), newPos)
	require.Equal(t, 0, pos)
	require.Equal(t, len(old), length)
}

func TestMatcher_NoMatchOnUnrelatedInput(t *testing.T) {
	old := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	newb := []byte("completely unrelated byte content with no overlap")

	m := New(buildSA(t, old), old, newb, 16)

	count := 0
	for {
		_, _, _, ok, err := m.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
		if count > len(newb) {
			t.Fatal("matcher failed to terminate")
		}
	}
}

func TestMatcher_InsertedMiddleSection(t *testing.T) {
	old := []byte("AAAAAAAAAABBBBBBBBBBCCCCCCCCCC")
	newb := []byte("AAAAAAAAAAXXXXXBBBBBBBBBBCCCCCCCCCC")

	m := New(buildSA(t, old), old, newb, 4)

	var matches [][3]int
	for {
		pos, newPos, length, ok, err := m.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		matches = append(matches, [3]int{pos, newPos, length})
	}

	require.NotEmpty(t, matches)
	first := matches[0]
	require.Equal(t, 10, first[0])
	require.Equal(t, 15, first[1])
}

func TestMatcher_RespectsCancellation(t *testing.T) {
	old := []byte("some reasonably long piece of old content to search through")
	newb := []byte("some reasonably long piece of new content to search through")

	m := New(buildSA(t, old), old, newb, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, _, err := m.Next(ctx)
	require.Error(t, err)
}

func TestMatcher_EmptyOldProducesNoMatches(t *testing.T) {
	m := New(nil, nil, []byte("anything"), 4)

	// The one call that scans reports the end of newb with no match.
	_, newPos, length, ok, err := m.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, len("anything"), newPos)
	require.Equal(t, 0, length)

	_, _, _, ok, err = m.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}
