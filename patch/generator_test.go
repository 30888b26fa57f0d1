package patch

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchkit/archivepatch/bsdiff"
	"github.com/patchkit/archivepatch/bytesource"
)

var errPipelineFailed = errors.New("pipeline failed")

func TestBSDIFFGenerator_GenerateProducesApplicableDelta(t *testing.T) {
	old := []byte("the quick brown fox jumps over the lazy dog")
	newb := []byte("the quick brown fox leaps over the lazy dog")

	g := BSDIFFGenerator{MinLength: 8}
	require.Equal(t, uint8(FormatBSDIFF), g.Format())

	delta, err := g.Generate(context.Background(), old, newb)
	require.NoError(t, err)

	got, err := bsdiff.Apply(old, bytes.NewReader(delta))
	require.NoError(t, err)
	require.Equal(t, newb, got)
}

func TestBSDIFFGenerator_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := BSDIFFGenerator{MinLength: 8}
	_, err := g.Generate(ctx, []byte("old content"), []byte("new content"))
	require.Error(t, err)
}

func TestFileByFileGenerator_WrapsNestedContainer(t *testing.T) {
	nested := sampleContainer()

	g := FileByFileGenerator{
		Pipeline: func(ctx context.Context, old, newb bytesource.Source) (*Container, error) {
			return nested, nil
		},
	}
	require.Equal(t, uint8(FormatFileByFile), g.Format())

	out, err := g.Generate(context.Background(), []byte("old archive bytes"), []byte("new archive bytes"))
	require.NoError(t, err)

	got, err := Read(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, nested.OldDFriendlySize, got.OldDFriendlySize)
	require.Len(t, got.DeltaEntries, len(nested.DeltaEntries))
}

func TestFileByFileGenerator_PropagatesPipelineError(t *testing.T) {
	g := FileByFileGenerator{
		Pipeline: func(ctx context.Context, old, newb bytesource.Source) (*Container, error) {
			return nil, errPipelineFailed
		},
	}

	_, err := g.Generate(context.Background(), []byte("old"), []byte("new"))
	require.ErrorIs(t, err, errPipelineFailed)
}
