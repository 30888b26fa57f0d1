package archivepatch

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchkit/archivepatch/bytesource"
)

type zipFile struct {
	name    string
	method  uint16
	content []byte
}

func buildZip(t *testing.T, files []zipFile) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.name, Method: f.method})
		require.NoError(t, err)
		_, err = w.Write(f.content)
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func TestGenerateApply_RoundTripsDeflateContentChange(t *testing.T) {
	oldContent := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 50)
	newContent := bytes.Repeat([]byte("the quick brown fox leaps over the lazy dog "), 50)

	oldData := buildZip(t, []zipFile{{name: "a.txt", method: zip.Deflate, content: oldContent}})
	newData := buildZip(t, []zipFile{{name: "a.txt", method: zip.Deflate, content: newContent}})

	g, err := NewGenerator()
	require.NoError(t, err)

	container, err := g.Generate(context.Background(), bytesource.NewMemory(oldData), bytesource.NewMemory(newData))
	require.NoError(t, err)
	require.Len(t, container.DeltaEntries, 2)

	got, err := Apply(oldData, container)
	require.NoError(t, err)
	require.Equal(t, newData, got)
}

func TestGenerateApply_RoundTripsMultipleEntries(t *testing.T) {
	oldData := buildZip(t, []zipFile{
		{name: "a.txt", method: zip.Deflate, content: bytes.Repeat([]byte("alpha content block "), 40)},
		{name: "b.bin", method: zip.Store, content: []byte("unchanged stored bytes")},
	})
	newData := buildZip(t, []zipFile{
		{name: "a.txt", method: zip.Deflate, content: bytes.Repeat([]byte("alpha CONTENT block "), 40)},
		{name: "b.bin", method: zip.Store, content: []byte("unchanged stored bytes")},
	})

	g, err := NewGenerator()
	require.NoError(t, err)

	container, err := g.Generate(context.Background(), bytesource.NewMemory(oldData), bytesource.NewMemory(newData))
	require.NoError(t, err)
	require.Len(t, container.DeltaEntries, 4)

	got, err := Apply(oldData, container)
	require.NoError(t, err)
	require.Equal(t, newData, got)
}

func TestGenerateApply_RoundTripsOrphanNewEntry(t *testing.T) {
	oldData := buildZip(t, []zipFile{
		{name: "a.txt", method: zip.Deflate, content: bytes.Repeat([]byte("alpha content "), 30)},
	})
	newData := buildZip(t, []zipFile{
		{name: "a.txt", method: zip.Deflate, content: bytes.Repeat([]byte("alpha content "), 30)},
		{name: "new.bin", method: zip.Store, content: []byte("brand new entry with no old counterpart")},
	})

	g, err := NewGenerator()
	require.NoError(t, err)

	container, err := g.Generate(context.Background(), bytesource.NewMemory(oldData), bytesource.NewMemory(newData))
	require.NoError(t, err)

	got, err := Apply(oldData, container)
	require.NoError(t, err)
	require.Equal(t, newData, got)
}

func TestGenerate_DeltaEntriesCoverNewBlobContiguously(t *testing.T) {
	oldData := buildZip(t, []zipFile{
		{name: "a.txt", method: zip.Deflate, content: bytes.Repeat([]byte("alpha content block "), 40)},
		{name: "b.bin", method: zip.Store, content: []byte("unchanged stored bytes")},
	})
	newData := buildZip(t, []zipFile{
		{name: "a.txt", method: zip.Deflate, content: bytes.Repeat([]byte("alpha CONTENT block "), 40)},
		{name: "b.bin", method: zip.Store, content: []byte("unchanged stored bytes")},
		{name: "c.bin", method: zip.Store, content: []byte("brand new trailing entry")},
	})

	g, err := NewGenerator()
	require.NoError(t, err)

	container, err := g.Generate(context.Background(), bytesource.NewMemory(oldData), bytesource.NewMemory(newData))
	require.NoError(t, err)
	require.NotEmpty(t, container.DeltaEntries)

	// NewBlobRanges must tile [0, newDFriendlySize) with no gaps and no
	// overlaps, in offset order: this is what lets a zip's data
	// descriptors and its central directory/EOCD tail, which fall
	// outside any single entry's own footprint, still get covered.
	var cursor int64
	for _, e := range container.DeltaEntries {
		require.Equal(t, cursor, e.NewBlobRange.Offset)
		cursor = e.NewBlobRange.End()
	}

	got, err := Apply(oldData, container)
	require.NoError(t, err)
	require.Equal(t, newData, got)
}

func TestGenerateApply_WithRecompressionBudgetDowngradesEntries(t *testing.T) {
	oldData := buildZip(t, []zipFile{
		{name: "a.bin", method: zip.Store, content: bytes.Repeat([]byte("uncompressed to compressed "), 200)},
	})
	newData := buildZip(t, []zipFile{
		{name: "a.bin", method: zip.Deflate, content: bytes.Repeat([]byte("uncompressed to compressed "), 200)},
	})

	g, err := NewGenerator(WithRecompressionBudget(1))
	require.NoError(t, err)

	container, err := g.Generate(context.Background(), bytesource.NewMemory(oldData), bytesource.NewMemory(newData))
	require.NoError(t, err)

	got, err := Apply(oldData, container)
	require.NoError(t, err)
	require.Equal(t, newData, got)
}
