package prediff

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchkit/archivepatch/bytesource"
	"github.com/patchkit/archivepatch/zipentry"
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

func readEntries(t *testing.T, data []byte) (bytesource.Source, []zipentry.Entry) {
	t.Helper()

	src := bytesource.NewMemory(data)
	entries, err := zipentry.Read(src)
	require.NoError(t, err)

	return src, entries
}

func TestPlan_UnchangedDeflateEntryIsNeitherIdentical(t *testing.T) {
	content := bytes.Repeat([]byte("unchanged payload data "), 100)
	oldData := buildZip(t, []zipFile{{name: "a.txt", method: zip.Deflate, content: content}})
	newData := buildZip(t, []zipFile{{name: "a.txt", method: zip.Deflate, content: content}})

	oldSrc, oldEntries := readEntries(t, oldData)
	newSrc, newEntries := readEntries(t, newData)

	p, err := NewPlanner()
	require.NoError(t, err)

	plan, err := p.Plan(oldSrc, newSrc, oldEntries, newEntries)
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)

	e := plan.Entries[0]
	require.True(t, e.HasOld)
	require.Equal(t, Neither, e.UncompressionOption)
	require.Equal(t, CompressedBytesIdentical, e.UncompressionOptionExplanation)
	require.Empty(t, plan.OldUncompressRanges)
	require.Empty(t, plan.NewUncompressRanges)
}

func TestPlan_ChangedDeflateContentUncompressesBothSides(t *testing.T) {
	oldContent := bytes.Repeat([]byte("version one payload data "), 100)
	newContent := bytes.Repeat([]byte("version two payload data!"), 100)

	oldData := buildZip(t, []zipFile{{name: "a.txt", method: zip.Deflate, content: oldContent}})
	newData := buildZip(t, []zipFile{{name: "a.txt", method: zip.Deflate, content: newContent}})

	oldSrc, oldEntries := readEntries(t, oldData)
	newSrc, newEntries := readEntries(t, newData)

	p, err := NewPlanner()
	require.NoError(t, err)

	plan, err := p.Plan(oldSrc, newSrc, oldEntries, newEntries)
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)

	e := plan.Entries[0]
	require.Equal(t, Both, e.UncompressionOption)
	require.Equal(t, CompressedBytesChanged, e.UncompressionOptionExplanation)
	require.Len(t, plan.OldUncompressRanges, 1)
	require.Len(t, plan.NewUncompressRanges, 1)
	require.Len(t, plan.NewRecompressRanges, 1)
}

func TestPlan_DeflateChangedToStoredUncompressesOldOnly(t *testing.T) {
	content := bytes.Repeat([]byte("identical bytes across both sides "), 80)

	oldData := buildZip(t, []zipFile{{name: "a.txt", method: zip.Deflate, content: content}})
	newData := buildZip(t, []zipFile{{name: "a.txt", method: zip.Store, content: content}})

	oldSrc, oldEntries := readEntries(t, oldData)
	newSrc, newEntries := readEntries(t, newData)

	p, err := NewPlanner()
	require.NoError(t, err)

	plan, err := p.Plan(oldSrc, newSrc, oldEntries, newEntries)
	require.NoError(t, err)

	e := plan.Entries[0]
	require.Equal(t, Old, e.UncompressionOption)
	require.Equal(t, CompressedChangedToUncompressed, e.UncompressionOptionExplanation)
	require.Len(t, plan.OldUncompressRanges, 1)
	require.Empty(t, plan.NewUncompressRanges)
}

func TestPlan_StoredChangedToDeflateUncompressesNewOnly(t *testing.T) {
	content := bytes.Repeat([]byte("identical bytes across both sides "), 80)

	oldData := buildZip(t, []zipFile{{name: "a.txt", method: zip.Store, content: content}})
	newData := buildZip(t, []zipFile{{name: "a.txt", method: zip.Deflate, content: content}})

	oldSrc, oldEntries := readEntries(t, oldData)
	newSrc, newEntries := readEntries(t, newData)

	p, err := NewPlanner()
	require.NoError(t, err)

	plan, err := p.Plan(oldSrc, newSrc, oldEntries, newEntries)
	require.NoError(t, err)

	e := plan.Entries[0]
	require.Equal(t, New, e.UncompressionOption)
	require.Equal(t, UncompressedChangedToCompressed, e.UncompressionOptionExplanation)
	require.Empty(t, plan.OldUncompressRanges)
	require.Len(t, plan.NewUncompressRanges, 1)
}

func TestPlan_BothStoredIsNeitherBothUncompressed(t *testing.T) {
	oldData := buildZip(t, []zipFile{{name: "a.txt", method: zip.Store, content: []byte("old")}})
	newData := buildZip(t, []zipFile{{name: "a.txt", method: zip.Store, content: []byte("new!")}})

	oldSrc, oldEntries := readEntries(t, oldData)
	newSrc, newEntries := readEntries(t, newData)

	p, err := NewPlanner()
	require.NoError(t, err)

	plan, err := p.Plan(oldSrc, newSrc, oldEntries, newEntries)
	require.NoError(t, err)

	e := plan.Entries[0]
	require.Equal(t, Neither, e.UncompressionOption)
	require.Equal(t, BothEntriesUncompressed, e.UncompressionOptionExplanation)
}

func TestPlan_OrphanNewEntryHasNoOld(t *testing.T) {
	oldData := buildZip(t, []zipFile{{name: "a.txt", method: zip.Store, content: []byte("old")}})
	newData := buildZip(t, []zipFile{
		{name: "a.txt", method: zip.Store, content: []byte("old")},
		{name: "b.txt", method: zip.Store, content: []byte("brand new file")},
	})

	oldSrc, oldEntries := readEntries(t, oldData)
	newSrc, newEntries := readEntries(t, newData)

	p, err := NewPlanner()
	require.NoError(t, err)

	plan, err := p.Plan(oldSrc, newSrc, oldEntries, newEntries)
	require.NoError(t, err)
	require.Len(t, plan.Entries, 2)

	var orphan PlanEntry
	for _, e := range plan.Entries {
		if e.New.DecodedName() == "b.txt" {
			orphan = e
		}
	}
	require.False(t, orphan.HasOld)
	require.Equal(t, BSDIFF, orphan.DeltaFormat)
}

func TestPlan_RenameDetectedByCRC(t *testing.T) {
	content := bytes.Repeat([]byte("same bytes under a new filename "), 40)

	oldData := buildZip(t, []zipFile{{name: "old-name.txt", method: zip.Store, content: content}})
	newData := buildZip(t, []zipFile{{name: "new-name.txt", method: zip.Store, content: content}})

	oldSrc, oldEntries := readEntries(t, oldData)
	newSrc, newEntries := readEntries(t, newData)

	p, err := NewPlanner()
	require.NoError(t, err)

	plan, err := p.Plan(oldSrc, newSrc, oldEntries, newEntries)
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)
	require.True(t, plan.Entries[0].HasOld)
	require.Equal(t, "old-name.txt", plan.Entries[0].Old.DecodedName())
}

func TestPlan_CloneAndRecompressDedupesOldRange(t *testing.T) {
	content := bytes.Repeat([]byte("shared source content for two new files "), 50)

	oldData := buildZip(t, []zipFile{{name: "shared.txt", method: zip.Deflate, content: content}})
	newData := buildZip(t, []zipFile{
		{name: "shared.txt", method: zip.Store, content: content},
		{name: "shared-copy.txt", method: zip.Store, content: content},
	})

	oldSrc, oldEntries := readEntries(t, oldData)
	newSrc, newEntries := readEntries(t, newData)

	p, err := NewPlanner()
	require.NoError(t, err)

	plan, err := p.Plan(oldSrc, newSrc, oldEntries, newEntries)
	require.NoError(t, err)
	require.Len(t, plan.Entries, 2)

	// Both new entries pair against the single old entry, but it must
	// appear in the old-uncompress range list only once.
	require.Len(t, plan.OldUncompressRanges, 1)
}

func TestPlan_NestedArchiveDetectedAsFileByFile(t *testing.T) {
	innerOld := buildZip(t, []zipFile{{name: "inner.txt", method: zip.Store, content: []byte("v1")}})
	innerNew := buildZip(t, []zipFile{{name: "inner.txt", method: zip.Store, content: []byte("v2")}})

	oldData := buildZip(t, []zipFile{{name: "nested.zip", method: zip.Store, content: innerOld}})
	newData := buildZip(t, []zipFile{{name: "nested.zip", method: zip.Store, content: innerNew}})

	oldSrc, oldEntries := readEntries(t, oldData)
	newSrc, newEntries := readEntries(t, newData)

	p, err := NewPlanner()
	require.NoError(t, err)

	plan, err := p.Plan(oldSrc, newSrc, oldEntries, newEntries)
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)
	require.Equal(t, FileByFile, plan.Entries[0].DeltaFormat)
}

func TestPlan_RangeListsAreOffsetOrdered(t *testing.T) {
	files := []zipFile{
		{name: "z.txt", method: zip.Deflate, content: bytes.Repeat([]byte("z content "), 60)},
		{name: "a.txt", method: zip.Deflate, content: bytes.Repeat([]byte("a content "), 60)},
		{name: "m.txt", method: zip.Deflate, content: bytes.Repeat([]byte("m content "), 60)},
	}
	oldData := buildZip(t, files)

	changed := make([]zipFile, len(files))
	for i, f := range files {
		changed[i] = zipFile{name: f.name, method: f.method, content: append(append([]byte{}, f.content...), '!')}
	}
	newData := buildZip(t, changed)

	oldSrc, oldEntries := readEntries(t, oldData)
	newSrc, newEntries := readEntries(t, newData)

	p, err := NewPlanner()
	require.NoError(t, err)

	plan, err := p.Plan(oldSrc, newSrc, oldEntries, newEntries)
	require.NoError(t, err)

	for i := 1; i < len(plan.OldUncompressRanges); i++ {
		require.Less(t, plan.OldUncompressRanges[i-1].Offset, plan.OldUncompressRanges[i].Offset)
	}
	for i := 1; i < len(plan.NewUncompressRanges); i++ {
		require.Less(t, plan.NewUncompressRanges[i-1].Offset, plan.NewUncompressRanges[i].Offset)
	}
}
