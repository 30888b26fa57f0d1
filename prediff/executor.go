package prediff

import (
	"context"
	"io"
	"sort"

	"github.com/patchkit/archivepatch/bytesource"
	"github.com/patchkit/archivepatch/deflateparam"
	"github.com/patchkit/archivepatch/drange"
	"github.com/patchkit/archivepatch/tempblob"
)

// Breakpoint records that archive offset ArchiveOffset maps to
// BlobOffset inside a materialized delta-friendly blob.
type Breakpoint struct {
	ArchiveOffset int64
	BlobOffset    int64
}

// Boundaries is a sorted, ascending list of Breakpoints covering a
// source's full length (starting at {0,0} and ending at {srcLength,
// blobLength}). Any archive offset that doesn't fall strictly inside
// an inflated range — which includes every zip entry's header and
// data-range boundary, since uncompressed ranges are exactly some
// entry's CompressedDataRange — maps correctly via Offset.
type Boundaries []Breakpoint

// Offset translates an archive-relative offset into its corresponding
// position inside the materialized blob, by finding the last
// Breakpoint at or before archiveOffset and adding the distance past
// it. Archive offsets inside a gap (untouched, verbatim) span
// translate via a constant shift; offsets exactly on a range edge
// match a recorded Breakpoint directly.
func (bs Boundaries) Offset(archiveOffset int64) int64 {
	i := sort.Search(len(bs), func(i int) bool { return bs[i].ArchiveOffset > archiveOffset })
	if i == 0 {
		return archiveOffset
	}

	p := bs[i-1]

	return p.BlobOffset + (archiveOffset - p.ArchiveOffset)
}

// Result holds the two delta-friendly blobs an Executor materializes,
// plus the refined new-side recompress range list: the same ranges
// as Plan.NewRecompressRanges, but with offsets and lengths rewritten
// to describe positions inside NewBlob rather than inside the original
// new archive.
type Result struct {
	OldBlob *tempblob.Blob
	NewBlob *tempblob.Blob

	NewRecompressRanges []drange.TypedRange[deflateparam.Parameters]

	// OldBoundaries and NewBoundaries translate archive-relative entry
	// offsets into offsets inside OldBlob/NewBlob.
	OldBoundaries Boundaries
	NewBoundaries Boundaries
}

// Executor materializes a Plan's uncompression decisions into the two
// delta-friendly blobs bsdiff actually runs against.
type Executor struct {
	newBlobOptions []tempblob.Option
	oldBlobOptions []tempblob.Option
}

// NewExecutor creates an Executor. opts configure both blobs it
// produces (e.g. tempblob.WithThreshold, tempblob.WithTempDir).
func NewExecutor(opts ...tempblob.Option) *Executor {
	return &Executor{newBlobOptions: opts, oldBlobOptions: opts}
}

// Execute copies oldSrc and newSrc into fresh blobs, replacing every
// range named by plan.OldUncompressRanges / plan.NewUncompressRanges
// with its inflated content, and leaving everything else byte-for-byte
// untouched. Both blobs are closed for writing on return; callers own
// closing them entirely once done reading.
func (ex *Executor) Execute(ctx context.Context, oldSrc, newSrc bytesource.Source, plan *Plan) (*Result, error) {
	oldBlob := tempblob.New(ex.oldBlobOptions...)
	oldBoundaries, err := materialize(ctx, oldBlob, oldSrc, plan.OldUncompressRanges)
	if err != nil {
		oldBlob.Close()
		return nil, err
	}

	newBlob := tempblob.New(ex.newBlobOptions...)
	refined, newBoundaries, err := materializeTyped(ctx, newBlob, newSrc, plan.NewUncompressRanges)
	if err != nil {
		oldBlob.Close()
		newBlob.Close()
		return nil, err
	}

	return &Result{
		OldBlob:             oldBlob,
		NewBlob:             newBlob,
		NewRecompressRanges: refined,
		OldBoundaries:       oldBoundaries,
		NewBoundaries:       newBoundaries,
	}, nil
}

// materialize streams src into blob, replacing each range in ranges
// (offset-ordered, non-overlapping) with its inflated content, and
// returns the archive-to-blob offset map for every segment boundary.
func materialize(ctx context.Context, blob *tempblob.Blob, src bytesource.Source, ranges []drange.Range) (Boundaries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w, err := blob.OpenWriter()
	if err != nil {
		return nil, err
	}
	defer w.Close()

	boundaries := make(Boundaries, 0, 2*len(ranges)+2)
	boundaries = append(boundaries, Breakpoint{0, 0})
	cursor := int64(0)
	outOffset := int64(0)

	for _, r := range ranges {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		gap := r.Offset - cursor
		if err := copyRange(w, src, cursor, gap); err != nil {
			return nil, err
		}
		outOffset += gap

		boundaries = append(boundaries, Breakpoint{r.Offset, outOffset})

		n, err := inflateRangeCounted(w, src, r)
		if err != nil {
			return nil, err
		}
		outOffset += n

		boundaries = append(boundaries, Breakpoint{r.End(), outOffset})
		cursor = r.End()
	}

	if err := copyRange(w, src, cursor, src.Length()-cursor); err != nil {
		return nil, err
	}
	boundaries = append(boundaries, Breakpoint{src.Length(), outOffset + (src.Length() - cursor)})

	return boundaries, nil
}

// materializeTyped is materialize specialized for the new-side range
// list, additionally tracking each uncompressed range's resulting
// offset and length inside blob.
func materializeTyped(ctx context.Context, blob *tempblob.Blob, src bytesource.Source, ranges []drange.TypedRange[deflateparam.Parameters]) ([]drange.TypedRange[deflateparam.Parameters], Boundaries, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	w, err := blob.OpenWriter()
	if err != nil {
		return nil, nil, err
	}
	defer w.Close()

	refined := make([]drange.TypedRange[deflateparam.Parameters], 0, len(ranges))
	boundaries := make(Boundaries, 0, 2*len(ranges)+2)
	boundaries = append(boundaries, Breakpoint{0, 0})
	cursor := int64(0)
	outOffset := int64(0)

	for _, r := range ranges {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		gap := r.Offset - cursor
		if err := copyRange(w, src, cursor, gap); err != nil {
			return nil, nil, err
		}
		outOffset += gap

		boundaries = append(boundaries, Breakpoint{r.Offset, outOffset})

		n, err := inflateRangeCounted(w, src, r.Range)
		if err != nil {
			return nil, nil, err
		}

		refined = append(refined, drange.NewTypedRange(outOffset, n, r.Metadata))
		outOffset += n

		boundaries = append(boundaries, Breakpoint{r.End(), outOffset})
		cursor = r.End()
	}

	if err := copyRange(w, src, cursor, src.Length()-cursor); err != nil {
		return nil, nil, err
	}
	boundaries = append(boundaries, Breakpoint{src.Length(), outOffset + (src.Length() - cursor)})

	return refined, boundaries, nil
}

func copyRange(w io.Writer, src bytesource.Source, offset, length int64) error {
	if length <= 0 {
		return nil
	}

	rd, err := src.Slice(offset, length).OpenStream()
	if err != nil {
		return err
	}
	defer rd.Close()

	_, err = io.CopyN(w, rd, length)

	return err
}

// inflateRangeCounted inflates the compressed bytes at r (read as raw
// deflate, independent of whatever parameters will later be used to
// recompress it) and writes the result to w, returning its length.
func inflateRangeCounted(w io.Writer, src bytesource.Source, r drange.Range) (int64, error) {
	rd, err := src.Slice(r.Offset, r.Length).OpenStream()
	if err != nil {
		return 0, err
	}
	defer rd.Close()

	uncompressed, err := deflateparam.Inflate(rd, deflateparam.Parameters{NoWrap: true})
	if err != nil {
		return 0, err
	}

	if _, err := w.Write(uncompressed); err != nil {
		return 0, err
	}

	return int64(len(uncompressed)), nil
}
