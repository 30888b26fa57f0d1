package patch

import (
	"bytes"

	"github.com/patchkit/archivepatch/bsdiff"
	"github.com/patchkit/archivepatch/deflateparam"
	"github.com/patchkit/archivepatch/drange"
	"github.com/patchkit/archivepatch/errs"
)

// maxRecursionDepth bounds FILE_BY_FILE nesting: a DeltaEntry's bytes
// may themselves be a full patch container, but only one level deep.
const maxRecursionDepth = 1

// Apply reconstructs the new delta-friendly blob from oldDFriendly and
// c's delta entries, the inverse of the generation pipeline. It does
// not undo the new-side recompression described by c.NewRecompressRanges;
// callers that need the final archive bytes layer that step on top.
func Apply(oldDFriendly []byte, c *Container) ([]byte, error) {
	return applyDepth(oldDFriendly, c, 0)
}

func applyDepth(oldDFriendly []byte, c *Container, depth int) ([]byte, error) {
	if int64(len(oldDFriendly)) != c.OldDFriendlySize {
		return nil, errs.ErrCorruptArchive
	}

	var out []byte
	for _, e := range c.DeltaEntries {
		if e.OldBlobRange.End() > int64(len(oldDFriendly)) {
			return nil, errs.ErrCorruptArchive
		}
		oldSpan := oldDFriendly[e.OldBlobRange.Offset:e.OldBlobRange.End()]

		var newSpan []byte
		var err error

		switch e.DeltaFormat {
		case FormatBSDIFF:
			newSpan, err = bsdiff.Apply(oldSpan, bytes.NewReader(e.DeltaBytes))
		case FormatFileByFile:
			if depth >= maxRecursionDepth {
				return nil, errs.ErrCorruptArchive
			}
			newSpan, err = applyNested(oldSpan, e.DeltaBytes, depth+1)
		default:
			return nil, errs.ErrCorruptArchive
		}
		if err != nil {
			return nil, err
		}

		if int64(len(out)) != e.NewBlobRange.Offset {
			return nil, errs.ErrCorruptArchive
		}
		out = append(out, newSpan...)
	}

	if int64(len(out)) != newDFriendlySize(c) {
		return nil, errs.ErrCorruptArchive
	}

	return out, nil
}

func applyNested(oldSpan, deltaBytes []byte, depth int) ([]byte, error) {
	nested, err := Read(bytes.NewReader(deltaBytes))
	if err != nil {
		return nil, err
	}

	return applyDepth(oldSpan, nested, depth)
}

// newDFriendlySize returns the expected total length of the new
// delta-friendly blob: the end of the last (offset-ascending)
// DeltaEntry's NewBlobRange, or 0 if there are none.
func newDFriendlySize(c *Container) int64 {
	if len(c.DeltaEntries) == 0 {
		return 0
	}

	last := c.DeltaEntries[len(c.DeltaEntries)-1]

	return last.NewBlobRange.End()
}

// Verify applies c against oldDFriendly, recompresses the new-side
// ranges named by c.NewRecompressRanges, and confirms the result is
// byte-identical to wantNew (the original new archive). It is the
// supplemental round-trip check a patch generator runs before
// declaring a patch good.
func Verify(oldDFriendly []byte, c *Container, wantNew []byte) (bool, error) {
	newDFriendly, err := Apply(oldDFriendly, c)
	if err != nil {
		return false, err
	}

	reconstructed, err := Recompress(newDFriendly, c.NewRecompressRanges)
	if err != nil {
		return false, err
	}

	return bytes.Equal(reconstructed, wantNew), nil
}

// Recompress rebuilds the original new archive bytes from its
// delta-friendly form by recompressing each range the planner had
// uncompressed, leaving everything else untouched.
func Recompress(newDFriendly []byte, ranges []drange.TypedRange[deflateparam.Parameters]) ([]byte, error) {
	var out []byte
	cursor := int64(0)

	for _, r := range ranges {
		if r.Offset < cursor || r.End() > int64(len(newDFriendly)) {
			return nil, errs.ErrCorruptArchive
		}

		out = append(out, newDFriendly[cursor:r.Offset]...)

		compressed, err := deflateparam.Deflate(newDFriendly[r.Offset:r.End()], r.Metadata)
		if err != nil {
			return nil, err
		}
		out = append(out, compressed...)

		cursor = r.End()
	}

	out = append(out, newDFriendly[cursor:]...)

	return out, nil
}
