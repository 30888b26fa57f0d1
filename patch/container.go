// Package patch implements the top-level framed patch container: the
// single file a patch-apply step reads, wrapping the delta-friendly
// range lists and one or more DeltaEntry records (each a bsdiff stream
// or a nested patch container) that together let an applier reconstruct
// the new archive from the old one byte-for-byte.
//
// Every multi-byte integer in this framing is big-endian, unlike the
// little-endian formatted-longs package bsdiff uses inside a DeltaEntry's
// own bytes; the two encodings never mix within one integer.
package patch

import (
	"io"

	"github.com/patchkit/archivepatch/deflateparam"
	"github.com/patchkit/archivepatch/drange"
	"github.com/patchkit/archivepatch/endian"
	"github.com/patchkit/archivepatch/errs"
)

// engine is the byte order every integer in this framing uses.
var engine = endian.GetBigEndianEngine()

// Magic is the 8-byte ASCII identifier at the start of every patch
// container, top-level or nested (FILE_BY_FILE).
const Magic = "GFbFv1_0"

// CompatibilityWindowDefault is the compatibilityWindowId this
// implementation emits: plain DEFLATE, no dictionary. Read does not
// check the value it finds there.
const CompatibilityWindowDefault = 0

// Delta format tags for a DeltaEntry.
const (
	FormatBSDIFF     = 0
	FormatFileByFile = 1
)

// DeltaEntry is one entry in a Container's delta entry list: a span of
// the old delta-friendly blob and a span of the new delta-friendly
// blob, related by a delta of the given format.
type DeltaEntry struct {
	DeltaFormat  uint8
	OldBlobRange drange.Range
	NewBlobRange drange.Range
	DeltaBytes   []byte
}

// Container is the fully decoded patch file.
type Container struct {
	Flags            int32
	OldDFriendlySize int64

	OldUncompressRanges []drange.Range
	NewRecompressRanges []drange.TypedRange[deflateparam.Parameters]

	DeltaEntries []DeltaEntry
}

// Write serializes c to w in the patch container's framing. Write
// never closes or truncates w, even on error.
func Write(w io.Writer, c *Container) error {
	bw := &byteWriter{w: w}

	bw.writeString(Magic)
	bw.writeInt32(c.Flags)
	bw.writeInt64(c.OldDFriendlySize)

	bw.writeInt32(int32(len(c.OldUncompressRanges)))
	for _, r := range c.OldUncompressRanges {
		bw.writeInt64(r.Offset)
		bw.writeInt64(r.Length)
	}

	bw.writeInt32(int32(len(c.NewRecompressRanges)))
	for _, r := range c.NewRecompressRanges {
		bw.writeInt64(r.Offset)
		bw.writeInt64(r.Length)
		bw.writeUint8(CompatibilityWindowDefault)
		bw.writeUint8(uint8(r.Metadata.Level))
		bw.writeUint8(uint8(r.Metadata.Strategy))
		bw.writeBool(r.Metadata.NoWrap)
	}

	bw.writeInt32(int32(len(c.DeltaEntries)))
	for _, e := range c.DeltaEntries {
		bw.writeUint8(e.DeltaFormat)
		bw.writeInt64(e.OldBlobRange.Offset)
		bw.writeInt64(e.OldBlobRange.Length)
		bw.writeInt64(e.NewBlobRange.Offset)
		bw.writeInt64(e.NewBlobRange.Length)
		bw.writeInt64(int64(len(e.DeltaBytes)))
		bw.writeBytes(e.DeltaBytes)
	}

	return bw.err
}

// Read parses a Container from r in its entirety.
func Read(r io.Reader) (*Container, error) {
	br := &byteReader{r: r}

	magic := br.readString(len(Magic))
	if br.err != nil {
		return nil, br.err
	}
	if magic != Magic {
		return nil, errs.ErrBadMagic
	}

	c := &Container{}
	c.Flags = br.readInt32()
	c.OldDFriendlySize = br.readInt64()

	numOld := br.readInt32()
	c.OldUncompressRanges = make([]drange.Range, numOld)
	for i := range c.OldUncompressRanges {
		offset := br.readInt64()
		length := br.readInt64()
		c.OldUncompressRanges[i] = drange.NewRange(offset, length)
	}

	numNew := br.readInt32()
	c.NewRecompressRanges = make([]drange.TypedRange[deflateparam.Parameters], numNew)
	for i := range c.NewRecompressRanges {
		offset := br.readInt64()
		length := br.readInt64()
		_ = br.readUint8() // compatibilityWindowId, always 0 in this implementation
		level := br.readUint8()
		strategy := br.readUint8()
		nowrap := br.readBool()
		c.NewRecompressRanges[i] = drange.NewTypedRange(offset, length, deflateparam.Parameters{
			Level:    int(level),
			Strategy: int(strategy),
			NoWrap:   nowrap,
		})
	}

	numEntries := br.readInt32()
	c.DeltaEntries = make([]DeltaEntry, numEntries)
	for i := range c.DeltaEntries {
		format := br.readUint8()
		oldOffset := br.readInt64()
		oldLength := br.readInt64()
		newOffset := br.readInt64()
		newLength := br.readInt64()
		deltaLength := br.readInt64()
		deltaBytes := br.readBytes(deltaLength)

		c.DeltaEntries[i] = DeltaEntry{
			DeltaFormat:  format,
			OldBlobRange: drange.NewRange(oldOffset, oldLength),
			NewBlobRange: drange.NewRange(newOffset, newLength),
			DeltaBytes:   deltaBytes,
		}
	}

	if br.err != nil {
		return nil, br.err
	}

	return c, nil
}

type byteWriter struct {
	w   io.Writer
	err error
}

func (bw *byteWriter) writeString(s string) { bw.writeBytes([]byte(s)) }

func (bw *byteWriter) writeBytes(p []byte) {
	if bw.err != nil || len(p) == 0 {
		return
	}
	_, bw.err = bw.w.Write(p)
}

func (bw *byteWriter) writeUint8(v uint8) { bw.writeBytes([]byte{v}) }

func (bw *byteWriter) writeBool(v bool) {
	if v {
		bw.writeUint8(1)
	} else {
		bw.writeUint8(0)
	}
}

func (bw *byteWriter) writeInt32(v int32) {
	var buf [4]byte
	engine.PutUint32(buf[:], uint32(v))
	bw.writeBytes(buf[:])
}

func (bw *byteWriter) writeInt64(v int64) {
	var buf [8]byte
	engine.PutUint64(buf[:], uint64(v))
	bw.writeBytes(buf[:])
}

type byteReader struct {
	r   io.Reader
	err error
}

func (br *byteReader) readBytes(n int64) []byte {
	if br.err != nil || n <= 0 {
		return nil
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(br.r, buf); err != nil {
		br.err = err
		return nil
	}

	return buf
}

func (br *byteReader) readString(n int) string {
	return string(br.readBytes(int64(n)))
}

func (br *byteReader) readUint8() uint8 {
	buf := br.readBytes(1)
	if len(buf) == 0 {
		return 0
	}

	return buf[0]
}

func (br *byteReader) readBool() bool { return br.readUint8() != 0 }

func (br *byteReader) readInt32() int32 {
	buf := br.readBytes(4)
	if len(buf) == 0 {
		return 0
	}

	return int32(engine.Uint32(buf))
}

func (br *byteReader) readInt64() int64 {
	buf := br.readBytes(8)
	if len(buf) == 0 {
		return 0
	}

	return int64(engine.Uint64(buf))
}
