// Package zipentry models the minimal per-entry record extracted from
// a ZIP-family archive (ZIP/JAR/APK): enough to pair old and new
// entries by filename or content, and to know exactly where each
// entry's local header and compressed data live in the archive's byte
// stream. Full central-directory parsing is its own concern, grounded
// on the standard ZIP format rather than any third-party reader.
package zipentry

import (
	"github.com/patchkit/archivepatch/drange"
)

// MethodStored is the ZIP "no compression" method.
const MethodStored = 0

// MethodDeflate is the ZIP deflate compression method.
const MethodDeflate = 8

// Entry is the immutable record extracted from one archive entry.
// Entries are created once during enumeration and never mutated
// afterward.
type Entry struct {
	// Filename holds the entry's raw name bytes exactly as stored in
	// the central directory, before any charset decoding.
	Filename []byte

	// FilenameIsUTF8 is true when general-purpose bit 11 marks
	// Filename as UTF-8; otherwise it is legacy code page 437.
	FilenameIsUTF8 bool

	// CRC32 is the CRC-32 of the entry's uncompressed data.
	CRC32 uint32

	// CompressionMethod is the ZIP method field (0 = stored, 8 = deflate).
	CompressionMethod uint16

	CompressedSize   int64
	UncompressedSize int64

	// LocalEntryRange covers the local file header record: signature
	// through the end of the (name, extra) fields, not including the
	// compressed data that follows.
	LocalEntryRange drange.Range

	// CompressedDataRange covers exactly the entry's compressed
	// bytes, immediately following LocalEntryRange.
	CompressedDataRange drange.Range
}

// IsDeflateCompressed reports whether this entry is deflate-compressed:
// method 8 and compressed size differs from uncompressed size (a
// zero-byte-savings deflate stream is otherwise indistinguishable from
// stored, and divination would be pointless).
func (e Entry) IsDeflateCompressed() bool {
	return e.CompressionMethod == MethodDeflate && e.CompressedSize != e.UncompressedSize
}

// DecodedName returns the entry's filename decoded per FilenameIsUTF8.
func (e Entry) DecodedName() string {
	if e.FilenameIsUTF8 {
		return string(e.Filename)
	}

	return DecodeCodePage437(e.Filename)
}
