package zipentry

import (
	"encoding/binary"
	"io"

	"github.com/patchkit/archivepatch/bytesource"
	"github.com/patchkit/archivepatch/drange"
	"github.com/patchkit/archivepatch/errs"
)

const (
	eocdSignature    = 0x06054b50
	cdirSignature    = 0x02014b50
	localSignature   = 0x04034b50
	eocdFixedSize    = 22
	cdirFixedSize    = 46
	localFixedSize   = 30
	maxCommentSearch = 65536 + eocdFixedSize
)

// Read parses src as a ZIP-family archive (ZIP/JAR/APK) and returns
// its entries in central-directory order. It returns
// errs.ErrCorruptArchive if the end-of-central-directory record or any
// central/local header cannot be parsed.
func Read(src bytesource.Source) ([]Entry, error) {
	eocdOffset, err := findEOCD(src)
	if err != nil {
		return nil, err
	}

	eocd, err := readAt(src, eocdOffset, eocdFixedSize)
	if err != nil {
		return nil, errs.ErrCorruptArchive
	}

	count := int(binary.LittleEndian.Uint16(eocd[10:12]))
	cdirOffset := int64(binary.LittleEndian.Uint32(eocd[16:20]))

	entries := make([]Entry, 0, count)

	cursor := cdirOffset
	for i := 0; i < count; i++ {
		header, err := readAt(src, cursor, cdirFixedSize)
		if err != nil {
			return nil, errs.ErrCorruptArchive
		}
		if binary.LittleEndian.Uint32(header[0:4]) != cdirSignature {
			return nil, errs.ErrCorruptArchive
		}

		flags := binary.LittleEndian.Uint16(header[8:10])
		method := binary.LittleEndian.Uint16(header[10:12])
		crc32 := binary.LittleEndian.Uint32(header[16:20])
		compressedSize := int64(binary.LittleEndian.Uint32(header[20:24]))
		uncompressedSize := int64(binary.LittleEndian.Uint32(header[24:28]))
		nameLen := int(binary.LittleEndian.Uint16(header[28:30]))
		extraLen := int(binary.LittleEndian.Uint16(header[30:32]))
		commentLen := int(binary.LittleEndian.Uint16(header[32:34]))
		localHeaderOffset := int64(binary.LittleEndian.Uint32(header[42:46]))

		nameBytes, err := readAt(src, cursor+cdirFixedSize, nameLen)
		if err != nil {
			return nil, errs.ErrCorruptArchive
		}

		entry, err := resolveEntry(src, localHeaderOffset, Entry{
			Filename:          append([]byte(nil), nameBytes...),
			FilenameIsUTF8:    flags&0x0800 != 0,
			CRC32:             crc32,
			CompressionMethod: method,
			CompressedSize:    compressedSize,
			UncompressedSize:  uncompressedSize,
		})
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
		cursor += int64(cdirFixedSize + nameLen + extraLen + commentLen)
	}

	return entries, nil
}

// resolveEntry reads the local file header at localHeaderOffset to
// compute LocalEntryRange and CompressedDataRange; everything else on
// partial is filled in already from the central directory record.
func resolveEntry(src bytesource.Source, localHeaderOffset int64, partial Entry) (Entry, error) {
	header, err := readAt(src, localHeaderOffset, localFixedSize)
	if err != nil {
		return Entry{}, errs.ErrCorruptArchive
	}
	if binary.LittleEndian.Uint32(header[0:4]) != localSignature {
		return Entry{}, errs.ErrCorruptArchive
	}

	nameLen := int(binary.LittleEndian.Uint16(header[26:28]))
	extraLen := int(binary.LittleEndian.Uint16(header[28:30]))

	headerLen := int64(localFixedSize + nameLen + extraLen)
	dataOffset := localHeaderOffset + headerLen

	partial.LocalEntryRange = drange.NewRange(localHeaderOffset, headerLen)
	partial.CompressedDataRange = drange.NewRange(dataOffset, partial.CompressedSize)

	return partial, nil
}

// findEOCD scans the trailing bytes of src for the end-of-central-
// directory signature, matching the standard ZIP strategy of
// searching backward from the end for the first valid match since an
// archive comment of unknown length precedes it.
func findEOCD(src bytesource.Source) (int64, error) {
	total := src.Length()
	searchLen := total
	if searchLen > maxCommentSearch {
		searchLen = maxCommentSearch
	}

	tail, err := readAt(src, total-searchLen, int(searchLen))
	if err != nil {
		return 0, errs.ErrCorruptArchive
	}

	for i := len(tail) - eocdFixedSize; i >= 0; i-- {
		if binary.LittleEndian.Uint32(tail[i:i+4]) == eocdSignature {
			return total - searchLen + int64(i), nil
		}
	}

	return 0, errs.ErrCorruptArchive
}

func readAt(src bytesource.Source, offset int64, length int) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}

	r, err := src.Slice(offset, int64(length)).OpenStream()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	return buf, nil
}
