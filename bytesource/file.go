package bytesource

import (
	"io"
	"os"
	"sync/atomic"
)

// fileSource is a Source over a byte range of an *os.File, read via
// ReadAt so multiple concurrent readers never race over a shared seek
// position. The underlying *os.File is reference-counted across Slice
// calls so Close only closes the descriptor once every Source sharing
// it has been closed.
type fileSource struct {
	file   *os.File
	shared *sharedFile
	base   int64 // offset of this Source's first byte within file
	length int64
}

type sharedFile struct {
	file *os.File
	refs atomic.Int32
}

// OpenFile opens path read-only and returns a Source covering the whole
// file. The returned Source owns the file descriptor: closing it (or
// every Slice derived from it) closes the descriptor.
func OpenFile(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	shared := &sharedFile{file: f}
	shared.refs.Store(1)

	return &fileSource{file: f, length: info.Size(), shared: shared}, nil
}

func (s *fileSource) Length() int64 { return s.length }

func (s *fileSource) Slice(offset, length int64) Source {
	o, l := clamp(s.Length(), offset, length)
	s.shared.refs.Add(1)

	return &fileSource{
		file:   s.file,
		shared: s.shared,
		base:   s.base + o,
		length: l,
	}
}

func (s *fileSource) OpenStream() (io.ReadCloser, error) {
	sr := io.NewSectionReader(s.file, s.base, s.length)
	return io.NopCloser(sr), nil
}

func (s *fileSource) Close() error {
	if s.shared == nil {
		return nil
	}
	if s.shared.refs.Add(-1) > 0 {
		return nil
	}

	return s.shared.file.Close()
}
