//go:build darwin || linux || freebsd

package bytesource

import (
	"bytes"
	"io"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// mmapSource is a Source backed by a read-only memory map, grounded on
// buildbarn-bb-storage's memoryMappedBlockDevice: mmap once at open
// time, read through the mapping via plain slicing (no syscalls per
// read), and unmap on the final Close. Concurrent readers are safe:
// reads never mutate the mapping.
type mmapSource struct {
	shared *sharedMapping
	base   int64
	length int64
}

type sharedMapping struct {
	data []byte
	refs atomic.Int32
}

// NewMemoryMapped memory-maps path read-only and returns a Source over
// its full contents. The mapping is released when every Source derived
// from the returned one (via Slice) has been Closed.
func NewMemoryMapped(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		// Mmap of a zero-length file fails on most platforms; a
		// zero-length memory source is trivially correct instead.
		return NewMemory(nil), nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}

	shared := &sharedMapping{data: data}
	shared.refs.Store(1)

	return &mmapSource{shared: shared, length: size}, nil
}

func (m *mmapSource) Length() int64 { return m.length }

func (m *mmapSource) Slice(offset, length int64) Source {
	o, l := clamp(m.Length(), offset, length)
	m.shared.refs.Add(1)

	return &mmapSource{shared: m.shared, base: m.base + o, length: l}
}

func (m *mmapSource) OpenStream() (io.ReadCloser, error) {
	data := m.shared.data[m.base : m.base+m.length]
	return nopCloser{bytes.NewReader(data)}, nil
}

func (m *mmapSource) Close() error {
	if m.shared.refs.Add(-1) > 0 {
		return nil
	}

	return unix.Munmap(m.shared.data)
}
