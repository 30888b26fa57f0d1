// Package tempblob implements TempBlob, a write-once/read-many staging
// area: data is accumulated in memory through a single writer, then
// handed out to any number of concurrent readers.
// A Blob that grows past its threshold transparently spills to a temp
// file, compacted with github.com/klauspost/compress/s2 so the spill
// costs disk bandwidth rather than disk space; reads never know which
// backing a given Blob ended up with.
package tempblob

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/s2"

	"github.com/patchkit/archivepatch/errs"
	"github.com/patchkit/archivepatch/internal/pool"
)

// DefaultThreshold is the in-memory ceiling a Blob holds before spilling
// to a temp file.
const DefaultThreshold = 50 * 1024 * 1024 // 50MiB

// Blob is a write-once, read-many staging area. The zero value is not
// usable; construct one with New.
type Blob struct {
	mu sync.Mutex

	threshold int64
	tempDir   string

	mem  *pool.ByteBuffer
	file *os.File
	s2w  *s2.Writer

	spilled    bool
	writerOpen bool
	readers    int
	length     int64
}

// Option configures a Blob at construction time.
type Option func(*Blob)

// WithThreshold overrides the in-memory-to-disk spill threshold.
func WithThreshold(bytes int64) Option {
	return func(b *Blob) { b.threshold = bytes }
}

// WithTempDir overrides the directory spill files are created in,
// defaulting to os.TempDir.
func WithTempDir(dir string) Option {
	return func(b *Blob) { b.tempDir = dir }
}

// New creates an empty Blob.
func New(opts ...Option) *Blob {
	b := &Blob{
		threshold: DefaultThreshold,
		mem:       pool.GetStagingBuffer(),
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Len returns the number of logical bytes written to the blob so far,
// regardless of whether it has spilled to disk.
func (b *Blob) Len() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.length
}

// OpenWriter opens the blob for writing. Only one writer may be open at
// a time, and no reader may be open concurrently with it; violating
// either returns errs.ErrPrecondition. The caller must Close the
// returned writer before the blob's contents are readable.
func (b *Blob) OpenWriter() (io.WriteCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writerOpen {
		return nil, errs.ErrPrecondition
	}
	if b.readers > 0 {
		return nil, errs.ErrPrecondition
	}

	b.writerOpen = true

	return &blobWriter{b: b}, nil
}

type blobWriter struct {
	b      *Blob
	closed bool
}

func (w *blobWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errs.ErrPrecondition
	}

	return w.b.write(p)
}

func (w *blobWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	return w.b.closeWriter()
}

func (b *Blob) write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.spilled && int64(b.mem.Len())+int64(len(p)) > b.threshold {
		if err := b.spillLocked(); err != nil {
			return 0, err
		}
	}

	n, err := b.currentWriterLocked().Write(p)
	b.length += int64(n)

	return n, err
}

func (b *Blob) currentWriterLocked() io.Writer {
	if b.spilled {
		return b.s2w
	}

	return b.mem
}

// spillLocked migrates the in-memory buffer to a compacted temp file.
// Callers must hold b.mu.
func (b *Blob) spillLocked() error {
	f, err := os.CreateTemp(b.tempDir, "archivepatch-tempblob-*")
	if err != nil {
		return err
	}

	w := s2.NewWriter(f)
	if _, err := w.Write(b.mem.Bytes()); err != nil {
		w.Close()
		f.Close()
		os.Remove(f.Name())
		return err
	}

	pool.PutStagingBuffer(b.mem)
	b.mem = nil
	b.file = f
	b.s2w = w
	b.spilled = true

	return nil
}

func (b *Blob) closeWriter() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.writerOpen = false

	if b.spilled {
		return b.s2w.Close()
	}

	return nil
}

// OpenReader returns a fresh, independent reader over the blob's full
// contents starting at byte 0. Any number of readers may be open
// concurrently; none may be opened while a writer is open.
func (b *Blob) OpenReader() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writerOpen {
		return nil, errs.ErrPrecondition
	}

	if !b.spilled {
		b.readers++
		return &memReader{b: b, r: bytes.NewReader(b.mem.Bytes())}, nil
	}

	f, err := os.Open(b.file.Name())
	if err != nil {
		return nil, err
	}

	b.readers++

	return &spillReader{b: b, file: f, r: s2.NewReader(f)}, nil
}

type memReader struct {
	b *Blob
	r *bytes.Reader
}

func (r *memReader) Read(p []byte) (int, error) { return r.r.Read(p) }

func (r *memReader) Close() error {
	r.b.mu.Lock()
	r.b.readers--
	r.b.mu.Unlock()

	return nil
}

type spillReader struct {
	b    *Blob
	file *os.File
	r    *s2.Reader
}

func (r *spillReader) Read(p []byte) (int, error) { return r.r.Read(p) }

func (r *spillReader) Close() error {
	r.b.mu.Lock()
	r.b.readers--
	r.b.mu.Unlock()

	return r.file.Close()
}

// Clear discards the blob's contents and resets it to empty, ready for
// reuse. It fails with errs.ErrPrecondition if a writer is currently
// open; it does not wait for open readers, since those hold their own
// file handles and are unaffected by a subsequent Clear.
func (b *Blob) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writerOpen {
		return errs.ErrPrecondition
	}

	var err error
	if b.spilled {
		err = os.Remove(b.file.Name())
		b.file = nil
		b.s2w = nil
		b.spilled = false
		b.mem = pool.GetStagingBuffer()
	} else {
		b.mem.Reset()
	}
	b.length = 0

	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

// Close releases the blob's resources: its pooled memory buffer and,
// if it spilled, its temp file. A closed Blob must not be reused.
func (b *Blob) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.mem != nil {
		pool.PutStagingBuffer(b.mem)
		b.mem = nil
	}

	if b.file == nil {
		return nil
	}

	path := b.file.Name()
	closeErr := b.file.Close()
	removeErr := os.Remove(path)
	if closeErr != nil {
		return closeErr
	}
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		return removeErr
	}

	return nil
}
