// Package deflateparam models the deflate invocation parameters that
// reproduce a given compressed byte stream, and the Diviner that
// recovers them by exhaustive re-compression.
//
// Neither github.com/klauspost/compress/flate nor the standard
// library's compress/flate expose a zlib-style "strategy" knob
// (Z_FILTERED / Z_HUFFMAN_ONLY have no Go equivalent), so Parameters
// always reports Strategy 0: the canonical representative of
// whichever equivalence class the input actually belongs to.
package deflateparam

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"

	"github.com/patchkit/archivepatch/errs"
)

// Parameters is the (level, strategy, nowrap) triple describing the
// deflate invocation that reproduces a specific compressed byte
// stream. Strategy is always 0 (see package doc).
type Parameters struct {
	Level    int
	Strategy int
	NoWrap   bool
}

func (p Parameters) String() string {
	return fmt.Sprintf("level=%d strategy=%d nowrap=%t", p.Level, p.Strategy, p.NoWrap)
}

// minLevel and maxLevel bound the search space divination walks: a
// deflate level is always 1..9 inclusive.
const (
	minLevel = 1
	maxLevel = 9
)

// candidateOrder is the canonical search order the Diviner walks.
// archive ZIP entries are always raw deflate (no zlib wrapper), so
// nowrap=true is tried first; levels are tried ascending within each.
var candidateOrder = func() []Parameters {
	var out []Parameters
	for _, nowrap := range [...]bool{true, false} {
		for level := minLevel; level <= maxLevel; level++ {
			out = append(out, Parameters{Level: level, Strategy: 0, NoWrap: nowrap})
		}
	}

	return out
}()

// Diviner recovers the Parameters that reproduce an entry's observed
// compressed bytes by trying each candidate in canonical order and
// comparing re-compressed output byte-for-byte.
type Diviner struct {
	// scratch is reused across Divine calls to avoid reallocating a
	// comparison buffer for every candidate.
	scratch bytes.Buffer
}

// NewDiviner creates a Diviner ready for repeated use.
func NewDiviner() *Diviner { return &Diviner{} }

// Divine reads uncompressed from uncompressed in full, tries every
// candidate parameter set in canonical order, and returns the first
// one whose re-compression of that data equals observed exactly. It
// returns errs.ErrUndivinableDeflate if no candidate reproduces it.
func (d *Diviner) Divine(uncompressed []byte, observed []byte) (Parameters, error) {
	for _, cand := range candidateOrder {
		d.scratch.Reset()

		if err := compress(&d.scratch, uncompressed, cand); err != nil {
			continue
		}
		if bytes.Equal(d.scratch.Bytes(), observed) {
			return cand, nil
		}
	}

	return Parameters{}, errs.ErrUndivinableDeflate
}

// Verify reports whether params, applied to uncompressed, reproduces
// observed exactly. It is the single-candidate counterpart to Divine,
// for confirming that a previously-divined parameter set still holds.
func Verify(params Parameters, uncompressed []byte, observed []byte) bool {
	var buf bytes.Buffer
	if err := compress(&buf, uncompressed, params); err != nil {
		return false
	}

	return bytes.Equal(buf.Bytes(), observed)
}

// compress deflates src into dst per params. NoWrap selects raw
// deflate (klauspost/compress/flate); otherwise the stream is
// zlib-wrapped (klauspost/compress/zlib).
func compress(dst io.Writer, src []byte, params Parameters) error {
	if params.NoWrap {
		w, err := flate.NewWriter(dst, params.Level)
		if err != nil {
			return err
		}
		if _, err := w.Write(src); err != nil {
			return err
		}

		return w.Close()
	}

	w, err := zlib.NewWriterLevel(dst, params.Level)
	if err != nil {
		return err
	}
	if _, err := w.Write(src); err != nil {
		return err
	}

	return w.Close()
}

// Inflate decompresses src (compressed per params) and returns the
// original bytes. Used by the prediff executor to materialize the
// uncompressed, delta-friendly form of a deflate-compressed entry.
func Inflate(src io.Reader, params Parameters) ([]byte, error) {
	var rc io.ReadCloser
	if params.NoWrap {
		rc = flate.NewReader(src)
	} else {
		zr, err := zlib.NewReader(src)
		if err != nil {
			return nil, err
		}
		rc = zr
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// Deflate compresses src per params into a single byte slice,
// streamed through the same codec path Divine and Verify use.
func Deflate(src []byte, params Parameters) ([]byte, error) {
	var buf bytes.Buffer
	if err := compress(&buf, src, params); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
