// Package bsdiff implements the classic bsdiff patch format: a header
// (magic plus new-file size) followed by a stream of control entries,
// each a (diffLen, extraLen, oldOffsetDelta) triple of formatted longs
// plus diffLen subtracted bytes and extraLen raw bytes. Write drives
// package matcher over a suffix array from package suffixarray; Apply
// reconstructs T_new from T_old and a patch stream, used both by the
// eventual applier and by this package's own round-trip tests.
//
// The bidirectional 50%-rule extension and overlap-arbitration logic
// below is Colin Percival's bsdiff algorithm, carried over line for
// line in spirit, since deviating from its score bookkeeping would
// change the bytes the patch format is defined to produce.
package bsdiff

import (
	"context"
	"io"

	"github.com/patchkit/archivepatch/errs"
	"github.com/patchkit/archivepatch/matcher"
	"github.com/patchkit/archivepatch/suffixarray"
)

// Magic is the 16-byte ASCII identifier at the start of every bsdiff
// stream.
const Magic = "ENDSLEY/BSDIFF43"

// Write diffs old against newb and writes a complete bsdiff stream
// (magic, newSize, control entries) to w. minLength <= 0 uses
// matcher.DefaultMinLength. Write never closes or truncates w, even
// on error, leaving error handling to the caller.
func Write(ctx context.Context, w io.Writer, old, newb []byte, minLength int) error {
	sa, err := suffixarray.Build(ctx, old)
	if err != nil {
		return err
	}
	defer sa.Release()

	if _, err := io.WriteString(w, Magic); err != nil {
		return err
	}
	if err := writeLong(w, int64(len(newb))); err != nil {
		return err
	}

	m := matcher.New(sa.SA(), old, newb, minLength)

	lastScan, lastPos := 0, 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pos, scan, _, ok, err := m.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			if lastScan >= len(newb) {
				break
			}
			// The last match ran to the end of newb, so no call scanned
			// the tail: flush it with one more entry at scan == len(newb).
			pos, scan = lastPos, len(newb)
		}

		lenf := forwardExtension(old, newb, lastScan, lastPos, scan)
		lenb := backwardExtension(old, newb, lastScan, scan, pos)
		lenf, lenb = resolveOverlap(old, newb, lastScan, lastPos, lenf, scan, pos, lenb)

		diffLen := lenf
		extraLen := (scan - lenb) - (lastScan + lenf)
		oldOffsetDelta := (pos - lenb) - (lastPos + lenf)

		if err := writeLong(w, int64(diffLen)); err != nil {
			return err
		}
		if err := writeLong(w, int64(extraLen)); err != nil {
			return err
		}
		if err := writeLong(w, int64(oldOffsetDelta)); err != nil {
			return err
		}

		diffBuf := make([]byte, diffLen)
		for i := 0; i < diffLen; i++ {
			diffBuf[i] = newb[lastScan+i] - old[lastPos+i]
		}
		if _, err := w.Write(diffBuf); err != nil {
			return err
		}

		if _, err := w.Write(newb[lastScan+lenf : scan-lenb]); err != nil {
			return err
		}

		lastScan = scan - lenb
		lastPos = pos - lenb
		m.SetLastOffset(pos - scan)
	}

	return nil
}

// forwardExtension extends the previous match (ending at lastScan,
// lastPos) forward toward scan using the 50%-rule: score += 1 on a
// byte match, -1 otherwise, tracking the extension length with the
// best cumulative score.
func forwardExtension(old, newb []byte, lastScan, lastPos, scan int) int {
	s, best, lenf := 0, 0, 0
	for i := 0; lastScan+i < scan && lastPos+i < len(old); {
		if old[lastPos+i] == newb[lastScan+i] {
			s++
		}
		i++
		if s*2-i > best*2-lenf {
			best, lenf = s, i
		}
	}

	return lenf
}

// backwardExtension extends the current match (found at pos, scan)
// backward, bounded by the previous match's end and the start of old.
func backwardExtension(old, newb []byte, lastScan, scan, pos int) int {
	if scan >= len(newb) {
		return 0
	}

	s, best, lenb := 0, 0, 0
	for i := 1; scan >= lastScan+i && pos >= i; i++ {
		if old[pos-i] == newb[scan-i] {
			s++
		}
		if s*2-i > best*2-lenb {
			best, lenb = s, i
		}
	}

	return lenb
}

// resolveOverlap arbitrates when the forward and backward extensions
// overlap in T_new, walking the overlap to find the split that
// maximizes total equality and shrinking both extensions to match.
func resolveOverlap(old, newb []byte, lastScan, lastPos, lenf, scan, pos, lenb int) (int, int) {
	if lastScan+lenf <= scan-lenb {
		return lenf, lenb
	}

	overlap := (lastScan + lenf) - (scan - lenb)
	s, best, split := 0, 0, 0
	for i := 0; i < overlap; i++ {
		if newb[lastScan+lenf-overlap+i] == old[lastPos+lenf-overlap+i] {
			s++
		}
		if newb[scan-lenb+i] == old[pos-lenb+i] {
			s--
		}
		if s > best {
			best, split = s, i+1
		}
	}

	return lenf + split - overlap, lenb - split
}

func writeLong(w io.Writer, v int64) error {
	buf := FormattedLong(v)
	_, err := w.Write(buf[:])

	return err
}

// Apply reconstructs T_new from old and a bsdiff stream read from
// patch, the inverse of Write. It is used by the top-level patch
// verifier's round-trip check and by this package's own tests.
func Apply(old []byte, patch io.Reader) ([]byte, error) {
	magicBuf := make([]byte, len(Magic))
	if _, err := io.ReadFull(patch, magicBuf); err != nil {
		return nil, err
	}
	if string(magicBuf) != Magic {
		return nil, errs.ErrBadMagic
	}

	readLong := func() (int64, error) {
		var buf [8]byte
		if _, err := io.ReadFull(patch, buf[:]); err != nil {
			return 0, err
		}

		return ParseFormattedLong(buf[:]), nil
	}

	newSize, err := readLong()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, newSize)
	oldPos := 0

	for int64(len(out)) < newSize {
		diffLen, err := readLong()
		if err != nil {
			return nil, err
		}
		extraLen, err := readLong()
		if err != nil {
			return nil, err
		}
		oldOffsetDelta, err := readLong()
		if err != nil {
			return nil, err
		}

		if diffLen > 0 {
			diffBuf := make([]byte, diffLen)
			if _, err := io.ReadFull(patch, diffBuf); err != nil {
				return nil, err
			}
			for i := int64(0); i < diffLen; i++ {
				if oldPos+int(i) >= len(old) {
					return nil, errs.ErrCorruptArchive
				}
				diffBuf[i] += old[oldPos+int(i)]
			}
			out = append(out, diffBuf...)
		}
		oldPos += int(diffLen)

		if extraLen > 0 {
			extraBuf := make([]byte, extraLen)
			if _, err := io.ReadFull(patch, extraBuf); err != nil {
				return nil, err
			}
			out = append(out, extraBuf...)
		}

		oldPos += int(oldOffsetDelta)
	}

	return out, nil
}
