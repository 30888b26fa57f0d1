// Package drange defines the byte-offset ranges that archivepatch's
// planner, executor, and patch writer pass between each other: plain
// Range values for old-file uncompression spans, and TypedRange[M] for
// new-file spans that also carry reconstruction metadata (deflate
// parameters).
package drange

import "fmt"

// Range is an immutable (offset, length) span over some blob. Two
// Ranges compare equal iff both fields match; the ordering used by
// plan-level lists is strictly by Offset.
type Range struct {
	Offset int64
	Length int64
}

// NewRange constructs a Range. Offset and Length are both allowed to be
// zero (an empty range at the start of the blob) but never negative.
func NewRange(offset, length int64) Range {
	return Range{Offset: offset, Length: length}
}

// End returns the exclusive end offset of the range (Offset + Length).
func (r Range) End() int64 { return r.Offset + r.Length }

// Empty reports whether the range covers zero bytes.
func (r Range) Empty() bool { return r.Length == 0 }

// Overlaps reports whether r and other share any byte.
func (r Range) Overlaps(other Range) bool {
	return r.Offset < other.End() && other.Offset < r.End()
}

// String renders the range as "[offset,end)" for diagnostics.
func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Offset, r.End())
}

// TypedRange attaches metadata M (typically DeflateParameters) to a
// Range, used for the new-file uncompression and recompression plan
// lists where the reconstruction step needs more than just the span.
type TypedRange[M any] struct {
	Range
	Metadata M
}

// NewTypedRange constructs a TypedRange.
func NewTypedRange[M any](offset, length int64, metadata M) TypedRange[M] {
	return TypedRange[M]{Range: NewRange(offset, length), Metadata: metadata}
}

// StrictlyOrdered reports whether ranges is sorted by Offset, contains
// no duplicate offsets, and has no pair of overlapping ranges — the
// invariant every plan-level range list must hold.
func StrictlyOrdered(ranges []Range) bool {
	for i := 1; i < len(ranges); i++ {
		if ranges[i].Offset <= ranges[i-1].Offset {
			return false
		}
		if ranges[i-1].Overlaps(ranges[i]) {
			return false
		}
	}

	return true
}

// StrictlyOrderedTyped is StrictlyOrdered for a TypedRange slice.
func StrictlyOrderedTyped[M any](ranges []TypedRange[M]) bool {
	for i := 1; i < len(ranges); i++ {
		if ranges[i].Offset <= ranges[i-1].Offset {
			return false
		}
		if ranges[i-1].Overlaps(ranges[i].Range) {
			return false
		}
	}

	return true
}
