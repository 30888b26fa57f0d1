// Package errs collects the sentinel errors shared across archivepatch's
// packages so callers can use errors.Is instead of string matching.
package errs

import "errors"

var (
	// ErrInputTooLarge is returned by suffixarray.Build when the input
	// would overflow the suffix array's 32-bit positional encoding.
	ErrInputTooLarge = errors.New("archivepatch: input too large for suffix array construction")

	// ErrCorruptArchive is returned when a ZIP central directory or
	// local file header cannot be parsed.
	ErrCorruptArchive = errors.New("archivepatch: corrupt zip archive")

	// ErrUndivinableDeflate is returned when no (level, strategy, nowrap)
	// triple reproduces an entry's observed compressed bytes.
	ErrUndivinableDeflate = errors.New("archivepatch: deflate parameters not divinable")

	// ErrUnsuitableEntry names entries that cannot participate in
	// delta-friendly uncompression (non-deflate compression methods).
	// prediff.Planner records such entries in its plan rather than
	// returning this error.
	ErrUnsuitableEntry = errors.New("archivepatch: entry unsuitable for delta-friendly processing")

	// ErrInterrupted names a cooperative cancellation. The cancellable
	// operations in this module (suffixarray.Build, the matcher, bsdiff,
	// prediff.Executor) return ctx.Err() rather than this sentinel.
	ErrInterrupted = errors.New("archivepatch: operation interrupted")

	// ErrPrecondition is returned for programmer-error preconditions,
	// e.g. opening a second writer on a TempBlob.
	ErrPrecondition = errors.New("archivepatch: precondition violated")

	// ErrRangeOverlap names an ordered range list that would no longer
	// be strictly increasing and non-overlapping. No function in this
	// module returns it.
	ErrRangeOverlap = errors.New("archivepatch: overlapping or out-of-order range")

	// ErrShortBuffer names a fixed-size record parsed from a byte slice
	// shorter than its encoded length. No function in this module
	// returns it.
	ErrShortBuffer = errors.New("archivepatch: buffer too short for record")

	// ErrBadMagic is returned when a framed container's magic bytes do
	// not match the expected value.
	ErrBadMagic = errors.New("archivepatch: bad magic bytes")

	// ErrValueOutOfRange names an integer that does not fit the encoding
	// being used for it. No function in this module returns it.
	ErrValueOutOfRange = errors.New("archivepatch: value out of range for encoding")
)
