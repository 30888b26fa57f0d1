// Package prediff pairs entries across an old and new archive,
// classifies each pair, and chooses whether to uncompress one side,
// both, or neither before bsdiff runs over them: deflate-compressed
// bytes are nearly unrelated even for a one-byte source change, so
// bsdiff needs the uncompressed form to find any structure at all.
package prediff

import (
	"github.com/patchkit/archivepatch/deflateparam"
	"github.com/patchkit/archivepatch/drange"
	"github.com/patchkit/archivepatch/zipentry"
)

// UncompressionOption selects which side(s) of a matched entry pair
// get uncompressed before diffing.
type UncompressionOption int

const (
	Neither UncompressionOption = iota
	Old
	New
	Both
)

func (o UncompressionOption) String() string {
	switch o {
	case Neither:
		return "NEITHER"
	case Old:
		return "OLD"
	case New:
		return "NEW"
	case Both:
		return "BOTH"
	default:
		return "UNKNOWN"
	}
}

// Explanation names why a given UncompressionOption was chosen, per
// the classification table, plus the limiter's own RESOURCE_CONSTRAINED
// downgrade reason.
type Explanation int

const (
	CompressedBytesIdentical Explanation = iota
	CompressedBytesChanged
	CompressedChangedToUncompressed
	UncompressedChangedToCompressed
	BothEntriesUncompressed
	Unsuitable
	DeflateUnsuitable
	ResourceConstrained
)

func (e Explanation) String() string {
	switch e {
	case CompressedBytesIdentical:
		return "COMPRESSED_BYTES_IDENTICAL"
	case CompressedBytesChanged:
		return "COMPRESSED_BYTES_CHANGED"
	case CompressedChangedToUncompressed:
		return "COMPRESSED_CHANGED_TO_UNCOMPRESSED"
	case UncompressedChangedToCompressed:
		return "UNCOMPRESSED_CHANGED_TO_COMPRESSED"
	case BothEntriesUncompressed:
		return "BOTH_ENTRIES_UNCOMPRESSED"
	case Unsuitable:
		return "UNSUITABLE"
	case DeflateUnsuitable:
		return "DEFLATE_UNSUITABLE"
	case ResourceConstrained:
		return "RESOURCE_CONSTRAINED"
	default:
		return "UNKNOWN"
	}
}

// DeltaFormat selects how a matched pair's delta-friendly bytes are
// eventually diffed: a plain bsdiff run, or (for a cleanly-parsing
// embedded archive) a recursive nested patch.
type DeltaFormat int

const (
	BSDIFF DeltaFormat = iota
	FileByFile
)

func (f DeltaFormat) String() string {
	if f == FileByFile {
		return "FILE_BY_FILE"
	}

	return "BSDIFF"
}

// PlanEntry is one PreDiffPlanEntry: one per (old, new) pair, or one
// per orphan new entry that has no old counterpart (Old is the zero
// value in that case).
type PlanEntry struct {
	Old, New                       zipentry.Entry
	HasOld                         bool
	UncompressionOption            UncompressionOption
	UncompressionOptionExplanation Explanation
	DeltaFormat                    DeltaFormat
	DeltaFormatExplanation         string

	// cost is uncompressedSize - compressedLen for the new entry,
	// the figure the recompression limiter ranks candidates by.
	cost int64

	// newParams holds the DeflateParameters classify already divined
	// for a New/Both entry, so assemblePlan never re-derives them.
	newParams deflateparam.Parameters
}

// Plan is the PreDiffPlan: three offset-ordered, non-overlapping range
// lists plus the per-entry classification record.
type Plan struct {
	OldUncompressRanges []drange.Range
	NewUncompressRanges []drange.TypedRange[deflateparam.Parameters]
	NewRecompressRanges []drange.TypedRange[deflateparam.Parameters]
	Entries             []PlanEntry
}
