package prediff

import (
	"bytes"
	"sort"

	"github.com/patchkit/archivepatch/bytesource"
	"github.com/patchkit/archivepatch/deflateparam"
	"github.com/patchkit/archivepatch/drange"
	"github.com/patchkit/archivepatch/internal/dedup"
	"github.com/patchkit/archivepatch/internal/hash"
	"github.com/patchkit/archivepatch/internal/options"
	"github.com/patchkit/archivepatch/zipentry"
)

// Modifier is a PreDiffPlanEntryModifier: a pass that rewrites a
// fully-classified entry list, typically to downgrade some entries
// under a resource cap. It runs after Planner.Plan's own classification
// and before the plan's range lists are finalized.
type Modifier func(entries []PlanEntry) []PlanEntry

// Planner pairs old/new archive entries and classifies each pair.
type Planner struct {
	diviner   *deflateparam.Diviner
	modifiers []Modifier
}

// Option configures a Planner.
type Option = options.Option[*Planner]

// WithModifier appends a PreDiffPlanEntryModifier run after
// classification, such as NewRecompressionLimiter.
func WithModifier(m Modifier) Option {
	return options.NoError(func(p *Planner) { p.modifiers = append(p.modifiers, m) })
}

// NewPlanner creates a Planner ready to classify entry pairs.
func NewPlanner(opts ...Option) (*Planner, error) {
	p := &Planner{diviner: deflateparam.NewDiviner()}
	if err := options.Apply(p, opts...); err != nil {
		return nil, err
	}

	return p, nil
}

// Plan pairs oldEntries against newEntries (by filename, falling back
// to a CRC-32 rename match), classifies every pair, and returns the
// resulting Plan with all range lists in strictly ascending offset
// order.
func (p *Planner) Plan(oldSrc, newSrc bytesource.Source, oldEntries, newEntries []zipentry.Entry) (*Plan, error) {
	byName := make(map[uint64]zipentry.Entry, len(oldEntries))
	byCRC := make(map[uint32]zipentry.Entry, len(oldEntries))
	for _, e := range oldEntries {
		byName[hash.OfBytes(e.Filename)] = e
		if _, exists := byCRC[e.CRC32]; !exists {
			byCRC[e.CRC32] = e
		}
	}

	entries := make([]PlanEntry, 0, len(newEntries))
	for _, newE := range newEntries {
		oldE, hasOld := byName[hash.OfBytes(newE.Filename)]
		if !hasOld {
			oldE, hasOld = byCRC[newE.CRC32]
		}

		entry := PlanEntry{Old: oldE, New: newE, HasOld: hasOld, cost: newE.UncompressedSize - newE.CompressedSize}

		if hasOld {
			option, explanation, params, hasParams := p.classify(oldSrc, newSrc, oldE, newE)
			entry.UncompressionOption = option
			entry.UncompressionOptionExplanation = explanation
			if hasParams {
				entry.newParams = params
			}
			entry.deltaFormat(oldSrc, newSrc, oldE, newE, hasOld)
		} else {
			entry.UncompressionOption = Neither
			entry.UncompressionOptionExplanation = Unsuitable
			entry.DeltaFormat = BSDIFF
			entry.DeltaFormatExplanation = "no old counterpart"
		}

		entries = append(entries, entry)
	}

	for _, m := range p.modifiers {
		entries = m(entries)
	}

	return p.assemblePlan(entries), nil
}

// classify applies the uncompression decision table to one matched
// pair, returning the chosen option, its explanation, and (when the
// new side gets uncompressed) the divined DeflateParameters needed to
// recompress it during patch application.
func (p *Planner) classify(oldSrc, newSrc bytesource.Source, oldE, newE zipentry.Entry) (UncompressionOption, Explanation, deflateparam.Parameters, bool) {
	if !isStoredOrDeflate(oldE) || !isStoredOrDeflate(newE) {
		return Neither, Unsuitable, deflateparam.Parameters{}, false
	}

	oldDeflate := oldE.IsDeflateCompressed()
	newDeflate := newE.IsDeflateCompressed()

	switch {
	case oldDeflate && newDeflate:
		oldBytes, err := bytesource.ReadAll(oldSrc, oldE.CompressedDataRange.Offset, oldE.CompressedDataRange.Length)
		if err != nil {
			return Neither, Unsuitable, deflateparam.Parameters{}, false
		}
		newBytes, err := bytesource.ReadAll(newSrc, newE.CompressedDataRange.Offset, newE.CompressedDataRange.Length)
		if err != nil {
			return Neither, Unsuitable, deflateparam.Parameters{}, false
		}
		if bytes.Equal(oldBytes, newBytes) {
			return Neither, CompressedBytesIdentical, deflateparam.Parameters{}, false
		}

		params, ok := p.divineNew(newBytes)
		if !ok {
			return Neither, DeflateUnsuitable, deflateparam.Parameters{}, false
		}

		return Both, CompressedBytesChanged, params, true

	case oldDeflate && !newDeflate:
		return Old, CompressedChangedToUncompressed, deflateparam.Parameters{}, false

	case !oldDeflate && newDeflate:
		newBytes, err := bytesource.ReadAll(newSrc, newE.CompressedDataRange.Offset, newE.CompressedDataRange.Length)
		if err != nil {
			return Neither, DeflateUnsuitable, deflateparam.Parameters{}, false
		}

		params, ok := p.divineNew(newBytes)
		if !ok {
			return Neither, DeflateUnsuitable, deflateparam.Parameters{}, false
		}

		return New, UncompressedChangedToCompressed, params, true

	default:
		return Neither, BothEntriesUncompressed, deflateparam.Parameters{}, false
	}
}

func (p *Planner) divineNew(compressed []byte) (deflateparam.Parameters, bool) {
	uncompressed, err := deflateparam.Inflate(bytes.NewReader(compressed), deflateparam.Parameters{NoWrap: true})
	if err != nil {
		return deflateparam.Parameters{}, false
	}

	params, err := p.diviner.Divine(uncompressed, compressed)
	if err != nil {
		return deflateparam.Parameters{}, false
	}

	return params, true
}

// deltaFormat decides BSDIFF vs FILE_BY_FILE for entry, by attempting
// to parse both sides' uncompressed content as a ZIP-family archive.
func (pe *PlanEntry) deltaFormat(oldSrc, newSrc bytesource.Source, oldE, newE zipentry.Entry, hasOld bool) {
	if !hasOld {
		pe.DeltaFormat = BSDIFF
		pe.DeltaFormatExplanation = "no old counterpart"
		return
	}

	oldContent, err := uncompressedContent(oldSrc, oldE)
	if err != nil {
		pe.DeltaFormat = BSDIFF
		pe.DeltaFormatExplanation = "old entry content unreadable"
		return
	}
	newContent, err := uncompressedContent(newSrc, newE)
	if err != nil {
		pe.DeltaFormat = BSDIFF
		pe.DeltaFormatExplanation = "new entry content unreadable"
		return
	}

	if _, err := zipentry.Read(bytesource.NewMemory(oldContent)); err != nil {
		pe.DeltaFormat = BSDIFF
		pe.DeltaFormatExplanation = "old content is not a parseable archive"
		return
	}
	if _, err := zipentry.Read(bytesource.NewMemory(newContent)); err != nil {
		pe.DeltaFormat = BSDIFF
		pe.DeltaFormatExplanation = "new content is not a parseable archive"
		return
	}

	pe.DeltaFormat = FileByFile
	pe.DeltaFormatExplanation = "both sides parse as nested archives"
}

func uncompressedContent(src bytesource.Source, e zipentry.Entry) ([]byte, error) {
	raw, err := bytesource.ReadAll(src, e.CompressedDataRange.Offset, e.CompressedDataRange.Length)
	if err != nil {
		return nil, err
	}
	if !e.IsDeflateCompressed() {
		return raw, nil
	}

	return deflateparam.Inflate(bytes.NewReader(raw), deflateparam.Parameters{NoWrap: true})
}

func isStoredOrDeflate(e zipentry.Entry) bool {
	return e.CompressionMethod == zipentry.MethodStored || e.CompressionMethod == zipentry.MethodDeflate
}

// assemblePlan re-runs classification's stored decisions into the
// three range lists, deduplicating old-side ranges by offset (a
// clone-and-recompress old entry must appear at most once) and
// sorting every list ascending.
func (p *Planner) assemblePlan(entries []PlanEntry) *Plan {
	plan := &Plan{Entries: entries}

	seenOld := dedup.NewOffsetTracker()

	for _, e := range entries {
		switch e.UncompressionOption {
		case Old, Both:
			if seenOld.Claim(e.Old.CompressedDataRange.Offset) {
				plan.OldUncompressRanges = append(plan.OldUncompressRanges, e.Old.CompressedDataRange)
			}
		}

		switch e.UncompressionOption {
		case New, Both:
			tr := drange.NewTypedRange(e.New.CompressedDataRange.Offset, e.New.CompressedDataRange.Length, e.newParams)
			plan.NewUncompressRanges = append(plan.NewUncompressRanges, tr)
			plan.NewRecompressRanges = append(plan.NewRecompressRanges, tr)
		}
	}

	sort.Slice(plan.OldUncompressRanges, func(i, j int) bool {
		return plan.OldUncompressRanges[i].Offset < plan.OldUncompressRanges[j].Offset
	})
	sort.Slice(plan.NewUncompressRanges, func(i, j int) bool {
		return plan.NewUncompressRanges[i].Offset < plan.NewUncompressRanges[j].Offset
	})
	sort.Slice(plan.NewRecompressRanges, func(i, j int) bool {
		return plan.NewRecompressRanges[i].Offset < plan.NewRecompressRanges[j].Offset
	})

	return plan
}
