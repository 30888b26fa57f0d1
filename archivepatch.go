// Package archivepatch provides a high-performance, space-efficient binary
// patch generator and applier for ZIP-family archives (ZIP, JAR, APK).
//
// Naively diffing two archives produces a poor delta: even a single
// changed byte inside one compressed entry ripples through every
// byte after it, since deflate's output has no relationship to small
// changes in its input. archivepatch avoids this by uncompressing
// entries before diffing (prediff), bsdiff-ing the resulting
// delta-friendly blobs (bsdiff), and recompressing the affected spans
// back into the target archive's own entries during patch application.
//
// # Core Features
//
//   - Archive-aware pre-diff planning: matches old/new entries by name
//     or content, and chooses per-pair whether to uncompress one side,
//     both, or neither before diffing (prediff.Planner)
//   - Deflate parameter divination: recovers the (level, strategy,
//     nowrap) triple that reproduces an observed deflate stream byte
//     for byte, so recompression is lossless (deflateparam.Diviner)
//   - Suffix-array-backed bsdiff core for the actual delta computation
//     (suffixarray, matcher, bsdiff)
//   - Recursive FILE_BY_FILE deltas for entries that are themselves
//     nested archives (patch.FileByFileGenerator)
//   - A framed, versioned patch container format (patch.Container)
//
// # Basic Usage
//
// Generating a patch between two archives:
//
//	import "github.com/patchkit/archivepatch"
//
//	oldSrc, _ := bytesource.OpenFile("old.apk")
//	newSrc, _ := bytesource.OpenFile("new.apk")
//
//	g, err := archivepatch.NewGenerator()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	container, err := g.Generate(context.Background(), oldSrc, newSrc)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	f, _ := os.Create("update.patch")
//	patch.Write(f, container)
//
// Applying a previously generated patch:
//
//	oldBytes, _ := os.ReadFile("old.apk")
//	container, _ := patch.Read(patchFile)
//	newBytes, err := archivepatch.Apply(oldBytes, container)
//
// # Package Structure
//
// This package provides a convenient top-level wrapper around the
// prediff, patch, bsdiff, and zipentry packages, wiring them into the
// end-to-end pipeline. For fine-grained control over planning,
// recompression budgets, or the bsdiff core directly, use those
// packages.
package archivepatch

import (
	"bytes"
	"context"
	"sort"

	"github.com/patchkit/archivepatch/bytesource"
	"github.com/patchkit/archivepatch/drange"
	"github.com/patchkit/archivepatch/errs"
	"github.com/patchkit/archivepatch/internal/options"
	"github.com/patchkit/archivepatch/patch"
	"github.com/patchkit/archivepatch/prediff"
	"github.com/patchkit/archivepatch/tempblob"
	"github.com/patchkit/archivepatch/zipentry"
)

// maxFileByFileDepth bounds how many archive levels deep Generator will
// recurse into a nested ZIP-family entry before giving up and falling
// back to a plain BSDIFF delta for it.
const maxFileByFileDepth = 1

// Generator wires the full pipeline: zip enumeration, pre-diff
// planning, delta-friendly blob materialization, and per-entry delta
// generation, into one call producing a complete patch.Container.
type Generator struct {
	minMatchLength      int
	recompressionBudget int64
	plannerOpts         []prediff.Option

	// depth is how many FILE_BY_FILE levels this Generator is nested
	// below the top-level one (0 for a Generator from NewGenerator).
	depth int
}

// Option configures a Generator.
type Option = options.Option[*Generator]

// WithMinMatchLength sets the bsdiff matcher's minimum match length.
// Smaller values find more matches at the cost of search time; the
// default (matcher.DefaultMinLength) suits most archives.
func WithMinMatchLength(n int) Option {
	return options.NoError(func(g *Generator) { g.minMatchLength = n })
}

// WithRecompressionBudget caps the total recompression cost (each
// new-side entry's uncompressed size minus its compressed size) the
// Generator will accept across all entries, downgrading the priciest
// entries past the cap (prediff.NewRecompressionLimiter).
// A non-positive budget (the default) disables the cap.
func WithRecompressionBudget(budget int64) Option {
	return options.NoError(func(g *Generator) { g.recompressionBudget = budget })
}

// NewGenerator creates a Generator ready to produce patches.
func NewGenerator(opts ...Option) (*Generator, error) {
	g := &Generator{minMatchLength: 16}
	if err := options.Apply(g, opts...); err != nil {
		return nil, err
	}

	return g, nil
}

// Generate produces a complete patch.Container transforming oldSrc
// into newSrc. It enumerates both archives' entries, plans the
// uncompression/recompression strategy per matched pair, materializes
// the two delta-friendly blobs, and computes one DeltaEntry per
// planned new entry (BSDIFF, or a recursive nested container for
// entries that parse as nested archives on both sides), plus BSDIFF
// filler entries for the new blob's bytes between and after them.
func (g *Generator) Generate(ctx context.Context, oldSrc, newSrc bytesource.Source) (*patch.Container, error) {
	oldEntries, err := zipentry.Read(oldSrc)
	if err != nil {
		return nil, err
	}
	newEntries, err := zipentry.Read(newSrc)
	if err != nil {
		return nil, err
	}

	plannerOpts := append([]prediff.Option{}, g.plannerOpts...)
	if g.recompressionBudget > 0 {
		plannerOpts = append(plannerOpts, prediff.WithModifier(prediff.NewRecompressionLimiter(g.recompressionBudget)))
	}

	planner, err := prediff.NewPlanner(plannerOpts...)
	if err != nil {
		return nil, err
	}

	plan, err := planner.Plan(oldSrc, newSrc, oldEntries, newEntries)
	if err != nil {
		return nil, err
	}

	executor := prediff.NewExecutor()
	result, err := executor.Execute(ctx, oldSrc, newSrc, plan)
	if err != nil {
		return nil, err
	}
	defer result.OldBlob.Close()
	defer result.NewBlob.Close()

	oldFriendly, err := readBlob(result.OldBlob)
	if err != nil {
		return nil, err
	}
	newFriendly, err := readBlob(result.NewBlob)
	if err != nil {
		return nil, err
	}

	entries, err := g.deltaEntries(ctx, oldFriendly, newFriendly, plan.Entries, result)
	if err != nil {
		return nil, err
	}

	return &patch.Container{
		OldDFriendlySize:    int64(len(oldFriendly)),
		OldUncompressRanges: plan.OldUncompressRanges,
		NewRecompressRanges: result.NewRecompressRanges,
		DeltaEntries:        entries,
	}, nil
}

// deltaEntries computes one DeltaEntry per PlanEntry (a matched pair,
// or an orphan new entry diffed against an empty old span), plus a
// filler BSDIFF entry for every gap between them: the bytes a
// non-seekable zip writer appends after each entry (its data
// descriptor), and the central directory and end-of-central-directory
// record trailing the last entry. Archive footprints only ever cover
// local headers through compressed data, so without these fillers the
// delta-friendly blob's tail and inter-entry padding would never be
// named by any DeltaEntry, breaking the apply side's requirement that
// NewBlobRanges tile the new blob with no gaps. Each entry's
// archive-relative span is mapped into the delta-friendly blobs via
// the executor's boundary maps, and the appropriate Generator (BSDIFF,
// or recursive FILE_BY_FILE for matched nested archives) runs over the
// resulting span.
func (g *Generator) deltaEntries(ctx context.Context, oldFriendly, newFriendly []byte, entries []prediff.PlanEntry, result *prediff.Result) ([]patch.DeltaEntry, error) {
	type indexed struct {
		entry prediff.PlanEntry
		order int64
	}

	ordered := make([]indexed, 0, len(entries))
	for _, e := range entries {
		ordered = append(ordered, indexed{entry: e, order: e.New.LocalEntryRange.Offset})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].order < ordered[j].order })

	out := make([]patch.DeltaEntry, 0, 2*len(ordered)+1)
	oldCursor, newCursor := int64(0), int64(0)

	appendBSDIFF := func(oldStart, oldEnd, newStart, newEnd int64) error {
		if oldStart < 0 || oldEnd > int64(len(oldFriendly)) || newStart < 0 || newEnd > int64(len(newFriendly)) {
			return errs.ErrCorruptArchive
		}

		deltaBytes, err := (patch.BSDIFFGenerator{MinLength: g.minMatchLength}).Generate(
			ctx, oldFriendly[oldStart:oldEnd], newFriendly[newStart:newEnd])
		if err != nil {
			return err
		}

		out = append(out, patch.DeltaEntry{
			DeltaFormat:  patch.FormatBSDIFF,
			OldBlobRange: drange.NewRange(oldStart, oldEnd-oldStart),
			NewBlobRange: drange.NewRange(newStart, newEnd-newStart),
			DeltaBytes:   deltaBytes,
		})

		return nil
	}

	for _, m := range ordered {
		e := m.entry

		oldOffset, oldEndOffset := e.Old.LocalEntryRange.Offset, e.Old.CompressedDataRange.End()
		if !e.HasOld {
			oldOffset, oldEndOffset = 0, 0
		}

		oldStart := result.OldBoundaries.Offset(oldOffset)
		oldEnd := result.OldBoundaries.Offset(oldEndOffset)
		newStart := result.NewBoundaries.Offset(e.New.LocalEntryRange.Offset)
		newEnd := result.NewBoundaries.Offset(e.New.CompressedDataRange.End())
		if oldStart < 0 || oldEnd > int64(len(oldFriendly)) || newStart < 0 || newEnd > int64(len(newFriendly)) {
			return nil, errs.ErrCorruptArchive
		}

		if newStart > newCursor {
			fillOldEnd := oldCursor
			if e.HasOld && oldStart > oldCursor {
				fillOldEnd = oldStart
			}

			if err := appendBSDIFF(oldCursor, fillOldEnd, newCursor, newStart); err != nil {
				return nil, err
			}

			oldCursor = fillOldEnd
		}

		oldSpan := oldFriendly[oldStart:oldEnd]
		newSpan := newFriendly[newStart:newEnd]

		gen, err := g.generatorFor(e, g.depth)
		if err != nil {
			return nil, err
		}

		deltaBytes, err := gen.Generate(ctx, oldSpan, newSpan)
		if err != nil {
			return nil, err
		}

		out = append(out, patch.DeltaEntry{
			DeltaFormat:  gen.Format(),
			OldBlobRange: drange.NewRange(oldStart, oldEnd-oldStart),
			NewBlobRange: drange.NewRange(newStart, newEnd-newStart),
			DeltaBytes:   deltaBytes,
		})

		newCursor = newEnd
		if oldEnd > oldCursor {
			oldCursor = oldEnd
		}
	}

	if newCursor < int64(len(newFriendly)) {
		if err := appendBSDIFF(oldCursor, int64(len(oldFriendly)), newCursor, int64(len(newFriendly))); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// generatorFor picks the patch.Generator for entry, honoring its
// planner-assigned DeltaFormat while bounding FILE_BY_FILE recursion.
func (g *Generator) generatorFor(entry prediff.PlanEntry, depth int) (patch.Generator, error) {
	if entry.DeltaFormat == prediff.FileByFile && depth < maxFileByFileDepth {
		return patch.FileByFileGenerator{
			Pipeline: func(ctx context.Context, old, newb bytesource.Source) (*patch.Container, error) {
				nested, err := NewGenerator(WithMinMatchLength(g.minMatchLength))
				if err != nil {
					return nil, err
				}
				nested.depth = depth + 1

				return nested.Generate(ctx, old, newb)
			},
		}, nil
	}

	return patch.BSDIFFGenerator{MinLength: g.minMatchLength}, nil
}

// readBlob materializes a tempblob.Blob's full contents into memory.
func readBlob(b *tempblob.Blob) ([]byte, error) {
	r, err := b.OpenReader()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Apply reconstructs the new archive bytes from oldArchive and a
// previously generated patch.Container: it replays c's delta entries
// against the old archive's delta-friendly form and recompresses the
// new-side ranges c.NewRecompressRanges names, producing bytes
// byte-identical to the archive the patch was generated from.
func Apply(oldArchive []byte, c *patch.Container) ([]byte, error) {
	oldFriendly, err := materializeOldFriendly(oldArchive, c.OldUncompressRanges)
	if err != nil {
		return nil, err
	}

	newFriendly, err := patch.Apply(oldFriendly, c)
	if err != nil {
		return nil, err
	}

	return patch.Recompress(newFriendly, c.NewRecompressRanges)
}

// materializeOldFriendly rebuilds the old delta-friendly blob by
// inflating exactly the ranges the original Generate call chose to
// uncompress, mirroring prediff.Executor's old-side materialization.
func materializeOldFriendly(oldArchive []byte, ranges []drange.Range) ([]byte, error) {
	oldSrc := bytesource.NewMemory(oldArchive)

	executor := prediff.NewExecutor()
	plan := &prediff.Plan{OldUncompressRanges: ranges}

	result, err := executor.Execute(context.Background(), oldSrc, oldSrc, plan)
	if err != nil {
		return nil, err
	}
	defer result.OldBlob.Close()
	defer result.NewBlob.Close()

	return readBlob(result.OldBlob)
}
