package patch

import (
	"bytes"
	"context"

	"github.com/patchkit/archivepatch/bsdiff"
	"github.com/patchkit/archivepatch/bytesource"
)

// Generator produces the bytes for one DeltaEntry given the matching
// old and new spans of the two delta-friendly blobs.
type Generator interface {
	// Format reports the DeltaEntry.DeltaFormat this Generator produces.
	Format() uint8

	// Generate computes delta bytes transforming old into newb.
	Generate(ctx context.Context, old, newb []byte) ([]byte, error)
}

// BSDIFFGenerator produces a plain bsdiff stream.
type BSDIFFGenerator struct {
	MinLength int
}

// Format implements Generator.
func (g BSDIFFGenerator) Format() uint8 { return FormatBSDIFF }

// Generate implements Generator.
func (g BSDIFFGenerator) Generate(ctx context.Context, old, newb []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := bsdiff.Write(ctx, &buf, old, newb, g.MinLength); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// FileByFileGenerator recurses the whole patch pipeline over old and
// newb, treating them as nested ZIP-family archives: its output is
// itself a complete patch container. Pipeline is supplied by the
// caller (the root archivepatch package), since building one requires
// the full planner/executor/generator wiring this package doesn't own.
type FileByFileGenerator struct {
	Pipeline func(ctx context.Context, old, newb bytesource.Source) (*Container, error)
}

// Format implements Generator.
func (g FileByFileGenerator) Format() uint8 { return FormatFileByFile }

// Generate implements Generator.
func (g FileByFileGenerator) Generate(ctx context.Context, old, newb []byte) ([]byte, error) {
	nested, err := g.Pipeline(ctx, bytesource.NewMemory(old), bytesource.NewMemory(newb))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := Write(&buf, nested); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
