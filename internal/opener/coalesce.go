package opener

import (
	"github.com/pspoerri/imgio/internal/codec"
)

// Coalesce merges a chain of uncompressed image directories of identical
// shape whose pixel data is evenly spaced into one descriptor with
// Images = n and Gap = spacing - image size. Any other chain is returned
// unchanged.
func Coalesce(ds []codec.Descriptor) []codec.Descriptor {
	if len(ds) < 2 {
		return ds
	}
	first := ds[0]
	size := first.ImageSize()
	spacing := ds[1].Offset - first.Offset
	if spacing < size {
		return ds
	}
	for i := range ds {
		d := &ds[i]
		if d.Compression.Compressed() || d.NumImages() != 1 || !sameShape(&first, d) {
			return ds
		}
		if i > 0 && d.Offset-ds[i-1].Offset != spacing {
			return ds
		}
	}

	out := first
	out.Images = len(ds)
	out.Gap = spacing - size
	out.StripOffsets, out.StripLengths = nil, nil
	log.Debugf("coalesced %d directories into one stack, gap %d", len(ds), out.Gap)
	return []codec.Descriptor{out}
}

func sameShape(a, b *codec.Descriptor) bool {
	return a.Width == b.Width && a.Height == b.Height && a.Kind == b.Kind &&
		a.Order() == b.Order() && a.SamplesPerPixel == b.SamplesPerPixel
}
