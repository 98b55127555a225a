package codec

import (
	"encoding/binary"
)

// Descriptor describes the layout of the pixel data of one image or of a
// run of equally shaped images.
type Descriptor struct {
	Width  int
	Height int
	Kind   Kind

	// ByteOrder of multi-byte samples. Nil means big endian.
	ByteOrder   binary.ByteOrder
	Compression Compression

	// Images is the number of images stored back to back, Gap bytes apart.
	Images int
	// Offset is the position of the first image relative to the start of
	// the source.
	Offset int64
	Gap    int64

	// Strip layout, only used for compressed images. Offsets are absolute
	// and must not overlap: each strip starts at or after the end of the
	// previous one.
	StripOffsets []int64
	StripLengths []int64
	RowsPerStrip int

	// SamplesPerPixel is 4 for chunky RGB data that carries an extra
	// sample. Zero is treated as the natural count of the kind.
	SamplesPerPixel int

	// Color map for Color8Indexed.
	Reds, Greens, Blues []byte
	LUTSize             int

	WhiteIsZero bool

	// Calibration and metadata.
	PixelWidth    float64
	PixelHeight   float64
	PixelDepth    float64
	Unit          string
	FrameInterval float64
	Description   string
	Info          string
	SliceLabels   []string
	RoiData       []byte
	Overlay       [][]byte

	// Where the image came from.
	Name      string
	Directory string
	URL       string
}

// Order returns the byte order of multi-byte samples.
func (d *Descriptor) Order() binary.ByteOrder {
	if d.ByteOrder == nil {
		return binary.BigEndian
	}
	return d.ByteOrder
}

// LittleEndian reports whether samples are stored least significant byte
// first.
func (d *Descriptor) LittleEndian() bool {
	return d.ByteOrder == binary.LittleEndian
}

// NumImages returns Images, treating zero as one.
func (d *Descriptor) NumImages() int {
	if d.Images < 1 {
		return 1
	}
	return d.Images
}

// channels returns the number of interleaved samples per pixel of chunky
// RGB kinds and 1 otherwise.
func (d *Descriptor) channels() int {
	switch d.Kind {
	case RGB24, BGR24, RGB48:
		if d.SamplesPerPixel == 4 {
			return 4
		}
		return 3
	case ARGB32, ABGR32, BARG32:
		return 4
	case RGBPlanar, RGB48Planar:
		return 3
	}
	return 1
}

// BytesPerPixel is the stored size of one pixel, taking an extra fourth
// sample of chunky RGB data into account.
func (d *Descriptor) BytesPerPixel() int {
	switch d.Kind {
	case RGB24, BGR24:
		if d.SamplesPerPixel == 4 {
			return 4
		}
	case RGB48:
		if d.SamplesPerPixel == 4 {
			return 8
		}
	}
	return d.Kind.BytesPerPixel()
}

// RowBytes is the stored size of one row.
func (d *Descriptor) RowBytes() int64 {
	w := int64(d.Width)
	switch d.Kind {
	case Bitmap1:
		return (w + 7) / 8
	case Gray12Unsigned:
		return (3*w + 1) / 2
	case RGBPlanar, RGB48Planar:
		// Planes are stored one after the other; a row of one plane.
		return w * int64(d.Kind.BytesPerPixel()/3)
	}
	return w * int64(d.BytesPerPixel())
}

// ImageSize returns the exact number of stored bytes per image.
func (d *Descriptor) ImageSize() int64 {
	w, h := int64(d.Width), int64(d.Height)
	switch d.Kind {
	case Bitmap1, Gray12Unsigned:
		return d.RowBytes() * h
	}
	return w * h * int64(d.BytesPerPixel())
}

// Validate checks the geometry against a file of fileLength bytes before
// anything is read. A non-positive fileLength skips the size check.
//
// Strips of a compressed image must not overlap.
//
// Offsets below 1000 bytes are accepted without looking at the file length,
// as are bitmap and compressed images. A single image only has to fit a
// quarter of its size into the file, and images one row high are not
// checked at all.
func (d *Descriptor) Validate(fileLength int64) error {
	if d.Width <= 0 || d.Height <= 0 {
		return Validationf("width or height <= 0 (%dx%d)", d.Width, d.Height)
	}
	if d.Kind < Gray8 || d.Kind > Bitmap1 {
		return Structuralf("unsupported pixel kind %d", int(d.Kind))
	}
	if d.Compression.Compressed() {
		if len(d.StripOffsets) == 0 || len(d.StripOffsets) != len(d.StripLengths) {
			return Validationf("compressed image needs matching strip offsets and lengths (%d, %d)",
				len(d.StripOffsets), len(d.StripLengths))
		}
		if d.NumImages() > 1 {
			return Validationf("compressed images must be described one at a time, got %d", d.Images)
		}
		for i := 1; i < len(d.StripOffsets); i++ {
			end := d.StripOffsets[i-1] + d.StripLengths[i-1]
			if d.StripOffsets[i] < end {
				return Validationf("strip %d starts at %d, before the end of strip %d at %d",
					i, d.StripOffsets[i], i-1, end)
			}
		}
	}
	if d.NumImages() > 1 && d.Gap < 0 {
		return Validationf("gap between images is negative (%d)", d.Gap)
	}
	if d.Offset >= 0 && d.Offset < 1000 {
		return nil
	}
	if d.Offset < 0 {
		return Validationf("offset is negative (%d)", d.Offset)
	}
	if d.Kind == Bitmap1 || d.Compression.Compressed() || fileLength <= 0 {
		return nil
	}
	size := d.ImageSize()
	if d.NumImages() == 1 {
		size /= 4
	}
	if d.Height == 1 {
		size = 0
	}
	if d.Offset+size > fileLength {
		return Validationf("offset + image size > file length (%d + %d > %d)", d.Offset, size, fileLength)
	}
	return nil
}
