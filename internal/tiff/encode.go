package tiff

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"slices"

	"github.com/juju/errors"

	"github.com/pspoerri/imgio/internal/codec"
)

// pixelOffset is where the pixel data of written files starts, whatever
// the size of the first directory, so the header can be rewritten in place.
const pixelOffset = 768

// field is one directory entry with its values encoded in file byte order.
type field struct {
	tag   uint16
	dt    uint16
	count uint32
	data  []byte
}

func shortField(bo binary.ByteOrder, tag uint16, vals ...uint16) field {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		bo.PutUint16(b[2*i:], v)
	}
	return field{tag, dtShort, uint32(len(vals)), b}
}

func longField(bo binary.ByteOrder, tag uint16, vals ...uint32) field {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		bo.PutUint32(b[4*i:], v)
	}
	return field{tag, dtLong, uint32(len(vals)), b}
}

func rationalField(bo binary.ByteOrder, tag uint16, num, den uint32) field {
	b := make([]byte, 8)
	bo.PutUint32(b, num)
	bo.PutUint32(b[4:], den)
	return field{tag, dtRational, 1, b}
}

func asciiField(tag uint16, s string) field {
	b := append([]byte(s), 0)
	return field{tag, dtASCII, uint32(len(b)), b}
}

func byteField(tag uint16, b []byte) field {
	return field{tag, dtByte, uint32(len(b)), b}
}

func ifdSize(n int) int64 {
	return 2 + 12*int64(n) + 4
}

// writeIFD lays out a directory whose out-of-line data starts at dataAt.
// Fields named in shared point at data placed by an earlier directory
// instead of carrying their own copy. It returns the directory, its data
// and where each out-of-line field ended up.
func writeIFD(bo binary.ByteOrder, fields []field, dataAt int64, shared map[uint16]uint32, next uint32) ([]byte, []byte, map[uint16]uint32) {
	ifd, head, _, placed := splitIFD(bo, fields, dataAt, math.MaxInt64, 0, shared, next)
	return ifd, head, placed
}

// splitIFD is writeIFD with two data regions: values go to the head region
// [headAt, headEnd) in tag order while they fit, the rest to the tail
// region starting at tailAt.
func splitIFD(bo binary.ByteOrder, fields []field, headAt, headEnd, tailAt int64, shared map[uint16]uint32, next uint32) (ifd, head, tail []byte, placed map[uint16]uint32) {
	fields = slices.Clone(fields)
	slices.SortFunc(fields, func(a, b field) int { return int(a.tag) - int(b.tag) })

	ifd = make([]byte, ifdSize(len(fields)))
	bo.PutUint16(ifd, uint16(len(fields)))
	placed = make(map[uint16]uint32)
	for i, f := range fields {
		e := ifd[2+12*i:]
		bo.PutUint16(e[0:], f.tag)
		bo.PutUint16(e[2:], f.dt)
		bo.PutUint32(e[4:], f.count)
		if len(f.data) <= 4 {
			copy(e[8:12], f.data)
			continue
		}
		if off, ok := shared[f.tag]; ok {
			bo.PutUint32(e[8:], off)
			continue
		}
		var off int64
		if headAt+int64(len(head)+len(f.data)) <= headEnd {
			off = headAt + int64(len(head))
			head = appendWord(head, f.data)
		} else {
			off = tailAt + int64(len(tail))
			tail = appendWord(tail, f.data)
		}
		bo.PutUint32(e[8:], uint32(off))
		placed[f.tag] = uint32(off)
	}
	bo.PutUint32(ifd[len(ifd)-4:], next)
	return ifd, head, tail, placed
}

// appendWord appends data padded to an even length.
func appendWord(b, data []byte) []byte {
	b = append(b, data...)
	if len(b)%2 != 0 {
		b = append(b, 0)
	}
	return b
}

func header(bo binary.ByteOrder, first uint32) []byte {
	h := make([]byte, 8)
	if bo == binary.LittleEndian {
		copy(h, "II")
	} else {
		copy(h, "MM")
	}
	bo.PutUint16(h[2:], 42)
	bo.PutUint32(h[4:], first)
	return h
}

// sampleLayout describes how a kind is declared in a directory.
type sampleLayout struct {
	bps          uint16
	spp          uint16
	sampleFormat uint16
	photometric  uint16
	planar       bool
}

func layoutOf(d *codec.Descriptor) (sampleLayout, error) {
	gray := uint16(photometricBlackIsZero)
	if d.WhiteIsZero {
		gray = photometricWhiteIsZero
	}
	switch d.Kind {
	case codec.Bitmap1:
		return sampleLayout{1, 1, sampleFormatUint, gray, false}, nil
	case codec.Gray8:
		return sampleLayout{8, 1, sampleFormatUint, gray, false}, nil
	case codec.Color8Indexed:
		if len(d.Reds) > 0 {
			return sampleLayout{8, 1, sampleFormatUint, photometricPalette, false}, nil
		}
		return sampleLayout{8, 1, sampleFormatUint, gray, false}, nil
	case codec.Gray12Unsigned:
		return sampleLayout{12, 1, sampleFormatUint, gray, false}, nil
	case codec.Gray16Unsigned:
		return sampleLayout{16, 1, sampleFormatUint, gray, false}, nil
	case codec.Gray16Signed:
		return sampleLayout{16, 1, sampleFormatInt, gray, false}, nil
	case codec.Gray24Unsigned:
		return sampleLayout{24, 1, sampleFormatUint, gray, false}, nil
	case codec.Gray32Int:
		return sampleLayout{32, 1, sampleFormatInt, gray, false}, nil
	case codec.Gray32Unsigned:
		return sampleLayout{32, 1, sampleFormatUint, gray, false}, nil
	case codec.Gray32Float:
		return sampleLayout{32, 1, sampleFormatFloat, gray, false}, nil
	case codec.Gray64Float:
		return sampleLayout{64, 1, sampleFormatFloat, gray, false}, nil
	case codec.RGB24, codec.BGR24:
		return sampleLayout{8, 3, sampleFormatUint, photometricRGB, false}, nil
	case codec.RGBPlanar:
		return sampleLayout{8, 3, sampleFormatUint, photometricRGB, true}, nil
	case codec.RGB48:
		return sampleLayout{16, 3, sampleFormatUint, photometricRGB, false}, nil
	case codec.RGB48Planar:
		return sampleLayout{16, 3, sampleFormatUint, photometricRGB, true}, nil
	}
	return sampleLayout{}, codec.Structuralf("%s images cannot be stored in a TIFF file", d.Kind)
}

// fileDescriptor is the layout the pixel data is written in: uncompressed,
// contiguous, and with BGR data stored in RGB order.
func fileDescriptor(d *codec.Descriptor, offset int64) *codec.Descriptor {
	fd := *d
	fd.Compression = codec.CompressionNone
	fd.StripOffsets, fd.StripLengths = nil, nil
	fd.RowsPerStrip = d.Height
	fd.Gap = 0
	fd.Offset = offset
	fd.SamplesPerPixel = 0
	fd.Images = d.NumImages()
	if fd.Kind == codec.BGR24 {
		fd.Kind = codec.RGB24
	}
	return &fd
}

// resolution converts a pixel size to a TIFF rational in pixels per unit.
func resolution(size float64) (uint32, uint32) {
	scale := 1e6
	res := 1 / size
	if res > 1000 {
		scale = 1000
	}
	for res*scale > math.MaxUint32 && scale > 1 {
		scale /= 10
	}
	return uint32(math.Round(res * scale)), uint32(scale)
}

// imageFields returns the directory entries of one image whose pixel data
// starts at stripOffset. Only the first directory carries the description
// and metadata.
func imageFields(fd *codec.Descriptor, l sampleLayout, stripOffset uint32, first bool) []field {
	bo := fd.Order()
	size := uint32(fd.ImageSize())
	fields := []field{
		longField(bo, tagNewSubfileType, 0),
		longField(bo, tagImageWidth, uint32(fd.Width)),
		longField(bo, tagImageLength, uint32(fd.Height)),
		shortField(bo, tagPhotometric, l.photometric),
		longField(bo, tagStripOffsets, stripOffset),
		shortField(bo, tagSamplesPerPixel, l.spp),
		longField(bo, tagRowsPerStrip, uint32(fd.Height)),
		longField(bo, tagStripByteCounts, size),
	}
	if l.spp == 3 {
		fields = append(fields, shortField(bo, tagBitsPerSample, l.bps, l.bps, l.bps))
	} else {
		fields = append(fields, shortField(bo, tagBitsPerSample, l.bps))
	}
	if l.planar {
		fields = append(fields, shortField(bo, tagPlanarConfig, planarPlanar))
	}
	if l.sampleFormat != sampleFormatUint {
		fields = append(fields, shortField(bo, tagSampleFormat, l.sampleFormat))
	}
	if fd.PixelWidth > 0 && (fd.Unit != "" || fd.PixelWidth != 1) {
		ph := fd.PixelHeight
		if ph <= 0 {
			ph = fd.PixelWidth
		}
		xn, xd := resolution(fd.PixelWidth)
		yn, yd := resolution(ph)
		unit := uint16(resolutionUnitNone)
		switch fd.Unit {
		case "inch":
			unit = resolutionUnitInch
		case "cm":
			unit = resolutionUnitCm
		}
		fields = append(fields,
			rationalField(bo, tagXResolution, xn, xd),
			rationalField(bo, tagYResolution, yn, yd),
			shortField(bo, tagResolutionUnit, unit))
	}
	if l.photometric == photometricPalette {
		cmap := make([]uint16, 3*256)
		for i := 0; i < 256; i++ {
			if i < len(fd.Reds) && i < len(fd.Greens) && i < len(fd.Blues) {
				cmap[i] = uint16(fd.Reds[i]) << 8
				cmap[256+i] = uint16(fd.Greens[i]) << 8
				cmap[512+i] = uint16(fd.Blues[i]) << 8
			}
		}
		fields = append(fields, shortField(bo, tagColorMap, cmap...))
	}
	if first {
		fields = append(fields, asciiField(tagImageDescription, buildDescription(fd)))
		if counts, data := buildMetadata(fd, bo); counts != nil {
			fields = append(fields, longField(bo, tagMetaDataCounts, counts...), byteField(tagMetaData, data))
		}
	}
	return fields
}

// Encode writes d and its pixels as an uncompressed TIFF in d's byte order.
// The first directory follows the header and pixel data for all images
// starts at byte 768. Directory values that do not fit in front of the
// pixel data (large color maps, descriptions or metadata) follow it, and
// the directories of images 2..n come last. Several images must be passed
// as a codec.Stack.
func Encode(w io.Writer, d *codec.Descriptor, p codec.Pixels, opts ...codec.Option) error {
	if d.Width <= 0 || d.Height <= 0 {
		return codec.Validationf("width or height <= 0 (%dx%d)", d.Width, d.Height)
	}
	l, err := layoutOf(d)
	if err != nil {
		return err
	}
	bo := d.Order()
	n := d.NumImages()

	fd := fileDescriptor(d, pixelOffset)
	imageSize := fd.ImageSize()
	pixelEnd := pixelOffset + int64(n)*imageSize
	pad := pixelEnd % 2
	tailAt := pixelEnd + pad

	fields := imageFields(fd, l, pixelOffset, true)
	headAt := 8 + ifdSize(len(fields))
	if headAt > pixelOffset {
		return codec.Validationf("%d directory entries do not fit in front of the pixel data", len(fields))
	}
	// Where values land does not depend on the next pointer, so a first
	// pass sizes the tail.
	_, _, tail, _ := splitIFD(bo, fields, headAt, pixelOffset, tailAt, nil, 0)
	nextAt := tailAt + int64(len(tail))
	later := ifdSize(len(imageFields(fd, l, 0, false)))
	if nextAt+int64(n-1)*later > math.MaxUint32 {
		return codec.Validationf("%d images of %d bytes do not fit a 4 GiB TIFF file", n, imageSize)
	}

	var next uint32
	if n > 1 {
		next = uint32(nextAt)
	}
	ifd, head, tail, placed := splitIFD(bo, fields, headAt, pixelOffset, tailAt, nil, next)

	bw := bufio.NewWriter(w)
	bw.Write(header(bo, 8))
	bw.Write(ifd)
	bw.Write(head)
	bw.Write(make([]byte, pixelOffset-headAt-int64(len(head))))
	if err := bw.Flush(); err != nil {
		return codec.Resource(err, "writing tiff header")
	}

	if err := codec.Write(w, fd, p, opts...); err != nil {
		return errors.Annotatef(err, "writing tiff pixel data")
	}

	if pad > 0 {
		bw.WriteByte(0)
	}
	bw.Write(tail)
	for i := 1; i < n; i++ {
		at := nextAt + int64(i-1)*later
		next = 0
		if i < n-1 {
			next = uint32(at + later)
		}
		strip := uint32(pixelOffset + int64(i)*imageSize)
		ifd, _, _ := writeIFD(bo, imageFields(fd, l, strip, false), at+later, placed, next)
		bw.Write(ifd)
	}
	if err := bw.Flush(); err != nil {
		return codec.Resource(err, "writing tiff directories")
	}
	log.Debugf("wrote %d %dx%d %s images at offset %d, %d bytes of values after the pixels",
		n, fd.Width, fd.Height, fd.Kind, pixelOffset, len(tail))
	return nil
}
