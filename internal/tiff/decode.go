// Package tiff reads and writes the TIFF container around uncompressed and
// LZW-compressed pixel data, including the ImageJ description and metadata
// tags.
package tiff

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/juju/errors"
	"github.com/op/go-logging"

	"github.com/pspoerri/imgio/internal/codec"
)

var log = logging.MustGetLogger("tiff")

// known lists the tags whose out-of-line data is loaded. Everything else is
// skipped without reading its payload.
var known = map[uint16]bool{
	tagNewSubfileType: true, tagImageWidth: true, tagImageLength: true,
	tagBitsPerSample: true, tagCompression: true, tagPhotometric: true,
	tagImageDescription: true, tagStripOffsets: true, tagSamplesPerPixel: true,
	tagRowsPerStrip: true, tagStripByteCounts: true, tagXResolution: true,
	tagYResolution: true, tagPlanarConfig: true, tagResolutionUnit: true,
	tagPredictor: true, tagColorMap: true, tagSampleFormat: true,
	tagMetaDataCounts: true, tagMetaData: true,
}

// Decode walks the header and the chain of image file directories and
// returns one descriptor per image directory.
//
// The chain is not followed past a first directory whose ImageJ description
// declares several contiguous uncompressed images; that descriptor covers
// the whole stack. Reduced-resolution directories after the first are
// skipped.
func Decode(r io.ReadSeeker) ([]codec.Descriptor, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, codec.Resource(err, "measuring tiff")
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, codec.Resource(err, "seeking to tiff header")
	}

	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, readErr(err, "tiff header")
	}
	var bo binary.ByteOrder
	switch string(hdr[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, codec.Structuralf("not a TIFF file: byte order mark %q", hdr[0:2])
	}
	switch magic := bo.Uint16(hdr[2:4]); magic {
	case 42:
	case 43:
		return nil, codec.Structuralf("BigTIFF is not supported")
	default:
		return nil, codec.Structuralf("not a TIFF file: magic %d", magic)
	}

	dec := &decoder{r: r, bo: bo, size: size}
	var out []codec.Descriptor
	seen := make(map[int64]bool)
	for offset := int64(bo.Uint32(hdr[4:8])); offset > 0; {
		if seen[offset] {
			log.Warningf("IFD chain loops back to %d", offset)
			break
		}
		seen[offset] = true
		if offset+2 > size {
			log.Warningf("IFD offset %d is past the end of the file (%d bytes)", offset, size)
			break
		}

		entries, next, err := dec.readIFD(offset)
		if err != nil {
			if len(out) > 0 {
				log.Warningf("ignoring IFD %d at %d: %v", len(seen), offset, err)
				break
			}
			return nil, err
		}
		d, err := dec.describe(entries, len(out) == 0)
		if err != nil {
			return nil, errors.Annotatef(err, "IFD %d at %d", len(seen), offset)
		}
		offset = next
		if d == nil {
			continue
		}
		out = append(out, *d)
		if len(out) == 1 && d.Images > 1 {
			break
		}
	}
	if len(out) == 0 {
		return nil, codec.Structuralf("TIFF file holds no images")
	}
	log.Debugf("decoded %d image directories", len(out))
	return out, nil
}

type decoder struct {
	r    io.ReadSeeker
	bo   binary.ByteOrder
	size int64
}

// readIFD reads the directory at offset and resolves the data of known tags.
func (dec *decoder) readIFD(offset int64) ([]entry, int64, error) {
	if _, err := dec.r.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, codec.Resource(err, "seeking to IFD at %d", offset)
	}
	var countBuf [2]byte
	if _, err := io.ReadFull(dec.r, countBuf[:]); err != nil {
		return nil, 0, readErr(err, "IFD entry count at %d", offset)
	}
	count := int(dec.bo.Uint16(countBuf[:]))

	buf := make([]byte, count*12+4)
	if _, err := io.ReadFull(dec.r, buf); err != nil {
		return nil, 0, readErr(err, "IFD at %d with %d entries", offset, count)
	}
	entries := make([]entry, 0, count)
	for i := 0; i < count; i++ {
		e := parseEntry(buf[i*12:(i+1)*12], dec.bo)
		if !known[e.Tag] {
			continue
		}
		if err := e.resolve(dec.r, dec.bo); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	next := int64(dec.bo.Uint32(buf[count*12:]))
	log.Debugf("IFD at %d: %d entries, next at %d", offset, count, next)
	return entries, next, nil
}

// describe turns the entries of one directory into a descriptor. It returns
// nil for directories that do not hold a full-resolution image.
func (dec *decoder) describe(entries []entry, first bool) (*codec.Descriptor, error) {
	bo := dec.bo
	d := &codec.Descriptor{
		ByteOrder:   bo,
		Compression: codec.CompressionNone,
		Images:      1,
	}
	var (
		bps          = 1
		spp          = 1
		planar       = planarChunky
		sampleFormat = sampleFormatUint
		photometric  = photometricBlackIsZero
		predictor    = 1
		compression  = compressionNone
		subfile      uint32
		xres, yres   float64
		resUnit      = 0
		colorMap     []int64
		metaCounts   []int64
		metaData     []byte
	)
	for i := range entries {
		e := &entries[i]
		switch e.Tag {
		case tagNewSubfileType:
			subfile = e.uint(bo)
		case tagImageWidth:
			d.Width = int(e.uint(bo))
		case tagImageLength:
			d.Height = int(e.uint(bo))
		case tagBitsPerSample:
			// Multi-sample images repeat the depth per sample; only
			// identical depths are supported, so the first one decides.
			bps = int(e.uint(bo))
		case tagCompression:
			compression = int(e.uint(bo))
		case tagPhotometric:
			photometric = int(e.uint(bo))
		case tagImageDescription:
			if first {
				d.Description = e.ascii()
			}
		case tagStripOffsets:
			d.StripOffsets = e.uints(bo)
		case tagSamplesPerPixel:
			spp = int(e.uint(bo))
		case tagRowsPerStrip:
			d.RowsPerStrip = int(e.uint(bo))
		case tagStripByteCounts:
			d.StripLengths = e.uints(bo)
		case tagXResolution:
			xres = e.rational(bo)
		case tagYResolution:
			yres = e.rational(bo)
		case tagPlanarConfig:
			planar = int(e.uint(bo))
		case tagResolutionUnit:
			resUnit = int(e.uint(bo))
		case tagPredictor:
			predictor = int(e.uint(bo))
		case tagColorMap:
			colorMap = e.uints(bo)
		case tagSampleFormat:
			sampleFormat = int(e.uint(bo))
		case tagMetaDataCounts:
			metaCounts = e.uints(bo)
		case tagMetaData:
			if first {
				metaData = e.Value
			}
		}
	}

	if !first && subfile&1 != 0 {
		log.Debugf("skipping reduced-resolution image %dx%d", d.Width, d.Height)
		return nil, nil
	}
	if d.Width <= 0 || d.Height <= 0 {
		return nil, codec.Structuralf("image size %dx%d", d.Width, d.Height)
	}

	switch compression {
	case compressionNone:
	case compressionLZW:
		d.Compression = codec.CompressionLZW
		if predictor == predictorHorizontal {
			d.Compression = codec.CompressionLZWDifferencing
		}
	default:
		return nil, codec.Structuralf("unsupported compression %d", compression)
	}

	kind, err := kindOf(bps, spp, planar, sampleFormat)
	if err != nil {
		return nil, err
	}
	d.Kind = kind
	if spp == 4 && (kind == codec.RGB24 || kind == codec.RGB48) {
		d.SamplesPerPixel = 4
	}
	d.WhiteIsZero = photometric == photometricWhiteIsZero

	if kind == codec.Gray8 && len(colorMap) >= 3*256 {
		d.Kind = codec.Color8Indexed
		d.Reds, d.Greens, d.Blues = make([]byte, 256), make([]byte, 256), make([]byte, 256)
		for i := 0; i < 256; i++ {
			d.Reds[i] = byte(colorMap[i] >> 8)
			d.Greens[i] = byte(colorMap[256+i] >> 8)
			d.Blues[i] = byte(colorMap[512+i] >> 8)
		}
		d.LUTSize = 256
	}

	if len(d.StripOffsets) == 0 {
		return nil, codec.Structuralf("image has no strip offsets")
	}
	d.Offset = d.StripOffsets[0]
	if d.RowsPerStrip <= 0 {
		d.RowsPerStrip = d.Height
	}
	if d.Compression.Compressed() {
		if len(d.StripLengths) != len(d.StripOffsets) {
			return nil, codec.Structuralf("%d strip offsets but %d strip byte counts",
				len(d.StripOffsets), len(d.StripLengths))
		}
	} else if !contiguous(d.StripOffsets, d.StripLengths) {
		log.Warningf("uncompressed strips are not contiguous; reading from offset %d", d.Offset)
	}

	if xres > 0 {
		d.PixelWidth = 1 / xres
	}
	if yres > 0 {
		d.PixelHeight = 1 / yres
	}
	switch resUnit {
	case resolutionUnitInch:
		d.Unit = "inch"
	case resolutionUnitCm:
		d.Unit = "cm"
	}

	if first {
		parseDescription(d.Description, d)
		if len(metaData) > 0 {
			parseMetadata(metaData, metaCounts, bo, d)
		}
		if d.Images > 1 {
			dec.clampImages(d)
		}
	}
	log.Debugf("image %dx%d %s, %s, %d strips", d.Width, d.Height, d.Kind, d.Compression, len(d.StripOffsets))
	return d, nil
}

// clampImages lowers the image count of a contiguous stack to what the file
// actually holds.
func (dec *decoder) clampImages(d *codec.Descriptor) {
	size := d.ImageSize()
	if size <= 0 || d.Offset+int64(d.Images)*size <= dec.size {
		return
	}
	n := int((dec.size - d.Offset) / size)
	if n < 1 {
		n = 1
	}
	log.Warningf("stack declares %d images, file holds %d", d.Images, n)
	d.Images = n
}

// kindOf maps the sample layout of an image to a pixel kind.
func kindOf(bps, spp, planar, sampleFormat int) (codec.Kind, error) {
	switch {
	case spp == 1:
		switch bps {
		case 1:
			return codec.Bitmap1, nil
		case 8:
			return codec.Gray8, nil
		case 12:
			return codec.Gray12Unsigned, nil
		case 16:
			if sampleFormat == sampleFormatInt {
				return codec.Gray16Signed, nil
			}
			return codec.Gray16Unsigned, nil
		case 24:
			return codec.Gray24Unsigned, nil
		case 32:
			switch sampleFormat {
			case sampleFormatFloat:
				return codec.Gray32Float, nil
			case sampleFormatInt:
				return codec.Gray32Int, nil
			}
			return codec.Gray32Unsigned, nil
		case 64:
			if sampleFormat == sampleFormatFloat {
				return codec.Gray64Float, nil
			}
		}
	case spp == 3 || spp == 4:
		switch bps {
		case 8:
			if planar == planarPlanar {
				if spp == 3 {
					return codec.RGBPlanar, nil
				}
				break
			}
			return codec.RGB24, nil
		case 16:
			if planar == planarPlanar {
				if spp == 3 {
					return codec.RGB48Planar, nil
				}
				break
			}
			return codec.RGB48, nil
		}
	}
	return 0, codec.Structuralf("unsupported %d-bit image with %d samples per pixel (format %d, planar %d)",
		bps, spp, sampleFormat, planar)
}

func contiguous(offsets, lengths []int64) bool {
	if len(lengths) != len(offsets) {
		return len(offsets) <= 1
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] != offsets[i-1]+lengths[i-1] {
			return false
		}
	}
	return true
}

// readErr classifies a failed header or directory read: running out of
// file is a structural problem, anything else a resource failure.
func readErr(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return codec.Structuralf("reading %s: unexpected end of file", what)
	}
	return codec.Resource(err, "reading %s", what)
}
