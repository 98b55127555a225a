package tiff

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pspoerri/imgio/internal/codec"
)

// TIFF tag IDs.
const (
	tagNewSubfileType   = 254
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagImageDescription = 270
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagXResolution      = 282
	tagYResolution      = 283
	tagPlanarConfig     = 284
	tagResolutionUnit   = 296
	tagPredictor        = 317
	tagColorMap         = 320
	tagSampleFormat     = 339
	tagMetaDataCounts   = 50838
	tagMetaData         = 50839
)

// TIFF data types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndef     = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
)

// Field values.
const (
	compressionNone = 1
	compressionLZW  = 5

	photometricWhiteIsZero = 0
	photometricBlackIsZero = 1
	photometricRGB         = 2
	photometricPalette     = 3

	planarChunky = 1
	planarPlanar = 2

	predictorHorizontal = 2

	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3

	resolutionUnitNone = 1
	resolutionUnitInch = 2
	resolutionUnitCm   = 3
)

// maxTagBytes bounds the out-of-line data of a single entry.
const maxTagBytes = 256 << 20

// entry is a raw 12-byte directory entry with its value bytes resolved.
type entry struct {
	Tag      uint16
	DataType uint16
	Count    uint32
	Value    []byte
}

func dataTypeSize(dt uint16) int {
	switch dt {
	case dtByte, dtASCII, dtSByte, dtUndef:
		return 1
	case dtShort, dtSShort:
		return 2
	case dtLong, dtSLong, dtFloat:
		return 4
	case dtRational, dtSRational, dtDouble:
		return 8
	}
	return 1
}

func parseEntry(buf []byte, bo binary.ByteOrder) entry {
	v := make([]byte, 4)
	copy(v, buf[8:12])
	return entry{
		Tag:      bo.Uint16(buf[0:2]),
		DataType: bo.Uint16(buf[2:4]),
		Count:    bo.Uint32(buf[4:8]),
		Value:    v,
	}
}

// resolve replaces the inline offset of an entry with the data it points to
// when the data does not fit in four bytes.
func (e *entry) resolve(r io.ReadSeeker, bo binary.ByteOrder) error {
	total := int64(e.Count) * int64(dataTypeSize(e.DataType))
	if total <= 4 {
		return nil
	}
	if total > maxTagBytes {
		return codec.Structuralf("tag %d holds %d bytes", e.Tag, total)
	}
	off := int64(bo.Uint32(e.Value))
	if _, err := r.Seek(off, io.SeekStart); err != nil {
		return codec.Resource(err, "seeking to tag %d data", e.Tag)
	}
	data := make([]byte, total)
	if _, err := io.ReadFull(r, data); err != nil {
		return readErr(err, "tag %d data at %d", e.Tag, off)
	}
	e.Value = data
	return nil
}

func (e *entry) uint(bo binary.ByteOrder) uint32 {
	switch e.DataType {
	case dtShort, dtSShort:
		return uint32(bo.Uint16(e.Value))
	case dtLong, dtSLong:
		return bo.Uint32(e.Value)
	}
	return uint32(e.Value[0])
}

// uints returns every value of an integer entry, widened to int64.
func (e *entry) uints(bo binary.ByteOrder) []int64 {
	n := int(e.Count)
	out := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		switch e.DataType {
		case dtShort, dtSShort:
			out = append(out, int64(bo.Uint16(e.Value[2*i:])))
		case dtLong, dtSLong:
			out = append(out, int64(bo.Uint32(e.Value[4*i:])))
		default:
			out = append(out, int64(e.Value[i]))
		}
	}
	return out
}

func (e *entry) rational(bo binary.ByteOrder) float64 {
	switch e.DataType {
	case dtRational, dtSRational:
		num, den := bo.Uint32(e.Value[0:4]), bo.Uint32(e.Value[4:8])
		if den == 0 {
			return 0
		}
		return float64(num) / float64(den)
	case dtFloat:
		return float64(math.Float32frombits(bo.Uint32(e.Value)))
	case dtDouble:
		return math.Float64frombits(bo.Uint64(e.Value))
	}
	return float64(e.uint(bo))
}

func (e *entry) ascii() string {
	b := e.Value[:min(int(e.Count), len(e.Value))]
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}
