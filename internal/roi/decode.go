package roi

import (
	"encoding/binary"
	"image"
	"math"
	"unicode/utf16"

	"github.com/pspoerri/imgio/internal/codec"
)

var be = binary.BigEndian

type record []byte

func (b record) u8(off int) byte    { return b[off] }
func (b record) i16(off int) int    { return int(int16(be.Uint16(b[off:]))) }
func (b record) u16(off int) int    { return int(be.Uint16(b[off:])) }
func (b record) i32(off int) int    { return int(int32(be.Uint32(b[off:]))) }
func (b record) u32(off int) uint32 { return be.Uint32(b[off:]) }
func (b record) f32(off int) float32 {
	return math.Float32frombits(be.Uint32(b[off:]))
}

// has reports whether n bytes are available at off.
func (b record) has(off, n int) bool {
	return off >= 0 && n >= 0 && off+n <= len(b)
}

func (b record) utf16(off, chars int) string {
	units := make([]uint16, chars)
	for i := range units {
		units[i] = be.Uint16(b[off+2*i:])
	}
	return string(utf16.Decode(units))
}

// Decode parses one record.
func Decode(data []byte) (*Roi, error) {
	b := record(data)
	if len(b) < headerSize || string(b[0:4]) != "Iout" {
		return nil, codec.Structuralf("not a ROI record")
	}
	if size := b.i32(offShapeRoiSize); size > 0 {
		return nil, codec.Structuralf("composite ROI of %d segments is not supported", size)
	}

	r := &Roi{
		Type:          Type(b.u8(offType)),
		Version:       b.u16(offVersion),
		Subtype:       Subtype(b.u16(offSubtype)),
		Options:       Options(b.u16(offOptions)),
		Bounds:        image.Rect(b.i16(offLeft), b.i16(offTop), b.i16(offRight), b.i16(offBottom)),
		StrokeWidth:   float32(b.u16(offStrokeWidth)),
		StrokeColor:   b.u32(offStrokeColor),
		FillColor:     b.u32(offFillColor),
		ArrowStyle:    b.u8(offArrowStyle),
		ArrowHeadSize: b.u8(offArrowHead),
		ArcSize:       b.u16(offArcSize),
		Position:      b.i32(offPosition),
	}
	if r.Type < Polygon || r.Type > Point {
		return nil, codec.Structuralf("unknown ROI type %d", int(r.Type))
	}

	switch {
	case r.Type == Line:
		r.X1, r.Y1 = b.f32(offX1), b.f32(offY1)
		r.X2, r.Y2 = b.f32(offX2), b.f32(offY2)
	case r.Type == Rect || r.Type == Oval:
		if r.SubPixel() {
			r.XD, r.YD = b.f32(offX1), b.f32(offY1)
			r.WidthD, r.HeightD = b.f32(offX2), b.f32(offY2)
		}
	}

	end := headerSize
	if r.Type.hasCoordinates() {
		var err error
		if end, err = decodeCoordinates(b, r); err != nil {
			return nil, err
		}
	}

	if h2 := b.i32(offHeader2); h2 > 0 {
		if !b.has(h2, header2Size) {
			log.Warningf("ROI header2 at %d is past the end of the %d byte record", h2, len(b))
		} else {
			decodeHeader2(b, h2, r)
		}
	} else if end < len(b) {
		log.Debugf("ignoring %d trailing bytes of a %s ROI", len(b)-end, r.Type)
	}
	return r, nil
}

// decodeCoordinates reads the vertex list and returns where it ends.
func decodeCoordinates(b record, r *Roi) (int, error) {
	n := b.u16(offNCoordinates)
	if n == 0 {
		n = b.i32(offSize)
	}
	if n < 0 {
		return 0, codec.Structuralf("negative coordinate count %d", n)
	}
	need := 4 * n
	if r.SubPixel() {
		need += 8 * n
	}
	if !b.has(headerSize, need) {
		return 0, codec.Structuralf("%s ROI with %d points needs %d bytes, record has %d",
			r.Type, n, headerSize+need, len(b))
	}

	r.X, r.Y = make([]float32, n), make([]float32, n)
	left, top := r.Bounds.Min.X, r.Bounds.Min.Y
	if r.SubPixel() {
		xs, ys := headerSize+4*n, headerSize+8*n
		for i := 0; i < n; i++ {
			r.X[i] = b.f32(xs + 4*i)
			r.Y[i] = b.f32(ys + 4*i)
		}
	} else {
		for i := 0; i < n; i++ {
			r.X[i] = float32(left + b.i16(headerSize+2*i))
			r.Y[i] = float32(top + b.i16(headerSize+2*n+2*i))
		}
	}
	return headerSize + need, nil
}

func decodeHeader2(b record, h2 int, r *Roi) {
	r.C = b.i32(h2 + h2C)
	r.Z = b.i32(h2 + h2Z)
	r.T = b.i32(h2 + h2T)
	r.LabelColor = b.u32(h2 + h2LabelColor)
	r.FontSize = b.i16(h2 + h2FontSize)
	r.Group = b.u8(h2 + h2Group)
	r.Opacity = b.u8(h2 + h2Opacity)
	if w := b.f32(h2 + h2FloatStrokeWidth); w > 0 {
		r.StrokeWidth = w
	}

	if off, n := b.i32(h2+h2NameOffset), b.i32(h2+h2NameLength); off > 0 && n > 0 {
		if b.has(off, 2*n) {
			r.Name = b.utf16(off, n)
		} else {
			log.Warningf("ROI name of %d chars at %d overruns the record", n, off)
		}
	}
	if off, n := b.i32(h2+h2PropsOffset), b.i32(h2+h2PropsLength); off > 0 && n > 0 {
		if b.has(off, 2*n) {
			r.Properties = b.utf16(off, n)
		} else {
			log.Warningf("ROI properties of %d chars at %d overrun the record", n, off)
		}
	}
	if off := b.i32(h2 + h2CountersOffset); off > 0 && len(r.X) > 0 {
		if b.has(off, 4*len(r.X)) {
			r.Counters = make([]int32, len(r.X))
			for i := range r.Counters {
				r.Counters[i] = int32(b.u32(off + 4*i))
			}
		} else {
			log.Warningf("ROI counters at %d overrun the record", off)
		}
	}
}
