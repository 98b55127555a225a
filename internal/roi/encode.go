package roi

import (
	"math"
	"unicode/utf16"

	"github.com/pspoerri/imgio/internal/codec"
)

type builder []byte

func (b builder) put8(off int, v byte)      { b[off] = v }
func (b builder) put16(off int, v int)      { be.PutUint16(b[off:], uint16(v)) }
func (b builder) put32(off int, v uint32)   { be.PutUint32(b[off:], v) }
func (b builder) putI32(off int, v int)     { be.PutUint32(b[off:], uint32(int32(v))) }
func (b builder) putF32(off int, v float32) { be.PutUint32(b[off:], math.Float32bits(v)) }

func utf16Bytes(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 2*len(units))
	for i, u := range units {
		be.PutUint16(out[2*i:], u)
	}
	return out
}

// Encode serializes r. The header, vertex list, second header, name,
// properties and counters follow each other in that order.
func Encode(r *Roi) ([]byte, error) {
	if r.Type < Polygon || r.Type > Point {
		return nil, codec.Validationf("unknown ROI type %d", int(r.Type))
	}
	if !fitsInt16(r.Bounds.Min.X, r.Bounds.Min.Y, r.Bounds.Max.X, r.Bounds.Max.Y) {
		return nil, codec.Validationf("ROI bounds %v exceed 16 bits", r.Bounds)
	}
	n := 0
	if r.Type.hasCoordinates() {
		if len(r.X) != len(r.Y) {
			return nil, codec.Validationf("%d x and %d y coordinates", len(r.X), len(r.Y))
		}
		n = len(r.X)
	}

	coordSize := 4 * n
	if r.SubPixel() {
		coordSize += 8 * n
	}
	name := utf16Bytes(r.Name)
	props := utf16Bytes(r.Properties)
	h2 := headerSize + coordSize
	nameAt := h2 + header2Size
	propsAt := nameAt + len(name)
	countersAt := propsAt + len(props)
	size := countersAt
	if len(r.Counters) > 0 {
		if len(r.Counters) != n {
			return nil, codec.Validationf("%d counters for %d points", len(r.Counters), n)
		}
		size += 4 * n
	}

	b := builder(make([]byte, size))
	copy(b, "Iout")
	b.put16(offVersion, Version)
	b.put8(offType, byte(r.Type))
	b.put16(offTop, r.Bounds.Min.Y)
	b.put16(offLeft, r.Bounds.Min.X)
	b.put16(offBottom, r.Bounds.Max.Y)
	b.put16(offRight, r.Bounds.Max.X)
	if n > math.MaxUint16 {
		b.putI32(offSize, n)
	} else {
		b.put16(offNCoordinates, n)
	}
	b.put16(offStrokeWidth, int(r.StrokeWidth))
	b.put32(offStrokeColor, r.StrokeColor)
	b.put32(offFillColor, r.FillColor)
	b.put16(offSubtype, int(r.Subtype))
	b.put16(offOptions, int(r.Options))
	b.put8(offArrowStyle, r.ArrowStyle)
	b.put8(offArrowHead, r.ArrowHeadSize)
	b.put16(offArcSize, r.ArcSize)
	b.putI32(offPosition, r.Position)
	b.putI32(offHeader2, h2)

	switch {
	case r.Type == Line:
		b.putF32(offX1, r.X1)
		b.putF32(offY1, r.Y1)
		b.putF32(offX2, r.X2)
		b.putF32(offY2, r.Y2)
	case (r.Type == Rect || r.Type == Oval) && r.SubPixel():
		b.putF32(offX1, r.XD)
		b.putF32(offY1, r.YD)
		b.putF32(offX2, r.WidthD)
		b.putF32(offY2, r.HeightD)
	}

	left, top := r.Bounds.Min.X, r.Bounds.Min.Y
	for i := 0; i < n; i++ {
		dx, dy := int(r.X[i])-left, int(r.Y[i])-top
		if !fitsInt16(dx, dy) {
			return nil, codec.Validationf("vertex %d (%v, %v) is too far from the bounds origin", i, r.X[i], r.Y[i])
		}
		b.put16(headerSize+2*i, dx)
		b.put16(headerSize+2*n+2*i, dy)
		if r.SubPixel() {
			b.putF32(headerSize+4*n+4*i, r.X[i])
			b.putF32(headerSize+8*n+4*i, r.Y[i])
		}
	}

	b.putI32(h2+h2C, r.C)
	b.putI32(h2+h2Z, r.Z)
	b.putI32(h2+h2T, r.T)
	if len(name) > 0 {
		b.putI32(h2+h2NameOffset, nameAt)
		b.putI32(h2+h2NameLength, len(name)/2)
		copy(b[nameAt:], name)
	}
	b.put32(h2+h2LabelColor, r.LabelColor)
	b.put16(h2+h2FontSize, r.FontSize)
	b.put8(h2+h2Group, r.Group)
	b.put8(h2+h2Opacity, r.Opacity)
	if r.StrokeWidth != float32(int(r.StrokeWidth)) {
		b.putF32(h2+h2FloatStrokeWidth, r.StrokeWidth)
	}
	if len(props) > 0 {
		b.putI32(h2+h2PropsOffset, propsAt)
		b.putI32(h2+h2PropsLength, len(props)/2)
		copy(b[propsAt:], props)
	}
	if len(r.Counters) > 0 {
		b.putI32(h2+h2CountersOffset, countersAt)
		for i, c := range r.Counters {
			b.put32(countersAt+4*i, uint32(c))
		}
	}
	return b, nil
}

func fitsInt16(vals ...int) bool {
	for _, v := range vals {
		if v < math.MinInt16 || v > math.MaxInt16 {
			return false
		}
	}
	return true
}
