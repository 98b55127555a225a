package codec

import (
	"io"
	"math"

	"github.com/juju/errors"
)

// writeChunkSize splits an image into roughly 50 writes of at least 64 KiB.
func writeChunkSize(size int64) int {
	n := size / 50 / 4 * 4
	if n < 65536 {
		n = 65536
	}
	if n > size {
		n = size
	}
	return int(n)
}

// Write stores p uncompressed in the layout described by d. Several images
// must be passed as a Stack and are written back to back without a gap.
func Write(w io.Writer, d *Descriptor, p Pixels, opts ...Option) error {
	if !d.Kind.Writable() {
		return Structuralf("%s pixels cannot be written", d.Kind)
	}
	if d.Width <= 0 || d.Height <= 0 {
		return Validationf("width or height <= 0 (%dx%d)", d.Width, d.Height)
	}
	o := newOptions(opts)

	n := d.NumImages()
	stack, isStack := p.(Stack)
	if n == 1 {
		if isStack {
			if len(stack) != 1 {
				return Structuralf("one image described, stack of %d given", len(stack))
			}
			p = stack[0]
		}
		if err := writeImage(w, d, p, o.progress); err != nil {
			return err
		}
		o.progress(1)
		return nil
	}

	if !isStack {
		return Structuralf("%d images need a stack, got %T", n, p)
	}
	if len(stack) != n {
		return Structuralf("%d images described, stack of %d given", n, len(stack))
	}
	for i, img := range stack {
		if o.abort() {
			return errors.Annotatef(ErrAborted, "after %d of %d images", i, n)
		}
		err := writeImage(w, d, img, func(f float64) {
			o.progress((float64(i) + f) / float64(n))
		})
		if err != nil {
			return errors.Annotatef(err, "image %d of %d", i+1, n)
		}
	}
	o.progress(1)
	return nil
}

func writeImage(w io.Writer, d *Descriptor, p Pixels, progress func(float64)) error {
	if p == nil {
		return Structuralf("no pixels for a %dx%d %s image", d.Width, d.Height, d.Kind)
	}
	if !matches(d, p) {
		return Structuralf("%T of %d pixels does not hold a %dx%d %s image", p, p.Len(), d.Width, d.Height, d.Kind)
	}
	raw := encodePixels(d, p)
	chunk := writeChunkSize(int64(len(raw)))
	for off := 0; off < len(raw); off += chunk {
		end := min(off+chunk, len(raw))
		if _, err := w.Write(raw[off:end]); err != nil {
			return Resource(err, "writing pixel data")
		}
		progress(float64(end) / float64(len(raw)))
	}
	return nil
}

// encodePixels lays out one image the way decodePixels reads it.
func encodePixels(d *Descriptor, p Pixels) []byte {
	w, h := d.Width, d.Height
	count := w * h
	order := d.Order()

	switch px := p.(type) {
	case Bytes:
		if d.Kind == Bitmap1 {
			return packBitmap(px, w, h)
		}
		return px[:count]

	case Shorts:
		if d.Kind == Gray12Unsigned {
			return pack12(px, w, h)
		}
		raw := make([]byte, 2*count)
		for i, v := range px[:count] {
			if d.Kind == Gray16Signed {
				v = uint16(int16(int32(v) - 32768))
			}
			order.PutUint16(raw[2*i:], v)
		}
		return raw

	case Floats:
		switch d.Kind {
		case Gray24Unsigned:
			raw := make([]byte, 3*count)
			for i, f := range px[:count] {
				v := clampUint(f, 0xffffff)
				b := raw[3*i : 3*i+3]
				if d.LittleEndian() {
					b[0], b[1], b[2] = byte(v), byte(v>>8), byte(v>>16)
				} else {
					b[0], b[1], b[2] = byte(v>>16), byte(v>>8), byte(v)
				}
			}
			return raw
		case Gray64Float:
			raw := make([]byte, 8*count)
			for i, f := range px[:count] {
				order.PutUint64(raw[8*i:], math.Float64bits(float64(f)))
			}
			return raw
		}
		raw := make([]byte, 4*count)
		for i, f := range px[:count] {
			var v uint32
			switch d.Kind {
			case Gray32Int:
				v = uint32(clampInt32(f))
			case Gray32Unsigned:
				v = clampUint(f, math.MaxUint32)
			default:
				v = math.Float32bits(f)
			}
			order.PutUint32(raw[4*i:], v)
		}
		return raw

	case Packed:
		raw := make([]byte, 3*count)
		for i, c := range px[:count] {
			r, g, b := byte(c>>16), byte(c>>8), byte(c)
			switch d.Kind {
			case RGBPlanar:
				raw[i], raw[count+i], raw[2*count+i] = r, g, b
			case BGR24:
				raw[3*i], raw[3*i+1], raw[3*i+2] = b, g, r
			default:
				raw[3*i], raw[3*i+1], raw[3*i+2] = r, g, b
			}
		}
		return raw

	case Channels:
		nc := d.channels()
		raw := make([]byte, 2*count*nc)
		for k := 0; k < nc; k++ {
			for i, v := range px[k][:count] {
				if d.Kind == RGB48 {
					order.PutUint16(raw[2*(i*nc+k):], v)
				} else {
					order.PutUint16(raw[2*(k*count+i):], v)
				}
			}
		}
		return raw
	}
	return nil
}

func clampUint(f float32, limit uint32) uint32 {
	switch {
	case f <= 0 || f != f:
		return 0
	case float64(f) >= float64(limit):
		return limit
	}
	return uint32(f)
}

func clampInt32(f float32) int32 {
	switch {
	case f != f:
		return 0
	case f <= math.MinInt32:
		return math.MinInt32
	case f >= math.MaxInt32:
		return math.MaxInt32
	}
	return int32(f)
}

// packBitmap stores non-zero pixels as set bits, rows padded to a byte.
func packBitmap(px Bytes, w, h int) []byte {
	rowBytes := (w + 7) / 8
	raw := make([]byte, rowBytes*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if px[y*w+x] != 0 {
				raw[y*rowBytes+x/8] |= 0x80 >> uint(x%8)
			}
		}
	}
	return raw
}

func pack12(px Shorts, w, h int) []byte {
	rowBytes := (3*w + 1) / 2
	raw := make([]byte, rowBytes*h)
	for y := 0; y < h; y++ {
		in := px[y*w : (y+1)*w]
		row := raw[y*rowBytes : (y+1)*rowBytes]
		j := 0
		for x := 0; x < w; x += 2 {
			a := in[x] & 0x0fff
			row[j] = byte(a >> 4)
			row[j+1] = byte(a&0x0f) << 4
			if x+1 < w {
				b := in[x+1] & 0x0fff
				row[j+1] |= byte(b >> 8)
				row[j+2] = byte(b)
			}
			j += 3
		}
	}
	return raw
}
