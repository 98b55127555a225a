package codec

import (
	"io"
	"math"

	"github.com/juju/errors"
	"github.com/op/go-logging"

	"github.com/pspoerri/imgio/internal/lzw"
)

var log = logging.MustGetLogger("codec")

// readChunkSize splits an uncompressed image into roughly 25 reads, each a
// multiple of 8 KiB.
func readChunkSize(byteCount int64) int {
	n := byteCount / 25 / 8192 * 8192
	if n < 8192 {
		n = 8192
	}
	return int(n)
}

// Read decodes the images described by d from r.
//
// r is positioned so that d.Offset bytes must be skipped to reach the first
// image. A single image is returned as its pixel variant; several images are
// returned as a Stack with Gap bytes skipped between them.
//
// If the data ends early the partially filled buffer is returned together
// with an error matching ErrTruncated. Missing Gray16Signed samples read as
// 32768. When not even the first byte of an image is available no pixels are
// returned.
func Read(r io.Reader, d *Descriptor, opts ...Option) (Pixels, error) {
	if err := d.Validate(0); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	if err := skip(r, d.Offset); err != nil {
		return nil, err
	}

	n := d.NumImages()
	if n == 1 {
		p, err := readImage(r, d, o.progress)
		if err == nil {
			o.progress(1)
		}
		return p, err
	}

	stack := make(Stack, 0, n)
	for i := 0; i < n; i++ {
		if o.abort() {
			return stack, errors.Annotatef(ErrAborted, "after %d of %d images", i, n)
		}
		if i > 0 {
			if err := skip(r, d.Gap); err != nil {
				return stack, errors.Annotatef(err, "image %d", i+1)
			}
		}
		p, err := readImage(r, d, func(f float64) {
			o.progress((float64(i) + f) / float64(n))
		})
		if p != nil {
			stack = append(stack, p)
		}
		if err != nil {
			return stack, errors.Annotatef(err, "image %d of %d", i+1, n)
		}
	}
	o.progress(1)
	return stack, nil
}

// ReadSlice skips skipBytes and decodes exactly one image, ignoring
// d.Offset and d.Images. It reports no progress.
func ReadSlice(r io.Reader, d *Descriptor, skipBytes int64) (Pixels, error) {
	single := *d
	single.Images = 1
	if err := single.Validate(0); err != nil {
		return nil, err
	}
	if err := skip(r, skipBytes); err != nil {
		return nil, err
	}
	return readImage(r, &single, func(float64) {})
}

// skip advances r by n bytes. A source that ends first yields ErrTruncated.
func skip(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	if s, ok := r.(io.Seeker); ok {
		if _, err := s.Seek(n, io.SeekCurrent); err != nil {
			return Resource(err, "seeking %d bytes", n)
		}
		return nil
	}
	m, err := io.CopyN(io.Discard, r, n)
	if err == io.EOF {
		return Truncatedf("skipping %d bytes: source ended after %d", n, m)
	}
	if err != nil {
		return Resource(err, "skipping %d bytes", n)
	}
	return nil
}

func readImage(r io.Reader, d *Descriptor, progress func(float64)) (Pixels, error) {
	size := d.ImageSize()
	if size > math.MaxInt {
		return nil, Validationf("image of %d bytes is too large", size)
	}

	var (
		raw []byte
		n   int
		err error
	)
	if d.Compression.Compressed() {
		raw, n, err = readStrips(r, d, int(size), progress)
	} else {
		raw, n, err = readRaw(r, int(size), progress)
	}
	if err != nil {
		if !errors.Is(err, ErrTruncated) || n == 0 {
			return nil, err
		}
		log.Warningf("%dx%d %s image truncated: %d of %d bytes", d.Width, d.Height, d.Kind, n, size)
	}
	return decodePixels(d, raw, n), err
}

// readRaw reads size bytes in chunks. It returns the buffer, sized for the
// whole image, and the number of bytes actually read.
func readRaw(r io.Reader, size int, progress func(float64)) ([]byte, int, error) {
	buf := make([]byte, size)
	chunk := readChunkSize(int64(size))
	n := 0
	for n < size {
		end := min(n+chunk, size)
		m, err := io.ReadFull(r, buf[n:end])
		n += m
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return buf, n, Truncatedf("read %d of %d bytes", n, size)
		}
		if err != nil {
			return buf, n, Resource(err, "reading pixel data")
		}
		progress(float64(n) / float64(size))
	}
	return buf, n, nil
}

// readStrips walks the LZW strips in file order, skipping the bytes between
// them, and concatenates their decompressed contents.
func readStrips(r io.Reader, d *Descriptor, size int, progress func(float64)) ([]byte, int, error) {
	buf := make([]byte, size)
	spp, bps := predictorLayout(d)
	var strip []byte
	pos := 0
	for i, length := range d.StripLengths {
		if i > 0 {
			gap := d.StripOffsets[i] - (d.StripOffsets[i-1] + d.StripLengths[i-1])
			if gap < 0 {
				return buf, pos, Validationf("strip %d starts %d bytes before the end of strip %d", i, -gap, i-1)
			}
			if err := skip(r, gap); err != nil {
				return buf, pos, errors.Annotatef(err, "strip %d", i)
			}
		}
		if length <= 0 {
			continue
		}
		if int64(cap(strip)) < length {
			strip = make([]byte, length)
		}
		strip = strip[:length]
		m, err := io.ReadFull(r, strip)
		short := err == io.EOF || err == io.ErrUnexpectedEOF
		if err != nil && !short {
			return buf, pos, Resource(err, "reading strip %d", i)
		}

		out := lzw.Decompress(strip[:m], size-pos)
		if d.Compression == CompressionLZWDifferencing && bps > 0 {
			lzw.UndoDifferencing(out, d.Width, spp, bps, d.Order())
		}
		pos += copy(buf[pos:], out)
		progress(float64(pos) / float64(size))

		if short {
			return buf, pos, Truncatedf("strip %d: read %d of %d bytes", i, m, length)
		}
		if pos >= size {
			break
		}
	}
	if pos < size {
		log.Debugf("strips decoded to %d of %d bytes", pos, size)
	}
	return buf, size, nil
}

// predictorLayout returns the samples per pixel and bytes per sample that
// horizontal differencing operates on, or zero bytes when the kind has no
// byte aligned samples.
func predictorLayout(d *Descriptor) (spp, bps int) {
	switch d.Kind {
	case Gray8, Color8Indexed, RGBPlanar:
		return 1, 1
	case Gray16Signed, Gray16Unsigned, RGB48Planar:
		return 1, 2
	case RGB24, BGR24, ARGB32, ABGR32, BARG32:
		return d.channels(), 1
	case RGB48:
		return d.channels(), 2
	}
	return 0, 0
}

// decodePixels converts the first n bytes of raw, a buffer holding one whole
// stored image, into pixels. Bytes past n are zero.
func decodePixels(d *Descriptor, raw []byte, n int) Pixels {
	w, h := d.Width, d.Height
	count := w * h
	order := d.Order()

	switch d.Kind {
	case Gray8, Color8Indexed:
		return Bytes(raw[:count])

	case Bitmap1:
		return expandBitmap(raw, w, h)

	case Gray16Unsigned, Gray16Signed:
		px := make(Shorts, count)
		for i := range px {
			px[i] = order.Uint16(raw[2*i:])
		}
		if d.Kind == Gray16Signed {
			for i := range px {
				px[i] = uint16(int32(int16(px[i])) + 32768)
			}
			for i := n / 2; i < count; i++ {
				px[i] = 32768
			}
		}
		return px

	case Gray12Unsigned:
		return unpack12(raw, w, h)

	case Gray24Unsigned:
		px := make(Floats, count)
		for i := range px {
			b := raw[3*i : 3*i+3]
			if d.LittleEndian() {
				px[i] = float32(uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0]))
			} else {
				px[i] = float32(uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]))
			}
		}
		return px

	case Gray32Int, Gray32Unsigned, Gray32Float:
		px := make(Floats, count)
		for i := range px {
			v := order.Uint32(raw[4*i:])
			switch d.Kind {
			case Gray32Int:
				px[i] = float32(int32(v))
			case Gray32Unsigned:
				px[i] = float32(v)
			default:
				px[i] = math.Float32frombits(v)
			}
		}
		return px

	case Gray64Float:
		px := make(Floats, count)
		for i := range px {
			px[i] = float32(math.Float64frombits(order.Uint64(raw[8*i:])))
		}
		return px

	case RGB24, BGR24:
		px := make(Packed, count)
		c := d.channels()
		for i := range px {
			p := raw[c*i:]
			if d.Kind == RGB24 {
				px[i] = rgb(p[0], p[1], p[2])
			} else {
				px[i] = rgb(p[2], p[1], p[0])
			}
		}
		return px

	case ARGB32, ABGR32, BARG32:
		px := make(Packed, count)
		for i := range px {
			v := order.Uint32(raw[4*i:])
			switch d.Kind {
			case ARGB32:
				px[i] = rgb(byte(v>>16), byte(v>>8), byte(v))
			case ABGR32:
				px[i] = rgb(byte(v), byte(v>>8), byte(v>>16))
			case BARG32:
				px[i] = rgb(byte(v>>8), byte(v), byte(v>>24))
			}
		}
		return px

	case RGBPlanar:
		px := make(Packed, count)
		for i := range px {
			px[i] = rgb(raw[i], raw[count+i], raw[2*count+i])
		}
		return px

	case RGB48, RGB48Planar:
		ch := NewPixels(d).(Channels)
		nc := len(ch)
		for k, plane := range ch {
			for i := range plane {
				if d.Kind == RGB48 {
					plane[i] = order.Uint16(raw[2*(i*nc+k):])
				} else {
					plane[i] = order.Uint16(raw[2*(k*count+i):])
				}
			}
		}
		return ch
	}
	return nil
}

func rgb(r, g, b byte) uint32 {
	return 0xff000000 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// expandBitmap turns rows of ceil(w/8) packed bytes into one byte per pixel,
// 255 for set bits, most significant bit first.
func expandBitmap(raw []byte, w, h int) Bytes {
	px := make(Bytes, w*h)
	rowBytes := (w + 7) / 8
	for y := 0; y < h; y++ {
		row := raw[y*rowBytes:]
		for x := 0; x < w; x++ {
			if row[x/8]&(0x80>>uint(x%8)) != 0 {
				px[y*w+x] = 255
			}
		}
	}
	return px
}

// unpack12 reads two 12-bit samples from every three bytes. Rows are padded
// to a whole byte, so an odd last sample uses one and a half bytes.
func unpack12(raw []byte, w, h int) Shorts {
	px := make(Shorts, w*h)
	rowBytes := (3*w + 1) / 2
	for y := 0; y < h; y++ {
		row := raw[y*rowBytes : (y+1)*rowBytes]
		out := px[y*w : (y+1)*w]
		j := 0
		for x := 0; x < w; x += 2 {
			out[x] = uint16(row[j])<<4 | uint16(row[j+1])>>4
			if x+1 < w {
				out[x+1] = uint16(row[j+1]&0x0f)<<8 | uint16(row[j+2])
			}
			j += 3
		}
	}
	return px
}
