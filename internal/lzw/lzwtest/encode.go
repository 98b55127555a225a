// Package lzwtest produces TIFF LZW streams for tests.
//
// The encoder follows the libtiff code width and table reset schedule, so its
// output can be fed both to this module's decoder and to independent ones.
package lzwtest

const (
	clearCode = 256
	eoiCode   = 257
	firstCode = 258
	minWidth  = 9
	tableSize = 4096
)

type bitWriter struct {
	out   []byte
	acc   uint32
	nbits uint
}

func (w *bitWriter) write(code int, width uint) {
	w.acc = w.acc<<width | uint32(code)
	w.nbits += width
	for w.nbits >= 8 {
		w.out = append(w.out, byte(w.acc>>(w.nbits-8)))
		w.nbits -= 8
	}
	w.acc &= 1<<w.nbits - 1
}

func (w *bitWriter) flush() []byte {
	if w.nbits > 0 {
		w.out = append(w.out, byte(w.acc<<(8-w.nbits)))
		w.nbits = 0
	}
	return w.out
}

// PackCodes packs codes MSB first at a fixed width.
func PackCodes(width uint, codes ...int) []byte {
	var w bitWriter
	for _, c := range codes {
		w.write(c, width)
	}
	return w.flush()
}

// Encode compresses data as a single TIFF LZW strip.
func Encode(data []byte) []byte {
	var w bitWriter
	width := uint(minWidth)
	next := firstCode
	dict := make(map[int]int)
	w.write(clearCode, width)

	bump := func() {
		next++
		if next == tableSize-2 {
			w.write(clearCode, width)
			clear(dict)
			next = firstCode
			width = minWidth
		} else if next > 1<<width-1 {
			width++
		}
	}

	prefix := -1
	for _, b := range data {
		if prefix < 0 {
			prefix = int(b)
			continue
		}
		key := prefix<<8 | int(b)
		if c, ok := dict[key]; ok {
			prefix = c
			continue
		}
		w.write(prefix, width)
		dict[key] = next
		prefix = int(b)
		bump()
	}
	if prefix >= 0 {
		w.write(prefix, width)
		bump()
	}
	w.write(eoiCode, width)
	return w.flush()
}
