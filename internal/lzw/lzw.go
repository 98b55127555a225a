// Package lzw implements the TIFF variant of LZW decompression and the
// horizontal differencing predictor used alongside it.
//
// TIFF LZW differs from the GIF flavour in compress/lzw: the code width grows
// one code early ("deferred increment"), so compress/lzw cannot decode TIFF
// strips. Decoding follows the TIFF 6.0 appendix.
package lzw

import (
	"github.com/op/go-logging"

	"github.com/pspoerri/imgio/internal/bitio"
)

var log = logging.MustGetLogger("lzw")

const (
	ClearCode = 256
	EOICode   = 257
	FirstCode = 258

	minWidth  = 9
	maxWidth  = 12
	tableSize = 1 << maxWidth
)

type entry struct {
	prefix int32 // -1 for single-byte strings
	length int32
	suffix byte
	first  byte
}

type decoder struct {
	br    *bitio.Reader
	table [tableSize]entry
	next  int
	width uint
	out   *accumulator
}

// Decompress decodes one TIFF LZW strip.
//
// Decoding stops at the end-of-information code, when the input runs out of
// bits, or when a code cannot be valid. Whatever was decoded up to that
// point is returned; corrupt or truncated strips never produce an error.
// When limit is positive it is used as the output capacity hint and at most
// limit bytes are returned.
func Decompress(src []byte, limit int) []byte {
	if len(src) == 0 {
		return nil
	}
	hint := limit
	if hint <= 0 {
		hint = 2 * len(src)
	}
	d := &decoder{
		br:  bitio.NewBytesReader(src),
		out: newAccumulator(hint),
	}
	for i := 0; i < 256; i++ {
		d.table[i] = entry{prefix: -1, length: 1, suffix: byte(i), first: byte(i)}
	}
	d.reset()
	d.run(limit)

	out := d.out.bytes()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (d *decoder) reset() {
	d.next = FirstCode
	d.width = minWidth
}

func (d *decoder) run(limit int) {
	prev := -1
	for limit <= 0 || d.out.len() < limit {
		c, err := d.br.ReadBits(d.width)
		if err != nil {
			return
		}
		code := int(c)

		switch {
		case code == EOICode:
			return

		case code == ClearCode:
			d.reset()
			prev = -1
			continue

		case prev < 0:
			// First code after a reset must be a literal.
			if code > 255 {
				log.Debugf("lzw: code %d after clear, stopping at %d bytes", code, d.out.len())
				return
			}
			d.emit(code)

		case code < d.next:
			d.emit(code)
			d.add(prev, d.table[code].first)

		case code == d.next && d.next < tableSize:
			d.add(prev, d.table[prev].first)
			d.emit(code)

		default:
			log.Debugf("lzw: invalid code %d (next %d), stopping at %d bytes", code, d.next, d.out.len())
			return
		}
		prev = code
	}
}

// emit appends the string for code to the output.
func (d *decoder) emit(code int) {
	n := int(d.table[code].length)
	dst := d.out.extend(n)
	for i := n - 1; i >= 0; i-- {
		e := &d.table[code]
		dst[i] = e.suffix
		code = int(e.prefix)
	}
}

// add defines the next free code as the string for prefix followed by b and
// widens the code size at 511, 1023 and 2047.
func (d *decoder) add(prefix int, b byte) {
	if d.next >= tableSize {
		return
	}
	p := &d.table[prefix]
	d.table[d.next] = entry{
		prefix: int32(prefix),
		length: p.length + 1,
		suffix: b,
		first:  p.first,
	}
	d.next++
	if d.next+1 >= 1<<d.width && d.width < maxWidth {
		d.width++
	}
}
