// Package bitio reads arbitrary-width, MSB-first bit fields from a byte stream.
package bitio

import (
	"errors"
	"io"
)

// BufferSize is the size of the window refilled from the underlying source.
const BufferSize = 8192

// MaxBits is the widest field ReadBits can return.
const MaxBits = 24

var errTooWide = errors.New("bitio: cannot read more than 24 bits at once")

// Partial-byte masks. backMask[k] keeps the k low bits of a byte,
// frontMask[k] keeps the k high bits.
var (
	backMask  = [8]uint32{0x00, 0x01, 0x03, 0x07, 0x0F, 0x1F, 0x3F, 0x7F}
	frontMask = [8]uint32{0x00, 0x80, 0xC0, 0xE0, 0xF0, 0xF8, 0xFC, 0xFE}
)

// Reader pulls bit fields from a buffered source.
//
// Once the end of the stream has been reached every read returns io.EOF
// without touching the source again. A Reader is not safe for concurrent use.
type Reader struct {
	src     io.Reader
	buf     []byte
	n       int  // valid bytes in buf
	pos     int  // current byte in buf
	bit     uint // bit offset within buf[pos], always < 8
	srcDone bool // src reported end of data
	eof     bool
	err     error // sticky non-EOF source error
}

// NewReader returns a Reader over r and pre-fills the first window.
func NewReader(r io.Reader) *Reader {
	br := &Reader{
		src: r,
		buf: make([]byte, BufferSize),
	}
	br.fill()
	if br.n == 0 {
		br.eof = true
	}
	return br
}

// NewBytesReader returns a Reader over an in-memory byte slice without copying
// it into a window.
func NewBytesReader(data []byte) *Reader {
	br := &Reader{
		buf:     data,
		n:       len(data),
		srcDone: true,
	}
	if len(data) == 0 {
		br.eof = true
	}
	return br
}

// fill replaces the window with the next block from the source.
func (br *Reader) fill() {
	br.pos = 0
	br.n = 0
	if br.srcDone || br.src == nil {
		br.srcDone = true
		return
	}
	for br.n < len(br.buf) {
		m, err := br.src.Read(br.buf[br.n:])
		br.n += m
		if err != nil {
			if err != io.EOF {
				br.err = err
			}
			br.srcDone = true
			return
		}
		if m == 0 {
			// Avoid spinning on readers that return (0, nil).
			return
		}
	}
}

// advance moves to the next byte, refilling the window when it is exhausted.
// It reports false when no further byte is available.
func (br *Reader) advance() bool {
	br.pos++
	if br.pos < br.n {
		return true
	}
	br.fill()
	if br.n == 0 {
		br.eof = true
		return false
	}
	return true
}

// EOF reports whether the end of the stream has been reached.
func (br *Reader) EOF() bool {
	return br.eof
}

// Err returns the first non-EOF error reported by the source, if any.
func (br *Reader) Err() error {
	return br.err
}

// ReadBits returns the next n bits, most significant bit first.
//
// Reading zero bits returns 0 and consumes nothing. If the stream ends
// exactly when the request is satisfied the value is returned and the next
// call reports io.EOF. If it ends before the request is satisfied, io.EOF is
// returned.
func (br *Reader) ReadBits(n uint) (uint32, error) {
	if n == 0 {
		return 0, nil
	}
	if n > MaxBits {
		return 0, errTooWide
	}
	if br.eof {
		if br.err != nil {
			return 0, br.err
		}
		return 0, io.EOF
	}

	var v uint32
	for n > 0 {
		cb := uint32(br.buf[br.pos])
		avail := 8 - br.bit
		if n >= avail {
			if br.bit == 0 {
				v = v<<8 | cb
			} else {
				v = v<<avail | cb&backMask[avail]
			}
			n -= avail
			br.bit = 0
			if !br.advance() {
				if n > 0 {
					return 0, br.eofErr()
				}
				return v, nil
			}
		} else {
			v = v<<n | (cb&(0xFF-frontMask[br.bit]))>>(8-(br.bit+n))
			br.bit += n
			n = 0
		}
	}
	return v, nil
}

func (br *Reader) eofErr() error {
	if br.err != nil {
		return br.err
	}
	return io.EOF
}

// SkipBits advances the cursor by n bits and returns the number of bits
// actually skipped, which is less than n only at the end of the stream.
func (br *Reader) SkipBits(n int64) (int64, error) {
	var skipped int64
	for n > 0 && !br.eof {
		if br.bit == 0 && n >= 8 {
			bytes := n / 8
			inWindow := int64(br.n - br.pos)
			if bytes < inWindow {
				br.pos += int(bytes)
				skipped += bytes * 8
				n -= bytes * 8
				continue
			}
			// Drop the rest of the window and move the source itself.
			moved, err := br.skipSource(bytes - inWindow)
			skipped += (inWindow + moved) * 8
			n -= (inWindow + moved) * 8
			if err != nil {
				br.err = err
				br.eof = true
				return skipped, err
			}
			br.fill()
			if br.n == 0 {
				br.eof = true
			}
			continue
		}
		avail := int64(8 - br.bit)
		step := n
		if step > avail {
			step = avail
		}
		skipped += step
		n -= step
		if step == avail {
			br.bit = 0
			br.advance()
		} else {
			br.bit += uint(step)
		}
	}
	return skipped, br.err
}

// skipSource moves the source forward by n bytes past the current window.
func (br *Reader) skipSource(n int64) (int64, error) {
	if n == 0 || br.srcDone || br.src == nil {
		return 0, nil
	}
	if s, ok := br.src.(io.Seeker); ok {
		cur, err := s.Seek(0, io.SeekCurrent)
		if err == nil {
			end, err := s.Seek(0, io.SeekEnd)
			if err != nil {
				return 0, err
			}
			target := cur + n
			if target > end {
				target = end
			}
			if _, err := s.Seek(target, io.SeekStart); err != nil {
				return 0, err
			}
			return target - cur, nil
		}
	}
	moved, err := io.CopyN(io.Discard, br.src, n)
	if err == io.EOF {
		br.srcDone = true
		err = nil
	}
	return moved, err
}
