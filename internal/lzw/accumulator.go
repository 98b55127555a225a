package lzw

// accumulator is a growable byte buffer that doubles its capacity when full.
type accumulator struct {
	buf []byte
}

func newAccumulator(hint int) *accumulator {
	if hint < 64 {
		hint = 64
	}
	return &accumulator{buf: make([]byte, 0, hint)}
}

func (a *accumulator) grow(n int) {
	if len(a.buf)+n <= cap(a.buf) {
		return
	}
	c := cap(a.buf) * 2
	for c < len(a.buf)+n {
		c *= 2
	}
	nb := make([]byte, len(a.buf), c)
	copy(nb, a.buf)
	a.buf = nb
}

func (a *accumulator) len() int { return len(a.buf) }

func (a *accumulator) bytes() []byte { return a.buf }

// extend appends n zero bytes and returns the new tail for in-place filling.
func (a *accumulator) extend(n int) []byte {
	a.grow(n)
	start := len(a.buf)
	a.buf = a.buf[:start+n]
	return a.buf[start:]
}
