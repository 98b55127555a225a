package codec

// Pixels is a decoded pixel buffer. The concrete type depends on the Kind it
// was read from:
//
//	Bytes     Gray8, Color8Indexed, Bitmap1 (0 or 255)
//	Shorts    Gray16Unsigned, Gray16Signed (offset by 32768), Gray12Unsigned
//	Floats    Gray32Int, Gray32Unsigned, Gray32Float, Gray64Float, Gray24Unsigned
//	Packed    RGB24, BGR24, ARGB32, ABGR32, BARG32, RGBPlanar (0xffRRGGBB)
//	Channels  RGB48, RGB48Planar (one plane per channel)
//	Stack     one Pixels per image when Images > 1
type Pixels interface {
	// Len returns the number of pixels, or of images for a Stack.
	Len() int
	pixels()
}

type (
	Bytes    []byte
	Shorts   []uint16
	Floats   []float32
	Packed   []uint32
	Channels [][]uint16
	Stack    []Pixels
)

func (p Bytes) Len() int  { return len(p) }
func (p Shorts) Len() int { return len(p) }
func (p Floats) Len() int { return len(p) }
func (p Packed) Len() int { return len(p) }
func (p Stack) Len() int  { return len(p) }

func (p Channels) Len() int {
	if len(p) == 0 {
		return 0
	}
	return len(p[0])
}

func (Bytes) pixels()    {}
func (Shorts) pixels()   {}
func (Floats) pixels()   {}
func (Packed) pixels()   {}
func (Channels) pixels() {}
func (Stack) pixels()    {}

// NewPixels allocates a zeroed buffer for one image described by d.
func NewPixels(d *Descriptor) Pixels {
	n := d.Width * d.Height
	switch d.Kind {
	case Gray8, Color8Indexed, Bitmap1:
		return make(Bytes, n)
	case Gray16Signed, Gray16Unsigned, Gray12Unsigned:
		return make(Shorts, n)
	case Gray32Int, Gray32Unsigned, Gray32Float, Gray64Float, Gray24Unsigned:
		return make(Floats, n)
	case RGB24, BGR24, ARGB32, ABGR32, BARG32, RGBPlanar:
		return make(Packed, n)
	case RGB48, RGB48Planar:
		ch := make(Channels, d.channels())
		for i := range ch {
			ch[i] = make([]uint16, n)
		}
		return ch
	}
	return nil
}

// matches reports whether p is the variant produced for d's kind.
func matches(d *Descriptor, p Pixels) bool {
	n := d.Width * d.Height
	switch p := p.(type) {
	case Bytes:
		return (d.Kind == Gray8 || d.Kind == Color8Indexed || d.Kind == Bitmap1) && len(p) >= n
	case Shorts:
		return (d.Kind == Gray16Signed || d.Kind == Gray16Unsigned || d.Kind == Gray12Unsigned) && len(p) >= n
	case Floats:
		switch d.Kind {
		case Gray32Int, Gray32Unsigned, Gray32Float, Gray64Float, Gray24Unsigned:
			return len(p) >= n
		}
	case Packed:
		switch d.Kind {
		case RGB24, BGR24, ARGB32, ABGR32, BARG32, RGBPlanar:
			return len(p) >= n
		}
	case Channels:
		if d.Kind != RGB48 && d.Kind != RGB48Planar || len(p) < d.channels() {
			return false
		}
		for _, c := range p {
			if len(c) < n {
				return false
			}
		}
		return true
	}
	return false
}
