package codec

import "fmt"

// Kind identifies how pixels are stored in a file.
type Kind int

const (
	Gray8 Kind = iota
	Gray16Signed
	Gray16Unsigned
	Gray32Int
	Gray32Unsigned
	Gray32Float
	Gray64Float
	Gray12Unsigned
	Gray24Unsigned
	Color8Indexed
	RGB24
	RGBPlanar
	BGR24
	ARGB32
	ABGR32
	BARG32
	RGB48
	RGB48Planar
	Bitmap1
)

var kindNames = [...]string{
	Gray8:          "gray8",
	Gray16Signed:   "gray16-signed",
	Gray16Unsigned: "gray16-unsigned",
	Gray32Int:      "gray32-int",
	Gray32Unsigned: "gray32-unsigned",
	Gray32Float:    "gray32-float",
	Gray64Float:    "gray64-float",
	Gray12Unsigned: "gray12-unsigned",
	Gray24Unsigned: "gray24-unsigned",
	Color8Indexed:  "color8",
	RGB24:          "rgb",
	RGBPlanar:      "rgb-planar",
	BGR24:          "bgr",
	ARGB32:         "argb",
	ABGR32:         "abgr",
	BARG32:         "barg",
	RGB48:          "rgb48",
	RGB48Planar:    "rgb48-planar",
	Bitmap1:        "bitmap",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind returns the Kind with the given name.
func ParseKind(name string) (Kind, error) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, Validationf("unknown pixel kind %q", name)
}

// BytesPerPixel returns the stored size of one pixel. Bitmap1 returns 0
// because its size is computed per row in bits.
func (k Kind) BytesPerPixel() int {
	switch k {
	case Gray8, Color8Indexed:
		return 1
	case Gray16Signed, Gray16Unsigned, Gray12Unsigned:
		return 2
	case RGB24, BGR24, RGBPlanar, Gray24Unsigned:
		return 3
	case Gray32Int, Gray32Unsigned, Gray32Float, ARGB32, ABGR32, BARG32:
		return 4
	case RGB48, RGB48Planar:
		return 6
	case Gray64Float:
		return 8
	}
	return 0
}

// Writable reports whether Write supports k. The 4-byte RGB kinds are
// read-only.
func (k Kind) Writable() bool {
	switch k {
	case ARGB32, ABGR32, BARG32:
		return false
	}
	return k >= Gray8 && k <= Bitmap1
}

// Compression describes how the pixel data of an image is encoded.
type Compression int

const (
	// CompressionUnknown is read like CompressionNone. It marks raw data
	// that reached the codec through an outer gzip layer.
	CompressionUnknown Compression = iota
	CompressionNone
	CompressionLZW
	CompressionLZWDifferencing
)

func (c Compression) String() string {
	switch c {
	case CompressionUnknown:
		return "unknown"
	case CompressionNone:
		return "none"
	case CompressionLZW:
		return "lzw"
	case CompressionLZWDifferencing:
		return "lzw+predictor"
	}
	return fmt.Sprintf("compression(%d)", int(c))
}

// Compressed reports whether the data is stored in LZW strips.
func (c Compression) Compressed() bool {
	return c == CompressionLZW || c == CompressionLZWDifferencing
}
