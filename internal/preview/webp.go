package preview

import (
	"bytes"
	"image"

	"github.com/gen2brain/webp"
	"golang.org/x/image/draw"
)

// WebPEncoder encodes previews as WebP. It uses a system libwebp through
// purego when one is installed and the bundled WASM build otherwise.
type WebPEncoder struct {
	Quality  int
	Lossless bool
}

func newWebPEncoder(quality int) *WebPEncoder {
	if quality <= 0 {
		quality = 85
	}
	return &WebPEncoder{Quality: quality}
}

func (e *WebPEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	opts := webp.Options{
		Lossless: e.Lossless,
		Quality:  e.Quality,
	}
	if err := webp.Encode(&buf, toNRGBA(img), opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *WebPEncoder) Format() string        { return "webp" }
func (e *WebPEncoder) FileExtension() string { return ".webp" }

// toNRGBA converts 16-bit and paletted previews to the 8-bit layout the
// WebP encoder takes.
func toNRGBA(img image.Image) image.Image {
	switch img.(type) {
	case *image.NRGBA, *image.RGBA, *image.Gray:
		return img
	}
	b := img.Bounds()
	out := image.NewNRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}
