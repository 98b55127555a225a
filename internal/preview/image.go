package preview

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/pspoerri/imgio/internal/codec"
)

// ToImage converts the pixels of one image to an image.Image. A stack
// contributes its first image.
//
// 8-bit and 16-bit gray keep their values, 12-bit gray is stretched to 16
// bits, and 24/32/64-bit gray is scaled from its minimum and maximum to
// 8 bits. Indexed color with a color map becomes a paletted image.
func ToImage(d *codec.Descriptor, p codec.Pixels) (image.Image, error) {
	if st, ok := p.(codec.Stack); ok {
		if len(st) == 0 {
			return nil, codec.Structuralf("empty stack")
		}
		p = st[0]
	}
	w, h := d.Width, d.Height
	n := w * h
	if p == nil || p.Len() < n {
		return nil, codec.Structuralf("pixels do not cover a %dx%d image", w, h)
	}
	r := image.Rect(0, 0, w, h)

	switch px := p.(type) {
	case codec.Bytes:
		if d.Kind == codec.Color8Indexed && len(d.Reds) > 0 {
			pal := make(color.Palette, 256)
			for i := range pal {
				pal[i] = color.RGBA{at(d.Reds, i), at(d.Greens, i), at(d.Blues, i), 0xff}
			}
			img := image.NewPaletted(r, pal)
			copy(img.Pix, px[:n])
			return img, nil
		}
		img := image.NewGray(r)
		copy(img.Pix, px[:n])
		if d.WhiteIsZero {
			for i, v := range img.Pix {
				img.Pix[i] = 255 - v
			}
		}
		return img, nil

	case codec.Shorts:
		img := image.NewGray16(r)
		for i, v := range px[:n] {
			if d.Kind == codec.Gray12Unsigned {
				v = v<<4 | v>>8
			}
			if d.WhiteIsZero {
				v = 0xffff - v
			}
			img.Pix[2*i] = byte(v >> 8)
			img.Pix[2*i+1] = byte(v)
		}
		return img, nil

	case codec.Floats:
		lo, hi := bounds(px[:n])
		img := image.NewGray(r)
		scale := 0.0
		if hi > lo {
			scale = 255 / (hi - lo)
		}
		for i, v := range px[:n] {
			f := float64(v)
			if math.IsNaN(f) {
				continue
			}
			img.Pix[i] = byte(math.Round((f - lo) * scale))
		}
		return img, nil

	case codec.Packed:
		img := image.NewNRGBA(r)
		for i, v := range px[:n] {
			img.Pix[4*i] = byte(v >> 16)
			img.Pix[4*i+1] = byte(v >> 8)
			img.Pix[4*i+2] = byte(v)
			img.Pix[4*i+3] = 0xff
		}
		return img, nil

	case codec.Channels:
		if len(px) < 3 {
			return nil, codec.Structuralf("%d channels, want 3", len(px))
		}
		img := image.NewNRGBA64(r)
		for i := 0; i < n; i++ {
			o := 8 * i
			for c := 0; c < 3; c++ {
				img.Pix[o+2*c] = byte(px[c][i] >> 8)
				img.Pix[o+2*c+1] = byte(px[c][i])
			}
			img.Pix[o+6], img.Pix[o+7] = 0xff, 0xff
		}
		return img, nil
	}
	return nil, codec.Structuralf("cannot preview %T", p)
}

func at(b []byte, i int) byte {
	if i < len(b) {
		return b[i]
	}
	return 0
}

// bounds returns the smallest and largest finite value.
func bounds(px []float32) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range px {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		lo = min(lo, f)
		hi = max(hi, f)
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}

// Thumbnail scales img down so that neither side exceeds maxSize, keeping
// the aspect ratio. Smaller images and a maxSize below one are returned
// unchanged.
func Thumbnail(img image.Image, maxSize int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSize < 1 || (w <= maxSize && h <= maxSize) {
		return img
	}
	tw, th := maxSize, maxSize
	if w >= h {
		th = max(1, int(math.Round(float64(h)*float64(maxSize)/float64(w))))
	} else {
		tw = max(1, int(math.Round(float64(w)*float64(maxSize)/float64(h))))
	}
	dr := image.Rect(0, 0, tw, th)

	var dst draw.Image
	switch img.(type) {
	case *image.Gray:
		dst = image.NewGray(dr)
	case *image.Gray16:
		dst = image.NewGray16(dr)
	case *image.NRGBA64:
		dst = image.NewNRGBA64(dr)
	default:
		dst = image.NewNRGBA(dr)
	}
	draw.CatmullRom.Scale(dst, dr, img, b, draw.Src, nil)
	return dst
}
