package lzw

import "encoding/binary"

// UndoDifferencing reverses TIFF horizontal differencing (Predictor 2) in
// place. Rows are width pixels of samplesPerPixel samples each; every sample
// after the first pixel of a row becomes the running sum of the deltas for
// its channel. bytesPerSample is 1 or 2; 16-bit samples are assembled in
// order (nil means big endian) and summed modulo 65536.
func UndoDifferencing(buf []byte, width, samplesPerPixel, bytesPerSample int, order binary.ByteOrder) {
	if width <= 0 || samplesPerPixel <= 0 {
		return
	}
	if order == nil {
		order = binary.BigEndian
	}
	switch bytesPerSample {
	case 1:
		row := width * samplesPerPixel
		for start := 0; start < len(buf); start += row {
			end := min(start+row, len(buf))
			for i := start + samplesPerPixel; i < end; i++ {
				buf[i] += buf[i-samplesPerPixel]
			}
		}
	case 2:
		row := width * samplesPerPixel * 2
		stride := samplesPerPixel * 2
		for start := 0; start < len(buf); start += row {
			end := min(start+row, len(buf)&^1)
			for i := start + stride; i+2 <= end; i += 2 {
				v := order.Uint16(buf[i:]) + order.Uint16(buf[i-stride:])
				order.PutUint16(buf[i:], v)
			}
		}
	}
}

// ApplyDifferencing is the inverse of UndoDifferencing: it replaces each
// sample with its difference from the previous sample of the same channel
// in the row.
func ApplyDifferencing(buf []byte, width, samplesPerPixel, bytesPerSample int, order binary.ByteOrder) {
	if width <= 0 || samplesPerPixel <= 0 {
		return
	}
	if order == nil {
		order = binary.BigEndian
	}
	switch bytesPerSample {
	case 1:
		row := width * samplesPerPixel
		for start := 0; start < len(buf); start += row {
			end := min(start+row, len(buf))
			for i := end - 1; i >= start+samplesPerPixel; i-- {
				buf[i] -= buf[i-samplesPerPixel]
			}
		}
	case 2:
		row := width * samplesPerPixel * 2
		stride := samplesPerPixel * 2
		for start := 0; start < len(buf); start += row {
			end := min(start+row, len(buf)&^1)
			for i := end - 2; i >= start+stride; i -= 2 {
				v := order.Uint16(buf[i:]) - order.Uint16(buf[i-stride:])
				order.PutUint16(buf[i:], v)
			}
		}
	}
}
