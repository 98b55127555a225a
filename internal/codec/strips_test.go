package codec

import (
	"bytes"
	"encoding/binary"
	"io"
	"reflect"
	"testing"
	"testing/iotest"

	"github.com/juju/errors"

	"github.com/pspoerri/imgio/internal/lzw"
	"github.com/pspoerri/imgio/internal/lzw/lzwtest"
)

// countingReader records how many bytes were consumed.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func pad(b []byte, n int) []byte {
	if len(b) > n {
		panic("strip does not fit")
	}
	return append(b, make([]byte, n-len(b))...)
}

func TestReadStrips_Gap(t *testing.T) {
	pixels := make([]byte, 16)
	for i := range pixels {
		pixels[i] = byte(i * 9)
	}
	var file bytes.Buffer
	file.Write(bytes.Repeat([]byte{0xff}, 100))
	file.Write(pad(lzwtest.Encode(pixels[:8]), 40))
	file.Write(bytes.Repeat([]byte{0xff}, 10))
	file.Write(pad(lzwtest.Encode(pixels[8:]), 40))

	d := &Descriptor{
		Width:        4,
		Height:       4,
		Kind:         Gray8,
		Compression:  CompressionLZW,
		Offset:       100,
		StripOffsets: []int64{100, 150},
		StripLengths: []int64{40, 40},
		RowsPerStrip: 2,
	}

	tests := []struct {
		name string
		r    func() io.Reader
	}{
		{"seeker", func() io.Reader { return bytes.NewReader(file.Bytes()) }},
		{"stream", func() io.Reader { return iotest.OneByteReader(bytes.NewReader(file.Bytes())) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(tt.r(), d)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if !reflect.DeepEqual(got, Bytes(pixels)) {
				t.Errorf("got %v, want %v", got, pixels)
			}
		})
	}

	t.Run("consumed", func(t *testing.T) {
		cr := &countingReader{r: iotest.OneByteReader(bytes.NewReader(file.Bytes()))}
		if _, err := Read(cr, d); err != nil {
			t.Fatalf("Read: %v", err)
		}
		if cr.n != 190 {
			t.Errorf("consumed %d bytes, want 190", cr.n)
		}
	})
}

func TestReadStrips_Overlap(t *testing.T) {
	d := &Descriptor{
		Width:        4,
		Height:       2,
		Kind:         Gray8,
		Compression:  CompressionLZW,
		StripOffsets: []int64{8, 20},
		StripLengths: []int64{16, 16},
	}
	_, err := Read(bytes.NewReader(make([]byte, 64)), d)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestReadStrips_Differencing16(t *testing.T) {
	const w, h = 6, 4
	want := make(Shorts, w*h)
	for i := range want {
		want[i] = uint16(1000 + i*37)
	}
	raw := make([]byte, 2*len(want))
	for i, v := range want {
		binary.LittleEndian.PutUint16(raw[2*i:], v)
	}
	lzw.ApplyDifferencing(raw, w, 1, 2, binary.LittleEndian)

	// One strip per two rows.
	var file bytes.Buffer
	var offsets, lengths []int64
	rowBytes := 2 * w
	for y := 0; y < h; y += 2 {
		enc := lzwtest.Encode(raw[y*rowBytes : (y+2)*rowBytes])
		offsets = append(offsets, int64(file.Len()))
		lengths = append(lengths, int64(len(enc)))
		file.Write(enc)
	}

	d := &Descriptor{
		Width:        w,
		Height:       h,
		Kind:         Gray16Unsigned,
		ByteOrder:    binary.LittleEndian,
		Compression:  CompressionLZWDifferencing,
		StripOffsets: offsets,
		StripLengths: lengths,
		RowsPerStrip: 2,
	}
	got, err := Read(bytes.NewReader(file.Bytes()), d)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestReadStrips_TruncatedStrip(t *testing.T) {
	pixels := bytes.Repeat([]byte{1, 2, 3, 4, 5, 6, 7, 8}, 8)
	enc := lzwtest.Encode(pixels)
	d := &Descriptor{
		Width:        8,
		Height:       8,
		Kind:         Gray8,
		Compression:  CompressionLZW,
		StripOffsets: []int64{0},
		StripLengths: []int64{int64(len(enc))},
	}
	got, err := Read(bytes.NewReader(enc[:len(enc)-2]), d)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
	px := got.(Bytes)
	if len(px) != 64 {
		t.Fatalf("len = %d, want 64", len(px))
	}
	decoded := 0
	for decoded < len(px) && px[decoded] == pixels[decoded] {
		decoded++
	}
	if decoded == 0 {
		t.Error("no pixels decoded from the partial strip")
	}
}

func TestReadStrips_ClampsLastStrip(t *testing.T) {
	// The strip decodes to more bytes than the image holds.
	pixels := bytes.Repeat([]byte{9}, 32)
	enc := lzwtest.Encode(pixels)
	d := &Descriptor{
		Width:        4,
		Height:       4,
		Kind:         Gray8,
		Compression:  CompressionLZW,
		StripOffsets: []int64{0},
		StripLengths: []int64{int64(len(enc))},
	}
	got, err := Read(bytes.NewReader(enc), d)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reflect.DeepEqual(got, Bytes(pixels[:16])) {
		t.Errorf("got %v", got)
	}
}
