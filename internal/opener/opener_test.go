package opener

import (
	"bytes"
	"encoding/binary"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"github.com/pspoerri/imgio/internal/codec"
	"github.com/pspoerri/imgio/internal/roi"
	"github.com/pspoerri/imgio/internal/stream"
	"github.com/pspoerri/imgio/internal/tiff"
)

func gray16Stack(n, w, h int) codec.Stack {
	stack := make(codec.Stack, n)
	for i := range stack {
		px := make(codec.Shorts, w*h)
		for j := range px {
			px[j] = uint16(i*4099 + j*13)
		}
		stack[i] = px
	}
	return stack
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func encodeTIFF(t *testing.T, d *codec.Descriptor, p codec.Pixels) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := Encode(d, p, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return buf.Bytes()
}

// multiPage writes a big-endian gray8 TIFF with one directory per image and
// gap bytes between the images' pixel data.
func multiPage(w, h, n, gap int) ([]byte, codec.Stack) {
	bo := binary.BigEndian
	const entries = 6
	ifd := 2 + 12*entries + 4
	dataAt := 8 + n*ifd
	size := w * h

	buf := make([]byte, dataAt+n*(size+gap))
	copy(buf, "MM\x00*")
	bo.PutUint32(buf[4:], 8)
	stack := make(codec.Stack, n)
	for i := 0; i < n; i++ {
		at := 8 + i*ifd
		off := dataAt + i*(size+gap)
		e := buf[at:]
		bo.PutUint16(e, entries)
		put := func(k int, tag, typ uint16, v uint32) {
			f := e[2+12*k:]
			bo.PutUint16(f, tag)
			bo.PutUint16(f[2:], typ)
			bo.PutUint32(f[4:], 1)
			if typ == 3 {
				bo.PutUint16(f[8:], uint16(v))
			} else {
				bo.PutUint32(f[8:], v)
			}
		}
		put(0, 256, 4, uint32(w))
		put(1, 257, 4, uint32(h))
		put(2, 258, 3, 8)
		put(3, 262, 3, 1)
		put(4, 273, 4, uint32(off))
		put(5, 279, 4, uint32(size))
		if i < n-1 {
			bo.PutUint32(e[2+12*entries:], uint32(at+ifd))
		}
		px := make(codec.Bytes, size)
		for j := range px {
			px[j] = byte(i*40 + j)
		}
		copy(buf[off:], px)
		stack[i] = px
	}
	return buf, stack
}

func TestOpenTIFF(t *testing.T) {
	d := &codec.Descriptor{Width: 7, Height: 3, Kind: codec.Gray16Unsigned, Images: 4, Unit: "cm", PixelWidth: 0.5}
	stack := gray16Stack(4, 7, 3)
	path := writeFile(t, "stack.tif", encodeTIFF(t, d, stack))

	var last float64
	images, err := OpenTIFF(path, Options{Progress: func(f float64) { last = f }})
	if err != nil {
		t.Fatalf("OpenTIFF: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("got %d images, want 1", len(images))
	}
	got := images[0]
	if got.Descriptor.Images != 4 || got.Descriptor.Unit != "cm" || got.Descriptor.PixelWidth != 0.5 {
		t.Errorf("descriptor = %+v", got.Descriptor)
	}
	if got.Descriptor.Name != "stack.tif" || got.Descriptor.Directory != filepath.Dir(path) {
		t.Errorf("origin = %q in %q", got.Descriptor.Name, got.Descriptor.Directory)
	}
	if !reflect.DeepEqual(got.Pixels, stack) {
		t.Errorf("pixels differ")
	}
	if last != 1 {
		t.Errorf("final progress = %v, want 1", last)
	}
}

func TestOpenTIFF_MultiPage(t *testing.T) {
	data, stack := multiPage(5, 4, 3, 6)
	images, err := OpenTIFF(writeFile(t, "pages.tif", data), Options{})
	if err != nil {
		t.Fatalf("OpenTIFF: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("got %d images, want 1 coalesced stack", len(images))
	}
	d := images[0].Descriptor
	if d.Images != 3 || d.Gap != 6 {
		t.Errorf("images=%d gap=%d, want 3, 6", d.Images, d.Gap)
	}
	if !reflect.DeepEqual(images[0].Pixels, stack) {
		t.Errorf("pixels differ")
	}
}

func TestOpenTIFF_Truncated(t *testing.T) {
	d := &codec.Descriptor{Width: 8, Height: 8, Kind: codec.Gray16Unsigned}
	data := encodeTIFF(t, d, gray16Stack(1, 8, 8)[0])
	data = data[:len(data)-64]

	images, err := OpenTIFF(writeFile(t, "short.tif", data), Options{})
	if !errors.Is(err, codec.ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
	if len(images) != 1 || images[0].Pixels.Len() != 64 {
		t.Fatalf("got %d images, want the partial image", len(images))
	}
	var oe *Error
	if !errors.As(err, &oe) || oe.Descriptor.Width != 8 {
		t.Errorf("err = %#v, want *Error with the image geometry", err)
	}
}

func TestCoalesce(t *testing.T) {
	base := codec.Descriptor{Width: 10, Height: 10, Kind: codec.Gray8, Images: 1}
	at := func(off int64, mod func(*codec.Descriptor)) codec.Descriptor {
		d := base
		d.Offset = off
		d.StripOffsets = []int64{off}
		if mod != nil {
			mod(&d)
		}
		return d
	}
	tests := []struct {
		name   string
		in     []codec.Descriptor
		images int
		gap    int64
	}{
		{"contiguous", []codec.Descriptor{at(100, nil), at(200, nil), at(300, nil)}, 3, 0},
		{"gapped", []codec.Descriptor{at(100, nil), at(250, nil), at(400, nil)}, 3, 50},
		{"uneven", []codec.Descriptor{at(100, nil), at(200, nil), at(350, nil)}, 0, 0},
		{"overlapping", []codec.Descriptor{at(100, nil), at(150, nil)}, 0, 0},
		{"other shape", []codec.Descriptor{at(100, nil), at(200, func(d *codec.Descriptor) { d.Width = 5 })}, 0, 0},
		{"other order", []codec.Descriptor{at(100, nil), at(200, func(d *codec.Descriptor) { d.ByteOrder = binary.LittleEndian })}, 0, 0},
		{"compressed", []codec.Descriptor{at(100, nil), at(200, func(d *codec.Descriptor) { d.Compression = codec.CompressionLZW })}, 0, 0},
		{"single", []codec.Descriptor{at(100, nil)}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Coalesce(tt.in)
			if tt.images == 0 {
				if len(got) != len(tt.in) {
					t.Fatalf("got %d descriptors, want %d unchanged", len(got), len(tt.in))
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("got %d descriptors, want 1", len(got))
			}
			if got[0].Images != tt.images || got[0].Gap != tt.gap || got[0].Offset != 100 {
				t.Errorf("images=%d gap=%d offset=%d, want %d, %d, 100", got[0].Images, got[0].Gap, got[0].Offset, tt.images, tt.gap)
			}
		})
	}
}

func TestOpenRaw(t *testing.T) {
	const w, h, offset = 6, 5, 32
	raw := make([]byte, offset, offset+2*w*h)
	want := make(codec.Shorts, w*h)
	for i := range want {
		want[i] = uint16(i*517 + 3)
		raw = binary.LittleEndian.AppendUint16(raw, want[i])
	}
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write(raw)
	zw.Close()

	ro := RawOptions{Width: w, Height: h, Kind: codec.Gray16Unsigned, Offset: offset, LittleEndian: true}
	tests := []struct {
		name        string
		file        string
		data        []byte
		compression codec.Compression
	}{
		{"plain", "dump.raw", raw, codec.CompressionNone},
		{"gzip", "dump.raw.gz", gz.Bytes(), codec.CompressionUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := OpenRaw(writeFile(t, tt.file, tt.data), ro, Options{})
			if err != nil {
				t.Fatalf("OpenRaw: %v", err)
			}
			if !reflect.DeepEqual(img.Pixels, want) {
				t.Errorf("pixels differ")
			}
			if img.Descriptor.Compression != tt.compression {
				t.Errorf("compression = %s, want %s", img.Descriptor.Compression, tt.compression)
			}
		})
	}
}

func TestOpenRaw_Invalid(t *testing.T) {
	path := writeFile(t, "small.raw", make([]byte, 1500))
	ro := RawOptions{Width: 100, Height: 100, Kind: codec.Gray8, Offset: 1200}
	_, err := OpenRaw(path, ro, Options{})
	if !errors.Is(err, codec.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	msg := err.Error()
	for _, want := range []string{"small.raw: ", "  Width: 100\n", "  Offset: 1200\n", "  Bytes/pixel: 1\n", "  File length: 1500"} {
		if !strings.Contains(msg, want) {
			t.Errorf("report %q does not contain %q", msg, want)
		}
	}
}

func TestReport(t *testing.T) {
	d := &codec.Descriptor{Width: 3, Height: 2, Kind: codec.RGB48, Images: 2, Gap: 4, Offset: 10,
		Compression: codec.CompressionNone}
	got := Report(errors.New("boom"), d, 99)
	want := "boom\n  Width: 3\n  Height: 2\n  Offset: 10\n  Bytes/pixel: 6\n  Images: 2\n  Gap: 4\n  File length: 99"
	if got != want {
		t.Errorf("Report = %q, want %q", got, want)
	}
}

func TestOpen_Zip(t *testing.T) {
	d := &codec.Descriptor{Width: 4, Height: 2, Kind: codec.Gray8}
	px := codec.Bytes{1, 2, 3, 4, 5, 6, 7, 8}
	tif := encodeTIFF(t, d, px)
	rec, err := roi.Encode(&roi.Roi{Type: roi.Rect, Bounds: image.Rect(0, 0, 2, 2)})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range []struct {
		name string
		data []byte
	}{
		{"readme.txt", []byte("hello")},
		{"cells/0001-0002.roi", rec},
		{"img.tif", tif},
		{"0003.roi", rec},
	} {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write(e.data)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := Open(writeFile(t, "bundle.zip", buf.Bytes()), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if f.Type != tiff.Zip {
		t.Errorf("type = %s, want zip", f.Type)
	}
	if len(f.Images) != 1 || !reflect.DeepEqual(f.Images[0].Pixels, px) {
		t.Fatalf("images = %v, want one 4x2 image", f.Images)
	}
	if f.Images[0].Descriptor.Name != "img.tif" {
		t.Errorf("name = %q, want img.tif", f.Images[0].Descriptor.Name)
	}
	if len(f.Rois) != 2 || f.Rois[0].Name != "0001-0002" || f.Rois[1].Name != "0003" {
		t.Errorf("rois = %+v", f.Rois)
	}
}

func TestOpen_Types(t *testing.T) {
	rec, err := roi.Encode(&roi.Roi{Type: roi.Oval, Bounds: image.Rect(1, 1, 9, 5), Name: "blob"})
	if err != nil {
		t.Fatal(err)
	}
	f, err := Open(writeFile(t, "blob.roi", rec), Options{})
	if err != nil {
		t.Fatalf("Open roi: %v", err)
	}
	if f.Type != tiff.ROI || len(f.Rois) != 1 || f.Rois[0].Name != "blob" {
		t.Errorf("got %s with %d rois", f.Type, len(f.Rois))
	}

	_, err = Open(writeFile(t, "notes.txt", []byte("just some text")), Options{})
	if !errors.Is(err, codec.ErrStructural) {
		t.Errorf("err = %v, want ErrStructural", err)
	}
}

func TestImage_Rois(t *testing.T) {
	rect, _ := roi.Encode(&roi.Roi{Type: roi.Rect, Bounds: image.Rect(0, 0, 3, 3)})
	line, _ := roi.Encode(&roi.Roi{Type: roi.Line, X2: 4, Y2: 4})
	d := &codec.Descriptor{Width: 4, Height: 4, Kind: codec.Gray8, RoiData: rect, Overlay: [][]byte{line, line}}
	data := encodeTIFF(t, d, make(codec.Bytes, 16))

	f, err := Open(writeFile(t, "roi.tif", data), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rois, err := f.Images[0].Rois()
	if err != nil {
		t.Fatalf("Rois: %v", err)
	}
	var types []roi.Type
	for _, r := range rois {
		types = append(types, r.Type)
	}
	if want := []roi.Type{roi.Rect, roi.Line, roi.Line}; !reflect.DeepEqual(types, want) {
		t.Errorf("types = %v, want %v", types, want)
	}
}

func TestDecodeEncode(t *testing.T) {
	d := &codec.Descriptor{Width: 3, Height: 3, Kind: codec.RGB24, ByteOrder: binary.LittleEndian}
	px := codec.Packed{0xff010203, 0xff040506, 0xff070809, 0xff0a0b0c, 0xff0d0e0f, 0xff101112, 0xff131415, 0xff161718, 0xff191a1b}
	var sink bytes.Buffer
	if err := Encode(d, px, &sink); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	src, err := stream.FromBytes(sink.Bytes(), "mem.tif")
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	ds, err := tiff.Decode(src.NewReader())
	if err != nil {
		t.Fatalf("tiff.Decode: %v", err)
	}
	got, err := Decode(&ds[0], src)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, px) {
		t.Errorf("got %v, want %v", got, px)
	}
}

func TestStackReader(t *testing.T) {
	d := &codec.Descriptor{Width: 4, Height: 3, Kind: codec.Gray16Unsigned, Images: 5}
	stack := gray16Stack(5, 4, 3)
	sr, err := OpenStack(writeFile(t, "s.tif", encodeTIFF(t, d, stack)), Options{}, 2)
	if err != nil {
		t.Fatalf("OpenStack: %v", err)
	}
	defer sr.Close()

	if sr.Len() != 5 {
		t.Fatalf("Len = %d, want 5", sr.Len())
	}
	for _, i := range []int{3, 0, 4, 3, 1} {
		p, err := sr.Slice(i)
		if err != nil {
			t.Fatalf("Slice(%d): %v", i, err)
		}
		if !reflect.DeepEqual(p, stack[i]) {
			t.Errorf("slice %d differs", i)
		}
	}
	if sd, err := sr.Descriptor(2); err != nil || sd.Images != 1 || sd.Width != 4 {
		t.Errorf("Descriptor(2) = %+v, %v", sd, err)
	}
	if _, err := sr.Slice(5); !errors.Is(err, codec.ErrValidation) {
		t.Errorf("Slice(5) err = %v, want ErrValidation", err)
	}
}

func TestStackReader_Runs(t *testing.T) {
	a := &codec.Descriptor{Width: 2, Height: 2, Kind: codec.Gray8, Images: 2}
	b := &codec.Descriptor{Width: 3, Height: 1, Kind: codec.Gray8}
	var buf bytes.Buffer
	buf.Write(make([]byte, 10))
	codec.Write(&buf, a, codec.Stack{codec.Bytes{1, 2, 3, 4}, codec.Bytes{5, 6, 7, 8}})
	buf.Write(make([]byte, 3))
	codec.Write(&buf, b, codec.Bytes{9, 10, 11})

	a.Offset, b.Offset = 10, 21
	src, err := stream.FromBytes(buf.Bytes(), "runs")
	if err != nil {
		t.Fatal(err)
	}
	sr := NewStackReader(src, []codec.Descriptor{*a, *b}, 0)
	defer sr.Close()

	want := []codec.Pixels{codec.Bytes{1, 2, 3, 4}, codec.Bytes{5, 6, 7, 8}, codec.Bytes{9, 10, 11}}
	for i, w := range want {
		p, err := sr.Slice(i)
		if err != nil {
			t.Fatalf("Slice(%d): %v", i, err)
		}
		if !reflect.DeepEqual(p, w) {
			t.Errorf("slice %d = %v, want %v", i, p, w)
		}
	}
}
