package lzw

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	xlzw "golang.org/x/image/tiff/lzw"

	"github.com/pspoerri/imgio/internal/lzw/lzwtest"
)

func gradient8x8() []byte {
	data := make([]byte, 64)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			data[y*8+x] = byte(y*32 + x*4)
		}
	}
	return data
}

func noisyRuns(n int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	data := make([]byte, 0, n)
	for len(data) < n {
		b := byte(rng.Intn(16))
		run := 1 + rng.Intn(6)
		for i := 0; i < run && len(data) < n; i++ {
			data = append(data, b)
		}
	}
	return data
}

func xDecode(t *testing.T, enc []byte) []byte {
	t.Helper()
	r := xlzw.NewReader(bytes.NewReader(enc), xlzw.MSB, 8)
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("x/image/tiff/lzw: %v", err)
	}
	return out
}

func TestDecompress_Reference(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"gradient 8x8", gradient8x8()},
		{"single byte", []byte{42}},
		{"kwkwk", bytes.Repeat([]byte{'a'}, 100)},
		{"runs 100k", noisyRuns(100000, 1)},
		{"random 20k", func() []byte {
			b := make([]byte, 20000)
			rand.New(rand.NewSource(2)).Read(b)
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := lzwtest.Encode(tt.data)

			// The helper encoder must agree with an independent decoder.
			if got := xDecode(t, enc); !bytes.Equal(got, tt.data) {
				t.Fatalf("reference decoder mismatch: got %d bytes, want %d", len(got), len(tt.data))
			}

			got := Decompress(enc, 0)
			if !bytes.Equal(got, tt.data) {
				t.Fatalf("Decompress: got %d bytes, want %d", len(got), len(tt.data))
			}
			got = Decompress(enc, len(tt.data))
			if !bytes.Equal(got, tt.data) {
				t.Fatalf("Decompress with limit: got %d bytes, want %d", len(got), len(tt.data))
			}
		})
	}
}

func TestDecompress_ClearResetsTable(t *testing.T) {
	src := lzwtest.PackCodes(minWidth, ClearCode, 'A', 'B', 258, ClearCode, 'C', 258, EOICode)
	got := Decompress(src, 0)
	// Before the second clear 258 is "AB"; afterwards it is the not yet
	// defined code and expands to "CC".
	if want := []byte("ABABCCC"); !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDecompress_NoLeadingClear(t *testing.T) {
	src := lzwtest.PackCodes(minWidth, 'x', 'y', 258, EOICode)
	if got, want := Decompress(src, 0), []byte("xyxy"); !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDecompress_Corrupt(t *testing.T) {
	tests := []struct {
		name  string
		codes []int
		want  string
	}{
		{"code past next", []int{ClearCode, 'A', 300, 'B'}, "A"},
		{"non-literal after clear", []int{ClearCode, 259, 'A'}, ""},
		{"eoi only", []int{EOICode, 'A'}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decompress(lzwtest.PackCodes(minWidth, tt.codes...), 0)
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecompress_Truncated(t *testing.T) {
	data := noisyRuns(50000, 3)
	enc := lzwtest.Encode(data)
	got := Decompress(enc[:len(enc)/2], len(data))
	if len(got) == 0 || len(got) >= len(data) {
		t.Fatalf("got %d bytes from half a stream of %d", len(got), len(data))
	}
	if !bytes.Equal(got, data[:len(got)]) {
		t.Error("partial output is not a prefix of the original")
	}
}

func TestDecompress_Limit(t *testing.T) {
	data := noisyRuns(5000, 4)
	got := Decompress(lzwtest.Encode(data), 10)
	if !bytes.Equal(got, data[:10]) {
		t.Errorf("got %v, want %v", got, data[:10])
	}
}

func TestDecompress_Empty(t *testing.T) {
	if got := Decompress(nil, 100); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestAccumulator_Extend(t *testing.T) {
	a := newAccumulator(0)
	if cap(a.buf) != 64 {
		t.Fatalf("initial capacity = %d, want 64", cap(a.buf))
	}
	var want []byte
	for i := 0; i < 20; i++ {
		tail := a.extend(i * 7)
		for j := range tail {
			tail[j] = byte(i + j)
			want = append(want, byte(i+j))
		}
	}
	if a.len() != len(want) {
		t.Fatalf("len = %d, want %d", a.len(), len(want))
	}
	if !bytes.Equal(a.bytes(), want) {
		t.Error("contents changed while growing")
	}
	if c := cap(a.buf); c&(c-1) != 0 {
		t.Errorf("capacity %d is not a doubling of 64", c)
	}
}
