package lzw

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pspoerri/imgio/internal/lzw/lzwtest"
)

func TestDifferencing_MonotonicRow(t *testing.T) {
	row := make([]byte, 200)
	for i := range row {
		row[i] = byte(i * 3)
	}
	deltas := append([]byte(nil), row...)
	ApplyDifferencing(deltas, len(row), 1, 1, nil)
	for i := 1; i < len(deltas); i++ {
		if deltas[i] != 3 {
			t.Fatalf("delta[%d] = %d, want 3", i, deltas[i])
		}
	}

	got := Decompress(lzwtest.Encode(deltas), len(row))
	UndoDifferencing(got, len(row), 1, 1, nil)
	if !bytes.Equal(got, row) {
		t.Errorf("got %v, want %v", got, row)
	}
}

func TestDifferencing_RowReset(t *testing.T) {
	// Two rows of width 3; the first sample of each row is stored as is.
	buf := []byte{10, 1, 1, 20, 2, 2}
	UndoDifferencing(buf, 3, 1, 1, nil)
	if want := []byte{10, 11, 12, 20, 22, 24}; !bytes.Equal(buf, want) {
		t.Errorf("got %v, want %v", buf, want)
	}
}

func TestDifferencing_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		width int
		spp   int
		bps   int
		order binary.ByteOrder
	}{
		{"gray8", 17, 1, 1, nil},
		{"rgb8", 8, 3, 1, nil},
		{"gray16 big", 17, 1, 2, binary.BigEndian},
		{"gray16 little", 17, 1, 2, binary.LittleEndian},
		{"rgb16 little", 5, 3, 2, binary.LittleEndian},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := 4
			orig := make([]byte, tt.width*tt.spp*tt.bps*rows)
			for i := range orig {
				orig[i] = byte(i*7 + i/5)
			}
			buf := append([]byte(nil), orig...)
			ApplyDifferencing(buf, tt.width, tt.spp, tt.bps, tt.order)
			if bytes.Equal(buf, orig) {
				t.Fatal("differencing left the buffer unchanged")
			}
			UndoDifferencing(buf, tt.width, tt.spp, tt.bps, tt.order)
			if !bytes.Equal(buf, orig) {
				t.Errorf("round trip mismatch:\ngot  %v\nwant %v", buf, orig)
			}
		})
	}
}

func TestUndoDifferencing_16BitWraps(t *testing.T) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:], 0xFFFF)
	binary.LittleEndian.PutUint16(buf[2:], 2)
	UndoDifferencing(buf, 2, 1, 2, binary.LittleEndian)
	if got := binary.LittleEndian.Uint16(buf[2:]); got != 1 {
		t.Errorf("got %d, want 1", got)
	}
}
