package tiff

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/pspoerri/imgio/internal/codec"
)

// ImageJ metadata block types, stored as big-endian ASCII words.
const (
	metaMagic      = 0x494a494a // "IJIJ"
	metaInfo       = 0x696e666f // "info"
	metaLabels     = 0x6c61626c // "labl"
	metaRanges     = 0x72616e67 // "rang"
	metaLUTs       = 0x6c757473 // "luts"
	metaPlot       = 0x706c6f74 // "plot"
	metaROI        = 0x726f6920 // "roi "
	metaOverlay    = 0x6f766572 // "over"
	metaProperties = 0x70726f70 // "prop"
)

// parseMetadata reads the ImageJ metadata block. counts[0] is the size of
// the header (magic plus one type/count pair per block type), the remaining
// counts are the sizes of the payload items in header order. Damaged blocks
// are logged and skipped.
func parseMetadata(data []byte, counts []int64, bo binary.ByteOrder, d *codec.Descriptor) {
	if len(counts) < 2 {
		return
	}
	hdrSize := counts[0]
	if hdrSize < 12 || hdrSize > int64(len(data)) || (hdrSize-4)%8 != 0 {
		log.Warningf("ignoring metadata with a %d byte header", hdrSize)
		return
	}
	if bo.Uint32(data[0:4]) != metaMagic {
		log.Warningf("ignoring metadata without IJIJ magic")
		return
	}

	pos := hdrSize
	idx := 1
	for t := int64(4); t < hdrSize; t += 8 {
		typ := bo.Uint32(data[t:])
		n := int(bo.Uint32(data[t+4:]))
		for j := 0; j < n; j++ {
			if idx >= len(counts) {
				log.Warningf("metadata lists more items than counts")
				return
			}
			size := counts[idx]
			idx++
			if size < 0 || pos+size > int64(len(data)) {
				log.Warningf("metadata item of %d bytes at %d overruns the block", size, pos)
				return
			}
			item := data[pos : pos+size]
			pos += size

			switch typ {
			case metaInfo:
				d.Info = decodeUTF16(item, bo)
			case metaLabels:
				d.SliceLabels = append(d.SliceLabels, decodeUTF16(item, bo))
			case metaROI:
				d.RoiData = append([]byte(nil), item...)
			case metaOverlay:
				d.Overlay = append(d.Overlay, append([]byte(nil), item...))
			default:
				log.Debugf("skipping metadata item %#x of %d bytes", typ, size)
			}
		}
	}
}

// buildMetadata returns the payloads of tags 50838 and 50839, or nil when d
// carries no metadata.
func buildMetadata(d *codec.Descriptor, bo binary.ByteOrder) ([]uint32, []byte) {
	type block struct {
		typ   uint32
		items [][]byte
	}
	var blocks []block
	if d.Info != "" {
		blocks = append(blocks, block{metaInfo, [][]byte{encodeUTF16(d.Info, bo)}})
	}
	if hasLabels(d.SliceLabels) {
		items := make([][]byte, len(d.SliceLabels))
		for i, l := range d.SliceLabels {
			items[i] = encodeUTF16(l, bo)
		}
		blocks = append(blocks, block{metaLabels, items})
	}
	if len(d.RoiData) > 0 {
		blocks = append(blocks, block{metaROI, [][]byte{d.RoiData}})
	}
	if len(d.Overlay) > 0 {
		blocks = append(blocks, block{metaOverlay, d.Overlay})
	}
	if len(blocks) == 0 {
		return nil, nil
	}

	hdr := make([]byte, 4+8*len(blocks))
	bo.PutUint32(hdr, metaMagic)
	for i, b := range blocks {
		bo.PutUint32(hdr[4+8*i:], b.typ)
		bo.PutUint32(hdr[8+8*i:], uint32(len(b.items)))
	}
	counts := []uint32{uint32(len(hdr))}
	data := hdr
	for _, b := range blocks {
		for _, item := range b.items {
			counts = append(counts, uint32(len(item)))
			data = append(data, item...)
		}
	}
	return counts, data
}

func hasLabels(labels []string) bool {
	for _, l := range labels {
		if l != "" {
			return true
		}
	}
	return false
}

func decodeUTF16(b []byte, bo binary.ByteOrder) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = bo.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units))
}

func encodeUTF16(s string, bo binary.ByteOrder) []byte {
	units := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(units))
	for i, u := range units {
		bo.PutUint16(b[2*i:], u)
	}
	return b
}
