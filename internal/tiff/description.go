package tiff

import (
	"strconv"
	"strings"

	"github.com/pspoerri/imgio/internal/codec"
)

// descriptionVersion follows "ImageJ=" on the first line of written
// descriptions; readers look for the prefix, not the version.
const descriptionVersion = "1.54f"

// parseDescription applies the keys of an ImageJ description block to d.
// Descriptions written by other software are kept verbatim and otherwise
// ignored.
func parseDescription(s string, d *codec.Descriptor) {
	if !strings.HasPrefix(s, "ImageJ") {
		return
	}
	images, slices := 0, 0
	for _, line := range strings.Split(s, "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "images":
			images, _ = strconv.Atoi(val)
		case "slices":
			slices, _ = strconv.Atoi(val)
		case "unit":
			d.Unit = readUnit(val)
		case "spacing":
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				d.PixelDepth = v
			}
		case "finterval":
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				d.FrameInterval = v
			}
		}
	}
	if images == 0 {
		images = slices
	}
	// Compressed stacks keep one directory per image.
	if images > 1 && !d.Compression.Compressed() {
		d.Images = images
	}
}

// buildDescription renders the ImageJ description block for d.
func buildDescription(d *codec.Descriptor) string {
	var b strings.Builder
	b.WriteString("ImageJ=" + descriptionVersion + "\n")
	n := d.NumImages()
	if n > 1 {
		b.WriteString("images=" + strconv.Itoa(n) + "\n")
		b.WriteString("slices=" + strconv.Itoa(n) + "\n")
	}
	if d.Unit != "" {
		b.WriteString("unit=" + writeUnit(d.Unit) + "\n")
	}
	if n > 1 && d.PixelDepth > 0 {
		b.WriteString("spacing=" + formatFloat(d.PixelDepth) + "\n")
	}
	if d.FrameInterval > 0 {
		b.WriteString("finterval=" + formatFloat(d.FrameInterval) + "\n")
	}
	if n > 1 {
		b.WriteString("loop=false\n")
	}
	return b.String()
}

func readUnit(s string) string {
	if s == "micron" {
		return "µm"
	}
	return s
}

func writeUnit(s string) string {
	if s == "µm" || s == "um" {
		return "micron"
	}
	return s
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
