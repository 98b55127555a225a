package main

import (
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"github.com/pspoerri/imgio/internal/codec"
	"github.com/pspoerri/imgio/internal/logging"
	"github.com/pspoerri/imgio/internal/opener"
	"github.com/pspoerri/imgio/internal/preview"
	"github.com/pspoerri/imgio/internal/roi"
	"github.com/pspoerri/imgio/internal/stream"
	"github.com/pspoerri/imgio/internal/tiff"
)

func main() {
	verbose := flag.Bool("verbose", false, "Log decoder decisions")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: imginfo [-verbose] <file.tif|file.roi|file.zip|url|->\n")
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	logging.Configure(os.Stderr, *verbose)
	name := flag.Arg(0)

	var src *stream.Source
	var err error
	if name == "-" {
		src, err = stream.FromReader(os.Stdin, "stdin")
	} else {
		src, err = stream.Open(name, stream.Options{})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	hdr := make([]byte, min(int64(tiff.HeaderSize), src.Size()))
	if _, err := src.ReadAt(hdr, 0); err != nil && err != io.EOF {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	ft := tiff.Detect(hdr)

	fmt.Printf("File: %s\n", name)
	fmt.Printf("Type: %s\n", ft)
	fmt.Printf("Size: %d bytes", src.Size())
	if src.Gzipped {
		fmt.Printf(" (inflated from gzip)")
	}
	fmt.Println()

	switch ft {
	case tiff.TIFF, tiff.TIFFDicom:
		if err := describeTIFF(src); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case tiff.ROI, tiff.Zip:
		f, err := opener.OpenSource(src, opener.Options{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for i, img := range f.Images {
			fmt.Printf("\n  Image %d: %dx%d %s\n", i, img.Descriptor.Width, img.Descriptor.Height, img.Descriptor.Kind)
		}
		printRois(f.Rois)
	default:
		fmt.Fprintf(os.Stderr, "Error: not a TIFF, ROI or ZIP file\n")
		os.Exit(1)
	}
}

func describeTIFF(src *stream.Source) error {
	ds, err := tiff.Decode(src.NewReader())
	if err != nil {
		return err
	}
	fmt.Printf("IFD count: %d\n", len(ds))
	for i := range ds {
		d := &ds[i]
		fmt.Printf("\n  IFD %d: %dx%d, %s, %s byte order\n", i, d.Width, d.Height, d.Kind, orderName(d))
		fmt.Printf("    Compression: %s\n", d.Compression)
		if d.Compression.Compressed() {
			fmt.Printf("    Strips: %d, %d rows each\n", len(d.StripOffsets), d.RowsPerStrip)
		} else {
			fmt.Printf("    Offset: %d, images: %d, gap: %d\n", d.Offset, d.NumImages(), d.Gap)
		}
		if d.PixelWidth != 0 {
			fmt.Printf("    Pixel size: %g x %g x %g %s\n", d.PixelWidth, d.PixelHeight, d.PixelDepth, d.Unit)
		}
		if d.FrameInterval != 0 {
			fmt.Printf("    Frame interval: %g\n", d.FrameInterval)
		}
		if d.Description != "" {
			fmt.Printf("    Description: %s\n", strings.ReplaceAll(d.Description, "\n", " | "))
		}
		if len(d.SliceLabels) > 0 {
			fmt.Printf("    Slice labels: %d\n", len(d.SliceLabels))
		}
	}

	runs := opener.Coalesce(ds)
	if len(runs) < len(ds) {
		fmt.Printf("\nCoalesced into %d run(s), first holds %d image(s)\n", len(runs), runs[0].NumImages())
	}

	// Read the first image to check the strips are decodable.
	d := ds[0]
	d.Images = 1
	if err := d.Validate(src.Size()); err != nil {
		fmt.Printf("\n  Read IFD 0: ERROR: %v\n", err)
		return nil
	}
	p, err := opener.Decode(&d, src)
	if err != nil {
		fmt.Printf("\n  Read IFD 0: ERROR: %v\n", err)
		if p == nil {
			return nil
		}
	}
	img, err := preview.ToImage(&d, p)
	if err != nil {
		fmt.Printf("\n  Read IFD 0: ERROR: %v\n", err)
		return nil
	}
	fmt.Printf("\n  Read IFD 0: OK, %d pixels, preview type %T\n", p.Len(), img)
	samplePixels(img, 5)

	first := &opener.Image{Descriptor: ds[0]}
	rois, err := first.Rois()
	if err != nil {
		fmt.Printf("  ROIs: ERROR: %v\n", err)
	}
	printRois(rois)
	return nil
}

func orderName(d *codec.Descriptor) string {
	if d.LittleEndian() {
		return "little-endian"
	}
	return "big-endian"
}

func printRois(rois []*roi.Roi) {
	if len(rois) == 0 {
		return
	}
	fmt.Printf("\nROIs: %d\n", len(rois))
	for i, r := range rois {
		name := r.Name
		if name == "" {
			name = "-"
		}
		fmt.Printf("  %d: %s %q, bounds %v, %d points", i, r.Type, name, r.Bounds, len(r.X))
		if r.Position != 0 {
			fmt.Printf(", slice %d", r.Position)
		}
		fmt.Println()
	}
}

func samplePixels(img image.Image, count int) {
	b := img.Bounds()
	step := max(b.Dx()/(count+1), 1)
	fmt.Printf("  Sample pixels (diagonal):\n")
	for i := 0; i < count; i++ {
		x := b.Min.X + (i+1)*step
		y := b.Min.Y + (i+1)*step
		if x >= b.Max.X || y >= b.Max.Y {
			break
		}
		rr, g, bb, a := img.At(x, y).RGBA()
		fmt.Printf("    (%d,%d): R=%d G=%d B=%d A=%d\n", x, y, rr>>8, g>>8, bb>>8, a>>8)
	}
}
