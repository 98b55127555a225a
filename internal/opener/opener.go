// Package opener ties the container decoders, the byte sources and the
// pixel codec together into whole-file operations.
package opener

import (
	"encoding/binary"
	"io"
	"path"
	"strings"

	"github.com/juju/errors"
	"github.com/klauspost/compress/zip"
	"github.com/op/go-logging"

	"github.com/pspoerri/imgio/internal/codec"
	"github.com/pspoerri/imgio/internal/roi"
	"github.com/pspoerri/imgio/internal/stream"
	"github.com/pspoerri/imgio/internal/tiff"
)

var log = logging.MustGetLogger("opener")

// Options configures whole-file operations.
type Options struct {
	Stream stream.Options

	// Progress receives the overall fraction done, Abort is polled between
	// images. Both may be nil.
	Progress func(float64)
	Abort    func() bool
}

// codecOptions scales progress of run i of n runs into the overall range.
func (o Options) codecOptions(i, n int) []codec.Option {
	var opts []codec.Option
	if o.Progress != nil {
		opts = append(opts, codec.WithProgress(func(f float64) {
			o.Progress((float64(i) + f) / float64(n))
		}))
	}
	if o.Abort != nil {
		opts = append(opts, codec.WithAbort(o.Abort))
	}
	return opts
}

// Image is one decoded run of equally shaped images. Pixels is a
// codec.Stack when the descriptor holds more than one image.
type Image struct {
	Descriptor codec.Descriptor
	Pixels     codec.Pixels
}

// Rois decodes the ROI and overlay records stored with the image.
func (img *Image) Rois() ([]*roi.Roi, error) {
	var out []*roi.Roi
	records := img.Descriptor.Overlay
	if len(img.Descriptor.RoiData) > 0 {
		records = append([][]byte{img.Descriptor.RoiData}, records...)
	}
	for i, rec := range records {
		r, err := roi.Decode(rec)
		if err != nil {
			return out, errors.Annotatef(err, "ROI record %d", i)
		}
		out = append(out, r)
	}
	return out, nil
}

// File is everything read from one path or URL.
type File struct {
	Name   string
	Type   tiff.FileType
	Images []*Image
	Rois   []*roi.Roi
}

// Decode reads the pixels described by d from src. Sources opened through
// the stream package get their gzip handling applied.
func Decode(d *codec.Descriptor, src io.Reader, opts ...codec.Option) (codec.Pixels, error) {
	if s, ok := src.(*stream.Source); ok {
		src = stream.Adapt(d, s)
	}
	return codec.Read(src, d, opts...)
}

// Encode writes pixels as an uncompressed TIFF file.
func Encode(d *codec.Descriptor, pixels codec.Pixels, sink io.Writer, opts ...codec.Option) error {
	return tiff.Encode(sink, d, pixels, opts...)
}

// Open detects the type of a file and decodes it. TIFF files yield images,
// ROI records and ZIP archives of them yield ROIs, and a ZIP archive holding
// a TIFF file yields that file's images.
func Open(name string, opts Options) (*File, error) {
	src, err := stream.Open(name, opts.Stream)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return OpenSource(src, opts)
}

// OpenSource is Open for an already opened source, which stays owned by the
// caller.
func OpenSource(src *stream.Source, opts Options) (*File, error) {
	hdr := make([]byte, min(int64(tiff.HeaderSize), src.Size()))
	if _, err := src.ReadAt(hdr, 0); err != nil && err != io.EOF {
		return nil, codec.Resource(err, "reading header of %s", src.Name)
	}
	f := &File{Name: src.Name, Type: tiff.Detect(hdr)}
	log.Debugf("%s: %s, %d bytes", src.Name, f.Type, src.Size())

	var err error
	switch f.Type {
	case tiff.TIFF, tiff.TIFFDicom:
		f.Images, err = readTIFF(src, opts)
	case tiff.ROI:
		data := make([]byte, src.Size())
		if _, err := src.ReadAt(data, 0); err != nil && err != io.EOF {
			return nil, codec.Resource(err, "reading %s", src.Name)
		}
		var r *roi.Roi
		if r, err = roi.Decode(data); err == nil {
			f.Rois = []*roi.Roi{r}
		}
	case tiff.Zip:
		err = readZip(src, f, opts)
	default:
		return nil, codec.Structuralf("%s: unrecognised file type", src.Name)
	}
	return f, err
}

// OpenTIFF decodes every image of a TIFF file. Directories that describe
// evenly spaced images of one shape are read as a single stack.
//
// A truncated file returns the images read so far together with an error
// matching codec.ErrTruncated.
func OpenTIFF(name string, opts Options) ([]*Image, error) {
	src, err := stream.Open(name, opts.Stream)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return readTIFF(src, opts)
}

func readTIFF(src *stream.Source, opts Options) ([]*Image, error) {
	ds, err := tiff.Decode(src.NewReader())
	if err != nil {
		return nil, errors.Annotatef(err, "%s", src.Name)
	}
	ds = Coalesce(ds)

	images := make([]*Image, 0, len(ds))
	for i := range ds {
		d := &ds[i]
		setOrigin(d, src)
		p, err := readDescribed(src, d, opts.codecOptions(i, len(ds)))
		if p != nil {
			images = append(images, &Image{Descriptor: *d, Pixels: p})
		}
		if err != nil {
			return images, err
		}
	}
	return images, nil
}

// readDescribed validates d against the source and reads its pixels.
// Failures carry the geometry of the image for Report.
func readDescribed(src *stream.Source, d *codec.Descriptor, opts []codec.Option) (codec.Pixels, error) {
	if err := d.Validate(src.Size()); err != nil {
		return nil, &Error{Err: err, Descriptor: *d, FileLength: src.Size()}
	}
	p, err := codec.Read(stream.Adapt(d, src), d, opts...)
	if err != nil {
		return p, &Error{Err: err, Descriptor: *d, FileLength: src.Size()}
	}
	return p, nil
}

// setOrigin records where the image came from.
func setOrigin(d *codec.Descriptor, src *stream.Source) {
	d.Name = src.Name
	switch {
	case src.Remote:
		d.URL = strings.TrimSuffix(src.Location, "/") + "/" + src.Name
	case src.Location != "":
		d.Directory = src.Location
	}
}

// readZip decodes the first TIFF file and every ROI record in an archive.
func readZip(src *stream.Source, f *File, opts Options) error {
	zr, err := zip.NewReader(src, src.Size())
	if err != nil {
		return codec.Structuralf("%s: %v", src.Name, err)
	}
	for _, zf := range zr.File {
		ext := strings.ToLower(path.Ext(zf.Name))
		if ext != ".roi" && ((ext != ".tif" && ext != ".tiff") || f.Images != nil) {
			log.Debugf("%s: skipping %s", src.Name, zf.Name)
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return codec.Resource(err, "opening %s in %s", zf.Name, src.Name)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return codec.Resource(err, "reading %s in %s", zf.Name, src.Name)
		}

		if ext == ".roi" {
			r, err := roi.Decode(data)
			if err != nil {
				return errors.Annotatef(err, "%s", zf.Name)
			}
			if r.Name == "" {
				r.Name = strings.TrimSuffix(path.Base(zf.Name), path.Ext(zf.Name))
			}
			f.Rois = append(f.Rois, r)
			continue
		}
		inner, err := stream.FromBytes(data, path.Base(zf.Name))
		if err != nil {
			return err
		}
		inner.Location = src.Location
		inner.Remote = src.Remote
		f.Images, err = readTIFF(inner, opts)
		inner.Close()
		if err != nil {
			return err
		}
	}
	if f.Images == nil && f.Rois == nil {
		return codec.Structuralf("%s: archive holds no TIFF or ROI files", src.Name)
	}
	return nil
}

// RawOptions describes headerless pixel data.
type RawOptions struct {
	Width, Height int
	Kind          codec.Kind
	Offset        int64
	Images        int
	Gap           int64
	LittleEndian  bool
	WhiteIsZero   bool
}

// Descriptor builds the descriptor of a raw file.
func (ro RawOptions) Descriptor() codec.Descriptor {
	d := codec.Descriptor{
		Width:       ro.Width,
		Height:      ro.Height,
		Kind:        ro.Kind,
		Compression: codec.CompressionNone,
		Images:      max(ro.Images, 1),
		Offset:      ro.Offset,
		Gap:         ro.Gap,
		WhiteIsZero: ro.WhiteIsZero,
	}
	if ro.LittleEndian {
		d.ByteOrder = binary.LittleEndian
	}
	return d
}

// OpenRaw reads headerless pixel data. Gzip-compressed files are inflated
// first.
func OpenRaw(name string, ro RawOptions, opts Options) (*Image, error) {
	src, err := stream.Open(name, opts.Stream)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	d := ro.Descriptor()
	setOrigin(&d, src)
	p, err := readDescribed(src, &d, opts.codecOptions(0, 1))
	if p == nil {
		return nil, err
	}
	return &Image{Descriptor: d, Pixels: p}, err
}
