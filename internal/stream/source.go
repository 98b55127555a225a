// Package stream turns files, URLs and byte slices into the random access
// byte sources the decoders read from.
//
// Local files are memory-mapped, remote files are fetched with HTTP range
// requests through a block cache, and gzip-compressed content is inflated
// into memory on open.
package stream

import (
	"bytes"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/op/go-logging"

	"github.com/pspoerri/imgio/internal/codec"
)

var log = logging.MustGetLogger("stream")

// Source is a random access byte source. Read and Seek share one cursor;
// NewReader returns independent cursors over the same data.
//
// A Source is owned by one caller, who must Close it.
type Source struct {
	ra      io.ReaderAt
	size    int64
	pos     int64
	release func() error

	// Name is the base name of the file or URL.
	Name string
	// Location is the directory or URL prefix Name was found in.
	Location string
	// Remote reports whether the data came from an URL.
	Remote bool
	// Gzipped reports whether the content was inflated from a gzip stream.
	Gzipped bool
}

// Open opens a local path or an http(s) URL.
func Open(name string, opts Options) (*Source, error) {
	if isURL(name) {
		return openRemote(name, opts)
	}
	return openFile(name)
}

func isURL(name string) bool {
	return strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://")
}

func openFile(name string) (*Source, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, codec.Resource(err, "opening %s", name)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, codec.Resource(err, "stat %s", name)
	}
	size := fi.Size()
	if size == 0 {
		return nil, codec.Structuralf("%s: empty file", name)
	}

	var (
		data    []byte
		release func() error
	)
	data, err = mmapFile(f.Fd(), int(size))
	if err == nil {
		release = func() error { return munmapFile(data) }
	} else {
		log.Debugf("mmap %s: %v, reading into memory", name, err)
		data = make([]byte, size)
		if _, err := io.ReadFull(f, data); err != nil {
			return nil, codec.Resource(err, "reading %s", name)
		}
	}

	s, err := newSource(data, release)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", name)
	}
	s.Name = filepath.Base(name)
	s.Location = filepath.Dir(name)
	log.Debugf("opened %s: %d bytes, gzip=%v", name, s.size, s.Gzipped)
	return s, nil
}

// FromBytes wraps an in-memory buffer. Gzip content is inflated.
func FromBytes(data []byte, name string) (*Source, error) {
	s, err := newSource(data, nil)
	if err != nil {
		return nil, err
	}
	s.Name = name
	return s, nil
}

// FromReader reads r to the end and wraps the result.
func FromReader(r io.Reader, name string) (*Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, codec.Resource(err, "reading %s", name)
	}
	return FromBytes(data, name)
}

// newSource wraps data, inflating it first when it starts with the gzip
// magic. release, if set, is called once the data is no longer referenced.
func newSource(data []byte, release func() error) (*Source, error) {
	if !IsGzip(data) {
		return &Source{ra: bytes.NewReader(data), size: int64(len(data)), release: release}, nil
	}
	inflated, err := gunzip(bytes.NewReader(data))
	if release != nil {
		if rerr := release(); rerr != nil {
			log.Warningf("releasing compressed data: %v", rerr)
		}
	}
	if err != nil {
		return nil, err
	}
	return &Source{ra: bytes.NewReader(inflated), size: int64(len(inflated)), Gzipped: true}, nil
}

// IsGzip reports whether b starts with the gzip magic number.
func IsGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

func gunzip(r io.Reader) ([]byte, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, codec.Structuralf("gzip header: %v", err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, codec.Resource(err, "inflating gzip stream")
	}
	return data, nil
}

// Read implements io.Reader.
func (s *Source) Read(p []byte) (int, error) {
	if s.pos >= s.size {
		return 0, io.EOF
	}
	if rem := s.size - s.pos; int64(len(p)) > rem {
		p = p[:rem]
	}
	n, err := s.ra.ReadAt(p, s.pos)
	s.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// Seek implements io.Seeker. Seeking past the end is allowed; reads there
// return io.EOF.
func (s *Source) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.pos + offset
	case io.SeekEnd:
		abs = s.size + offset
	default:
		return 0, errors.NotValidf("whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.NotValidf("negative position %d", abs)
	}
	s.pos = abs
	return abs, nil
}

// ReadAt implements io.ReaderAt.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	return s.ra.ReadAt(p, off)
}

// Size returns the length of the (inflated) content.
func (s *Source) Size() int64 {
	return s.size
}

// NewReader returns an independent reader over the whole content.
func (s *Source) NewReader() *io.SectionReader {
	return io.NewSectionReader(s.ra, 0, s.size)
}

// Close releases the mapping or cached blocks behind the source.
func (s *Source) Close() error {
	s.ra = bytes.NewReader(nil)
	s.size = 0
	if s.release == nil {
		return nil
	}
	err := s.release()
	s.release = nil
	return err
}

// Adapt returns a reader positioned at the start of the content for decoding
// the image described by d. Raw data that arrived gzip-compressed is marked
// with CompressionUnknown.
func Adapt(d *codec.Descriptor, s *Source) io.ReadSeeker {
	if s.Gzipped && d.Compression == codec.CompressionNone {
		d.Compression = codec.CompressionUnknown
	}
	return s.NewReader()
}

// baseName returns the last element of a path or URL.
func baseName(name string) string {
	if isURL(name) {
		if i := strings.IndexAny(name, "?#"); i >= 0 {
			name = name[:i]
		}
		return path.Base(name)
	}
	return filepath.Base(name)
}
