package opener

import (
	"sort"

	"github.com/juju/errors"

	"github.com/pspoerri/imgio/internal/cache"
	"github.com/pspoerri/imgio/internal/codec"
	"github.com/pspoerri/imgio/internal/stream"
	"github.com/pspoerri/imgio/internal/tiff"
)

// DefaultSliceCache is the number of decoded slices a StackReader keeps.
const DefaultSliceCache = 16

// StackReader decodes the images of a file one at a time on demand. It
// keeps the source open until Close and remembers recently read slices.
// Slices may be read from several goroutines.
type StackReader struct {
	src   *stream.Source
	runs  []codec.Descriptor
	first []int // index of the first slice of each run
	n     int
	cache *cache.FIFO[int, codec.Pixels]
}

// OpenStack opens a TIFF file for slice-wise reading.
func OpenStack(name string, opts Options, cacheSize int) (*StackReader, error) {
	src, err := stream.Open(name, opts.Stream)
	if err != nil {
		return nil, err
	}
	ds, err := tiff.Decode(src.NewReader())
	if err != nil {
		src.Close()
		return nil, errors.Annotatef(err, "%s", src.Name)
	}
	ds = Coalesce(ds)
	for i := range ds {
		setOrigin(&ds[i], src)
		if err := ds[i].Validate(src.Size()); err != nil {
			src.Close()
			return nil, &Error{Err: err, Descriptor: ds[i], FileLength: src.Size()}
		}
	}
	return NewStackReader(src, ds, cacheSize), nil
}

// NewStackReader serves the images described by runs from src, which it
// takes ownership of. A cacheSize below one uses DefaultSliceCache.
func NewStackReader(src *stream.Source, runs []codec.Descriptor, cacheSize int) *StackReader {
	if cacheSize < 1 {
		cacheSize = DefaultSliceCache
	}
	s := &StackReader{src: src, runs: runs, cache: cache.NewFIFO[int, codec.Pixels](cacheSize)}
	for _, d := range runs {
		s.first = append(s.first, s.n)
		s.n += d.NumImages()
	}
	return s
}

// Len returns the number of slices.
func (s *StackReader) Len() int {
	return s.n
}

// locate returns the run holding slice i and the index within it.
func (s *StackReader) locate(i int) (int, int, error) {
	if i < 0 || i >= s.n {
		return 0, 0, codec.Validationf("slice %d out of range [0, %d)", i, s.n)
	}
	run := sort.Search(len(s.first), func(k int) bool { return s.first[k] > i }) - 1
	return run, i - s.first[run], nil
}

// Descriptor describes slice i on its own.
func (s *StackReader) Descriptor(i int) (codec.Descriptor, error) {
	run, _, err := s.locate(i)
	if err != nil {
		return codec.Descriptor{}, err
	}
	d := s.runs[run]
	d.Images = 1
	return d, nil
}

// Slice decodes slice i. Truncated slices are returned with the error and
// are not cached.
func (s *StackReader) Slice(i int) (codec.Pixels, error) {
	if p, ok := s.cache.Get(i); ok {
		return p, nil
	}
	run, j, err := s.locate(i)
	if err != nil {
		return nil, err
	}
	d := s.runs[run]
	skip := d.Offset + int64(j)*(d.ImageSize()+d.Gap)
	p, err := codec.ReadSlice(stream.Adapt(&d, s.src), &d, skip)
	if err != nil {
		return p, errors.Annotatef(err, "slice %d", i)
	}
	s.cache.Put(i, p)
	return p, nil
}

// Close releases the source and the cached slices.
func (s *StackReader) Close() error {
	s.cache.Clear()
	return s.src.Close()
}
