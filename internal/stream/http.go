package stream

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/juju/errors"

	"github.com/pspoerri/imgio/internal/cache"
	"github.com/pspoerri/imgio/internal/codec"
)

// remote is an io.ReaderAt over an HTTP resource that supports byte ranges.
// Blocks are fetched on demand and kept in a bounded cache.
type remote struct {
	client    *http.Client
	url       string
	size      int64
	blockSize int64
	blocks    *cache.FIFO[int64, []byte]
}

func openRemote(url string, opts Options) (*Source, error) {
	opts = opts.withDefaults()

	if opts.CacheDir != "" {
		if p := cachePath(opts.CacheDir, url); fileExists(p) {
			log.Debugf("%s: using cached copy %s", url, p)
			s, err := openFile(p)
			if err != nil {
				return nil, err
			}
			return markRemote(s, url), nil
		}
	}

	size, ranges, err := probe(opts.Client, url)
	if err != nil {
		return nil, err
	}

	var s *Source
	if ranges && size > 0 {
		r := &remote{
			client:    opts.Client,
			url:       url,
			size:      size,
			blockSize: opts.BlockSize,
			blocks:    cache.NewFIFO[int64, []byte](opts.MaxCache),
		}
		var magic [2]byte
		if _, err := r.ReadAt(magic[:], 0); err != nil && err != io.EOF {
			return nil, err
		}
		if IsGzip(magic[:]) {
			data, err := gunzip(io.NewSectionReader(r, 0, size))
			if err != nil {
				return nil, errors.Annotatef(err, "%s", url)
			}
			s = &Source{ra: bytes.NewReader(data), size: int64(len(data)), Gzipped: true}
		} else {
			s = &Source{ra: r, size: size, release: func() error { r.blocks.Clear(); return nil }}
		}
		log.Debugf("%s: %d bytes, range requests in %d byte blocks", url, size, opts.BlockSize)
	} else {
		data, err := download(opts.Client, url)
		if err != nil {
			return nil, err
		}
		if opts.CacheDir != "" {
			p := cachePath(opts.CacheDir, url)
			if err := os.MkdirAll(opts.CacheDir, 0o755); err == nil {
				if err := os.WriteFile(p, data, 0o644); err != nil {
					log.Warningf("caching %s: %v", url, err)
				}
			}
		}
		s, err = newSource(data, nil)
		if err != nil {
			return nil, errors.Annotatef(err, "%s", url)
		}
		log.Debugf("%s: downloaded %d bytes", url, len(data))
	}
	return markRemote(s, url), nil
}

// markRemote fills in the naming fields of a source opened for url.
func markRemote(s *Source, url string) *Source {
	s.Name = baseName(url)
	s.Location = strings.TrimSuffix(url, s.Name)
	s.Remote = true
	return s
}

// probe asks for the size of the resource and whether it accepts ranges.
func probe(client *http.Client, url string) (int64, bool, error) {
	resp, err := client.Head(url)
	if err != nil {
		return 0, false, codec.Resource(err, "HEAD %s", url)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false, codec.Resource(errors.Errorf("status %s", resp.Status), "HEAD %s", url)
	}
	ranges := strings.Contains(resp.Header.Get("Accept-Ranges"), "bytes")
	return resp.ContentLength, ranges, nil
}

func download(client *http.Client, url string) ([]byte, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, codec.Resource(err, "GET %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, codec.Resource(errors.Errorf("status %s", resp.Status), "GET %s", url)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, codec.Resource(err, "reading %s", url)
	}
	if len(data) == 0 {
		return nil, codec.Structuralf("%s: empty response", url)
	}
	return data, nil
}

// ReadAt implements io.ReaderAt.
func (r *remote) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && off < r.size {
		idx := off / r.blockSize
		block, err := r.block(idx)
		if err != nil {
			return n, err
		}
		m := copy(p[n:], block[off-idx*r.blockSize:])
		n += m
		off += int64(m)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *remote) block(idx int64) ([]byte, error) {
	if b, ok := r.blocks.Get(idx); ok {
		return b, nil
	}
	start := idx * r.blockSize
	end := min(start+r.blockSize, r.size) - 1

	req, err := http.NewRequest(http.MethodGet, r.url, nil)
	if err != nil {
		return nil, codec.Resource(err, "GET %s", r.url)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, codec.Resource(err, "GET %s bytes %d-%d", r.url, start, end)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		return nil, codec.Resource(errors.Errorf("status %s", resp.Status), "GET %s bytes %d-%d", r.url, start, end)
	}
	b := make([]byte, end-start+1)
	if _, err := io.ReadFull(resp.Body, b); err != nil {
		return nil, codec.Resource(err, "reading %s bytes %d-%d", r.url, start, end)
	}
	r.blocks.Put(idx, b)
	return b, nil
}

// cachePath names the on-disk copy of url.
func cachePath(dir, url string) string {
	sum := sha1.Sum([]byte(url))
	return filepath.Join(dir, hex.EncodeToString(sum[:])+path.Ext(baseName(url)))
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}
