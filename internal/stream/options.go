package stream

import (
	"net/http"
	"time"
)

// Options configures how remote sources are fetched.
type Options struct {
	// Client performs the requests. Nil uses a client with Timeout.
	Client  *http.Client
	Timeout time.Duration

	// BlockSize is the size of one range request. Defaults to 256 KiB.
	BlockSize int64
	// MaxCache is the number of blocks kept in memory. Defaults to 64.
	MaxCache int

	// CacheDir, when set, keeps whole downloads of servers without range
	// support on disk so later opens of the same URL are local.
	CacheDir string
}

const (
	defaultBlockSize = 256 << 10
	defaultMaxCache  = 64
	defaultTimeout   = 60 * time.Second
)

func (o Options) withDefaults() Options {
	if o.BlockSize <= 0 {
		o.BlockSize = defaultBlockSize
	}
	if o.MaxCache <= 0 {
		o.MaxCache = defaultMaxCache
	}
	if o.Client == nil {
		timeout := o.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		o.Client = &http.Client{Timeout: timeout}
	}
	return o
}
