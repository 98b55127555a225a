package codec

// Option configures a single Read or Write call.
type Option func(*options)

type options struct {
	progress func(float64)
	abort    func() bool
}

// WithProgress reports the completed fraction of the operation, from 0 to 1.
// The callback runs on the calling goroutine and must not block.
func WithProgress(fn func(float64)) Option {
	return func(o *options) { o.progress = fn }
}

// WithAbort installs a callback polled once before each image of a multi
// image read or write. Returning true stops the operation with ErrAborted.
func WithAbort(fn func() bool) Option {
	return func(o *options) { o.abort = fn }
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, fn := range opts {
		fn(o)
	}
	if o.progress == nil {
		o.progress = func(float64) {}
	}
	if o.abort == nil {
		o.abort = func() bool { return false }
	}
	return o
}
