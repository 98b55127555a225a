package opener

import (
	"fmt"
	"strings"

	"github.com/pspoerri/imgio/internal/codec"
)

// Error is a failure to read a described image. Its message is the full
// Report.
type Error struct {
	Err        error
	Descriptor codec.Descriptor
	FileLength int64
}

func (e *Error) Error() string {
	return Report(e.Err, &e.Descriptor, e.FileLength)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Report builds the message shown when an image cannot be read: the cause
// followed by the geometry it was read with.
func Report(err error, d *codec.Descriptor, fileLength int64) string {
	var b strings.Builder
	if d.Name != "" {
		fmt.Fprintf(&b, "%s: ", d.Name)
	}
	fmt.Fprintf(&b, "%v\n", err)
	fmt.Fprintf(&b, "  Width: %d\n", d.Width)
	fmt.Fprintf(&b, "  Height: %d\n", d.Height)
	fmt.Fprintf(&b, "  Offset: %d\n", d.Offset)
	fmt.Fprintf(&b, "  Bytes/pixel: %d\n", d.BytesPerPixel())
	if d.NumImages() > 1 {
		fmt.Fprintf(&b, "  Images: %d\n", d.NumImages())
		fmt.Fprintf(&b, "  Gap: %d\n", d.Gap)
	}
	if d.Compression.Compressed() {
		fmt.Fprintf(&b, "  Compression: %s\n", d.Compression)
	}
	fmt.Fprintf(&b, "  File length: %d", fileLength)
	return b.String()
}
