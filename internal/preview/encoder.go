// Package preview renders decoded pixels as ordinary images and encodes
// them as PNG, JPEG or WebP.
package preview

import (
	"image"

	"github.com/juju/errors"
)

// Encoder encodes an image into file bytes.
type Encoder interface {
	// Encode encodes an image to bytes in the encoder's format.
	Encode(img image.Image) ([]byte, error)

	// Format returns the format name (e.g. "jpeg", "png", "webp").
	Format() string

	// FileExtension returns the appropriate file extension.
	FileExtension() string
}

// NewEncoder creates an encoder for the given format and quality. Quality
// only applies to lossy formats; zero selects the default.
func NewEncoder(format string, quality int) (Encoder, error) {
	switch format {
	case "jpeg", "jpg":
		return &JPEGEncoder{Quality: quality}, nil
	case "png":
		return &PNGEncoder{}, nil
	case "webp":
		return newWebPEncoder(quality), nil
	default:
		return nil, errors.NotSupportedf("preview format %q (supported: jpeg, png, webp)", format)
	}
}
