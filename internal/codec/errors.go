package codec

import (
	"github.com/juju/errors"
)

// Error classes, tested with errors.Is.
const (
	// ErrStructural marks malformed or unsupported input. No pixels are
	// returned.
	ErrStructural = errors.ConstError("structural error")

	// ErrTruncated marks input that ended before the declared amount of
	// pixel data. The partially filled result is returned with it.
	ErrTruncated = errors.ConstError("unexpected end of data")

	// ErrResource marks a failure of the underlying source or sink.
	ErrResource = errors.ConstError("i/o error")

	// ErrValidation marks a descriptor that is inconsistent with itself or
	// with the file it describes.
	ErrValidation = errors.ConstError("invalid descriptor")

	// ErrAborted is returned when the abort callback asked to stop between
	// slices.
	ErrAborted = errors.ConstError("aborted")
)

// Structuralf returns a formatted ErrStructural error.
func Structuralf(format string, args ...any) error {
	return errors.WithType(errors.Errorf(format, args...), ErrStructural)
}

// Validationf returns a formatted ErrValidation error.
func Validationf(format string, args ...any) error {
	return errors.WithType(errors.Errorf(format, args...), ErrValidation)
}

// Truncatedf returns a formatted ErrTruncated error.
func Truncatedf(format string, args ...any) error {
	return errors.WithType(errors.Errorf(format, args...), ErrTruncated)
}

// Resource wraps an I/O failure as ErrResource, keeping the original error
// reachable through errors.Is. Errors that already carry a class are only
// annotated.
func Resource(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return errors.Annotatef(err, format, args...)
	}
	return errors.WithType(errors.Annotatef(err, format, args...), ErrResource)
}

// Classified reports whether err already belongs to one of the error
// classes.
func Classified(err error) bool {
	return errors.Is(err, ErrStructural) || errors.Is(err, ErrTruncated) ||
		errors.Is(err, ErrResource) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrAborted)
}
