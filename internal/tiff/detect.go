package tiff

import "bytes"

// FileType is the container format guessed from the first bytes of a file.
type FileType int

const (
	Unknown FileType = iota
	TIFF
	TIFFDicom // TIFF header with a DICOM preamble marker at byte 128
	ROI
	Gzip
	Zip
)

var fileTypeNames = [...]string{"unknown", "tiff", "tiff+dicom", "roi", "gzip", "zip"}

func (t FileType) String() string {
	if t < 0 || int(t) >= len(fileTypeNames) {
		return "unknown"
	}
	return fileTypeNames[t]
}

// HeaderSize is the number of leading bytes Detect needs to tell every
// type apart.
const HeaderSize = 132

// Detect guesses the file type from its first bytes. Shorter headers are
// accepted; types whose marker lies beyond the header are not recognised.
func Detect(header []byte) FileType {
	switch {
	case bytes.HasPrefix(header, []byte("II*\x00")), bytes.HasPrefix(header, []byte("MM\x00*")):
		if len(header) >= 132 && string(header[128:132]) == "DICM" {
			return TIFFDicom
		}
		return TIFF
	case bytes.HasPrefix(header, []byte("Iout")):
		return ROI
	case bytes.HasPrefix(header, []byte{0x1f, 0x8b}):
		return Gzip
	case bytes.HasPrefix(header, []byte("PK\x03\x04")):
		return Zip
	}
	return Unknown
}
