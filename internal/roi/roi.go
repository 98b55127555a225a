// Package roi reads and writes single region-of-interest records in the
// big-endian "Iout" layout.
package roi

import (
	"image"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("roi")

// Version is written into every encoded record.
const Version = 228

// Type is the shape stored in the record's type byte.
type Type int

const (
	Polygon Type = iota
	Rect
	Oval
	Line
	Freeline
	Polyline
	NoRoi
	Freehand
	Traced
	Angle
	Point
)

var typeNames = [...]string{
	"polygon", "rect", "oval", "line", "freeline", "polyline", "none",
	"freehand", "traced", "angle", "point",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "unknown"
	}
	return typeNames[t]
}

// hasCoordinates reports whether the record carries a vertex list.
func (t Type) hasCoordinates() bool {
	switch t {
	case Polygon, Freehand, Traced, Polyline, Freeline, Angle, Point:
		return true
	}
	return false
}

// Subtype refines rectangles and lines.
type Subtype int

const (
	SubtypeNone Subtype = iota
	SubtypeText
	SubtypeArrow
	SubtypeEllipse
	SubtypeImage
	SubtypeRotatedRect
)

// Option bits.
type Options uint16

const (
	SplineFit          Options = 1
	DoubleHeaded       Options = 2
	Outline            Options = 4
	OverlayLabels      Options = 8
	OverlayNames       Options = 16
	OverlayBackgrounds Options = 32
	OverlayBold        Options = 64
	SubPixelResolution Options = 128
	DrawOffset         Options = 256
	ZeroTransparent    Options = 512
	ShowLabels         Options = 1024
	ScaleLabels        Options = 2048
	PromptBeforeDelete Options = 4096
	ScaleStrokeWidth   Options = 8192
)

// Header field offsets.
const (
	offVersion      = 4
	offType         = 6
	offTop          = 8
	offLeft         = 10
	offBottom       = 12
	offRight        = 14
	offNCoordinates = 16
	offX1           = 18
	offY1           = 22
	offX2           = 26
	offY2           = 30
	offSize         = 18
	offStrokeWidth  = 34
	offShapeRoiSize = 36
	offStrokeColor  = 40
	offFillColor    = 44
	offSubtype      = 48
	offOptions      = 50
	offArrowStyle   = 52
	offArrowHead    = 53
	offArcSize      = 54
	offPosition     = 56
	offHeader2      = 60
	headerSize      = 64

	h2C                = 4
	h2Z                = 8
	h2T                = 12
	h2NameOffset       = 16
	h2NameLength       = 20
	h2LabelColor       = 24
	h2FontSize         = 28
	h2Group            = 30
	h2Opacity          = 31
	h2FloatStrokeWidth = 36
	h2PropsOffset      = 40
	h2PropsLength      = 44
	h2CountersOffset   = 48
	header2Size        = 64
)

// Roi is one decoded record. Coordinates are absolute image positions.
type Roi struct {
	Type    Type
	Subtype Subtype
	Version int
	Options Options

	// Bounds is the integer bounding box stored in the header.
	Bounds image.Rectangle

	// Vertices of polygon-like types. Without sub-pixel resolution they
	// hold whole numbers.
	X, Y []float32

	// Line end points.
	X1, Y1, X2, Y2 float32

	// Sub-pixel bounds of rectangles and ovals, set when Options has
	// SubPixelResolution.
	XD, YD, WidthD, HeightD float32

	StrokeWidth float32
	StrokeColor uint32 // ARGB, 0 for the default color
	FillColor   uint32

	ArrowStyle    byte
	ArrowHeadSize byte
	ArcSize       int

	// Position is the stack position of a single-channel image; C, Z and T
	// that of a hyperstack. Zero means unset.
	Position int
	C, Z, T  int

	Name       string
	Properties string
	LabelColor uint32
	FontSize   int
	Group      byte
	Opacity    byte
	Counters   []int32
}

// SubPixel reports whether the record carries floating point coordinates.
func (r *Roi) SubPixel() bool {
	return r.Options&SubPixelResolution != 0
}
