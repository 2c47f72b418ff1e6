// Package docparse reads document pages as positioned words and embedded images.
package docparse

import (
	"context"
	"errors"
	"image"
)

// ErrUnsupported is returned for documents or embedded images the parser cannot decode.
var ErrUnsupported = errors.New("unsupported document content")

// Word is a run of glyphs with its box in page units, origin bottom-left.
// Y is the baseline.
type Word struct {
	Text   string
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Image is an embedded raster with its placement in page units, origin bottom-left.
// PixelWidth and PixelHeight are the raster's own dimensions.
type Image struct {
	X           float64
	Y           float64
	Width       float64
	Height      float64
	PixelWidth  int
	PixelHeight int
	decode      func() (image.Image, error)
}

// NewImage returns an image whose pixels come from decode.
func NewImage(x, y, w, h float64, pw, ph int, decode func() (image.Image, error)) Image {
	return Image{X: x, Y: y, Width: w, Height: h, PixelWidth: pw, PixelHeight: ph, decode: decode}
}

// Decode returns the raster pixels.
func (i Image) Decode() (image.Image, error) {
	if i.decode == nil {
		return nil, ErrUnsupported
	}
	return i.decode()
}

// Page is one parsed page.
type Page struct {
	Number int
	Width  float64
	Height float64
	Text   string
	Words  []Word
	Images []Image
}

// Parser turns a document file into pages.
type Parser interface {
	Parse(ctx context.Context, path string) ([]Page, error)
}
