//go:build !tesseract

package ocr

import (
	"context"
	"fmt"
	"image"
)

// LibReader stub type when built without the tesseract tag (see lib.go).
type LibReader struct{}

// NewLibReader returns an error when built without the tesseract tag.
func NewLibReader(_ []string) (*LibReader, error) {
	return nil, fmt.Errorf("%w: libtesseract requires building with -tags tesseract", ErrNoEngine)
}

// ReadText always fails.
func (*LibReader) ReadText(context.Context, image.Image) (string, error) {
	return "", ErrNoEngine
}

// Close is a no-op.
func (*LibReader) Close() error { return nil }
