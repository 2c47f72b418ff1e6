// Package embedding turns text and images into comparable unit-length vectors.
package embedding

import (
	"context"
	"errors"
	"image"
)

// ErrModelUnavailable is returned when an encoder for the requested modality is not loaded.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Embedder produces unit-normalized vectors for text and images.
// Blank text and empty images yield a zero-length vector and no error.
type Embedder interface {
	EncodeText(ctx context.Context, text string) ([]float32, error)
	EncodeImage(ctx context.Context, img image.Image) ([]float32, error)
	Dimensions() int
	Close() error
}

// TextEncoder runs a text model on fixed-length token ids and attention mask.
type TextEncoder interface {
	EncodeTokens(ctx context.Context, ids, mask []int64) (Output, error)
	Hidden() int
	Close() error
}

// ImageEncoder runs an image model on a planar RGB tensor of ImageSize x ImageSize pixels.
type ImageEncoder interface {
	EncodePixels(ctx context.Context, pixels []float32) (Output, error)
	ImageSize() int
	Hidden() int
	Close() error
}
