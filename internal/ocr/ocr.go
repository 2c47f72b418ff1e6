// Package ocr wraps text recognizers behind a single image-to-text interface.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/lens/internal/config"
)

// ErrNoEngine is returned when the configured OCR engine is unknown or unavailable.
var ErrNoEngine = errors.New("no OCR engine available")

// Reader recognizes text in an image. Blank images may yield an empty string.
type Reader interface {
	ReadText(ctx context.Context, img image.Image) (string, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, img image.Image) (string, error)

// ReadText calls f.
func (f ReaderFunc) ReadText(ctx context.Context, img image.Image) (string, error) {
	return f(ctx, img)
}

// New returns the reader selected by cfg.Engine: "tesseract" (command line),
// "libtesseract" (linked library, requires the tesseract build tag) or "http".
func New(cfg config.OCRConfig, logger *zap.Logger) (Reader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.Engine) {
	case "", "tesseract":
		return NewCLIReader(cfg.TesseractPath, cfg.Languages, WithCLILogger(logger))
	case "libtesseract":
		return NewLibReader(cfg.Languages)
	case "http":
		return NewHTTPReader(cfg.Endpoint,
			WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second}),
			WithMaxRetries(cfg.MaxRetries),
			WithHTTPLogger(logger))
	}
	return nil, fmt.Errorf("%w: %q", ErrNoEngine, cfg.Engine)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
