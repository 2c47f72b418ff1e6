//go:build tesseract

package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// LibReader recognizes text through the linked tesseract library. Calls are serialized.
type LibReader struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewLibReader creates a tesseract client for the given languages.
func NewLibReader(languages []string) (*LibReader, error) {
	client := gosseract.NewClient()
	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to set OCR languages: %w", err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to set page segmentation: %w", err)
	}
	if err := client.SetVariable("preserve_interword_spaces", "1"); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to configure OCR: %w", err)
	}
	return &LibReader{client: client}, nil
}

// ReadText recognizes text in img.
func (r *LibReader) ReadText(ctx context.Context, img image.Image) (string, error) {
	if img.Bounds().Empty() {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to load image: %w", err)
	}
	text, err := r.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close releases the tesseract client.
func (r *LibReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Close()
}
