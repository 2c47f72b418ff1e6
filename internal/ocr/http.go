package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// HTTPReader posts PNG images to an OCR service that answers {"text": "..."}.
// Server errors and throttling are retried with exponential backoff.
type HTTPReader struct {
	endpoint   string
	client     *http.Client
	maxRetries int
	logger     *zap.Logger
}

// HTTPOption configures an HTTPReader.
type HTTPOption func(*HTTPReader)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPReader) {
		r.client = c
	}
}

// WithMaxRetries bounds retries after the first attempt.
func WithMaxRetries(n int) HTTPOption {
	return func(r *HTTPReader) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithHTTPLogger sets the logger for the reader.
func WithHTTPLogger(l *zap.Logger) HTTPOption {
	return func(r *HTTPReader) {
		r.logger = l
	}
}

// NewHTTPReader returns a reader for endpoint.
func NewHTTPReader(endpoint string, opts ...HTTPOption) (*HTTPReader, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: http engine needs an endpoint", ErrNoEngine)
	}
	r := &HTTPReader{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type ocrResponse struct {
	Text string `json:"text"`
}

// ReadText sends img to the service.
func (r *HTTPReader) ReadText(ctx context.Context, img image.Image) (string, error) {
	if img.Bounds().Empty() {
		return "", nil
	}
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}

	var text string
	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "image/png")
		resp, err := r.client.Do(req)
		if err != nil {
			r.logger.Debug("ocr request failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			r.logger.Debug("ocr service unavailable", zap.Int("attempt", attempt), zap.Int("status", resp.StatusCode))
			return fmt.Errorf("ocr service returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("ocr service returned %d: %s", resp.StatusCode, bytes.TrimSpace(body)))
		}
		var out ocrResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return backoff.Permanent(fmt.Errorf("invalid ocr response: %w", err))
		}
		text = out.Text
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.maxRetries)), ctx)); err != nil {
		return "", fmt.Errorf("ocr request failed: %w", err)
	}
	return text, nil
}
