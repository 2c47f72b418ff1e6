// Package storage persists the capture history and measures on-disk usage of the data files.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/lens/internal/models"
)

// ErrCaptureNotFound is returned when no capture has the requested ID.
var ErrCaptureNotFound = errors.New("capture not found")

// CaptureStore records capture-and-search runs.
type CaptureStore interface {
	Record(ctx context.Context, c *models.Capture) error
	// FindSimilar returns the most recent capture whose hash similarity to hash is at least
	// minSimilarity, or nil when there is none.
	FindSimilar(ctx context.Context, hash string, minSimilarity float64) (*models.Capture, error)
	Get(ctx context.Context, id string) (*models.Capture, error)
	Recent(ctx context.Context, limit int) ([]*models.Capture, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}
