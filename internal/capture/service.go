package capture

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/lens/internal/corpus"
	"github.com/hyperjump/lens/internal/imagehash"
	"github.com/hyperjump/lens/internal/models"
)

// Searcher ranks corpus pages against captured text and photos.
type Searcher interface {
	Query(ctx context.Context, idx *corpus.Index, text string, photos []image.Image, topN int) (*models.SearchResponse, error)
}

// History records capture runs and finds near-identical earlier captures.
type History interface {
	Record(ctx context.Context, c *models.Capture) error
	// FindSimilar returns the most similar capture at or above minSimilarity, or nil.
	FindSimilar(ctx context.Context, hash string, minSimilarity float64) (*models.Capture, error)
}

// Service runs capture-and-search as a single unit of work.
type Service struct {
	pipeline      *Pipeline
	searcher      Searcher
	corpus        *corpus.Snapshot
	history       History
	dupSimilarity float64
	topN          int
	logger        *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHistory enables capture recording and OCR reuse for near-identical captures.
func WithHistory(h History, minSimilarity float64) ServiceOption {
	return func(s *Service) {
		s.history = h
		s.dupSimilarity = minSimilarity
	}
}

// WithTopN sets the number of results returned per capture.
func WithTopN(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.topN = n
		}
	}
}

// WithLogger sets the logger for the service.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService returns a capture service reading the current corpus from snap.
func NewService(p *Pipeline, searcher Searcher, snap *corpus.Snapshot, opts ...ServiceOption) *Service {
	s := &Service{
		pipeline:      p,
		searcher:      searcher,
		corpus:        snap,
		dupSimilarity: 0.95,
		topN:          8,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type outcome struct {
	out *models.CaptureOutcome
	err error
}

// CaptureAndSearch processes img in a background goroutine and waits for it.
// Cancelling ctx abandons the wait; the worker observes ctx between steps.
func (s *Service) CaptureAndSearch(ctx context.Context, img image.Image) (*models.CaptureOutcome, error) {
	if img == nil || img.Bounds().Empty() {
		return emptyOutcome(), nil
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := s.run(ctx, img)
		done <- outcome{out, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.out, r.err
	}
}

// emptyOutcome is the result for a capture with no pixels: nothing to read or match.
func emptyOutcome() *models.CaptureOutcome {
	return &models.CaptureOutcome{
		Capture: &models.Capture{ID: uuid.NewString(), CreatedAt: time.Now().UTC()},
		Regions: []models.Region{},
		Results: []*models.SearchResult{},
	}
}

func (s *Service) run(ctx context.Context, img image.Image) (*models.CaptureOutcome, error) {
	start := time.Now()
	hash := imagehash.DHash(img)

	var prev *models.Capture
	if s.history != nil {
		var err error
		prev, err = s.history.FindSimilar(ctx, hash, s.dupSimilarity)
		if err != nil {
			s.logger.Warn("capture history lookup failed", zap.Error(err))
			prev = nil
		}
	}

	var (
		res *Result
		err error
	)
	if prev != nil {
		res, err = s.pipeline.Photos(ctx, img)
		if err == nil {
			res.Text = prev.Text
		}
	} else {
		res, err = s.pipeline.Process(ctx, img)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to process capture: %w", err)
	}

	out := &models.CaptureOutcome{
		Capture: &models.Capture{
			ID:         uuid.NewString(),
			CreatedAt:  time.Now().UTC(),
			Hash:       hash,
			Text:       res.Text,
			PhotoCount: len(res.Photos),
		},
		Regions: res.Regions,
		Photos:  res.Photos,
		Results: []*models.SearchResult{},
		Reused:  prev != nil,
	}

	idx := s.corpus.Load()
	if idx.Len() > 0 && (res.Text != "" || len(res.Photos) > 0) {
		resp, err := s.searcher.Query(ctx, idx, res.Text, res.Photos, s.topN)
		if err != nil {
			return nil, fmt.Errorf("failed to search corpus: %w", err)
		}
		out.Results = resp.Results
		if len(resp.Results) > 0 {
			top := resp.Results[0]
			out.Capture.TopPath = top.DocumentPath
			out.Capture.TopPage = top.PageNumber
			out.Capture.TopScore = top.Score
		}
	}

	if s.history != nil {
		if err := s.history.Record(ctx, out.Capture); err != nil {
			s.logger.Warn("failed to record capture", zap.String("id", out.Capture.ID), zap.Error(err))
		}
	}

	s.logger.Info("capture processed",
		zap.String("id", out.Capture.ID),
		zap.Int("regions", len(res.Regions)),
		zap.Int("photos", len(res.Photos)),
		zap.Int("chars", len(res.Text)),
		zap.Int("results", len(out.Results)),
		zap.Bool("reused", out.Reused),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}
