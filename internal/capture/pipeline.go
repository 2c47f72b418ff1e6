// Package capture turns a captured screen image into photos, recognized text and search results.
package capture

import (
	"context"
	"image"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/hyperjump/lens/internal/models"
	"github.com/hyperjump/lens/internal/ocr"
	"github.com/hyperjump/lens/internal/segment"
)

// Segmenter classifies regions of an image.
type Segmenter interface {
	Segment(img image.Image) []models.Region
}

// Result is the output of one pipeline run.
type Result struct {
	Regions []models.Region
	Photos  []image.Image
	Text    string
}

// Pipeline composes segmentation, cropping and OCR.
type Pipeline struct {
	segmenter Segmenter
	reader    ocr.Reader
	padding   int
	minHeight int
	logger    *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPadding sets the margin added around every region before cropping.
func WithPadding(px int) PipelineOption {
	return func(p *Pipeline) {
		if px >= 0 {
			p.padding = px
		}
	}
}

// WithMinOCRHeight sets the height under which text crops are upscaled before OCR.
func WithMinOCRHeight(px int) PipelineOption {
	return func(p *Pipeline) {
		p.minHeight = px
	}
}

// WithPipelineLogger sets the logger for the pipeline.
func WithPipelineLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// NewPipeline returns a pipeline. reader may be nil, in which case no text is produced.
func NewPipeline(seg Segmenter, reader ocr.Reader, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		segmenter: seg,
		reader:    reader,
		padding:   8,
		minHeight: 32,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process segments img, crops every photo region and recognizes the text regions in reading
// order. When no region yields text the whole image is recognized once instead.
func (p *Pipeline) Process(ctx context.Context, img image.Image) (*Result, error) {
	return p.run(ctx, img, true)
}

// Photos segments img and crops photo regions without running OCR.
func (p *Pipeline) Photos(ctx context.Context, img image.Image) (*Result, error) {
	return p.run(ctx, img, false)
}

func (p *Pipeline) run(ctx context.Context, img image.Image, recognize bool) (*Result, error) {
	bounds := img.Bounds()
	res := &Result{Regions: p.segmenter.Segment(img)}

	var texts []models.Region
	for _, r := range res.Regions {
		switch r.Kind {
		case models.RegionPhoto:
			res.Photos = append(res.Photos, crop(img, pad(r.Bounds, p.padding, bounds)))
		case models.RegionText:
			texts = append(texts, r)
		}
	}
	p.logger.Debug("segmented capture",
		zap.Int("photos", len(res.Photos)), zap.Int("text_regions", len(texts)))
	if !recognize || p.reader == nil {
		return res, nil
	}

	sort.SliceStable(texts, func(i, j int) bool {
		a, b := texts[i].Bounds.Min, texts[j].Bounds.Min
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})

	var parts []string
	for _, r := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prepared := segment.PrepareForOCR(crop(img, pad(r.Bounds, p.padding, bounds)), p.minHeight)
		text, err := p.reader.ReadText(ctx, prepared)
		if err != nil {
			p.logger.Warn("ocr failed for region", zap.Stringer("bounds", r.Bounds), zap.Error(err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}

	if len(parts) == 0 {
		text, err := p.reader.ReadText(ctx, segment.PrepareForOCR(img, p.minHeight))
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}

	res.Text = strings.TrimSpace(strings.Join(parts, "\n\n"))
	return res, nil
}

// pad grows r by px on every side, clamped to limit.
func pad(r image.Rectangle, px int, limit image.Rectangle) image.Rectangle {
	return image.Rect(r.Min.X-px, r.Min.Y-px, r.Max.X+px, r.Max.Y+px).Intersect(limit)
}

// crop copies r out of img into a new image with origin (0,0).
func crop(img image.Image, r image.Rectangle) image.Image {
	if r.Empty() {
		r = image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Min.Y+1).Intersect(img.Bounds())
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
