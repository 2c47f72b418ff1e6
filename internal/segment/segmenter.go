// Package segment classifies rectangular regions of a raster image as photos or text blocks.
package segment

import (
	"image"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/lens/internal/models"
)

// Segmenter finds photo and text regions. It holds no state between calls and is safe
// for concurrent use.
type Segmenter struct {
	processingWidth int
	cannyLow        float64
	cannyHigh       float64
	minAreaRatio    float64
	maxAreaRatio    float64
	minHullRatio    float64
	minRectRatio    float64
	minAspect       float64
	maxAspect       float64
	textKernelW     int
	textKernelH     int
	minTextArea     int
	maxTextOverlap  float64
	logger          *zap.Logger
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithProcessingWidth sets the width images are downscaled to before analysis.
func WithProcessingWidth(w int) Option {
	return func(s *Segmenter) {
		if w > 0 {
			s.processingWidth = w
		}
	}
}

// WithMinTextArea sets the minimum pixel area of a fused text line, at processing scale.
func WithMinTextArea(n int) Option {
	return func(s *Segmenter) {
		s.minTextArea = n
	}
}

// WithLogger sets the logger for the segmenter.
func WithLogger(l *zap.Logger) Option {
	return func(s *Segmenter) {
		s.logger = l
	}
}

// New returns a Segmenter with default thresholds.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{
		processingWidth: 800,
		cannyLow:        50,
		cannyHigh:       200,
		minAreaRatio:    0.005,
		maxAreaRatio:    0.95,
		minHullRatio:    0.85,
		minRectRatio:    0.85,
		minAspect:       0.1,
		maxAspect:       10,
		textKernelW:     15,
		textKernelH:     3,
		minTextArea:     60,
		maxTextOverlap:  0.6,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Segment returns the merged photo regions followed by the merged text regions, in source
// image coordinates.
func (s *Segmenter) Segment(img image.Image) []models.Region {
	src := img.Bounds()
	if src.Empty() {
		return nil
	}
	work := img
	scale := 1.0
	if src.Dx() > s.processingWidth {
		scale = float64(src.Dx()) / float64(s.processingWidth)
		work = downscale(img, s.processingWidth)
	}
	gray := toGray(work)

	photos := s.detectPhotos(gray)
	texts := s.detectText(gray, photos)

	out := make([]models.Region, 0, len(photos)+len(texts))
	for _, r := range photos {
		if b, ok := rescale(r, scale, src); ok {
			out = append(out, models.Region{Kind: models.RegionPhoto, Bounds: b})
		}
	}
	for _, r := range texts {
		if b, ok := rescale(r, scale, src); ok {
			out = append(out, models.Region{Kind: models.RegionText, Bounds: b})
		}
	}
	out = Merge(out)
	s.logger.Debug("segmented image",
		zap.Int("width", src.Dx()), zap.Int("height", src.Dy()),
		zap.Int("photos", len(photos)), zap.Int("texts", len(texts)), zap.Int("regions", len(out)))
	return out
}

// rescale maps a processing-scale box to source coordinates. It fails when the result is not
// fully inside the source bounds.
func rescale(r image.Rectangle, scale float64, src image.Rectangle) (image.Rectangle, bool) {
	b := image.Rect(
		int(math.Round(float64(r.Min.X)*scale)), int(math.Round(float64(r.Min.Y)*scale)),
		int(math.Round(float64(r.Max.X)*scale)), int(math.Round(float64(r.Max.Y)*scale)),
	).Add(src.Min)
	if b.Empty() || !b.In(src) {
		return image.Rectangle{}, false
	}
	return b, true
}

func (s *Segmenter) detectPhotos(gray *image.Gray) []image.Rectangle {
	blurred := gaussianBlur(gray, 5, 0)
	edges := dilate(canny(blurred, s.cannyLow, s.cannyHigh), 3, 3)
	blobs, labels := findBlobs(edges, nil)

	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	imgArea := float64(w * h)
	var out []image.Rectangle
	for i := range blobs {
		b := &blobs[i]
		if float64(rectArea(b.bounds)) < s.minAreaRatio*imgArea {
			continue
		}
		area := float64(b.filledArea(labels, w, int32(i+1)))
		if area < s.minAreaRatio*imgArea || area > s.maxAreaRatio*imgArea {
			continue
		}
		hull := b.hull()
		if hullArea := polygonArea(hull); hullArea <= 0 || area/hullArea < s.minHullRatio {
			continue
		}
		if rotArea := minAreaRect(hull); rotArea <= 0 || area/rotArea < s.minRectRatio {
			continue
		}
		aspect := float64(b.bounds.Dx()) / float64(b.bounds.Dy())
		if aspect < s.minAspect || aspect > s.maxAspect {
			continue
		}
		out = append(out, b.bounds)
	}
	return out
}

func (s *Segmenter) detectText(gray *image.Gray, photos []image.Rectangle) []image.Rectangle {
	ink := binarizeInk(gray)
	fused := dilate(ink, s.textKernelW, s.textKernelH)
	blobs, _ := findBlobs(fused, ink)

	var lines []image.Rectangle
	for i := range blobs {
		b := &blobs[i]
		if b.pixels < s.minTextArea || b.inner.Empty() {
			continue
		}
		lines = append(lines, b.inner)
	}
	blocks := groupLines(lines)

	sort.SliceStable(blocks, func(i, j int) bool {
		return rectArea(blocks[i]) > rectArea(blocks[j])
	})
	frame := gray.Rect
	var accepted []image.Rectangle
	for _, blk := range blocks {
		if !blk.In(frame) {
			continue
		}
		if overlapsAny(blk, photos) {
			continue
		}
		redundant := false
		for _, a := range accepted {
			if overlapShare(blk, a) > s.maxTextOverlap {
				redundant = true
				break
			}
		}
		if !redundant {
			accepted = append(accepted, blk)
		}
	}
	return accepted
}

// groupLines fuses line boxes into blocks when they overlap horizontally and the vertical gap
// between them is at most the taller line's height.
func groupLines(lines []image.Rectangle) []image.Rectangle {
	type block struct {
		box        image.Rectangle
		lineHeight int
	}
	blocks := make([]block, len(lines))
	for i, l := range lines {
		blocks[i] = block{box: l, lineHeight: l.Dy()}
	}
	for merged := true; merged; {
		merged = false
		for i := 0; i < len(blocks) && !merged; i++ {
			for j := i + 1; j < len(blocks); j++ {
				a, b := blocks[i], blocks[j]
				if a.box.Min.X >= b.box.Max.X || b.box.Min.X >= a.box.Max.X {
					continue
				}
				gap := max(a.box.Min.Y, b.box.Min.Y) - min(a.box.Max.Y, b.box.Max.Y)
				if gap > max(a.lineHeight, b.lineHeight) {
					continue
				}
				blocks[i] = block{box: a.box.Union(b.box), lineHeight: max(a.lineHeight, b.lineHeight)}
				blocks = append(blocks[:j], blocks[j+1:]...)
				merged = true
				break
			}
		}
	}
	out := make([]image.Rectangle, len(blocks))
	for i, b := range blocks {
		out[i] = b.box
	}
	return out
}

func overlapsAny(r image.Rectangle, others []image.Rectangle) bool {
	for _, o := range others {
		if r.Overlaps(o) {
			return true
		}
	}
	return false
}
