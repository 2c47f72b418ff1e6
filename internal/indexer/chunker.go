package indexer

import (
	"math"
	"sort"
	"strings"

	"github.com/hyperjump/lens/internal/docparse"
	"github.com/hyperjump/lens/internal/models"
)

// Chunker groups page words into visual lines.
type Chunker struct {
	lineTolerance float64
}

// NewChunker creates a chunker. Words whose baselines differ from the first word of the
// current line by at most lineTolerance page units join that line.
func NewChunker(lineTolerance float64) *Chunker {
	if lineTolerance < 0 {
		lineTolerance = 0
	}
	return &Chunker{lineTolerance: lineTolerance}
}

// Chunk returns one TextChunk per line, top of the page first, with bounds normalized to
// page fractions and a top-left origin. Embeddings are not set.
func (c *Chunker) Chunk(words []docparse.Word, pageWidth, pageHeight float64) []models.TextChunk {
	if len(words) == 0 {
		return nil
	}
	sorted := make([]docparse.Word, len(words))
	copy(sorted, words)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var chunks []models.TextChunk
	line := []docparse.Word{sorted[0]}
	baseline := sorted[0].Y
	for _, w := range sorted[1:] {
		if math.Abs(w.Y-baseline) <= c.lineTolerance {
			line = append(line, w)
			continue
		}
		chunks = append(chunks, buildChunk(line, pageWidth, pageHeight))
		line = []docparse.Word{w}
		baseline = w.Y
	}
	return append(chunks, buildChunk(line, pageWidth, pageHeight))
}

func buildChunk(line []docparse.Word, pageWidth, pageHeight float64) models.TextChunk {
	ordered := make([]docparse.Word, len(line))
	copy(ordered, line)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].X < ordered[j].X })

	texts := make([]string, 0, len(ordered))
	left, bottom := math.Inf(1), math.Inf(1)
	right, top := math.Inf(-1), math.Inf(-1)
	for _, w := range ordered {
		texts = append(texts, w.Text)
		left = math.Min(left, w.X)
		right = math.Max(right, w.X+w.Width)
		bottom = math.Min(bottom, w.Y)
		top = math.Max(top, w.Y+w.Height)
	}
	return models.TextChunk{
		Text:   Preprocess(strings.Join(texts, " ")),
		Bounds: Normalize(left, bottom, right-left, top-bottom, pageWidth, pageHeight),
	}
}

// Normalize converts a bottom-left-origin box in page units to page fractions with a
// top-left origin. A degenerate page size yields the raw box.
func Normalize(x, y, w, h, pageWidth, pageHeight float64) models.Rect {
	if pageWidth <= 0 || pageHeight <= 0 {
		return models.Rect{X: x, Y: y, Width: w, Height: h}
	}
	return models.Rect{
		X:      x / pageWidth,
		Y:      (pageHeight - (y + h)) / pageHeight,
		Width:  w / pageWidth,
		Height: h / pageHeight,
	}
}
