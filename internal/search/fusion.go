package search

import (
	"sort"

	"github.com/hyperjump/lens/internal/keyword"
	"github.com/hyperjump/lens/internal/models"
	"github.com/hyperjump/lens/pkg/utils"
)

// pageScorer produces the text side of a page score. ok is false when the page has nothing
// the query can be compared against.
type pageScorer interface {
	scorePage(path string, page *models.PageIndex) (score float64, snippet string, highlights []models.Highlight, ok bool)
}

// Cosine returns the dot product of two unit vectors clamped to [0,1]. ok is false when the
// vectors are empty or differ in length.
func Cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	s := utils.Dot(a, b)
	if s < 0 {
		return 0, true
	}
	if s > 1 {
		return 1, true
	}
	return s, true
}

// Combine weights text and image scores when both modalities are queried and otherwise
// returns the score of the one that is.
func Combine(text, image float64, hasText, hasImage bool, textWeight, imageWeight float64) float64 {
	switch {
	case hasText && hasImage:
		return textWeight*text + imageWeight*image
	case hasText:
		return text
	case hasImage:
		return image
	}
	return 0
}

type scoredChunk struct {
	bounds models.Rect
	text   string
	score  float64
}

// top sorts scored by descending score, keeping chunk order for ties, and returns at most n.
func top(scored []scoredChunk, n int) []scoredChunk {
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > n {
		scored = scored[:n]
	}
	return scored
}

type vectorScorer struct {
	query     []float32
	threshold float64
}

func (v *vectorScorer) scorePage(_ string, page *models.PageIndex) (float64, string, []models.Highlight, bool) {
	if embedded, _ := page.Embedded(); !embedded {
		return 0, "", nil, false
	}
	var scored []scoredChunk
	for _, c := range page.TextChunks {
		if s, ok := Cosine(v.query, c.Embedding); ok {
			scored = append(scored, scoredChunk{bounds: c.Bounds, text: c.Text, score: s})
		}
	}
	if len(scored) == 0 {
		return 0, "", nil, false
	}
	best := top(scored, textHighlights)
	var hl []models.Highlight
	for _, m := range best {
		if m.score >= v.threshold {
			hl = append(hl, models.Highlight{Bounds: m.bounds, Kind: models.HighlightText})
		}
	}
	return best[0].score, best[0].text, hl, true
}

// scoreImages returns the best (query, image chunk) similarity on page and highlights for the
// top pairs at or above threshold.
func scoreImages(page *models.PageIndex, queries [][]float32, threshold float64) (float64, []models.Highlight, bool) {
	var scored []scoredChunk
	for _, c := range page.ImageChunks {
		for _, q := range queries {
			if s, ok := Cosine(q, c.Embedding); ok {
				scored = append(scored, scoredChunk{bounds: c.Bounds, score: s})
			}
		}
	}
	if len(scored) == 0 {
		return 0, nil, false
	}
	best := top(scored, imageHighlights)
	var hl []models.Highlight
	for _, m := range best {
		if m.score >= threshold {
			hl = append(hl, models.Highlight{Bounds: m.bounds, Kind: models.HighlightImage})
		}
	}
	return best[0].score, hl, true
}

// NormalizeKeywordScores maps page IDs to keyword scores divided by the best score.
func NormalizeKeywordScores(results []*keyword.KeywordResult) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	var maxScore float64
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}
