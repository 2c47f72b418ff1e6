package search

import (
	"context"
	"fmt"

	"github.com/hyperjump/lens/internal/corpus"
	"github.com/hyperjump/lens/internal/fileid"
	"github.com/hyperjump/lens/internal/keyword"
	"github.com/hyperjump/lens/internal/models"
	"github.com/hyperjump/lens/pkg/utils"
)

// Snippet truncates text to maxLen characters followed by "..." when longer.
func Snippet(text string, maxLen int) string {
	return utils.Truncate(text, maxLen)
}

// lexicalScorer scores pages by their normalized keyword index score and highlights lines
// holding a word within one edit of a query term.
type lexicalScorer struct {
	scores map[string]float64
	terms  []string
}

func (e *Engine) lexicalScorer(ctx context.Context, idx *corpus.Index, text string) (*lexicalScorer, error) {
	limit := idx.PageCount()
	if limit < 1 {
		limit = 1
	}
	hits, err := e.keywordIndex.Search(ctx, text, limit, &keyword.SearchOptions{Fuzziness: 1, PhraseBoost: 1.5})
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	return &lexicalScorer{scores: NormalizeKeywordScores(hits), terms: keyword.Terms(text)}, nil
}

func (l *lexicalScorer) scorePage(path string, page *models.PageIndex) (float64, string, []models.Highlight, bool) {
	score, ok := l.scores[fileid.PageID(path, page.PageNumber)]
	if !ok {
		return 0, "", nil, false
	}
	var (
		snippet string
		hl      []models.Highlight
	)
	for _, c := range page.TextChunks {
		if len(hl) == textHighlights {
			break
		}
		if !containsTerm(c.Text, l.terms) {
			continue
		}
		if snippet == "" {
			snippet = c.Text
		}
		hl = append(hl, models.Highlight{Bounds: c.Bounds, Kind: models.HighlightText})
	}
	return score, snippet, hl, true
}

func containsTerm(text string, terms []string) bool {
	for _, w := range keyword.Terms(text) {
		if keyword.MatchesAny(w, terms, 1) {
			return true
		}
	}
	return false
}
