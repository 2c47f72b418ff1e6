// Package search ranks corpus pages against query embeddings, with a lexical fallback when
// no text model is loaded.
package search

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/lens/internal/config"
	"github.com/hyperjump/lens/internal/corpus"
	"github.com/hyperjump/lens/internal/embedding"
	"github.com/hyperjump/lens/internal/keyword"
	"github.com/hyperjump/lens/internal/models"
)

const (
	textHighlights  = 3
	imageHighlights = 2
)

// Engine scores pages of a corpus index. It holds no index state and is safe for concurrent use.
type Engine struct {
	embedder      embedding.Embedder
	keywordIndex  keyword.KeywordIndex
	textWeight    float64
	imageWeight   float64
	threshold     float64
	snippetLength int
	logger        *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithKeywordIndex enables lexical search when the text model is unavailable.
func WithKeywordIndex(k keyword.KeywordIndex) EngineOption {
	return func(e *Engine) { e.keywordIndex = k }
}

// WithLogger sets the logger for the engine.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine. embedder may be nil, in which case only lexical search runs.
// Zero fields of cfg keep their defaults; the fusion weights are normalized to sum to 1.
func NewEngine(embedder embedding.Embedder, cfg *config.SearchConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		embedder:      embedder,
		textWeight:    0.7,
		imageWeight:   0.3,
		threshold:     0.2,
		snippetLength: 180,
		logger:        zap.NewNop(),
	}
	if cfg != nil {
		e.textWeight, e.imageWeight = cfg.Weights()
		if cfg.HighlightThreshold > 0 {
			e.threshold = cfg.HighlightThreshold
		}
		if cfg.SnippetLength > 0 {
			e.snippetLength = cfg.SnippetLength
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search ranks the pages of idx against a text query vector and any number of image query
// vectors. Empty vectors are ignored. Results are ordered by score, ties keeping index order.
func (e *Engine) Search(idx *corpus.Index, queryText []float32, queryImages [][]float32, topN int) []*models.SearchResult {
	var text pageScorer
	if len(queryText) > 0 {
		text = &vectorScorer{query: queryText, threshold: e.threshold}
	}
	return e.rank(idx, text, nonEmpty(queryImages), topN)
}

// Query embeds text and photos and ranks idx against them. When the text model is unavailable
// and a keyword index is configured, the text side is scored lexically.
func (e *Engine) Query(ctx context.Context, idx *corpus.Index, text string, photos []image.Image, topN int) (*models.SearchResponse, error) {
	start := time.Now()
	resp := &models.SearchResponse{Query: text, Results: []*models.SearchResult{}}
	if idx.Len() == 0 || topN <= 0 {
		return resp, nil
	}

	var textScorer pageScorer
	if strings.TrimSpace(text) != "" {
		vec, err := e.encode(func() ([]float32, error) { return e.embedder.EncodeText(ctx, text) })
		switch {
		case errors.Is(err, embedding.ErrModelUnavailable):
			if e.keywordIndex == nil {
				e.logger.Debug("text model unavailable and no keyword index")
				break
			}
			lex, err := e.lexicalScorer(ctx, idx, text)
			if err != nil {
				return nil, err
			}
			textScorer = lex
			resp.Lexical = true
		case err != nil:
			return nil, fmt.Errorf("failed to embed query text: %w", err)
		case len(vec) > 0:
			textScorer = &vectorScorer{query: vec, threshold: e.threshold}
		}
	}

	var queryImages [][]float32
	for i, photo := range photos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.encode(func() ([]float32, error) { return e.embedder.EncodeImage(ctx, photo) })
		if errors.Is(err, embedding.ErrModelUnavailable) {
			e.logger.Debug("image model unavailable, ignoring photos", zap.Int("photos", len(photos)))
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to embed photo %d: %w", i, err)
		}
		if len(vec) > 0 {
			queryImages = append(queryImages, vec)
		}
	}

	all := e.rank(idx, textScorer, queryImages, idx.PageCount())
	resp.Total = len(all)
	if len(all) > topN {
		all = all[:topN]
	}
	resp.Results = all
	resp.QueryTime = time.Since(start).Milliseconds()
	e.logger.Debug("search done",
		zap.Int("results", len(all)),
		zap.Int("photos", len(queryImages)),
		zap.Bool("lexical", resp.Lexical),
		zap.Int64("ms", resp.QueryTime))
	return resp, nil
}

func (e *Engine) encode(fn func() ([]float32, error)) ([]float32, error) {
	if e.embedder == nil {
		return nil, embedding.ErrModelUnavailable
	}
	return fn()
}

// rank scores every page for which an active modality has something to compare against.
func (e *Engine) rank(idx *corpus.Index, text pageScorer, queryImages [][]float32, topN int) []*models.SearchResult {
	results := []*models.SearchResult{}
	hasText, hasImage := text != nil, len(queryImages) > 0
	if (!hasText && !hasImage) || topN <= 0 {
		return results
	}
	for _, doc := range idx.Documents() {
		for i := range doc.Pages {
			page := &doc.Pages[i]
			var (
				ts, is                 float64
				snippet                = page.Text
				highlights             []models.Highlight
				scoredText, scoredImgs bool
			)
			if hasText {
				var hl []models.Highlight
				var best string
				ts, best, hl, scoredText = text.scorePage(doc.Path, page)
				if best != "" {
					snippet = best
				}
				highlights = append(highlights, hl...)
			}
			if _, embedded := page.Embedded(); hasImage && embedded {
				var hl []models.Highlight
				is, hl, scoredImgs = scoreImages(page, queryImages, e.threshold)
				highlights = append(highlights, hl...)
			}
			if !scoredText && !scoredImgs {
				continue
			}
			if highlights == nil {
				highlights = []models.Highlight{}
			}
			results = append(results, &models.SearchResult{
				DocumentPath: doc.Path,
				PageNumber:   page.PageNumber,
				Score:        Combine(ts, is, hasText, hasImage, e.textWeight, e.imageWeight),
				TextScore:    ts,
				ImageScore:   is,
				Snippet:      Snippet(snippet, e.snippetLength),
				Highlights:   highlights,
			})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topN {
		results = results[:topN]
	}
	return results
}

func nonEmpty(vecs [][]float32) [][]float32 {
	var out [][]float32
	for _, v := range vecs {
		if len(v) > 0 {
			out = append(out, v)
		}
	}
	return out
}
