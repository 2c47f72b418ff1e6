// Package keyword indexes page text for lexical search.
package keyword

import (
	"context"

	"github.com/hyperjump/lens/internal/models"
)

// SearchOptions tune lexical search. Nil means defaults.
type SearchOptions struct {
	// Fuzziness is the maximum edit distance per term. Zero disables fuzzy matching.
	Fuzziness int
	// PhraseBoost multiplies the score of pages containing the query as a phrase.
	PhraseBoost float64
	// MaxTerms bounds the number of distinct query terms. Default 32.
	MaxTerms int
}

// KeywordIndex stores one entry per document page.
type KeywordIndex interface {
	IndexDocument(ctx context.Context, doc *models.DocumentIndex) error
	DeleteDocument(ctx context.Context, path string) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single page hit.
type KeywordResult struct {
	ID    string
	Path  string
	Page  int
	Score float64
}
