package keyword

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/lens/internal/fileid"
	"github.com/hyperjump/lens/internal/models"
)

// pageDocument is the indexed form of one page.
type pageDocument struct {
	Path    string `json:"path"`
	Key     string `json:"key"`
	Page    int    `json:"page"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	// Standard analyzer (lowercase, no stemming) so OCR'd words match the stored form.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("title", text)

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keywordanalyzer.Name
	doc.AddFieldMappingsAt("key", exact)

	stored := bleve.NewTextFieldMapping()
	stored.Index = false
	doc.AddFieldMappingsAt("path", stored)
	doc.AddFieldMappingsAt("page", bleve.NewNumericFieldMapping())

	im.AddDocumentMapping("page", doc)
	im.DefaultType = "page"
	im.DefaultMapping = doc
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an in-memory index.
// Changing the mapping requires removing the index directory.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexDocument replaces every page entry of doc.
func (b *BleveIndex) IndexDocument(ctx context.Context, doc *models.DocumentIndex) error {
	if err := b.DeleteDocument(ctx, doc.Path); err != nil {
		return err
	}
	batch := b.index.NewBatch()
	title := titleTerms(doc.Path)
	for _, p := range doc.Pages {
		err := batch.Index(fileid.PageID(doc.Path, p.PageNumber), pageDocument{
			Path:    doc.Path,
			Key:     fileid.Key(doc.Path),
			Page:    p.PageNumber,
			Title:   title,
			Content: p.Text,
		})
		if err != nil {
			return fmt.Errorf("failed to index page %d: %w", p.PageNumber, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	return nil
}

// titleTerms turns a file name into searchable words: "q3_sales-report.pdf" -> "q3 sales report".
// The standard analyzer keeps "report.pdf" and "q3_sales" as single tokens.
func titleTerms(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(base)
}

// DeleteDocument removes all page entries of path.
func (b *BleveIndex) DeleteDocument(ctx context.Context, path string) error {
	q := bleve.NewTermQuery(fileid.Key(path))
	q.SetField("key")
	for {
		req := bleve.NewSearchRequest(q)
		req.Size = 1000
		res, err := b.index.Search(req)
		if err != nil {
			return fmt.Errorf("failed to find pages of %s: %w", path, err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete pages of %s: %w", path, err)
		}
	}
}

// Search scores pages against the query terms over content and title.
// Fuzzy matching absorbs recognition noise; pages containing the query as a phrase are boosted.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	fuzziness, phraseBoost, maxTerms := 0, 1.0, 32
	if opts != nil {
		fuzziness = opts.Fuzziness
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		if opts.MaxTerms > 0 {
			maxTerms = opts.MaxTerms
		}
	}
	terms := Terms(query)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}
	if len(terms) > maxTerms {
		terms = terms[:maxTerms]
	}

	req := bleve.NewSearchRequest(buildTermsQuery(terms, fuzziness))
	req.Size = limit * 2
	if req.Size < 50 {
		req.Size = 50
	}
	req.Fields = []string{"path", "page"}
	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	phrase := map[string]bool{}
	if phraseBoost > 1 && len(terms) > 1 {
		phrase = b.findPhraseMatches(query, req.Size)
	}

	out := make([]*KeywordResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r := &KeywordResult{ID: hit.ID, Score: hit.Score}
		if p, ok := hit.Fields["path"].(string); ok {
			r.Path = p
		}
		if n, ok := hit.Fields["page"].(float64); ok {
			r.Page = int(n)
		}
		if phrase[hit.ID] {
			r.Score *= phraseBoost
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// buildTermsQuery ORs one match per term over content and title.
func buildTermsQuery(terms []string, fuzziness int) blevequery.Query {
	queries := make([]blevequery.Query, 0, len(terms)*2)
	for _, term := range terms {
		for _, field := range []string{"content", "title"} {
			if fuzziness > 0 {
				fq := bleve.NewFuzzyQuery(term)
				fq.SetFuzziness(fuzziness)
				fq.SetField(field)
				queries = append(queries, fq)
				continue
			}
			mq := bleve.NewMatchQuery(term)
			mq.SetField(field)
			queries = append(queries, mq)
		}
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// findPhraseMatches returns the ids of pages whose content contains query as a phrase.
func (b *BleveIndex) findPhraseMatches(query string, size int) map[string]bool {
	matches := make(map[string]bool)
	pq := bleve.NewMatchPhraseQuery(query)
	pq.SetField("content")
	req := bleve.NewSearchRequest(pq)
	req.Size = size
	res, err := b.index.Search(req)
	if err != nil {
		return matches
	}
	for _, hit := range res.Hits {
		matches[hit.ID] = true
	}
	return matches
}

// DocCount returns the number of indexed pages.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
