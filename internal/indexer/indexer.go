// Package indexer builds the page index of PDF documents: positioned text lines and embedded
// images with their embeddings.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/lens/internal/corpus"
	"github.com/hyperjump/lens/internal/docparse"
	"github.com/hyperjump/lens/internal/embedding"
	"github.com/hyperjump/lens/internal/keyword"
	"github.com/hyperjump/lens/internal/models"
)

// IngestFailure names a document that could not be indexed.
type IngestFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// IngestReport summarizes one ingest call.
type IngestReport struct {
	Indexed []string        `json:"indexed"`
	Skipped []string        `json:"skipped"`
	Missing []string        `json:"missing"`
	Failed  []IngestFailure `json:"failed"`
	Removed []string        `json:"removed,omitempty"`
}

// Changed reports whether the call altered the index.
func (r IngestReport) Changed() bool {
	return len(r.Indexed) > 0 || len(r.Removed) > 0
}

// Indexer parses documents and replaces their entries in the corpus index.
// Calls are serialized so concurrent callers never interleave writes to the index file.
type Indexer struct {
	mu           sync.Mutex
	parser       docparse.Parser
	embedder     embedding.Embedder
	store        *corpus.Store
	keywordIndex keyword.KeywordIndex
	chunker      *Chunker
	minImageSize int
	logger       *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger for the indexer.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithKeywordIndex mirrors page text into a lexical index.
func WithKeywordIndex(k keyword.KeywordIndex) IndexerOption {
	return func(idx *Indexer) { idx.keywordIndex = k }
}

// WithLineTolerance sets the baseline difference, in page units, under which words share a line.
func WithLineTolerance(tol float64) IndexerOption {
	return func(idx *Indexer) { idx.chunker = NewChunker(tol) }
}

// WithMinImageSize sets the minimum width and height, in pixels, of indexed images.
func WithMinImageSize(px int) IndexerOption {
	return func(idx *Indexer) { idx.minImageSize = px }
}

// NewIndexer creates an indexer. store may be nil, in which case nothing is persisted.
func NewIndexer(parser docparse.Parser, embedder embedding.Embedder, store *corpus.Store, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		parser:       parser,
		embedder:     embedder,
		store:        store,
		chunker:      NewChunker(2.5),
		minImageSize: 50,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Ingest indexes paths in order, one document at a time. Missing files and files whose
// modification time matches the stored entry are skipped; a document that fails to parse or
// embed is reported and skipped without touching its previous entry. The resulting index is
// saved once and returned. On cancellation the work done so far is saved and returned with
// the context error.
func (idx *Indexer) Ingest(ctx context.Context, paths []string, current *corpus.Index) (*corpus.Index, IngestReport, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var report IngestReport
	if current == nil {
		current = corpus.Empty()
	}
	var ctxErr error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			report.Failed = append(report.Failed, IngestFailure{Path: p, Error: err.Error()})
			continue
		}
		info, err := os.Stat(abs)
		if err != nil || !info.Mode().IsRegular() {
			idx.logger.Debug("indexer skipping missing file", zap.String("path", abs))
			report.Missing = append(report.Missing, abs)
			continue
		}
		if stored, ok := current.LastModified(abs); ok && stored.Equal(info.ModTime()) {
			idx.logger.Debug("indexer skipping unchanged file", zap.String("path", abs))
			report.Skipped = append(report.Skipped, abs)
			continue
		}

		doc, err := idx.indexDocument(ctx, abs, info.ModTime())
		if err != nil {
			if ctx.Err() != nil {
				ctxErr = ctx.Err()
				break
			}
			idx.logger.Warn("failed to index document", zap.String("path", abs), zap.Error(err))
			report.Failed = append(report.Failed, IngestFailure{Path: abs, Error: err.Error()})
			continue
		}
		current = current.With(doc)
		report.Indexed = append(report.Indexed, abs)
		idx.indexKeywords(ctx, doc)
		idx.logger.Debug("indexer document indexed", zap.String("path", abs), zap.Int("pages", len(doc.Pages)))
	}

	if report.Changed() {
		if err := idx.save(current); err != nil {
			return current, report, err
		}
	}
	return current, report, ctxErr
}

// Reindex re-ingests path when the file exists and removes its entry otherwise.
func (idx *Indexer) Reindex(ctx context.Context, path string, current *corpus.Index) (*corpus.Index, IngestReport, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return current, IngestReport{}, fmt.Errorf("absolute path: %w", err)
	}
	if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
		report := IngestReport{Missing: []string{abs}}
		next, err := idx.Remove(ctx, abs, current)
		if errors.Is(err, corpus.ErrNotFound) {
			return current, report, nil
		}
		report.Removed = []string{abs}
		return next, report, err
	}
	return idx.Ingest(ctx, []string{abs}, current)
}

// Remove drops the entry for path and saves. It returns corpus.ErrNotFound when no entry exists.
func (idx *Indexer) Remove(ctx context.Context, path string, current *corpus.Index) (*corpus.Index, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	abs, err := filepath.Abs(path)
	if err != nil {
		return current, fmt.Errorf("absolute path: %w", err)
	}
	next, ok := current.Without(abs)
	if !ok {
		return current, fmt.Errorf("%w: %s", corpus.ErrNotFound, abs)
	}
	idx.deleteKeywords(ctx, abs)
	if err := idx.save(next); err != nil {
		return next, err
	}
	idx.logger.Debug("indexer document removed", zap.String("path", abs))
	return next, nil
}

// Prune drops every entry whose file no longer exists and saves when anything changed.
func (idx *Indexer) Prune(ctx context.Context, current *corpus.Index) (*corpus.Index, IngestReport, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var report IngestReport
	next := current
	for _, doc := range current.Documents() {
		if _, err := os.Stat(doc.Path); !errors.Is(err, os.ErrNotExist) {
			continue
		}
		next, _ = next.Without(doc.Path)
		idx.deleteKeywords(ctx, doc.Path)
		report.Removed = append(report.Removed, doc.Path)
	}
	if report.Changed() {
		if err := idx.save(next); err != nil {
			return next, report, err
		}
		idx.logger.Info("pruned missing documents", zap.Int("count", len(report.Removed)))
	}
	return next, report, nil
}

// Rebuild mirrors every page of current into the keyword index, for a keyword index created
// after documents were ingested.
func (idx *Indexer) Rebuild(ctx context.Context, current *corpus.Index) error {
	if idx.keywordIndex == nil {
		return nil
	}
	for _, doc := range current.Documents() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := idx.keywordIndex.IndexDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to index keywords for %s: %w", doc.Path, err)
		}
	}
	return nil
}

func (idx *Indexer) save(current *corpus.Index) error {
	if idx.store == nil {
		return nil
	}
	if err := idx.store.Save(current); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	return nil
}

func (idx *Indexer) indexKeywords(ctx context.Context, doc *models.DocumentIndex) {
	if idx.keywordIndex == nil {
		return
	}
	if err := idx.keywordIndex.IndexDocument(ctx, doc); err != nil {
		idx.logger.Warn("failed to index keywords", zap.String("path", doc.Path), zap.Error(err))
	}
}

func (idx *Indexer) deleteKeywords(ctx context.Context, path string) {
	if idx.keywordIndex == nil {
		return
	}
	if err := idx.keywordIndex.DeleteDocument(ctx, path); err != nil {
		idx.logger.Warn("failed to delete keywords", zap.String("path", path), zap.Error(err))
	}
}

// indexDocument parses path and builds every page. No partial result is returned.
func (idx *Indexer) indexDocument(ctx context.Context, path string, modTime time.Time) (*models.DocumentIndex, error) {
	pages, err := idx.parser.Parse(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	doc := &models.DocumentIndex{Path: path, LastModified: modTime, Pages: make([]models.PageIndex, 0, len(pages))}
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := idx.indexPage(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", p.Number, err)
		}
		doc.Pages = append(doc.Pages, *page)
	}
	return doc, nil
}

func (idx *Indexer) indexPage(ctx context.Context, p docparse.Page) (*models.PageIndex, error) {
	page := &models.PageIndex{
		PageNumber: p.Number,
		Width:      p.Width,
		Height:     p.Height,
		Text:       p.Text,
		TextChunks: idx.chunker.Chunk(p.Words, p.Width, p.Height),
	}
	if page.TextChunks == nil {
		page.TextChunks = []models.TextChunk{}
	}
	for i := range page.TextChunks {
		chunk := &page.TextChunks[i]
		if strings.TrimSpace(chunk.Text) == "" {
			continue
		}
		emb, err := idx.embed(func() ([]float32, error) { return idx.embedder.EncodeText(ctx, chunk.Text) })
		if err != nil {
			return nil, fmt.Errorf("embed text: %w", err)
		}
		if len(emb) > 0 {
			chunk.Embedding = emb
		}
	}

	page.ImageChunks = []models.ImageChunk{}
	for _, im := range p.Images {
		if im.PixelWidth < idx.minImageSize || im.PixelHeight < idx.minImageSize {
			continue
		}
		raster, err := im.Decode()
		if err != nil {
			idx.logger.Debug("skipping undecodable image", zap.Int("page", p.Number), zap.Error(err))
			continue
		}
		emb, err := idx.embed(func() ([]float32, error) { return idx.embedder.EncodeImage(ctx, raster) })
		if err != nil {
			return nil, fmt.Errorf("embed image: %w", err)
		}
		chunk := models.ImageChunk{Bounds: Normalize(im.X, im.Y, im.Width, im.Height, p.Width, p.Height)}
		if len(emb) > 0 {
			chunk.Embedding = emb
		}
		page.ImageChunks = append(page.ImageChunks, chunk)
	}
	return page, nil
}

// embed runs fn unless no embedder is configured. A missing model leaves the chunk
// unembedded so it is kept for display and lexical search.
func (idx *Indexer) embed(fn func() ([]float32, error)) ([]float32, error) {
	if idx.embedder == nil {
		return nil, nil
	}
	emb, err := fn()
	if errors.Is(err, embedding.ErrModelUnavailable) {
		return nil, nil
	}
	return emb, err
}

// ExpandPaths replaces every directory in paths by the PDF files under it, walking
// subdirectories when recursive is set. Files are kept as given.
func ExpandPaths(paths []string, recursive bool) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			out = append(out, p)
			continue
		}
		root := p
		err = filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != root && !recursive {
					return filepath.SkipDir
				}
				return nil
			}
			if IsPDF(path) {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	return out, nil
}

// IsPDF reports whether path has a .pdf extension, ignoring case.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
