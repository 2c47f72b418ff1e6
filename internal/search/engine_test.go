package search

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/lens/internal/config"
	"github.com/hyperjump/lens/internal/corpus"
	"github.com/hyperjump/lens/internal/embedding"
	"github.com/hyperjump/lens/internal/keyword"
	"github.com/hyperjump/lens/internal/models"
)

var ctx = context.Background()

func textPage(n int, emb *embedding.MockEmbedder, lines ...string) *models.PageIndex {
	p := &models.PageIndex{PageNumber: n, Width: 612, Height: 792, Text: strings.Join(lines, "\n"), ImageChunks: []models.ImageChunk{}}
	for i, l := range lines {
		vec, _ := emb.EncodeText(ctx, l)
		p.TextChunks = append(p.TextChunks, models.TextChunk{
			Text:      l,
			Bounds:    models.Rect{X: 0.1, Y: 0.1 * float64(i+1), Width: 0.5, Height: 0.02},
			Embedding: vec,
		})
	}
	return p
}

func doc(path string, pages ...*models.PageIndex) *models.DocumentIndex {
	d := &models.DocumentIndex{Path: path, LastModified: time.Unix(1700000000, 0)}
	for _, p := range pages {
		d.Pages = append(d.Pages, *p)
	}
	return d
}

func unit(v ...float32) []float32 { return v }

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestSearch_exactTextMatchRanksFirst(t *testing.T) {
	emb := embedding.NewMockEmbedder(32)
	idx := corpus.New([]*models.DocumentIndex{
		doc("/docs/y.pdf", textPage(1, emb, "weather report for tuesday", "rain expected")),
		doc("/docs/x.pdf", textPage(1, emb, "introduction"), textPage(2, emb, "gross margin improved", "quarterly revenue grew")),
	})
	q, err := emb.EncodeText(ctx, "quarterly revenue grew")
	require.NoError(t, err)

	results := NewEngine(emb, nil).Search(idx, q, nil, 8)
	require.NotEmpty(t, results)
	top := results[0]
	assert.Equal(t, "/docs/x.pdf", top.DocumentPath)
	assert.Equal(t, 2, top.PageNumber)
	assert.InDelta(t, 1.0, top.Score, 1e-4)
	assert.Equal(t, "quarterly revenue grew", top.Snippet)
	require.NotEmpty(t, top.Highlights)
	assert.Equal(t, models.HighlightText, top.Highlights[0].Kind)
	assert.Equal(t, 0.2, top.Highlights[0].Bounds.Y)
}

func TestSearch_imageQueryWithoutImageChunks(t *testing.T) {
	emb := embedding.NewMockEmbedder(8)
	idx := corpus.New([]*models.DocumentIndex{doc("/a.pdf", textPage(1, emb, "only text here"))})
	img, _ := emb.EncodeImage(ctx, solid(color.White))

	results := NewEngine(emb, nil).Search(idx, nil, [][]float32{img}, 8)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearch_noQueryVectors(t *testing.T) {
	emb := embedding.NewMockEmbedder(8)
	idx := corpus.New([]*models.DocumentIndex{doc("/a.pdf", textPage(1, emb, "text"))})
	assert.Empty(t, NewEngine(emb, nil).Search(idx, nil, [][]float32{{}}, 8))
	assert.Empty(t, NewEngine(emb, nil).Search(corpus.Empty(), unit(1, 0), nil, 8))
}

func TestSearch_snippetTruncated(t *testing.T) {
	long := strings.Repeat("abcdefghij", 20)
	page := &models.PageIndex{
		PageNumber: 1,
		Text:       long,
		TextChunks: []models.TextChunk{{Text: long, Embedding: unit(1, 0)}},
	}
	results := NewEngine(nil, nil).Search(corpus.New([]*models.DocumentIndex{doc("/a.pdf", page)}), unit(1, 0), nil, 1)
	require.Len(t, results, 1)
	assert.Equal(t, long[:180]+"...", results[0].Snippet)
	assert.Len(t, []rune(results[0].Snippet), 183)
}

func TestSearch_combinedScores(t *testing.T) {
	page := &models.PageIndex{
		PageNumber: 1,
		TextChunks: []models.TextChunk{
			{Text: "a", Embedding: unit(1, 0)},
			{Text: "b", Embedding: unit(0.6, 0.8)},
			{Text: "c", Embedding: unit(0, 1)},
			{Text: "d", Embedding: unit(0.8, 0.6)},
		},
		ImageChunks: []models.ImageChunk{
			{Bounds: models.Rect{X: 0.5}, Embedding: unit(0.6, 0.8)},
			{Bounds: models.Rect{X: 0.7}, Embedding: unit(0.8, 0.6)},
			{Bounds: models.Rect{X: 0.9}, Embedding: unit(1, 0)},
		},
	}
	idx := corpus.New([]*models.DocumentIndex{doc("/a.pdf", page)})
	results := NewEngine(nil, nil).Search(idx, unit(1, 0), [][]float32{unit(0, 1)}, 5)
	require.Len(t, results, 1)
	r := results[0]
	assert.InDelta(t, 1.0, r.TextScore, 1e-9)
	assert.InDelta(t, 0.8, r.ImageScore, 1e-6)
	assert.InDelta(t, 0.7+0.3*0.8, r.Score, 1e-6)
	assert.Equal(t, "a", r.Snippet)

	var text, images int
	for _, h := range r.Highlights {
		switch h.Kind {
		case models.HighlightText:
			text++
		case models.HighlightImage:
			images++
		}
	}
	// top 3 text chunks a, d, b all clear 0.2; top 2 image pairs are 0.8 and 0.6; the third (0) is not considered
	assert.Equal(t, 3, text)
	assert.Equal(t, 2, images)
}

func TestSearch_scoreBoundsAndMismatch(t *testing.T) {
	page := &models.PageIndex{
		PageNumber: 1,
		TextChunks: []models.TextChunk{
			{Text: "opposite", Embedding: unit(-1, 0)},
			{Text: "wrong width", Embedding: unit(1, 0, 0)},
		},
	}
	results := NewEngine(nil, nil).Search(corpus.New([]*models.DocumentIndex{doc("/a.pdf", page)}), unit(1, 0), nil, 5)
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].Score)
	assert.Empty(t, results[0].Highlights)
	assert.Equal(t, "opposite", results[0].Snippet)
}

func TestSearch_stableTies(t *testing.T) {
	var docs []*models.DocumentIndex
	for _, p := range []string{"/c.pdf", "/a.pdf", "/b.pdf"} {
		docs = append(docs, doc(p, &models.PageIndex{PageNumber: 1, TextChunks: []models.TextChunk{{Text: "same", Embedding: unit(0, 1)}}}))
	}
	results := NewEngine(nil, nil).Search(corpus.New(docs), unit(0, 1), nil, 2)
	require.Len(t, results, 2)
	assert.Equal(t, "/c.pdf", results[0].DocumentPath)
	assert.Equal(t, "/a.pdf", results[1].DocumentPath)
}

func TestSearch_unembeddedPagesSkipped(t *testing.T) {
	page := &models.PageIndex{PageNumber: 1, Text: "x", TextChunks: []models.TextChunk{{Text: "x"}}}
	assert.Empty(t, NewEngine(nil, nil).Search(corpus.New([]*models.DocumentIndex{doc("/a.pdf", page)}), unit(1), nil, 5))
}

func TestSearch_unembeddedImageChunksSkipped(t *testing.T) {
	page := &models.PageIndex{PageNumber: 1, ImageChunks: []models.ImageChunk{{Bounds: models.Rect{Width: 0.5, Height: 0.5}}}}
	idx := corpus.New([]*models.DocumentIndex{doc("/scan.pdf", page)})
	assert.Empty(t, NewEngine(nil, nil).Search(idx, nil, [][]float32{unit(1)}, 5))
}

func TestNewEngine_config(t *testing.T) {
	e := NewEngine(nil, &config.SearchConfig{TextWeight: 0.5, ImageWeight: 0.5, SnippetLength: 10, HighlightThreshold: 0.9})
	assert.Equal(t, 0.5, e.textWeight)
	assert.Equal(t, 10, e.snippetLength)
	assert.Equal(t, 0.9, e.threshold)
}

func TestQuery_embedsTextAndPhotos(t *testing.T) {
	emb := embedding.NewMockEmbedder(32)
	red := solid(color.RGBA{R: 255, A: 255})
	redVec, _ := emb.EncodeImage(ctx, red)
	page := textPage(1, emb, "invoice total due")
	page.ImageChunks = []models.ImageChunk{{Bounds: models.Rect{X: 0.3}, Embedding: redVec}}
	idx := corpus.New([]*models.DocumentIndex{doc("/inv.pdf", page), doc("/other.pdf", textPage(1, emb, "unrelated"))})

	resp, err := NewEngine(emb, nil).Query(ctx, idx, "invoice total due", []image.Image{red}, 1)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 2, resp.Total)
	assert.False(t, resp.Lexical)
	assert.Equal(t, "/inv.pdf", resp.Results[0].DocumentPath)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-4)
}

func TestQuery_overweightedConfigStaysInUnitRange(t *testing.T) {
	emb := embedding.NewMockEmbedder(32)
	red := solid(color.RGBA{R: 255, A: 255})
	redVec, _ := emb.EncodeImage(ctx, red)
	page := textPage(1, emb, "invoice total due")
	page.ImageChunks = []models.ImageChunk{{Bounds: models.Rect{X: 0.3}, Embedding: redVec}}
	idx := corpus.New([]*models.DocumentIndex{doc("/inv.pdf", page)})

	e := NewEngine(emb, &config.SearchConfig{TextWeight: 0.9, ImageWeight: 0.6})
	assert.InDelta(t, 1.0, e.textWeight+e.imageWeight, 1e-9)
	resp, err := e.Query(ctx, idx, "invoice total due", []image.Image{red}, 1)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.LessOrEqual(t, resp.Results[0].Score, 1.0+1e-9)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-4)

	imageOnly := NewEngine(emb, &config.SearchConfig{ImageWeight: 1})
	assert.Equal(t, 0.0, imageOnly.textWeight)
}

func TestQuery_emptyIndex(t *testing.T) {
	resp, err := NewEngine(embedding.NewMockEmbedder(8), nil).Query(ctx, corpus.Empty(), "anything", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

type failingEmbedder struct{ *embedding.MockEmbedder }

func (failingEmbedder) EncodeText(context.Context, string) ([]float32, error) {
	return nil, errors.New("inference failed")
}

func TestQuery_embeddingErrorPropagates(t *testing.T) {
	emb := embedding.NewMockEmbedder(8)
	idx := corpus.New([]*models.DocumentIndex{doc("/a.pdf", textPage(1, emb, "x"))})
	_, err := NewEngine(failingEmbedder{emb}, nil).Query(ctx, idx, "x", nil, 5)
	require.Error(t, err)
}

func TestQuery_lexicalFallback(t *testing.T) {
	kw, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	defer kw.Close()

	emb := embedding.NewMockEmbedder(8)
	target := textPage(3, emb, "Chapter one", "the quarterly revenue table", "closing remarks")
	docs := []*models.DocumentIndex{
		doc("/docs/report.pdf", textPage(1, emb, "cover"), target),
		doc("/docs/notes.pdf", textPage(1, emb, "grocery list")),
	}
	for _, d := range docs {
		require.NoError(t, kw.IndexDocument(ctx, d))
	}
	noModel, err := embedding.NewEngine(nil, nil, nil)
	require.NoError(t, err)

	// OCR noise: "quartorly" is one edit away
	resp, err := NewEngine(noModel, nil, WithKeywordIndex(kw)).Query(ctx, corpus.New(docs), "quartorly revenue", nil, 5)
	require.NoError(t, err)
	assert.True(t, resp.Lexical)
	require.Len(t, resp.Results, 1)
	r := resp.Results[0]
	assert.Equal(t, "/docs/report.pdf", r.DocumentPath)
	assert.Equal(t, 3, r.PageNumber)
	assert.Equal(t, 1.0, r.Score)
	assert.Equal(t, "the quarterly revenue table", r.Snippet)
	require.Len(t, r.Highlights, 1)
	assert.Equal(t, target.TextChunks[1].Bounds, r.Highlights[0].Bounds)
}

func TestQuery_noModelNoKeywordIndex(t *testing.T) {
	emb := embedding.NewMockEmbedder(8)
	idx := corpus.New([]*models.DocumentIndex{doc("/a.pdf", textPage(1, emb, "x"))})
	resp, err := NewEngine(nil, nil).Query(ctx, idx, "x", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestProcessQuery(t *testing.T) {
	q := &models.SearchQuery{Text: "  two \n words ", TopN: 500}
	require.NoError(t, ProcessQuery(q, 8, 50))
	assert.Equal(t, "two words", q.Text)
	assert.Equal(t, 50, q.TopN)
	assert.Error(t, ProcessQuery(&models.SearchQuery{Text: " \t"}, 8, 50))
}
