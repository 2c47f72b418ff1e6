package indexer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/lens/internal/corpus"
	"github.com/hyperjump/lens/internal/docparse"
	"github.com/hyperjump/lens/internal/embedding"
	"github.com/hyperjump/lens/internal/keyword"
	"github.com/hyperjump/lens/pkg/utils"
)

// fakeParser serves canned pages keyed by absolute path.
type fakeParser struct {
	mu    sync.Mutex
	pages map[string][]docparse.Page
	errs  map[string]error
	calls int
}

func (f *fakeParser) Parse(_ context.Context, path string) ([]docparse.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[path]; err != nil {
		return nil, err
	}
	return f.pages[path], nil
}

type countingEmbedder struct {
	*embedding.MockEmbedder
	text, images int
}

func (c *countingEmbedder) EncodeText(ctx context.Context, s string) ([]float32, error) {
	c.text++
	return c.MockEmbedder.EncodeText(ctx, s)
}

func (c *countingEmbedder) EncodeImage(ctx context.Context, img image.Image) ([]float32, error) {
	c.images++
	return c.MockEmbedder.EncodeImage(ctx, img)
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func rasterImage(x, y, w, h float64, img image.Image) docparse.Image {
	b := img.Bounds()
	return docparse.NewImage(x, y, w, h, b.Dx(), b.Dy(), func() (image.Image, error) { return img, nil })
}

func samplePages() []docparse.Page {
	return []docparse.Page{{
		Number: 1,
		Width:  200,
		Height: 100,
		Text:   "Quarterly report\nRevenue grew",
		Words: []docparse.Word{
			{Text: "grew", X: 60, Y: 50, Width: 20, Height: 10},
			{Text: "report", X: 70, Y: 80, Width: 30, Height: 10},
			{Text: "Quarterly", X: 20, Y: 81, Width: 45, Height: 10},
			{Text: "Revenue", X: 20, Y: 50, Width: 35, Height: 10},
		},
		Images: []docparse.Image{
			rasterImage(100, 10, 80, 40, solid(64, 64, color.RGBA{R: 200, A: 255})),
			rasterImage(10, 10, 5, 5, solid(20, 20, color.White)),
		},
	}}
}

type fixture struct {
	dir      string
	parser   *fakeParser
	embedder *countingEmbedder
	store    *corpus.Store
	indexer  *Indexer
}

func newFixture(t *testing.T, opts ...IndexerOption) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:      dir,
		parser:   &fakeParser{pages: map[string][]docparse.Page{}, errs: map[string]error{}},
		embedder: &countingEmbedder{MockEmbedder: embedding.NewMockEmbedder(16)},
		store:    corpus.NewStore(filepath.Join(dir, "data", "pdf_index.json")),
	}
	f.indexer = NewIndexer(f.parser, f.embedder, f.store, opts...)
	return f
}

// addPDF writes a placeholder file and registers its pages.
func (f *fixture) addPDF(t *testing.T, name string, pages []docparse.Page) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte("%PDF"), 0o600); err != nil {
		t.Fatal(err)
	}
	f.parser.pages[path] = pages
	return path
}

func TestIngest_buildsPages(t *testing.T) {
	f := newFixture(t)
	path := f.addPDF(t, "a.pdf", samplePages())

	idx, report, err := f.indexer.Ingest(context.Background(), []string{path}, corpus.Empty())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Indexed) != 1 || report.Indexed[0] != path {
		t.Fatalf("report: %+v", report)
	}
	doc, ok := idx.Get(path)
	if !ok {
		t.Fatal("document not in index")
	}
	info, _ := os.Stat(path)
	if !doc.LastModified.Equal(info.ModTime()) {
		t.Errorf("LastModified = %v, want %v", doc.LastModified, info.ModTime())
	}
	page := doc.Pages[0]
	if page.Text != "Quarterly report\nRevenue grew" {
		t.Errorf("page text = %q", page.Text)
	}
	if len(page.TextChunks) != 2 {
		t.Fatalf("got %d text chunks, want 2", len(page.TextChunks))
	}
	top := page.TextChunks[0]
	if top.Text != "Quarterly report" {
		t.Errorf("first chunk = %q", top.Text)
	}
	// union of (20,80)-(100,91) on a 200x100 page, flipped
	want := Normalize(20, 80, 80, 11, 200, 100)
	if top.Bounds != want {
		t.Errorf("bounds = %+v, want %+v", top.Bounds, want)
	}
	if top.Bounds.Y < 0.089 || top.Bounds.Y > 0.091 {
		t.Errorf("y should be measured from the top, got %v", top.Bounds.Y)
	}
	if page.TextChunks[1].Text != "Revenue grew" {
		t.Errorf("second chunk = %q", page.TextChunks[1].Text)
	}
	for _, c := range page.TextChunks {
		if len(c.Embedding) != 16 {
			t.Errorf("chunk %q has %d-d embedding", c.Text, len(c.Embedding))
		}
	}

	if len(page.ImageChunks) != 1 {
		t.Fatalf("got %d image chunks, want 1 (small image discarded)", len(page.ImageChunks))
	}
	img := page.ImageChunks[0]
	if img.Bounds != Normalize(100, 10, 80, 40, 200, 100) || len(img.Embedding) != 16 {
		t.Errorf("image chunk = %+v", img.Bounds)
	}

	loaded, err := f.store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 1 || loaded.PageCount() != 1 {
		t.Errorf("saved index has %d docs / %d pages", loaded.Len(), loaded.PageCount())
	}
}

func TestIngest_unchangedFileIsSkipped(t *testing.T) {
	f := newFixture(t)
	path := f.addPDF(t, "a.pdf", samplePages())
	ctx := context.Background()

	idx, _, err := f.indexer.Ingest(ctx, []string{path}, corpus.Empty())
	if err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(f.store.Path())
	if err != nil {
		t.Fatal(err)
	}
	calls, texts := f.parser.calls, f.embedder.text

	// reload from disk, as on restart
	loaded, err := f.store.Load()
	if err != nil {
		t.Fatal(err)
	}
	idx2, report, err := f.indexer.Ingest(ctx, []string{path}, loaded)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Skipped) != 1 || len(report.Indexed) != 0 {
		t.Errorf("report: %+v", report)
	}
	if f.parser.calls != calls || f.embedder.text != texts {
		t.Error("unchanged file was parsed or embedded again")
	}
	after, _ := os.ReadFile(f.store.Path())
	if !bytes.Equal(before, after) {
		t.Error("index file changed")
	}
	d1, _ := idx.Get(path)
	d2, _ := idx2.Get(path)
	if len(d1.Pages) != len(d2.Pages) {
		t.Error("entry changed")
	}
}

func TestIngest_modifiedFileIsReplaced(t *testing.T) {
	f := newFixture(t)
	path := f.addPDF(t, "a.pdf", samplePages())
	ctx := context.Background()
	idx, _, err := f.indexer.Ingest(ctx, []string{path}, corpus.Empty())
	if err != nil {
		t.Fatal(err)
	}

	f.parser.pages[path] = []docparse.Page{{Number: 1, Width: 100, Height: 100, Text: "new"}, {Number: 2, Width: 100, Height: 100}}
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	idx, report, err := f.indexer.Ingest(ctx, []string{path}, idx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Indexed) != 1 {
		t.Fatalf("report: %+v", report)
	}
	doc, _ := idx.Get(path)
	if len(doc.Pages) != 2 || doc.Pages[0].Text != "new" {
		t.Errorf("pages not rebuilt: %+v", doc.Pages)
	}
	if idx.Len() != 1 {
		t.Errorf("index has %d docs, want 1", idx.Len())
	}
}

func TestIngest_badDocumentDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	good1 := f.addPDF(t, "good1.pdf", samplePages())
	bad := f.addPDF(t, "bad.pdf", samplePages())
	good2 := f.addPDF(t, "good2.pdf", samplePages())

	idx, _, err := f.indexer.Ingest(ctx, []string{bad}, corpus.Empty())
	if err != nil {
		t.Fatal(err)
	}
	old, _ := idx.Get(bad)

	f.parser.errs[bad] = errors.New("malformed xref")
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(bad, later, later); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(f.dir, "gone.pdf")

	idx, report, err := f.indexer.Ingest(ctx, []string{good1, bad, missing, good2}, idx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Indexed) != 2 || len(report.Failed) != 1 || len(report.Missing) != 1 {
		t.Fatalf("report: %+v", report)
	}
	if report.Failed[0].Path != bad {
		t.Errorf("failed path = %q", report.Failed[0].Path)
	}
	if got, _ := idx.Get(bad); got != old {
		t.Error("previous entry of the failed document should be kept as is")
	}
	if idx.Len() != 3 {
		t.Errorf("index has %d docs, want 3", idx.Len())
	}
}

func TestIngest_withoutTextModel(t *testing.T) {
	f := newFixture(t)
	engine, err := embedding.NewEngine(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	f.indexer = NewIndexer(f.parser, engine, f.store)
	path := f.addPDF(t, "a.pdf", samplePages())

	idx, report, err := f.indexer.Ingest(context.Background(), []string{path}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Indexed) != 1 {
		t.Fatalf("report: %+v", report)
	}
	doc, _ := idx.Get(path)
	for _, c := range doc.Pages[0].TextChunks {
		if c.Embedding != nil {
			t.Error("chunk should be stored without embedding")
		}
	}
	if len(doc.Pages[0].TextChunks) != 2 || len(doc.Pages[0].ImageChunks) != 1 {
		t.Error("chunks should be kept for display")
	}
}

func TestIngest_blankChunkIsNotEmbedded(t *testing.T) {
	f := newFixture(t)
	path := f.addPDF(t, "a.pdf", []docparse.Page{{
		Number: 1, Width: 100, Height: 100,
		Words: []docparse.Word{{Text: "\x00", X: 1, Y: 1, Width: 1, Height: 1}},
	}})
	idx, _, err := f.indexer.Ingest(context.Background(), []string{path}, nil)
	if err != nil {
		t.Fatal(err)
	}
	doc, _ := idx.Get(path)
	if n := len(doc.Pages[0].TextChunks); n != 1 {
		t.Fatalf("got %d chunks", n)
	}
	if doc.Pages[0].TextChunks[0].Embedding != nil || f.embedder.text != 0 {
		t.Error("blank chunk must not be embedded")
	}
}

func TestIngest_mirrorsKeywordIndex(t *testing.T) {
	kw, err := keyword.NewBleveIndex("")
	if err != nil {
		t.Fatal(err)
	}
	defer kw.Close()
	f := newFixture(t, WithKeywordIndex(kw))
	ctx := context.Background()
	path := f.addPDF(t, "a.pdf", samplePages())

	idx, _, err := f.indexer.Ingest(ctx, []string{path}, nil)
	if err != nil {
		t.Fatal(err)
	}
	hits, err := kw.Search(ctx, "revenue", 10, nil)
	if err != nil || len(hits) != 1 || hits[0].Page != 1 {
		t.Fatalf("keyword hits = %v, %v", hits, err)
	}
	if _, err := f.indexer.Remove(ctx, path, idx); err != nil {
		t.Fatal(err)
	}
	if n, _ := kw.DocCount(); n != 0 {
		t.Errorf("keyword index still holds %d pages", n)
	}
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := f.addPDF(t, "a.pdf", samplePages())
	idx, _, err := f.indexer.Ingest(ctx, []string{path}, nil)
	if err != nil {
		t.Fatal(err)
	}

	next, err := f.indexer.Remove(ctx, path, idx)
	if err != nil {
		t.Fatal(err)
	}
	if next.Len() != 0 || idx.Len() != 1 {
		t.Error("Remove should return a new index without the entry")
	}
	loaded, _ := f.store.Load()
	if loaded.Len() != 0 {
		t.Error("removal not saved")
	}
	if _, err := f.indexer.Remove(ctx, path, next); !errors.Is(err, corpus.ErrNotFound) {
		t.Errorf("second remove: %v", err)
	}
}

func TestPruneAndReindex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.addPDF(t, "a.pdf", samplePages())
	b := f.addPDF(t, "b.pdf", samplePages())
	idx, _, err := f.indexer.Ingest(ctx, []string{a, b}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(a); err != nil {
		t.Fatal(err)
	}
	pruned, report, err := f.indexer.Prune(ctx, idx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Removed) != 1 || report.Removed[0] != a || pruned.Len() != 1 {
		t.Errorf("prune report: %+v", report)
	}

	if err := os.Remove(b); err != nil {
		t.Fatal(err)
	}
	next, report, err := f.indexer.Reindex(ctx, b, pruned)
	if err != nil {
		t.Fatal(err)
	}
	if next.Len() != 0 || len(report.Removed) != 1 {
		t.Errorf("reindex of a deleted file should remove it: %+v", report)
	}
	same, _, err := f.indexer.Reindex(ctx, b, next)
	if err != nil || same != next {
		t.Errorf("reindex of an unknown missing file should be a no-op: %v", err)
	}
}

func TestIngest_cancelled(t *testing.T) {
	f := newFixture(t)
	path := f.addPDF(t, "a.pdf", samplePages())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	idx, _, err := f.indexer.Ingest(ctx, []string{path}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if idx.Len() != 0 {
		t.Error("nothing should be indexed")
	}
}

func TestChunker(t *testing.T) {
	c := NewChunker(2.5)
	words := []docparse.Word{
		{Text: "b", X: 30, Y: 100, Width: 5, Height: 10},
		{Text: "a", X: 10, Y: 102, Width: 5, Height: 10},
		{Text: "c", X: 10, Y: 97, Width: 5, Height: 10},
		{Text: "d", X: 10, Y: 60, Width: 5, Height: 10},
	}
	chunks := c.Chunk(words, 100, 200)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks: %+v", len(chunks), chunks)
	}
	// a (102) starts the line; b (100) joins; c (97) is 5 units below a
	if chunks[0].Text != "a b" || chunks[1].Text != "c" || chunks[2].Text != "d" {
		t.Errorf("chunks = %q %q %q", chunks[0].Text, chunks[1].Text, chunks[2].Text)
	}
	if c.Chunk(nil, 100, 100) != nil {
		t.Error("no words should give no chunks")
	}
}

func TestNormalize(t *testing.T) {
	r := Normalize(50, 150, 100, 50, 200, 400)
	if r.X != 0.25 || r.Y != 0.5 || r.Width != 0.5 || r.Height != 0.125 {
		t.Errorf("Normalize = %+v", r)
	}
	if raw := Normalize(1, 2, 3, 4, 0, 0); raw.X != 1 || raw.Height != 4 {
		t.Errorf("degenerate page: %+v", raw)
	}
}

func TestPreprocess(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  hello   world \n", "hello world"},
		{"a\x00b� c", "ab c"},
		{"\t\n", ""},
	}
	for _, tt := range tests {
		if got := Preprocess(tt.in); got != tt.want {
			t.Errorf("Preprocess(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"a.pdf", "B.PDF", "notes.txt", "sub/c.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, p), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	flat, err := ExpandPaths([]string{dir, "/elsewhere/x.pdf"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(flat) != 3 {
		t.Errorf("non-recursive: %v", flat)
	}
	deep, err := ExpandPaths([]string{dir}, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(deep) != 3 {
		t.Errorf("recursive: %v", deep)
	}
}

func TestUnitEmbeddings(t *testing.T) {
	f := newFixture(t)
	path := f.addPDF(t, "a.pdf", samplePages())
	idx, _, err := f.indexer.Ingest(context.Background(), []string{path}, nil)
	if err != nil {
		t.Fatal(err)
	}
	doc, _ := idx.Get(path)
	for _, c := range doc.Pages[0].TextChunks {
		if n := utils.Dot(c.Embedding, c.Embedding); n < 0.9999 || n > 1.0001 {
			t.Errorf("embedding norm² = %v", n)
		}
	}
}
