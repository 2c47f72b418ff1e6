package corpus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/lens/internal/models"
)

func doc(path string, pages ...string) *models.DocumentIndex {
	d := &models.DocumentIndex{Path: path, LastModified: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	for i, text := range pages {
		d.Pages = append(d.Pages, models.PageIndex{PageNumber: i + 1, Text: text})
	}
	return d
}

func TestIndex_caseInsensitiveKeys(t *testing.T) {
	idx := Empty().With(doc("/Docs/Report.pdf", "one"))
	got, ok := idx.Get("/docs/report.PDF")
	require.True(t, ok)
	assert.Equal(t, "/Docs/Report.pdf", got.Path)

	idx2 := idx.With(doc("/docs/report.pdf", "two"))
	assert.Equal(t, 1, idx2.Len())
	text, err := idx2.PageText("/DOCS/REPORT.PDF", 1)
	require.NoError(t, err)
	assert.Equal(t, "two", text)
}

func TestIndex_copyOnWrite(t *testing.T) {
	base := Empty().With(doc("/a.pdf", "a")).With(doc("/b.pdf", "b"))
	added := base.With(doc("/c.pdf", "c"))
	removed, ok := base.Without("/a.pdf")

	require.True(t, ok)
	assert.Equal(t, 2, base.Len(), "receiver must not change")
	assert.Equal(t, 3, added.Len())
	assert.Equal(t, 1, removed.Len())
	_, still := base.Get("/a.pdf")
	assert.True(t, still)

	_, existed := base.Without("/missing.pdf")
	assert.False(t, existed)
}

func TestIndex_replacedEntryMovesToEnd(t *testing.T) {
	idx := Empty().With(doc("/a.pdf")).With(doc("/b.pdf")).With(doc("/a.pdf"))
	docs := idx.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, "/b.pdf", docs[0].Path)
	assert.Equal(t, "/a.pdf", docs[1].Path)
}

func TestIndex_PageText_notFound(t *testing.T) {
	idx := Empty().With(doc("/a.pdf", "x"))
	_, err := idx.PageText("/a.pdf", 5)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = idx.PageText("/b.pdf", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIndex_nilSafe(t *testing.T) {
	var idx *Index
	assert.Equal(t, 0, idx.Len())
	assert.Nil(t, idx.Documents())
	next := idx.With(doc("/a.pdf"))
	assert.Equal(t, 1, next.Len())
}

func TestSnapshot(t *testing.T) {
	s := NewSnapshot(nil)
	require.NotNil(t, s.Load())
	assert.Equal(t, 0, s.Load().Len())

	before := s.Load()
	s.Store(before.With(doc("/a.pdf")))
	assert.Equal(t, 0, before.Len(), "held snapshot stays consistent")
	assert.Equal(t, 1, s.Load().Len())
}
