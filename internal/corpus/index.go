// Package corpus holds the immutable page-level index of ingested documents and its JSON store.
package corpus

import (
	"errors"
	"time"

	"github.com/hyperjump/lens/internal/fileid"
	"github.com/hyperjump/lens/internal/models"
)

// ErrNotFound is returned when a path has no index entry.
var ErrNotFound = errors.New("document not found in index")

// Index is an immutable set of document entries keyed by path, case-insensitive.
// Entries keep insertion order; a replaced entry moves to the end.
// Mutating methods return a new Index and leave the receiver untouched.
type Index struct {
	docs  []*models.DocumentIndex
	byKey map[string]int
}

// Empty returns an index with no documents.
func Empty() *Index {
	return &Index{byKey: map[string]int{}}
}

// New builds an index from docs. Later duplicates of a path replace earlier ones.
func New(docs []*models.DocumentIndex) *Index {
	idx := Empty()
	for _, d := range docs {
		if d == nil {
			continue
		}
		idx = idx.With(d)
	}
	return idx
}

// Len returns the number of documents.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.docs)
}

// Get returns the entry for path.
func (x *Index) Get(path string) (*models.DocumentIndex, bool) {
	if x == nil {
		return nil, false
	}
	i, ok := x.byKey[fileid.Key(path)]
	if !ok {
		return nil, false
	}
	return x.docs[i], true
}

// LastModified returns the stored modification time for path.
func (x *Index) LastModified(path string) (time.Time, bool) {
	d, ok := x.Get(path)
	if !ok {
		return time.Time{}, false
	}
	return d.LastModified, true
}

// Documents returns the entries in enumeration order. Callers must not modify them.
func (x *Index) Documents() []*models.DocumentIndex {
	if x == nil {
		return nil
	}
	out := make([]*models.DocumentIndex, len(x.docs))
	copy(out, x.docs)
	return out
}

// PageCount returns the total number of pages.
func (x *Index) PageCount() int {
	n := 0
	for _, d := range x.Documents() {
		n += len(d.Pages)
	}
	return n
}

// PageText returns the full text of a 1-based page.
func (x *Index) PageText(path string, page int) (string, error) {
	d, ok := x.Get(path)
	if !ok {
		return "", ErrNotFound
	}
	for i := range d.Pages {
		if d.Pages[i].PageNumber == page {
			return d.Pages[i].Text, nil
		}
	}
	return "", ErrNotFound
}

// With returns a copy of x where doc replaces any entry for the same path.
func (x *Index) With(doc *models.DocumentIndex) *Index {
	out := x.without(doc.Path)
	out.byKey[fileid.Key(doc.Path)] = len(out.docs)
	out.docs = append(out.docs, doc)
	return out
}

// Without returns a copy of x with the entry for path removed.
// The second result reports whether an entry existed.
func (x *Index) Without(path string) (*Index, bool) {
	_, ok := x.Get(path)
	return x.without(path), ok
}

func (x *Index) without(path string) *Index {
	key := fileid.Key(path)
	out := &Index{
		docs:  make([]*models.DocumentIndex, 0, x.Len()+1),
		byKey: make(map[string]int, x.Len()+1),
	}
	if x == nil {
		return out
	}
	for _, d := range x.docs {
		k := fileid.Key(d.Path)
		if k == key {
			continue
		}
		out.byKey[k] = len(out.docs)
		out.docs = append(out.docs, d)
	}
	return out
}
