// Package models defines core data structures for indexed documents, captures, and search results.
package models

import "time"

// Rect is a rectangle in page-fraction coordinates with a top-left origin.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Union returns the smallest rect covering r and o.
func (r Rect) Union(o Rect) Rect {
	x0, y0 := min(r.X, o.X), min(r.Y, o.Y)
	x1, y1 := max(r.X+r.Width, o.X+o.Width), max(r.Y+r.Height, o.Y+o.Height)
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// TextChunk groups the words of one visual line on a page.
// Embedding is nil when the line has no usable text.
type TextChunk struct {
	Text      string    `json:"text"`
	Bounds    Rect      `json:"bounds"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// ImageChunk is one embedded raster image on a page.
type ImageChunk struct {
	Bounds    Rect      `json:"bounds"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// PageIndex is the indexed content of one page.
type PageIndex struct {
	PageNumber  int          `json:"page_number"`
	Width       float64      `json:"page_width"`
	Height      float64      `json:"page_height"`
	Text        string       `json:"text"`
	TextChunks  []TextChunk  `json:"text_chunks"`
	ImageChunks []ImageChunk `json:"image_chunks"`
}

// Embedded reports, for text and image chunks separately, whether any chunk of that kind
// carries an embedding.
func (p *PageIndex) Embedded() (text, image bool) {
	for i := range p.TextChunks {
		if len(p.TextChunks[i].Embedding) > 0 {
			text = true
			break
		}
	}
	for i := range p.ImageChunks {
		if len(p.ImageChunks[i].Embedding) > 0 {
			image = true
			break
		}
	}
	return text, image
}

// DocumentIndex is the index entry of one document, keyed by Path.
type DocumentIndex struct {
	Path         string      `json:"path"`
	LastModified time.Time   `json:"last_modified"`
	Pages        []PageIndex `json:"pages"`
}

// DocumentSummary describes an indexed document without its chunks.
type DocumentSummary struct {
	Path         string    `json:"path"`
	LastModified time.Time `json:"last_modified"`
	Pages        int       `json:"pages"`
	TextChunks   int       `json:"text_chunks"`
	ImageChunks  int       `json:"image_chunks"`
}

// Summary returns the document's chunk counts.
func (d *DocumentIndex) Summary() DocumentSummary {
	s := DocumentSummary{Path: d.Path, LastModified: d.LastModified, Pages: len(d.Pages)}
	for i := range d.Pages {
		s.TextChunks += len(d.Pages[i].TextChunks)
		s.ImageChunks += len(d.Pages[i].ImageChunks)
	}
	return s
}
