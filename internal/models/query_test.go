package models

import "testing"

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *SearchQuery
		wantErr bool
		wantN   int
	}{
		{"empty query", &SearchQuery{Text: ""}, true, 0},
		{"sets default top_n", &SearchQuery{Text: "x"}, false, 8},
		{"caps top_n", &SearchQuery{Text: "x", TopN: 500}, false, 100},
		{"keeps explicit top_n", &SearchQuery{Text: "x", TopN: 3}, false, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate(8, 100)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.query.TopN != tt.wantN {
				t.Errorf("TopN = %d, want %d", tt.query.TopN, tt.wantN)
			}
		})
	}
}

func TestRect_Union(t *testing.T) {
	a := Rect{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.1}
	b := Rect{X: 0.25, Y: 0.05, Width: 0.2, Height: 0.1}
	u := a.Union(b)
	if u.X != 0.1 || u.Y != 0.05 {
		t.Errorf("origin = (%f,%f)", u.X, u.Y)
	}
	if d := u.X + u.Width - 0.45; d > 1e-9 || d < -1e-9 {
		t.Errorf("right edge = %f", u.X+u.Width)
	}
}

func TestDocumentIndex_Summary(t *testing.T) {
	d := &DocumentIndex{Path: "/a.pdf", Pages: []PageIndex{
		{PageNumber: 1, TextChunks: make([]TextChunk, 3), ImageChunks: make([]ImageChunk, 1)},
		{PageNumber: 2, TextChunks: make([]TextChunk, 2)},
	}}
	s := d.Summary()
	if s.Pages != 2 || s.TextChunks != 5 || s.ImageChunks != 1 {
		t.Errorf("summary = %+v", s)
	}
}

func TestPageIndex_Embedded(t *testing.T) {
	p := &PageIndex{
		TextChunks:  []TextChunk{{Text: ""}, {Text: "a", Embedding: []float32{1}}},
		ImageChunks: []ImageChunk{{}},
	}
	text, img := p.Embedded()
	if !text || img {
		t.Errorf("Embedded() = %v, %v", text, img)
	}

	photoOnly := &PageIndex{ImageChunks: []ImageChunk{{}, {Embedding: []float32{0, 1}}}}
	if text, img := photoOnly.Embedded(); text || !img {
		t.Errorf("photo-only Embedded() = %v, %v", text, img)
	}
	if text, img := (&PageIndex{}).Embedded(); text || img {
		t.Errorf("empty page Embedded() = %v, %v", text, img)
	}
}
