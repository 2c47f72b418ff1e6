package models

// Highlight kinds.
const (
	HighlightText  = "text"
	HighlightImage = "image"
)

// Highlight marks a region of a page as relevant to a query.
type Highlight struct {
	Bounds Rect   `json:"bounds"`
	Kind   string `json:"kind"`
}

// SearchResult represents a single scored page.
type SearchResult struct {
	DocumentPath string      `json:"document_path"`
	PageNumber   int         `json:"page_number"`
	Score        float64     `json:"score"`
	TextScore    float64     `json:"text_score"`
	ImageScore   float64     `json:"image_score"`
	Snippet      string      `json:"snippet"`
	Highlights   []Highlight `json:"highlights"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query,omitempty"`
	// Lexical is set when results were scored by the keyword index instead of embeddings.
	Lexical bool `json:"lexical,omitempty"`
}
