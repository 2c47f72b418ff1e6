package models

import "fmt"

// SearchQuery represents a text search request.
type SearchQuery struct {
	Text string `json:"text"`
	TopN int    `json:"top_n,omitempty"`
}

// Validate ensures the query has text and clamps TopN into [1, maxTopN], using defaultTopN when unset.
func (q *SearchQuery) Validate(defaultTopN, maxTopN int) error {
	if q.Text == "" {
		return fmt.Errorf("query text cannot be empty")
	}
	if q.TopN <= 0 {
		q.TopN = defaultTopN
	}
	if maxTopN > 0 && q.TopN > maxTopN {
		q.TopN = maxTopN
	}
	return nil
}
