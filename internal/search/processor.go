package search

import (
	"strings"

	"github.com/hyperjump/lens/internal/models"
)

// ProcessQuery collapses whitespace in the query text, then validates it and clamps TopN.
func ProcessQuery(query *models.SearchQuery, defaultTopN, maxTopN int) error {
	query.Text = strings.Join(strings.Fields(query.Text), " ")
	return query.Validate(defaultTopN, maxTopN)
}
