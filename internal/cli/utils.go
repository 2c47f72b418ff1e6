// Package cli formats lens command output.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/lens/internal/indexer"
	"github.com/hyperjump/lens/internal/models"
	"github.com/hyperjump/lens/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat returns the format named s.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	mode := ""
	if response.Lexical {
		mode = " (keyword match, no text model)"
	}
	fmt.Fprintf(w, "\nFound %d pages in %dms%s\n\n", response.Total, response.QueryTime, mode)
	for i, r := range response.Results {
		writeOneResult(w, i+1, r)
	}
	return nil
}

func writeOneResult(w io.Writer, rank int, r *models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "%d. %s (page %d)\n", rank, r.DocumentPath, r.PageNumber)
	fmt.Fprintf(w, "   Score: %.4f (Text: %.4f, Image: %.4f) | Highlights: %d\n",
		r.Score, r.TextScore, r.ImageScore, len(r.Highlights))
	if r.Snippet != "" {
		fmt.Fprintf(w, "\n   %s\n", strings.ReplaceAll(r.Snippet, "\n", "\n   "))
	}
	fmt.Fprintln(w)
}

// WriteCaptureOutcome writes the recognized text, regions and results of one capture.
func WriteCaptureOutcome(w io.Writer, outcome *models.CaptureOutcome, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, outcome)
	}
	c := outcome.Capture
	fmt.Fprintf(w, "Capture %s (hash %s)\n", c.ID, c.Hash)
	photos, texts := countRegions(outcome.Regions)
	fmt.Fprintf(w, "Regions: %d photo, %d text\n", photos, texts)
	if outcome.Reused {
		fmt.Fprintln(w, "Text reused from an earlier identical capture")
	}
	if c.Text != "" {
		fmt.Fprintf(w, "\n%s\n", c.Text)
	}
	if len(outcome.Results) == 0 {
		fmt.Fprintln(w, "\nNo matching pages")
		return nil
	}
	return WriteSearchResults(w, &models.SearchResponse{Results: outcome.Results, Total: len(outcome.Results)}, OutputText)
}

func countRegions(regions []models.Region) (photos, texts int) {
	for _, r := range regions {
		if r.Kind == models.RegionPhoto {
			photos++
		} else {
			texts++
		}
	}
	return photos, texts
}

// WriteRegions writes segmentation output, one region per line.
func WriteRegions(w io.Writer, regions []models.Region, format OutputFormat) error {
	if format == OutputJSON {
		if regions == nil {
			regions = []models.Region{}
		}
		return WriteJSON(w, regions)
	}
	for _, r := range regions {
		b := r.Bounds
		fmt.Fprintf(w, "%-5s x=%d y=%d w=%d h=%d\n", r.Kind, b.Min.X, b.Min.Y, b.Dx(), b.Dy())
	}
	return nil
}

// WriteDocuments writes indexed document summaries.
func WriteDocuments(w io.Writer, docs []models.DocumentSummary, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []models.DocumentSummary{}
		}
		return WriteJSON(w, docs)
	}
	for _, d := range docs {
		fmt.Fprintf(w, "%s\n   pages: %d, text chunks: %d, images: %d, modified: %s\n",
			d.Path, d.Pages, d.TextChunks, d.ImageChunks, d.LastModified.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "%d documents\n", len(docs))
	return nil
}

// WriteIngestReport writes the outcome of an ingest, remove or prune run.
func WriteIngestReport(w io.Writer, report indexer.IngestReport, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, report)
	}
	for _, p := range report.Indexed {
		fmt.Fprintf(w, "indexed  %s\n", p)
	}
	for _, p := range report.Removed {
		fmt.Fprintf(w, "removed  %s\n", p)
	}
	for _, f := range report.Failed {
		fmt.Fprintf(w, "failed   %s: %s\n", f.Path, f.Error)
	}
	fmt.Fprintf(w, "%d indexed, %d unchanged, %d missing, %d failed, %d removed\n",
		len(report.Indexed), len(report.Skipped), len(report.Missing), len(report.Failed), len(report.Removed))
	return nil
}

// WriteCaptures writes capture history entries, newest first.
func WriteCaptures(w io.Writer, captures []*models.Capture, format OutputFormat) error {
	if format == OutputJSON {
		if captures == nil {
			captures = []*models.Capture{}
		}
		return WriteJSON(w, captures)
	}
	for _, c := range captures {
		fmt.Fprintf(w, "%s  %s  photos=%d  %q\n",
			c.CreatedAt.Local().Format("2006-01-02 15:04:05"), c.ID, c.PhotoCount, TruncateWords(c.Text, 8))
		if c.TopPath != "" {
			fmt.Fprintf(w, "    top: %s p.%d (%.4f)\n", c.TopPath, c.TopPage, c.TopScore)
		}
	}
	return nil
}

// Truncate shortens s to maxLen characters and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	return utils.Truncate(s, maxLen)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
