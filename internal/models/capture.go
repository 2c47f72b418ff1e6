package models

import (
	"image"
	"time"
)

// Capture is a recorded capture-and-search run.
type Capture struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Hash       string    `json:"hash"`
	Text       string    `json:"text"`
	PhotoCount int       `json:"photo_count"`
	TopPath    string    `json:"top_path,omitempty"`
	TopPage    int       `json:"top_page,omitempty"`
	TopScore   float64   `json:"top_score,omitempty"`
}

// CaptureOutcome is the full result of a capture-and-search run.
type CaptureOutcome struct {
	Capture *Capture        `json:"capture"`
	Regions []Region        `json:"regions"`
	Photos  []image.Image   `json:"-"`
	Results []*SearchResult `json:"results"`
	// Reused is set when the OCR text was taken from an earlier near-identical capture.
	Reused bool `json:"reused"`
}

// Region kinds.
const (
	RegionPhoto = "photo"
	RegionText  = "text"
)

// Region is a classified rectangle in source-image pixel coordinates.
type Region struct {
	Kind   string          `json:"kind"`
	Bounds image.Rectangle `json:"bounds"`
}
