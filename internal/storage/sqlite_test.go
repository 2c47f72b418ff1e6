package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/lens/internal/models"
)

func newStore(t *testing.T) *SQLiteCaptureStore {
	t.Helper()
	store, err := NewSQLiteCaptureStore(filepath.Join(t.TempDir(), "sub", "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteCaptureStore_RecordAndRecent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"c1", "c2", "c3"} {
		c := &models.Capture{
			ID:         id,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			Hash:       "00000000000000ff",
			Text:       "text " + id,
			PhotoCount: i,
		}
		if id == "c2" {
			c.TopPath, c.TopPage, c.TopScore = "/docs/a.pdf", 4, 0.83
		}
		if err := store.Record(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Count = %d, %v", n, err)
	}
	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].ID != "c3" || recent[1].ID != "c2" {
		t.Fatalf("Recent = %+v", recent)
	}
	if recent[1].TopPath != "/docs/a.pdf" || recent[1].TopPage != 4 || recent[1].TopScore != 0.83 {
		t.Errorf("top result not stored: %+v", recent[1])
	}
	if recent[0].TopPath != "" {
		t.Errorf("capture without results should have no top path: %q", recent[0].TopPath)
	}
	if !recent[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("CreatedAt = %v", recent[0].CreatedAt)
	}

	got, err := store.Get(ctx, "c1")
	if err != nil || got.Text != "text c1" {
		t.Errorf("Get = %+v, %v", got, err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrCaptureNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrCaptureNotFound", err)
	}
}

func TestSQLiteCaptureStore_RecordValidation(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if err := store.Record(ctx, &models.Capture{}); err == nil {
		t.Error("expected error for empty id")
	}
	c := &models.Capture{ID: "x"}
	if err := store.Record(ctx, c); err != nil {
		t.Fatal(err)
	}
	if c.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if err := store.Record(ctx, &models.Capture{ID: "x"}); err == nil {
		t.Error("duplicate id should fail")
	}
}

func TestSQLiteCaptureStore_FindSimilar(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if err := store.Record(ctx, &models.Capture{ID: "a", Hash: "ffffffffffffffff", Text: "first"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		hash   string
		min    float64
		wantID string
	}{
		{"identical", "ffffffffffffffff", 0.95, "a"},
		{"two bits off", "fffffffffffffffc", 0.95, "a"},
		{"eight bits off", "ffffffffffffff00", 0.95, ""},
		{"eight bits off, loose", "ffffffffffffff00", 0.85, "a"},
		{"empty hash", "", 0.5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.FindSimilar(ctx, tt.hash, tt.min)
			if err != nil {
				t.Fatal(err)
			}
			switch {
			case tt.wantID == "" && got != nil:
				t.Errorf("expected no match, got %q", got.ID)
			case tt.wantID != "" && (got == nil || got.ID != tt.wantID):
				t.Errorf("expected %q, got %+v", tt.wantID, got)
			}
		})
	}
}

func TestSQLiteCaptureStore_reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := NewSQLiteCaptureStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Record(context.Background(), &models.Capture{ID: "keep", Text: "t"}); err != nil {
		t.Fatal(err)
	}
	store.Close()

	store, err = NewSQLiteCaptureStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if n, _ := store.Count(context.Background()); n != 1 {
		t.Errorf("Count after reopen = %d, want 1", n)
	}
}
