package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/lens/internal/imagehash"
	"github.com/hyperjump/lens/internal/models"
)

// similarScanLimit bounds how many recent captures FindSimilar compares against.
const similarScanLimit = 500

// SQLiteCaptureStore implements CaptureStore using SQLite.
type SQLiteCaptureStore struct {
	db *sql.DB
}

// NewSQLiteCaptureStore opens or creates the history database at dbPath and initializes the
// schema. Parent directories are created if they do not exist.
func NewSQLiteCaptureStore(dbPath string) (*SQLiteCaptureStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCaptureStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS captures (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		hash TEXT NOT NULL,
		text TEXT NOT NULL,
		photo_count INTEGER NOT NULL DEFAULT 0,
		top_path TEXT,
		top_page INTEGER,
		top_score REAL
	);

	CREATE INDEX IF NOT EXISTS idx_captures_created_at ON captures(created_at);
	CREATE INDEX IF NOT EXISTS idx_captures_hash ON captures(hash);
	`
	_, err := db.Exec(schema)
	return err
}

// Record inserts a capture. A zero CreatedAt is set to now.
func (s *SQLiteCaptureStore) Record(ctx context.Context, c *models.Capture) error {
	if c.ID == "" {
		return fmt.Errorf("capture id cannot be empty")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO captures (id, created_at, hash, text, photo_count, top_path, top_page, top_score)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CreatedAt, c.Hash, c.Text, c.PhotoCount, nullString(c.TopPath), c.TopPage, c.TopScore,
	)
	if err != nil {
		return fmt.Errorf("failed to record capture: %w", err)
	}
	return nil
}

// FindSimilar compares hash against recent captures, newest first.
func (s *SQLiteCaptureStore) FindSimilar(ctx context.Context, hash string, minSimilarity float64) (*models.Capture, error) {
	if hash == "" {
		return nil, nil
	}
	recent, err := s.Recent(ctx, similarScanLimit)
	if err != nil {
		return nil, err
	}
	for _, c := range recent {
		if imagehash.Similarity(hash, c.Hash) >= minSimilarity {
			return c, nil
		}
	}
	return nil, nil
}

// Get returns a capture by ID.
func (s *SQLiteCaptureStore) Get(ctx context.Context, id string) (*models.Capture, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, hash, text, photo_count, top_path, top_page, top_score
		 FROM captures WHERE id = ?`, id)
	c, err := scanCapture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCaptureNotFound, id)
	}
	return c, err
}

// Recent returns at most limit captures, newest first.
func (s *SQLiteCaptureStore) Recent(ctx context.Context, limit int) ([]*models.Capture, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, hash, text, photo_count, top_path, top_page, top_score
		 FROM captures ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []*models.Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		captures = append(captures, c)
	}
	return captures, rows.Err()
}

// Count returns the number of recorded captures.
func (s *SQLiteCaptureStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM captures").Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteCaptureStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCapture(r scanner) (*models.Capture, error) {
	var (
		c       models.Capture
		topPath sql.NullString
		topPage sql.NullInt64
		score   sql.NullFloat64
	)
	if err := r.Scan(&c.ID, &c.CreatedAt, &c.Hash, &c.Text, &c.PhotoCount, &topPath, &topPage, &score); err != nil {
		return nil, err
	}
	c.TopPath = topPath.String
	c.TopPage = int(topPage.Int64)
	c.TopScore = score.Float64
	return &c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
