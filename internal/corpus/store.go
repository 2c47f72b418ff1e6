package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/lens/internal/models"
)

// fileFormat is the on-disk layout of the index file.
type fileFormat struct {
	Documents []*models.DocumentIndex `json:"documents"`
}

// Store reads and writes the whole index as one indented JSON file.
type Store struct {
	path   string
	logger *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger for the store.
func WithStoreLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore returns a store backed by the file at path.
func NewStore(path string, opts ...StoreOption) *Store {
	s := &Store{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the index file location.
func (s *Store) Path() string { return s.path }

// Load reads the index file. A missing file yields an empty index.
func (s *Store) Load() (*Index, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("index file not found, starting empty", zap.String("path", s.path))
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse index: %w", err)
	}
	idx := New(f.Documents)
	s.logger.Debug("index loaded", zap.String("path", s.path), zap.Int("documents", idx.Len()))
	return idx, nil
}

// Save overwrites the index file with idx. The file is replaced atomically via rename.
func (s *Store) Save(idx *Index) error {
	f := fileFormat{Documents: idx.Documents()}
	if f.Documents == nil {
		f.Documents = []*models.DocumentIndex{}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace index: %w", err)
	}
	s.logger.Debug("index saved", zap.String("path", s.path), zap.Int("documents", idx.Len()))
	return nil
}
