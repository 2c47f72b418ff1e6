// Package config provides configuration loading and structs for the lens server.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	OCR       OCRConfig       `yaml:"ocr"`
	Capture   CaptureConfig   `yaml:"capture"`
	Segment   SegmentConfig   `yaml:"segment"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the corpus index, capture history and keyword index.
type StorageConfig struct {
	IndexPath        string `yaml:"index_path"`
	HistoryPath      string `yaml:"history_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// EmbeddingConfig holds ONNX encoder settings.
type EmbeddingConfig struct {
	TextModelPath  string `yaml:"text_model_path"`
	ImageModelPath string `yaml:"image_model_path"`
	TokenizerPath  string `yaml:"tokenizer_path"`
	RuntimeLibrary string `yaml:"runtime_library"`
	MaxTokens      int    `yaml:"max_tokens"`
	ImageSize      int    `yaml:"image_size"`
	CacheSize      int    `yaml:"cache_size"`
}

// OCRConfig selects and configures the text recognizer.
type OCRConfig struct {
	Engine        string   `yaml:"engine"` // "tesseract", "libtesseract" or "http"
	TesseractPath string   `yaml:"tesseract_path"`
	Languages     []string `yaml:"languages"`
	Endpoint      string   `yaml:"endpoint"`
	MaxRetries    int      `yaml:"max_retries"`
	TimeoutSecs   int      `yaml:"timeout_seconds"`
	MinHeight     int      `yaml:"min_height"`
}

// CaptureConfig holds capture pipeline settings.
type CaptureConfig struct {
	Padding             int     `yaml:"padding"`
	DuplicateSimilarity float64 `yaml:"duplicate_similarity"`
}

// SegmentConfig holds region segmentation settings.
type SegmentConfig struct {
	ProcessingWidth int `yaml:"processing_width"`
	MinTextArea     int `yaml:"min_text_area"`
}

// IndexConfig holds per-page indexing settings.
type IndexConfig struct {
	LineTolerance float64 `yaml:"line_tolerance"`
	MinImageSize  int     `yaml:"min_image_size"`
}

// SearchConfig holds scoring settings.
type SearchConfig struct {
	TopN               int     `yaml:"top_n"`
	MaxTopN            int     `yaml:"max_top_n"`
	HighlightThreshold float64 `yaml:"highlight_threshold"`
	SnippetLength      int     `yaml:"snippet_length"`
	TextWeight         float64 `yaml:"text_weight"`
	ImageWeight        float64 `yaml:"image_weight"`
}

// Weights returns the text and image fusion weights, non-negative and summing to 1.
// Negative weights count as zero. When only one weight is set and it is at most 1 the
// other takes the remainder; when neither is set the split is 0.7/0.3.
func (c *SearchConfig) Weights() (text, image float64) {
	text, image = math.Max(c.TextWeight, 0), math.Max(c.ImageWeight, 0)
	switch {
	case text == 0 && image == 0:
		return 0.7, 0.3
	case image == 0 && text <= 1:
		image = 1 - text
	case text == 0 && image <= 1:
		text = 1 - image
	}
	sum := text + image
	return text / sum, image / sum
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Storage.HistoryPath = expandPath(cfg.Storage.HistoryPath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	cfg.Embedding.TextModelPath = expandPath(cfg.Embedding.TextModelPath, configDir)
	cfg.Embedding.ImageModelPath = expandPath(cfg.Embedding.ImageModelPath, configDir)
	cfg.Embedding.TokenizerPath = expandPath(cfg.Embedding.TokenizerPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
