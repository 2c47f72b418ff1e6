// Package main is the lens CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/lens/internal/capture"
	"github.com/hyperjump/lens/internal/cli"
	"github.com/hyperjump/lens/internal/config"
	"github.com/hyperjump/lens/internal/corpus"
	"github.com/hyperjump/lens/internal/docparse"
	"github.com/hyperjump/lens/internal/embedding"
	"github.com/hyperjump/lens/internal/indexer"
	"github.com/hyperjump/lens/internal/keyword"
	"github.com/hyperjump/lens/internal/ocr"
	"github.com/hyperjump/lens/internal/search"
	"github.com/hyperjump/lens/internal/segment"
	"github.com/hyperjump/lens/internal/storage"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/lens/config.yaml"

// Environment overrides.
const (
	envConfig     = "LENS_CONFIG"
	envRuntimeLib = "LENS_ONNXRUNTIME_LIB"
)

// configPathDefault returns LENS_CONFIG when set, else the built-in default path.
func configPathDefault() string {
	if p := strings.TrimSpace(os.Getenv(envConfig)); p != "" {
		return p
	}
	return defaultConfigPath
}

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory takes precedence so that running from a project directory uses its config.
// A missing default config yields the built-in defaults. Returns the config and the path
// that was actually loaded, which is empty when defaults were used.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				applyEnv(cfg)
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			applyEnv(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	applyEnv(cfg)
	return cfg, path, nil
}

func applyEnv(cfg *config.Config) {
	if lib := strings.TrimSpace(os.Getenv(envRuntimeLib)); lib != "" {
		cfg.Embedding.RuntimeLibrary = lib
	}
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "serve", "server":
		runServe()
	case "ingest", "index":
		runIngest()
	case "remove", "delete":
		runRemove()
	case "prune":
		runPrune()
	case "list":
		runList()
	case "search":
		runSearch()
	case "capture":
		runCapture()
	case "segment":
		runSegment()
	case "history":
		runHistory()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("lens version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Embedder  *embedding.Engine
	Keyword   *keyword.BleveIndex
	Store     *corpus.Store
	Snapshot  *corpus.Snapshot
	Indexer   *indexer.Indexer
	Search    *search.Engine
	Segmenter *segment.Segmenter
	Reader    ocr.Reader
	Pipeline  *capture.Pipeline
	Captures  *capture.Service
	History   *storage.SQLiteCaptureStore
}

// Close releases every component that holds a file, model or process resource.
func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
	if c.History != nil {
		_ = c.History.Close()
	}
	if closer, ok := c.Reader.(io.Closer); ok {
		_ = closer.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}

	embedder, err := embedding.NewONNXEngine(embedding.ONNXConfig{
		TextModelPath:  cfg.Embedding.TextModelPath,
		ImageModelPath: cfg.Embedding.ImageModelPath,
		TokenizerPath:  cfg.Embedding.TokenizerPath,
		RuntimeLibrary: cfg.Embedding.RuntimeLibrary,
		MaxTokens:      cfg.Embedding.MaxTokens,
		ImageSize:      cfg.Embedding.ImageSize,
	}, embedding.WithLogger(logger), embedding.WithCacheSize(cfg.Embedding.CacheSize))
	if err != nil {
		logger.Warn("embedding models unavailable, falling back to keyword matching", zap.Error(err))
		if embedder, err = embedding.NewEngine(nil, nil, nil, embedding.WithLogger(logger)); err != nil {
			return nil, err
		}
	} else {
		logger.Info("embedding models loaded",
			zap.Int("dimensions", embedder.Dimensions()),
			zap.Bool("image_model", embedder.HasImage()))
	}
	c.Embedder = embedder

	if c.Keyword, err = keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	c.Store = corpus.NewStore(cfg.Storage.IndexPath, corpus.WithStoreLogger(logger))
	idx, err := c.Store.Load()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load corpus index: %w", err)
	}
	c.Snapshot = corpus.NewSnapshot(idx)

	c.Indexer = indexer.NewIndexer(
		docparse.NewPDFParser(docparse.WithLogger(logger)),
		embedder,
		c.Store,
		indexer.WithLogger(logger),
		indexer.WithKeywordIndex(c.Keyword),
		indexer.WithLineTolerance(cfg.Index.LineTolerance),
		indexer.WithMinImageSize(cfg.Index.MinImageSize),
	)
	if n, countErr := c.Keyword.DocCount(); countErr == nil && n == 0 && idx.PageCount() > 0 {
		logger.Info("keyword index empty, rebuilding from corpus", zap.Int("documents", idx.Len()))
		if err := c.Indexer.Rebuild(context.Background(), idx); err != nil {
			logger.Warn("keyword index rebuild failed", zap.Error(err))
		}
	}

	c.Search = search.NewEngine(embedder, &cfg.Search,
		search.WithKeywordIndex(c.Keyword),
		search.WithLogger(logger),
	)

	if c.History, err = storage.NewSQLiteCaptureStore(cfg.Storage.HistoryPath); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize capture history: %w", err)
	}

	c.Segmenter = segment.New(
		segment.WithProcessingWidth(cfg.Segment.ProcessingWidth),
		segment.WithMinTextArea(cfg.Segment.MinTextArea),
		segment.WithLogger(logger),
	)
	reader, err := ocr.New(cfg.OCR, logger)
	if err != nil {
		logger.Warn("text recognition unavailable, capture disabled", zap.Error(err))
		return c, nil
	}
	c.Reader = reader
	c.Pipeline = capture.NewPipeline(c.Segmenter, reader,
		capture.WithPadding(cfg.Capture.Padding),
		capture.WithMinOCRHeight(cfg.OCR.MinHeight),
		capture.WithPipelineLogger(logger),
	)
	c.Captures = capture.NewService(c.Pipeline, c.Search, c.Snapshot,
		capture.WithHistory(c.History, cfg.Capture.DuplicateSimilarity),
		capture.WithTopN(cfg.Search.TopN),
		capture.WithLogger(logger),
	)
	return c, nil
}

// outputFormat parses the --output flag value or exits.
func outputFormat(s string) cli.OutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func printUsage() {
	fmt.Println(`lens - capture indexing and retrieval over local PDFs

Usage:
  lens serve [flags]                    Start the HTTP server and directory watcher
  lens ingest [flags] <pdf|dir>...      Index PDF files (directories are walked)
  lens remove [flags] <pdf>             Drop a document from the index
  lens prune [flags]                    Drop documents whose files no longer exist
  lens list [flags]                     List indexed documents
  lens search [flags] <text>            Rank indexed pages against text and/or images
  lens capture [flags] <image>          Segment, recognize and search a screen capture
  lens segment [flags] <image>          Print the photo and text regions of an image
  lens history [flags] [id]             Show recent captures, or one by ID
  lens status [flags]                   Show index, history and storage status
  lens version                          Show version
  lens help                             Show this help

Common Flags:
  --config string    Config file path (default: $LENS_CONFIG or /usr/local/etc/lens/config.yaml)
  --output string    Output format: text or json (default: text)

Serve Flags:
  --debug            Enable debug logging

Ingest Flags:
  --recursive        Walk directories recursively (default: true)

Search Flags:
  --image string     Image file to search with (repeatable)
  --limit int        Number of results (default from config)
  --server string    Server URL; empty searches the local index directly

Capture Flags:
  --out string       Directory to write cropped photo regions to

History Flags:
  --limit int        Number of captures (default: 20)

Status Flags:
  --server string    Server URL; empty reads local storage directly

Environment:
  LENS_CONFIG            Config file path
  LENS_ONNXRUNTIME_LIB   ONNX Runtime shared library path

Direct commands open the keyword index and capture history; stop "lens serve" first,
or use --server where available.

Examples:
  lens serve
  lens ingest ~/Documents/papers
  lens search "quarterly revenue"
  lens search --image chart.png revenue by region
  lens capture --out /tmp/crops screenshot.png
  lens search --output json "query"`)
}
