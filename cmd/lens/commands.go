package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/lens/internal/cli"
	"github.com/hyperjump/lens/internal/config"
	"github.com/hyperjump/lens/internal/corpus"
	"github.com/hyperjump/lens/internal/indexer"
	"github.com/hyperjump/lens/internal/models"
	"github.com/hyperjump/lens/internal/search"
	"github.com/hyperjump/lens/internal/segment"
	"github.com/hyperjump/lens/internal/server"
	"github.com/hyperjump/lens/internal/storage"
	"github.com/hyperjump/lens/internal/watcher"
	"github.com/hyperjump/lens/pkg/utils"
)

// setup loads config and builds the logger and components for a direct command.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, resolved, logger, components
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", configPathDefault(), "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (watch events, per-document indexing)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || *debug),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Watch.RecursiveOrDefault(),
		components.Indexer,
		components.Snapshot,
		watcher.WithLogger(logger),
		watcher.WithOnFlush(func(r indexer.IngestReport) {
			logger.Info("watch batch ingested",
				zap.Int("indexed", len(r.Indexed)),
				zap.Int("removed", len(r.Removed)),
				zap.Int("failed", len(r.Failed)))
		}),
	)
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}

	opts := []server.ServerOption{
		server.WithLogger(logger),
		server.WithHistory(components.History),
		server.WithWatch(watchSvc, resolvedConfigPath),
	}
	if components.Captures != nil {
		opts = append(opts, server.WithCaptureService(components.Captures))
	}
	srv := server.NewServer(cfg, components.Snapshot, components.Search, components.Indexer, opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		report, err := watchSvc.SyncExisting(gctx)
		if err != nil {
			logger.Warn("initial sync failed", zap.Error(err))
			return nil
		}
		logger.Info("initial sync done",
			zap.Int("indexed", len(report.Indexed)),
			zap.Int("unchanged", len(report.Skipped)),
			zap.Int("failed", len(report.Failed)))
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		stats := components.Embedder.CacheStats()
		logger.Info("Shutting down...",
			zap.Int("cached_embeddings", stats.Entries),
			zap.Uint64("cache_hits", stats.Hits),
			zap.Uint64("cache_misses", stats.Misses))
		watchSvc.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("serve stopped", zap.Error(err))
		os.Exit(1)
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", configPathDefault(), "config file path")
	recursive := fs.Bool("recursive", true, "walk directories recursively")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := outputFormat(*output)

	if fs.NArg() < 1 {
		fail("Usage: lens ingest [flags] <pdf|dir>...")
	}
	paths, err := indexer.ExpandPaths(fs.Args(), *recursive)
	if err != nil {
		fail("Failed to expand paths: %v", err)
	}

	_, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var report indexer.IngestReport
	err = components.Snapshot.Update(func(current *corpus.Index) (*corpus.Index, error) {
		next, r, err := components.Indexer.Ingest(ctx, paths, current)
		report = r
		return next, err
	})
	if werr := cli.WriteIngestReport(os.Stdout, report, format); werr != nil {
		fail("Output failed: %v", werr)
	}
	if err != nil {
		fail("Ingest failed: %v", err)
	}
}

func runRemove() {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	configPath := fs.String("config", configPathDefault(), "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fail("Usage: lens remove [flags] <pdf>")
	}
	_, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	for _, path := range fs.Args() {
		err := components.Snapshot.Update(func(current *corpus.Index) (*corpus.Index, error) {
			return components.Indexer.Remove(context.Background(), path, current)
		})
		if errors.Is(err, corpus.ErrNotFound) {
			fmt.Printf("Not indexed: %s\n", path)
			continue
		}
		if err != nil {
			fail("Removal failed: %v", err)
		}
		fmt.Printf("Document removed: %s\n", path)
	}
}

func runPrune() {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	configPath := fs.String("config", configPathDefault(), "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := outputFormat(*output)

	_, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	var report indexer.IngestReport
	err := components.Snapshot.Update(func(current *corpus.Index) (*corpus.Index, error) {
		next, r, err := components.Indexer.Prune(context.Background(), current)
		report = r
		return next, err
	})
	if err != nil {
		fail("Prune failed: %v", err)
	}
	if err := cli.WriteIngestReport(os.Stdout, report, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", configPathDefault(), "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := outputFormat(*output)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	// Listing only reads the index file, so it does not open models or the keyword index.
	idx, err := corpus.NewStore(cfg.Storage.IndexPath).Load()
	if err != nil {
		fail("Failed to load corpus index: %v", err)
	}
	docs := idx.Documents()
	summaries := make([]models.DocumentSummary, 0, len(docs))
	for _, d := range docs {
		summaries = append(summaries, d.Summary())
	}
	if err := cli.WriteDocuments(os.Stdout, summaries, format); err != nil {
		fail("Output failed: %v", err)
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: lens search [flags] <text>\n\n")
	fmt.Fprintf(fs.Output(), "Text is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Pages are ranked by text similarity, image similarity, or both when --image is given.
Without a text model the text side falls back to keyword matching with typo tolerance.

Examples:
  lens search quarterly revenue
  lens search "quarterly revenue"              # same as above
  lens search --image chart.png                # image-only search
  lens search --limit 3 --output json revenue
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchConfigPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func searchConfigPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultPath
}

// searchLimitDefaultFromConfig loads config at path and returns its top_n, or 8 when the
// config cannot be loaded.
func searchLimitDefaultFromConfig(path string) int {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil || cfg.Search.TopN <= 0 {
		return 8
	}
	return cfg.Search.TopN
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "lens search revenue -limit 3"
// would otherwise leave -limit unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])
	configPath := searchConfigPathFromArgs(searchArgs, configPathDefault())

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPathFlag := fs.String("config", configPathDefault(), "config file path")
	serverURL := fs.String("server", "", "server URL (empty = search the local index directly)")
	limit := fs.Int("limit", searchLimitDefaultFromConfig(configPath), "number of results")
	output := fs.String("output", "text", "output format: text or json")
	var images stringList
	fs.Var(&images, "image", "image file to search with (repeatable)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)
	format := outputFormat(*output)

	query := &models.SearchQuery{Text: buildSearchQuery(fs.Args()), TopN: *limit}
	if query.Text == "" && len(images) == 0 {
		printSearchUsage(fs)
		os.Exit(1)
	}

	if *serverURL != "" {
		if len(images) > 0 {
			fail("--image searches the local index; omit --server")
		}
		response, err := searchViaHTTP(*serverURL, query)
		if err != nil {
			fail("Search failed: %v", err)
		}
		if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
			fail("Output failed: %v", err)
		}
		return
	}

	photos := make([]image.Image, 0, len(images))
	for _, p := range images {
		img, err := loadImage(p)
		if err != nil {
			fail("%v", err)
		}
		photos = append(photos, img)
	}

	cfg, _, logger, components := setup(*configPathFlag, false)
	defer logger.Sync()
	defer components.Close()

	if query.Text != "" {
		if err := search.ProcessQuery(query, cfg.Search.TopN, cfg.Search.MaxTopN); err != nil {
			fail("Invalid query: %v", err)
		}
	}
	response, err := components.Search.Query(context.Background(), components.Snapshot.Load(), query.Text, photos, query.TopN)
	if err != nil {
		fail("Search failed: %v", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

func runCapture() {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	configPath := fs.String("config", configPathDefault(), "config file path")
	outDir := fs.String("out", "", "directory to write cropped photo regions to")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := outputFormat(*output)

	if fs.NArg() != 1 {
		fail("Usage: lens capture [flags] <image>")
	}
	img, err := loadImage(fs.Arg(0))
	if err != nil {
		fail("%v", err)
	}

	_, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	if components.Captures == nil {
		fail("Capture unavailable: no text recognizer could be started (see ocr settings)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	outcome, err := components.Captures.CaptureAndSearch(ctx, img)
	if err != nil {
		fail("Capture failed: %v", err)
	}
	if *outDir != "" {
		if err := writeCrops(*outDir, outcome.Capture.ID, outcome.Photos); err != nil {
			fail("%v", err)
		}
	}
	if err := cli.WriteCaptureOutcome(os.Stdout, outcome, format); err != nil {
		fail("Output failed: %v", err)
	}
}

// writeCrops saves each photo crop as <dir>/<id>-<n>.png.
func writeCrops(dir, id string, photos []image.Image) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for i, photo := range photos {
		path := filepath.Join(dir, fmt.Sprintf("%s-%d.png", id, i+1))
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		if err := png.Encode(f, photo); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

func runSegment() {
	fs := flag.NewFlagSet("segment", flag.ExitOnError)
	configPath := fs.String("config", configPathDefault(), "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := outputFormat(*output)

	if fs.NArg() != 1 {
		fail("Usage: lens segment [flags] <image>")
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	img, err := loadImage(fs.Arg(0))
	if err != nil {
		fail("%v", err)
	}
	seg := segment.New(segment.WithProcessingWidth(cfg.Segment.ProcessingWidth))
	if err := cli.WriteRegions(os.Stdout, seg.Segment(img), format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", configPathDefault(), "config file path")
	limit := fs.Int("limit", 20, "number of captures")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := outputFormat(*output)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	history, err := storage.NewSQLiteCaptureStore(cfg.Storage.HistoryPath)
	if err != nil {
		fail("Failed to open capture history: %v", err)
	}
	defer history.Close()

	var captures []*models.Capture
	if id := fs.Arg(0); id != "" {
		c, err := history.Get(context.Background(), id)
		if errors.Is(err, storage.ErrCaptureNotFound) {
			fail("No capture %s", id)
		}
		if err != nil {
			fail("Failed to read capture history: %v", err)
		}
		captures = []*models.Capture{c}
	} else if captures, err = history.Recent(context.Background(), *limit); err != nil {
		fail("Failed to read capture history: %v", err)
	}
	if err := cli.WriteCaptures(os.Stdout, captures, format); err != nil {
		fail("Output failed: %v", err)
	}
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Documents        int            `json:"documents"`
	Pages            int            `json:"pages"`
	Captures         int64          `json:"captures"`
	WatchDirectories []string       `json:"watch_directories,omitempty"`
	DiskUsage        *storage.Usage `json:"disk_usage,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", configPathDefault(), "config file path")
	serverURL := fs.String("server", "", "server URL (empty = read local storage directly)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := outputFormat(*output)

	var status statusResponse
	if *serverURL != "" {
		resp, err := http.Get(strings.TrimRight(*serverURL, "/") + "/api/v1/status")
		if err != nil {
			fail("Status request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fail("Server returned %d: %s", resp.StatusCode, string(b))
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			fail("Decode status failed: %v", err)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fail("Failed to load config: %v", err)
		}
		idx, err := corpus.NewStore(cfg.Storage.IndexPath).Load()
		if err != nil {
			fail("Failed to load corpus index: %v", err)
		}
		status.Documents = idx.Len()
		status.Pages = idx.PageCount()
		status.WatchDirectories = cfg.Watch.Directories
		history, err := storage.NewSQLiteCaptureStore(cfg.Storage.HistoryPath)
		if err != nil {
			fail("Failed to open capture history: %v", err)
		}
		status.Captures, err = history.Count(context.Background())
		_ = history.Close()
		if err != nil {
			fail("Failed to count captures: %v", err)
		}
		if usage, err := storage.MeasureUsage(cfg.Storage); err == nil {
			status.DiskUsage = &usage
		}
	}

	if format == cli.OutputJSON {
		if err := cli.WriteJSON(os.Stdout, status); err != nil {
			fail("Output failed: %v", err)
		}
		return
	}
	fmt.Printf("Documents: %d\nPages: %d\nCaptures: %d\n", status.Documents, status.Pages, status.Captures)
	if len(status.WatchDirectories) > 0 {
		fmt.Printf("Watching: %s\n", strings.Join(status.WatchDirectories, ", "))
	}
	if status.DiskUsage != nil {
		fmt.Printf("Disk usage: %s (index %s, history %s, keyword %s)\n",
			formatBytes(status.DiskUsage.TotalBytes), formatBytes(status.DiskUsage.IndexBytes),
			formatBytes(status.DiskUsage.HistoryBytes), formatBytes(status.DiskUsage.KeywordBytes))
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
