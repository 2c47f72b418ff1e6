// Package watcher ingests PDF files as they appear or change under watched directories.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/lens/internal/corpus"
	"github.com/hyperjump/lens/internal/indexer"
)

const defaultDebounce = 400 * time.Millisecond

// Ingester updates a corpus index from files on disk.
type Ingester interface {
	Ingest(ctx context.Context, paths []string, current *corpus.Index) (*corpus.Index, indexer.IngestReport, error)
	Reindex(ctx context.Context, path string, current *corpus.Index) (*corpus.Index, indexer.IngestReport, error)
}

// Watcher collects file events under its roots and, once no event arrived for the debounce
// period, ingests changed PDFs and drops deleted ones in one pass.
type Watcher struct {
	roots     []string
	recursive bool
	ingester  Ingester
	snapshot  *corpus.Snapshot
	debounce  time.Duration
	onFlush   func(indexer.IngestReport)
	logger    *zap.Logger

	mu        sync.Mutex
	fsw       *fsnotify.Watcher
	ctx       context.Context
	pending   map[string]struct{}
	timer     *time.Timer
	rootPaths map[string][]string // root -> watched directories under it
	started   bool
	done      chan struct{}
	stopOnce  sync.Once
	flushMu   sync.Mutex
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger for the watcher.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets the quiet period before pending files are ingested.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithOnFlush registers a callback run after every ingest pass.
func WithOnFlush(fn func(indexer.IngestReport)) WatcherOption {
	return func(w *Watcher) { w.onFlush = fn }
}

// NewWatcher creates a watcher over roots. Results are stored into snapshot.
func NewWatcher(roots []string, recursive bool, ingester Ingester, snapshot *corpus.Snapshot, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		roots:     append([]string(nil), roots...),
		recursive: recursive,
		ingester:  ingester,
		snapshot:  snapshot,
		debounce:  defaultDebounce,
		logger:    zap.NewNop(),
		pending:   make(map[string]struct{}),
		rootPaths: make(map[string][]string),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start watches the roots, creating missing ones. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	for i, root := range w.roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			_ = fsw.Close()
			return err
		}
		w.roots[i] = filepath.Clean(abs)
		if err := w.addRootLocked(w.roots[i]); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	w.ctx = ctx
	w.started = true
	w.logger.Info("watcher started", zap.Strings("roots", w.roots), zap.Bool("recursive", w.recursive))
	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.underRoot(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if indexer.IsPDF(path) {
			w.enqueue(path)
		}
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		// a rename reports the old name; the new name arrives as Create
		if indexer.IsPDF(path) {
			w.enqueue(path)
		}
	}
}

// handleNewDirectory watches a directory created or moved under a root and queues the PDFs in it.
func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()
	if fsw == nil {
		return
	}
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !w.recursive {
				return filepath.SkipDir
			}
			if err := fsw.Add(path); err != nil {
				w.logger.Debug("watcher failed to add directory", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		if indexer.IsPDF(path) {
			w.enqueue(path)
		}
		return nil
	})
	if walkErr != nil {
		w.logger.Debug("watcher failed to walk new directory", zap.String("path", dir), zap.Error(walkErr))
	}
}

func (w *Watcher) underRoot(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, root := range w.roots {
		if inDir(root, path) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// enqueue adds path to the pending set and restarts the quiet period.
func (w *Watcher) enqueue(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

// flush ingests every pending path. Passes never overlap.
func (w *Watcher) flush() {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	ctx := w.ctx
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.timer = nil
	w.mu.Unlock()
	if len(paths) == 0 || ctx == nil {
		return
	}
	sort.Strings(paths)
	w.logger.Debug("watcher ingesting", zap.Strings("paths", paths))
	report := w.Sync(ctx, paths)
	if w.onFlush != nil {
		w.onFlush(report)
	}
}

// Sync ingests existing paths in one batch and removes the entries of missing ones.
func (w *Watcher) Sync(ctx context.Context, paths []string) indexer.IngestReport {
	var present, missing []string
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			missing = append(missing, p)
		} else {
			present = append(present, p)
		}
	}

	var report indexer.IngestReport
	err := w.snapshot.Update(func(current *corpus.Index) (*corpus.Index, error) {
		next := current
		for _, p := range missing {
			idx, r, err := w.ingester.Reindex(ctx, p, next)
			report.Removed = append(report.Removed, r.Removed...)
			if err != nil {
				return idx, err
			}
			next = idx
		}
		if len(present) == 0 {
			return next, nil
		}
		idx, r, err := w.ingester.Ingest(ctx, present, next)
		report.Indexed = r.Indexed
		report.Skipped = r.Skipped
		report.Missing = r.Missing
		report.Failed = r.Failed
		return idx, err
	})
	if err != nil {
		w.logger.Warn("watcher ingest failed", zap.Error(err))
	}
	if report.Changed() || len(report.Failed) > 0 {
		w.logger.Info("watcher updated index",
			zap.Int("indexed", len(report.Indexed)),
			zap.Int("removed", len(report.Removed)),
			zap.Int("failed", len(report.Failed)))
	}
	return report
}

// SyncExisting ingests every PDF already under the roots. Unchanged files are skipped by the
// ingester, so this is cheap on restart.
func (w *Watcher) SyncExisting(ctx context.Context) (indexer.IngestReport, error) {
	paths, err := indexer.ExpandPaths(w.Directories(), w.recursive)
	if err != nil {
		return indexer.IngestReport{}, err
	}
	return w.Sync(ctx, paths), nil
}

// AddDirectory starts watching root. Existing files are ingested when syncExisting is set.
func (w *Watcher) AddDirectory(ctx context.Context, root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return errors.New("watcher not started")
	}
	for _, r := range w.roots {
		if r == abs {
			w.mu.Unlock()
			return nil
		}
	}
	if err := w.addRootLocked(abs); err != nil {
		w.mu.Unlock()
		return err
	}
	w.roots = append(w.roots, abs)
	w.mu.Unlock()
	w.logger.Info("watcher directory added", zap.String("path", abs))
	if syncExisting {
		paths, err := indexer.ExpandPaths([]string{abs}, w.recursive)
		if err != nil {
			return err
		}
		w.Sync(ctx, paths)
	}
	return nil
}

func (w *Watcher) addRootLocked(root string) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	var paths []string
	if w.recursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return err
			}
			if err := w.fsw.Add(path); err != nil {
				return err
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		if err := w.fsw.Add(root); err != nil {
			return err
		}
		paths = append(paths, root)
	}
	w.rootPaths[root] = paths
	return nil
}

// RemoveDirectory stops watching root. Indexed documents are kept.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, r := range w.roots {
		if r != abs {
			continue
		}
		if w.fsw != nil {
			for _, p := range w.rootPaths[abs] {
				_ = w.fsw.Remove(p)
			}
		}
		delete(w.rootPaths, abs)
		w.roots = append(w.roots[:i], w.roots[i+1:]...)
		w.logger.Info("watcher directory removed", zap.String("path", abs))
		return nil
	}
	return nil
}

// Directories returns a copy of the watched roots.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// Stop stops watching and drops pending events. An ingest pass in progress finishes.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = make(map[string]struct{})
	_ = w.fsw.Close()
	w.fsw = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
