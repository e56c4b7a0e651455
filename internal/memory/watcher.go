package memory

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce is the delay before re-indexing after a burst of file
// changes. Editors save in multiple events; one pass per burst is enough.
const watchDebounce = 1500 * time.Millisecond

// Watcher monitors memory directories and keeps the index current:
// changed knowledge files are re-indexed after a debounce window.
type Watcher struct {
	mgr    *Manager
	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// debounce state
	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]bool // changed paths since last flush
}

// NewWatcher creates a memory file watcher for a manager's workspace.
func NewWatcher(mgr *Manager) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		mgr:     mgr,
		fsw:     fsw,
		pending: make(map[string]bool),
	}, nil
}

// Start begins watching the workspace and its memory/ and sessions/
// subdirectories (including per-guild subdirectories).
func (w *Watcher) Start(ctx context.Context) error {
	watched := 0
	root := w.mgr.cfg.Workspace

	if err := w.fsw.Add(root); err != nil {
		return err
	}
	watched++

	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != root {
			return filepath.SkipDir
		}
		if name == "memory" || name == "sessions" {
			if err := w.fsw.Add(path); err == nil {
				watched++
			}
		}
		return nil
	})

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)

	slog.Info("memory watcher started", "root", root, "watched", watched)
	return nil
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.fsw.Close()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("memory watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	// New memory/ or sessions/ dir created → start watching it.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			base := filepath.Base(path)
			if base == "memory" || base == "sessions" {
				_ = w.fsw.Add(path)
				slog.Debug("memory watcher: watching new dir", "path", path)
			}
			return
		}
	}

	base := filepath.Base(path)
	indexable := strings.EqualFold(base, "MEMORY.md") ||
		strings.HasSuffix(base, ".md") || strings.HasSuffix(base, ".jsonl")
	if !indexable {
		return
	}

	w.schedule(path)
}

// schedule debounces re-index passes across a change burst.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = true

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(watchDebounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	paths := w.pending
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	if len(paths) == 0 {
		return
	}

	ctx := context.Background()
	for path := range paths {
		if err := w.mgr.IndexFile(ctx, path); err != nil {
			slog.Warn("memory watcher: reindex failed", "path", path, "error", err)
		}
	}
	slog.Info("memory watcher: reindexed changed files", "count", len(paths))
}
