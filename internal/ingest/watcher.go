package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"qanerd/internal/logging"
)

// Watcher re-ingests catalog and markdown files when they change on disk.
// Deleted files do not remove their intents from the store.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	sink        Sink
	files       map[string]bool // true for watched files, false for watched directories
	pending     map[string]time.Time
	debounceDur time.Duration
	onIngest    func(path string, res Result, err error)
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatcherStats
}

// WatcherStats tracks watcher activity.
type WatcherStats struct {
	Events    int
	Ingested  int
	Errors    int
	LastPath  string
	LastEvent time.Time
}

// NewWatcher creates a watcher that ingests into sink.
func NewWatcher(sink Sink) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		sink:        sink,
		files:       make(map[string]bool),
		pending:     make(map[string]time.Time),
		debounceDur: 300 * time.Millisecond, // Debounce rapid saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// SetDebounce changes how long a file must be quiet before it is ingested.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	w.debounceDur = d
	w.mu.Unlock()
}

// OnIngest registers a callback run after each file is re-ingested.
func (w *Watcher) OnIngest(fn func(path string, res Result, err error)) {
	w.mu.Lock()
	w.onIngest = fn
	w.mu.Unlock()
}

// Add watches a file or, recursively, a directory.
func (w *Watcher) Add(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		abs, _ := filepath.Abs(path)
		w.mu.Lock()
		w.files[abs] = true
		w.mu.Unlock()
		return w.watcher.Add(filepath.Dir(path))
	}
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != path && len(d.Name()) > 0 && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		abs, _ := filepath.Abs(p)
		w.mu.Lock()
		w.files[abs] = false
		w.mu.Unlock()
		logging.IngestDebug("Watching directory %s", p)
		return w.watcher.Add(p)
	})
}

// Start begins watching in a goroutine. It returns immediately.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		logging.IngestWarn("Watcher: error closing: %v", err)
	}
}

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.IngestWarn("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// accepts reports whether a changed path should be re-ingested.
func (w *Watcher) accepts(path string) bool {
	if !IsSupported(path) {
		return false
	}
	abs, _ := filepath.Abs(path)
	if explicit, ok := w.files[abs]; ok && explicit {
		return true
	}
	dirOnly, ok := w.files[filepath.Dir(abs)]
	return ok && !dirOnly
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addCreatedDir(event.Name)
			return
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.accepts(event.Name) {
		return
	}
	w.stats.Events++
	w.stats.LastPath = event.Name
	w.stats.LastEvent = time.Now()
	w.pending[event.Name] = time.Now()
}

// addCreatedDir starts watching a directory created under a watched
// directory. fsnotify is not recursive, and files written into the directory
// before its watch existed produced no events, so they are queued directly.
func (w *Watcher) addCreatedDir(dir string) {
	if strings.HasPrefix(filepath.Base(dir), ".") {
		return
	}
	abs, _ := filepath.Abs(dir)
	w.mu.Lock()
	explicit, watched := w.files[filepath.Dir(abs)]
	w.mu.Unlock()
	if !watched || explicit {
		return
	}

	if err := w.Add(dir); err != nil {
		logging.IngestWarn("Watcher: cannot watch new directory %s: %v", dir, err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}
	files, err := collect([]string{dir})
	if err != nil {
		logging.IngestWarn("Watcher: cannot scan new directory %s: %v", dir, err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	for _, f := range files {
		if w.accepts(f) {
			w.stats.Events++
			w.pending[f] = now
		}
	}
}

// flush ingests files that have been quiet for the debounce period.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	var ready []string
	for path, at := range w.pending {
		if time.Since(at) >= w.debounceDur {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	callback := w.onIngest
	w.mu.Unlock()

	for _, path := range ready {
		if _, err := os.Stat(path); err != nil {
			// Renamed away or deleted before we got to it.
			continue
		}
		intents, err := LoadFile(path)
		var res Result
		if err == nil {
			res, err = Ingest(ctx, w.sink, intents)
		}

		w.mu.Lock()
		if err != nil {
			w.stats.Errors++
		} else {
			w.stats.Ingested += res.Upserted
		}
		w.mu.Unlock()

		if err != nil {
			logging.IngestWarn("Re-ingest of %s failed: %v", path, err)
		} else {
			logging.Ingest("Re-ingested %d intents from %s", res.Upserted, path)
		}
		if callback != nil {
			callback(path, res, err)
		}
	}
}
