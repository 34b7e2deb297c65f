package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period before a change triggers a reload.
const DefaultDebounce = 500 * time.Millisecond

// ReloadFunc is called with the set of files that changed.
type ReloadFunc func(ctx context.Context, changed []string) error

// Watcher reloads catalogue files when they change on disk.
//
// Parent directories are watched rather than the files themselves so that
// editors which replace a file by rename are still observed.
type Watcher struct {
	logger   zerolog.Logger
	debounce time.Duration
	files    map[string]bool

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a watcher for the given files.
func NewWatcher(logger zerolog.Logger, debounce time.Duration, files ...string) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		logger:   logger.With().Str("component", "catalogue-watcher").Logger(),
		debounce: debounce,
		files:    make(map[string]bool),
		pending:  make(map[string]bool),
		done:     make(chan struct{}),
	}
	for _, f := range files {
		if f == "" {
			continue
		}
		if abs, err := filepath.Abs(f); err == nil {
			f = abs
		}
		w.files[filepath.Clean(f)] = true
	}
	return w
}

// Start begins watching. It returns once the watch is established; events are
// processed in the background until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context, reloadFn ReloadFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dirs := make(map[string]bool)
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	go w.processEvents(ctx, reloadFn)

	w.logger.Info().
		Int("files", len(w.files)).
		Dur("debounce", w.debounce).
		Msg("Started watching catalogue files")

	return nil
}

// processEvents collects changes and triggers debounced reloads.
func (w *Watcher) processEvents(ctx context.Context, reloadFn ReloadFunc) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				w.stopTimer()
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Clean(event.Name)
			if !w.files[name] {
				continue
			}

			w.logger.Debug().
				Str("file", name).
				Str("op", event.Op.String()).
				Msg("Catalogue file changed")

			w.schedule(ctx, name, reloadFn)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, name string, reloadFn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[name] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		changed := w.takePending()
		if len(changed) == 0 || ctx.Err() != nil {
			return
		}
		if err := reloadFn(ctx, changed); err != nil {
			w.logger.Error().Err(err).Strs("files", changed).Msg("Failed to reload catalogue")
			return
		}
		w.logger.Info().Strs("files", changed).Msg("Catalogue reloaded")
	})
}

func (w *Watcher) takePending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	changed := make([]string, 0, len(w.pending))
	for f := range w.pending {
		changed = append(changed, f)
	}
	w.pending = make(map[string]bool)
	sort.Strings(changed)
	return changed
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Stop closes the underlying watcher and waits for event processing to end.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	watcher := w.watcher
	w.mu.Unlock()
	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-w.done
	return err
}
