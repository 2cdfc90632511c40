package concrete

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/butter-bot-machines/childproc/pkg/logging"
	lslog "github.com/butter-bot-machines/childproc/pkg/logging/slog"
	"github.com/butter-bot-machines/childproc/pkg/timing"
	"github.com/butter-bot-machines/childproc/pkg/watcher"
)

// changeKey is the debounce key shared by all paths of one watcher, so a
// burst touching many files produces a single handler call
const changeKey = "change"

// watcherImpl implements watcher.FileWatcher
type watcherImpl struct {
	fsWatcher *fsnotify.Watcher
	handler   watcher.EventHandler
	debouncer watcher.Debouncer
	logger    logging.Logger
	paths     map[string]bool
	done      chan struct{}
	wg        sync.WaitGroup
	stopped   bool
	mu        sync.Mutex
}

// NewWatcher creates a file watcher that calls handler once changes under
// opts.Paths settle
func NewWatcher(opts watcher.Options, handler watcher.EventHandler) (watcher.FileWatcher, error) {
	if handler == nil {
		return nil, watcher.ErrNoHandler
	}
	if opts.Clock == nil {
		opts.Clock = timing.New()
	}
	if opts.Logger == nil {
		opts.Logger = lslog.NewLogger(logging.LevelWarn, os.Stderr)
	}
	if opts.RestartLimit > 0 {
		handler = NewThrottle(handler, opts.RestartLimit, opts.Clock)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &watcherImpl{
		fsWatcher: fsWatcher,
		handler:   handler,
		debouncer: NewDebouncer(opts.Delay, opts.MaxDelay, opts.Clock),
		logger:    opts.Logger.WithGroup("watcher"),
		paths:     make(map[string]bool),
		done:      make(chan struct{}),
	}

	for _, path := range opts.Paths {
		if err := w.AddPath(path); err != nil {
			fsWatcher.Close()
			return nil, err
		}
	}

	w.wg.Add(1)
	go w.watch()

	return w, nil
}

// AddPath adds a path to watch
func (w *watcherImpl) AddPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return watcher.ErrStopped
	}
	if w.paths[absPath] {
		return nil
	}
	if err := w.fsWatcher.Add(absPath); err != nil {
		return fmt.Errorf("failed to watch path %s: %w", absPath, err)
	}
	w.paths[absPath] = true
	w.logger.Info("watching path", "path", absPath)
	return nil
}

// RemovePath stops watching a path
func (w *watcherImpl) RemovePath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return watcher.ErrStopped
	}
	if !w.paths[absPath] {
		return nil
	}
	delete(w.paths, absPath)
	if err := w.fsWatcher.Remove(absPath); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
		return fmt.Errorf("failed to unwatch path %s: %w", absPath, err)
	}
	return nil
}

// IsWatched checks if a path is being watched
func (w *watcherImpl) IsWatched(path string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paths[absPath]
}

// Stop stops the watcher. Pending debounced calls are dropped.
func (w *watcherImpl) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.done)
	w.mu.Unlock()

	w.wg.Wait()
	w.debouncer.Stop()
	return w.fsWatcher.Close()
}

func (w *watcherImpl) watch() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			name := event.Name
			w.logger.Debug("change detected", "path", name, "op", event.Op.String())
			w.debouncer.Debounce(changeKey, func() {
				w.handleEvent(name)
			})
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *watcherImpl) handleEvent(path string) {
	err := w.handler.HandleEvent(path)
	switch {
	case err == nil:
	case errors.Is(err, watcher.ErrRateLimited):
		w.logger.Warn("change ignored, restart limit reached", "path", path)
	default:
		w.logger.Error("change handler failed", "path", path, "error", err)
	}
}
