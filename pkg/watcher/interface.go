// Package watcher turns file system changes into debounced, rate limited
// callbacks. The supervisor uses it to restart a child when its sources or
// configuration change on disk.
package watcher

import (
	"time"

	"github.com/butter-bot-machines/childproc/pkg/logging"
	"github.com/butter-bot-machines/childproc/pkg/timing"
)

// EventHandler handles settled file system changes
type EventHandler interface {
	// HandleEvent processes the most recent change seen under a watched path
	HandleEvent(path string) error
}

// HandlerFunc adapts a function to EventHandler
type HandlerFunc func(path string) error

// HandleEvent calls f(path)
func (f HandlerFunc) HandleEvent(path string) error {
	return f(path)
}

// Debouncer coalesces rapid events
type Debouncer interface {
	// Debounce delays execution of fn until events settle
	Debounce(key string, fn func())
	// Stop stops the debouncer
	Stop()
}

// PathManager manages watched paths
type PathManager interface {
	// AddPath adds a path to watch
	AddPath(path string) error
	// RemovePath removes a path from watching
	RemovePath(path string) error
	// IsWatched checks if a path is being watched
	IsWatched(path string) bool
}

// FileWatcher monitors files for changes
type FileWatcher interface {
	PathManager
	// Stop stops the watcher
	Stop() error
}

// Options configures a FileWatcher
type Options struct {
	// Paths are watched from the start. Directories are watched
	// non-recursively.
	Paths []string
	// Delay is how long events must settle before the handler runs
	Delay time.Duration
	// MaxDelay bounds how long a steady stream of events can postpone the
	// handler. Zero means no bound.
	MaxDelay time.Duration
	// RestartLimit caps handler runs per minute. Zero means unlimited.
	RestartLimit int
	Clock        timing.Clock
	Logger       logging.Logger
}

// Error types for watcher operations
var (
	ErrNoHandler   = Error{"event handler is required"}
	ErrStopped     = Error{"watcher stopped"}
	ErrRateLimited = Error{"handler rate limited"}
)

// Error represents a watcher error
type Error struct {
	Message string
}

func (e Error) Error() string {
	return e.Message
}
