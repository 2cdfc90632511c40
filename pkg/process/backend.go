package process

import "sync"

var (
	backendMu      sync.RWMutex
	defaultBackend Backend
)

// RegisterBackend installs the backend used by processes created without
// WithBackend. The native backend registers itself when pkg/process/os is
// imported; the most recent registration wins.
func RegisterBackend(b Backend) {
	if b == nil {
		panic("process.RegisterBackend: backend must not be nil")
	}

	backendMu.Lock()
	defer backendMu.Unlock()
	defaultBackend = b
}

// DefaultBackend returns the registered backend, or nil
func DefaultBackend() Backend {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return defaultBackend
}
