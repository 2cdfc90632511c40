package process

import (
	"github.com/butter-bot-machines/childproc/pkg/logging"
	"github.com/butter-bot-machines/childproc/pkg/pipe"
)

// Option configures a Process at construction
type Option func(*Process)

// WithEnvironment sets the child's environment. The map is used as given;
// pass a clone to keep the caller's copy independent.
func WithEnvironment(env Environment) Option {
	return func(p *Process) {
		p.env = env
	}
}

// WithStdin uses a caller supplied writable pipe as stdin
func WithStdin(in *pipe.Pipe) Option {
	return func(p *Process) {
		p.stdin = in
	}
}

// WithStdout uses a caller supplied readable pipe as stdout
func WithStdout(out *pipe.Pipe) Option {
	return func(p *Process) {
		p.stdout = out
	}
}

// WithStderr uses a caller supplied readable pipe as stderr
func WithStderr(errOut *pipe.Pipe) Option {
	return func(p *Process) {
		p.stderr = errOut
	}
}

// WithBackend overrides the registered platform backend
func WithBackend(b Backend) Option {
	return func(p *Process) {
		p.backend = b
	}
}

// WithRegistry retains the process in r instead of the default registry
func WithRegistry(r *Registry) Option {
	return func(p *Process) {
		p.registry = r
	}
}

// WithLogger sets the logger for lifecycle events and callback failures
func WithLogger(l logging.Logger) Option {
	return func(p *Process) {
		p.logger = l
	}
}

// WithOutputLimit caps the bytes Call collects. Zero means unlimited.
func WithOutputLimit(n int) Option {
	return func(p *Process) {
		if n > 0 {
			p.outputLimit = n
		}
	}
}
