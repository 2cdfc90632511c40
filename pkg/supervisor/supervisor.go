// Package supervisor runs the processes of a definition file side by side.
//
// Every process is launched once; restart policies, restart limits and watch
// paths decide when it is launched again. Output of all processes is merged
// into one writer with each line prefixed by the process name.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/butter-bot-machines/childproc/pkg/config"
	cperrors "github.com/butter-bot-machines/childproc/pkg/errors"
	"github.com/butter-bot-machines/childproc/pkg/logging"
	lslog "github.com/butter-bot-machines/childproc/pkg/logging/slog"
	"github.com/butter-bot-machines/childproc/pkg/metrics"
	"github.com/butter-bot-machines/childproc/pkg/process"
	"github.com/butter-bot-machines/childproc/pkg/timing"
)

const (
	defaultStopTimeout     = 5 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	readHeaderTimeout      = 5 * time.Second
)

// Options configures a Supervisor. Zero values select the defaults.
type Options struct {
	Backend  process.Backend
	Registry *process.Registry
	Logger   logging.Logger
	Clock    timing.Clock

	// Output receives the prefixed output lines of every process
	Output io.Writer

	// StopTimeout is how long a terminated process may take to exit before
	// it is killed
	StopTimeout time.Duration
}

// Supervisor runs the processes of one definition file
type Supervisor struct {
	cfg    *config.Config
	opts   Options
	logger logging.Logger
	outMu  sync.Mutex
	units  []*unit
	byName map[string]*unit
	errs   cperrors.Aggregate

	metricsAddr string
	addrMu      sync.Mutex
}

// New prepares a supervisor for cfg. Processes are created but not launched.
func New(cfg *config.Config, opts Options) (*Supervisor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Backend == nil {
		opts.Backend = process.DefaultBackend()
		if opts.Backend == nil {
			return nil, process.ErrNoBackend
		}
	}
	if opts.Registry == nil {
		opts.Registry = process.DefaultRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = lslog.NewLogger(logging.LevelInfo, os.Stderr)
	}
	if opts.Clock == nil {
		opts.Clock = timing.New()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}

	s := &Supervisor{
		cfg:    cfg,
		opts:   opts,
		logger: opts.Logger.WithGroup("supervisor"),
		byName: make(map[string]*unit, len(cfg.Processes)),
		errs:   cperrors.NewAggregate(),
	}

	_, _, current, err := opts.Backend.Current()
	if err != nil {
		return nil, err
	}
	for _, pc := range cfg.Processes {
		u, err := newUnit(s, pc, current)
		if err != nil {
			return nil, fmt.Errorf("process %q: %w", pc.Name, err)
		}
		s.units = append(s.units, u)
		s.byName[pc.Name] = u
	}
	return s, nil
}

// Process returns the supervised process with the given name
func (s *Supervisor) Process(name string) (*process.Process, bool) {
	u, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return u.proc, true
}

// Names lists the supervised process names in definition order
func (s *Supervisor) Names() []string {
	names := make([]string, 0, len(s.units))
	for _, u := range s.units {
		names = append(names, u.cfg.Name)
	}
	return names
}

// MetricsAddr returns the address the metrics endpoint listens on, or ""
// when it is not serving
func (s *Supervisor) MetricsAddr() string {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	return s.metricsAddr
}

// Run launches every process and blocks until all of them are finished or
// ctx is done, in which case the processes are stopped. A process that
// cannot be launched stops the others and its error is returned. Failed
// oneshot processes are reported together once everything has finished.
func (s *Supervisor) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var srv *http.Server
	serveErr := make(chan error, 1)
	if addr := s.cfg.Metrics.Addr; addr != "" {
		var err error
		srv, err = s.serveMetrics(addr, serveErr)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range s.units {
		u := u
		g.Go(func() error {
			return u.run(gctx)
		})
	}
	runErr := g.Wait()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs.Add(fmt.Errorf("metrics server: %w", err))
		}
	}

	if runErr != nil {
		return runErr
	}
	return s.errs.ErrorOrNil()
}

func (s *Supervisor) serveMetrics(addr string, serveErr chan<- error) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics server: %w", err)
	}
	metrics.EmitBuildInfo()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.addrMu.Lock()
	s.metricsAddr = ln.Addr().String()
	s.addrMu.Unlock()
	s.logger.Info("serving metrics", "addr", ln.Addr().String())

	go func() {
		serveErr <- srv.Serve(ln)
	}()
	return srv, nil
}

func (s *Supervisor) output() (io.Writer, *sync.Mutex) {
	return s.opts.Output, &s.outMu
}
