package concrete

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/butter-bot-machines/childproc/pkg/timing"
	"github.com/butter-bot-machines/childproc/pkg/watcher"
)

// Throttle lets at most a fixed number of events per minute through to the
// wrapped handler
type Throttle struct {
	next    watcher.EventHandler
	limiter *rate.Limiter
	clock   timing.Clock
}

// NewThrottle wraps next so it runs at most perMinute times per minute, with
// bursts up to perMinute. A limit of zero or less disables throttling.
func NewThrottle(next watcher.EventHandler, perMinute int, clock timing.Clock) *Throttle {
	if clock == nil {
		clock = timing.New()
	}
	t := &Throttle{next: next, clock: clock}
	if perMinute > 0 {
		t.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	return t
}

// Allow consumes one token and reports whether an event may pass
func (t *Throttle) Allow() bool {
	if t.limiter == nil {
		return true
	}
	return t.limiter.AllowN(t.clock.Now(), 1)
}

// HandleEvent forwards path to the wrapped handler, or returns
// watcher.ErrRateLimited when the budget is spent
func (t *Throttle) HandleEvent(path string) error {
	if !t.Allow() {
		return watcher.ErrRateLimited
	}
	return t.next.HandleEvent(path)
}
