package concrete

import (
	"sync"
	"time"

	"github.com/butter-bot-machines/childproc/pkg/timing"
	"github.com/butter-bot-machines/childproc/pkg/watcher"
)

// debouncerImpl implements watcher.Debouncer
type debouncerImpl struct {
	delay    time.Duration
	maxDelay time.Duration
	timers   map[string]*timerCtx
	mu       sync.Mutex
	stopped  bool
	clock    timing.Clock
}

type timerCtx struct {
	timer      timing.Timer
	firstEvent time.Time
	fn         func()
	gen        uint64
}

// NewDebouncer creates a debouncer on the given clock. A nil clock uses the
// wall clock.
func NewDebouncer(delay, maxDelay time.Duration, clock timing.Clock) watcher.Debouncer {
	if clock == nil {
		clock = timing.New()
	}
	return &debouncerImpl{
		delay:    delay,
		maxDelay: maxDelay,
		timers:   make(map[string]*timerCtx),
		clock:    clock,
	}
}

// Debounce delays execution of fn until events for key settle. Only the
// latest fn for a key runs.
func (d *debouncerImpl) Debounce(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	now := d.clock.Now()
	ctx, ok := d.timers[key]
	if !ok {
		ctx = &timerCtx{firstEvent: now}
		d.timers[key] = ctx
	}
	ctx.fn = fn
	ctx.gen++
	gen := ctx.gen
	if ctx.timer != nil {
		ctx.timer.Stop()
	}

	wait := d.delay
	if d.maxDelay > 0 {
		if left := d.maxDelay - now.Sub(ctx.firstEvent); left < wait {
			wait = left
		}
	}
	if wait <= 0 {
		delete(d.timers, key)
		go fn()
		return
	}

	ctx.timer = d.clock.AfterFunc(wait, func() {
		d.fire(key, ctx, gen)
	})
}

func (d *debouncerImpl) fire(key string, ctx *timerCtx, gen uint64) {
	d.mu.Lock()
	if d.stopped || d.timers[key] != ctx || ctx.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.timers, key)
	fn := ctx.fn
	d.mu.Unlock()

	fn()
}

// Stop stops the debouncer. Pending calls are dropped.
func (d *debouncerImpl) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true

	for _, ctx := range d.timers {
		if ctx.timer != nil {
			ctx.timer.Stop()
		}
	}
	d.timers = nil
}
