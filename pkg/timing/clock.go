package timing

import (
	"time"

	"github.com/benbjohnson/clock"
)

// New returns a Clock backed by the wall clock
func New() Clock {
	return &adapter{clock: clock.New()}
}

// Mock is a Clock whose time only moves when told to
type Mock struct {
	adapter
	mock *clock.Mock
}

// NewMock creates a mock clock starting at the Unix epoch
func NewMock() *Mock {
	m := clock.NewMock()
	return &Mock{adapter: adapter{clock: m}, mock: m}
}

// Set moves the mock clock to t, firing any timers that became due
func (m *Mock) Set(t time.Time) {
	m.mock.Set(t)
}

// Add advances the mock clock by d, firing any timers that became due
func (m *Mock) Add(d time.Duration) {
	m.mock.Add(d)
}

type adapter struct {
	clock clock.Clock
}

func (a *adapter) Now() time.Time {
	return a.clock.Now()
}

func (a *adapter) Sleep(d time.Duration) {
	a.clock.Sleep(d)
}

func (a *adapter) After(d time.Duration) <-chan time.Time {
	return a.clock.After(d)
}

func (a *adapter) NewTimer(d time.Duration) Timer {
	return &timer{t: a.clock.Timer(d)}
}

func (a *adapter) AfterFunc(d time.Duration, f func()) Timer {
	return &timer{t: a.clock.AfterFunc(d, f)}
}

func (a *adapter) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("non-positive interval for NewTicker")
	}
	return &ticker{t: a.clock.Ticker(d)}
}

type timer struct {
	t *clock.Timer
}

func (t *timer) C() <-chan time.Time {
	return t.t.C
}

func (t *timer) Stop() bool {
	return t.t.Stop()
}

func (t *timer) Reset(d time.Duration) bool {
	return t.t.Reset(d)
}

type ticker struct {
	t *clock.Ticker
}

func (t *ticker) C() <-chan time.Time {
	return t.t.C
}

func (t *ticker) Stop() {
	t.t.Stop()
}
