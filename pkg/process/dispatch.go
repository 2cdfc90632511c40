package process

import "sync"

// dispatcher runs queued events one at a time in FIFO order. A goroutine is
// started when work arrives and exits once the queue is empty, so producers
// never block and a Process needs no explicit shutdown.
type dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	recover func(v interface{})
}

func newDispatcher(recover func(v interface{})) *dispatcher {
	return &dispatcher{recover: recover}
}

func (d *dispatcher) enqueue(fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	start := !d.running
	d.running = true
	d.mu.Unlock()

	if start {
		go d.drain()
	}
}

func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.running = false
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.run(fn)
	}
}

func (d *dispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil && d.recover != nil {
			d.recover(r)
		}
	}()
	fn()
}
