package realtime

import (
	"log"
	"sync"
)

// queue is an unbounded FIFO of closures drained by a single goroutine.
// push never blocks, so work running on the drain goroutine may enqueue more work.
type queue struct {
	mu     sync.Mutex
	items  []func()
	wake   chan struct{}
	closed bool
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1)}
}

func (q *queue) push(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain runs queued closures in order until the queue is closed and empty.
func (q *queue) drain(run func(func())) {
	for {
		q.mu.Lock()
		items := q.items
		q.items = nil
		closed := q.closed
		q.mu.Unlock()

		for _, fn := range items {
			run(fn)
		}
		if len(items) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}

// dispatcher serializes all state mutation onto one loop goroutine and delivers
// change notifications, in order, on a second goroutine.
type dispatcher struct {
	loop     *queue
	notifier *queue
	loopDone chan struct{}
	noteDone chan struct{}
	stopOnce sync.Once
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		loop:     newQueue(),
		notifier: newQueue(),
		loopDone: make(chan struct{}),
		noteDone: make(chan struct{}),
	}
	go func() {
		defer close(d.loopDone)
		d.loop.drain(func(fn func()) { fn() })
	}()
	go func() {
		defer close(d.noteDone)
		d.notifier.drain(runNotification)
	}()
	return d
}

func runNotification(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("realtime: subscriber panic: %v", r)
		}
	}()
	fn()
}

// post schedules fn on the loop without waiting.
func (d *dispatcher) post(fn func()) bool {
	return d.loop.push(fn)
}

// do runs fn on the loop and waits for it. It must not be called from the loop.
func (d *dispatcher) do(fn func()) bool {
	done := make(chan struct{})
	if !d.loop.push(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-d.loopDone:
		return false
	}
}

// notify queues a subscriber callback.
func (d *dispatcher) notify(fn func()) {
	d.notifier.push(fn)
}

// stop runs final on the loop, then shuts both goroutines down once their queues drain.
func (d *dispatcher) stop(final func()) {
	d.stopOnce.Do(func() {
		d.loop.push(func() {
			if final != nil {
				final()
			}
		})
		d.loop.close()
		<-d.loopDone
		d.notifier.close()
	})
}
