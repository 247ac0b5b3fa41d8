package realtime

import (
	"sort"
	"sync"
)

// registry fans one change category out to its subscribers.
type registry[T any] struct {
	mu       sync.Mutex
	next     int
	handlers map[int]func(T)
	disp     *dispatcher
}

func newRegistry[T any](disp *dispatcher) *registry[T] {
	return &registry[T]{handlers: make(map[int]func(T)), disp: disp}
}

// subscribe registers fn and returns its disposer. Disposing twice is harmless.
func (r *registry[T]) subscribe(fn func(T)) func() {
	r.mu.Lock()
	id := r.next
	r.next++
	r.handlers[id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.handlers, id)
			r.mu.Unlock()
		})
	}
}

// emit queues v for every subscriber still registered at delivery time.
func (r *registry[T]) emit(v T) {
	r.disp.notify(func() {
		r.mu.Lock()
		ids := make([]int, 0, len(r.handlers))
		for id := range r.handlers {
			ids = append(ids, id)
		}
		r.mu.Unlock()

		sort.Ints(ids)
		for _, id := range ids {
			r.mu.Lock()
			fn, ok := r.handlers[id]
			r.mu.Unlock()
			if ok {
				fn(v)
			}
		}
	})
}
